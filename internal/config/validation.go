package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/internal/routing"
)

// Validate checks global settings and every hub definition.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		return newFieldError("LogLevel", fmt.Sprintf("invalid level %q", c.Global.LogLevel))
	}

	names := make(map[string]struct{}, len(c.Hubs))
	addrs := make(map[string]string, len(c.Hubs))
	for _, h := range c.Hubs {
		if h.Name == "" {
			return newFieldError(hubField("", "Name"), "is required")
		}
		if _, dup := names[h.Name]; dup {
			return newFieldError(hubField(h.Name, "Name"), "duplicate hub name")
		}
		names[h.Name] = struct{}{}

		if h.Port <= 0 || h.Port > 65535 {
			return newFieldError(hubField(h.Name, "Port"), "must be between 1 and 65535")
		}
		key := portString(h.Host, h.Port)
		if other, dup := addrs[key]; dup {
			return newFieldError(hubField(h.Name, "Port"), fmt.Sprintf("already used by hub %s", other))
		}
		addrs[key] = h.Name

		if _, err := routing.New(h.Policy, h.ReservedIdentity); err != nil {
			return newFieldError(hubField(h.Name, "Policy"), err.Error())
		}
	}
	return nil
}

// Validate checks that both legs are dialable WebSocket URLs.
func (b BridgeConfig) Validate() error {
	if err := validateWebSocketURL("Bridge.Upstream", b.Upstream); err != nil {
		return err
	}
	if err := validateWebSocketURL("Bridge.Downstream", b.Downstream); err != nil {
		return err
	}
	if b.Upstream == b.Downstream {
		return newFieldError("Bridge.Downstream", "must differ from Bridge.Upstream")
	}
	if b.RetryDelay.DurationValue() <= 0 {
		return newFieldError("Bridge.RetryDelay", "must be positive")
	}
	return nil
}

// Validate checks the display client settings.
func (r ReceiverConfig) Validate() error {
	if err := validateWebSocketURL("Receiver.URL", r.URL); err != nil {
		return err
	}
	if r.SampleRate <= 0 {
		return newFieldError("Receiver.SampleRate", "must be positive")
	}
	if r.FadeIn.DurationValue() < 0 {
		return newFieldError("Receiver.FadeIn", "must not be negative")
	}
	if r.RetryDelay.DurationValue() <= 0 {
		return newFieldError("Receiver.RetryDelay", "must be positive")
	}
	return nil
}

// Validate checks the capture client settings.
func (s StreamerConfig) Validate() error {
	if err := validateWebSocketURL("Streamer.URL", s.URL); err != nil {
		return err
	}
	if s.SampleRate <= 0 {
		return newFieldError("Streamer.SampleRate", "must be positive")
	}
	if s.ChunkSize <= 0 || s.ChunkSize%2 != 0 {
		return newFieldError("Streamer.ChunkSize", "must be a positive even number of bytes")
	}
	if s.RetryDelay.DurationValue() <= 0 {
		return newFieldError("Streamer.RetryDelay", "must be positive")
	}
	return nil
}

func validateWebSocketURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return newFieldError(field, "is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return newFieldError(field, err.Error())
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return newFieldError(field, "scheme must be ws or wss")
	}
	if u.Host == "" {
		return newFieldError(field, "host is required")
	}
	return nil
}

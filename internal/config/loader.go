package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultPath is read when no explicit path is given and the file exists.
const DefaultPath = "relay.toml"

const (
	defaultMaxMessageSize = 1 << 20
	defaultSendBuffer     = 256
)

// Load reads the TOML file at path, applies defaults and RELAY_* environment
// overrides, then validates the result. An empty path falls back to
// DefaultPath, and to pure defaults when that file does not exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err == nil {
			path = DefaultPath
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Hubs) == 0 {
		cfg.Hubs = DefaultHubs()
	}
	for i := range cfg.Hubs {
		applyHubDefaults(&cfg.Hubs[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("JournalPath", "")

	v.SetDefault("Bridge.Upstream", "ws://localhost:9000")
	v.SetDefault("Bridge.Downstream", "ws://localhost:8765")
	v.SetDefault("Bridge.UpstreamIdentity", "")
	v.SetDefault("Bridge.DownstreamIdentity", "bridge")
	v.SetDefault("Bridge.RetryDelay", "5s")
	v.SetDefault("Bridge.HandshakeTimeout", "10s")
	v.SetDefault("Bridge.WriteWait", "10s")
	v.SetDefault("Bridge.Bidirectional", false)

	v.SetDefault("Receiver.URL", "ws://localhost:8765")
	v.SetDefault("Receiver.Identity", "display")
	v.SetDefault("Receiver.SampleRate", 22050)
	v.SetDefault("Receiver.FadeIn", "50ms")
	v.SetDefault("Receiver.RetryDelay", "3s")
	v.SetDefault("Receiver.OutputPath", "")

	v.SetDefault("Streamer.URL", "ws://localhost:9000")
	v.SetDefault("Streamer.Identity", "")
	v.SetDefault("Streamer.SampleRate", 22050)
	v.SetDefault("Streamer.ChunkSize", 4096)
	v.SetDefault("Streamer.RetryDelay", "3s")
	v.SetDefault("Streamer.InputPath", "")
}

func applyHubDefaults(h *HubConfig) {
	h.Name = strings.TrimSpace(h.Name)
	h.Policy = strings.ToLower(strings.TrimSpace(h.Policy))
	if h.Policy == "" {
		h.Policy = "broadcast"
	}
	if h.MaxMessageSize <= 0 {
		h.MaxMessageSize = defaultMaxMessageSize
	}
	if h.SendBufferSize <= 0 {
		h.SendBufferSize = defaultSendBuffer
	}
	if h.PongWait.DurationValue() <= 0 {
		h.PongWait = Duration(60 * time.Second)
	}
	if h.WriteWait.DurationValue() <= 0 {
		h.WriteWait = Duration(10 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			var d Duration
			if err := d.UnmarshalText([]byte(v)); err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("unsupported duration type: %T", v)
		}
	}
}

// IsFieldError reports whether err is a validation failure.
func IsFieldError(err error) bool {
	var fe FieldError
	return errors.As(err, &fe)
}

// portString is used in duplicate-port messages.
func portString(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

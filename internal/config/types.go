package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration accepts Go duration strings ("5s", "50ms") or plain seconds.
type Duration time.Duration

// UnmarshalText lets viper decode "5s" as well as "5".
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue returns the underlying time.Duration.
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig holds settings shared by every process.
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	// JournalPath enables the SQLite connection journal when set.
	JournalPath string `mapstructure:"JournalPath"`
}

// HubConfig describes one listening relay hub.
type HubConfig struct {
	Name             string   `mapstructure:"Name"`
	Host             string   `mapstructure:"Host"`
	Port             int      `mapstructure:"Port"`
	Policy           string   `mapstructure:"Policy"`
	ReservedIdentity string   `mapstructure:"ReservedIdentity"`
	MaxMessageSize   int64    `mapstructure:"MaxMessageSize"`
	SendBufferSize   int      `mapstructure:"SendBufferSize"`
	PongWait         Duration `mapstructure:"PongWait"`
	WriteWait        Duration `mapstructure:"WriteWait"`
}

// Addr returns host:port for net.Listen.
func (h HubConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// BridgeConfig describes the two legs mirrored by a bridge.
type BridgeConfig struct {
	Upstream           string   `mapstructure:"Upstream"`
	Downstream         string   `mapstructure:"Downstream"`
	UpstreamIdentity   string   `mapstructure:"UpstreamIdentity"`
	DownstreamIdentity string   `mapstructure:"DownstreamIdentity"`
	RetryDelay         Duration `mapstructure:"RetryDelay"`
	HandshakeTimeout   Duration `mapstructure:"HandshakeTimeout"`
	WriteWait          Duration `mapstructure:"WriteWait"`
	Bidirectional      bool     `mapstructure:"Bidirectional"`
}

// ReceiverConfig describes the display client that plays audio.
type ReceiverConfig struct {
	URL        string   `mapstructure:"URL"`
	Identity   string   `mapstructure:"Identity"`
	SampleRate int      `mapstructure:"SampleRate"`
	FadeIn     Duration `mapstructure:"FadeIn"`
	RetryDelay Duration `mapstructure:"RetryDelay"`
	OutputPath string   `mapstructure:"OutputPath"`
}

// StreamerConfig describes the capture client that streams audio.
type StreamerConfig struct {
	URL        string   `mapstructure:"URL"`
	Identity   string   `mapstructure:"Identity"`
	SampleRate int      `mapstructure:"SampleRate"`
	ChunkSize  int      `mapstructure:"ChunkSize"`
	RetryDelay Duration `mapstructure:"RetryDelay"`
	InputPath  string   `mapstructure:"InputPath"`
}

// Config is the whole TOML document.
type Config struct {
	Global   GlobalConfig   `mapstructure:",squash"`
	Hubs     []HubConfig    `mapstructure:"Hub"`
	Bridge   BridgeConfig   `mapstructure:"Bridge"`
	Receiver ReceiverConfig `mapstructure:"Receiver"`
	Streamer StreamerConfig `mapstructure:"Streamer"`
}

// DefaultHubs mirrors the two-hub deployment: a broadcast relay that
// producers talk to and a targeted hub in front of the display.
func DefaultHubs() []HubConfig {
	return []HubConfig{
		{Name: "relay", Host: "localhost", Port: 9000, Policy: "broadcast"},
		{Name: "display", Host: "localhost", Port: 8765, Policy: "targeted", ReservedIdentity: "display"},
	}
}

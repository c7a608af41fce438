package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(cfg.Hubs) != 2 {
		t.Fatalf("expected 2 default hubs, got %d", len(cfg.Hubs))
	}
	if cfg.Hubs[0].Port != 9000 || cfg.Hubs[1].Port != 8765 {
		t.Errorf("unexpected default ports: %d, %d", cfg.Hubs[0].Port, cfg.Hubs[1].Port)
	}
	if cfg.Hubs[1].Policy != "targeted" || cfg.Hubs[1].ReservedIdentity != "display" {
		t.Errorf("unexpected display hub: %+v", cfg.Hubs[1])
	}
	if cfg.Bridge.RetryDelay.DurationValue() != 5*time.Second {
		t.Errorf("expected 5s bridge retry, got %v", cfg.Bridge.RetryDelay.DurationValue())
	}
	if cfg.Receiver.FadeIn.DurationValue() != 50*time.Millisecond {
		t.Errorf("expected 50ms fade-in, got %v", cfg.Receiver.FadeIn.DurationValue())
	}
	if cfg.Receiver.RetryDelay.DurationValue() != 3*time.Second {
		t.Errorf("expected 3s receiver retry, got %v", cfg.Receiver.RetryDelay.DurationValue())
	}
	if cfg.Hubs[0].MaxMessageSize != defaultMaxMessageSize || cfg.Hubs[0].SendBufferSize != defaultSendBuffer {
		t.Errorf("hub defaults not applied: %+v", cfg.Hubs[0])
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
LogLevel = "debug"
JournalPath = "data/journal.db"

[[Hub]]
Name = "peers"
Host = "0.0.0.0"
Port = 9100

[[Hub]]
Name = "screen"
Port = 9200
Policy = "Targeted"
ReservedIdentity = "screen"
MaxMessageSize = 4096

[Bridge]
Upstream = "ws://relay:9100"
Downstream = "ws://relay:9200"
RetryDelay = 2
Bidirectional = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Global.LogLevel != "debug" || cfg.Global.JournalPath != "data/journal.db" {
		t.Errorf("unexpected global config: %+v", cfg.Global)
	}
	if len(cfg.Hubs) != 2 {
		t.Fatalf("expected 2 hubs, got %d", len(cfg.Hubs))
	}
	if cfg.Hubs[0].Policy != "broadcast" || cfg.Hubs[0].Addr() != "0.0.0.0:9100" {
		t.Errorf("unexpected first hub: %+v", cfg.Hubs[0])
	}
	if cfg.Hubs[1].Policy != "targeted" || cfg.Hubs[1].MaxMessageSize != 4096 {
		t.Errorf("unexpected second hub: %+v", cfg.Hubs[1])
	}
	if cfg.Bridge.RetryDelay.DurationValue() != 2*time.Second || !cfg.Bridge.Bidirectional {
		t.Errorf("unexpected bridge config: %+v", cfg.Bridge)
	}
	if err := cfg.Bridge.Validate(); err != nil {
		t.Errorf("bridge should validate: %v", err)
	}
}

func TestLoadRejectsTargetedHubWithoutReservedIdentity(t *testing.T) {
	path := writeConfig(t, `
[[Hub]]
Name = "screen"
Port = 9200
Policy = "targeted"
`)

	_, err := Load(path)
	var fe FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	if fe.Field != "Hub[screen].Policy" {
		t.Errorf("unexpected field: %s", fe.Field)
	}
}

func TestLoadRejectsDuplicatePorts(t *testing.T) {
	path := writeConfig(t, `
[[Hub]]
Name = "a"
Port = 9000

[[Hub]]
Name = "b"
Port = 9000
`)

	if _, err := Load(path); !IsFieldError(err) {
		t.Fatalf("expected field error, got %v", err)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("RELAY_BRIDGE_RETRYDELAY", "7s")
	path := writeConfig(t, `LogLevel = "warn"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Bridge.RetryDelay.DurationValue() != 7*time.Second {
		t.Errorf("expected env override 7s, got %v", cfg.Bridge.RetryDelay.DurationValue())
	}
}

func TestPeerValidation(t *testing.T) {
	r := ReceiverConfig{URL: "http://localhost:8765", SampleRate: 22050, RetryDelay: Duration(time.Second)}
	if err := r.Validate(); !IsFieldError(err) {
		t.Errorf("expected scheme error, got %v", err)
	}

	s := StreamerConfig{URL: "ws://localhost:9000", SampleRate: 22050, ChunkSize: 3, RetryDelay: Duration(time.Second)}
	if err := s.Validate(); !IsFieldError(err) {
		t.Errorf("expected chunk size error, got %v", err)
	}

	b := BridgeConfig{Upstream: "ws://a:1", Downstream: "ws://a:1", RetryDelay: Duration(time.Second)}
	if err := b.Validate(); !IsFieldError(err) {
		t.Errorf("expected identical legs error, got %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	cases := map[string]time.Duration{
		"":     0,
		"50ms": 50 * time.Millisecond,
		"3":    3 * time.Second,
		"0.5":  500 * time.Millisecond,
		" 2m ": 2 * time.Minute,
	}
	for in, want := range cases {
		var d Duration
		if err := d.UnmarshalText([]byte(in)); err != nil {
			t.Errorf("%q: unexpected error %v", in, err)
			continue
		}
		if d.DurationValue() != want {
			t.Errorf("%q: expected %v, got %v", in, want, d.DurationValue())
		}
	}

	var d Duration
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for invalid duration")
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useBufferStdErr(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := stdErr
	buf := &bytes.Buffer{}
	stdErr = buf
	t.Cleanup(func() { stdErr = prev })
	return buf
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("RELAY_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("expected env path, got %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml", "--check-config"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" || !opts.checkOnly {
		t.Fatalf("flag should win over env, got %+v", opts)
	}
}

func TestParseCLIFlagsRejectsUnknownFlag(t *testing.T) {
	if _, err := parseCLIFlags([]string{"--nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferStdErr(t)
	path := writeConfig(t, `
[[Hub]]
Name = "relay"
Port = 9000

[[Hub]]
Name = "display"
Port = 8765
Policy = "targeted"
ReservedIdentity = "display"
`)
	if code := run(cliOptions{configPath: path, checkOnly: true}); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	stderr := useBufferStdErr(t)
	path := writeConfig(t, `
[[Hub]]
Name = "display"
Port = 8765
Policy = "targeted"
`)
	if code := run(cliOptions{configPath: path, checkOnly: true}); code == 0 {
		t.Fatal("invalid config should fail")
	}
	if !strings.Contains(stderr.String(), "Hub[display].Policy") {
		t.Fatalf("expected field error on stderr, got %q", stderr.String())
	}
}

func TestRunMissingConfig(t *testing.T) {
	useBufferStdErr(t)
	missing := filepath.Join(t.TempDir(), "missing.toml")
	if code := run(cliOptions{configPath: missing, checkOnly: true}); code == 0 {
		t.Fatal("missing config should fail")
	}
}

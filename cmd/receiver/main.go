package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/voice-relay/backend/internal/audio"
	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/logging"
	"github.com/voice-relay/backend/internal/peer"
)

type cliOptions struct {
	configPath string
	url        string
	identity   string
	output     string
}

var stdErr io.Writer = os.Stderr

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run plays received audio as raw PCM16 into a file, or stdout for piping
// into a player such as `aplay -f S16_LE -r 22050`.
func run(opts cliOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to load config: %v\n", err)
		return 1
	}

	rc := cfg.Receiver
	if opts.url != "" {
		rc.URL = opts.url
	}
	if opts.identity != "" {
		rc.Identity = opts.identity
	}
	if opts.output != "" {
		rc.OutputPath = opts.output
	}
	if err := rc.Validate(); err != nil {
		fmt.Fprintf(stdErr, "invalid receiver config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global, logging.ComponentReceiver)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to initialise logging: %v\n", err)
		return 1
	}

	out := io.Writer(os.Stdout)
	if rc.OutputPath != "" && rc.OutputPath != "-" {
		f, err := os.OpenFile(rc.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(stdErr, "failed to open output: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	} else if cfg.Global.LogFilePath == "" {
		// stdout carries audio.
		logger.SetOutput(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["url"] = rc.URL
	fields["identity"] = rc.Identity
	fields["sample_rate"] = rc.SampleRate
	logger.WithFields(fields).Info("receiver starting")

	r := peer.NewReceiver(rc, audio.NewWriterSink(out), logger)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("receiver stopped")
		return 1
	}
	logger.WithField("played", r.Played()).Info("receiver stopped")
	return 0
}

func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("relay-receiver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	fs.StringVar(&opts.configPath, "config", "", "config file path (default ./relay.toml, overridden by RELAY_CONFIG)")
	fs.StringVar(&opts.url, "url", "", "hub URL")
	fs.StringVar(&opts.identity, "identity", "", "identity declared on connect")
	fs.StringVar(&opts.output, "output", "", "PCM output file, - for stdout")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("failed to parse flags: %w", err)
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("RELAY_CONFIG")
	}
	return opts, nil
}

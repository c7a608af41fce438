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

	"github.com/voice-relay/backend/internal/bridge"
	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/logging"
)

type cliOptions struct {
	configPath    string
	upstream      string
	downstream    string
	bidirectional bool
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

func run(opts cliOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to load config: %v\n", err)
		return 1
	}

	bc := cfg.Bridge
	if opts.upstream != "" {
		bc.Upstream = opts.upstream
	}
	if opts.downstream != "" {
		bc.Downstream = opts.downstream
	}
	if opts.bidirectional {
		bc.Bidirectional = true
	}
	if err := bc.Validate(); err != nil {
		fmt.Fprintf(stdErr, "invalid bridge config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global, logging.ComponentBridge)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to initialise logging: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["upstream"] = bc.Upstream
	fields["downstream"] = bc.Downstream
	fields["bidirectional"] = bc.Bidirectional
	logger.WithFields(fields).Info("bridge starting")

	b := bridge.New(bridge.FromConfig(bc), logger, nil)
	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("bridge stopped")
		return 1
	}
	logger.WithField("action", "shutdown").Info("bridge stopped")
	return 0
}

func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("relay-bridge", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	fs.StringVar(&opts.configPath, "config", "", "config file path (default ./relay.toml, overridden by RELAY_CONFIG)")
	fs.StringVar(&opts.upstream, "upstream", "", "upstream hub URL")
	fs.StringVar(&opts.downstream, "downstream", "", "downstream hub URL")
	fs.BoolVar(&opts.bidirectional, "bidirectional", false, "also forward downstream traffic upstream")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("failed to parse flags: %w", err)
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("RELAY_CONFIG")
	}
	return opts, nil
}

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
	input      string
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

// run streams raw PCM16 from a file, or stdin, as audio envelopes.
func run(opts cliOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to load config: %v\n", err)
		return 1
	}

	sc := cfg.Streamer
	if opts.url != "" {
		sc.URL = opts.url
	}
	if opts.input != "" {
		sc.InputPath = opts.input
	}
	if err := sc.Validate(); err != nil {
		fmt.Fprintf(stdErr, "invalid streamer config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global, logging.ComponentStreamer)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to initialise logging: %v\n", err)
		return 1
	}

	in := io.Reader(os.Stdin)
	if sc.InputPath != "" && sc.InputPath != "-" {
		f, err := os.Open(sc.InputPath)
		if err != nil {
			fmt.Fprintf(stdErr, "failed to open input: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	src, err := audio.NewReaderSource(in, sc.ChunkSize)
	if err != nil {
		fmt.Fprintf(stdErr, "invalid streamer config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["url"] = sc.URL
	fields["chunk_size"] = sc.ChunkSize
	logger.WithFields(fields).Info("streamer starting")

	s := peer.NewStreamer(sc, src, logger)
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("streamer stopped")
		return 1
	}
	logger.WithField("chunks", s.Sent()).Info("streamer finished")
	return 0
}

func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("relay-streamer", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts cliOptions
	fs.StringVar(&opts.configPath, "config", "", "config file path (default ./relay.toml, overridden by RELAY_CONFIG)")
	fs.StringVar(&opts.url, "url", "", "hub URL")
	fs.StringVar(&opts.input, "input", "", "PCM input file, - for stdin")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("failed to parse flags: %w", err)
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("RELAY_CONFIG")
	}
	return opts, nil
}

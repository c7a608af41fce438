package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/voice-relay/backend/internal/config"
	"github.com/voice-relay/backend/internal/db"
	"github.com/voice-relay/backend/internal/logging"
	"github.com/voice-relay/backend/internal/metrics"
	"github.com/voice-relay/backend/internal/repository"
	"github.com/voice-relay/backend/internal/server"
)

const shutdownTimeout = 10 * time.Second

type cliOptions struct {
	configPath string
	checkOnly  bool
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

// run starts every configured hub and blocks until SIGINT/SIGTERM. It
// returns the process exit code.
func run(opts cliOptions) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global, logging.ComponentServer)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to initialise logging: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["hubs"] = len(cfg.Hubs)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("config is valid")
		return 0
	}

	journal, closeJournal, err := openJournal(cfg.Global.JournalPath, cfg.Hubs, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to open journal: %v\n", err)
		return 1
	}
	defer closeJournal()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	manager, err := server.NewManager(cfg.Hubs, logger, m, reg, journal)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to build hubs: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		fmt.Fprintf(stdErr, "failed to start hubs: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["hubs"] = len(cfg.Hubs)
	fields["journal"] = cfg.Global.JournalPath != ""
	logger.WithFields(fields).Info("relay started")

	<-ctx.Done()
	logger.WithField("action", "shutdown").Info("shutting down relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("unclean shutdown")
		return 1
	}
	return 0
}

// openJournal opens the connection journal when path is set and closes
// records left open by a previous crash.
func openJournal(path string, hubs []config.HubConfig, logger *logrus.Logger) (*repository.ConnectionRepository, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}

	database, err := db.Open(path)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := database.Close(); err != nil {
			logger.WithError(err).Warn("failed to close journal")
		}
	}

	repo := repository.NewConnectionRepository(database)
	if err := sweep(repo, hubs, logger); err != nil {
		closeDB()
		return nil, nil, err
	}
	return repo, closeDB, nil
}

func sweep(repo *repository.ConnectionRepository, hubs []config.HubConfig, logger *logrus.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, h := range hubs {
		n, err := repo.CloseDangling(ctx, h.Name)
		if err != nil {
			return fmt.Errorf("hub %s: %w", h.Name, err)
		}
		if n > 0 {
			logger.WithFields(logrus.Fields{"hub": h.Name, "closed": n}).Info("closed dangling journal records")
		}
	}
	return nil
}

// parseCLIFlags resolves the config path from -config, then RELAY_CONFIG,
// then the default relay.toml.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("relay-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
	)
	fs.StringVar(&configFlag, "config", "", "config file path (default ./relay.toml, overridden by RELAY_CONFIG)")
	fs.BoolVar(&checkOnly, "check-config", false, "validate the config and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	path := os.Getenv("RELAY_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	return cliOptions{configPath: path, checkOnly: checkOnly}, nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/sqlcron/internal/config"
	"github.com/livinlefevreloca/sqlcron/internal/db"
	"github.com/livinlefevreloca/sqlcron/internal/events"
	"github.com/livinlefevreloca/sqlcron/internal/logging"
	"github.com/livinlefevreloca/sqlcron/internal/scheduler"
	"github.com/livinlefevreloca/sqlcron/internal/stats"
)

var version = "dev"

type CLI struct {
	Config  string           `short:"c" env:"SQLCRON_CONFIG" default:"config.toml" type:"path" help:"Configuration file (TOML or YAML)."`
	Events  string           `short:"e" env:"SQLCRON_EVENTS" default:"events.conf" type:"path" help:"Event definitions file."`
	Verbose bool             `short:"v" help:"Log at debug level."`
	Check   bool             `help:"Validate the events file against the database and exit."`
	Version kong.VersionFlag `short:"V" help:"Show version."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("sqlcron"),
		kong.Description("Run batches of SQL statements on a cron schedule."),
		kong.Vars{"version": version},
		kong.ShortUsageOnError(),
		kong.HelpOptions{Compact: true, WrapUpperBound: 80},
	)

	kctx.FatalIfErrorf(run(context.Background(), cli))
}

func run(ctx context.Context, cli CLI) error {
	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging, cli.Verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	logger = logger.With("instance", cfg.Name)
	slog.SetDefault(logger)

	logger.Info("starting sqlcron", "version", version, "config_file", cli.Config)

	logger.Info("connecting to database",
		"database", cfg.Database.Name(),
		"serialized", cfg.Database.Serialized() || cfg.Scheduler.Serialize)
	conn, err := db.OpenWithConfig(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}

	evts, err := events.Load(ctx, cli.Events, conn, logger)
	if err != nil {
		conn.Close()
		logger.Error("failed to load events", "error", err)
		return err
	}

	if cli.Check {
		logger.Info("events file is valid", "path", cli.Events, "events", len(evts))
		return conn.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := stats.New(reg)

	wg, ctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(ctx)

	wg.Go(func() error {
		defer stopAux()
		return scheduler.Run(ctx, evts, conn, cfg.Scheduler, logger, scheduler.WithMetrics(metrics))
	})

	if cfg.Metrics.Enabled {
		wg.Go(func() error {
			return stats.Serve(auxCtx, cfg.Metrics, reg, logger)
		})
	}

	if cfg.Events.Watch {
		wg.Go(func() error {
			if err := events.Watch(auxCtx, cli.Events, logger); err != nil {
				logger.Warn("events file watch disabled", "error", err)
			}
			return nil
		})
	}

	if err := wg.Wait(); err != nil {
		logger.Error("sqlcron stopped with error", "error", err)
		return err
	}
	logger.Info("sqlcron stopped")
	return nil
}

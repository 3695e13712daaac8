package cli

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/nntp2sql/internal/config"
	"github.com/example/nntp2sql/internal/ingest"
	"github.com/example/nntp2sql/internal/logging"
	"github.com/example/nntp2sql/internal/metrics"
	"github.com/example/nntp2sql/internal/progress"
	"github.com/example/nntp2sql/internal/store"
)

// configLoader resolves the full configuration after flags are bound.
type configLoader func() (config.Config, error)

// newSyncCmd creates the 'sync' subcommand, which runs one ingestion pass
// over the configured newsgroup.
func newSyncCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ingest a newsgroup's headers into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runSync(cmd.Context(), cfg)
		},
	}
}

func runSync(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Verbose:     cfg.Logging.Verbose,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer func() {
		// Sync on stderr fails on some platforms; nothing to do about it.
		_ = logger.Sync()
	}()

	sink, err := openSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Warn("store close failed", zap.Error(cerr))
		}
	}()
	if err := sink.Setup(ctx); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	promSink, err := progress.NewPrometheusSink(reg)
	if err != nil {
		return err
	}
	progressSinks := []progress.Sink{progress.NewLogSink(logger), promSink}

	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, reg, logger)
		srv.Start()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.Shutdown(sctx); serr != nil {
				logger.Warn("metrics shutdown failed", zap.Error(serr))
			}
		}()
	}

	runner := ingest.NewRunner(cfg, sink, progressSinks, logger)
	return runner.Run(ctx)
}

// openSink builds the store sink for the configured driver.
func openSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (*store.Sink, error) {
	var backend store.Backend
	var err error
	switch cfg.DB.Driver {
	case "postgres":
		backend, err = store.OpenPostgres(ctx, cfg.DB.DSN)
	default:
		backend, err = store.OpenSQLite(ctx, cfg.DB.DSN)
	}
	if err != nil {
		return nil, err
	}
	return store.NewSink(backend, cfg.DB.Upsert, logger), nil
}

package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/nntp2sql/internal/logging"
)

// newInitDBCmd creates the 'init-db' subcommand, which creates the schema
// and exits without contacting the news server.
func newInitDBCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Verbose:     cfg.Logging.Verbose,
				File:        cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = logger.Sync()
			}()

			ctx := cmd.Context()
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
			logger.Info("schema created", zap.String("driver", cfg.DB.Driver))
			return nil
		},
	}
}

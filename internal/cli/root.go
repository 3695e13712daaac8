// Package cli defines and implements the commands of the nntp2sql
// executable.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/nntp2sql/internal/config"
	"github.com/example/nntp2sql/internal/errcode"
)

// NewRootCmd creates the root command with its own Viper instance so tests
// can build isolated command trees.
func NewRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "nntp2sql",
		Short: "Pull NNTP article headers into a SQL database",
		Long: `nntp2sql connects to a news server, selects a newsgroup, and stores
its article headers in a relational database. Headers come either from a
single XOVER sweep or from a pool of concurrent HEAD workers, each on its
own authenticated session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.String("host", "", "news server hostname")
	flags.String("port", "", "news server port (default 119, or 563 with --tls)")
	flags.Bool("tls", false, "use TLS from the first byte")
	flags.Bool("starttls", false, "upgrade to TLS via STARTTLS after the greeting")
	flags.String("user", "", "AUTHINFO username")
	flags.String("pass", "", "AUTHINFO password")
	flags.String("group", "", "newsgroup to ingest")
	flags.Bool("headers-only", false, "use one XOVER sweep instead of HEAD workers")
	flags.Int("limit", 0, "fetch only the newest N articles (0 = all)")
	flags.Int("workers", 0, "number of concurrent HEAD workers")
	flags.Int("retries", -1, "per-article retry budget")
	flags.String("db-driver", "", "database driver (sqlite or postgres)")
	flags.String("db-dsn", "", "database connection string")
	flags.Bool("upsert", false, "insert rows that are missing on update")
	flags.String("metrics-listen", "", "address for the Prometheus metrics listener")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	bind := func(key, flag string) {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	bind("server.host", "host")
	bind("server.port", "port")
	bind("server.tls", "tls")
	bind("server.starttls", "starttls")
	bind("server.username", "user")
	bind("server.password", "pass")
	bind("fetch.group", "group")
	bind("fetch.headers_only", "headers-only")
	bind("fetch.limit", "limit")
	bind("fetch.workers", "workers")
	bind("fetch.retries", "retries")
	bind("db.driver", "db-driver")
	bind("db.dsn", "db-dsn")
	bind("db.upsert", "upsert")
	bind("metrics.listen", "metrics-listen")
	bind("logging.file", "log-file")
	bind("logging.verbose", "verbose")

	cmd.AddCommand(newSyncCmd(func() (config.Config, error) {
		return config.Load(v, cfgFile)
	}))
	cmd.AddCommand(newInitDBCmd(func() (config.Config, error) {
		return config.LoadDB(v, cfgFile)
	}))
	cmd.AddCommand(newWriteConfigCmd(v))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(viper.New())
	if err := root.ExecuteContext(ctx); err != nil {
		code := errcode.ExitCode(err)
		fmt.Fprintf(os.Stderr, "Error (code %d): %v\n", code, err)
		return code
	}
	return 0
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/nntp2sql/internal/config"
	"github.com/example/nntp2sql/internal/errcode"
)

// newWriteConfigCmd creates the 'write-config' subcommand, which renders the
// effective configuration, defaults plus flags, to a file as a starting
// point for editing.
func newWriteConfigCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "write-config <path>",
		Short: "Write the effective configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetDefaults(v)
			if err := v.WriteConfigAs(args[0]); err != nil {
				return errcode.New(errcode.ConfigFile, fmt.Errorf("write config: %w", err))
			}
			cmd.Printf("wrote %s\n", args[0])
			return nil
		},
	}
}

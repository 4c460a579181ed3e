// Package commands implements the arcfs command line.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	configcmd "github.com/marmos91/arcfs/cmd/arcfs/commands/config"
	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/config"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configFile string
	cfg        *config.Config
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "arcfs",
		Short: "arcfs - browse and edit archives as directories",
		Long: `arcfs treats archive files as directories. Paths may pass through any
number of nested archives:

  arcfs cat /data/backup.tar.gz/inner.tar/docs/readme.txt

Supported formats: tar, tar.gz (tgz), tar.zst, tar.lz4 and the encrypted
tar.raes. Passwords for encrypted archives are read from ARCFS_PASSWORD or
asked for interactively.

Use "arcfs [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			if err := initLogger(cfg); err != nil {
				return err
			}
			opts.cfg = cfg
			cmd.SetContext(logger.WithContext(cmd.Context(), logger.NewLogContext(cmd.Name())))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/arcfs/config.yaml)")

	root.AddCommand(
		newLsCmd(opts),
		newCatCmd(opts),
		newPutCmd(opts),
		newMkdirCmd(opts),
		newRmCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
		configcmd.NewCmd(),
	)
	root.CompletionOptions.DisableDefaultCmd = true

	return root
}

// Execute runs the command line.
func Execute() error {
	return NewRootCmd().Execute()
}

// initLogger initializes the structured logger from configuration.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/internal/cli/output"
	"github.com/marmos91/arcfs/internal/cli/prompt"
	"github.com/marmos91/arcfs/pkg/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		Long: `Write a configuration file with default values.

Examples:
  # Create $XDG_CONFIG_HOME/arcfs/config.yaml
  arcfs config init

  # Replace an existing file without asking
  arcfs config init --config ./arcfs.yaml --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)

			if _, err := os.Stat(path); err == nil {
				ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Overwrite %s", path), force)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("configuration file already exists: %s", path)
				}
			}

			if err := config.SaveConfig(config.GetDefaultConfig(), path); err != nil {
				return err
			}
			output.NewPrinter(cmd.OutOrStdout(), output.FormatTable, false).Success("Configuration written to %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

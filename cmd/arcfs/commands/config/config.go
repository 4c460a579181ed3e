// Package config implements the 'arcfs config' subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/pkg/config"
)

// NewCmd returns the config command. Its subcommands read the root's
// --config flag and load the file themselves, so that a broken file can be
// inspected and replaced.
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the arcfs configuration file",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
	}
	cmd.AddCommand(newInitCmd(), newShowCmd(), newValidateCmd())
	return cmd
}

// configPath returns --config, or the default location.
func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.GetDefaultConfigPath()
	}
	return path
}

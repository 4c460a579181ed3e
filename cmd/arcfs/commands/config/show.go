package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/internal/cli/output"
	"github.com/marmos91/arcfs/pkg/config"
)

func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after defaults and ARCFS_* environment
overrides are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			if f == output.FormatTable {
				f = output.FormatYAML
			}

			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return output.NewPrinter(cmd.OutOrStdout(), f, false).Print(cfg)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml|json)")
	return cmd
}

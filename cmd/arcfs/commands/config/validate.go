package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/internal/cli/output"
	"github.com/marmos91/arcfs/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Check the configuration file for syntax errors and invalid values.

Examples:
  arcfs config validate
  arcfs config validate --config /etc/arcfs/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.MustLoad(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			p := output.NewPrinter(out, output.FormatTable, false)
			p.Success("Configuration file: %s", configPath(cmd))
			p.Success("Validation: OK")

			if cfg.Telemetry.Enabled && cfg.Telemetry.Insecure {
				p.Warning("Telemetry is exported without TLS")
			}
			if cfg.Crypto.KeyStrength < 256 {
				p.Warning("New encrypted archives use %d bit keys", cfg.Crypto.KeyStrength)
			}

			_, _ = fmt.Fprintln(out)
			return output.SimpleTable(out, [][2]string{
				{"Log level", cfg.Logging.Level},
				{"Max archive size", cfg.Archive.MaxSize.String()},
				{"Auto create", fmt.Sprint(cfg.Archive.CreateMissing())},
				{"Key strength", fmt.Sprintf("%d bit", cfg.Crypto.KeyStrength)},
				{"Sync interval", cfg.Sync.Interval.String()},
				{"Watch", fmt.Sprint(cfg.Watch.IsEnabled())},
				{"Metrics", fmt.Sprint(cfg.Metrics.Enabled)},
			})
		},
	}
}

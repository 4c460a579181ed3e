package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/internal/cli/output"
	"github.com/marmos91/arcfs/internal/cli/timeutil"
	"github.com/marmos91/arcfs/pkg/fs/driver/tar"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the arcfs version, build information, and supported archive formats.`,
		// Version must work without a valid configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				_, err := fmt.Fprintln(out, Version)
				return err
			}

			_, _ = fmt.Fprintf(out, "arcfs %s\n", Version)
			return output.SimpleTable(out, [][2]string{
				{"Commit", Commit},
				{"Built", timeutil.FormatTimestamp(Date)},
				{"Go version", runtime.Version()},
				{"OS/Arch", runtime.GOOS + "/" + runtime.GOARCH},
				{"Formats", fmt.Sprint(tar.Schemes())},
			})
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Show only version number")
	return cmd
}

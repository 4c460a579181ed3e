package commands

import (
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/arcfs/internal/cli/output"
	"github.com/marmos91/arcfs/internal/cli/timeutil"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/manager"
)

// entryView is the printed form of an archive entry.
type entryView struct {
	Name     string    `json:"name" yaml:"name"`
	Type     string    `json:"type" yaml:"type"`
	Size     int64     `json:"size" yaml:"size"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

type entryList []entryView

func (l entryList) Headers() []string { return []string{"Type", "Size", "Modified", "Name"} }

func (l entryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		size := strconv.FormatInt(e.Size, 10)
		name := e.Name
		if e.Type == "directory" {
			size = "-"
			name += "/"
		}
		rows = append(rows, []string{e.Type, size, timeutil.FormatTime(e.Modified), name})
	}
	return rows
}

func (l entryList) RightAligned() []int { return []int{1} }

func viewOf(info controller.EntryInfo) entryView {
	name := path.Base(info.Name)
	if info.Name == "" {
		name = "."
	}
	return entryView{
		Name:     name,
		Type:     info.Type.String(),
		Size:     info.Size,
		Modified: info.ModTime.UTC(),
	}
}

func newLsCmd(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory inside an archive",
		Long: `List a directory inside an archive, or describe a single entry.

Examples:
  arcfs ls /data/backup.tar.gz
  arcfs ls /data/backup.tar.gz/inner.tar/docs -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			s, err := newSession(opts.cfg, manager.NewDefault(nil))
			if err != nil {
				return err
			}
			c, target, err := s.open(ctx, args[0])
			if err != nil {
				return err
			}

			info, err := c.Stat(ctx, target.Entry)
			if err != nil {
				return err
			}
			list := entryList{viewOf(info)}
			if info.IsDir() {
				children, err := c.ReadDir(ctx, target.Entry)
				if err != nil {
					return err
				}
				list = make(entryList, 0, len(children))
				for _, child := range children {
					list = append(list, viewOf(child))
				}
			}

			if err := output.NewPrinter(cmd.OutOrStdout(), f, false).Print(list); err != nil {
				return err
			}
			return s.commit(ctx)
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format (table|json|yaml)")
	return cmd
}

func newCatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write an archive entry to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(opts.cfg, manager.NewDefault(nil))
			if err != nil {
				return err
			}
			c, entry, err := s.openEntry(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := c.ReadFile(ctx, entry)
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
			return s.commit(ctx)
		},
	}
}

func newPutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <path> [file|-]",
		Short: "Write an archive entry",
		Long: `Write an archive entry from a file or from stdin ("-" or no argument).
Missing archives are created unless archive.auto_create is disabled.

Examples:
  arcfs put /data/backup.tar.gz/docs/readme.txt ./readme.txt
  echo hello | arcfs put /data/notes.tar.raes/hello.txt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readSource(cmd, args[1:])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := newSession(opts.cfg, manager.NewDefault(nil))
			if err != nil {
				return err
			}
			c, entry, err := s.openEntry(ctx, args[0])
			if err != nil {
				return err
			}
			if err := s.requireArchive(ctx, c); err != nil {
				return err
			}
			if err := c.WriteFile(ctx, entry, data, time.Now()); err != nil {
				return err
			}
			return s.commit(ctx)
		},
	}
}

func readSource(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	return data, nil
}

func newMkdirCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory inside an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(opts.cfg, manager.NewDefault(nil))
			if err != nil {
				return err
			}
			c, entry, err := s.openEntry(ctx, args[0])
			if err != nil {
				return err
			}
			if err := s.requireArchive(ctx, c); err != nil {
				return err
			}
			if err := c.Mkdir(ctx, entry); err != nil {
				return err
			}
			return s.commit(ctx)
		},
	}
}

func newRmCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a file or an empty directory inside an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := newSession(opts.cfg, manager.NewDefault(nil))
			if err != nil {
				return err
			}
			c, entry, err := s.openEntry(ctx, args[0])
			if err != nil {
				return err
			}
			if err := c.Remove(ctx, entry); err != nil {
				return err
			}
			return s.commit(ctx)
		},
	}
}

package tar

import (
	gotar "archive/tar"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/fs/archivefs"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// DefaultMaxSize bounds the decoded payload of one archive (256 MiB).
const DefaultMaxSize int64 = 256 << 20

// Codec reads and writes tar streams. Only regular files and directories
// are kept; links and device nodes are skipped on decode.
type Codec struct {
	// MaxSize is the largest total payload accepted on decode. Zero means
	// DefaultMaxSize.
	MaxSize int64
}

var _ controller.Codec[*Entry] = Codec{}

func (c Codec) maxSize() int64 {
	if c.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return c.MaxSize
}

// Decode reads a whole tar stream into a clean file system.
func (c Codec) Decode(r io.Reader) (*archivefs.FileSystem[*Entry], error) {
	var (
		tr      = gotar.NewReader(r)
		entries []*Entry
		budget  = c.maxSize()
	)

	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fserrors.NewCorruptError("", fmt.Errorf("read tar header: %w", err))
		}

		name, err := archivefs.Clean(h.Name)
		if err != nil {
			return nil, fserrors.NewCorruptError(h.Name, err)
		}

		switch h.Typeflag {
		case gotar.TypeDir:
			entries = append(entries, &Entry{name: name, typ: archivefs.EntryDir, header: *h})

		case gotar.TypeReg, gotar.TypeGNUSparse:
			if h.Size > budget {
				return nil, fserrors.NewCorruptError(h.Name,
					fmt.Errorf("archive exceeds maximum size of %d bytes", c.maxSize()))
			}
			data := make([]byte, h.Size)
			if _, err := io.ReadFull(tr, data); err != nil {
				return nil, fserrors.NewCorruptError(h.Name, fmt.Errorf("read tar entry: %w", err))
			}
			budget -= h.Size
			entries = append(entries, &Entry{name: name, typ: archivefs.EntryFile, header: *h, data: data})

		default:
			logger.Debug("Skipping unsupported tar entry",
				logger.KeyPath, h.Name,
				logger.KeyType, string(h.Typeflag))
		}
	}

	fs, err := archivefs.Build(NewEntry, entries...)
	if err != nil {
		return nil, fserrors.NewCorruptError("", err)
	}
	return fs, nil
}

// Encode writes fs as a tar stream, parents before children.
func (c Codec) Encode(w io.Writer, fs *archivefs.FileSystem[*Entry]) error {
	tw := gotar.NewWriter(w)
	err := fs.Walk(func(e *Entry) error {
		if err := tw.WriteHeader(e.encodeHeader()); err != nil {
			return fmt.Errorf("write tar header %s: %w", e.Name(), err)
		}
		if e.Type() == archivefs.EntryFile {
			if _, err := tw.Write(e.data); err != nil {
				return fmt.Errorf("write tar entry %s: %w", e.Name(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func (Codec) Factory() archivefs.Factory[*Entry] { return NewEntry }

func (Codec) NewFile(name string, data []byte, mtime time.Time) *Entry {
	return NewFile(name, data, mtime)
}

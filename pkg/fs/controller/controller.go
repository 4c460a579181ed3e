// Package controller implements the file system controllers of the virtual
// archive tree: the lock binding, the mount state machine, and the archive
// controller combining them with a codec and a backing store.
package controller

import (
	"context"
	"io"
	"time"

	"github.com/marmos91/arcfs/pkg/fs/archivefs"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Controller serves one mount point of the virtual tree.
//
// Entry names are slash-separated paths relative to the archive root; the
// empty name is the root.
type Controller interface {
	MountPoint() mountpoint.MountPoint

	// Parent returns the controller of the enclosing archive, or nil for a
	// top-level mount point.
	Parent() Controller

	Model() *lock.Model

	// ID identifies this controller instance in logs and traces.
	ID() string

	Stat(ctx context.Context, name string) (EntryInfo, error)
	ReadDir(ctx context.Context, name string) ([]EntryInfo, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte, mtime time.Time) error
	Mkdir(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error

	// Sync writes pending changes to the backing store.
	Sync(ctx context.Context, opts SyncOptions) error

	// Invalidate drops a clean mounted file system so that the next access
	// reloads it. A dirty file system is refused.
	Invalidate(ctx context.Context) error

	// Mounted reports whether a file system is loaded.
	Mounted() bool
}

// SyncOptions controls Sync.
type SyncOptions struct {
	// Unmount resets the controller after a successful write.
	Unmount bool
	// Force resets the controller even if writing fails, discarding
	// unwritten changes.
	Force bool
}

// EntryInfo describes one archive entry.
type EntryInfo struct {
	Name    string
	Type    archivefs.EntryType
	Size    int64
	ModTime time.Time
}

// IsDir reports whether the entry is a directory.
func (e EntryInfo) IsDir() bool { return e.Type == archivefs.EntryDir }

func infoOf[E archivefs.Entry](e E) EntryInfo {
	return EntryInfo{Name: e.Name(), Type: e.Type(), Size: e.Size(), ModTime: e.ModTime()}
}

// Entry is an archive entry that carries its payload.
type Entry interface {
	archivefs.Entry
	// Content returns the payload of a file entry. Callers must not modify it.
	Content() []byte
}

// Codec converts between an archive container format and its file system.
type Codec[E Entry] interface {
	// Decode builds a clean file system from the container stream.
	Decode(r io.Reader) (*archivefs.FileSystem[E], error)

	// Encode writes fs as a container stream.
	Encode(w io.Writer, fs *archivefs.FileSystem[E]) error

	// Factory returns the directory factory for new file systems.
	Factory() archivefs.Factory[E]

	// NewFile creates a file entry holding data.
	NewFile(name string, data []byte, mtime time.Time) E
}

// Backing stores the encoded bytes of an archive.
type Backing interface {
	// Open returns the stored bytes. It fails with NotFound if nothing is
	// stored yet.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Create starts replacing the stored bytes. Nothing is visible until
	// the writer commits.
	Create(ctx context.Context) (BackingWriter, error)

	String() string
}

// BackingWriter accumulates a replacement for the stored bytes.
type BackingWriter interface {
	io.Writer
	// Commit makes the written bytes the stored bytes.
	Commit(ctx context.Context) error
	// Abort discards the written bytes.
	Abort() error
}

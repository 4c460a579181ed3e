package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/internal/telemetry"
	"github.com/marmos91/arcfs/pkg/fs/archivefs"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/filter"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// ArchiveConfig holds the collaborators of an Archive.
type ArchiveConfig[E Entry] struct {
	Model   *lock.Model
	Parent  Controller
	Codec   Codec[E]
	Filters []filter.Filter
	Backing Backing

	// ResetKeys, if set, discards the key material cached for the archive.
	// It runs on Invalidate and after a mount fails to retrieve a key, so a
	// rejected password does not stick to the mount point.
	ResetKeys func()
}

// Archive is the controller of one archive file. Its file system is
// mounted lazily on first access.
//
// Queries run at the lock.Escalate boundary: they start under the read lock
// and escalate to the write lock only when the archive must be mounted.
// Mutations take the write lock and mount with autoCreate set.
type Archive[E Entry] struct {
	*MountState[E]

	id      string
	parent  Controller
	codec   Codec[E]
	filters []filter.Filter
	backing Backing
	reset   func()
}

var _ Controller = (*Archive[Entry])(nil)

// NewArchive creates an unmounted archive controller.
func NewArchive[E Entry](cfg ArchiveConfig[E]) (*Archive[E], error) {
	if cfg.Codec == nil {
		return nil, fserrors.NewInvalidArgumentError("codec must not be nil")
	}
	if cfg.Backing == nil {
		return nil, fserrors.NewInvalidArgumentError("backing must not be nil")
	}
	locked, err := NewLocked(cfg.Model)
	if err != nil {
		return nil, err
	}

	a := &Archive[E]{
		id:      uuid.NewString(),
		parent:  cfg.Parent,
		codec:   cfg.Codec,
		filters: cfg.Filters,
		backing: cfg.Backing,
		reset:   cfg.ResetKeys,
	}
	a.MountState, err = NewMountState[E](locked, MounterFunc[E](a.mount))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive[E]) MountPoint() mountpoint.MountPoint { return a.Model().MountPoint() }

func (a *Archive[E]) Parent() Controller { return a.parent }

func (a *Archive[E]) ID() string { return a.id }

// Backing returns the store holding the encoded archive.
func (a *Archive[E]) Backing() Backing { return a.backing }

func (a *Archive[E]) Mounted() bool { return a.FileSystem() != nil }

func (a *Archive[E]) Stat(ctx context.Context, name string) (EntryInfo, error) {
	return lock.Escalate(ctx, a.Model(), func(ctx context.Context) (EntryInfo, error) {
		e, err := a.lookup(ctx, name)
		if err != nil {
			return EntryInfo{}, err
		}
		return infoOf(e), nil
	})
}

func (a *Archive[E]) ReadDir(ctx context.Context, name string) ([]EntryInfo, error) {
	return lock.Escalate(ctx, a.Model(), func(ctx context.Context) ([]EntryInfo, error) {
		fs, err := a.AutoMount(ctx, false)
		if err != nil {
			return nil, err
		}
		entries, err := fs.List(name)
		if err != nil {
			return nil, err
		}
		out := make([]EntryInfo, 0, len(entries))
		for _, e := range entries {
			out = append(out, infoOf(e))
		}
		return out, nil
	})
}

func (a *Archive[E]) ReadFile(ctx context.Context, name string) ([]byte, error) {
	return lock.Escalate(ctx, a.Model(), func(ctx context.Context) ([]byte, error) {
		e, err := a.lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		if e.Type() == archivefs.EntryDir {
			return nil, fserrors.NewIsDirectoryError(name)
		}
		return bytes.Clone(e.Content()), nil
	})
}

func (a *Archive[E]) WriteFile(ctx context.Context, name string, data []byte, mtime time.Time) error {
	return lock.With(ctx, a.WriteLock(), func(ctx context.Context) error {
		fs, err := a.AutoMount(ctx, true)
		if err != nil {
			return err
		}
		return fs.Put(a.codec.NewFile(name, data, mtime))
	})
}

func (a *Archive[E]) Mkdir(ctx context.Context, name string) error {
	return lock.With(ctx, a.WriteLock(), func(ctx context.Context) error {
		fs, err := a.AutoMount(ctx, true)
		if err != nil {
			return err
		}
		_, err = fs.Mkdir(name, time.Now())
		return err
	})
}

func (a *Archive[E]) Remove(ctx context.Context, name string) error {
	return lock.With(ctx, a.WriteLock(), func(ctx context.Context) error {
		fs, err := a.AutoMount(ctx, false)
		if err != nil {
			return err
		}
		return fs.Remove(name)
	})
}

// Sync writes a dirty file system to the backing store.
//
// On success the file system is marked clean and, with opts.Unmount, reset.
// If writing fails the file system stays mounted and dirty, since it holds
// changes the backing store does not; opts.Force resets it anyway. Syncing
// an unmounted archive does nothing.
func (a *Archive[E]) Sync(ctx context.Context, opts SyncOptions) error {
	mp := a.MountPoint()
	ctx, span := telemetry.StartControllerSpan(ctx, telemetry.SpanControllerSync, mp.String(), mp.Scheme(),
		telemetry.Controller(a.id), telemetry.Unmount(opts.Unmount), telemetry.Force(opts.Force))
	defer span.End()

	err := lock.With(ctx, a.WriteLock(), func(ctx context.Context) error {
		fs := a.FileSystem()
		if fs == nil {
			return a.SetFileSystem(ctx, nil)
		}

		telemetry.SetAttributes(ctx, telemetry.Dirty(fs.Dirty()), telemetry.Entries(fs.Len()))
		if fs.Dirty() {
			if err := a.store(ctx, fs); err != nil {
				if opts.Force {
					logger.WarnCtx(ctx, "Sync failed, discarding unwritten changes",
						logger.KeyMountPoint, mp.String(),
						logger.KeyError, err)
					if rerr := a.SetFileSystem(ctx, nil); rerr != nil {
						return rerr
					}
				}
				return err
			}
			fs.MarkClean()
			logger.InfoCtx(ctx, "Archive synchronized",
				logger.KeyMountPoint, mp.String(),
				logger.KeyEntries, fs.Len(),
				logger.KeyController, a.id)
		}

		if opts.Unmount {
			return a.SetFileSystem(ctx, nil)
		}
		return nil
	})
	telemetry.RecordError(ctx, err)
	return err
}

// Invalidate drops a clean file system and the cached key material, so the
// next access reloads the archive. An unsynchronized file system is kept
// and reported as an IllegalTransition.
func (a *Archive[E]) Invalidate(ctx context.Context) error {
	return lock.With(ctx, a.WriteLock(), func(ctx context.Context) error {
		fs := a.FileSystem()
		if fs != nil && fs.Dirty() {
			return fserrors.NewIllegalTransitionError(a.MountPoint().String(),
				"cannot invalidate a file system with unsynchronized changes")
		}
		a.resetKeys()
		if fs == nil {
			return nil
		}
		logger.DebugCtx(ctx, "File system invalidated", logger.KeyMountPoint, a.MountPoint().String())
		return a.SetFileSystem(ctx, nil)
	})
}

func (a *Archive[E]) resetKeys() {
	if a.reset != nil {
		a.reset()
	}
}

func (a *Archive[E]) lookup(ctx context.Context, name string) (E, error) {
	var zero E
	fs, err := a.AutoMount(ctx, false)
	if err != nil {
		return zero, err
	}
	e, ok := fs.Lookup(name)
	if !ok {
		return zero, fserrors.NewNotFoundError(name, "entry")
	}
	return e, nil
}

// mount loads the file system from the backing store. It runs under the
// write lock, called by AutoMount.
func (a *Archive[E]) mount(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[E], error) {
	mp := a.MountPoint()
	ctx, span := telemetry.StartControllerSpan(ctx, telemetry.SpanControllerMount, mp.String(), mp.Scheme(),
		telemetry.Controller(a.id), telemetry.AutoCreate(autoCreate), telemetry.Depth(mp.Depth()))
	defer span.End()

	r, err := a.backing.Open(ctx)
	if err != nil {
		if autoCreate && fserrors.IsNotFound(err) {
			logger.DebugCtx(ctx, "Archive not found, creating", logger.KeyMountPoint, mp.String())
			return archivefs.New(a.codec.Factory()), nil
		}
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	defer func() { _ = r.Close() }()

	src := &sourceReader{r: r}
	fr, err := filter.NewReader(src, a.filters...)
	if err != nil {
		if fserrors.IsKeyRetrieval(err) {
			a.resetKeys()
		}
		err = src.classify(a.backing.String(), err)
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	defer func() { _ = fr.Close() }()

	fs, err := a.codec.Decode(fr)
	if err != nil {
		err = src.classify(a.backing.String(), err)
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	telemetry.SetAttributes(ctx, telemetry.Entries(fs.Len()))
	return fs, nil
}

func (a *Archive[E]) store(ctx context.Context, fs *archivefs.FileSystem[E]) error {
	w, err := a.backing.Create(ctx)
	if err != nil {
		return err
	}
	fw, err := filter.NewWriter(w, a.filters...)
	if err != nil {
		_ = w.Abort()
		return err
	}
	if err := a.codec.Encode(fw, fs); err != nil {
		_ = fw.Close()
		_ = w.Abort()
		return err
	}
	if err := fw.Close(); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Commit(ctx)
}

// sourceReader remembers the first read failure of the backing store, so
// decoding can tell I/O errors from malformed content.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// classify reports err from the filters or the codec. Classified errors,
// such as key retrieval failures, and backing store read failures pass
// through unchanged; anything else means the content is corrupt.
func (s *sourceReader) classify(path string, err error) error {
	if fserrors.CodeOf(err) != 0 {
		return err
	}
	if s.err != nil {
		if errors.Is(err, s.err) {
			return err
		}
		return s.err
	}
	return fserrors.NewCorruptError(path, err)
}

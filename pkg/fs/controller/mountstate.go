package controller

import (
	"context"
	"sync/atomic"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/fs/archivefs"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// State is the mount state of a controller.
type State int

const (
	// StateReset means no file system is loaded.
	StateReset State = iota
	// StateMounted means a file system is loaded.
	StateMounted
)

func (s State) String() string {
	if s == StateMounted {
		return "mounted"
	}
	return "reset"
}

// Mounter loads the file system of an archive.
//
// Mount is only called while the caller holds the write lock. It returns
// the fully built file system; installing it is up to the caller. If the
// backing archive does not exist, Mount returns a root-only file system when
// autoCreate is set and a NotFound error otherwise. Mount must not change
// the mount state itself.
type Mounter[E archivefs.Entry] interface {
	Mount(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[E], error)
}

// MounterFunc adapts a function to Mounter.
type MounterFunc[E archivefs.Entry] func(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[E], error)

// Mount calls f.
func (f MounterFunc[E]) Mount(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[E], error) {
	return f(ctx, autoCreate)
}

// snapshot is the tagged mount state. fs is nil iff state is StateReset.
type snapshot[E archivefs.Entry] struct {
	state State
	fs    *archivefs.FileSystem[E]
}

// MountState is the mount and unmount state machine of one archive.
//
// Transitions happen only through AutoMount and SetFileSystem, and only
// while the write lock is held. The state is published atomically so
// FileSystem never observes a partially installed mount.
type MountState[E archivefs.Entry] struct {
	Locked

	mounter Mounter[E]
	current atomic.Pointer[snapshot[E]]
}

// NewMountState creates a state machine in StateReset.
func NewMountState[E archivefs.Entry](locked Locked, mounter Mounter[E]) (*MountState[E], error) {
	if locked.model == nil {
		return nil, fserrors.NewInvalidArgumentError("lock model must not be nil")
	}
	if mounter == nil {
		return nil, fserrors.NewInvalidArgumentError("mounter must not be nil")
	}
	s := &MountState[E]{Locked: locked, mounter: mounter}
	s.current.Store(&snapshot[E]{state: StateReset})
	return s, nil
}

// State returns the current state.
func (s *MountState[E]) State() State {
	return s.current.Load().state
}

// FileSystem returns the mounted file system, or nil in StateReset. It never
// blocks and never changes state.
func (s *MountState[E]) FileSystem() *archivefs.FileSystem[E] {
	return s.current.Load().fs
}

// AutoMount returns the mounted file system, mounting it first if needed.
//
// When mounted it returns the current file system without calling the
// mounter. When reset it requires the write lock and fails with
// NeedsWriteLock otherwise, leaving the state unchanged. Errors from the
// mounter are returned unchanged and the state stays reset.
func (s *MountState[E]) AutoMount(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[E], error) {
	if fs := s.FileSystem(); fs != nil {
		return fs, nil
	}
	if err := s.CheckWriteLockedBy(ctx); err != nil {
		return nil, err
	}

	mp := s.model.MountPoint().String()
	fs, err := s.mounter.Mount(ctx, autoCreate)
	if err != nil {
		return nil, err
	}
	if fs == nil {
		return nil, fserrors.NewIllegalTransitionError(mp, "mount returned no file system")
	}
	if err := s.SetFileSystem(ctx, fs); err != nil {
		return nil, err
	}

	logger.DebugCtx(ctx, "File system mounted",
		logger.KeyMountPoint, mp,
		logger.KeyEntries, fs.Len(),
		logger.KeyDirty, fs.Dirty())
	return fs, nil
}

// SetFileSystem installs fs (mount) or, with a nil fs, resets (unmount).
//
// Resetting an already reset state is a no-op and does not require any lock.
// Every other call requires the write lock. Installing a file system over a
// mounted one fails with IllegalTransition.
func (s *MountState[E]) SetFileSystem(ctx context.Context, fs *archivefs.FileSystem[E]) error {
	cur := s.current.Load()
	if cur.state == StateReset && fs == nil {
		return nil
	}
	if err := s.CheckWriteLockedBy(ctx); err != nil {
		return err
	}

	switch {
	case cur.state == StateMounted && fs != nil:
		return fserrors.NewIllegalTransitionError(s.model.MountPoint().String(), "file system already mounted")
	case fs == nil:
		s.current.Store(&snapshot[E]{state: StateReset})
	default:
		s.current.Store(&snapshot[E]{state: StateMounted, fs: fs})
	}
	return nil
}

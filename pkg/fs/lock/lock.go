// Package lock provides the per mount point read/write lock used by archive
// controllers.
//
// Go has no goroutine identity, so ownership is carried by the context:
// acquiring a lock returns a derived context that records the hold, and all
// ownership queries (IsWriteLockedBy, CheckWriteLockedBy, HeldMode) inspect
// that context. A context carrying a hold must not be used after the hold is
// released, and must not be handed to another goroutine that runs
// concurrently with the holder.
//
// Locks across mount points are always taken innermost first: a nested
// archive is locked before its parent. Acquiring a lock while the context
// already holds a lock on a strict ancestor fails with a LockOrder error.
package lock

import (
	"context"
	"sync"
	"time"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Mode is the strength of a lock hold.
type Mode int

const (
	// ModeNone means no lock is held.
	ModeNone Mode = iota
	// ModeRead is a shared hold.
	ModeRead
	// ModeWrite is an exclusive hold.
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "none"
	}
}

// Release releases a hold. Calling it more than once is a no-op.
type Release func()

// Model owns the read/write lock of one mount point.
type Model struct {
	mountPoint mountpoint.MountPoint
	rw         sync.RWMutex
	metrics    *Metrics
}

// NewModel creates the lock model for mp. metrics may be nil.
func NewModel(mp mountpoint.MountPoint, metrics *Metrics) *Model {
	return &Model{mountPoint: mp, metrics: metrics}
}

// MountPoint returns the mount point this model scopes.
func (m *Model) MountPoint() mountpoint.MountPoint {
	return m.mountPoint
}

// ReadLock returns the shared lock handle.
func (m *Model) ReadLock() Lock {
	return Lock{model: m, mode: ModeRead}
}

// WriteLock returns the exclusive lock handle.
func (m *Model) WriteLock() Lock {
	return Lock{model: m, mode: ModeWrite}
}

// HeldMode returns the strongest mode ctx holds on m.
func (m *Model) HeldMode(ctx context.Context) Mode {
	mode := ModeNone
	for h := holdsFrom(ctx); h != nil; h = h.next {
		if h.model == m && h.mode > mode {
			mode = h.mode
		}
	}
	return mode
}

// IsWriteLockedBy reports whether ctx holds the write lock of m. It never
// blocks.
func (m *Model) IsWriteLockedBy(ctx context.Context) bool {
	return m.HeldMode(ctx) == ModeWrite
}

// CheckWriteLockedBy returns a NeedsWriteLock error unless ctx holds the
// write lock of m.
func (m *Model) CheckWriteLockedBy(ctx context.Context) error {
	if m.IsWriteLockedBy(ctx) {
		return nil
	}
	return fserrors.NewNeedsWriteLockError(m.mountPoint.String())
}

// Lock is an acquirable handle on a Model in a fixed mode.
type Lock struct {
	model *Model
	mode  Mode
}

// Mode returns the mode this handle acquires.
func (l Lock) Mode() Mode {
	return l.mode
}

// Model returns the model this handle belongs to.
func (l Lock) Model() *Model {
	return l.model
}

// Acquire blocks until the lock is held and returns the context recording
// the hold together with its release function.
//
// Acquisition is reentrant when ctx already holds the write lock, or holds
// the read lock and a read lock is requested; the returned release is then a
// no-op. Requesting the write lock while holding only the read lock never
// blocks and fails with NeedsWriteLock.
func (l Lock) Acquire(ctx context.Context) (context.Context, Release, error) {
	m := l.model

	switch held := m.HeldMode(ctx); {
	case held == ModeWrite, held == ModeRead && l.mode == ModeRead:
		m.metrics.ObserveAcquire(l.mode, ResultReentrant)
		return ctx, func() {}, nil
	case held == ModeRead:
		m.metrics.ObserveAcquire(l.mode, ResultNeedsWrite)
		return ctx, nil, fserrors.NewNeedsWriteLockError(m.mountPoint.String())
	}

	for h := holdsFrom(ctx); h != nil; h = h.next {
		if h.model.mountPoint.IsAncestorOf(m.mountPoint) {
			m.metrics.ObserveAcquire(l.mode, ResultOrderViolation)
			return ctx, nil, fserrors.NewLockOrderError(m.mountPoint.String(), h.model.mountPoint.String())
		}
	}

	if err := ctx.Err(); err != nil {
		m.metrics.ObserveAcquire(l.mode, ResultCanceled)
		return ctx, nil, err
	}

	start := time.Now()
	var unlock func()
	if l.mode == ModeWrite {
		m.rw.Lock()
		unlock = m.rw.Unlock
	} else {
		m.rw.RLock()
		unlock = m.rw.RUnlock
	}
	m.metrics.ObserveWait(l.mode, time.Since(start))
	m.metrics.ObserveAcquire(l.mode, ResultGranted)

	held := &hold{model: m, mode: l.mode, next: holdsFrom(ctx)}
	return context.WithValue(ctx, holdsKey{}, held), sync.OnceFunc(unlock), nil
}

// With acquires l, runs op with the holding context and releases l.
func With(ctx context.Context, l Lock, op func(context.Context) error) error {
	lctx, release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return op(lctx)
}

// hold is one entry of the immutable list of holds recorded in a context.
type hold struct {
	model *Model
	mode  Mode
	next  *hold
}

type holdsKey struct{}

func holdsFrom(ctx context.Context) *hold {
	if ctx == nil {
		return nil
	}
	h, _ := ctx.Value(holdsKey{}).(*hold)
	return h
}

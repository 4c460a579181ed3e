package lock

import (
	"context"
	"errors"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// Escalate runs op under the lock of m, escalating from the read lock to the
// write lock when op signals NeedsWriteLock for m.
//
// This is the retry boundary for m. If ctx already holds a lock on m, op runs
// once with ctx and any NeedsWriteLock propagates to the boundary that took
// that lock. Otherwise op first runs under the read lock; if it reports that
// m must be write locked, the read lock is released and op is re-executed
// from scratch under the write lock. op must not assume that anything it
// observed under the read lock still holds.
//
// NeedsWriteLock signals for other mount points are returned unchanged.
func Escalate[T any](ctx context.Context, m *Model, op func(context.Context) (T, error)) (T, error) {
	if m.HeldMode(ctx) != ModeNone {
		return op(ctx)
	}

	var zero T
	for _, l := range [...]Lock{m.ReadLock(), m.WriteLock()} {
		v, err := run(ctx, l, op)
		if err == nil {
			return v, nil
		}
		if !m.signals(err) {
			return v, err
		}
		if l.mode == ModeWrite {
			return zero, fserrors.NewIllegalTransitionError(m.mountPoint.String(),
				"write lock requested while holding the write lock")
		}
		m.metrics.ObserveEscalation()
	}
	return zero, nil
}

// EscalateErr is Escalate for operations without a result.
func EscalateErr(ctx context.Context, m *Model, op func(context.Context) error) error {
	_, err := Escalate(ctx, m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func run[T any](ctx context.Context, l Lock, op func(context.Context) (T, error)) (T, error) {
	lctx, release, err := l.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return op(lctx)
}

// signals reports whether err asks for the write lock of m specifically.
func (m *Model) signals(err error) bool {
	var fsErr *fserrors.FsError
	if !errors.As(err, &fsErr) {
		return false
	}
	return fsErr.Code == fserrors.ErrNeedsWriteLock && fsErr.Path == m.mountPoint.String()
}

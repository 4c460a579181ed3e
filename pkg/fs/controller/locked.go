package controller

import (
	"context"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/lock"
)

// Locked binds a controller to the lock model of its mount point. It holds
// no state besides the model and performs no I/O.
type Locked struct {
	model *lock.Model
}

// NewLocked binds model. A nil model is an invalid argument.
func NewLocked(model *lock.Model) (Locked, error) {
	if model == nil {
		return Locked{}, fserrors.NewInvalidArgumentError("lock model must not be nil")
	}
	return Locked{model: model}, nil
}

// Model returns the lock model.
func (l Locked) Model() *lock.Model { return l.model }

// ReadLock returns the shared lock of the mount point.
func (l Locked) ReadLock() lock.Lock { return l.model.ReadLock() }

// WriteLock returns the exclusive lock of the mount point.
func (l Locked) WriteLock() lock.Lock { return l.model.WriteLock() }

// IsWriteLockedBy reports whether ctx holds the write lock.
func (l Locked) IsWriteLockedBy(ctx context.Context) bool {
	return l.model.IsWriteLockedBy(ctx)
}

// CheckWriteLockedBy returns a NeedsWriteLock error unless ctx holds the
// write lock.
func (l Locked) CheckWriteLockedBy(ctx context.Context) error {
	return l.model.CheckWriteLockedBy(ctx)
}

package manager

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// Syncing periodically syncs the decorated manager and syncs with unmount
// on Shutdown.
type Syncing struct {
	*Decorating

	interval time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncing wraps m. The loop does not run until Start.
func NewSyncing(m Manager, interval time.Duration) (*Syncing, error) {
	if interval <= 0 {
		return nil, fserrors.NewInvalidArgumentError("sync interval must be positive")
	}
	d, err := NewDecorating(m)
	if err != nil {
		return nil, err
	}
	return &Syncing{
		Decorating: d,
		interval:   interval,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

func (s *Syncing) isNil() bool { return s == nil || s.Decorating == nil }

// Start launches the sync loop. It stops when ctx is done or on Shutdown.
// Calling Start again has no effect.
func (s *Syncing) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logger.Info("Starting auto-sync", "interval", s.interval)
	go s.loop(ctx)
}

func (s *Syncing) loop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx, controller.SyncOptions{}); err != nil {
				logger.Warn("Auto-sync failed", logger.KeyError, err)
			}
		}
	}
}

// Shutdown stops the loop and syncs every controller with unmount.
func (s *Syncing) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	if started {
		select {
		case <-s.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Info("Syncing archives before shutdown", logger.KeyCount, s.Size())
	return s.Sync(ctx, controller.SyncOptions{Unmount: true})
}

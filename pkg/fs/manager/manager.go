// Package manager keeps the registry of controllers of the virtual archive
// tree and the decorators layered on top of it.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/arcfs/internal/logger"
	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Manager owns one controller per mount point.
type Manager interface {
	// Controller returns the controller of mp, creating it and its missing
	// ancestors with d on first use.
	Controller(ctx context.Context, mp mountpoint.MountPoint, d driver.CompositeDriver) (controller.Controller, error)

	// Lookup returns the registered controller of mp without creating it.
	Lookup(mp mountpoint.MountPoint) (controller.Controller, bool)

	// Size returns the number of registered controllers.
	Size() int

	// Controllers returns the registered controllers, deeper mount points
	// first and then by mount point.
	Controllers() []controller.Controller

	// Sync syncs every controller, children before parents. All controllers
	// are visited; the failures are joined. Controllers stay registered
	// after an unmount so that callers holding one keep the single lock
	// model of its mount point, and later syncs still see their changes.
	Sync(ctx context.Context, opts controller.SyncOptions) error
}

// Default is the map backed Manager.
type Default struct {
	mu          sync.Mutex
	controllers map[string]controller.Controller
	lockMetrics *lock.Metrics
}

var _ Manager = (*Default)(nil)

func (m *Default) isNil() bool { return m == nil }

// NewDefault creates an empty manager. lockMetrics may be nil.
func NewDefault(lockMetrics *lock.Metrics) *Default {
	return &Default{
		controllers: make(map[string]controller.Controller),
		lockMetrics: lockMetrics,
	}
}

func (m *Default) Controller(ctx context.Context, mp mountpoint.MountPoint, d driver.CompositeDriver) (controller.Controller, error) {
	if mp.IsZero() {
		return nil, fserrors.NewInvalidArgumentError("mount point must not be empty")
	}
	if d == nil {
		return nil, fserrors.NewInvalidArgumentError("driver must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controllerLocked(ctx, mp, d)
}

func (m *Default) controllerLocked(ctx context.Context, mp mountpoint.MountPoint, d driver.CompositeDriver) (controller.Controller, error) {
	if c, ok := m.controllers[mp.String()]; ok {
		return c, nil
	}

	var parent controller.Controller
	if pmp, ok := mp.Parent(); ok {
		var err error
		if parent, err = m.controllerLocked(ctx, pmp, d); err != nil {
			return nil, err
		}
	}

	drv, err := d.Driver(mp.Scheme())
	if err != nil {
		return nil, err
	}
	c, err := drv.NewController(ctx, mp, lock.NewModel(mp, m.lockMetrics), parent)
	if err != nil {
		return nil, fmt.Errorf("create controller for %s: %w", mp, err)
	}
	if c == nil {
		return nil, fserrors.NewIllegalTransitionError(mp.String(), "driver returned no controller")
	}

	m.controllers[mp.String()] = c
	logger.Debug("Controller registered",
		logger.KeyMountPoint, mp.String(),
		logger.KeyController, c.ID(),
		logger.KeyCount, len(m.controllers))
	return c, nil
}

func (m *Default) Lookup(mp mountpoint.MountPoint) (controller.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[mp.String()]
	return c, ok
}

func (m *Default) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}

func (m *Default) Controllers() []controller.Controller {
	m.mu.Lock()
	out := make([]controller.Controller, 0, len(m.controllers))
	for _, c := range m.controllers {
		out = append(out, c)
	}
	m.mu.Unlock()

	sortControllers(out)
	return out
}

func (m *Default) Sync(ctx context.Context, opts controller.SyncOptions) error {
	var errs []error
	for _, c := range m.Controllers() {
		if err := c.Sync(ctx, opts); err != nil {
			logger.WarnCtx(ctx, "Sync failed",
				logger.KeyMountPoint, c.MountPoint().String(),
				logger.KeyError, err)
			errs = append(errs, fmt.Errorf("sync %s: %w", c.MountPoint(), err))
		}
	}

	return errors.Join(errs...)
}

func sortControllers(cs []controller.Controller) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i].MountPoint(), cs[j].MountPoint()
		if a.Depth() != b.Depth() {
			return a.Depth() > b.Depth()
		}
		return a.String() < b.String()
	})
}

package manager

import (
	"context"
	"fmt"

	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Decorating forwards every call to another Manager. Decorators embed it
// and override what they change.
type Decorating struct {
	manager Manager
}

var _ Manager = (*Decorating)(nil)

// NewDecorating wraps m. A nil m, including a nil pointer to one of the
// managers of this package, is an InvalidArgument error.
func NewDecorating(m Manager) (*Decorating, error) {
	if isNil(m) {
		return nil, fserrors.NewInvalidArgumentError("decorated manager must not be nil")
	}
	return &Decorating{manager: m}, nil
}

// nilable is implemented by the managers of this package to report a nil
// receiver held in a non-nil interface.
type nilable interface {
	isNil() bool
}

func isNil(m Manager) bool {
	if m == nil {
		return true
	}
	n, ok := m.(nilable)
	return ok && n.isNil()
}

func (d *Decorating) isNil() bool { return d == nil }

// Manager returns the decorated manager.
func (d *Decorating) Manager() Manager { return d.manager }

func (d *Decorating) Controller(ctx context.Context, mp mountpoint.MountPoint, drv driver.CompositeDriver) (controller.Controller, error) {
	return d.manager.Controller(ctx, mp, drv)
}

func (d *Decorating) Lookup(mp mountpoint.MountPoint) (controller.Controller, bool) {
	return d.manager.Lookup(mp)
}

func (d *Decorating) Size() int {
	return d.manager.Size()
}

func (d *Decorating) Controllers() []controller.Controller {
	return d.manager.Controllers()
}

func (d *Decorating) Sync(ctx context.Context, opts controller.SyncOptions) error {
	return d.manager.Sync(ctx, opts)
}

func (d *Decorating) String() string {
	return fmt.Sprintf("%T[delegate=%v]", d, d.manager)
}

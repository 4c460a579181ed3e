// Package driver maps mount point schemes to the drivers creating their
// controllers, and resolves host paths into mount point chains.
package driver

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/arcfs/pkg/fs/controller"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Driver creates the controller of a mount point. parent is nil for a
// top-level mount point and the controller of mp's parent otherwise.
type Driver interface {
	NewController(ctx context.Context, mp mountpoint.MountPoint, model *lock.Model, parent controller.Controller) (controller.Controller, error)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(ctx context.Context, mp mountpoint.MountPoint, model *lock.Model, parent controller.Controller) (controller.Controller, error)

// NewController calls f.
func (f DriverFunc) NewController(ctx context.Context, mp mountpoint.MountPoint, model *lock.Model, parent controller.Controller) (controller.Controller, error) {
	return f(ctx, mp, model, parent)
}

// CompositeDriver selects a driver by scheme.
type CompositeDriver interface {
	Driver(scheme string) (Driver, error)
}

// Registry is a CompositeDriver keyed by scheme. Schemes double as file name
// suffixes for Resolve: scheme "tar.gz" claims names ending in ".tar.gz".
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}

var _ CompositeDriver = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]Driver)}
}

// Register adds d under scheme. Registering a scheme twice fails.
func (r *Registry) Register(scheme string, d Driver) error {
	if d == nil {
		return fserrors.NewInvalidArgumentError("cannot register nil driver")
	}
	// Validate the scheme the same way mount points do.
	if _, err := mountpoint.New(scheme, "/", nil); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.drivers[scheme]; exists {
		return fserrors.NewAlreadyExistsError("driver " + scheme)
	}
	r.drivers[scheme] = d
	return nil
}

// Driver returns the driver for scheme, or NotSupported.
func (r *Registry) Driver(scheme string) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[scheme]
	if !ok {
		return nil, fserrors.NewNotSupportedError("no driver for scheme " + scheme)
	}
	return d, nil
}

// Schemes returns the registered schemes sorted by name.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.drivers))
	for s := range r.drivers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// schemeOf returns the scheme whose suffix name carries, preferring the
// longest match so "a.tar.gz" is "tar.gz" rather than a plain "gz".
func (r *Registry) schemeOf(name string) (string, bool) {
	schemes := r.Schemes()
	slices.SortStableFunc(schemes, func(a, b string) int { return len(b) - len(a) })

	lower := strings.ToLower(name)
	for _, s := range schemes {
		suffix := "." + s
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			return s, true
		}
	}
	return "", false
}

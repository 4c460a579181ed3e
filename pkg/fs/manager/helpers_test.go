package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	"github.com/marmos91/arcfs/pkg/fs/driver/tar"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// journal records the calls made on stub controllers, in order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

// stubController is a controller whose outcomes are scripted.
type stubController struct {
	mp     mountpoint.MountPoint
	model  *lock.Model
	parent controller.Controller
	log    *journal

	mu            sync.Mutex
	mounted       bool
	syncErr       error
	invalidateErr error
	syncOpts      []controller.SyncOptions
}

var _ controller.Controller = (*stubController)(nil)

func (s *stubController) MountPoint() mountpoint.MountPoint { return s.mp }
func (s *stubController) Parent() controller.Controller     { return s.parent }
func (s *stubController) Model() *lock.Model                { return s.model }
func (s *stubController) ID() string                        { return "stub-" + s.mp.String() }

func (s *stubController) Stat(context.Context, string) (controller.EntryInfo, error) {
	return controller.EntryInfo{}, nil
}

func (s *stubController) ReadDir(context.Context, string) ([]controller.EntryInfo, error) {
	return nil, nil
}

func (s *stubController) ReadFile(context.Context, string) ([]byte, error) { return nil, nil }

func (s *stubController) WriteFile(context.Context, string, []byte, time.Time) error { return nil }

func (s *stubController) Mkdir(context.Context, string) error { return nil }

func (s *stubController) Remove(context.Context, string) error { return nil }

func (s *stubController) Sync(_ context.Context, opts controller.SyncOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.add("sync " + s.mp.String())
	s.syncOpts = append(s.syncOpts, opts)
	if s.syncErr != nil {
		if opts.Force {
			s.mounted = false
		}
		return s.syncErr
	}
	if opts.Unmount {
		s.mounted = false
	}
	return nil
}

func (s *stubController) Invalidate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.add("invalidate " + s.mp.String())
	if s.invalidateErr != nil {
		return s.invalidateErr
	}
	s.mounted = false
	return nil
}

func (s *stubController) Mounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

func (s *stubController) setMounted(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = v
}

func (s *stubController) syncs() []controller.SyncOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]controller.SyncOptions(nil), s.syncOpts...)
}

// stubDriver creates mounted stub controllers for the given schemes.
type stubDriver struct {
	log     *journal
	mu      sync.Mutex
	created map[string]*stubController
}

func newStubDriver(t *testing.T, schemes ...string) (*stubDriver, *driver.Registry) {
	t.Helper()

	sd := &stubDriver{log: &journal{}, created: make(map[string]*stubController)}
	reg := driver.NewRegistry()
	for _, s := range schemes {
		require.NoError(t, reg.Register(s, driver.DriverFunc(sd.newController)))
	}
	return sd, reg
}

func (d *stubDriver) newController(_ context.Context, mp mountpoint.MountPoint, model *lock.Model, parent controller.Controller) (controller.Controller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.add("create " + mp.String())
	c := &stubController{mp: mp, model: model, parent: parent, log: d.log, mounted: true}
	d.created[mp.String()] = c
	return c, nil
}

func (d *stubDriver) stub(mp mountpoint.MountPoint) *stubController {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[mp.String()]
}

var (
	topA   = mountpoint.MustNew("tar", "/data/a.tar", nil)
	topB   = mountpoint.MustNew("tar", "/data/b.tar", nil)
	innerA = mountpoint.MustNew("tar", "inner.tar", &topA)
	deepA  = mountpoint.MustNew("tar", "deep.tar", &innerA)
)

var mtime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTarManager(t *testing.T) (*Default, *driver.Registry, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	reg := driver.NewRegistry()
	require.NoError(t, tar.Register(reg, fsys, tar.Config{}))
	return NewDefault(nil), reg, fsys
}

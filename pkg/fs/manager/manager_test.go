package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

func mountPoints(cs []controller.Controller) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.MountPoint().String())
	}
	return out
}

func TestDefault_CreatesParentsFirst(t *testing.T) {
	t.Parallel()

	sd, reg := newStubDriver(t, "tar")
	m := NewDefault(nil)
	ctx := context.Background()

	c, err := m.Controller(ctx, deepA, reg)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Size())
	assert.Equal(t, []string{
		"create " + topA.String(),
		"create " + innerA.String(),
		"create " + deepA.String(),
	}, sd.log.snapshot())

	inner, ok := m.Lookup(innerA)
	require.True(t, ok)
	assert.Same(t, inner, c.Parent())
	assert.True(t, c.Model().MountPoint().Equal(deepA))

	again, err := m.Controller(ctx, deepA, reg)
	require.NoError(t, err)
	assert.Same(t, c, again)
	assert.Equal(t, 3, m.Size())

	_, ok = m.Lookup(topB)
	assert.False(t, ok)
}

func TestDefault_ControllerErrors(t *testing.T) {
	t.Parallel()

	_, reg := newStubDriver(t, "tar")
	m := NewDefault(nil)
	ctx := context.Background()

	_, err := m.Controller(ctx, mountpoint.MountPoint{}, reg)
	assert.True(t, fserrors.IsInvalidArgument(err))

	_, err = m.Controller(ctx, topA, nil)
	assert.True(t, fserrors.IsInvalidArgument(err))

	gz := mountpoint.MustNew("tar.gz", "/a.tar.gz", nil)
	_, err = m.Controller(ctx, gz, reg)
	assert.True(t, fserrors.IsNotSupported(err))

	// A nested mount point under an unsupported parent is not registered
	// at all.
	nested := mountpoint.MustNew("tar", "x.tar", &gz)
	_, err = m.Controller(ctx, nested, reg)
	assert.True(t, fserrors.IsNotSupported(err))
	assert.Equal(t, 0, m.Size())

	boom := errors.New("boom")
	failing := driver.NewRegistry()
	require.NoError(t, failing.Register("tar", driver.DriverFunc(
		func(context.Context, mountpoint.MountPoint, *lock.Model, controller.Controller) (controller.Controller, error) {
			return nil, boom
		})))
	_, err = m.Controller(ctx, topA, failing)
	assert.ErrorIs(t, err, boom)

	empty := driver.NewRegistry()
	require.NoError(t, empty.Register("tar", driver.DriverFunc(
		func(context.Context, mountpoint.MountPoint, *lock.Model, controller.Controller) (controller.Controller, error) {
			return nil, nil
		})))
	_, err = m.Controller(ctx, topA, empty)
	assert.True(t, fserrors.IsIllegalTransition(err))
	assert.Equal(t, 0, m.Size())
}

func TestDefault_ControllersOrder(t *testing.T) {
	t.Parallel()

	_, reg := newStubDriver(t, "tar")
	m := NewDefault(nil)
	ctx := context.Background()

	for _, mp := range []mountpoint.MountPoint{topB, deepA} {
		_, err := m.Controller(ctx, mp, reg)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{deepA.String(), innerA.String(), topA.String(), topB.String()},
		mountPoints(m.Controllers()))
}

func TestDefault_SyncChildrenBeforeParents(t *testing.T) {
	t.Parallel()

	sd, reg := newStubDriver(t, "tar")
	m := NewDefault(nil)
	ctx := context.Background()

	for _, mp := range []mountpoint.MountPoint{topB, deepA} {
		_, err := m.Controller(ctx, mp, reg)
		require.NoError(t, err)
	}
	baseline := len(sd.log.snapshot())

	require.NoError(t, m.Sync(ctx, controller.SyncOptions{}))
	assert.Equal(t, []string{
		"sync " + deepA.String(),
		"sync " + innerA.String(),
		"sync " + topA.String(),
		"sync " + topB.String(),
	}, sd.log.snapshot()[baseline:])
	assert.Equal(t, 4, m.Size(), "sync without unmount keeps every controller")
}

func TestDefault_SyncJoinsErrors(t *testing.T) {
	t.Parallel()

	sd, reg := newStubDriver(t, "tar")
	m := NewDefault(nil)
	ctx := context.Background()

	for _, mp := range []mountpoint.MountPoint{topB, deepA} {
		_, err := m.Controller(ctx, mp, reg)
		require.NoError(t, err)
	}

	errInner := errors.New("inner failed")
	errB := errors.New("b failed")
	sd.stub(innerA).syncErr = errInner
	sd.stub(topB).syncErr = errB

	err := m.Sync(ctx, controller.SyncOptions{Unmount: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errInner)
	assert.ErrorIs(t, err, errB)
	assert.Contains(t, err.Error(), innerA.String())

	assert.Equal(t, 4, m.Size(), "unmounted controllers stay registered")
	assert.False(t, sd.stub(deepA).Mounted())
	assert.True(t, sd.stub(innerA).Mounted(), "failed sync keeps the archive mounted")

	sd.stub(innerA).syncErr = nil
	err = m.Sync(ctx, controller.SyncOptions{Unmount: true, Force: true})
	assert.ErrorIs(t, err, errB)
	assert.NotErrorIs(t, err, errInner)
	assert.False(t, sd.stub(topB).Mounted(), "forced sync unmounts even on failure")
	assert.False(t, sd.stub(innerA).Mounted())
}

func TestDecorating_RejectsNilPointers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		m    Manager
	}{
		{name: "default", m: (*Default)(nil)},
		{name: "decorating", m: (*Decorating)(nil)},
		{name: "instrumented", m: (*Instrumented)(nil)},
		{name: "syncing", m: (*Syncing)(nil)},
		{name: "watching", m: (*Watching)(nil)},
		{name: "zero decorator", m: &Syncing{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewDecorating(tt.m)
			assert.True(t, fserrors.IsInvalidArgument(err), "got %v", err)

			_, err = NewInstrumented(tt.m, nil)
			assert.True(t, fserrors.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestDecorating_Forwards(t *testing.T) {
	t.Parallel()

	_, err := NewDecorating(nil)
	assert.True(t, fserrors.IsInvalidArgument(err))

	sd, reg := newStubDriver(t, "tar")
	inner := NewDefault(nil)
	d, err := NewDecorating(inner)
	require.NoError(t, err)
	assert.Same(t, inner, d.Manager())
	ctx := context.Background()

	c, err := d.Controller(ctx, innerA, reg)
	require.NoError(t, err)
	direct, ok := inner.Lookup(innerA)
	require.True(t, ok)
	assert.Same(t, direct, c)

	viaDecorator, ok := d.Lookup(innerA)
	require.True(t, ok)
	assert.Same(t, direct, viaDecorator)
	assert.Equal(t, inner.Size(), d.Size())
	assert.Equal(t, mountPoints(inner.Controllers()), mountPoints(d.Controllers()))

	sd.stub(topA).syncErr = errors.New("boom")
	assert.Equal(t, inner.Sync(ctx, controller.SyncOptions{}).Error(), d.Sync(ctx, controller.SyncOptions{}).Error())
	assert.Contains(t, d.String(), "Decorating")
}

func TestManager_TarArchives(t *testing.T) {
	t.Parallel()

	m, reg, fsys := newTarManager(t)
	ctx := context.Background()

	target, err := reg.Resolve("/data/a.tar.gz/inner.tar/docs/readme.txt")
	require.NoError(t, err)

	c, err := m.Controller(ctx, target.MountPoint, reg)
	require.NoError(t, err)
	require.NoError(t, c.WriteFile(ctx, target.Entry, []byte("hello"), mtime))
	require.NoError(t, m.Sync(ctx, controller.SyncOptions{Unmount: true}))
	assert.False(t, c.Mounted())

	exists, err := afero.Exists(fsys, "/data/a.tar.gz")
	require.NoError(t, err)
	assert.True(t, exists)

	again, err := m.Controller(ctx, target.MountPoint, reg)
	require.NoError(t, err)
	assert.Same(t, c, again)
	data, err := again.ReadFile(ctx, target.Entry)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestManager_HeldControllerSurvivesUnmount(t *testing.T) {
	t.Parallel()

	m, reg, _ := newTarManager(t)
	ctx := context.Background()

	target, err := reg.Resolve("/data/a.tar/a.txt")
	require.NoError(t, err)
	held, err := m.Controller(ctx, target.MountPoint, reg)
	require.NoError(t, err)

	require.NoError(t, held.WriteFile(ctx, "a.txt", []byte("a"), mtime))
	require.NoError(t, m.Sync(ctx, controller.SyncOptions{Unmount: true}))

	// A write through the held controller after the unmount must still be
	// seen by the next sync.
	require.NoError(t, held.WriteFile(ctx, "b.txt", []byte("b"), mtime))
	require.NoError(t, m.Sync(ctx, controller.SyncOptions{Unmount: true}))
	assert.Equal(t, 1, m.Size())
	assert.False(t, held.Mounted(), "the second sync wrote and unmounted it")

	again, err := m.Controller(ctx, target.MountPoint, reg)
	require.NoError(t, err)
	assert.Same(t, held, again)
	assert.Same(t, held.Model(), again.Model(), "one lock model per mount point")

	data, err := again.ReadFile(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

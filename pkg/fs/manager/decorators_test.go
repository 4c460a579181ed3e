package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/arcfs/pkg/fs/controller"
	"github.com/marmos91/arcfs/pkg/fs/driver"
	"github.com/marmos91/arcfs/pkg/fs/driver/tar"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

func TestInstrumented_Metrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	sd, reg := newStubDriver(t, "tar")

	m, err := NewInstrumented(NewDefault(nil), metrics)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Controller(ctx, innerA, reg)
	require.NoError(t, err)
	_, err = m.Controller(ctx, innerA, reg)
	require.NoError(t, err)
	_, err = m.Controller(ctx, mountpoint.MustNew("zip", "/x.zip", nil), reg)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lookupsTotal.WithLabelValues(ResultCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lookupsTotal.WithLabelValues(ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.lookupsTotal.WithLabelValues(ResultError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.controllers))

	require.NoError(t, m.Sync(ctx, controller.SyncOptions{Unmount: true}))
	sd.stub(topA).syncErr = errors.New("boom")
	require.NoError(t, m.Sync(ctx, controller.SyncOptions{}), "nothing left to sync")

	_, err = m.Controller(ctx, topA, reg)
	require.NoError(t, err)
	sd.stub(topA).syncErr = errors.New("boom")
	require.Error(t, m.Sync(ctx, controller.SyncOptions{}))

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.syncTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.syncTotal.WithLabelValues(ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.controllers))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "arcfs_manager_sync_duration_seconds")
}

func TestInstrumented_NilMetrics(t *testing.T) {
	t.Parallel()

	_, err := NewInstrumented(nil, nil)
	assert.True(t, fserrors.IsInvalidArgument(err))

	_, reg := newStubDriver(t, "tar")
	m, err := NewInstrumented(NewDefault(nil), nil)
	require.NoError(t, err)
	_, err = m.Controller(context.Background(), topA, reg)
	require.NoError(t, err)
	require.NoError(t, m.Sync(context.Background(), controller.SyncOptions{}))
}

func TestSyncing_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSyncing(NewDefault(nil), 0)
	assert.True(t, fserrors.IsInvalidArgument(err))
	_, err = NewSyncing(nil, time.Second)
	assert.True(t, fserrors.IsInvalidArgument(err))
}

func TestSyncing_PeriodicAndShutdown(t *testing.T) {
	t.Parallel()

	sd, reg := newStubDriver(t, "tar")
	s, err := NewSyncing(NewDefault(nil), 10*time.Millisecond)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Controller(ctx, topA, reg)
	require.NoError(t, err)

	s.Start(ctx)
	s.Start(ctx)

	stub := sd.stub(topA)
	require.Eventually(t, func() bool { return len(stub.syncs()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	for _, opts := range stub.syncs() {
		assert.False(t, opts.Unmount)
	}

	require.NoError(t, s.Shutdown(ctx))
	syncs := stub.syncs()
	assert.True(t, syncs[len(syncs)-1].Unmount)
	assert.False(t, stub.Mounted())

	// The loop is gone; nothing syncs any more.
	count := len(stub.syncs())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, count, len(stub.syncs()))

	require.NoError(t, s.Shutdown(ctx), "shutdown is idempotent")
}

func TestSyncing_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	sd, reg := newStubDriver(t, "tar")
	s, err := NewSyncing(NewDefault(nil), time.Hour)
	require.NoError(t, err)

	_, err = s.Controller(context.Background(), topA, reg)
	require.NoError(t, err)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, []controller.SyncOptions{{Unmount: true}}, sd.stub(topA).syncs())
}

func TestWatching_HandleInvalidatesDescendantsFirst(t *testing.T) {
	t.Parallel()

	sd, reg := newStubDriver(t, "tar")
	w, err := NewWatching(NewDefault(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	ctx := context.Background()

	for _, mp := range []mountpoint.MountPoint{innerA, topB} {
		_, err := w.Controller(ctx, mp, reg)
		require.NoError(t, err)
	}
	baseline := len(sd.log.snapshot())

	changed := filepath.FromSlash(topA.Path())
	assert.Equal(t, 0, w.handle(ctx, fsnotify.Event{Name: changed, Op: fsnotify.Chmod}))
	assert.Equal(t, 0, w.handle(ctx, fsnotify.Event{Name: filepath.FromSlash("/data/other.tar"), Op: fsnotify.Write}))

	assert.Equal(t, 2, w.handle(ctx, fsnotify.Event{Name: changed, Op: fsnotify.Write}))
	assert.Equal(t, []string{
		"invalidate " + innerA.String(),
		"invalidate " + topA.String(),
	}, sd.log.snapshot()[baseline:])
	assert.True(t, sd.stub(topB).Mounted())

	// Unmounted controllers are skipped; dirty ones refuse and are kept.
	sd.stub(topA).setMounted(true)
	sd.stub(topA).invalidateErr = fserrors.NewIllegalTransitionError(topA.String(), "dirty")
	assert.Equal(t, 0, w.handle(ctx, fsnotify.Event{Name: changed, Op: fsnotify.Rename}))
	assert.True(t, sd.stub(topA).Mounted())
}

func TestWatching_ExternalChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archive := filepath.Join(dir, "a.tar")
	osfs := afero.NewOsFs()

	reg := driver.NewRegistry()
	require.NoError(t, tar.Register(reg, osfs, tar.Config{}))
	mp := mountpoint.MustNew(tar.SchemeTar, filepath.ToSlash(archive), nil)
	ctx := context.Background()

	seed := NewDefault(nil)
	c, err := seed.Controller(ctx, mp, reg)
	require.NoError(t, err)
	require.NoError(t, c.WriteFile(ctx, "f", []byte("v1"), mtime))
	require.NoError(t, seed.Sync(ctx, controller.SyncOptions{Unmount: true}))

	w, err := NewWatching(NewDefault(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	watched, err := w.Controller(ctx, mp, reg)
	require.NoError(t, err)
	data, err := watched.ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	// Another process replaces the archive.
	c, err = seed.Controller(ctx, mp, reg)
	require.NoError(t, err)
	require.NoError(t, c.WriteFile(ctx, "f", []byte("v2"), mtime))
	require.NoError(t, seed.Sync(ctx, controller.SyncOptions{Unmount: true}))

	require.Eventually(t, func() bool { return !watched.Mounted() }, 5*time.Second, 10*time.Millisecond)
	data, err = watched.ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = os.Stat(archive)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

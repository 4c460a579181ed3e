package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/arcfs/pkg/fs/archivefs"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/filter"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

const archivePath = "/data/a.json"

var mtime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newHostArchive(t *testing.T, fsys afero.Fs, filters ...filter.Filter) *Archive[*memEntry] {
	t.Helper()

	mp := mountpoint.MustNew("json", archivePath, nil)
	a, err := NewArchive(ArchiveConfig[*memEntry]{
		Model:   lock.NewModel(mp, nil),
		Codec:   jsonCodec{},
		Filters: filters,
		Backing: NewHostBacking(fsys, archivePath),
	})
	require.NoError(t, err)
	return a
}

func newNestedArchive(t *testing.T, parent Controller, name string) *Archive[*memEntry] {
	t.Helper()

	pmp := parent.MountPoint()
	mp := mountpoint.MustNew("json", name, &pmp)
	a, err := NewArchive(ArchiveConfig[*memEntry]{
		Model:   lock.NewModel(mp, nil),
		Parent:  parent,
		Codec:   jsonCodec{},
		Backing: NewEntryBacking(parent, name),
	})
	require.NoError(t, err)
	return a
}

func TestNewArchive_Validation(t *testing.T) {
	t.Parallel()

	mp := mountpoint.MustNew("json", archivePath, nil)
	backing := NewHostBacking(afero.NewMemMapFs(), archivePath)

	tests := []struct {
		name string
		cfg  ArchiveConfig[*memEntry]
	}{
		{"nil model", ArchiveConfig[*memEntry]{Codec: jsonCodec{}, Backing: backing}},
		{"nil codec", ArchiveConfig[*memEntry]{Model: lock.NewModel(mp, nil), Backing: backing}},
		{"nil backing", ArchiveConfig[*memEntry]{Model: lock.NewModel(mp, nil), Codec: jsonCodec{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArchive(tt.cfg)
			assert.True(t, fserrors.IsInvalidArgument(err))
		})
	}
}

func TestArchive_Identity(t *testing.T) {
	t.Parallel()

	a := newHostArchive(t, afero.NewMemMapFs())
	b := newHostArchive(t, afero.NewMemMapFs())

	assert.Equal(t, "json:"+archivePath, a.MountPoint().String())
	assert.Nil(t, a.Parent())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, archivePath, a.Backing().String())
}

func TestArchive_QueryMissingArchive(t *testing.T) {
	t.Parallel()

	a := newHostArchive(t, afero.NewMemMapFs())
	ctx := context.Background()

	_, err := a.Stat(ctx, "")
	assert.True(t, fserrors.IsNotFound(err))
	_, err = a.ReadDir(ctx, "")
	assert.True(t, fserrors.IsNotFound(err))
	assert.True(t, fserrors.IsNotFound(a.Remove(ctx, "x")))
	assert.False(t, a.Mounted())
	assert.Equal(t, StateReset, a.State())
}

func TestArchive_WriteSyncReload(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	ctx := context.Background()

	a := newHostArchive(t, fsys)
	require.NoError(t, a.WriteFile(ctx, "docs/readme.txt", []byte("hello"), mtime))
	require.NoError(t, a.Mkdir(ctx, "empty"))
	assert.True(t, a.Mounted())

	data, err := a.ReadFile(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	exists, err := afero.Exists(fsys, archivePath)
	require.NoError(t, err)
	assert.False(t, exists, "nothing is stored before sync")

	require.NoError(t, a.Sync(ctx, SyncOptions{Unmount: true}))
	assert.False(t, a.Mounted())

	exists, err = afero.Exists(fsys, archivePath)
	require.NoError(t, err)
	assert.True(t, exists)

	b := newHostArchive(t, fsys)
	info, err := b.Stat(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, archivefs.EntryFile, info.Type)
	assert.Equal(t, int64(5), info.Size)
	assert.True(t, mtime.Equal(info.ModTime))

	entries, err := b.ReadDir(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs", entries[0].Name)
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "empty", entries[1].Name)

	_, err = b.ReadFile(ctx, "docs")
	assert.True(t, fserrors.IsDirectory(err))
	_, err = b.ReadFile(ctx, "missing")
	assert.True(t, fserrors.IsNotFound(err))
}

func TestArchive_ReadFileReturnsCopy(t *testing.T) {
	t.Parallel()

	a := newHostArchive(t, afero.NewMemMapFs())
	ctx := context.Background()
	require.NoError(t, a.WriteFile(ctx, "f", []byte("abc"), mtime))

	data, err := a.ReadFile(ctx, "f")
	require.NoError(t, err)
	data[0] = 'z'

	again, err := a.ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestArchive_SyncUnmountedIsNoop(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	a := newHostArchive(t, fsys)

	require.NoError(t, a.Sync(context.Background(), SyncOptions{Unmount: true}))
	exists, err := afero.Exists(fsys, archivePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestArchive_SyncCleanSkipsWrite(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	ctx := context.Background()
	a := newHostArchive(t, fsys)
	require.NoError(t, a.WriteFile(ctx, "f", []byte("1"), mtime))
	require.NoError(t, a.Sync(ctx, SyncOptions{}))
	assert.False(t, a.FileSystem().Dirty())

	// Replace the stored archive behind the controller's back; a clean sync
	// must not overwrite it.
	require.NoError(t, afero.WriteFile(fsys, archivePath, []byte("[]"), 0o644))
	require.NoError(t, a.Sync(ctx, SyncOptions{}))

	stored, err := afero.ReadFile(fsys, archivePath)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(stored))
}

func TestArchive_SyncFailureKeepsChanges(t *testing.T) {
	t.Parallel()

	mp := mountpoint.MustNew("json", archivePath, nil)
	a, err := NewArchive(ArchiveConfig[*memEntry]{
		Model:   lock.NewModel(mp, nil),
		Codec:   jsonCodec{},
		Backing: failingBacking{},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, a.WriteFile(ctx, "f", []byte("pending"), mtime))

	err = a.Sync(ctx, SyncOptions{Unmount: true})
	assert.ErrorIs(t, err, errBackingDown)
	require.True(t, a.Mounted())
	assert.True(t, a.FileSystem().Dirty())

	data, err := a.ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "pending", string(data))

	err = a.Sync(ctx, SyncOptions{Unmount: true, Force: true})
	assert.ErrorIs(t, err, errBackingDown)
	assert.False(t, a.Mounted())
	assert.Equal(t, StateReset, a.State())
}

func TestArchive_Invalidate(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	ctx := context.Background()
	a := newHostArchive(t, fsys)

	require.NoError(t, a.Invalidate(ctx), "invalidating an unmounted archive is a no-op")

	require.NoError(t, a.WriteFile(ctx, "f", []byte("v1"), mtime))
	err := a.Invalidate(ctx)
	assert.True(t, fserrors.IsIllegalTransition(err))
	assert.True(t, a.Mounted())

	require.NoError(t, a.Sync(ctx, SyncOptions{}))

	other := newHostArchive(t, fsys)
	require.NoError(t, other.WriteFile(ctx, "f", []byte("v2"), mtime))
	require.NoError(t, other.Sync(ctx, SyncOptions{Unmount: true}))

	data, err := a.ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data), "mounted state is cached")

	require.NoError(t, a.Invalidate(ctx))
	assert.False(t, a.Mounted())

	data, err = a.ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestArchive_CorruptArchive(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, archivePath, []byte("not json"), 0o644))

	a := newHostArchive(t, fsys)
	_, err := a.Stat(context.Background(), "")
	assert.True(t, fserrors.IsCorrupt(err))
	assert.False(t, a.Mounted())

	// Writing does not paper over an unreadable archive.
	err = a.WriteFile(context.Background(), "f", nil, mtime)
	assert.True(t, fserrors.IsCorrupt(err))
}

func TestArchive_ReadFailureIsNotCorrupt(t *testing.T) {
	t.Parallel()

	errRead := errors.New("device read failed")
	backing := readerBacking{open: func() io.Reader { return iotest.ErrReader(errRead) }}
	mp := mountpoint.MustNew("json", archivePath, nil)

	tests := []struct {
		name    string
		filters []filter.Filter
	}{
		{name: "plain"},
		{name: "gzip", filters: []filter.Filter{filter.Gzip{}}},
		{name: "zstd", filters: []filter.Filter{filter.Zstd{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, err := NewArchive(ArchiveConfig[*memEntry]{
				Model:   lock.NewModel(mp, nil),
				Codec:   jsonCodec{},
				Filters: tt.filters,
				Backing: backing,
			})
			require.NoError(t, err)

			_, err = a.Stat(context.Background(), "")
			assert.ErrorIs(t, err, errRead)
			assert.False(t, fserrors.IsCorrupt(err), "got %v", err)
			assert.False(t, a.Mounted())
		})
	}
}

func TestArchive_ResetKeys(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, archivePath, []byte("sealed"), 0o644))
	ctx := context.Background()

	var resets atomic.Int32
	newArchive := func(filters ...filter.Filter) *Archive[*memEntry] {
		a, err := NewArchive(ArchiveConfig[*memEntry]{
			Model:     lock.NewModel(mountpoint.MustNew("json", archivePath, nil), nil),
			Codec:     jsonCodec{},
			Filters:   filters,
			Backing:   NewHostBacking(fsys, archivePath),
			ResetKeys: func() { resets.Add(1) },
		})
		require.NoError(t, err)
		return a
	}

	a := newArchive(lockedFilter{})
	_, err := a.Stat(ctx, "")
	assert.True(t, fserrors.IsKeyRetrieval(err), "got %v", err)
	assert.False(t, a.Mounted())
	assert.Equal(t, int32(1), resets.Load(), "a failed key retrieval resets the keys")

	require.NoError(t, a.Invalidate(ctx))
	assert.Equal(t, int32(2), resets.Load(), "invalidating an unmounted archive still resets the keys")

	require.NoError(t, fsys.Remove(archivePath))
	dirty := newArchive()
	require.NoError(t, dirty.WriteFile(ctx, "f", []byte("x"), mtime))
	assert.True(t, fserrors.IsIllegalTransition(dirty.Invalidate(ctx)))
	assert.Equal(t, int32(2), resets.Load(), "a refused invalidation keeps the keys")
}

func TestArchive_BackingIsDirectory(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll(archivePath, 0o755))

	a := newHostArchive(t, fsys)
	_, err := a.Stat(context.Background(), "")
	assert.True(t, fserrors.IsDirectory(err))
}

func TestArchive_Filters(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	ctx := context.Background()

	a := newHostArchive(t, fsys, filter.Gzip{})
	require.NoError(t, a.WriteFile(ctx, "f", []byte("compressed"), mtime))
	require.NoError(t, a.Sync(ctx, SyncOptions{Unmount: true}))

	stored, err := afero.ReadFile(fsys, archivePath)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(stored), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, stored[:2])

	data, err := newHostArchive(t, fsys, filter.Gzip{}).ReadFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "compressed", string(data))

	// Reading without the filter sees garbage.
	_, err = newHostArchive(t, fsys).ReadFile(ctx, "f")
	assert.True(t, fserrors.IsCorrupt(err))
}

func TestArchive_Remove(t *testing.T) {
	t.Parallel()

	a := newHostArchive(t, afero.NewMemMapFs())
	ctx := context.Background()
	require.NoError(t, a.WriteFile(ctx, "dir/f", []byte("x"), mtime))

	assert.True(t, fserrors.IsNotEmpty(a.Remove(ctx, "dir")))
	require.NoError(t, a.Remove(ctx, "dir/f"))
	require.NoError(t, a.Remove(ctx, "dir"))

	_, err := a.Stat(ctx, "dir")
	assert.True(t, fserrors.IsNotFound(err))
}

func TestArchive_Nested(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	ctx := context.Background()

	parent := newHostArchive(t, fsys)
	child := newNestedArchive(t, parent, "inner/b.json")
	assert.Same(t, parent, child.Parent())
	assert.Equal(t, "json:json:/data/a.json!/inner/b.json", child.MountPoint().String())

	require.NoError(t, child.WriteFile(ctx, "deep.txt", []byte("nested"), mtime))
	assert.False(t, parent.Mounted(), "parent is untouched until the child syncs")

	require.NoError(t, child.Sync(ctx, SyncOptions{Unmount: true}))
	info, err := parent.Stat(ctx, "inner/b.json")
	require.NoError(t, err)
	assert.Equal(t, archivefs.EntryFile, info.Type)
	assert.True(t, parent.FileSystem().Dirty())

	require.NoError(t, parent.Sync(ctx, SyncOptions{Unmount: true}))

	reparent := newHostArchive(t, fsys)
	rechild := newNestedArchive(t, reparent, "inner/b.json")
	data, err := rechild.ReadFile(ctx, "deep.txt")
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
	assert.True(t, reparent.Mounted())
}

func TestArchive_NestedLockOrder(t *testing.T) {
	t.Parallel()

	parent := newHostArchive(t, afero.NewMemMapFs())
	child := newNestedArchive(t, parent, "inner/b.json")

	ctx, release, err := parent.ReadLock().Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = child.Stat(ctx, "")
	assert.True(t, fserrors.IsLockOrder(err))
}

func TestArchive_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	ctx := context.Background()

	seed := newHostArchive(t, fsys)
	require.NoError(t, seed.WriteFile(ctx, "f", []byte("shared"), mtime))
	require.NoError(t, seed.Sync(ctx, SyncOptions{Unmount: true}))

	a := newHostArchive(t, fsys)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := a.ReadFile(ctx, "f")
			assert.NoError(t, err)
			assert.Equal(t, "shared", string(data))
		}()
	}
	wg.Wait()
	assert.True(t, a.Mounted())
}

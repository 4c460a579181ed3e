package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/arcfs/pkg/fs/archivefs"
	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/lock"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
	"github.com/stretchr/testify/require"
)

// memEntry is a minimal archive entry used by the controller tests.
type memEntry struct {
	N string              `json:"name"`
	T archivefs.EntryType `json:"type"`
	D []byte              `json:"data,omitempty"`
	M time.Time           `json:"mtime"`
}

func (e *memEntry) Name() string              { return e.N }
func (e *memEntry) Type() archivefs.EntryType { return e.T }
func (e *memEntry) Size() int64               { return int64(len(e.D)) }
func (e *memEntry) ModTime() time.Time        { return e.M }
func (e *memEntry) Content() []byte           { return e.D }

func memFactory(name string, typ archivefs.EntryType, mtime time.Time) *memEntry {
	return &memEntry{N: name, T: typ, M: mtime}
}

// jsonCodec stores the entry list as JSON.
type jsonCodec struct{}

func (jsonCodec) Decode(r io.Reader) (*archivefs.FileSystem[*memEntry], error) {
	var entries []*memEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, err
	}
	return archivefs.Build(memFactory, entries...)
}

func (jsonCodec) Encode(w io.Writer, fs *archivefs.FileSystem[*memEntry]) error {
	var entries []*memEntry
	if err := fs.Walk(func(e *memEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(entries)
}

func (jsonCodec) Factory() archivefs.Factory[*memEntry] { return memFactory }

func (jsonCodec) NewFile(name string, data []byte, mtime time.Time) *memEntry {
	return &memEntry{N: name, T: archivefs.EntryFile, D: bytes.Clone(data), M: mtime}
}

// countingMounter returns scripted results and counts invocations.
type countingMounter struct {
	calls  atomic.Int32
	mount  func(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[*memEntry], error)
	during func()
}

func (m *countingMounter) Mount(ctx context.Context, autoCreate bool) (*archivefs.FileSystem[*memEntry], error) {
	m.calls.Add(1)
	if m.during != nil {
		m.during()
	}
	if m.mount != nil {
		return m.mount(ctx, autoCreate)
	}
	if !autoCreate {
		return nil, fserrors.NewNotFoundError("/a.json", "archive")
	}
	return archivefs.New(memFactory), nil
}

// failingBacking fails every write and reports nothing stored.
type failingBacking struct{}

var errBackingDown = errors.New("backing store unavailable")

func (failingBacking) Open(context.Context) (io.ReadCloser, error) {
	return nil, fserrors.NewNotFoundError("failing", "archive")
}

func (failingBacking) Create(context.Context) (BackingWriter, error) {
	return nil, errBackingDown
}

func (failingBacking) String() string { return "failing" }

// readerBacking serves the reader returned by open and refuses writes.
type readerBacking struct {
	open func() io.Reader
}

func (b readerBacking) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(b.open()), nil
}

func (readerBacking) Create(context.Context) (BackingWriter, error) {
	return nil, errBackingDown
}

func (readerBacking) String() string { return "reader" }

// lockedFilter fails every read with a key retrieval error.
type lockedFilter struct{}

func (lockedFilter) Name() string { return "locked" }

func (lockedFilter) NewReader(io.Reader) (io.ReadCloser, error) {
	return nil, fserrors.NewKeyRetrievalError("locked", errors.New("no password"))
}

func (lockedFilter) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func newState(t *testing.T, m Mounter[*memEntry]) *MountState[*memEntry] {
	t.Helper()

	model := lock.NewModel(mountpoint.MustNew("json", "/a.json", nil), nil)
	locked, err := NewLocked(model)
	require.NoError(t, err)
	s, err := NewMountState[*memEntry](locked, m)
	require.NoError(t, err)
	return s
}

func writeLocked(t *testing.T, l Locked) (context.Context, lock.Release) {
	t.Helper()

	ctx, release, err := l.WriteLock().Acquire(context.Background())
	require.NoError(t, err)
	return ctx, release
}

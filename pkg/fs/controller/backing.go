package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// HostBacking stores an archive as a file on an afero file system.
// Replacement is atomic: bytes go to a temporary file in the same directory
// which is renamed over the target on commit.
type HostBacking struct {
	fs   afero.Fs
	path string
}

// NewHostBacking creates a backing for the file at path on fsys.
func NewHostBacking(fsys afero.Fs, path string) *HostBacking {
	return &HostBacking{fs: fsys, path: filepath.Clean(path)}
}

// Path returns the host path of the archive file.
func (h *HostBacking) Path() string { return h.path }

// Fs returns the file system holding the archive file.
func (h *HostBacking) Fs() afero.Fs { return h.fs }

func (h *HostBacking) String() string { return h.path }

func (h *HostBacking) Open(_ context.Context) (io.ReadCloser, error) {
	info, err := h.fs.Stat(h.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserrors.NewNotFoundError(h.path, "archive")
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fserrors.NewIsDirectoryError(h.path)
	}
	return h.fs.Open(h.path)
}

func (h *HostBacking) Create(_ context.Context) (BackingWriter, error) {
	dir := filepath.Dir(h.path)
	if err := h.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := afero.TempFile(h.fs, dir, "."+filepath.Base(h.path)+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &hostWriter{fs: h.fs, tmp: tmp, target: h.path}, nil
}

type hostWriter struct {
	fs     afero.Fs
	tmp    afero.File
	target string
}

func (w *hostWriter) Write(p []byte) (int, error) {
	return w.tmp.Write(p)
}

func (w *hostWriter) Commit(_ context.Context) error {
	if err := w.tmp.Sync(); err != nil {
		_ = w.Abort()
		return err
	}
	if err := w.tmp.Close(); err != nil {
		_ = w.fs.Remove(w.tmp.Name())
		return err
	}
	if err := w.fs.Rename(w.tmp.Name(), w.target); err != nil {
		_ = w.fs.Remove(w.tmp.Name())
		return err
	}
	return nil
}

func (w *hostWriter) Abort() error {
	_ = w.tmp.Close()
	return w.fs.Remove(w.tmp.Name())
}

// EntryBacking stores a nested archive as a file entry of its parent.
type EntryBacking struct {
	parent Controller
	name   string
}

// NewEntryBacking creates a backing for the entry name inside parent.
func NewEntryBacking(parent Controller, name string) *EntryBacking {
	return &EntryBacking{parent: parent, name: name}
}

func (e *EntryBacking) String() string {
	return e.parent.MountPoint().String() + "!/" + e.name
}

func (e *EntryBacking) Open(ctx context.Context) (io.ReadCloser, error) {
	data, err := e.parent.ReadFile(ctx, e.name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (e *EntryBacking) Create(_ context.Context) (BackingWriter, error) {
	return &entryWriter{backing: e}, nil
}

type entryWriter struct {
	backing *EntryBacking
	buf     bytes.Buffer
}

func (w *entryWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *entryWriter) Commit(ctx context.Context) error {
	return w.backing.parent.WriteFile(ctx, w.backing.name, w.buf.Bytes(), time.Now())
}

func (w *entryWriter) Abort() error {
	w.buf.Reset()
	return nil
}

// Package archivefs implements the in-memory directory and entry table of a
// mounted archive.
//
// Paths are slash-separated and relative to the archive root; the root
// itself is the empty path. A FileSystem is not safe for concurrent use on
// its own: callers hold the read lock of the owning mount point for queries
// and the write lock for mutations.
package archivefs

import (
	"path"
	"sort"
	"strings"
	"time"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// EntryType distinguishes files from directories.
type EntryType int

const (
	// EntryFile is a regular file.
	EntryFile EntryType = iota
	// EntryDir is a directory.
	EntryDir
)

func (t EntryType) String() string {
	if t == EntryDir {
		return "directory"
	}
	return "file"
}

// Entry is the metadata of one archive entry. Name returns the full path
// inside the archive.
type Entry interface {
	Name() string
	Type() EntryType
	Size() int64
	ModTime() time.Time
}

// Factory creates the entry used for directories the file system has to
// synthesize, such as the virtual root or missing parents.
type Factory[E Entry] func(name string, typ EntryType, mtime time.Time) E

// FileSystem is the entry table of one archive.
type FileSystem[E Entry] struct {
	factory  Factory[E]
	entries  map[string]E
	children map[string]map[string]struct{}
	dirty    bool
}

// New creates a file system containing only a virtual root directory whose
// modification time is the current time. The result is dirty, since no
// backing archive holds it yet.
func New[E Entry](factory Factory[E]) *FileSystem[E] {
	fs := newEmpty(factory, time.Now())
	fs.dirty = true
	return fs
}

// Build creates a clean file system from decoded entries. Missing parent
// directories are synthesized. Duplicate paths keep the last entry.
func Build[E Entry](factory Factory[E], entries ...E) (*FileSystem[E], error) {
	rootTime := time.Time{}
	for _, e := range entries {
		if e.ModTime().After(rootTime) {
			rootTime = e.ModTime()
		}
	}
	fs := newEmpty(factory, rootTime)

	for _, e := range entries {
		name, err := Clean(e.Name())
		if err != nil {
			return nil, err
		}
		if name == "" {
			if e.Type() != EntryDir {
				return nil, fserrors.NewCorruptError("/", nil)
			}
			fs.entries[""] = e
			continue
		}
		if err := fs.insert(name, e); err != nil {
			return nil, err
		}
	}
	fs.dirty = false
	return fs, nil
}

func newEmpty[E Entry](factory Factory[E], rootTime time.Time) *FileSystem[E] {
	return &FileSystem[E]{
		factory:  factory,
		entries:  map[string]E{"": factory("", EntryDir, rootTime)},
		children: map[string]map[string]struct{}{"": {}},
	}
}

// Clean normalizes an entry path. Leading slashes are dropped; paths that
// escape the root are rejected.
func Clean(p string) (string, error) {
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return "", nil
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return "", nil
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fserrors.NewInvalidArgumentError("entry path escapes the archive root: " + p)
	}
	return cleaned, nil
}

// Factory returns the directory factory of fs.
func (fs *FileSystem[E]) Factory() Factory[E] {
	return fs.factory
}

// Root returns the root directory entry.
func (fs *FileSystem[E]) Root() E {
	return fs.entries[""]
}

// Lookup returns the entry at p.
func (fs *FileSystem[E]) Lookup(p string) (E, bool) {
	name, err := Clean(p)
	if err != nil {
		var zero E
		return zero, false
	}
	e, ok := fs.entries[name]
	return e, ok
}

// List returns the children of the directory at p sorted by name.
func (fs *FileSystem[E]) List(p string) ([]E, error) {
	name, err := Clean(p)
	if err != nil {
		return nil, err
	}
	e, ok := fs.entries[name]
	if !ok {
		return nil, fserrors.NewNotFoundError(name, "directory")
	}
	if e.Type() != EntryDir {
		return nil, fserrors.NewNotDirectoryError(name)
	}

	names := make([]string, 0, len(fs.children[name]))
	for child := range fs.children[name] {
		names = append(names, child)
	}
	sort.Strings(names)

	out := make([]E, 0, len(names))
	for _, child := range names {
		out = append(out, fs.entries[join(name, child)])
	}
	return out, nil
}

// Put adds or replaces the entry at e.Name(). Missing parents are created
// with the modification time of e. A directory cannot be replaced.
func (fs *FileSystem[E]) Put(e E) error {
	name, err := Clean(e.Name())
	if err != nil {
		return err
	}
	if name == "" {
		return fserrors.NewInvalidArgumentError("cannot replace the archive root")
	}
	if existing, ok := fs.entries[name]; ok {
		if existing.Type() == EntryDir {
			return fserrors.NewIsDirectoryError(name)
		}
		if e.Type() == EntryDir {
			return fserrors.NewAlreadyExistsError(name)
		}
	}
	if err := fs.insert(name, e); err != nil {
		return err
	}
	fs.dirty = true
	return nil
}

// Mkdir creates the directory p and any missing parents.
func (fs *FileSystem[E]) Mkdir(p string, mtime time.Time) (E, error) {
	var zero E
	name, err := Clean(p)
	if err != nil {
		return zero, err
	}
	if _, ok := fs.entries[name]; ok {
		return zero, fserrors.NewAlreadyExistsError(name)
	}
	dir := fs.factory(name, EntryDir, mtime)
	if err := fs.insert(name, dir); err != nil {
		return zero, err
	}
	fs.dirty = true
	return dir, nil
}

// Remove deletes the entry at p. Non-empty directories and the root are
// refused.
func (fs *FileSystem[E]) Remove(p string) error {
	name, err := Clean(p)
	if err != nil {
		return err
	}
	if name == "" {
		return fserrors.NewInvalidArgumentError("cannot remove the archive root")
	}
	e, ok := fs.entries[name]
	if !ok {
		return fserrors.NewNotFoundError(name, "entry")
	}
	if e.Type() == EntryDir && len(fs.children[name]) > 0 {
		return fserrors.NewNotEmptyError(name)
	}

	delete(fs.entries, name)
	delete(fs.children, name)
	dir, base := split(name)
	delete(fs.children[dir], base)
	fs.dirty = true
	return nil
}

// Walk calls fn for every entry except the root, parents before children and
// siblings in name order. A non-nil error from fn stops the walk.
func (fs *FileSystem[E]) Walk(fn func(E) error) error {
	return fs.walk("", fn)
}

func (fs *FileSystem[E]) walk(dir string, fn func(E) error) error {
	names := make([]string, 0, len(fs.children[dir]))
	for child := range fs.children[dir] {
		names = append(names, child)
	}
	sort.Strings(names)

	for _, child := range names {
		name := join(dir, child)
		e := fs.entries[name]
		if err := fn(e); err != nil {
			return err
		}
		if e.Type() == EntryDir {
			if err := fs.walk(name, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of entries including the root.
func (fs *FileSystem[E]) Len() int {
	return len(fs.entries)
}

// Dirty reports whether fs changed since it was built or last marked clean.
func (fs *FileSystem[E]) Dirty() bool {
	return fs.dirty
}

// MarkClean records that fs matches its backing archive.
func (fs *FileSystem[E]) MarkClean() {
	fs.dirty = false
}

// insert stores e at the cleaned, non-root name, synthesizing parents.
func (fs *FileSystem[E]) insert(name string, e E) error {
	dir, base := split(name)
	if err := fs.ensureDir(dir, e.ModTime()); err != nil {
		return err
	}

	if existing, ok := fs.entries[name]; ok && existing.Type() == EntryDir && e.Type() != EntryDir {
		return fserrors.NewIsDirectoryError(name)
	}
	fs.entries[name] = e
	fs.children[dir][base] = struct{}{}
	if e.Type() == EntryDir {
		if _, ok := fs.children[name]; !ok {
			fs.children[name] = map[string]struct{}{}
		}
	}
	return nil
}

func (fs *FileSystem[E]) ensureDir(name string, mtime time.Time) error {
	if e, ok := fs.entries[name]; ok {
		if e.Type() != EntryDir {
			return fserrors.NewNotDirectoryError(name)
		}
		return nil
	}
	return fs.insert(name, fs.factory(name, EntryDir, mtime))
}

func split(name string) (dir, base string) {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

func join(dir, base string) string {
	if dir == "" {
		return base
	}
	return dir + "/" + base
}

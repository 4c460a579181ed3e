// Package mountpoint defines the immutable identifier of a location in the
// virtual archive tree.
//
// A top-level mount point names an archive file on the host:
//
//	tar.gz:/data/backup.tgz
//
// A nested mount point names an archive stored as an entry of its parent:
//
//	tar:tar.gz:/data/backup.tgz!/inner/logs.tar
//
// The string form is stable and is used as the registry key by managers.
package mountpoint

import (
	"path"
	"strings"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
)

// Separator divides a parent mount point from the entry path of a nested one.
const Separator = "!/"

// MountPoint identifies one archive in the virtual tree. The zero value is
// not a valid mount point; use New or Parse.
type MountPoint struct {
	scheme string
	path   string
	parent *MountPoint
	key    string
}

// New creates a mount point. For a top-level mount point parent is nil and
// p must be an absolute slash-separated host path. For a nested one p is the
// entry path inside parent. No path may contain Separator, so the string
// form parses back unambiguously.
func New(scheme, p string, parent *MountPoint) (MountPoint, error) {
	if err := validateScheme(scheme); err != nil {
		return MountPoint{}, err
	}

	if parent != nil && parent.IsZero() {
		return MountPoint{}, fserrors.NewInvalidArgumentError("parent mount point is not initialized")
	}

	if parent == nil {
		if !path.IsAbs(p) {
			return MountPoint{}, fserrors.NewInvalidArgumentError("top-level mount point path must be absolute: " + p)
		}
		p = path.Clean(p)
		if strings.Contains(p, Separator) {
			return MountPoint{}, fserrors.NewInvalidArgumentError("mount point path must not contain " + Separator + ": " + p)
		}
	} else {
		cleaned, err := cleanEntryPath(p)
		if err != nil {
			return MountPoint{}, err
		}
		p = cleaned
	}

	mp := MountPoint{scheme: scheme, path: p}
	if parent != nil {
		pc := *parent
		mp.parent = &pc
		mp.key = scheme + ":" + pc.key + Separator + p
	} else {
		mp.key = scheme + ":" + p
	}
	return mp, nil
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew(scheme, p string, parent *MountPoint) MountPoint {
	mp, err := New(scheme, p, parent)
	if err != nil {
		panic(err)
	}
	return mp
}

// Parse parses the string form produced by String.
func Parse(s string) (MountPoint, error) {
	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return MountPoint{}, fserrors.NewInvalidArgumentError("mount point has no scheme: " + s)
	}

	i := strings.LastIndex(rest, Separator)
	if i < 0 {
		return New(scheme, rest, nil)
	}

	parent, err := Parse(rest[:i])
	if err != nil {
		return MountPoint{}, err
	}
	return New(scheme, rest[i+len(Separator):], &parent)
}

// String returns the stable string form of the mount point.
func (mp MountPoint) String() string {
	return mp.key
}

// Scheme returns the scheme that selects the driver for this mount point.
func (mp MountPoint) Scheme() string {
	return mp.scheme
}

// Path returns the host path of a top-level mount point, or the entry path
// inside the parent for a nested one.
func (mp MountPoint) Path() string {
	return mp.path
}

// Parent returns the parent mount point, if any.
func (mp MountPoint) Parent() (MountPoint, bool) {
	if mp.parent == nil {
		return MountPoint{}, false
	}
	return *mp.parent, true
}

// IsZero reports whether mp is the zero value.
func (mp MountPoint) IsZero() bool {
	return mp.key == ""
}

// IsTopLevel reports whether mp names a host file rather than a nested entry.
func (mp MountPoint) IsTopLevel() bool {
	return mp.parent == nil
}

// Depth returns 0 for a top-level mount point and parent depth + 1 otherwise.
func (mp MountPoint) Depth() int {
	d := 0
	for p := mp.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Root returns the top-level ancestor of mp, which is mp itself when top-level.
func (mp MountPoint) Root() MountPoint {
	root := mp
	for root.parent != nil {
		root = *root.parent
	}
	return root
}

// Equal reports whether both mount points identify the same archive.
func (mp MountPoint) Equal(other MountPoint) bool {
	return mp.key == other.key
}

// IsAncestorOf reports whether mp is a strict ancestor of other.
func (mp MountPoint) IsAncestorOf(other MountPoint) bool {
	if mp.IsZero() {
		return false
	}
	for p := other.parent; p != nil; p = p.parent {
		if p.key == mp.key {
			return true
		}
	}
	return false
}

func validateScheme(scheme string) error {
	if scheme == "" {
		return fserrors.NewInvalidArgumentError("mount point scheme must not be empty")
	}
	for _, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '+', r == '-':
		default:
			return fserrors.NewInvalidArgumentError("invalid character in mount point scheme: " + scheme)
		}
	}
	return nil
}

func cleanEntryPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fserrors.NewInvalidArgumentError("nested mount point path must be relative and non-empty: " + p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fserrors.NewInvalidArgumentError("nested mount point path escapes its parent: " + p)
	}
	if strings.Contains(cleaned, Separator) {
		return "", fserrors.NewInvalidArgumentError("mount point path must not contain " + Separator + ": " + p)
	}
	return cleaned, nil
}

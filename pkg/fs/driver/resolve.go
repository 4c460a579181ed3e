package driver

import (
	"path"
	"path/filepath"
	"strings"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/marmos91/arcfs/pkg/fs/mountpoint"
)

// Target is a resolved location in the virtual tree.
type Target struct {
	// MountPoint is the innermost archive on the path.
	MountPoint mountpoint.MountPoint
	// Entry is the path inside that archive; empty for its root.
	Entry string
}

// Resolve splits an absolute host path into the chain of archives it passes
// through and the entry path inside the innermost one. Every path segment
// whose name ends in a registered scheme suffix is taken as an archive:
//
//	/data/a.tar.gz/inner.tar/docs/readme.txt
//
// resolves to entry "docs/readme.txt" of tar:tar.gz:/data/a.tar.gz!/inner.tar.
func (r *Registry) Resolve(hostPath string) (Target, error) {
	p := filepath.ToSlash(hostPath)
	if !path.IsAbs(p) {
		return Target{}, fserrors.NewInvalidArgumentError("path must be absolute: " + hostPath)
	}
	p = path.Clean(p)

	var (
		current *mountpoint.MountPoint
		pending []string
	)
	for _, seg := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if seg == "" {
			continue
		}
		pending = append(pending, seg)

		scheme, ok := r.schemeOf(seg)
		if !ok {
			continue
		}

		var (
			mp  mountpoint.MountPoint
			err error
		)
		if current == nil {
			mp, err = mountpoint.New(scheme, "/"+strings.Join(pending, "/"), nil)
		} else {
			mp, err = mountpoint.New(scheme, strings.Join(pending, "/"), current)
		}
		if err != nil {
			return Target{}, err
		}
		current = &mp
		pending = pending[:0]
	}

	if current == nil {
		return Target{}, fserrors.NewNotFoundError(hostPath, "archive on path")
	}
	return Target{MountPoint: *current, Entry: strings.Join(pending, "/")}, nil
}

// Package tar provides the tar container codec and the drivers for plain,
// compressed and encrypted tar archives.
package tar

import (
	gotar "archive/tar"
	"bytes"
	"time"

	"github.com/marmos91/arcfs/pkg/fs/archivefs"
)

const (
	defaultFileMode = 0o644
	defaultDirMode  = 0o755
)

// Entry is one member of a tar archive. It keeps the original header so that
// ownership, mode and extended attributes survive a rewrite.
type Entry struct {
	name   string
	typ    archivefs.EntryType
	header gotar.Header
	data   []byte
}

var _ archivefs.Entry = (*Entry)(nil)

// NewEntry creates a directory or an empty file entry.
func NewEntry(name string, typ archivefs.EntryType, mtime time.Time) *Entry {
	e := &Entry{name: name, typ: typ}
	e.header.ModTime = mtime
	if typ == archivefs.EntryDir {
		e.header.Typeflag = gotar.TypeDir
		e.header.Mode = defaultDirMode
	} else {
		e.header.Typeflag = gotar.TypeReg
		e.header.Mode = defaultFileMode
	}
	return e
}

// NewFile creates a file entry holding a copy of data.
func NewFile(name string, data []byte, mtime time.Time) *Entry {
	e := NewEntry(name, archivefs.EntryFile, mtime)
	e.data = bytes.Clone(data)
	e.header.Size = int64(len(e.data))
	return e
}

func (e *Entry) Name() string              { return e.name }
func (e *Entry) Type() archivefs.EntryType { return e.typ }
func (e *Entry) Size() int64               { return int64(len(e.data)) }
func (e *Entry) ModTime() time.Time        { return e.header.ModTime }
func (e *Entry) Content() []byte           { return e.data }

// Header returns a copy of the tar header of e.
func (e *Entry) Header() gotar.Header {
	return e.header
}

// encodeHeader returns the header to write for e, named and sized for its current
// path and payload.
func (e *Entry) encodeHeader() *gotar.Header {
	h := e.header
	h.Name = e.name
	h.Size = int64(len(e.data))
	if e.typ == archivefs.EntryDir {
		h.Name += "/"
		h.Size = 0
		h.Typeflag = gotar.TypeDir
	} else if h.Typeflag != gotar.TypeReg {
		h.Typeflag = gotar.TypeReg
	}
	if h.Mode == 0 {
		if e.typ == archivefs.EntryDir {
			h.Mode = defaultDirMode
		} else {
			h.Mode = defaultFileMode
		}
	}
	h.Format = gotar.FormatUnknown
	return &h
}

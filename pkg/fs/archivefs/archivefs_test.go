package archivefs

import (
	"testing"
	"time"

	fserrors "github.com/marmos91/arcfs/pkg/fs/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntry struct {
	name  string
	typ   EntryType
	size  int64
	mtime time.Time
}

func (e testEntry) Name() string       { return e.name }
func (e testEntry) Type() EntryType    { return e.typ }
func (e testEntry) Size() int64        { return e.size }
func (e testEntry) ModTime() time.Time { return e.mtime }

func testFactory(name string, typ EntryType, mtime time.Time) testEntry {
	return testEntry{name: name, typ: typ, mtime: mtime}
}

func file(name string, size int64) testEntry {
	return testEntry{name: name, typ: EntryFile, size: size, mtime: time.Unix(1700000000, 0)}
}

func names(entries []testEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestNew_RootOnly(t *testing.T) {
	t.Parallel()

	before := time.Now()
	fs := New(testFactory)
	after := time.Now()

	assert.Equal(t, 1, fs.Len())
	assert.True(t, fs.Dirty())

	root := fs.Root()
	assert.Equal(t, EntryDir, root.Type())
	assert.False(t, root.ModTime().Before(before))
	assert.False(t, root.ModTime().After(after))

	list, err := fs.List("")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBuild_SynthesizesParents(t *testing.T) {
	t.Parallel()

	fs, err := Build(testFactory,
		file("docs/guide/intro.md", 10),
		file("/readme.txt", 3),
	)
	require.NoError(t, err)
	assert.False(t, fs.Dirty())
	assert.Equal(t, 5, fs.Len())

	dir, ok := fs.Lookup("docs/guide")
	require.True(t, ok)
	assert.Equal(t, EntryDir, dir.Type())

	root, err := fs.List("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "readme.txt"}, names(root))
}

func TestBuild_RejectsFileUnderFile(t *testing.T) {
	t.Parallel()

	_, err := Build(testFactory, file("a", 1), file("a/b", 1))
	require.Error(t, err)
	assert.Equal(t, fserrors.ErrNotDirectory, fserrors.CodeOf(err))
}

func TestPutMkdirRemove(t *testing.T) {
	t.Parallel()

	fs, err := Build(testFactory)
	require.NoError(t, err)

	require.NoError(t, fs.Put(file("a/b.txt", 4)))
	assert.True(t, fs.Dirty())

	_, err = fs.Mkdir("a", time.Now())
	assert.Equal(t, fserrors.ErrAlreadyExists, fserrors.CodeOf(err))

	err = fs.Put(testEntry{name: "a", typ: EntryFile})
	assert.Equal(t, fserrors.ErrIsDirectory, fserrors.CodeOf(err))

	err = fs.Remove("a")
	assert.Equal(t, fserrors.ErrNotEmpty, fserrors.CodeOf(err))

	_, err = fs.List("a/b.txt")
	assert.Equal(t, fserrors.ErrNotDirectory, fserrors.CodeOf(err))

	require.NoError(t, fs.Remove("a/b.txt"))
	require.NoError(t, fs.Remove("a"))
	assert.Equal(t, 1, fs.Len())

	assert.True(t, fserrors.IsNotFound(fs.Remove("a")))
	assert.True(t, fserrors.IsInvalidArgument(fs.Remove("")))

	fs.MarkClean()
	assert.False(t, fs.Dirty())
}

func TestWalk_ParentsFirstSorted(t *testing.T) {
	t.Parallel()

	fs, err := Build(testFactory,
		file("b/2", 1),
		file("a", 1),
		file("b/1", 1),
	)
	require.NoError(t, err)

	var visited []string
	require.NoError(t, fs.Walk(func(e testEntry) error {
		visited = append(visited, e.Name())
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "b/1", "b/2"}, visited)
}

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"/", "", false},
		{"./a//b/", "a/b", false},
		{"a/../b", "b", false},
		{"../etc", "", true},
	}
	for _, tt := range tests {
		got, err := Clean(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

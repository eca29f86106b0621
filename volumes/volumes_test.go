package volumes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xferx/filesystem"
)

// fakeFS is a minimal filesystem.Filesystem stub, just enough to exercise
// the registry's mount/dismount/alias bookkeeping without a real image.
type fakeFS struct {
	closed bool
}

func (f *fakeFS) BlockSize() int   { return 512 }
func (f *fakeFS) TotalBlocks() int { return 0 }
func (f *fakeFS) FreeBlocks() int  { return 0 }
func (f *fakeFS) ReadOnly() bool   { return true }
func (f *fakeFS) EntriesList() ([]filesystem.Entry, error) { return nil, nil }
func (f *fakeFS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	return nil, nil
}
func (f *fakeFS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}
func (f *fakeFS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	return nil, filesystem.NewError(filesystem.NotFound, "open", "", nil)
}
func (f *fakeFS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
}
func (f *fakeFS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, nil)
}
func (f *fakeFS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "write_bytes", fullPath, nil)
}
func (f *fakeFS) ReadBytes(entry filesystem.Entry) ([]byte, error) { return nil, nil }
func (f *fakeFS) Delete(entry filesystem.Entry) error              { return nil }
func (f *fakeFS) Chdir(path string) (bool, error)                  { return false, nil }
func (f *fakeFS) GetPwd() string                                   { return "" }
func (f *fakeFS) GetSize() int64                                   { return 0 }
func (f *fakeFS) GetTypes() []string                               { return nil }
func (f *fakeFS) Initialize(options map[string]string) error       { return nil }
func (f *fakeFS) Close() error {
	f.closed = true
	return nil
}

func TestMountDismount(t *testing.T) {
	v := New()
	fs := &fakeFS{}
	require.NoError(t, v.Mount("DK", fs))
	assert.Equal(t, "DK", v.Default())

	got, err := v.Get("dk:")
	require.NoError(t, err)
	assert.Same(t, fs, got)

	err = v.Mount("dk", &fakeFS{})
	assert.ErrorIs(t, err, ErrAlreadyMounted)

	require.NoError(t, v.Dismount("DK"))
	assert.True(t, fs.closed)
	_, err = v.Get("DK")
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestAssignDeassign(t *testing.T) {
	v := New()
	fs := &fakeFS{}
	require.NoError(t, v.Mount("DK", fs))
	require.NoError(t, v.Assign("SYS", "DK"))

	got, err := v.Get("SYS:")
	require.NoError(t, err)
	assert.Same(t, fs, got)

	v.Deassign("SYS")
	_, err = v.Get("SYS")
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestDefaultVolumeFallsBackAfterDismount(t *testing.T) {
	v := New()
	require.NoError(t, v.Mount("DK", &fakeFS{}))
	require.NoError(t, v.Mount("OU", &fakeFS{}))
	require.NoError(t, v.SetDefault("OU"))

	require.NoError(t, v.Dismount("OU"))
	_, err := v.Get("")
	require.NoError(t, err)
	assert.Equal(t, "DK", v.Default())
}

func TestSplit(t *testing.T) {
	id, path := Split("DK:FOO.TXT")
	assert.Equal(t, "DK", id)
	assert.Equal(t, "FOO.TXT", path)

	id, path = Split("FOO.TXT")
	assert.Equal(t, "", id)
	assert.Equal(t, "FOO.TXT", path)
}

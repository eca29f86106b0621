package pascal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildVolume(t *testing.T, numBlocks int) *storage.BlockDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pascal.img")
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	dev := storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)

	fs := &FS{dev: dev}
	require.NoError(t, fs.Initialize(map[string]string{"name": "MYDISK"}))
	return dev
}

func TestMountReadsVolumeHeader(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	require.Equal(t, "MYDISK", fs.volumeName)
	require.Equal(t, 64, fs.TotalBlocks())
	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestCreateWriteReadDeleteRoundTrip(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	content := []byte("HELLO APPLE PASCAL")
	entry, err := fs.WriteBytes("HELLO.TEXT", content, time.Now(), "TEXT")
	require.NoError(t, err)
	require.Equal(t, "HELLO.TEXT", entry.Name())
	require.Equal(t, "TEXT", entry.FileType())

	got, err := fs.GetFileEntry("HELLO.TEXT")
	require.NoError(t, err)
	data, err := fs.ReadBytes(got)
	require.NoError(t, err)
	require.Equal(t, content, data[:len(content)])

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, fs.Delete(got))
	entries, err = fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)

	_, err = fs.GetFileEntry("HELLO.TEXT")
	require.Error(t, err)
}

func TestAllocateSpaceReusesGapBetweenFiles(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	_, err = fs.CreateFile("A.DATA", 2, time.Now(), "DATA")
	require.NoError(t, err)
	b, err := fs.CreateFile("B.DATA", 2, time.Now(), "DATA")
	require.NoError(t, err)
	_, err = fs.CreateFile("D.DATA", 2, time.Now(), "DATA")
	require.NoError(t, err)
	require.NoError(t, fs.Delete(b))

	// The gap left by deleting B should be reused rather than appending at
	// the end of the device, since it is the first-fit free area.
	c, err := fs.CreateFile("C.DATA", 2, time.Now(), "DATA")
	require.NoError(t, err)
	require.Equal(t, b.(*Entry).e.startBlock, c.(*Entry).e.startBlock)
}

func TestCreateDirectoryUnsupported(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	_, err = fs.CreateDirectory("SUB", nil)
	require.Error(t, err)

	ok, err := fs.Chdir("ANYTHING")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFilterEntriesListIncludesUnusedGaps(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	_, err = fs.CreateFile("A.DATA", 2, time.Now(), "DATA")
	require.NoError(t, err)

	entries, err := fs.FilterEntriesList("*", true, false, true)
	require.NoError(t, err)
	require.Len(t, entries, 2) // the file, plus the remaining free area
	require.True(t, entries[1].IsEmpty())
}

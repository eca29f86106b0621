package rt11

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildVolume(t *testing.T) *storage.BlockDevice {
	t.Helper()
	numBlocks := 512
	path := filepath.Join(t.TempDir(), "rt11.img")
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
	require.NoError(t, Initialize(dev, nil))
	return dev
}

func TestInitializeAndMount(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, true)
	require.NoError(t, err)
	require.Equal(t, 512, fs.TotalBlocks())

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsEmpty())
}

func TestCreateReadDelete(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	content := []byte("THIS IS A TEST FILE FOR RT-11\n")
	entry, err := fs.WriteBytes("TEST.TXT", content, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, "TEST.TXT", entry.Name())
	require.Less(t, fs.FreeBlocks(), free0)

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])

	require.NoError(t, fs.Delete(entry))
	require.Equal(t, free0, fs.FreeBlocks())

	_, err = fs.GetFileEntry("TEST.TXT")
	require.Error(t, err)
}

// TestBestFitSplitsAndCoalesces verifies §4.1's best-fit allocation carves an
// EMPTY entry down to size, and that deleting adjacent files merges their
// freed space back into a single EMPTY run.
func TestBestFitSplitsAndCoalesces(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	a, err := fs.CreateFile("A.DAT", 5, time.Now(), "")
	require.NoError(t, err)
	b, err := fs.CreateFile("B.DAT", 5, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, free0-10, fs.FreeBlocks())

	require.NoError(t, fs.Delete(a))
	require.NoError(t, fs.Delete(b))
	require.Equal(t, free0, fs.FreeBlocks())

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsEmpty())
}

func TestCreateDirectoryUnsupported(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	_, err = fs.CreateDirectory("SUB", nil)
	require.Error(t, err)
}

package tss8

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildVolume(t *testing.T) *storage.BlockDevice {
	t.Helper()
	numBlocks := 256
	path := filepath.Join(t.TempDir(), "tss8.img")
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
	require.Equal(t, 256, fs.TotalBlocks())

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

// TestBitmapStabilityAfterTransientAllocation mirrors the spec's Scenario D:
// overwriting a file with the same size it started with restores the bitmap
// to a byte-identical state.
func TestBitmapStabilityAfterTransientAllocation(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	_, err = fs.CreateDirectory("[10,20]", nil)
	require.NoError(t, err)

	free0 := fs.FreeBlocks()

	_, err = fs.CreateFile("[10,20]TEST.ASC", 5, time.Now(), "")
	require.NoError(t, err)
	free1 := fs.FreeBlocks()
	require.Equal(t, free0-5, free1)
	bitmap1 := append([]byte(nil), fs.bitmap.bits...)

	_, err = fs.CreateFile("[10,20]TEST.ASC", 10, time.Now(), "")
	require.NoError(t, err)
	free2 := fs.FreeBlocks()
	require.Equal(t, free0-10, free2)

	_, err = fs.CreateFile("[10,20]TEST.ASC", 5, time.Now(), "")
	require.NoError(t, err)
	free3 := fs.FreeBlocks()
	require.Equal(t, free1, free3)
	require.Equal(t, bitmap1, fs.bitmap.bits)

	entry, err := fs.GetFileEntry("[10,20]TEST.ASC")
	require.NoError(t, err)
	require.NoError(t, fs.Delete(entry))
	require.Equal(t, free0, fs.FreeBlocks())
}

func TestWriteReadRoundTrip(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	var content []byte
	for i := 0; i < 50; i++ {
		line := []byte("     ABCDEFGHIJKLMNOPQRSTUVWXYZ01234567890")
		content = append(content, line...)
	}
	entry, err := fs.WriteBytes("[1,1]M50.ASC", content, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, "M50.ASC", entry.Name())

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])
}

func TestDeleteDirectoryRecurses(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	_, err = fs.CreateDirectory("[5,5]", nil)
	require.NoError(t, err)
	_, err = fs.CreateFile("[5,5]TEST.PAL", 5, time.Now(), "")
	require.NoError(t, err)
	require.Less(t, fs.FreeBlocks(), free0)

	dirEntry, err := fs.GetFileEntry("[5,5]")
	require.NoError(t, err)
	require.True(t, dirEntry.IsDirectory())
	require.NoError(t, fs.Delete(dirEntry))
	require.Equal(t, free0, fs.FreeBlocks())

	_, err = fs.GetFileEntry("[5,5]")
	require.Error(t, err)
}

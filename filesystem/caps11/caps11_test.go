package caps11

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildVolume(t *testing.T) *storage.BlockDevice {
	t.Helper()
	numBlocks := 128
	path := filepath.Join(t.TempDir(), "caps11.img")
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
	require.Equal(t, 128, fs.TotalBlocks())

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestCreateReadDelete(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	var content []byte
	for i := 0; i < 10; i++ {
		content = append(content, []byte("     ABCDEFGHIJKLMNOPQRSTUVWXYZ01234567890")...)
	}
	entry, err := fs.WriteBytes("10.TXT", content, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, "10.TXT", entry.Name())
	require.Less(t, fs.FreeBlocks(), free0)

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])

	require.NoError(t, fs.Delete(entry))
	require.Equal(t, free0, fs.FreeBlocks())

	_, err = fs.GetFileEntry("10.TXT")
	require.Error(t, err)
}

// TestBracketPatternIsAcceptedAsGlob mirrors the original test suite's
// "dir t:[*,*]" usage: CAPS-11 has no directory hierarchy, so a bracketed
// prefix is simply stripped rather than resolved as a UIC.
func TestBracketPatternIsAcceptedAsGlob(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	_, err = fs.WriteBytes("1.TXT", []byte("hello"), time.Now(), "")
	require.NoError(t, err)

	entries, err := fs.FilterEntriesList("[*,*]*.TXT", true, false, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	ok, err := fs.Chdir("[1,1]")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateDirectoryUnsupported(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	_, err = fs.CreateDirectory("SUB", nil)
	require.Error(t, err)
}

package dos11

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
	path := filepath.Join(t.TempDir(), "dos11.img")
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
	require.Equal(t, "[1,1]", fs.GetPwd())

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestCreateReadDeleteContiguous(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	content := []byte("DOS-11 CONTIGUOUS FILE CONTENT")
	entry, err := fs.WriteBytes("A.DAT", content, time.Now(), "CONTIGUOUS")
	require.NoError(t, err)
	require.Equal(t, "A.DAT", entry.Name())
	require.Less(t, fs.FreeBlocks(), free0)

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])

	require.NoError(t, fs.Delete(entry))
	require.Equal(t, free0, fs.FreeBlocks())
}

func TestCreateReadDeleteLinked(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	var content []byte
	for i := 0; i < 40; i++ {
		content = append(content, []byte("PDP-11 LINKED FILE BLOCK CONTENT LINE\n")...)
	}
	entry, err := fs.WriteBytes("B.DAT", content, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, "LINKED", entry.FileType())
	require.Less(t, fs.FreeBlocks(), free0)

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])

	require.NoError(t, fs.Delete(entry))
	require.Equal(t, free0, fs.FreeBlocks())
}

func TestCreateDirectoryAndChdir(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	_, err = fs.CreateDirectory("[20,30]", nil)
	require.NoError(t, err)

	ok, err := fs.Chdir("[20,30]")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "[20,30]", fs.GetPwd())

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

package ppm

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildDevice(t *testing.T, numBlocks int) *storage.BlockDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ppm.img")
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	return storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)
}

func TestFormatMountRoundTrip(t *testing.T) {
	dev := buildDevice(t, 200)
	_, err := Format(dev, 10, 190)
	require.NoError(t, err)

	dir, err := Mount(dev, 10, 190)
	require.NoError(t, err)
	volumes, err := dir.Volumes()
	require.NoError(t, err)
	require.Len(t, volumes, 0)
}

func TestMountRejectsNonPPMHeader(t *testing.T) {
	dev := buildDevice(t, 200)
	_, err := Mount(dev, 10, 190)
	require.Error(t, err)
}

func TestCreateDeleteVolume(t *testing.T) {
	dev := buildDevice(t, 200)
	dir, err := Format(dev, 10, 190)
	require.NoError(t, err)

	v1, err := dir.CreateVolume("VOL1", 50)
	require.NoError(t, err)
	v2, err := dir.CreateVolume("VOL2", 50)
	require.NoError(t, err)
	require.NotEqual(t, v1.StartBlock, v2.StartBlock)

	volumes, err := dir.Volumes()
	require.NoError(t, err)
	require.Len(t, volumes, 2)

	require.NoError(t, dir.DeleteVolume(v1.StartBlock))
	volumes, err = dir.Volumes()
	require.NoError(t, err)
	require.Len(t, volumes, 1)
	require.Equal(t, "VOL2", volumes[0].Name)
}

func TestOpenVolumeMountsNestedPascalFilesystem(t *testing.T) {
	dev := buildDevice(t, 200)
	dir, err := Format(dev, 10, 190)
	require.NoError(t, err)

	v, err := dir.CreateVolume("SUBVOL", 64)
	require.NoError(t, err)
	require.NoError(t, dir.FormatVolume(v, "SUBVOL"))

	fs, err := dir.OpenVolume(v, false)
	require.NoError(t, err)
	require.Equal(t, 64, fs.TotalBlocks())

	content := []byte("nested pascal volume data")
	_, err = fs.WriteBytes("DATA.TEXT", content, time.Now(), "TEXT")
	require.NoError(t, err)

	entry, err := fs.GetFileEntry("DATA.TEXT")
	require.NoError(t, err)
	data, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, data[:len(content)])
}

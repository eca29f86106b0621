package prodos

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/filesystem/applesingle"
	"xferx/storage"
)

// buildVolume creates a minimal formatted volume: block 2 is the key
// (and only) directory block, carrying just the volume header at offset 4
// and no file entries; the bitmap lives at block 6, large enough for
// numBlocks.
func buildVolume(t *testing.T, numBlocks int) *storage.BlockDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prodos.img")
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	dev := storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)

	bitMapPointer := 6
	hdr := &dirEntry{
		storageType:   storageVolDirHdr,
		name:          "TESTVOL",
		access:        defaultAccess,
		created:       time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
		bitMapPointer: bitMapPointer,
		totalBlocks:   numBlocks,
	}
	buf := make([]byte, storage.BlockSize)
	writeEntry(buf, 4, hdr)
	require.NoError(t, dev.WriteBlock(volumeDirBlock, buf))

	bm := make([]byte, storage.BlockSize)
	for i := range bm {
		bm[i] = 0xFF
	}
	require.NoError(t, dev.WriteBlock(bitMapPointer, bm))

	fs := &FS{dev: dev, totalBlocks: numBlocks, bitMapPointer: bitMapPointer}
	bmv, err := readBitmap(fs)
	require.NoError(t, err)
	for i := 0; i < volumeDirBlock+1; i++ {
		bmv.setUsed(i)
	}
	bmv.setUsed(bitMapPointer)
	require.NoError(t, bmv.write())

	return dev
}

func TestMountReadsVolumeHeader(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	require.Equal(t, "TESTVOL", fs.volumeName)
	require.Equal(t, "/TESTVOL", fs.GetPwd())
	require.Equal(t, 64, fs.TotalBlocks())
}

func TestCreateWriteReadDeleteRoundTrip(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	content := []byte("HELLO PRODOS WORLD")
	entry, err := fs.WriteBytes("/TESTVOL/HELLO.TXT", content, time.Now(), "TXT")
	require.NoError(t, err)
	require.Equal(t, "HELLO.TXT", entry.Name())

	got, err := fs.GetFileEntry("/TESTVOL/HELLO.TXT")
	require.NoError(t, err)
	data, err := fs.ReadBytes(got)
	require.NoError(t, err)
	require.Equal(t, content, data)

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, fs.Delete(got))
	entries, err = fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestCreateDirectoryAndFileInside(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	_, err = fs.CreateDirectory("/TESTVOL/SUBDIR", nil)
	require.NoError(t, err)
	ok, err := fs.Chdir("/TESTVOL/SUBDIR")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = fs.WriteBytes("INNER.BIN", []byte{1, 2, 3, 4}, time.Now(), "BIN")
	require.NoError(t, err)
	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "INNER.BIN", entries[0].Name())
}

func TestBinFileRoundTripsThroughAppleSingle(t *testing.T) {
	dev := buildVolume(t, 64)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	content := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	_, err = fs.WriteBytes("/TESTVOL/APP.BIN", content, time.Now(), "BIN")
	require.NoError(t, err)

	entry, err := fs.GetFileEntry("/TESTVOL/APP.BIN")
	require.NoError(t, err)
	wrapped, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.NotEqual(t, content, wrapped) // re-wrapped as AppleSingle, not raw

	decoded, err := applesingle.Decode(wrapped)
	require.NoError(t, err)
	require.Equal(t, content, decoded.Data)
	require.NotNil(t, decoded.ProDOSInfo)
	require.EqualValues(t, binFileType, decoded.ProDOSInfo.FileType)
}

package dos33

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/filesystem/applesingle"
	"xferx/storage"
)

// buildVolume formats a 35-track, 16-sector/track DOS 3.3 image via
// Initialize, then remounts it.
func buildVolume(t *testing.T) *storage.BlockDevice {
	t.Helper()
	numBlocks := 35 * 16 / 2 // 8 blocks/track * 35 tracks
	path := filepath.Join(t.TempDir(), "dos33.img")
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	dev := storage.NewBlockDevice(bf, storage.LayoutAppleDOS33, numBlocks)

	fs := &FS{dev: dev}
	require.NoError(t, fs.Initialize(nil))
	return dev
}

func TestMountReadsVTOC(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	require.Equal(t, 35, fs.numberOfTracks)
	require.Equal(t, 16, fs.sectorsPerTrack)
	require.Equal(t, 35*16, fs.TotalBlocks())
	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestCreateWriteReadDeleteRoundTrip(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	content := []byte("HELLO DOS 3.3 WORLD")
	entry, err := fs.WriteBytes("HELLO", content, time.Now(), "T")
	require.NoError(t, err)
	require.Equal(t, "HELLO", entry.Name())
	require.Equal(t, "T", entry.FileType())

	got, err := fs.GetFileEntry("HELLO")
	require.NoError(t, err)
	data, err := fs.ReadBytes(got)
	require.NoError(t, err)
	// Text files carry no byte-exact length: content is recovered up to
	// sector granularity, with trailing zero padding.
	require.Equal(t, content, data[:len(content)])

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, fs.Delete(got))
	entries, err = fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)

	_, err = fs.GetFileEntry("HELLO")
	require.Error(t, err)
}

func TestBinaryFileRoundTripsThroughAppleSingle(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	wrapped := applesingle.Encode(&applesingle.File{
		Data: payload,
		ProDOSInfo: &applesingle.ProDOSFileInfo{
			Access:   0xFF,
			FileType: prodosBinFileType,
			AuxType:  0x2000,
		},
	})
	_, err = fs.WriteBytes("APP.BIN", wrapped, time.Now(), "")
	require.NoError(t, err)

	got, err := fs.GetFileEntry("APP.BIN")
	require.NoError(t, err)
	en := got.(*Entry)
	require.Equal(t, byte(fileTypeBinary), en.e.rawFileType)

	out, err := fs.ReadBytes(got)
	require.NoError(t, err)
	decoded, err := applesingle.Decode(out)
	require.NoError(t, err)
	require.Equal(t, payload, decoded.Data)
	require.EqualValues(t, 0x2000, decoded.ProDOSInfo.AuxType)
}

func TestBasicFileLengthHeaderStripped(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	program := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	header := []byte{byte(len(program)), byte(len(program) >> 8)}
	raw := append(append([]byte(nil), header...), program...)

	numSectors := (len(raw) + sectorSize - 1) / sectorSize
	entry, err := fs.CreateFile("PROG", numSectors, time.Now(), "A")
	require.NoError(t, err)
	en := entry.(*Entry)
	handle, err := fs.Open(entry, 0)
	require.NoError(t, err)
	padded := make([]byte, numSectors*sectorSize)
	copy(padded, raw)
	require.NoError(t, handle.WriteBlock(padded, 0, numSectors))
	require.NoError(t, handle.Close())

	got, err := fs.GetFileEntry("PROG")
	require.NoError(t, err)
	data, err := fs.ReadBytes(got)
	require.NoError(t, err)
	require.Equal(t, program, data)
	require.Equal(t, byte(fileTypeApplesoft), en.e.rawFileType)
}

func TestCreateDirectoryUnsupported(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	_, err = fs.CreateDirectory("SUB", nil)
	require.Error(t, err)

	ok, err := fs.Chdir("ANYTHING")
	require.NoError(t, err)
	require.False(t, ok)
}

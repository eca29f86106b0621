package dos11tape

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildTape(t *testing.T) *storage.TapeDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dos11.tap")
	bf, err := storage.CreateByteFile(path, 0)
	require.NoError(t, err)
	tape := storage.NewTapeDevice(bf)
	require.NoError(t, Initialize(tape, nil))
	return tape
}

func TestInitializeAndMountEmpty(t *testing.T) {
	tape := buildTape(t)
	fs, err := Mount(tape, true)
	require.NoError(t, err)

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 0)
}

func TestCreateAndScanEntries(t *testing.T) {
	tape := buildTape(t)
	fs, err := Mount(tape, false)
	require.NoError(t, err)

	content := []byte("DOS-11 MAGTAPE FILE CONTENT\n")
	_, err = fs.WriteBytes("A.DAT", content, time.Now(), "")
	require.NoError(t, err)

	content2 := []byte("SECOND FILE ON THE SAME TAPE\n")
	_, err = fs.WriteBytes("B.DAT", content2, time.Now(), "")
	require.NoError(t, err)

	reread, err := Mount(tape, true)
	require.NoError(t, err)
	entries, err := reread.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "A.DAT", entries[0].Name())
	require.Equal(t, "B.DAT", entries[1].Name())

	entry, err := reread.GetFileEntry("B.DAT")
	require.NoError(t, err)
	got, err := reread.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content2, got[:len(content2)])
}

func TestDeleteUnsupported(t *testing.T) {
	tape := buildTape(t)
	fs, err := Mount(tape, false)
	require.NoError(t, err)
	_, err = fs.WriteBytes("A.DAT", []byte("x"), time.Now(), "")
	require.NoError(t, err)
	entry, err := fs.GetFileEntry("A.DAT")
	require.NoError(t, err)
	require.Error(t, fs.Delete(entry))
}

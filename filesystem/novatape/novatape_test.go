package novatape

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

func buildTape(t *testing.T) *storage.TapeDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "novatape.tap")
	bf, err := storage.CreateByteFile(path, 0)
	require.NoError(t, err)
	tape := storage.NewTapeDevice(bf)
	fs := &FS{tape: tape}
	require.NoError(t, fs.Initialize(nil))
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

	content := []byte("NOVA MAGTAPE FIRST FILE\n")
	_, err = fs.WriteBytes("A.DAT", content, time.Now(), "")
	require.NoError(t, err)

	content2 := []byte("NOVA MAGTAPE SECOND FILE, NAMED BY POSITION\n")
	_, err = fs.WriteBytes("", content2, time.Now(), "")
	require.NoError(t, err)

	reread, err := Mount(tape, true)
	require.NoError(t, err)
	entries, err := reread.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "A.DAT", entries[0].Name())
	require.Equal(t, "2", entries[1].Name())

	entry, err := reread.GetFileEntry("2")
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

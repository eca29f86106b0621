package unixfs

import (
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

// buildV6Image hand-assembles a tiny v4/v6-layout volume: block 0 boot,
// block 1 superblock (only isize matters to this read-only driver), blocks
// 2-3 the inode table (inode 1 is root), block 4 the root directory data,
// block 5 one file's data.
func buildV6Image(t *testing.T) *storage.BlockDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v6.img")
	numBlocks := 8
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)

	sb := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(sb[0:2], 2) // isize: 2 blocks of inodes
	require.NoError(t, dev.WriteBlock(1, sb))

	writeInode := func(num int, flags uint16, size uint32, addr0 uint16) {
		off := (num - 1) * v4InodeSize
		blk := 2 + off/storage.BlockSize
		within := off % storage.BlockSize
		data, err := dev.ReadBlock(blk)
		require.NoError(t, err)
		buf := append([]byte(nil), data...)
		binary.LittleEndian.PutUint16(buf[within:within+2], flags)
		buf[within+5] = byte(size >> 16)
		binary.LittleEndian.PutUint16(buf[within+6:within+8], uint16(size))
		binary.LittleEndian.PutUint16(buf[within+8:within+10], addr0)
		require.NoError(t, dev.WriteBlock(blk, buf))
	}

	rootSize := uint32(v4DirEntrySize * 1)
	writeInode(1, flagUsed|flagDir, rootSize, 4)
	writeInode(2, flagUsed, 5, 5)

	dirBlock := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(dirBlock[0:2], 2)
	copy(dirBlock[2:2+v4FilenameLen], "HELLO")
	require.NoError(t, dev.WriteBlock(4, dirBlock))

	fileBlock := make([]byte, storage.BlockSize)
	copy(fileBlock, "howdy")
	require.NoError(t, dev.WriteBlock(5, fileBlock))

	return dev
}

func TestMountAndListV6(t *testing.T) {
	dev := buildV6Image(t)
	fs, err := Mount(dev, V6)
	require.NoError(t, err)

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "HELLO", entries[0].Name())
	require.EqualValues(t, 5, entries[0].Size())
}

func TestReadFile(t *testing.T) {
	dev := buildV6Image(t)
	fs, err := Mount(dev, V6)
	require.NoError(t, err)

	entry, err := fs.GetFileEntry("HELLO")
	require.NoError(t, err)
	data, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, "howdy", string(data))
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	dev := buildV6Image(t)
	fs, err := Mount(dev, V6)
	require.NoError(t, err)
	_, err = fs.CreateFile("NEW", 1, time.Time{}, "")
	require.Error(t, err)
}

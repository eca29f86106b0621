package nova

import (
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xferx/storage"
)

// buildVolume hand-assembles a minimal RDOS image: a Disk Information Block,
// a one-block SYS.DR index chain holding a single storage block with the
// SYS.DR and MAP.DR entries, and a one-block MAP.DR bitmap. There is no
// RDOS Initialize (system generation is out of scope, per nova.go), so every
// test builds its own fixture the way the reference image generator would.
func buildVolume(t *testing.T) *storage.BlockDevice {
	t.Helper()
	const (
		numBlocks   = 48
		sysDrStore  = 7
		mapDrBlk    = 8
	)
	path := filepath.Join(t.TempDir(), "nova.img")
	bf, err := storage.CreateByteFile(path, int64(numBlocks)*storage.BlockSize)
	require.NoError(t, err)
	dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)

	diskInfo := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(diskInfo[0:2], 1)               // revision, unswapped
	binary.LittleEndian.PutUint16(diskInfo[2:4], 0)                // checksum
	binary.LittleEndian.PutUint16(diskInfo[4:6], 0)                // heads
	binary.LittleEndian.PutUint16(diskInfo[6:8], 0)                // sectors
	binary.LittleEndian.PutUint16(diskInfo[8:10], 0)                // blocksHigh
	binary.LittleEndian.PutUint16(diskInfo[10:12], uint16(numBlocks-scppa)) // blocksLow
	binary.LittleEndian.PutUint16(diskInfo[12:14], 1)              // frameSize
	binary.LittleEndian.PutUint16(diskInfo[14:16], 0)              // characteristics
	require.NoError(t, dev.WriteBlock(diskIDBlock, diskInfo))

	index := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(index[0:2], sysDrStore)
	require.NoError(t, dev.WriteBlock(sysDrBlock, index))

	sysDrEntry := &ufd{name: "SYS", ext: "DR", attributes: atDIR | atPER, address: sysDrBlock, entryOffset: 2}
	mapDrEntry := &ufd{name: "MAP", ext: "DR", attributes: atCON | atPER, address: mapDrBlk, bytesInLast: storage.BlockSize, entryOffset: 2 + ufdEntrySize}

	store := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(store[0:2], 2)
	sysDrEntry.writeTo(store)
	mapDrEntry.writeTo(store)
	require.NoError(t, dev.WriteBlock(sysDrStore, store))

	bits := make([]byte, storage.BlockSize)
	words := make([]uint16, storage.BlockSize/2)
	for _, b := range []int{sysDrBlock, sysDrStore, mapDrBlk} {
		idx := b - scppa
		words[idx/16] |= 1 << uint(idx%16)
	}
	for i, w := range words {
		binary.LittleEndian.PutUint16(bits[2*i:2*i+2], w)
	}
	require.NoError(t, dev.WriteBlock(mapDrBlk, bits))

	return dev
}

func TestMountListsSysDirAndMapDir(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, true)
	require.NoError(t, err)

	entries, err := fs.EntriesList()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	require.True(t, names["SYS.DR"])
	require.True(t, names["MAP.DR"])
}

func TestCreateReadDeleteRoundTrip(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	free0 := fs.FreeBlocks()

	content := make([]byte, 600)
	copy(content, []byte("RDOS RANDOM FILE PAYLOAD"))
	entry, err := fs.WriteBytes("TEST.DAT", content, time.Now(), "")
	require.NoError(t, err)
	require.Equal(t, "TEST.DAT", entry.Name())
	require.Less(t, fs.FreeBlocks(), free0)

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])

	require.NoError(t, fs.Delete(entry))
	require.Equal(t, free0, fs.FreeBlocks())
}

func TestCreateContiguousFile(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)

	content := make([]byte, 512)
	copy(content, []byte("CONTIGUOUS PAYLOAD"))
	entry, err := fs.WriteBytes("C.DAT", content, time.Now(), "CONTIGUOUS")
	require.NoError(t, err)
	require.Equal(t, "CONTIGUOUS", entry.FileType())

	got, err := fs.ReadBytes(entry)
	require.NoError(t, err)
	require.Equal(t, content, got[:len(content)])
}

func TestInitializeUnsupported(t *testing.T) {
	dev := buildVolume(t)
	fs, err := Mount(dev, false)
	require.NoError(t, err)
	require.Error(t, fs.Initialize(nil))
}

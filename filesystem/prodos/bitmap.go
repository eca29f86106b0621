package prodos

import (
	"math/bits"

	"xferx/filesystem"
	"xferx/storage"
)

// bitmapView is the in-memory volume bitmap: one bit per block, 1 == free,
// matching ProDOSBitmap's own polarity (set_free ORs the bit in).
type bitmapView struct {
	fs     *FS
	blocks int // number of bitmap blocks
	bytes  []byte
}

func bitmapBlockCount(totalBlocks int) int {
	bitmapBytes := totalBlocks / 8
	if totalBlocks%8 > 0 {
		bitmapBytes++
	}
	blocks := bitmapBytes / storage.BlockSize
	if bitmapBytes%storage.BlockSize > 0 {
		blocks++
	}
	return blocks
}

func readBitmap(fs *FS) (*bitmapView, error) {
	n := bitmapBlockCount(fs.totalBlocks)
	bm := &bitmapView{fs: fs, blocks: n}
	for i := 0; i < n; i++ {
		buf, err := fs.dev.ReadBlock(fs.bitMapPointer + i)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_bitmap", "", err)
		}
		bm.bytes = append(bm.bytes, buf...)
	}
	return bm, nil
}

func (bm *bitmapView) write() error {
	for i := 0; i < bm.blocks; i++ {
		chunk := bm.bytes[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := bm.fs.dev.WriteBlock(bm.fs.bitMapPointer+i, chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_bitmap", "", err)
		}
	}
	return nil
}

func (bm *bitmapView) isFree(block int) bool {
	idx, bit := block/8, 7-block%8
	if idx >= len(bm.bytes) {
		return false
	}
	return bm.bytes[idx]&(1<<bit) != 0
}

func (bm *bitmapView) setFree(block int) {
	idx, bit := block/8, 7-block%8
	if idx < len(bm.bytes) {
		bm.bytes[idx] |= 1 << bit
	}
}

func (bm *bitmapView) setUsed(block int) {
	idx, bit := block/8, 7-block%8
	if idx < len(bm.bytes) {
		bm.bytes[idx] &^= 1 << bit
	}
}

func (bm *bitmapView) allocate(n int) ([]int, error) {
	var out []int
	for block := 0; block < len(bm.bytes)*8 && len(out) < n; block++ {
		if bm.isFree(block) {
			bm.setUsed(block)
			out = append(out, block)
		}
	}
	if len(out) < n {
		return nil, filesystem.NewError(filesystem.NoSpace, "allocate", "", nil)
	}
	return out, nil
}

func (bm *bitmapView) free() int {
	n := 0
	for _, b := range bm.bytes {
		n += bits.OnesCount8(b)
	}
	return n
}

package tss8

import (
	"github.com/pkg/errors"

	"xferx/storage"
)

// bitmap is TSS/8's free-space map: a single dedicated block holding one bit
// per volume block (plain bit-per-block, no per-format header, unlike
// DOS-11's linked bitmap chain — the reconstructed volumes in scope here
// never exceed 512*8 blocks).
type bitmap struct {
	device *storage.BlockDevice
	bits   []byte
}

func readBitmap(device *storage.BlockDevice) (*bitmap, error) {
	raw, err := device.ReadBlock(bitmapBlock)
	if err != nil {
		return nil, err
	}
	return &bitmap{device: device, bits: append([]byte(nil), raw...)}, nil
}

func (bm *bitmap) isUsed(block int) bool {
	if block < 0 || block/8 >= len(bm.bits) {
		return false
	}
	return bm.bits[block/8]&(1<<uint(block%8)) != 0
}

func (bm *bitmap) setUsed(block int, used bool) {
	if block < 0 || block/8 >= len(bm.bits) {
		return
	}
	if used {
		bm.bits[block/8] |= 1 << uint(block%8)
	} else {
		bm.bits[block/8] &^= 1 << uint(block%8)
	}
}

func (bm *bitmap) freeCount() int {
	free := 0
	for i := 0; i < len(bm.bits)*8; i++ {
		if !bm.isUsed(i) {
			free++
		}
	}
	return free
}

func (bm *bitmap) used() int {
	return len(bm.bits)*8 - bm.freeCount()
}

// allocateContiguous scans the bitmap from the start for the first run of n
// consecutive free blocks, per §4.1's first-fit contiguous allocation; the
// reserved blocks (boot, MFD, bitmap) are pre-marked used at Initialize
// time so they are never handed out.
func (bm *bitmap) allocateContiguous(n int) ([]int, error) {
	run := 0
	start := -1
	total := len(bm.bits) * 8
	for i := 0; i < total; i++ {
		if !bm.isUsed(i) {
			if run == 0 {
				start = i
			}
			run++
			if run == n {
				out := make([]int, n)
				for j := 0; j < n; j++ {
					out[j] = start + j
					bm.setUsed(start+j, true)
				}
				return out, nil
			}
		} else {
			run = 0
		}
	}
	return nil, errors.New("no_space")
}

func (bm *bitmap) free(blocks []int) {
	for _, b := range blocks {
		bm.setUsed(b, false)
	}
}

func (bm *bitmap) flush() error {
	return bm.device.WriteBlock(bitmapBlock, bm.bits)
}

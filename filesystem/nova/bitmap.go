package nova

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
)

// bitmap is the MAP.DR free-block table: one bit per block from SCPPA
// upward, packed 16 bits per word across the blocks of MAP.DR itself.
type bitmap struct {
	fs     *FS
	blocks []int
	words  []uint16
}

// readBitmap loads the MAP.DR bitmap for the directory containing dir (nil
// for the root System Directory), mirroring DGDOSBitmap.read.
func (fs *FS) readBitmap(dir *ufd) (*bitmap, error) {
	entry, err := fs.getUFD(dir, mapDrName)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NotFound, "read_bitmap", mapDrName, err)
	}
	bm := &bitmap{fs: fs}
	numWords := int(entry.size()) / 2
	blocks, err := fs.fileBlocks(entry, true)
	if err != nil {
		return nil, err
	}
	bm.blocks = blocks
	for _, b := range blocks {
		words, err := fs.readWords(b)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_bitmap", mapDrName, err)
		}
		bm.words = append(bm.words, words...)
	}
	if len(bm.words) > numWords {
		bm.words = bm.words[:numWords]
	}
	return bm, nil
}

func (bm *bitmap) write() error {
	for i, block := range bm.blocks {
		lo := i * (512 / 2)
		hi := lo + 512/2
		words := make([]uint16, 512/2)
		if lo < len(bm.words) {
			end := hi
			if end > len(bm.words) {
				end = len(bm.words)
			}
			copy(words, bm.words[lo:end])
		}
		if err := bm.fs.writeWords(block, words); err != nil {
			return err
		}
	}
	return nil
}

func (bm *bitmap) totalBits() int { return len(bm.words) * 16 }

func (bm *bitmap) isFree(block int) bool {
	if block < scppa {
		return false
	}
	idx := block - scppa
	word := idx / 16
	bit := uint(idx % 16)
	if word >= len(bm.words) {
		return false
	}
	return bm.words[word]&(1<<bit) == 0
}

func (bm *bitmap) setFree(block int) {
	if block < scppa {
		return
	}
	idx := block - scppa
	word := idx / 16
	bit := uint(idx % 16)
	if word < len(bm.words) {
		bm.words[word] &^= 1 << bit
	}
}

func (bm *bitmap) setUsed(block int) {
	if block < scppa {
		return
	}
	idx := block - scppa
	word := idx / 16
	bit := uint(idx % 16)
	if word < len(bm.words) {
		bm.words[word] |= 1 << bit
	}
}

func (bm *bitmap) findContiguous(size int) (int, error) {
	current := 0
	start := -1
	for block := scppa; block < bm.totalBits()+scppa; block++ {
		if bm.isFree(block) {
			if current == 0 {
				start = block
			}
			current++
			if current == size {
				return start, nil
			}
		} else {
			current = 0
		}
	}
	return 0, filesystem.NewError(filesystem.NoSpace, "allocate", "", errors.New("no contiguous run large enough"))
}

// allocate marks size blocks used and returns them, contiguous (a single
// run) or scattered across the first free blocks found.
func (bm *bitmap) allocate(size int, contiguous bool) ([]int, error) {
	if contiguous && size != 1 {
		start, err := bm.findContiguous(size)
		if err != nil {
			return nil, err
		}
		blocks := make([]int, 0, size)
		for b := start; b < start+size; b++ {
			bm.setUsed(b)
			blocks = append(blocks, b)
		}
		return blocks, nil
	}
	var blocks []int
	for block := scppa; block < bm.totalBits()+scppa && len(blocks) < size; block++ {
		if bm.isFree(block) {
			bm.setUsed(block)
			blocks = append(blocks, block)
		}
	}
	if len(blocks) < size {
		return nil, filesystem.NewError(filesystem.NoSpace, "allocate", "", errors.New("not enough free blocks"))
	}
	return blocks, nil
}

func (bm *bitmap) used() int {
	n := 0
	for _, w := range bm.words {
		for w != 0 {
			n++
			w &= w - 1
		}
	}
	return n
}

func (bm *bitmap) free() int { return bm.totalBits() - bm.used() }

package dos11

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/filesystem/uic"
	"xferx/storage"
)

// ufdEntriesPerBlock is how many 18-byte entries fit after the 2-byte
// next-block link in one 512-byte UFD block.
const ufdEntriesPerBlock = (storage.BlockSize - 2) / ufdEntrySize

func nameWords(fullName string) [3]uint16 {
	base := fullName
	ext := ""
	if idx := strings.IndexByte(fullName, '.'); idx >= 0 {
		base = fullName[:idx]
		ext = fullName[idx+1:]
	}
	return encoding.RAD50NameExtToWords(base, ext)
}

// writeMFD serializes fs.mfd back to the MFD block (variant #1 only).
func (fs *FS) writeMFD() error {
	buf := make([]byte, storage.BlockSize)
	firstBitmap := uint16(0)
	if len(fs.bitmap.blocks) > 0 {
		firstBitmap = uint16(fs.bitmap.firstBlock)
	}
	binary.LittleEndian.PutUint16(buf[0:2], 0) // variant flag: two-level
	binary.LittleEndian.PutUint16(buf[2:4], firstBitmap)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(fs.mfd)))
	pos := 6
	for _, m := range fs.mfd {
		if pos+mfdEntrySize > len(buf) {
			return filesystem.NewError(filesystem.NoSpace, "write_mfd", "", errors.New("MFD block full"))
		}
		binary.LittleEndian.PutUint16(buf[pos:pos+2], m.UIC.ToWord())
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], m.FirstBlock)
		pos += mfdEntrySize
	}
	return fs.device.WriteBlock(mfdBlock, buf)
}

// writeUFDChain serializes every block of chain back to the device.
func (fs *FS) writeUFDChain(chain []*ufdBlockEntries) error {
	for _, ub := range chain {
		buf := make([]byte, storage.BlockSize)
		binary.LittleEndian.PutUint16(buf[0:2], uint16(ub.next))
		pos := 2
		slot := 0
		entryByIndex := map[int]*ufdEntry{}
		for _, e := range ub.entries {
			entryByIndex[e.index] = e
		}
		for slot < ufdEntriesPerBlock && pos+ufdEntrySize <= len(buf) {
			if e, ok := entryByIndex[slot]; ok {
				binary.LittleEndian.PutUint16(buf[pos:pos+2], e.NameWords[0])
				binary.LittleEndian.PutUint16(buf[pos+2:pos+4], e.NameWords[1])
				binary.LittleEndian.PutUint16(buf[pos+4:pos+6], e.NameWords[2])
				binary.LittleEndian.PutUint16(buf[pos+6:pos+8], e.DateType)
				binary.LittleEndian.PutUint16(buf[pos+8:pos+10], e.FirstBlock)
				binary.LittleEndian.PutUint16(buf[pos+10:pos+12], e.Length)
				buf[pos+12] = e.Protection
			}
			pos += ufdEntrySize
			slot++
		}
		if err := fs.device.WriteBlock(ub.blockNum, buf); err != nil {
			return err
		}
	}
	return nil
}

// appendUFDEntry places e into the first free slot of chain, allocating and
// linking a fresh UFD block from the bitmap if every existing block is full.
func (fs *FS) appendUFDEntry(chain []*ufdBlockEntries, e *ufdEntry) ([]*ufdBlockEntries, error) {
	for _, ub := range chain {
		if len(ub.entries) < ufdEntriesPerBlock {
			occupied := make(map[int]bool)
			for _, o := range ub.entries {
				occupied[o.index] = true
			}
			slot := 0
			for occupied[slot] {
				slot++
			}
			e.ufdBlock = ub.blockNum
			e.index = slot
			ub.entries = append(ub.entries, e)
			return chain, nil
		}
	}
	blk, err := fs.bitmap.allocateContiguous(1)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", e.name(), err)
	}
	if err := fs.bitmap.flush(); err != nil {
		return nil, err
	}
	newBlock := &ufdBlockEntries{blockNum: blk[0]}
	e.ufdBlock = blk[0]
	e.index = 0
	newBlock.entries = append(newBlock.entries, e)
	if len(chain) > 0 {
		chain[len(chain)-1].next = blk[0]
	}
	chain = append(chain, newBlock)
	return chain, nil
}

// CreateFile implements §4.1 create_file for DOS-11: linked files pre-
// allocate every block via the bitmap up front and stamp the per-block
// link fields immediately; contiguous files allocate one run via
// allocateContiguous. The UIC is taken from the current working directory.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	targetUIC := fs.cwd
	name := fullPath
	if idx := strings.IndexByte(fullPath, ']'); strings.HasPrefix(fullPath, "[") && idx >= 0 {
		if u, err := uic.Parse(fullPath[:idx+1]); err == nil {
			targetUIC = u
			name = fullPath[idx+1:]
		}
	}
	name = strings.ToUpper(strings.TrimSpace(name))

	if existing, err := fs.GetFileEntry(fullPath); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}

	first, ok := fs.ufdFirstBlockFor(targetUIC)
	if !ok {
		return nil, filesystem.NewError(filesystem.NotFound, "create_file", targetUIC.String(), nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "create_file", targetUIC.String(), err)
	}

	contiguous := strings.EqualFold(fileType, "CONTIGUOUS")
	e := &ufdEntry{
		NameWords: nameWords(name),
		DateType:  encoding.DOS11EncodeDate(creationDate),
	}

	if contiguous {
		run, err := fs.bitmap.allocateContiguous(blocks)
		if err != nil {
			return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, err)
		}
		e.DateType |= contiguousFlag
		e.FirstBlock = uint16(run[0])
		e.Length = uint16(blocks)
	} else {
		run, err := fs.bitmap.allocateLinked(blocks)
		if err != nil {
			return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, err)
		}
		if len(run) > 0 {
			e.FirstBlock = uint16(run[0])
		}
		if err := fs.writeLinkChain(run); err != nil {
			return nil, err
		}
	}
	if err := fs.bitmap.flush(); err != nil {
		return nil, err
	}

	chain, err = fs.appendUFDEntry(chain, e)
	if err != nil {
		return nil, err
	}
	if err := fs.writeUFDChain(chain); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	return &Entry{fs: fs, uic: targetUIC, e: e}, nil
}

// writeLinkChain stamps each block in order with the next block's number
// (0 terminates) so the chain is walkable before any payload is written.
func (fs *FS) writeLinkChain(blocks []int) error {
	for i, b := range blocks {
		raw := make([]byte, storage.BlockSize)
		next := 0
		if i+1 < len(blocks) {
			next = blocks[i+1]
		}
		binary.LittleEndian.PutUint16(raw[linkedPayload:linkedPayload+2], uint16(next))
		if err := fs.device.WriteBlock(b, raw); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes entry's UFD slot (written first, per §5's
// directory-before-bitmap ordering for delete, so a crash mid-delete never
// leaves a block both free and still claimed by a directory entry) then
// frees its blocks in the bitmap.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	de, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	blocks := fs.entryBlocks(de.e)

	first, ok := fs.ufdFirstBlockFor(de.uic)
	if !ok {
		return filesystem.NewError(filesystem.NotFound, "delete", entry.FullPath(), nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return filesystem.NewError(filesystem.Corrupt, "delete", entry.FullPath(), err)
	}
	for _, ub := range chain {
		for i, e := range ub.entries {
			if e.ufdBlock == de.e.ufdBlock && e.index == de.e.index {
				ub.entries = append(ub.entries[:i], ub.entries[i+1:]...)
				break
			}
		}
	}
	if err := fs.writeUFDChain(chain); err != nil {
		return err
	}
	fs.bitmap.free(blocks)
	return fs.bitmap.flush()
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	unit := linkedPayload
	if strings.EqualFold(fileType, "CONTIGUOUS") {
		unit = storage.BlockSize
	}
	blocks := (len(content) + unit - 1) / unit
	if blocks == 0 {
		blocks = 1
	}
	entry, err := fs.CreateFile(fullPath, blocks, creationDate, fileType)
	if err != nil {
		return nil, err
	}
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	padded := make([]byte, blocks*unit)
	copy(padded, content)
	if err := handle.WriteBlock(padded, 0, blocks); err != nil {
		return nil, err
	}
	return entry, nil
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

// Initialize writes a blank variant #1 volume: an empty two-level MFD (just
// the [1,1] UIC with an empty UFD) and a single bitmap block covering every
// data block as free.
func Initialize(device *storage.BlockDevice, options map[string]string) error {
	if device.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	total := device.NumBlocks()
	bitmapBlockNum := 2
	ufdBlockNum := 3
	if total <= ufdBlockNum {
		return filesystem.NewError(filesystem.Invalid, "initialize", "", errors.New("volume too small for DOS-11"))
	}

	bmBuf := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(bmBuf[0:2], 0)
	binary.LittleEndian.PutUint16(bmBuf[2:4], 0)
	for _, reserved := range []int{0, mfdBlock, bitmapBlockNum, ufdBlockNum} {
		bmBuf[bitmapHeaderSize+reserved/8] |= 1 << uint(reserved%8)
	}
	if err := device.WriteBlock(bitmapBlockNum, bmBuf); err != nil {
		return err
	}

	ufdBuf := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(ufdBuf[0:2], 0)
	if err := device.WriteBlock(ufdBlockNum, ufdBuf); err != nil {
		return err
	}

	mfdBuf := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(mfdBuf[0:2], 0)
	binary.LittleEndian.PutUint16(mfdBuf[2:4], uint16(bitmapBlockNum))
	binary.LittleEndian.PutUint16(mfdBuf[4:6], 1)
	binary.LittleEndian.PutUint16(mfdBuf[6:8], uic.Default.ToWord())
	binary.LittleEndian.PutUint16(mfdBuf[8:10], uint16(ufdBlockNum))
	return device.WriteBlock(mfdBlock, mfdBuf)
}

func (fs *FS) Initialize(options map[string]string) error {
	return Initialize(fs.device, options)
}

package tss8

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/filesystem/uic"
	"xferx/storage"
)

// DirEntry adapts a [proj,prog] directory node itself to filesystem.Entry,
// so Delete can recurse into a UIC the way a real directory delete would.
type DirEntry struct {
	fs         *FS
	uic        uic.UIC
	firstBlock int
}

var _ filesystem.Entry = (*DirEntry)(nil)

func (en *DirEntry) Name() string            { return en.uic.String() }
func (en *DirEntry) FullPath() string        { return en.uic.String() }
func (en *DirEntry) Length() int             { return 1 }
func (en *DirEntry) Size() int64             { return BlockSizeBytes }
func (en *DirEntry) CreationDate() time.Time { return time.Time{} }
func (en *DirEntry) FileType() string        { return "DIRECTORY" }
func (en *DirEntry) IsEmpty() bool           { return false }
func (en *DirEntry) IsDirectory() bool       { return true }

func nameWords(fullName string) [3]uint16 {
	base := fullName
	ext := ""
	if idx := strings.IndexByte(fullName, '.'); idx >= 0 {
		base = fullName[:idx]
		ext = fullName[idx+1:]
	}
	return encoding.RAD50NameExtToWords(base, ext)
}

// findSlot finds a free (zeroed) slot in the existing UFD chain, or reports
// that a new block must be appended to the chain.
func findSlot(chain []*ufdBlockEntries) (ub *ufdBlockEntries, index int, ok bool) {
	for _, b := range chain {
		occupied := make(map[int]bool)
		for _, e := range b.entries {
			occupied[e.index] = true
		}
		for i := 0; i < entriesPerBlock; i++ {
			if !occupied[i] {
				return b, i, true
			}
		}
	}
	return nil, 0, false
}

// CreateFile allocates blocks++ a contiguous run via the bitmap, deletes any
// prior file of the same name first, and appends its UFD entry, growing the
// chain with a fresh block when the last one is full. Bitmap is written
// before the directory entry, per §5's ordering guarantee.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	targetUIC, rest, err := splitUIC(fullPath, fs.cwd)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Invalid, "create_file", fullPath, err)
	}
	name := strings.ToUpper(strings.TrimSpace(rest))

	if existing, err := fs.GetFileEntry(fullPath); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}

	first, ok := fs.ufdFirstBlockFor(targetUIC)
	if !ok {
		return nil, filesystem.NewError(filesystem.NotDirectory, "create_file", fullPath, nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "create_file", fullPath, err)
	}

	dataBlocks, err := fs.bitmap.allocateContiguous(blocks)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, err)
	}

	ub, idx, ok := findSlot(chain)
	if !ok {
		newBlk, aerr := fs.bitmap.allocateContiguous(1)
		if aerr != nil {
			fs.bitmap.free(dataBlocks)
			return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, aerr)
		}
		last := chain[len(chain)-1]
		last.next = newBlk[0]
		if err := fs.writeUFDBlock(last); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
		}
		ub = &ufdBlockEntries{blockNum: newBlk[0]}
		idx = 0
	}

	if creationDate.IsZero() {
		creationDate = time.Now()
	}
	e := &ufdEntry{
		NameWords:  nameWords(name),
		Date:       encoding.TSS8EncodeDate(creationDate),
		FirstBlock: uint16(dataBlocks[0]),
		Length:     uint16(blocks),
		ufdBlock:   ub.blockNum,
		index:      idx,
	}
	ub.entries = append(ub.entries, e)

	if err := fs.bitmap.flush(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	if err := fs.writeUFDBlock(ub); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	return &Entry{fs: fs, uic: targetUIC, e: e}, nil
}

// CreateDirectory allocates one UFD head block for a new [proj,prog] entry
// and appends it to the MFD.
func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, nil)
	}
	u, err := uic.Parse(fullPath)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Invalid, "create_directory", fullPath, err)
	}
	if _, ok := fs.ufdFirstBlockFor(u); ok {
		return nil, filesystem.NewError(filesystem.Exists, "create_directory", fullPath, nil)
	}
	blk, err := fs.bitmap.allocateContiguous(1)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_directory", fullPath, err)
	}
	if err := fs.bitmap.flush(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_directory", fullPath, err)
	}
	empty := make([]byte, storage.BlockSize)
	if err := fs.device.WriteBlock(blk[0], empty); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_directory", fullPath, err)
	}
	fs.mfd = append(fs.mfd, mfdEntry{UIC: u, FirstBlock: uint16(blk[0])})
	if err := fs.writeMFD(); err != nil {
		return nil, err
	}
	return &DirEntry{fs: fs, uic: u, firstBlock: blk[0]}, nil
}

// Delete frees entry's blocks and removes its UFD slot; for a DirEntry it
// recursively deletes every file in the directory first, then frees the
// UFD chain's own blocks and removes the MFD entry.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	if de, ok := entry.(*DirEntry); ok {
		return fs.deleteDirectory(de)
	}
	tEntry, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	e := tEntry.e

	raw, err := fs.device.ReadBlock(e.ufdBlock)
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "delete", entry.FullPath(), err)
	}
	pos := ufdHeaderSize + e.index*ufdEntrySize
	for i := 0; i < ufdEntrySize && pos+i < len(raw); i++ {
		raw[pos+i] = 0
	}
	if err := fs.device.WriteBlock(e.ufdBlock, raw); err != nil {
		return filesystem.NewError(filesystem.EIO, "delete", entry.FullPath(), err)
	}

	blocks := make([]int, e.Length)
	for i := range blocks {
		blocks[i] = int(e.FirstBlock) + i
	}
	fs.bitmap.free(blocks)
	return fs.bitmap.flush()
}

func (fs *FS) deleteDirectory(de *DirEntry) error {
	entries, err := fs.entriesIn(de.uic)
	if err != nil {
		return err
	}
	for _, en := range entries {
		if err := fs.Delete(en); err != nil {
			return err
		}
	}
	chain, err := fs.readUFDChain(de.firstBlock)
	if err != nil {
		return filesystem.NewError(filesystem.Corrupt, "delete", de.FullPath(), err)
	}
	var blocks []int
	for _, ub := range chain {
		blocks = append(blocks, ub.blockNum)
	}
	fs.bitmap.free(blocks)
	if err := fs.bitmap.flush(); err != nil {
		return err
	}

	kept := fs.mfd[:0]
	for _, m := range fs.mfd {
		if m.UIC != de.uic {
			kept = append(kept, m)
		}
	}
	fs.mfd = kept
	return fs.writeMFD()
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	blocks := (len(content) + BlockSizeBytes - 1) / BlockSizeBytes
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

	padded := make([]byte, blocks*BlockSizeBytes)
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

// Initialize writes an empty MFD (with the default [1,1] UIC pre-created), a
// zeroed bitmap with the boot/MFD/bitmap blocks marked used, and no files.
func Initialize(device *storage.BlockDevice, options map[string]string) error {
	if device.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	total := device.NumBlocks()
	reserved := bitmapBlock + 1 // blocks 0 (boot), 1 (MFD), 2 (bitmap)
	ufdBlk := reserved          // first free block after the reserved area
	if total <= ufdBlk+1 {
		return filesystem.NewError(filesystem.Invalid, "initialize", "", errors.New("volume too small for TSS/8"))
	}

	bits := make([]byte, storage.BlockSize)
	for b := 0; b < reserved; b++ {
		bits[b/8] |= 1 << uint(b%8)
	}
	bits[ufdBlk/8] |= 1 << uint(ufdBlk%8)
	if err := device.WriteBlock(bitmapBlock, bits); err != nil {
		return err
	}
	empty := make([]byte, storage.BlockSize)
	if err := device.WriteBlock(ufdBlk, empty); err != nil {
		return err
	}

	mfdBuf := make([]byte, storage.BlockSize)
	mfdBuf[0] = 1 // one entry
	defaultWord := uic.Default.ToWord()
	mfdBuf[mfdHeaderSize] = byte(defaultWord)
	mfdBuf[mfdHeaderSize+1] = byte(defaultWord >> 8)
	mfdBuf[mfdHeaderSize+2] = byte(ufdBlk)
	mfdBuf[mfdHeaderSize+3] = byte(ufdBlk >> 8)
	return device.WriteBlock(mfdBlock, mfdBuf)
}

func (fs *FS) Initialize(options map[string]string) error {
	return Initialize(fs.device, options)
}

package caps11

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

func nameWords(fullName string) [3]uint16 {
	base := fullName
	ext := ""
	if idx := strings.IndexByte(fullName, '.'); idx >= 0 {
		base = fullName[:idx]
		ext = fullName[idx+1:]
	}
	return encoding.RAD50NameExtToWords(base, ext)
}

// findSlot finds a free (zeroed) slot in the existing directory chain, or
// reports that a new block must be appended to the chain.
func findSlot(chain []*dirBlockEntries) (db *dirBlockEntries, index int, ok bool) {
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

// CreateFile allocates a contiguous run via the bitmap, deletes any prior
// file of the same name first, and appends a directory entry, growing the
// chain with a fresh block when the last one is full. Bitmap is written
// before the directory entry, per §5's ordering guarantee.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	name := strings.ToUpper(strings.TrimSpace(stripBrackets(fullPath)))

	if existing, err := fs.GetFileEntry(fullPath); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}

	chain, err := fs.readDirChain(fs.dirFirst)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "create_file", fullPath, err)
	}

	dataBlocks, err := fs.bitmap.allocateContiguous(blocks)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, err)
	}

	db, idx, ok := findSlot(chain)
	if !ok {
		newBlk, aerr := fs.bitmap.allocateContiguous(1)
		if aerr != nil {
			fs.bitmap.free(dataBlocks)
			return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, aerr)
		}
		last := chain[len(chain)-1]
		last.next = newBlk[0]
		if err := fs.writeDirBlock(last); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
		}
		db = &dirBlockEntries{blockNum: newBlk[0]}
		idx = 0
	}

	if creationDate.IsZero() {
		creationDate = time.Now()
	}
	e := &dirEntry{
		NameWords:  nameWords(name),
		Date:       encoding.RT11EncodeDate(creationDate),
		FirstBlock: uint16(dataBlocks[0]),
		Length:     uint16(blocks),
		dirBlk:     db.blockNum,
		index:      idx,
	}
	db.entries = append(db.entries, e)

	if err := fs.bitmap.flush(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	if err := fs.writeDirBlock(db); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	return &Entry{fs: fs, e: e}, nil
}

// CreateDirectory is unsupported: CAPS-11 has a single flat directory.
func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.NotDirectory, "create_directory", fullPath, nil)
}

// Delete frees entry's blocks and zeroes its directory slot.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	tEntry, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	e := tEntry.e

	raw, err := fs.device.ReadBlock(e.dirBlk)
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "delete", entry.FullPath(), err)
	}
	pos := dirHeaderSize + e.index*dirEntrySize
	for i := 0; i < dirEntrySize && pos+i < len(raw); i++ {
		raw[pos+i] = 0
	}
	if err := fs.device.WriteBlock(e.dirBlk, raw); err != nil {
		return filesystem.NewError(filesystem.EIO, "delete", entry.FullPath(), err)
	}

	blocks := make([]int, e.Length)
	for i := range blocks {
		blocks[i] = int(e.FirstBlock) + i
	}
	fs.bitmap.free(blocks)
	return fs.bitmap.flush()
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

// Initialize writes an empty directory head block and a zeroed bitmap with
// the boot/directory/bitmap blocks marked used, and no files.
func Initialize(device *storage.BlockDevice, options map[string]string) error {
	if device.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	total := device.NumBlocks()
	reserved := bitmapBlock + 1 // blocks 0 (boot), 1 (directory), 2 (bitmap)
	if total <= reserved {
		return filesystem.NewError(filesystem.Invalid, "initialize", "", errors.New("volume too small for CAPS-11"))
	}

	bits := make([]byte, storage.BlockSize)
	for b := 0; b < reserved; b++ {
		bits[b/8] |= 1 << uint(b%8)
	}
	if err := device.WriteBlock(bitmapBlock, bits); err != nil {
		return err
	}

	empty := make([]byte, storage.BlockSize)
	return device.WriteBlock(dirBlock, empty)
}

func (fs *FS) Initialize(options map[string]string) error {
	return Initialize(fs.device, options)
}

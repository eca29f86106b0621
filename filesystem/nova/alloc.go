package nova

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

// freeUFDSlot finds an empty UFD entry in the System Directory rooted at
// dir, probing the block at hash and hash-1 first before giving up, per
// SystemDirectory.get_free_entry.
func (fs *FS) freeUFDSlot(dir *ufd, hash int) (*ufd, error) {
	blocks, err := fs.sysDirBlocks(dir)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", "", errors.New("empty System Directory"))
	}
	for _, d := range [2]int{0, -1} {
		idx := ((hash+d)%len(blocks) + len(blocks)) % len(blocks)
		block := blocks[idx]
		buf, err := fs.readBlock(block)
		if err != nil {
			return nil, err
		}
		for pos := 2; pos+ufdEntrySize <= storage.BlockSize-4; pos += ufdEntrySize {
			e := readUFD(buf, pos, dir, block)
			if e.isEmpty() {
				return e, nil
			}
		}
	}
	return nil, filesystem.NewError(filesystem.NoSpace, "create_file", "", errors.New("no free entries in SYS.DR"))
}

// writeUFD re-reads the entry's System Directory block, overwrites the
// entry's bytes, fixes up the block's file count, and writes it back.
func (fs *FS) writeUFD(e *ufd) error {
	buf, err := fs.readBlock(e.sysDirBlock)
	if err != nil {
		return err
	}
	e.writeTo(buf)
	count := 0
	for pos := 2; pos+ufdEntrySize <= storage.BlockSize-4; pos += ufdEntrySize {
		if buf[pos] != 0 || buf[pos+1] != 0 {
			count++
		}
	}
	buf[0] = byte(count)
	buf[1] = byte(count >> 8)
	return fs.writeBlock(e.sysDirBlock, buf)
}

// CreateFile allocates blocks for a new random/contiguous/sequential file
// and a free SYS.DR entry for it, per UserFileDescriptor.create.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	rawType := FileTypeID(fileType)

	dirPath, base := splitPath(fullPath)
	parent, err := fs.resolveDir(dirPath)
	if err != nil {
		return nil, err
	}
	name, ext := canonicalName(base)
	if (name+"."+ext == sysDrName) || (name+"."+ext == mapDrName) || name == sysDrName || name == mapDrName {
		return nil, filesystem.NewError(filesystem.Exists, "create_file", fullPath, nil)
	}

	if existing, err := fs.getUFD(parent, base); err == nil {
		if err := fs.deleteUFD(existing); err != nil {
			return nil, err
		}
	}

	var attributes int
	var blocksUsed, indexBlocks int
	switch rawType {
	case RandomFileType:
		attributes = atRAN
		indexBlocks = (blocks-1)/indexEntries + 1
		blocksUsed = blocks + indexBlocks
	case ContiguousFileType:
		attributes = atCON
		blocksUsed = blocks
	default:
		blocksUsed = blocks
	}

	bm, err := fs.readBitmap(parent)
	if err != nil {
		return nil, err
	}
	allocated, err := bm.allocate(blocksUsed, rawType == ContiguousFileType)
	if err != nil {
		return nil, err
	}

	entry, err := fs.freeUFDSlot(parent, filenameHash(name, ext, fs.frameSize))
	if err != nil {
		return nil, err
	}
	entry.name, entry.ext = name, ext
	entry.attributes = attributes
	entry.address = allocated[0]
	entry.lastBlockNumber = blocks - 1
	entry.bytesInLast = storage.BlockSize
	days, hm := encoding.RDOSEncodeDateTime(creationDate)
	entry.lastModDate, entry.lastModTime = days, hm
	entry.lastAccessDate = days

	switch rawType {
	case RandomFileType:
		for i := 0; i < indexBlocks; i++ {
			lo := indexBlocks + i*indexEntries
			hi := lo + indexEntries
			if hi > len(allocated) {
				hi = len(allocated)
			}
			words := make([]uint16, indexEntries+1)
			for j, b := range allocated[lo:hi] {
				words[j] = uint16(b)
			}
			if i < indexBlocks-1 {
				words[indexEntries] = uint16(allocated[i+1])
			}
			if err := fs.writeWords(allocated[i], words); err != nil {
				return nil, err
			}
		}
	case SequentialFileType:
		for i, block := range allocated {
			words := make([]uint16, storage.BlockSize/2)
			if i < len(allocated)-1 {
				words[len(words)-1] = uint16(allocated[i+1])
			}
			if err := fs.writeWords(block, words); err != nil {
				return nil, err
			}
		}
	}

	if err := bm.write(); err != nil {
		return nil, err
	}
	if err := fs.writeUFD(entry); err != nil {
		return nil, err
	}
	return &Entry{fs: fs, e: entry}, nil
}

func splitPath(fullPath string) (dir, base string) {
	idx := strings.LastIndexByte(fullPath, '/')
	if idx < 0 {
		return "", fullPath
	}
	return fullPath[:idx], fullPath[idx+1:]
}

func (fs *FS) resolveDir(dirPath string) (*ufd, error) {
	if dirPath == "" {
		return fs.cwd(), nil
	}
	e, err := fs.resolve(dirPath)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NotDirectory, "create_file", dirPath, err)
	}
	return e, nil
}

// CreateDirectory is unsupported: building a new RDOS directory/partition
// (its own SYS.DR and MAP.DR) is out of scope for this driver.
func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, errors.New("creating Nova directories/partitions is not supported"))
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	rawType := FileTypeID(fileType)
	blockSize := storage.BlockSize
	if rawType == SequentialFileType {
		if fs.doubleAddressing {
			blockSize = sequentialBlockSizeLarge
		} else {
			blockSize = sequentialBlockSize
		}
	}
	blocks := (len(content) + blockSize - 1) / blockSize
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
	padded := make([]byte, blocks*storage.BlockSize)
	copy(padded, content)
	if err := handle.WriteBlock(padded, 0, blocks); err != nil {
		return nil, err
	}
	return entry, nil
}

// deleteUFD frees an entry's blocks and clears its SYS.DR slot in place,
// without recursing into directory children (Delete does that).
func (fs *FS) deleteUFD(e *ufd) error {
	bm, err := fs.readBitmap(e.parent)
	if err != nil {
		return err
	}
	blocks, err := fs.fileBlocks(e, true)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		bm.setFree(b)
	}
	if err := bm.write(); err != nil {
		return err
	}
	*e = ufd{parent: e.parent, sysDirBlock: e.sysDirBlock, entryOffset: e.entryOffset}
	return fs.writeUFD(e)
}

// Delete removes a file, link, directory, or partition. Directories recurse
// into their own entries first (skipping their own MAP.DR and their "."
// self-reference), per UserFileDescriptor.delete.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	en, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	if en.e.isDirectory() {
		children, err := fs.readDirEntries(en.e)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.basename() == mapDrName || c.address == en.e.address {
				continue
			}
			if err := fs.Delete(&Entry{fs: fs, e: c}); err != nil {
				return err
			}
		}
	}
	return fs.deleteUFD(en.e)
}

package prodos

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/filesystem/applesingle"
	"xferx/storage"
)

// encodeAppleSingle wraps a BIN-type file's data fork plus its ProDOS
// metadata in an AppleSingle envelope, per FileEntry.read_bytes.
func encodeAppleSingle(e *dirEntry, data []byte) []byte {
	return applesingle.Encode(&applesingle.File{
		Data: data,
		ProDOSInfo: &applesingle.ProDOSFileInfo{
			Access:   uint16(e.access),
			FileType: uint16(e.fileType),
			AuxType:  uint32(e.auxType),
		},
	})
}

// decodeIfAppleSingle mirrors write_bytes's decode_apple_single/ValueError
// recovery: if content parses as an AppleSingle envelope, its data fork and
// ProDOS file info override the caller-supplied bytes/type; otherwise the
// content is used verbatim as a plain data fork.
func decodeIfAppleSingle(content []byte, fileType string) ([]byte, byte, int, int) {
	ft := parseFileType(fileType)
	if decoded, err := applesingle.Decode(content); err == nil {
		if decoded.ProDOSInfo != nil {
			ft = byte(decoded.ProDOSInfo.FileType)
			return decoded.Data, ft, int(decoded.ProDOSInfo.Access), int(decoded.ProDOSInfo.AuxType)
		}
		return decoded.Data, ft, defaultAccess, 0
	}
	return content, ft, defaultAccess, 0
}

// blocksNeeded returns the storage type and total blocks_used (data blocks
// plus index/master-index overhead) for a file of the given data-block
// length, per RegularFileEntry.create.
func blocksNeeded(length int) (storageType, blocksUsed int) {
	switch {
	case length <= 1:
		return storageSeedling, 1
	case length <= 256:
		return storageSapling, length + 1
	default:
		return storageTree, length + ((length + 255) >> 8) + 1
	}
}

func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	if existing, err := fs.GetFileEntry(fullPath); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}
	dir, name := fs.splitPath(fullPath)
	dirBlock, _, err := fs.resolveDir(dir)
	if err != nil {
		return nil, err
	}

	bm, err := readBitmap(fs)
	if err != nil {
		return nil, err
	}
	storageType, blocksUsed := blocksNeeded(blocks)
	allocated, err := bm.allocate(blocksUsed)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, err)
	}

	e := &dirEntry{
		storageType: storageType,
		name:        strings.ToUpper(name),
		fileType:    parseFileType(fileType),
		blocksUsed:  blocksUsed,
		length:      blocks * storage.BlockSize,
		access:      defaultAccess,
		created:     creationDate,
	}
	e.keyPointer = allocated[0]
	rest := allocated[1:]

	switch storageType {
	case storageSeedling:
		// key_pointer is the single data block; no index needed.
	case storageSapling:
		idx := make([]int, pointersPerIndex)
		for i := 0; i < blocksUsed-1 && i < len(rest); i++ {
			idx[i] = rest[i]
		}
		if err := fs.writeIndexBlock(e.keyPointer, idx); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
		}
	case storageTree:
		master := make([]int, pointersPerIndex)
		ri := 0
		for mi := 0; mi < pointersPerIndex && ri < len(rest); mi++ {
			indexBlockNum := rest[ri]
			ri++
			master[mi] = indexBlockNum
			idx := make([]int, pointersPerIndex)
			for k := 0; k < pointersPerIndex && ri < len(rest); k++ {
				idx[k] = rest[ri]
				ri++
			}
			if err := fs.writeIndexBlock(indexBlockNum, idx); err != nil {
				return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
			}
		}
		if err := fs.writeIndexBlock(e.keyPointer, master); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
		}
	}

	if err := fs.appendDirEntry(dirBlock, e); err != nil {
		return nil, err
	}
	if err := bm.write(); err != nil {
		return nil, err
	}
	return &Entry{fs: fs, fullpath: dir + "/" + e.name, e: e}, nil
}

// appendDirEntry writes e into the first inactive slot of the directory
// chain starting at keyBlock, growing the chain is not implemented (matches
// the backlog tradeoff recorded in DESIGN.md: directories are created with
// defaultDirBlocks and not auto-grown).
func (fs *FS) appendDirEntry(keyBlock int, e *dirEntry) error {
	placed := false
	err := fs.dirChain(keyBlock, func(block, off int, existing *dirEntry) error {
		if placed || existing.storageType != storageInactive {
			return nil
		}
		buf, err := fs.dev.ReadBlock(block)
		if err != nil {
			return err
		}
		writeEntry(buf, off, e)
		if err := fs.dev.WriteBlock(block, buf); err != nil {
			return err
		}
		e.parentBlock, e.parentOff = block, off
		placed = true
		return nil
	})
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "append_dir_entry", e.name, err)
	}
	if !placed {
		return filesystem.NewError(filesystem.NoSpace, "append_dir_entry", e.name, errors.New("directory full"))
	}
	return nil
}

func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, nil)
	}
	dir, name := fs.splitPath(fullPath)
	dirBlock, _, err := fs.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	bm, err := readBitmap(fs)
	if err != nil {
		return nil, err
	}
	allocated, err := bm.allocate(defaultDirBlocks)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_directory", fullPath, err)
	}
	// Chain the allocated blocks and write a subdirectory header into the
	// key block's first slot.
	for i, block := range allocated {
		buf := make([]byte, storage.BlockSize)
		if i+1 < len(allocated) {
			putLe16(buf[2:4], uint16(allocated[i+1]))
		}
		if err := fs.dev.WriteBlock(block, buf); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_directory", fullPath, err)
		}
	}
	hdr := &dirEntry{storageType: storageSubdirHdr, name: strings.ToUpper(name), access: defaultAccess, created: time.Now()}
	buf, err := fs.dev.ReadBlock(allocated[0])
	if err != nil {
		return nil, err
	}
	writeEntry(buf, 4, hdr)
	if err := fs.dev.WriteBlock(allocated[0], buf); err != nil {
		return nil, err
	}

	e := &dirEntry{storageType: storageDirFile, name: hdr.name, keyPointer: allocated[0], blocksUsed: defaultDirBlocks, access: defaultAccess, created: hdr.created}
	if err := fs.appendDirEntry(dirBlock, e); err != nil {
		return nil, err
	}
	if err := bm.write(); err != nil {
		return nil, err
	}
	return &Entry{fs: fs, fullpath: dir + "/" + e.name, e: e}, nil
}

// WriteBytes decodes an AppleSingle envelope when present (the COPY-in
// path for a BIN file re-wrapped by ReadBytes on the way out), otherwise
// treats content as a plain data fork, per ProDOSFilesystem.write_bytes.
func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	data, ft, access, auxType := decodeIfAppleSingle(content, fileType)
	numBlocks := (len(data) + storage.BlockSize - 1) / storage.BlockSize
	if numBlocks == 0 {
		numBlocks = 1
	}
	entry, err := fs.CreateFile(fullPath, numBlocks, creationDate, "")
	if err != nil {
		return nil, err
	}
	en := entry.(*Entry)
	en.e.fileType = ft
	en.e.access = access
	en.e.auxType = auxType
	en.e.length = len(data)
	if err := fs.rewriteEntry(en.e); err != nil {
		return nil, err
	}

	padded := make([]byte, numBlocks*storage.BlockSize)
	copy(padded, data)
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	if err := handle.WriteBlock(padded, 0, numBlocks); err != nil {
		return nil, err
	}
	return entry, nil
}

// rewriteEntry re-serializes e's metadata fields into its directory slot
// after CreateFile wrote a provisional version.
func (fs *FS) rewriteEntry(e *dirEntry) error {
	buf, err := fs.dev.ReadBlock(e.parentBlock)
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "rewrite_entry", e.name, err)
	}
	writeEntry(buf, e.parentOff, e)
	if err := fs.dev.WriteBlock(e.parentBlock, buf); err != nil {
		return filesystem.NewError(filesystem.EIO, "rewrite_entry", e.name, err)
	}
	return nil
}

func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	en, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	bm, err := readBitmap(fs)
	if err != nil {
		return err
	}
	if en.e.isDir() {
		children, err := fs.listDir(en.e.keyPointer)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := fs.Delete(&Entry{fs: fs, fullpath: en.fullpath + "/" + child.name, e: child}); err != nil {
				return err
			}
		}
	} else {
		blocks, err := fs.blocksIncludingIndexes(en.e)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			bm.setFree(b)
		}
	}
	e := *en.e
	e.storageType = storageInactive
	if err := fs.rewriteEntry(&e); err != nil {
		return err
	}
	if en.e.isDir() {
		for _, b := range dirChainBlocks(fs, en.e.keyPointer) {
			bm.setFree(b)
		}
	}
	return bm.write()
}

func dirChainBlocks(fs *FS, keyBlock int) []int {
	var out []int
	block := keyBlock
	for block != 0 {
		out = append(out, block)
		buf, err := fs.dev.ReadBlock(block)
		if err != nil {
			break
		}
		block = int(le16(buf[2:4]))
	}
	return out
}

func (fs *FS) blocksIncludingIndexes(e *dirEntry) ([]int, error) {
	data, err := fs.blocks(e)
	if err != nil {
		return nil, err
	}
	switch e.storageType {
	case storageSapling:
		return append([]int{e.keyPointer}, data...), nil
	case storageTree:
		master, err := fs.readIndexBlock(e.keyPointer)
		if err != nil {
			return nil, err
		}
		out := []int{e.keyPointer}
		for _, m := range master {
			if m != 0 {
				out = append(out, m)
			}
		}
		return append(out, data...), nil
	default:
		return data, nil
	}
}

// New returns an unformatted FS bound to dev, for Initialize to format.
func New(dev *storage.BlockDevice) *FS { return &FS{dev: dev, pwd: "/"} }

// Initialize writes a fresh key-block Volume Directory Header plus its
// defaultDirBlocks-1 successor blocks, and an all-free bitmap with the boot,
// directory, and bitmap blocks themselves marked used.
func (fs *FS) Initialize(options map[string]string) error {
	if fs.dev.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	total := fs.dev.NumBlocks()
	name := "XFERX"
	if v, ok := options["volume"]; ok && v != "" {
		name = strings.ToUpper(v)
	}
	if len(name) > filenameLen {
		name = name[:filenameLen]
	}

	bitmapStart := volumeDirBlock + defaultDirBlocks
	bmBlocks := bitmapBlockCount(total)
	if total <= bitmapStart+bmBlocks {
		return filesystem.NewError(filesystem.Invalid, "initialize", "", errors.New("volume too small for ProDOS"))
	}

	for i := 0; i < defaultDirBlocks; i++ {
		block := volumeDirBlock + i
		buf := make([]byte, storage.BlockSize)
		prev, next := 0, 0
		if i > 0 {
			prev = block - 1
		}
		if i < defaultDirBlocks-1 {
			next = block + 1
		}
		buf[0], buf[1] = byte(prev), byte(prev>>8)
		buf[2], buf[3] = byte(next), byte(next>>8)
		if i == 0 {
			writeEntry(buf, 4, &dirEntry{
				storageType:   storageVolDirHdr,
				name:          name,
				created:       time.Now(),
				access:        defaultAccess,
				bitMapPointer: bitmapStart,
				totalBlocks:   total,
			})
		}
		if err := fs.dev.WriteBlock(block, buf); err != nil {
			return filesystem.NewError(filesystem.EIO, "initialize", "", err)
		}
	}

	fs.bitMapPointer = bitmapStart
	bm := &bitmapView{fs: fs, blocks: bmBlocks, bytes: make([]byte, bmBlocks*storage.BlockSize)}
	for i := range bm.bytes {
		bm.bytes[i] = 0xFF
	}
	for block := 0; block < bitmapStart+bmBlocks; block++ {
		bm.setUsed(block)
	}
	for block := total; block < bmBlocks*storage.BlockSize*8; block++ {
		bm.setUsed(block)
	}
	if err := bm.write(); err != nil {
		return err
	}

	fs.volumeName = name
	fs.totalBlocks = total
	fs.pwd = "/" + name
	return nil
}

// Package prodos implements Apple ProDOS (and Apple III SOS, which shares
// its on-disk format), per §3 "Apple ProDOS": a key-block Volume Directory
// Header, seedling/sapling/tree file storage, and a bitmap allocator over
// 512 B blocks addressed through storage.LayoutAppleProDOS.
//
// Grounded on original_source/xferx/apple2/prodosfs.py in full: entry/
// header struct layouts (ENTRY_FORMAT, VOLUME_DIRECTORY_HEADER_FORMAT,
// SUBDIRECTORY_HEADER_FORMAT), storage-type constants, the FILE_TYPES byte
// to 3-char tag table, IndexBlock (256 block pointers split low/high byte
// across the block), and ProDOSBitmap's bit-per-block allocator.
package prodos

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

const (
	entrySize           = 0x27 // 39 bytes
	entriesPerBlock     = storage.BlockSize / entrySize
	filenameLen         = 15
	volumeDirBlock      = 2
	defaultDirBlocks    = 3
	pointersPerIndex    = 256

	storageInactive  = 0x0
	storageSeedling  = 0x1
	storageSapling   = 0x2
	storageTree      = 0x3
	storagePascal    = 0x4
	storageExtended  = 0x5
	storageDirFile   = 0xD
	storageSubdirHdr = 0xE
	storageVolDirHdr = 0xF

	accessDestroy = 0x80
	accessRename  = 0x40
	accessBackup  = 0x20
	accessInvisible = 0x04
	accessWrite   = 0x02
	accessRead    = 0x01
	defaultAccess = accessDestroy | accessRename | accessBackup | accessWrite | accessRead

	binFileType = 0x06
	dirFileType = 0x0F
)

// fileTypeNames is a representative subset of prodosfs.py's FILE_TYPES map
// (the full table lists ~150 legacy GS/OS application codes; this subset
// covers the types XFERX actually produces/recognizes plus the ones named
// in spec.md's examples).
var fileTypeNames = map[byte]string{
	0x00: "   ", 0x01: "BAD", 0x04: "TXT", 0x06: "BIN", 0x0F: "DIR",
	0xB0: "SRC", 0xB3: "S16", 0xEF: "PAS", 0xF8: "PRG", 0xFA: "INT",
	0xFC: "BAS", 0xFE: "REL", 0xFF: "SYS",
}

func fileTypeName(b byte) string {
	if s, ok := fileTypeNames[b]; ok {
		return strings.TrimRight(s, " ")
	}
	return "$" + hexByte(b)
}

func hexByte(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0xF]})
}

func parseFileType(s string) byte {
	if s == "" {
		return 0
	}
	for b, name := range fileTypeNames {
		if strings.EqualFold(strings.TrimRight(name, " "), s) {
			return b
		}
	}
	return binFileType
}

// dirEntry is the normalized view of one 39-byte slot: either a volume/
// subdirectory header or a file entry (seedling/sapling/tree/extended/dir).
type dirEntry struct {
	storageType int
	name        string
	fileType    byte
	keyPointer  int
	blocksUsed  int
	length      int
	access      int
	auxType     int
	created     time.Time

	// header-only fields
	bitMapPointer int
	totalBlocks   int

	parentBlock int // block this entry lives in, for writing back
	parentOff   int
}

func (e *dirEntry) isDir() bool {
	return e.storageType == storageDirFile || e.storageType == storageSubdirHdr || e.storageType == storageVolDirHdr
}

func (e *dirEntry) isRegular() bool {
	return e.storageType == storageSeedling || e.storageType == storageSapling || e.storageType == storageTree
}

// FS is a mounted ProDOS volume.
type FS struct {
	dev        *storage.BlockDevice
	volumeName string
	totalBlocks int
	bitMapPointer int
	pwd        string // "/VOLUME/SUB/DIR"
	readOnly   bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Mount reads the key block of the Volume Directory (block 2) and its
// header entry.
func Mount(dev *storage.BlockDevice, readOnly bool) (*FS, error) {
	fs := &FS{dev: dev, pwd: "/", readOnly: readOnly || dev.ReadOnly()}
	buf, err := dev.ReadBlock(volumeDirBlock)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	hdr, err := parseEntry(buf, 4)
	if err != nil || hdr.storageType != storageVolDirHdr {
		return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("missing volume directory header"))
	}
	fs.volumeName = hdr.name
	fs.totalBlocks = hdr.totalBlocks
	fs.bitMapPointer = hdr.bitMapPointer
	fs.pwd = "/" + fs.volumeName
	return fs, nil
}

func (fs *FS) BlockSize() int     { return storage.BlockSize }
func (fs *FS) TotalBlocks() int   { return fs.totalBlocks }
func (fs *FS) ReadOnly() bool     { return fs.readOnly }
func (fs *FS) GetSize() int64     { return int64(fs.totalBlocks) * storage.BlockSize }
func (fs *FS) GetTypes() []string {
	out := make([]string, 0, len(fileTypeNames))
	for _, v := range fileTypeNames {
		out = append(out, strings.TrimRight(v, " "))
	}
	return out
}
func (fs *FS) Close() error { return fs.dev.Close() }

func (fs *FS) FreeBlocks() int {
	bm, err := readBitmap(fs)
	if err != nil {
		return 0
	}
	return bm.free()
}

// parseEntry decodes one 39-byte directory slot starting at byte offset
// `off` within block buffer `buf`.
func parseEntry(buf []byte, off int) (*dirEntry, error) {
	if off+entrySize > len(buf) {
		return nil, errors.New("entry out of range")
	}
	b := buf[off:]
	typeLen := b[0]
	storageType := int(typeLen >> 4)
	nameLen := int(typeLen & 0x0F)
	e := &dirEntry{storageType: storageType}
	if storageType == storageInactive {
		return e, nil
	}
	if nameLen > filenameLen {
		nameLen = filenameLen
	}
	e.name = strings.TrimRight(string(b[1:1+nameLen]), "\x00")

	switch storageType {
	case storageVolDirHdr, storageSubdirHdr:
		// byte 0x10..0x17: 8-byte reserved; 0x18..0x1B: creation date/time;
		// 0x1C version, 0x1D min_version, 0x1E access, 0x1F entry_length,
		// 0x20 entries_per_block, 0x21-22 file_count, 0x23-24 bitmap pointer
		// (volume header only), 0x25-26 total_blocks (volume header only).
		created := le32(b[0x18:0x1C])
		e.created = encoding.ProDOSDecodeDateTime(created)
		e.access = int(b[0x1E])
		if storageType == storageVolDirHdr {
			e.bitMapPointer = int(le16(b[0x23:0x25]))
			e.totalBlocks = int(le16(b[0x25:0x27]))
		}
	default:
		e.fileType = b[0x10]
		e.keyPointer = int(le16(b[0x11:0x13]))
		e.blocksUsed = int(le16(b[0x13:0x15]))
		e.length = int(b[0x15]) | int(b[0x16])<<8 | int(b[0x17])<<16
		created := le32(b[0x18:0x1C])
		e.access = int(b[0x1E])
		e.auxType = int(le16(b[0x1F:0x21]))
		lastMod := le32(b[0x21:0x25])
		e.created = encoding.ProDOSDecodeDateTime(created)
		if lastMod != 0 {
			e.created = encoding.ProDOSDecodeDateTime(lastMod)
		}
	}
	return e, nil
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func putLe16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// writeEntry serializes e back into its 39-byte slot, preserving the
// header/file-entry shape it was read as.
func writeEntry(buf []byte, off int, e *dirEntry) {
	b := buf[off : off+entrySize]
	for i := range b {
		b[i] = 0
	}
	b[0] = byte(e.storageType<<4) | byte(len(e.name)&0x0F)
	copy(b[1:1+filenameLen], e.name)
	switch e.storageType {
	case storageVolDirHdr, storageSubdirHdr:
		putLe32(b[0x18:0x1C], encoding.ProDOSEncodeDateTime(e.created))
		b[0x1E] = byte(e.access)
		b[0x1F] = entrySize
		b[0x20] = byte(entriesPerBlock)
		if e.storageType == storageVolDirHdr {
			putLe16(b[0x23:0x25], uint16(e.bitMapPointer))
			putLe16(b[0x25:0x27], uint16(e.totalBlocks))
		}
	default:
		b[0x10] = e.fileType
		putLe16(b[0x11:0x13], uint16(e.keyPointer))
		putLe16(b[0x13:0x15], uint16(e.blocksUsed))
		b[0x15] = byte(e.length)
		b[0x16] = byte(e.length >> 8)
		b[0x17] = byte(e.length >> 16)
		putLe32(b[0x18:0x1C], encoding.ProDOSEncodeDateTime(e.created))
		b[0x1E] = byte(e.access)
		putLe16(b[0x1F:0x21], uint16(e.auxType))
		putLe32(b[0x21:0x25], encoding.ProDOSEncodeDateTime(e.created))
	}
}

// dirChain walks a directory's block chain (key block + linked successors
// via the 2-byte next-pointer at offset 2 of each directory block), calling
// visit for every entry slot encountered (including the header slot and
// inactive slots).
func (fs *FS) dirChain(keyBlock int, visit func(block, off int, e *dirEntry) error) error {
	block := keyBlock
	first := true
	for block != 0 {
		buf, err := fs.dev.ReadBlock(block)
		if err != nil {
			return filesystem.NewError(filesystem.EIO, "dir_chain", "", err)
		}
		start := 4
		if !first {
			start = 4 // both key and non-key directory blocks carry prev(2)/next(2) at offset 0, entries start at 4
		}
		first = false
		for off := start; off+entrySize <= storage.BlockSize; off += entrySize {
			e, err := parseEntry(buf, off)
			if err != nil {
				return err
			}
			e.parentBlock, e.parentOff = block, off
			if err := visit(block, off, e); err != nil {
				return err
			}
		}
		next := int(le16(buf[2:4]))
		block = next
	}
	return nil
}

// resolveDir returns the key block of the directory named by path (a
// "/VOLUME/SUB/DIR" absolute path, or relative to pwd), and the directory's
// own entries (files and subdirectories, headers excluded).
func (fs *FS) resolveDir(path string) (int, []*dirEntry, error) {
	path = fs.normalize(path)
	if path == "/"+fs.volumeName {
		entries, err := fs.listDir(volumeDirBlock)
		return volumeDirBlock, entries, err
	}
	if !strings.HasPrefix(path, "/"+fs.volumeName+"/") {
		return 0, nil, filesystem.NewError(filesystem.NotFound, "resolve_dir", path, nil)
	}
	rest := strings.TrimPrefix(path, "/"+fs.volumeName+"/")
	block := volumeDirBlock
	for _, part := range strings.Split(rest, "/") {
		if part == "" {
			continue
		}
		entries, err := fs.listDir(block)
		if err != nil {
			return 0, nil, err
		}
		found := false
		for _, e := range entries {
			if strings.EqualFold(e.name, part) && e.isDir() {
				block = e.keyPointer
				found = true
				break
			}
		}
		if !found {
			return 0, nil, filesystem.NewError(filesystem.NotFound, "resolve_dir", path, nil)
		}
	}
	entries, err := fs.listDir(block)
	return block, entries, err
}

// listDir returns the non-header, non-inactive entries of the directory
// whose key block is keyBlock.
func (fs *FS) listDir(keyBlock int) ([]*dirEntry, error) {
	var out []*dirEntry
	err := fs.dirChain(keyBlock, func(block, off int, e *dirEntry) error {
		if e.storageType == storageInactive {
			return nil
		}
		if e.storageType == storageVolDirHdr || e.storageType == storageSubdirHdr {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (fs *FS) normalize(path string) string {
	if path == "" {
		return fs.pwd
	}
	if strings.HasPrefix(path, "/") {
		return strings.TrimRight(path, "/")
	}
	base := fs.pwd
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return strings.TrimRight(base+path, "/")
}

func (fs *FS) splitPath(path string) (dir, name string) {
	path = fs.normalize(path)
	i := strings.LastIndexByte(path, '/')
	return path[:i], path[i+1:]
}

// Entry adapts a dirEntry to filesystem.Entry.
type Entry struct {
	fs       *FS
	fullpath string
	e        *dirEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string             { return en.e.name }
func (en *Entry) FullPath() string         { return en.fullpath }
func (en *Entry) Length() int              { return en.e.blocksUsed }
func (en *Entry) Size() int64              { return int64(en.e.length) }
func (en *Entry) CreationDate() time.Time  { return en.e.created }
func (en *Entry) FileType() string {
	if en.e.isDir() {
		return "DIR"
	}
	return fileTypeName(en.e.fileType)
}
func (en *Entry) IsEmpty() bool     { return en.e.storageType == storageInactive }
func (en *Entry) IsDirectory() bool { return en.e.isDir() }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	return fs.FilterEntriesList("*", true, false, true)
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	_, entries, err := fs.resolveDir(fs.pwd)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	var out []filesystem.Entry
	for _, e := range entries {
		if !filesystem.MatchGlob(pattern, e.name) {
			continue
		}
		out = append(out, &Entry{fs: fs, fullpath: fs.pwd + "/" + e.name, e: e})
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	dir, name := fs.splitPath(fullPath)
	_, entries, err := fs.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.name, name) {
			return &Entry{fs: fs, fullpath: dir + "/" + name, e: e}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) Chdir(path string) (bool, error) {
	block, _, err := fs.resolveDir(path)
	if err != nil || block == 0 {
		return false, nil
	}
	fs.pwd = fs.normalize(path)
	return true, nil
}

func (fs *FS) GetPwd() string { return fs.pwd }

// Package unixfs implements the early UNIX filesystem lineage (v0/v1/v5/v6/v7,
// per §3 "UNIX filesystems"): a superblock, a flat inode table, and
// directories that are themselves regular files of 16-byte
// (inode-number, 14-byte-name) entries. Read-only, matching the original
// driver's own stance (commons.py's write_bytes/create_file both raise
// EROFS unconditionally).
//
// Grounded on original_source/xferx/unix/commons.py (UNIXFilesystem,
// UNIXInode, UNIXDirectory), unix4fs.py (V4_* layout, shared by v4/v5/v6),
// unix6fs.py (huge-file double-indirect detection via addr[7]), and
// unix7fs.py (24-bit packed addresses, triple indirect). No driver source
// exists for v0/v1; they are reconstructed here as aliases of the v4
// layout, which is the earliest one retrieved.
package unixfs

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

// Version selects the inode/superblock layout.
type Version int

const (
	V0 Version = iota
	V1
	V5
	V6
	V7
)

const (
	superBlockNum = 1
	v4RootInode   = 1
	v7RootInode   = 2

	v4InodeSize = 32
	v7InodeSize = 64

	v4NAddr = 8
	v7NAddr = 13

	v4FilenameLen = 14
	v7FilenameLen = 14

	v4DirEntrySize = 2 + v4FilenameLen
	v7DirEntrySize = 2 + v7FilenameLen

	v4NICFREE = 100
	v4NICINOD = 100
	v7NICFREE = 50
	v7NICINOD = 100

	flagUsed  = 0o100000
	flagDir   = 0o040000
	flagLarge = 0o010000

	v7FlagMask = 0o170000
	v7Dir      = 0o040000
)

// inode is the version-normalized view of one inode table entry.
type inode struct {
	num     int
	flags   int
	nlinks  int
	uid, gid int
	size    int64
	addr    []int // block numbers (v4/v6: 8 words; v7: 13 24-bit values)
	mtime   time.Time
}

func (in *inode) isAllocated(v Version) bool {
	if v == V7 {
		return in.flags != 0
	}
	return in.flags&flagUsed == flagUsed
}

func (in *inode) isDir(v Version) bool {
	if v == V7 {
		return in.flags&v7FlagMask == v7Dir
	}
	return in.flags&flagDir == flagDir
}

func (in *inode) isLarge() bool { return in.flags&flagLarge == flagLarge }

// isHuge reports v6's undocumented extra-large convention: large flag set
// and the last address slot (a double-indirect pointer) non-zero.
func (in *inode) isHuge(v Version) bool {
	return v == V6 && in.isLarge() && in.addr[len(in.addr)-1] != 0
}

// FS is a mounted UNIX volume.
type FS struct {
	dev     *storage.BlockDevice
	version Version

	inodeListBlocks int
	inodeSize       int
	nAddr           int
	rootInode       int
	dirEntrySize    int

	pwd       string
	pwdInode  int
	readOnly  bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Mount reads the superblock and prepares inode-table geometry for version.
func Mount(dev *storage.BlockDevice, version Version) (*FS, error) {
	fs := &FS{dev: dev, version: version, pwd: "/", readOnly: true}

	switch version {
	case V7:
		fs.inodeSize = v7InodeSize
		fs.nAddr = v7NAddr
		fs.rootInode = v7RootInode
		fs.dirEntrySize = v7DirEntrySize
	default: // V0, V1, V5, V6 share the v4 layout
		fs.inodeSize = v4InodeSize
		fs.nAddr = v4NAddr
		fs.rootInode = v4RootInode
		fs.dirEntrySize = v4DirEntrySize
	}
	fs.pwdInode = fs.rootInode

	sb, err := dev.ReadBlock(superBlockNum)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	// isize (word) is the only superblock field this driver needs; the
	// free-block/free-inode lists matter only to an allocator, which this
	// read-only driver does not have.
	fs.inodeListBlocks = int(binary.LittleEndian.Uint16(sb[0:2]))
	return fs, nil
}

func (fs *FS) BlockSize() int { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return fs.dev.NumBlocks() }
func (fs *FS) FreeBlocks() int  { return 0 }
func (fs *FS) ReadOnly() bool   { return true }
func (fs *FS) GetSize() int64  { return int64(fs.dev.NumBlocks()) * storage.BlockSize }
func (fs *FS) GetTypes() []string { return []string{"DIR", "REG"} }
func (fs *FS) Close() error    { return fs.dev.Close() }

// readInode loads inode n from the fixed-offset table starting at block 2
// (BLOCK_SIZE*2 in the original, i.e. immediately after boot+superblock).
func (fs *FS) readInode(n int) (*inode, error) {
	if n <= 0 {
		return nil, filesystem.NewError(filesystem.NotFound, "read_inode", "", errors.Errorf("inode %d out of range", n))
	}
	offset := int64(storage.BlockSize*2) + int64(n-1)*int64(fs.inodeSize)
	blk := int(offset / storage.BlockSize)
	within := int(offset % storage.BlockSize)

	buf := make([]byte, fs.inodeSize)
	copied := 0
	for copied < fs.inodeSize {
		data, err := fs.dev.ReadBlock(blk)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_inode", "", err)
		}
		n := copy(buf[copied:], data[within:])
		copied += n
		within = 0
		blk++
	}

	in := &inode{num: n}
	if fs.version == V7 {
		in.flags = int(int16(binary.LittleEndian.Uint16(buf[0:2])))
		in.nlinks = int(int16(binary.LittleEndian.Uint16(buf[2:4])))
		in.uid = int(int16(binary.LittleEndian.Uint16(buf[4:6])))
		in.gid = int(int16(binary.LittleEndian.Uint16(buf[6:8])))
		sz0 := int64(binary.LittleEndian.Uint16(buf[8:10]))
		sz1 := int64(binary.LittleEndian.Uint16(buf[10:12]))
		in.size = (sz0 << 16) + sz1
		in.addr = l3tol(buf[12:52], v7NAddr)
		mtime := binary.LittleEndian.Uint32(buf[56:60])
		in.mtime = encoding.UnixDecodeDate(mtime)
	} else {
		in.flags = int(binary.LittleEndian.Uint16(buf[0:2]))
		in.nlinks = int(buf[2])
		in.uid = int(buf[3])
		in.gid = int(buf[4])
		sz0 := int64(buf[5])
		sz1 := int64(binary.LittleEndian.Uint16(buf[6:8]))
		in.size = (sz0 << 16) + sz1
		addr := make([]int, v4NAddr)
		for i := 0; i < v4NAddr; i++ {
			addr[i] = int(binary.LittleEndian.Uint16(buf[8+i*2 : 10+i*2]))
		}
		in.addr = addr
		mtime := binary.LittleEndian.Uint32(buf[8+v4NAddr*2+4 : 8+v4NAddr*2+8])
		in.mtime = encoding.UnixDecodeDate(mtime)
	}
	return in, nil
}

// l3tol unpacks n big-endian-ish 3-byte (middle, low, high) integers per
// unix7fs.py's l3tol: byte order within each triple is (high, low, middle).
func l3tol(data []byte, n int) []int {
	out := make([]int, 0, n)
	for i := 0; i+3 <= len(data); i += 3 {
		v := int(data[i+1]) + int(data[i+2])<<8 + int(data[i])<<16
		out = append(out, v)
	}
	return out
}

func (in *inode) blockSize() int { return storage.BlockSize }

func (in *inode) length() int {
	if in.blockSize() == 0 {
		return 0
	}
	return int((in.size + int64(in.blockSize()) - 1) / int64(in.blockSize()))
}

// blocks enumerates data block numbers, following direct/indirect/
// double-indirect/triple-indirect maps per version.
func (fs *FS) blocks(in *inode) ([]int, error) {
	var out []int
	switch {
	case fs.version == V7:
		rem := in.size
		for _, b := range in.addr[:len(in.addr)-3] {
			if b == 0 {
				break
			}
			out = append(out, b)
			rem -= int64(storage.BlockSize)
		}
		if rem > 0 && in.addr[len(in.addr)-3] != 0 {
			ind, err := fs.dev.ReadBlock(in.addr[len(in.addr)-3])
			if err != nil {
				return nil, err
			}
			for _, n := range iterateLong(ind) {
				if n == 0 {
					break
				}
				out = append(out, n)
				rem -= int64(storage.BlockSize)
			}
		}
		if rem > 0 && in.addr[len(in.addr)-2] != 0 {
			dbl, err := fs.dev.ReadBlock(in.addr[len(in.addr)-2])
			if err != nil {
				return nil, err
			}
			for _, d := range iterateLong(dbl) {
				if d == 0 {
					break
				}
				ind, err := fs.dev.ReadBlock(d)
				if err != nil {
					return nil, err
				}
				for _, n := range iterateLong(ind) {
					if n == 0 {
						break
					}
					out = append(out, n)
					rem -= int64(storage.BlockSize)
				}
			}
		}
		if rem > 0 && in.addr[len(in.addr)-1] != 0 {
			trp, err := fs.dev.ReadBlock(in.addr[len(in.addr)-1])
			if err != nil {
				return nil, err
			}
			for _, tmp := range iterateLong(trp) {
				if tmp == 0 {
					break
				}
				dbl, err := fs.dev.ReadBlock(tmp)
				if err != nil {
					return nil, err
				}
				for _, d := range iterateLong(dbl) {
					if d == 0 {
						break
					}
					ind, err := fs.dev.ReadBlock(d)
					if err != nil {
						return nil, err
					}
					for _, n := range iterateLong(ind) {
						if n == 0 {
							break
						}
						out = append(out, n)
					}
				}
			}
		}
	case in.isHuge(fs.version):
		for i, b := range in.addr {
			if b == 0 {
				break
			}
			if i < len(in.addr)-1 {
				ind, err := fs.dev.ReadBlock(b)
				if err != nil {
					return nil, err
				}
				for _, n := range iterateWords(ind) {
					if n == 0 {
						break
					}
					out = append(out, n)
				}
			} else {
				dbl, err := fs.dev.ReadBlock(b)
				if err != nil {
					return nil, err
				}
				for _, d := range iterateWords(dbl) {
					if d == 0 {
						break
					}
					ind, err := fs.dev.ReadBlock(d)
					if err != nil {
						return nil, err
					}
					for _, n := range iterateWords(ind) {
						if n == 0 {
							break
						}
						out = append(out, n)
					}
				}
			}
		}
	case in.isLarge():
		for _, b := range in.addr {
			if b == 0 {
				break
			}
			ind, err := fs.dev.ReadBlock(b)
			if err != nil {
				return nil, err
			}
			for _, n := range iterateWords(ind) {
				if n == 0 {
					break
				}
				out = append(out, n)
			}
		}
	default:
		for _, b := range in.addr {
			if b == 0 {
				break
			}
			out = append(out, b)
		}
	}
	return out, nil
}

func iterateWords(data []byte) []int {
	out := make([]int, 0, len(data)/2)
	for i := 0; i+2 <= len(data); i += 2 {
		out = append(out, int(binary.LittleEndian.Uint16(data[i:i+2])))
	}
	return out
}

func iterateLong(data []byte) []int {
	out := make([]int, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		out = append(out, int(binary.LittleEndian.Uint32(data[i:i+4])))
	}
	return out
}

type dirent struct {
	inodeNum int
	name     string
}

// readDir reads a directory inode's contents as a flat list of
// (inode-number, name) pairs, per UNIXDirectory.read.
func (fs *FS) readDir(in *inode) ([]dirent, error) {
	blocks, err := fs.blocks(in)
	if err != nil {
		return nil, err
	}
	var out []dirent
	remaining := in.size
	for _, b := range blocks {
		data, err := fs.dev.ReadBlock(b)
		if err != nil {
			return nil, err
		}
		for off := 0; off+fs.dirEntrySize <= len(data) && remaining > 0; off += fs.dirEntrySize {
			num := int(binary.LittleEndian.Uint16(data[off : off+2]))
			nameLen := fs.dirEntrySize - 2
			name := strings.TrimRight(string(data[off+2:off+2+nameLen]), "\x00")
			if num != 0 {
				out = append(out, dirent{inodeNum: num, name: name})
			}
			remaining -= int64(fs.dirEntrySize)
		}
	}
	return out, nil
}

func unixJoin(a, b string) string {
	if strings.HasPrefix(b, "/") {
		return b
	}
	if a == "" || strings.HasSuffix(a, "/") {
		return a + b
	}
	return a + "/" + b
}

func unixSplit(p string) (dir, base string) {
	i := strings.LastIndexByte(p, '/') + 1
	dir, base = p[:i], p[i:]
	if dir != "" && strings.Trim(dir, "/") != "" {
		dir = strings.TrimRight(dir, "/")
	}
	return
}

// getInode resolves a path to its inode, walking directory entries
// component by component from the root (or pwd for relative paths).
func (fs *FS) getInode(path string) (*inode, error) {
	if !strings.HasPrefix(path, "/") {
		path = unixJoin(fs.pwd, path)
	}
	num := fs.rootInode
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	for {
		in, err := fs.readInode(num)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			if !in.isAllocated(fs.version) {
				return nil, filesystem.NewError(filesystem.NotFound, "get_inode", path, nil)
			}
			return in, nil
		}
		if !in.isDir(fs.version) {
			return nil, filesystem.NewError(filesystem.NotFound, "get_inode", path, nil)
		}
		name := parts[0]
		parts = parts[1:]
		entries, err := fs.readDir(in)
		if err != nil {
			return nil, err
		}
		found := false
		for _, e := range entries {
			if e.name == name {
				num = e.inodeNum
				found = true
				break
			}
		}
		if !found {
			return nil, filesystem.NewError(filesystem.NotFound, "get_inode", path, nil)
		}
	}
}

// Entry adapts one (path, inode) pair to filesystem.Entry.
type Entry struct {
	fs       *FS
	fullpath string
	in       *inode
}

var _ filesystem.Entry = (*Entry)(nil)

func (e *Entry) Name() string {
	_, base := unixSplit(e.fullpath)
	return base
}
func (e *Entry) FullPath() string        { return e.fullpath }
func (e *Entry) Length() int             { return e.in.length() }
func (e *Entry) Size() int64             { return e.in.size }
func (e *Entry) CreationDate() time.Time { return e.in.mtime }
func (e *Entry) FileType() string {
	if e.in.isDir(e.fs.version) {
		return "DIR"
	}
	return "REG"
}
func (e *Entry) IsEmpty() bool     { return !e.in.isAllocated(e.fs.version) }
func (e *Entry) IsDirectory() bool { return e.in.isDir(e.fs.version) }

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	in, err := fs.getInode(fullPath)
	if err != nil {
		return nil, err
	}
	return &Entry{fs: fs, fullpath: fullPath, in: in}, nil
}

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	return fs.FilterEntriesList("*", true, false, true)
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	in, err := fs.readInode(fs.pwdInode)
	if err != nil {
		return nil, err
	}
	entries, err := fs.readDir(in)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	var out []filesystem.Entry
	for _, e := range entries {
		if e.name == "." || e.name == ".." {
			continue
		}
		if !filesystem.MatchGlob(pattern, e.name) {
			continue
		}
		child, err := fs.readInode(e.inodeNum)
		if err != nil {
			continue
		}
		out = append(out, &Entry{fs: fs, fullpath: unixJoin(fs.pwd, e.name), in: child})
	}
	return out, nil
}

func (fs *FS) Chdir(path string) (bool, error) {
	in, err := fs.getInode(path)
	if err != nil {
		return false, nil
	}
	if !in.isDir(fs.version) {
		return false, nil
	}
	if strings.HasPrefix(path, "/") {
		fs.pwd = path
	} else {
		fs.pwd = unixJoin(fs.pwd, path)
	}
	fs.pwdInode = in.num
	return true, nil
}

func (fs *FS) GetPwd() string { return fs.pwd }

func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
}

func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, nil)
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "write_bytes", fullPath, nil)
}

func (fs *FS) Delete(entry filesystem.Entry) error {
	return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
}

func (fs *FS) Initialize(options map[string]string) error {
	return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
}

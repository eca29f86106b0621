// Package tss8 implements TSS/8.24: a hierarchical [proj,prog]-keyed
// directory tree (UIC addressing shared with the PDP-11 formats, per
// filesystem/uic) over a contiguous-file allocator backed by a single bitmap
// block, per §3 "TSS/8.24".
//
// No tss8fs.py source was retrieved in the example pack (only
// tests/test_tss8.py), so the on-disk directory/bitmap layout here is this
// implementation's own reasonably-faithful reconstruction from the test's
// observable behavior (allocate/overwrite/delete bitmap-equality scenarios,
// [proj,prog] addressing, contiguous-only files) rather than a byte-for-byte
// port, the same disclaimer already carried by filesystem/os8.
package tss8

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

const (
	// BlockSizeBytes is TSS/8's per-block payload, matching the physical
	// device block size: TSS/8 contiguous files have no linked-record
	// overhead, unlike DOS-11.
	BlockSizeBytes = storage.BlockSize

	mfdBlock        = 1
	bitmapBlock     = 2
	mfdEntrySize    = 4  // UIC word(2) + first UFD block(2)
	mfdHeaderSize   = 2  // entry count
	ufdHeaderSize   = 4  // next(2) + reserved(2)
	ufdEntrySize    = 14 // name/ext words(6) + date(2) + firstBlock(2) + length(2) + protection(1) + pad(1)
	entriesPerBlock = (storage.BlockSize - ufdHeaderSize) / ufdEntrySize
)

// ufdEntry is one file entry within a [proj,prog] directory. TSS/8 files are
// always contiguous.
type ufdEntry struct {
	NameWords  [3]uint16
	Date       uint16
	FirstBlock uint16
	Length     uint16
	Protection uint8

	ufdBlock int
	index    int
}

func (e *ufdEntry) name() string {
	name, ext := encoding.RAD50WordsToNameExt(e.NameWords)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

type ufdBlockEntries struct {
	blockNum int
	next     int
	entries  []*ufdEntry
}

type mfdEntry struct {
	UIC        uic.UIC
	FirstBlock uint16
}

// FS is a mounted TSS/8.24 volume.
type FS struct {
	device   *storage.BlockDevice
	mfd      []mfdEntry
	cwd      uic.UIC
	bitmap   *bitmap
	readOnly bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Entry adapts a ufdEntry plus its owning UIC to filesystem.Entry.
type Entry struct {
	fs  *FS
	uic uic.UIC
	e   *ufdEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string            { return en.e.name() }
func (en *Entry) FullPath() string        { return en.uic.String() + en.e.name() }
func (en *Entry) Length() int             { return int(en.e.Length) }
func (en *Entry) Size() int64             { return int64(en.e.Length) * BlockSizeBytes }
func (en *Entry) CreationDate() time.Time { return encoding.TSS8DecodeDate(en.e.Date) }
func (en *Entry) FileType() string        { return "CONTIGUOUS" }
func (en *Entry) IsEmpty() bool           { return false }
func (en *Entry) IsDirectory() bool       { return false }

func readMFD(device *storage.BlockDevice) ([]mfdEntry, error) {
	raw, err := device.ReadBlock(mfdBlock)
	if err != nil {
		return nil, err
	}
	count := int(binary.LittleEndian.Uint16(raw[0:2]))
	var out []mfdEntry
	pos := mfdHeaderSize
	for i := 0; i < count && pos+mfdEntrySize <= len(raw); i++ {
		word := binary.LittleEndian.Uint16(raw[pos : pos+2])
		first := binary.LittleEndian.Uint16(raw[pos+2 : pos+4])
		out = append(out, mfdEntry{UIC: uic.FromWord(word), FirstBlock: first})
		pos += mfdEntrySize
	}
	return out, nil
}

func (fs *FS) writeMFD() error {
	buf := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(fs.mfd)))
	pos := mfdHeaderSize
	for _, m := range fs.mfd {
		if pos+mfdEntrySize > len(buf) {
			return filesystem.NewError(filesystem.NoSpace, "write_mfd", "", errors.New("MFD full"))
		}
		binary.LittleEndian.PutUint16(buf[pos:pos+2], m.UIC.ToWord())
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], m.FirstBlock)
		pos += mfdEntrySize
	}
	return fs.device.WriteBlock(mfdBlock, buf)
}

func (fs *FS) ufdFirstBlockFor(u uic.UIC) (int, bool) {
	for _, m := range fs.mfd {
		if m.UIC == u {
			return int(m.FirstBlock), true
		}
	}
	return 0, false
}

func (fs *FS) readUFDChain(first int) ([]*ufdBlockEntries, error) {
	var out []*ufdBlockEntries
	blk := first
	visited := map[int]bool{}
	for blk != 0 {
		if visited[blk] {
			return nil, errors.New("circular UFD chain")
		}
		visited[blk] = true
		raw, err := fs.device.ReadBlock(blk)
		if err != nil {
			return nil, err
		}
		next := int(binary.LittleEndian.Uint16(raw[0:2]))
		ub := &ufdBlockEntries{blockNum: blk, next: next}
		pos := ufdHeaderSize
		idx := 0
		for pos+ufdEntrySize <= len(raw) {
			if isZero(raw[pos : pos+ufdEntrySize]) {
				pos += ufdEntrySize
				idx++
				continue
			}
			e := &ufdEntry{
				NameWords:  [3]uint16{binary.LittleEndian.Uint16(raw[pos : pos+2]), binary.LittleEndian.Uint16(raw[pos+2 : pos+4]), binary.LittleEndian.Uint16(raw[pos+4 : pos+6])},
				Date:       binary.LittleEndian.Uint16(raw[pos+6 : pos+8]),
				FirstBlock: binary.LittleEndian.Uint16(raw[pos+8 : pos+10]),
				Length:     binary.LittleEndian.Uint16(raw[pos+10 : pos+12]),
				Protection: raw[pos+12],
				ufdBlock:   blk,
				index:      idx,
			}
			ub.entries = append(ub.entries, e)
			pos += ufdEntrySize
			idx++
		}
		out = append(out, ub)
		blk = next
	}
	return out, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func (fs *FS) writeUFDBlock(ub *ufdBlockEntries) error {
	buf := make([]byte, storage.BlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(ub.next))
	for _, e := range ub.entries {
		pos := ufdHeaderSize + e.index*ufdEntrySize
		if pos+ufdEntrySize > len(buf) {
			continue
		}
		binary.LittleEndian.PutUint16(buf[pos:pos+2], e.NameWords[0])
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], e.NameWords[1])
		binary.LittleEndian.PutUint16(buf[pos+4:pos+6], e.NameWords[2])
		binary.LittleEndian.PutUint16(buf[pos+6:pos+8], e.Date)
		binary.LittleEndian.PutUint16(buf[pos+8:pos+10], e.FirstBlock)
		binary.LittleEndian.PutUint16(buf[pos+10:pos+12], e.Length)
		buf[pos+12] = e.Protection
	}
	return fs.device.WriteBlock(ub.blockNum, buf)
}

// Mount reads the MFD and the bitmap block. strict validates that every
// permanent entry's blocks are marked used and no block is double-owned
// (§8 #5-6).
func Mount(device *storage.BlockDevice, strict bool) (*FS, error) {
	fs := &FS{device: device, readOnly: device.ReadOnly(), cwd: uic.Default}

	mfd, err := readMFD(device)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	fs.mfd = mfd

	bm, err := readBitmap(device)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", err)
	}
	fs.bitmap = bm

	if strict {
		if err := fs.validate(); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func (fs *FS) validate() error {
	used := make(map[int]bool)
	for _, m := range fs.mfd {
		chain, err := fs.readUFDChain(int(m.FirstBlock))
		if err != nil {
			continue
		}
		for _, ub := range chain {
			for _, e := range ub.entries {
				for i := 0; i < int(e.Length); i++ {
					b := int(e.FirstBlock) + i
					if used[b] {
						return filesystem.NewError(filesystem.Corrupt, "mount", e.name(), errors.New("block referenced twice"))
					}
					used[b] = true
					if !fs.bitmap.isUsed(b) {
						return filesystem.NewError(filesystem.Corrupt, "mount", e.name(), errors.New("block not marked used in bitmap"))
					}
				}
			}
		}
	}
	return nil
}

func (fs *FS) BlockSize() int   { return BlockSizeBytes }
func (fs *FS) TotalBlocks() int { return fs.device.NumBlocks() }
func (fs *FS) FreeBlocks() int  { return fs.bitmap.freeCount() }
func (fs *FS) ReadOnly() bool   { return fs.readOnly }

func (fs *FS) Chdir(path string) (bool, error) {
	u, err := uic.Parse(path)
	if err != nil {
		return false, filesystem.NewError(filesystem.Invalid, "chdir", path, err)
	}
	if _, ok := fs.ufdFirstBlockFor(u); !ok {
		return false, filesystem.NewError(filesystem.NotFound, "chdir", path, nil)
	}
	fs.cwd = u
	return true, nil
}
func (fs *FS) GetPwd() string     { return fs.cwd.String() }
func (fs *FS) GetSize() int64     { return int64(fs.device.NumBlocks()) * BlockSizeBytes }
func (fs *FS) GetTypes() []string { return []string{"CONTIGUOUS"} }
func (fs *FS) Close() error       { return fs.device.Close() }

func splitUIC(fullPath string, cwd uic.UIC) (uic.UIC, string, error) {
	if idx := strings.IndexByte(fullPath, ']'); strings.HasPrefix(fullPath, "[") && idx >= 0 {
		u, err := uic.Parse(fullPath[:idx+1])
		if err != nil {
			return uic.UIC{}, "", err
		}
		return u, fullPath[idx+1:], nil
	}
	return cwd, fullPath, nil
}

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	return fs.entriesIn(fs.cwd)
}

func (fs *FS) entriesIn(u uic.UIC) ([]filesystem.Entry, error) {
	first, ok := fs.ufdFirstBlockFor(u)
	if !ok {
		return nil, filesystem.NewError(filesystem.NotFound, "entries_list", u.String(), nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "entries_list", u.String(), err)
	}
	var out []filesystem.Entry
	for _, ub := range chain {
		for _, e := range ub.entries {
			out = append(out, &Entry{fs: fs, uic: u, e: e})
		}
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	targetUIC, rest, err := splitUIC(pattern, fs.cwd)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Invalid, "filter_entries_list", pattern, err)
	}
	entries, err := fs.entriesIn(targetUIC)
	if err != nil {
		return nil, err
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(rest), wildcard)
	glob := name
	if ext != "" {
		glob = name + "." + ext
	}
	var out []filesystem.Entry
	for _, en := range entries {
		if filesystem.MatchGlob(glob, en.Name()) {
			out = append(out, en)
		}
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	targetUIC, rest, err := splitUIC(fullPath, fs.cwd)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Invalid, "get_file_entry", fullPath, err)
	}
	name := strings.ToUpper(strings.TrimSpace(rest))
	if name == "" {
		first, ok := fs.ufdFirstBlockFor(targetUIC)
		if !ok {
			return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
		}
		return &DirEntry{fs: fs, uic: targetUIC, firstBlock: first}, nil
	}
	entries, err := fs.entriesIn(targetUIC)
	if err != nil {
		return nil, err
	}
	for _, en := range entries {
		if en.Name() == name {
			return en, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

// Package dos11 implements the DOS-11 filesystem: a two-level MFD/UFD
// directory (variant #1) or a single UFD referenced directly from the MFD
// header (variant #2, XXDP+), with linked or contiguous files and a linked
// chain of bitmap blocks.
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

const (
	mfdBlock        = 1
	ufdEntrySize     = 18
	mfdEntrySize     = 8
	linkedPayload    = 510 // 510-byte payload + 2-byte next-block pointer
	contiguousFlag   = 1 << 15
)

// Variant distinguishes the two MFD layouts named in the specification.
type Variant int

const (
	VariantTwoLevel Variant = iota // MFD -> UFD blocks -> entries
	VariantXXDP                    // single UFD referenced directly
)

// ufdEntry is one 18-byte User File Directory entry.
type ufdEntry struct {
	NameWords   [3]uint16
	DateType    uint16 // bit 15: contiguous flag; low 15 bits: DOS-11 date
	FirstBlock  uint16
	Length      uint16 // blocks; authoritative for contiguous files
	Protection  uint8

	ufdBlock int
	index    int
}

func (e *ufdEntry) isContiguous() bool { return e.DateType&contiguousFlag != 0 }
func (e *ufdEntry) date() uint16       { return e.DateType &^ contiguousFlag }
func (e *ufdEntry) name() string {
	name, ext := encoding.RAD50WordsToNameExt(e.NameWords)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// ufdBlockEntries is one physical UFD block: a fixed slot count of entries
// plus a link to the next UFD block (0 = end of chain).
type ufdBlockEntries struct {
	blockNum int
	next     int
	entries  []*ufdEntry
}

// mfdEntry maps one UIC to its UFD chain's first block (variant #1 only).
type mfdEntry struct {
	UIC        uic.UIC
	FirstBlock uint16
}

// FS is a mounted DOS-11 volume.
type FS struct {
	device    *storage.BlockDevice
	variant   Variant
	mfd       []mfdEntry
	ufdSingle int // variant XXDP: first UFD block
	cwd       uic.UIC
	bitmap    *bitmap
	readOnly  bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Entry adapts a ufdEntry plus its owning UIC to filesystem.Entry.
type Entry struct {
	fs  *FS
	uic uic.UIC
	e   *ufdEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string     { return en.e.name() }
func (en *Entry) FullPath() string { return en.uic.String() + en.e.name() }
func (en *Entry) Length() int {
	if en.e.isContiguous() {
		return int(en.e.Length)
	}
	return en.fs.linkedFileBlocks(en.e)
}
func (en *Entry) Size() int64 { return int64(en.Length()) * linkedPayload }
func (en *Entry) CreationDate() time.Time {
	return encoding.DOS11DecodeDate(en.e.date())
}
func (en *Entry) FileType() string {
	if en.e.isContiguous() {
		return "CONTIGUOUS"
	}
	return "LINKED"
}
func (en *Entry) IsEmpty() bool     { return false }
func (en *Entry) IsDirectory() bool { return false }

// Mount reads the MFD header, detects variant #1 vs #2, and loads the
// bitmap chain. strict validates bitmap/directory consistency (§8 #5-7).
func Mount(device *storage.BlockDevice, strict bool) (*FS, error) {
	fs := &FS{device: device, readOnly: device.ReadOnly(), cwd: uic.Default}

	blk, err := device.ReadBlock(mfdBlock)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}

	variantFlag := binary.LittleEndian.Uint16(blk[0:2])
	firstBitmapBlock := binary.LittleEndian.Uint16(blk[2:4])

	if variantFlag == 1 {
		fs.variant = VariantXXDP
		fs.ufdSingle = int(binary.LittleEndian.Uint16(blk[4:6]))
	} else {
		fs.variant = VariantTwoLevel
		count := int(binary.LittleEndian.Uint16(blk[4:6]))
		pos := 6
		for i := 0; i < count && pos+mfdEntrySize <= len(blk); i++ {
			word := binary.LittleEndian.Uint16(blk[pos : pos+2])
			first := binary.LittleEndian.Uint16(blk[pos+2 : pos+4])
			fs.mfd = append(fs.mfd, mfdEntry{UIC: uic.FromWord(word), FirstBlock: first})
			pos += mfdEntrySize
		}
	}

	bm, err := readBitmap(device, int(firstBitmapBlock))
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

func (fs *FS) ufdFirstBlockFor(u uic.UIC) (int, bool) {
	if fs.variant == VariantXXDP {
		return fs.ufdSingle, true
	}
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
		pos := 2
		idx := 0
		for pos+ufdEntrySize <= len(raw) {
			if isZero(raw[pos : pos+ufdEntrySize]) {
				pos += ufdEntrySize
				idx++
				continue
			}
			e := &ufdEntry{
				NameWords:  [3]uint16{binary.LittleEndian.Uint16(raw[pos : pos+2]), binary.LittleEndian.Uint16(raw[pos+2 : pos+4]), binary.LittleEndian.Uint16(raw[pos+4 : pos+6])},
				DateType:   binary.LittleEndian.Uint16(raw[pos+6 : pos+8]),
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

func (fs *FS) validate() error {
	used := make(map[int]bool)
	for _, m := range fs.allUICs() {
		chain, err := fs.readUFDChain(mustFirst(fs, m))
		if err != nil {
			continue
		}
		for _, ub := range chain {
			for _, e := range ub.entries {
				blocks := fs.entryBlocks(e)
				for _, b := range blocks {
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

func mustFirst(fs *FS, u uic.UIC) int {
	b, _ := fs.ufdFirstBlockFor(u)
	return b
}

func (fs *FS) allUICs() []uic.UIC {
	if fs.variant == VariantXXDP {
		return []uic.UIC{uic.Default}
	}
	var out []uic.UIC
	for _, m := range fs.mfd {
		out = append(out, m.UIC)
	}
	return out
}

// entryBlocks returns every physical block belonging to e, walking the link
// chain for linked files.
func (fs *FS) entryBlocks(e *ufdEntry) []int {
	if e.isContiguous() {
		out := make([]int, 0, e.Length)
		for i := 0; i < int(e.Length); i++ {
			out = append(out, int(e.FirstBlock)+i)
		}
		return out
	}
	var out []int
	blk := int(e.FirstBlock)
	visited := map[int]bool{}
	for blk != 0 && !visited[blk] {
		visited[blk] = true
		out = append(out, blk)
		raw, err := fs.device.ReadBlock(blk)
		if err != nil {
			break
		}
		blk = int(binary.LittleEndian.Uint16(raw[linkedPayload : linkedPayload+2]))
	}
	return out
}

func (fs *FS) linkedFileBlocks(e *ufdEntry) int {
	return len(fs.entryBlocks(e))
}

func (fs *FS) BlockSize() int    { return storage.BlockSize }
func (fs *FS) TotalBlocks() int  { return fs.device.NumBlocks() }
func (fs *FS) FreeBlocks() int   { return fs.bitmap.freeCount() }
func (fs *FS) ReadOnly() bool    { return fs.readOnly }
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
func (fs *FS) GetSize() int64     { return int64(fs.device.NumBlocks()) * storage.BlockSize }
func (fs *FS) GetTypes() []string { return []string{"LINKED", "CONTIGUOUS"} }
func (fs *FS) Close() error       { return fs.device.Close() }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	first, ok := fs.ufdFirstBlockFor(fs.cwd)
	if !ok {
		return nil, filesystem.NewError(filesystem.NotFound, "entries_list", fs.cwd.String(), nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "entries_list", fs.cwd.String(), err)
	}
	var out []filesystem.Entry
	for _, ub := range chain {
		for _, e := range ub.entries {
			out = append(out, &Entry{fs: fs, uic: fs.cwd, e: e})
		}
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	targetUIC := fs.cwd
	if idx := strings.IndexByte(pattern, ']'); strings.HasPrefix(pattern, "[") && idx >= 0 {
		if u, err := uic.Parse(pattern[:idx+1]); err == nil {
			targetUIC = u
			pattern = pattern[idx+1:]
		}
	}
	first, ok := fs.ufdFirstBlockFor(targetUIC)
	if !ok {
		return nil, filesystem.NewError(filesystem.NotFound, "filter_entries_list", targetUIC.String(), nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "filter_entries_list", targetUIC.String(), err)
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(pattern), wildcard)
	glob := name
	if ext != "" {
		glob = name + "." + ext
	}
	var out []filesystem.Entry
	for _, ub := range chain {
		for _, e := range ub.entries {
			if filesystem.MatchGlob(glob, e.name()) {
				out = append(out, &Entry{fs: fs, uic: targetUIC, e: e})
			}
		}
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	targetUIC := fs.cwd
	name := fullPath
	if idx := strings.IndexByte(fullPath, ']'); strings.HasPrefix(fullPath, "[") && idx >= 0 {
		if u, err := uic.Parse(fullPath[:idx+1]); err == nil {
			targetUIC = u
			name = fullPath[idx+1:]
		}
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	first, ok := fs.ufdFirstBlockFor(targetUIC)
	if !ok {
		return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
	}
	chain, err := fs.readUFDChain(first)
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "get_file_entry", fullPath, err)
	}
	for _, ub := range chain {
		for _, e := range ub.entries {
			if e.name() == name {
				return &Entry{fs: fs, uic: targetUIC, e: e}, nil
			}
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	if fs.variant != VariantTwoLevel {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, errors.New("XXDP+ volumes have a single UFD"))
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
		return nil, err
	}
	if err := fs.bitmap.flush(); err != nil {
		return nil, err
	}
	empty := make([]byte, storage.BlockSize)
	if err := fs.device.WriteBlock(blk[0], empty); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_directory", fullPath, err)
	}
	fs.mfd = append(fs.mfd, mfdEntry{UIC: u, FirstBlock: uint16(blk[0])})
	if err := fs.writeMFD(); err != nil {
		return nil, err
	}
	return nil, nil
}

// Package files11 implements Files-11 (ODS-1): the index file INDEXF.SYS is
// the volume root, file headers live in consecutively numbered blocks
// starting at iblb (the first 16 located contiguously with the index
// bitmap, all others through INDEXF.SYS's own retrieval pointers), and each
// header's map area holds the retrieval pointers that translate virtual
// blocks to logical blocks (§3 "Files-11 (ODS-1)").
package files11

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
	homeBlock   = 1
	indexfSys   = 1
	mfdDir      = 4
	scDir       = 0x80 // fcha bit: file is a directory
	dirEntrySize = 16
)

var files11Months = [...]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// retrievalPointer maps virtual blocks [j, j+count) to logical blocks
// [lbn, lbn+count), per the design note's Files-11 entity description.
type retrievalPointer struct {
	j     int
	count int
	lbn   int
}

// fileHeader is a parsed Files-11 file header block.
type fileHeader struct {
	fnum, fseq, flev, fown, fcha uint16
	filename, extension          string
	fver                         uint16
	crdt, crti                   [7]byte
	crtiLen                      int
	pointers                     []retrievalPointer
	length                       int // total mapped blocks (map_length)
}

func (h *fileHeader) isDirectory() bool { return h.fcha&scDir != 0 || h.fnum == mfdDir }
func (h *fileHeader) basename() string {
	if h.extension == "" {
		return h.filename
	}
	return h.filename + "." + h.extension
}

// mapBlock translates virtual block n to a logical block number by walking
// the retrieval pointers in order.
func (h *fileHeader) mapBlock(n int) (int, error) {
	for _, rp := range h.pointers {
		if n < rp.j+rp.count {
			return rp.lbn - rp.j + n, nil
		}
	}
	return 0, errors.New("virtual block out of range")
}

// FS is a mounted Files-11 volume.
type FS struct {
	device   *storage.BlockDevice
	ibsz     uint16
	iblb     int
	fmax     uint16
	cwd      uic.UIC
	readOnly bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Entry adapts a directory-file-entry (File ID + name) plus its lazily
// loaded header to filesystem.Entry.
type Entry struct {
	fs     *FS
	uic    uic.UIC
	fnum   uint16
	fseq   uint16
	name   string
	header *fileHeader
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) resolve() (*fileHeader, error) {
	if en.header == nil {
		h, err := en.fs.readFileHeader(int(en.fnum))
		if err != nil {
			return nil, err
		}
		en.header = h
	}
	return en.header, nil
}

func (en *Entry) Name() string     { return en.name }
func (en *Entry) FullPath() string { return en.uic.String() + en.name }
func (en *Entry) Length() int {
	h, err := en.resolve()
	if err != nil {
		return 0
	}
	return h.length
}
func (en *Entry) Size() int64 { return int64(en.Length()) * storage.BlockSize }
func (en *Entry) CreationDate() time.Time {
	h, err := en.resolve()
	if err != nil {
		return time.Time{}
	}
	return decodeFiles11Date(h.crdt, h.crti)
}
func (en *Entry) FileType() string {
	h, err := en.resolve()
	if err != nil {
		return ""
	}
	return h.extension
}
func (en *Entry) IsEmpty() bool { return false }
func (en *Entry) IsDirectory() bool {
	h, err := en.resolve()
	if err != nil {
		return false
	}
	return h.isDirectory()
}

func decodeFiles11Date(date, tim [7]byte) time.Time {
	s := strings.TrimRight(string(date[:]), "\x00 ")
	if len(s) < 7 {
		return time.Time{}
	}
	day := atoiSafe(s[0:2])
	monthName := s[2:5]
	year := 1900 + atoiSafe(s[5:7])
	month := 1
	for i, m := range files11Months {
		if m == monthName {
			month = i + 1
			break
		}
	}
	ts := strings.TrimRight(string(tim[:]), "\x00 ")
	hour, minute, second := 0, 0, 0
	if len(ts) >= 6 {
		hour = atoiSafe(ts[0:2])
		minute = atoiSafe(ts[2:4])
		second = atoiSafe(ts[4:6])
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// Mount reads the home block and, if strict, verifies the index file
// bitmap size is present and INDEXF.SYS's own header resolves to itself.
func Mount(device *storage.BlockDevice, strict bool) (*FS, error) {
	fs := &FS{device: device, readOnly: device.ReadOnly(), cwd: uic.Default}
	raw, err := device.ReadBlock(homeBlock)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	fs.ibsz = binary.LittleEndian.Uint16(raw[0:2])
	iblbHigh := binary.LittleEndian.Uint16(raw[2:4])
	iblbLow := binary.LittleEndian.Uint16(raw[4:6])
	fs.iblb = int(iblbHigh)<<16 | int(iblbLow)
	fs.fmax = binary.LittleEndian.Uint16(raw[6:8])

	if strict {
		if fs.ibsz == 0 {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("zero index bitmap size"))
		}
		idx, err := fs.readFileHeader(indexfSys)
		if err != nil {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", err)
		}
		if int(idx.fnum) != indexfSys {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("INDEXF.SYS header mismatch"))
		}
	}
	return fs, nil
}

// readFileHeader reads and parses the header for the given file number, per
// the rule that the first 16 headers sit contiguously after the index
// bitmap and the rest are located through INDEXF.SYS's own map.
func (fs *FS) readFileHeader(fileNumber int) (*fileHeader, error) {
	var block int
	if fileNumber <= 16 {
		block = fs.iblb + fileNumber
	} else {
		idx, err := fs.readFileHeader(indexfSys)
		if err != nil {
			return nil, err
		}
		block, err = idx.mapBlock(fileNumber)
		if err != nil {
			return nil, err
		}
	}
	raw, err := fs.device.ReadBlock(block)
	if err != nil {
		return nil, err
	}
	return parseFileHeader(raw)
}

func parseFileHeader(buf []byte) (*fileHeader, error) {
	if len(buf) < 10 {
		return nil, errors.New("file header too short")
	}
	idof := int(buf[0])
	mpof := int(buf[1])
	if mpof == 0 {
		return nil, errors.New("file not in use")
	}
	h := &fileHeader{
		fnum: binary.LittleEndian.Uint16(buf[2:4]),
		fseq: binary.LittleEndian.Uint16(buf[4:6]),
		flev: binary.LittleEndian.Uint16(buf[6:8]),
		fown: binary.LittleEndian.Uint16(buf[8:10]),
	}
	if len(buf) > 10 {
		h.fcha = binary.LittleEndian.Uint16(buf[12:14])
	}

	identPos := idof * 2
	if identPos+28 <= len(buf) {
		fnam0 := binary.LittleEndian.Uint16(buf[identPos : identPos+2])
		fnam1 := binary.LittleEndian.Uint16(buf[identPos+2 : identPos+4])
		fnam2 := binary.LittleEndian.Uint16(buf[identPos+4 : identPos+6])
		ftyp := binary.LittleEndian.Uint16(buf[identPos+6 : identPos+8])
		h.fver = binary.LittleEndian.Uint16(buf[identPos+8 : identPos+10])
		name, _ := encoding.RAD50WordsToNameExt([3]uint16{fnam0, fnam1, fnam2})
		h.filename = name
		ext, _ := encoding.RAD50WordsToNameExt([3]uint16{ftyp, 0, 0})
		h.extension = ext
		copy(h.crdt[:], buf[identPos+23:identPos+30])
		if identPos+36 <= len(buf) {
			copy(h.crti[:], buf[identPos+30:identPos+36])
		}
	}

	mapPos := mpof * 2
	if mapPos+10 <= len(buf) {
		ctsz := buf[mapPos+4]
		lbsz := buf[mapPos+5]
		use := int(buf[mapPos+6])

		j := 0
		rtrv := mapPos + 10
		if ctsz == 1 && lbsz == 3 {
			for i := rtrv; i < rtrv+use*2 && i+4 <= len(buf); i += 4 {
				highLBN := int(buf[i])
				count := int(buf[i+1]) + 1
				lowLBN := int(binary.LittleEndian.Uint16(buf[i+2 : i+4]))
				lbn := highLBN<<16 | lowLBN
				h.pointers = append(h.pointers, retrievalPointer{j: j, count: count, lbn: lbn})
				j += count
			}
		}
		h.length = j
	}
	return h, nil
}

func (fs *FS) BlockSize() int   { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return fs.device.NumBlocks() }
func (fs *FS) FreeBlocks() int  { return 0 }
func (fs *FS) ReadOnly() bool   { return true } // write support not implemented for ODS-1

func (fs *FS) readDirectory(fileNumber int, u uic.UIC) ([]*Entry, error) {
	h, err := fs.readFileHeader(fileNumber)
	if err != nil {
		return nil, err
	}
	file := &File{fs: fs, header: h}
	buf, err := file.ReadBlock(0, h.length)
	if err != nil {
		return nil, err
	}
	var out []*Entry
	for pos := 0; pos+dirEntrySize <= len(buf); pos += dirEntrySize {
		fnum := binary.LittleEndian.Uint16(buf[pos : pos+2])
		if fnum == 0 {
			continue
		}
		fseq := binary.LittleEndian.Uint16(buf[pos+2 : pos+4])
		fnam0 := binary.LittleEndian.Uint16(buf[pos+6 : pos+8])
		fnam1 := binary.LittleEndian.Uint16(buf[pos+8 : pos+10])
		fnam2 := binary.LittleEndian.Uint16(buf[pos+10 : pos+12])
		ftyp := binary.LittleEndian.Uint16(buf[pos+12 : pos+14])
		name, _ := encoding.RAD50WordsToNameExt([3]uint16{fnam0, fnam1, fnam2})
		ext, _ := encoding.RAD50WordsToNameExt([3]uint16{ftyp, 0, 0})
		full := name
		if ext != "" {
			full = name + "." + ext
		}
		out = append(out, &Entry{fs: fs, uic: u, fnum: fnum, fseq: fseq, name: full})
	}
	return out, nil
}

func (fs *FS) readDirEntries(u uic.UIC) ([]*Entry, error) {
	if u == (uic.UIC{}) {
		return fs.readDirectory(mfdDir, uic.UIC{})
	}
	if !u.HasWildcard() {
		mfdEntries, err := fs.readDirectory(mfdDir, uic.UIC{})
		if err != nil {
			return nil, err
		}
		dirName := uicDirName(u)
		for _, e := range mfdEntries {
			if e.name == dirName {
				return fs.readDirectory(int(e.fnum), u)
			}
		}
		return nil, filesystem.NewError(filesystem.NotFound, "read_dir_entries", u.String(), nil)
	}
	mfdEntries, err := fs.readDirectory(mfdDir, uic.UIC{})
	if err != nil {
		return nil, err
	}
	var out []*Entry
	for _, e := range mfdEntries {
		h, err := e.resolve()
		if err != nil || !h.isDirectory() {
			continue
		}
		sub, err := fs.readDirectory(int(e.fnum), u)
		if err != nil {
			continue
		}
		out = append(out, sub...)
	}
	return out, nil
}

func uicDirName(u uic.UIC) string {
	return groupUserOctal(u) + ".DIR"
}

func groupUserOctal(u uic.UIC) string {
	return padOctal(u.Group) + padOctal(u.User)
}

func padOctal(v uint8) string {
	s := strOctal(v)
	for len(s) < 3 {
		s = "0" + s
	}
	return s
}

func strOctal(v uint8) string {
	if v == 0 {
		return "0"
	}
	digits := ""
	for v > 0 {
		digits = string(rune('0'+v%8)) + digits
		v /= 8
	}
	return digits
}

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	entries, err := fs.readDirEntries(fs.cwd)
	if err != nil {
		return nil, err
	}
	out := make([]filesystem.Entry, len(entries))
	for i, e := range entries {
		out[i] = e
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
	entries, err := fs.readDirEntries(targetUIC)
	if err != nil {
		return nil, err
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(pattern), wildcard)
	glob := name
	if ext != "" {
		glob = name + "." + ext
	}
	var out []filesystem.Entry
	for _, e := range entries {
		if filesystem.MatchGlob(glob, e.name) {
			out = append(out, e)
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
	entries, err := fs.readDirEntries(targetUIC)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.name == name {
			return e, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) Chdir(path string) (bool, error) {
	u, err := uic.Parse(path)
	if err != nil {
		return false, filesystem.NewError(filesystem.Invalid, "chdir", path, err)
	}
	if _, err := fs.readDirEntries(u); err != nil {
		return false, err
	}
	fs.cwd = u
	return true, nil
}
func (fs *FS) GetPwd() string     { return fs.cwd.String() }
func (fs *FS) GetSize() int64     { return int64(fs.device.NumBlocks()) * storage.BlockSize }
func (fs *FS) GetTypes() []string { return []string{} }
func (fs *FS) Close() error       { return fs.device.Close() }

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, errors.New("ODS-1 write support not implemented"))
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
	return filesystem.NewError(filesystem.ReadOnly, "initialize", "", errors.New("ODS-1 initialize not implemented"))
}

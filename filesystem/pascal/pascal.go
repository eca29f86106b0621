// Package pascal implements the Apple II Pascal filesystem, per §3 "Apple
// Pascal": a single 4-block (2048 B) volume directory holding a header plus
// up to 77 fixed-width file entries, sorted by start block with unused gaps
// left implicit rather than tracked by a bitmap.
//
// Grounded on original_source/xferx/apple2/pascalfs.py in full:
// VOLUME_DIRECTORY_ENTRY_FORMAT/DIRECTORY_ENTRY_FORMAT struct layouts,
// FILE_TYPES table, pascal_to_str/str_to_pascal length-prefixed strings,
// and VolumeDirectory's sorted-contiguous-directory model (iterdir's
// synthesized "unused" gap entries, allocate_space's first-fit scan).
package pascal

import (
	"strings"
	"time"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

const (
	filenameLen     = 15
	dirBlock        = 2 // directory first block
	dirSize         = 4 // 4 blocks
	maxDirEntries   = 77
	volDirEntrySize = 28 // "<HHH8sHHHH4s"
	dirEntrySize    = 26 // "<HHH16sHH"

	defaultVolumeName = "PASCAL"

	fileTypeUntyped   = 0
	fileTypeBad       = 1
	fileTypeCode      = 2
	fileTypeText      = 3
	fileTypeInfo      = 4
	fileTypeData      = 5
	fileTypeGraf      = 6
	fileTypeFoto      = 7
	fileTypeSecureDir = 8
)

var fileTypeNames = map[int]string{
	fileTypeBad:  "BAD",
	fileTypeCode: "CODE",
	fileTypeText: "TEXT",
	fileTypeInfo: "INFO",
	fileTypeData: "DATA",
	fileTypeGraf: "GRAF",
	fileTypeFoto: "FOTO",
}

func fileTypeName(ft int) string { return fileTypeNames[ft] }

func parseFileType(s string) int {
	if s == "" {
		return fileTypeText
	}
	s = strings.ToUpper(s)
	for id, name := range fileTypeNames {
		if name == s {
			return id
		}
	}
	return fileTypeText
}

func longFileType(ft int) string {
	switch ft {
	case fileTypeBad:
		return "Bad disk"
	case fileTypeCode:
		return "Codefile"
	case fileTypeText:
		return "Textfile"
	case fileTypeInfo:
		return "Infofile"
	case fileTypeData:
		return "Datafile"
	case fileTypeGraf:
		return "Graffile"
	case fileTypeFoto:
		return "Fotofile"
	default:
		return "ILLEGAL"
	}
}

// pascalToStr decodes a length-prefixed Pascal string: the first byte is
// the length, followed by that many ASCII characters.
func pascalToStr(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	n := int(b[0])
	if n > len(b)-1 {
		n = len(b) - 1
	}
	return string(b[1 : 1+n])
}

// putPascalStr writes val as a length-prefixed Pascal string into buf,
// truncating to len(buf)-1 characters.
func putPascalStr(buf []byte, val string) {
	if len(val) > len(buf)-1 {
		val = val[:len(buf)-1]
	}
	buf[0] = byte(len(val))
	copy(buf[1:], val)
}

func canonicalFilename(fullname string) string {
	if len(fullname) > filenameLen {
		fullname = fullname[:filenameLen]
	}
	return strings.ToUpper(fullname)
}

func le16(b []byte) int          { return int(b[0]) | int(b[1])<<8 }
func putLe16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }

// dirEntry is one file entry in the volume directory. Entries synthesized
// by iterdir to represent the gap between two files (or before the first/
// after the last) carry an empty filename and are never persisted.
type dirEntry struct {
	startBlock     int
	followingBlock int
	rawFileType    int
	filename       string
	lastBlockBytes int
	rawModDate     uint16
}

func (e *dirEntry) length() int             { return e.followingBlock - e.startBlock }
func (e *dirEntry) isEmpty() bool           { return e.length() == 0 || e.filename == "" }
func (e *dirEntry) creationDate() time.Time { return encoding.PascalDecodeDate(e.rawModDate) }

func parseDirEntry(buf []byte, off int) *dirEntry {
	b := buf[off : off+dirEntrySize]
	e := &dirEntry{
		startBlock:     le16(b[0:2]),
		followingBlock: le16(b[2:4]),
		rawFileType:    le16(b[4:6]),
		lastBlockBytes: le16(b[22:24]),
		rawModDate:     uint16(le16(b[24:26])),
	}
	e.filename = pascalToStr(b[6:22])
	return e
}

func writeDirEntry(buf []byte, off int, e *dirEntry) {
	b := buf[off : off+dirEntrySize]
	for i := range b {
		b[i] = 0
	}
	putLe16(b[0:2], uint16(e.startBlock))
	putLe16(b[2:4], uint16(e.followingBlock))
	putLe16(b[4:6], uint16(e.rawFileType))
	putPascalStr(b[6:22], e.filename)
	putLe16(b[22:24], uint16(e.lastBlockBytes))
	putLe16(b[24:26], e.rawModDate)
}

// volumeDir is the parsed contents of the 4-block volume directory.
// entries holds exactly the numberOfFiles real file entries, kept sorted
// by startBlock (the on-disk invariant write() maintains); unused space
// between them is never stored, only synthesized on demand by iterdir.
type volumeDir struct {
	fs                *FS
	startBlock        int
	followingBlock    int
	rawFileType       int
	volumeName        string
	numberOfBlocks    int
	numberOfFiles     int
	lastAccessTime    int
	rawMostRecentDate uint16
	entries           []dirEntry
}

func readVolumeDir(fs *FS) (*volumeDir, error) {
	buf, err := fs.readDirBlocks()
	if err != nil {
		return nil, err
	}
	vd := &volumeDir{fs: fs}
	vd.startBlock = le16(buf[0:2])
	vd.followingBlock = le16(buf[2:4])
	vd.rawFileType = le16(buf[4:6])
	vd.volumeName = pascalToStr(buf[6:14])
	vd.numberOfBlocks = le16(buf[14:16])
	vd.numberOfFiles = le16(buf[16:18])
	vd.lastAccessTime = le16(buf[18:20])
	vd.rawMostRecentDate = uint16(le16(buf[20:22]))
	n := vd.numberOfFiles
	if n > maxDirEntries {
		n = maxDirEntries
	}
	for i := 0; i < n; i++ {
		off := volDirEntrySize + i*dirEntrySize
		vd.entries = append(vd.entries, *parseDirEntry(buf, off))
	}
	return vd, nil
}

// iterdir returns the real file entries in start-block order; when
// includeEmptyArea is set, the gaps before/between/after them are
// synthesized as unnamed entries, per VolumeDirectory.iterdir.
func (vd *volumeDir) iterdir(includeEmptyArea bool) []dirEntry {
	var out []dirEntry
	following := vd.followingBlock
	for _, e := range vd.entries {
		if includeEmptyArea {
			if free := e.startBlock - following; free > 0 {
				out = append(out, dirEntry{startBlock: following, followingBlock: e.startBlock})
			}
		}
		out = append(out, e)
		following = e.followingBlock
	}
	if includeEmptyArea {
		if free := vd.numberOfBlocks - following; free > 0 {
			out = append(out, dirEntry{startBlock: following, followingBlock: vd.numberOfBlocks})
		}
	}
	return out
}

// allocateSpace first-fits a new entry into the smallest-indexed free gap
// at least number_of_blocks long, per VolumeDirectory.allocate_space.
func (vd *volumeDir) allocateSpace(fullname string, numberOfBlocks int, creationDate time.Time, fileType string, lastBlockBytes int) (*dirEntry, error) {
	if vd.numberOfFiles >= maxDirEntries {
		return nil, filesystem.NewError(filesystem.NoSpace, "allocate_space", fullname, nil)
	}
	if creationDate.IsZero() {
		creationDate = time.Now()
	}
	for _, free := range vd.iterdir(true) {
		if free.filename == "" && free.length() >= numberOfBlocks {
			ne := dirEntry{
				startBlock:     free.startBlock,
				followingBlock: free.startBlock + numberOfBlocks,
				rawFileType:    parseFileType(fileType),
				filename:       fullname,
				lastBlockBytes: lastBlockBytes,
				rawModDate:     encoding.PascalEncodeDate(creationDate),
			}
			vd.entries = append(vd.entries, ne)
			vd.numberOfFiles++
			return &ne, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NoSpace, "allocate_space", fullname, nil)
}

// write re-serializes the volume directory, sorting entries by start block
// (the original keys this off PascalDirectoryEntry.__lt__) before padding
// the remaining slots with zero entries.
func (vd *volumeDir) write() error {
	entries := append([]dirEntry(nil), vd.entries...)
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].startBlock < entries[j-1].startBlock; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	vd.entries = entries
	vd.numberOfFiles = len(entries)

	buf := make([]byte, storage.BlockSize*dirSize)
	putLe16(buf[0:2], uint16(vd.startBlock))
	putLe16(buf[2:4], uint16(vd.followingBlock))
	putLe16(buf[4:6], uint16(vd.rawFileType))
	putPascalStr(buf[6:14], vd.volumeName)
	putLe16(buf[14:16], uint16(vd.numberOfBlocks))
	putLe16(buf[16:18], uint16(vd.numberOfFiles))
	putLe16(buf[18:20], uint16(vd.lastAccessTime))
	putLe16(buf[20:22], vd.rawMostRecentDate)
	for i := range entries {
		writeDirEntry(buf, volDirEntrySize+i*dirEntrySize, &entries[i])
	}
	return vd.fs.writeDirBlocks(buf)
}

// blockDevice is the subset of *storage.BlockDevice this package needs.
// Satisfied directly by *storage.BlockDevice, and by filesystem/ppm's
// block-offset view over a contiguous PPM volume, so a nested Pascal
// volume inside a ProDOS PAS partition can be mounted without copying it
// out to its own image first.
type blockDevice interface {
	ReadBlock(blkno int) ([]byte, error)
	WriteBlock(blkno int, buf []byte) error
	NumBlocks() int
	ReadOnly() bool
	Close() error
}

// FS is a mounted Apple Pascal volume.
type FS struct {
	dev            blockDevice
	volumeName     string
	numberOfBlocks int
	readOnly       bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// New returns an unformatted FS bound to dev, for Initialize to format.
// Used by filesystem/ppm to format a Pascal volume nested inside a PPM
// partition's block range.
func New(dev blockDevice) *FS { return &FS{dev: dev} }

func (fs *FS) readDirBlocks() ([]byte, error) {
	buf := make([]byte, 0, storage.BlockSize*dirSize)
	for i := 0; i < dirSize; i++ {
		b, err := fs.dev.ReadBlock(dirBlock + i)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_dir", "", err)
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

func (fs *FS) writeDirBlocks(buf []byte) error {
	for i := 0; i < dirSize; i++ {
		chunk := buf[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := fs.dev.WriteBlock(dirBlock+i, chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_dir", "", err)
		}
	}
	return nil
}

// Mount reads the volume directory's header. Unlike AppleDisk.mount, this
// does not retry under the opposite sector order on a bare volume name
// miss: storage.BlockDevice's Layout is fixed at construction, so callers
// pick storage.LayoutAppleProDOS (the conventional .po sector order for
// Pascal images) up front.
func Mount(dev blockDevice, readOnly bool) (*FS, error) {
	fs := &FS{dev: dev, readOnly: readOnly || dev.ReadOnly()}
	vd, err := readVolumeDir(fs)
	if err != nil {
		return nil, err
	}
	if vd.volumeName == "" {
		return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", nil)
	}
	fs.volumeName = vd.volumeName
	fs.numberOfBlocks = vd.numberOfBlocks
	return fs, nil
}

func (fs *FS) BlockSize() int   { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return fs.numberOfBlocks }
func (fs *FS) ReadOnly() bool   { return fs.readOnly }
func (fs *FS) GetSize() int64   { return int64(fs.numberOfBlocks) * storage.BlockSize }
func (fs *FS) Close() error     { return fs.dev.Close() }

func (fs *FS) GetTypes() []string {
	out := make([]string, 0, len(fileTypeNames))
	for _, v := range fileTypeNames {
		out = append(out, v)
	}
	return out
}

func (fs *FS) FreeBlocks() int {
	vd, err := readVolumeDir(fs)
	if err != nil {
		return 0
	}
	free := 0
	for _, e := range vd.iterdir(true) {
		if e.filename == "" {
			free += e.length()
		}
	}
	return free
}

// Entry adapts a dirEntry to filesystem.Entry.
type Entry struct {
	fs *FS
	e  *dirEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string     { return en.e.filename }
func (en *Entry) FullPath() string { return en.e.filename }
func (en *Entry) Length() int      { return en.e.length() }
func (en *Entry) Size() int64 {
	if en.e.length() == 0 {
		return 0
	}
	return int64((en.e.length()-1)*storage.BlockSize + en.e.lastBlockBytes)
}
func (en *Entry) CreationDate() time.Time { return en.e.creationDate() }
func (en *Entry) FileType() string        { return fileTypeName(en.e.rawFileType) }
func (en *Entry) IsEmpty() bool           { return en.e.isEmpty() }
func (en *Entry) IsDirectory() bool       { return false }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	return fs.FilterEntriesList("*", false, false, true)
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	vd, err := readVolumeDir(fs)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	var out []filesystem.Entry
	for _, e := range vd.iterdir(includeAll) {
		ec := e
		if e.filename == "" {
			out = append(out, &Entry{fs: fs, e: &ec})
			continue
		}
		if !filesystem.MatchGlob(pattern, e.filename) {
			continue
		}
		out = append(out, &Entry{fs: fs, e: &ec})
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	name := canonicalFilename(fullPath)
	vd, err := readVolumeDir(fs)
	if err != nil {
		return nil, err
	}
	for i := range vd.entries {
		if vd.entries[i].filename == name {
			return &Entry{fs: fs, e: &vd.entries[i]}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

// Chdir always fails: Apple Pascal volumes are flat.
func (fs *FS) Chdir(path string) (bool, error) { return false, nil }

func (fs *FS) GetPwd() string { return "" }

// CreateDirectory is unsupported: Apple Pascal has no subdirectories.
func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.Invalid, "create_directory", fullPath, nil)
}

// Package dos33 implements Apple DOS 3.x (§3 "Apple DOS 3.3"): a
// VTOC-anchored catalog of 35-byte file entries (7 per catalog sector),
// Track/Sector-List file storage, and a per-track 32-bit bitmap allocator,
// addressed through storage.LayoutAppleDOS33. Flat namespace: DOS 3.3 has
// no subdirectories, matching AppleDOSFilesystem.chdir/isdir always
// returning false.
//
// Grounded on original_source/xferx/apple2/appledosfs.py in full:
// VTOC_FORMAT, AppleDOSVTOC.read/create/allocate, AppleDOSCatalog.read/
// create/write/create_file, AppleDOSDirectoryEntry.read/write_buffer/
// blocks/delete/read_bytes, AppleDOSFilesystem.mount/create_file/
// write_bytes.
package dos33

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

const (
	sectorSize  = storage.SectorSize // 256
	filenameLen = 30

	vtocTrack  = 17
	vtocSector = 0

	nextTrackOffset    = 1
	nextSectorOffset   = 2
	trackSectorOffset  = 12 // 0x0C: first data T/S pair within a list sector
	dataSectorsPerList = (sectorSize - trackSectorOffset) / 2 // 122

	fileEntryOffset = 0x0B
	fileEntrySize   = 35 // <BBB30sH
	filenameRawOff  = 3
	lengthOff       = 33

	lockedFlag   = 0x80
	deletedTrack = 0xFF

	fileTypeText        = 0x00
	fileTypeInteger     = 0x01
	fileTypeApplesoft   = 0x02
	fileTypeBinary      = 0x04
	fileTypeSpecial     = 0x08
	fileTypeRelocatable = 0x10
	fileTypeA           = 0x20
	fileTypeB           = 0x40

	prodosTxtFileType = 0x04
	prodosBinFileType = 0x06
	prodosIntFileType = 0xFA
	prodosBasFileType = 0xFC
	prodosRelFileType = 0xFE
)

var fileTypeTags = map[byte]string{
	fileTypeText: "T", fileTypeInteger: "I", fileTypeApplesoft: "A",
	fileTypeBinary: "B", fileTypeSpecial: "S", fileTypeRelocatable: "R",
	fileTypeA: "a", fileTypeB: "b",
}

func fileTypeTag(b byte) string {
	if s, ok := fileTypeTags[b]; ok {
		return s
	}
	return "?"
}

func parseFileType(s string, def byte) byte {
	if s == "" {
		return def
	}
	for b, tag := range fileTypeTags {
		if tag == s {
			return b
		}
	}
	for b, tag := range fileTypeTags {
		if strings.EqualFold(tag, s) {
			return b
		}
	}
	return def
}

// trackSector is a physical sector address.
type trackSector struct{ track, sector int }

func (ts trackSector) isZero() bool { return ts.track == 0 && ts.sector == 0 }

func canonicalFilename(name string) string {
	if len(name) > filenameLen {
		name = name[:filenameLen]
	}
	return strings.ToUpper(name)
}

// filenameToRaw encodes name as 30 high-bit-set ASCII bytes padded with
// 0xA0, per appledos_filename_to_raw_filename.
func filenameToRaw(name string) []byte {
	name = canonicalFilename(name)
	raw := make([]byte, filenameLen)
	for i := range raw {
		raw[i] = 0xA0
	}
	for i := 0; i < len(name) && i < filenameLen; i++ {
		raw[i] = name[i] | 0x80
	}
	return raw
}

func rawToFilename(raw []byte) string {
	var sb strings.Builder
	for _, b := range raw {
		sb.WriteByte(b & 0x7F)
	}
	return strings.TrimSpace(sb.String())
}

// dirEntry is one 35-byte catalog slot, plus its on-disk location for
// write-back.
type dirEntry struct {
	address     trackSector
	rawFileType byte
	locked      bool
	deleted     bool
	name        string
	length      int // sectors, including the T/S list sectors

	catalogTrack, catalogSector, slotOff int
}

func (e *dirEntry) isEmpty() bool { return e.address.track == 0 }

// parseDirEntry decodes the 35-byte slot at buf[off:], per
// AppleDOSDirectoryEntry.read.
func parseDirEntry(buf []byte, off int) *dirEntry {
	track := int(buf[off])
	sector := int(buf[off+1])
	rawType := buf[off+2]
	raw := append([]byte(nil), buf[off+filenameRawOff:off+filenameRawOff+filenameLen]...)
	length := int(buf[off+lengthOff]) | int(buf[off+lengthOff+1])<<8

	e := &dirEntry{
		rawFileType: rawType & 0x7F,
		locked:      rawType&lockedFlag != 0,
		length:      length,
	}
	if track == deletedTrack {
		// The original track is stashed in the last raw filename byte.
		track = int(raw[filenameLen-1])
		raw = raw[:filenameLen-1]
		e.deleted = true
	}
	e.address = trackSector{track, sector}
	e.name = rawToFilename(raw)
	return e
}

// writeDirEntry serializes e back into its 35-byte slot, per
// AppleDOSDirectoryEntry.write_buffer.
func writeDirEntry(buf []byte, off int, e *dirEntry) {
	track := e.address.track
	raw := filenameToRaw(e.name)
	rawType := e.rawFileType
	if e.locked {
		rawType |= lockedFlag
	}
	if e.deleted {
		origTrack := track
		track = deletedTrack
		raw[filenameLen-1] = byte(origTrack)
	}
	buf[off] = byte(track)
	buf[off+1] = byte(e.address.sector)
	buf[off+2] = rawType
	copy(buf[off+filenameRawOff:off+filenameRawOff+filenameLen], raw)
	buf[off+lengthOff] = byte(e.length)
	buf[off+lengthOff+1] = byte(e.length >> 8)
}

// FS is a mounted DOS 3.3 volume.
type FS struct {
	dev      *storage.BlockDevice
	readOnly bool

	catalogTrack, catalogSector int
	numberOfTracks              int
	sectorsPerTrack             int
}

var _ filesystem.Filesystem = (*FS)(nil)

// readSector returns the 256 B sector (track, sector), addressed through
// the device's 512 B block granularity (two sectors per block).
func (fs *FS) readSector(track, sector int) ([]byte, error) {
	blkno := track*8 + sector/2
	buf, err := fs.dev.ReadBlock(blkno)
	if err != nil {
		return nil, err
	}
	half := sector % 2
	return buf[half*sectorSize : (half+1)*sectorSize], nil
}

func (fs *FS) writeSector(track, sector int, data []byte) error {
	blkno := track*8 + sector/2
	buf, err := fs.dev.ReadBlock(blkno)
	if err != nil {
		return err
	}
	half := sector % 2
	copy(buf[half*sectorSize:(half+1)*sectorSize], data)
	return fs.dev.WriteBlock(blkno, buf)
}

// New returns an unformatted FS bound to dev, for Initialize to format.
func New(dev *storage.BlockDevice) *FS { return &FS{dev: dev} }

// Mount reads the VTOC sector (track 17, sector 0).
func Mount(dev *storage.BlockDevice, readOnly bool) (*FS, error) {
	fs := &FS{dev: dev, readOnly: readOnly || dev.ReadOnly()}
	buf, err := fs.readSector(vtocTrack, vtocSector)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	fs.catalogTrack = int(buf[1])
	fs.catalogSector = int(buf[2])
	fs.numberOfTracks = int(buf[52])
	fs.sectorsPerTrack = int(buf[53])
	bytesPerSector := int(buf[54]) | int(buf[55])<<8
	if bytesPerSector != sectorSize || fs.sectorsPerTrack == 0 {
		return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("invalid VTOC"))
	}
	return fs, nil
}

func (fs *FS) BlockSize() int   { return sectorSize }
func (fs *FS) TotalBlocks() int { return fs.numberOfTracks * fs.sectorsPerTrack }
func (fs *FS) ReadOnly() bool   { return fs.readOnly }
func (fs *FS) GetSize() int64   { return int64(fs.TotalBlocks()) * sectorSize }
func (fs *FS) GetTypes() []string {
	return []string{"T", "I", "A", "B", "S", "R", "a", "b"}
}
func (fs *FS) Close() error { return fs.dev.Close() }

func (fs *FS) FreeBlocks() int {
	v, err := fs.readVTOC()
	if err != nil {
		return 0
	}
	return v.free()
}

// catalogChain walks the catalog sector chain starting at the VTOC's
// catalog address, invoking visit for every one of the 7 entry slots per
// sector, per AppleDOSCatalog.read.
func (fs *FS) catalogChain(visit func(track, sector, off int, e *dirEntry) error) error {
	track, sector := fs.catalogTrack, fs.catalogSector
	for track != 0 {
		buf, err := fs.readSector(track, sector)
		if err != nil {
			return filesystem.NewError(filesystem.EIO, "catalog_chain", "", err)
		}
		for off := fileEntryOffset; off+fileEntrySize <= sectorSize; off += fileEntrySize {
			e := parseDirEntry(buf, off)
			e.catalogTrack, e.catalogSector, e.slotOff = track, sector, off
			if err := visit(track, sector, off, e); err != nil {
				return err
			}
		}
		nextTrack, nextSector := int(buf[nextTrackOffset]), int(buf[nextSectorOffset])
		track, sector = nextTrack, nextSector
	}
	return nil
}

func (fs *FS) rawCatalogEntries() ([]*dirEntry, error) {
	var out []*dirEntry
	err := fs.catalogChain(func(track, sector, off int, e *dirEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (fs *FS) listEntries(includeDeleted bool) ([]*dirEntry, error) {
	entries, err := fs.rawCatalogEntries()
	if err != nil {
		return nil, err
	}
	var out []*dirEntry
	for _, e := range entries {
		if e.isEmpty() {
			continue
		}
		if e.deleted && !includeDeleted {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Entry adapts a dirEntry to filesystem.Entry.
type Entry struct {
	fs *FS
	e  *dirEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string     { return en.e.name }
func (en *Entry) FullPath() string { return "/" + en.e.name }
func (en *Entry) Length() int      { return en.e.length }
func (en *Entry) Size() int64      { return int64(en.e.length) * sectorSize }
// CreationDate: DOS 3.3 catalog entries carry no timestamp field.
func (en *Entry) CreationDate() time.Time { return time.Time{} }
func (en *Entry) FileType() string {
	tag := fileTypeTag(en.e.rawFileType)
	if en.e.locked {
		return tag + "*"
	}
	return tag
}
func (en *Entry) IsEmpty() bool     { return en.e.isEmpty() }
func (en *Entry) IsDirectory() bool { return false }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	return fs.FilterEntriesList("*", false, false, true)
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	entries, err := fs.listEntries(includeAll)
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
		out = append(out, &Entry{fs: fs, e: e})
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	name := canonicalFilename(strings.TrimPrefix(fullPath, "/"))
	entries, err := fs.listEntries(false)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.name == name {
			return &Entry{fs: fs, e: e}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

// Chdir and GetPwd: DOS 3.3 is flat, per AppleDOSFilesystem.chdir always
// returning False.
func (fs *FS) Chdir(path string) (bool, error) { return false, nil }
func (fs *FS) GetPwd() string                  { return "/" }

func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.Invalid, "create_directory", fullPath, errors.New("DOS 3.3 has no subdirectories"))
}

// Package rsts implements RSTS/E: a hierarchical MFD -> GFD -> UFD directory
// (RDS 1.x) or direct MFD -> UFD chains (RDS 0), where every directory block
// is a collection of 16-byte blockettes (32 per block) linked by a 16-bit
// Link decomposed as {flags(4), entry-index(5), cluster(3), block(4)}, per
// §3 "RSTS/E". This driver is read-only: §13's open-question decision keeps
// RSTS/E inspection-only, matching the original implementation's own
// read-only treatment of this format.
package rsts

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
	diskPackLabelDCN       = 1
	labelBlockOffset       = 0
	gfdPointerBlockOffset  = 1
	ufdPointerBlockOffset  = 1
	gfdNameEntryBlockOffset = 2
	clusterMapPos          = 0o760
	blockettesPerBlock     = 32
	blockettesSize         = 16
	rds1Flags              = 0o20000
	rds11PLVL              = 257
)

// Link is a blockette pointer: {flags(4), entry(5), cluster(3), block(4)}.
type Link struct {
	Flags, Entry, Cluster, Block int
}

func decodeLink(word uint16) Link {
	v := int(word)
	l := Link{}
	l.Flags = v & 0b1111
	v >>= 4
	l.Entry = v & 0b11111
	v >>= 5
	l.Cluster = v & 0b111
	v >>= 3
	l.Block = v & 0b1111
	return l
}

func (l Link) isNull() bool { return l == Link{} }

func (l Link) toLBN(clusterMap []int) int {
	if l.Cluster >= len(clusterMap) {
		return 0
	}
	return clusterMap[l.Cluster] + l.Block
}

// PPN is RSTS/E's Project/Programmer Number, a UIC under a different name.
type PPN = uic.UIC

// ufdNameEntry is one resolved UFD name entry plus its account blockette.
type ufdNameEntry struct {
	ppn         PPN
	ufdUAR      int
	filename    string
	extension   string
	next        Link
	uaa         Link
	uar         Link
	accUDC, accUTC uint16
	accUSIZ     uint16
	accUCLUS    uint16
}

func (e *ufdNameEntry) basename() string {
	if e.extension == "" {
		return e.filename
	}
	return e.filename + "." + e.extension
}

// FS is a mounted RSTS/E volume.
type FS struct {
	device *storage.BlockDevice
	dcs    int // device cluster size

	rds1           bool
	mfdClusterMap  []int
	gfdPointerMap  []int // RDS1.x: GFD DCN per group
	mfdFirstName   Link  // RDS0: link to first MFD name entry
	cwd            uic.UIC
}

var _ filesystem.Filesystem = (*FS)(nil)

type Entry struct {
	fs *FS
	e  *ufdNameEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string             { return en.e.basename() }
func (en *Entry) FullPath() string         { return en.e.ppn.String() + en.e.basename() }
func (en *Entry) Length() int              { return int(en.e.accUSIZ) }
func (en *Entry) Size() int64              { return int64(en.e.accUSIZ) * storage.BlockSize }
func (en *Entry) CreationDate() time.Time  { return decodeRSTSDate(en.e.accUDC, en.e.accUTC) }
func (en *Entry) FileType() string         { return en.e.extension }
func (en *Entry) IsEmpty() bool            { return false }
func (en *Entry) IsDirectory() bool        { return false }

// decodeRSTSDate interprets the packed 1-origin date/time words used by
// RSTS/E directory accounting entries.
func decodeRSTSDate(udc, utc uint16) time.Time {
	if udc == 0 {
		return time.Time{}
	}
	base := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	day := base.AddDate(0, 0, int(udc))
	minutes := int(utc)
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, time.UTC)
}

func (fs *FS) dcnToLBN(dcn int) int { return dcn * fs.dcs }

func (fs *FS) readBlockDCN(dcn int) ([]byte, error) {
	return fs.device.ReadBlock(fs.dcnToLBN(dcn))
}

func computeDCS(deviceBlocks int) int {
	d := (deviceBlocks - 1) >> 16
	dcs := 1
	for d > 0 {
		d >>= 1
		dcs <<= 1
	}
	return dcs
}

func readClusterMap(buf []byte) (size int, dcns []int) {
	if clusterMapPos+blockettesSize > len(buf) {
		return 0, nil
	}
	size = int(binary.LittleEndian.Uint16(buf[clusterMapPos : clusterMapPos+2]))
	dcns = make([]int, 7)
	for i := 0; i < 7; i++ {
		pos := clusterMapPos + 2 + i*2
		dcns[i] = int(binary.LittleEndian.Uint16(buf[pos : pos+2]))
	}
	return size, dcns
}

// Mount reads the disk pack label and, for RDS1.x, the MFD cluster map and
// GFD pointer block. strict additionally requires SATT.SYS (the storage
// allocation table) to resolve under [0,1].
func Mount(device *storage.BlockDevice, strict bool) (*FS, error) {
	fs := &FS{device: device, cwd: uic.Default}
	fs.dcs = computeDCS(device.NumBlocks())

	label, err := fs.readBlockDCN(diskPackLabelDCN)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	ulnk := binary.LittleEndian.Uint16(label[0:2])
	mdcn := binary.LittleEndian.Uint16(label[4:6])
	plvl := binary.LittleEndian.Uint16(label[6:8])
	pstat := binary.LittleEndian.Uint16(label[10:12])
	fs.mfdFirstName = decodeLink(ulnk)

	if pstat&rds1Flags != 0 {
		fs.rds1 = true
		_ = plvl
		mfdLabel, err := fs.readBlockDCN(int(mdcn) + labelBlockOffset)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
		}
		_, fs.mfdClusterMap = readClusterMap(mfdLabel)
		gfdBuf, err := fs.readBlockDCN(int(mdcn) + gfdPointerBlockOffset)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
		}
		fs.gfdPointerMap = make([]int, 255)
		for i := 0; i < 255; i++ {
			fs.gfdPointerMap[i] = int(binary.LittleEndian.Uint16(gfdBuf[i*2 : i*2+2]))
		}
	} else {
		_, fs.mfdClusterMap = readClusterMap(label)
	}

	if strict {
		if _, err := fs.GetFileEntry("[0,1]SATT.SYS"); err != nil {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("SATT.SYS not found"))
		}
	}
	return fs, nil
}

func (fs *FS) BlockSize() int   { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return fs.device.NumBlocks() }
func (fs *FS) FreeBlocks() int  { return 0 }
func (fs *FS) ReadOnly() bool   { return true }

func (fs *FS) Chdir(path string) (bool, error) {
	u, err := uic.Parse(path)
	if err != nil {
		return false, filesystem.NewError(filesystem.Invalid, "chdir", path, err)
	}
	fs.cwd = u
	return true, nil
}
func (fs *FS) GetPwd() string     { return fs.cwd.String() }
func (fs *FS) GetSize() int64     { return int64(fs.device.NumBlocks()) * storage.BlockSize }
func (fs *FS) GetTypes() []string { return []string{} }
func (fs *FS) Close() error       { return fs.device.Close() }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	entries, err := fs.readDirEntries(fs.cwd)
	if err != nil {
		return nil, err
	}
	out := make([]filesystem.Entry, len(entries))
	for i, e := range entries {
		out[i] = &Entry{fs: fs, e: e}
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	targetPPN := fs.cwd
	if idx := strings.IndexByte(pattern, ']'); strings.HasPrefix(pattern, "[") && idx >= 0 {
		if p, err := uic.Parse(pattern[:idx+1]); err == nil {
			targetPPN = p
			pattern = pattern[idx+1:]
		}
	}
	entries, err := fs.readDirEntries(targetPPN)
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
		if filesystem.MatchGlob(glob, e.basename()) {
			out = append(out, &Entry{fs: fs, e: e})
		}
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	targetPPN := fs.cwd
	name := fullPath
	if idx := strings.IndexByte(fullPath, ']'); strings.HasPrefix(fullPath, "[") && idx >= 0 {
		if p, err := uic.Parse(fullPath[:idx+1]); err == nil {
			targetPPN = p
			name = fullPath[idx+1:]
		}
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	entries, err := fs.readDirEntries(targetPPN)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.basename() == name {
			return &Entry{fs: fs, e: e}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, errors.New("RSTS/E is read-only in this codebase"))
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
	return filesystem.NewError(filesystem.ReadOnly, "initialize", "", errors.New("RSTS/E initialize not implemented"))
}

func nameFromRAD50(w0, w1, w2 uint16) string {
	name, _ := encoding.RAD50WordsToNameExt([3]uint16{w0, w1, w2})
	return name
}

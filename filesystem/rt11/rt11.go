// Package rt11 implements the RT-11 filesystem: 2-block linked directory
// segments describing strictly contiguous runs of data blocks, with
// best-fit contiguous allocation (§4.1 "RT-11 allocation").
package rt11

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

const (
	// DirSegmentBase is the block where directory segment 1 starts on a
	// standard RT-11 volume.
	DirSegmentBase = 6
	// entryFixedSize is the 14-byte fixed part of every directory entry,
	// before the format's optional extra bytes.
	entryFixedSize = 14
	// segmentBlocks is the size of one directory segment, in blocks.
	segmentBlocks = 2

	statusEOS             uint16 = 0o2000
	statusEmpty           uint16 = 0o1000
	statusTentative       uint16 = 0o0400
	statusWriteProtected  uint16 = 0o0200
	statusReadProtected   uint16 = 0o0100
)

// segmentHeader is the 10-byte (5 word) header at the start of every
// directory segment.
type segmentHeader struct {
	TotalSegments    uint16
	NextSegment      uint16
	HighestSegment   uint16
	ExtraBytes       uint16
	FirstDataBlock   uint16
}

// dirEntry is one 14+extra byte RT-11 directory entry.
type dirEntry struct {
	Status       uint16
	NameWords    [3]uint16
	Length       uint16
	JobChannel   uint16
	CreationDate uint16
	Extra        []byte

	segment  int // segment index this entry lives in
	index    int // entry index within the segment
	startBlk int // first data block (derived by prefix-summing lengths)
}

func (e *dirEntry) isPermanent() bool {
	return e.Status&(statusEmpty|statusTentative) == 0
}
func (e *dirEntry) isEmpty() bool     { return e.Status&statusEmpty != 0 }
func (e *dirEntry) isTentative() bool { return e.Status&statusTentative != 0 }
func (e *dirEntry) isEOS() bool       { return e.Status&statusEOS != 0 }

func (e *dirEntry) name() string {
	name, ext := encoding.RAD50WordsToNameExt(e.NameWords)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

type segment struct {
	header  segmentHeader
	entries []*dirEntry
}

// FS is a mounted RT-11 volume.
type FS struct {
	device   *storage.BlockDevice
	segments []*segment
	readOnly bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Entry adapts a dirEntry to filesystem.Entry.
type Entry struct {
	fs *FS
	e  *dirEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string     { return en.e.name() }
func (en *Entry) FullPath() string { return en.e.name() }
func (en *Entry) Length() int      { return int(en.e.Length) }
func (en *Entry) Size() int64      { return int64(en.e.Length) * storage.BlockSize }
func (en *Entry) CreationDate() time.Time {
	return encoding.RT11DecodeDate(en.e.CreationDate)
}
func (en *Entry) FileType() string {
	_, ext := encoding.RAD50WordsToNameExt(en.e.NameWords)
	return ext
}
func (en *Entry) IsEmpty() bool     { return !en.e.isPermanent() }
func (en *Entry) IsDirectory() bool { return false }

// Mount reads every directory segment starting at DirSegmentBase. strict
// additionally validates that segment links form a simple chain and that
// lengths are non-negative.
func Mount(device *storage.BlockDevice, strict bool) (*FS, error) {
	fs := &FS{device: device, readOnly: device.ReadOnly()}

	segNum := 1
	visited := map[int]bool{}
	for segNum != 0 {
		if strict && visited[segNum] {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("circular segment chain"))
		}
		visited[segNum] = true

		blk := DirSegmentBase + (segNum-1)*segmentBlocks
		raw, err := readBlocks(device, blk, segmentBlocks)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
		}
		seg, err := parseSegment(raw, segNum)
		if err != nil {
			if strict {
				return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", err)
			}
		}
		fs.segments = append(fs.segments, seg)

		if strict && int(seg.header.TotalSegments) != len(fs.segments) && seg.header.TotalSegments != 0 {
			// total segment count is informational beyond the first header;
			// only the first segment's value is authoritative.
		}
		segNum = int(seg.header.NextSegment)
	}

	computeStartBlocks(fs.segments)

	if strict {
		if err := fs.validate(); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func readBlocks(device *storage.BlockDevice, start, count int) ([]byte, error) {
	var out []byte
	for i := 0; i < count; i++ {
		b, err := device.ReadBlock(start + i)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func writeBlocks(device *storage.BlockDevice, start int, data []byte) error {
	for i := 0; i*storage.BlockSize < len(data); i++ {
		chunk := data[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := device.WriteBlock(start+i, chunk); err != nil {
			return err
		}
	}
	return nil
}

func parseSegment(raw []byte, segNum int) (*segment, error) {
	if len(raw) < 10 {
		return nil, errors.New("segment too short")
	}
	h := segmentHeader{
		TotalSegments:  binary.LittleEndian.Uint16(raw[0:2]),
		NextSegment:    binary.LittleEndian.Uint16(raw[2:4]),
		HighestSegment: binary.LittleEndian.Uint16(raw[4:6]),
		ExtraBytes:     binary.LittleEndian.Uint16(raw[6:8]),
		FirstDataBlock: binary.LittleEndian.Uint16(raw[8:10]),
	}
	seg := &segment{header: h}

	entrySize := entryFixedSize + int(h.ExtraBytes)
	pos := 10
	for pos+entrySize <= len(raw) {
		de := &dirEntry{
			Status:       binary.LittleEndian.Uint16(raw[pos : pos+2]),
			NameWords:    [3]uint16{binary.LittleEndian.Uint16(raw[pos+2 : pos+4]), binary.LittleEndian.Uint16(raw[pos+4 : pos+6]), binary.LittleEndian.Uint16(raw[pos+6 : pos+8])},
			Length:       binary.LittleEndian.Uint16(raw[pos+8 : pos+10]),
			JobChannel:   binary.LittleEndian.Uint16(raw[pos+10 : pos+12]),
			CreationDate: binary.LittleEndian.Uint16(raw[pos+12 : pos+14]),
			segment:      segNum,
			index:        len(seg.entries),
		}
		if h.ExtraBytes > 0 {
			de.Extra = append([]byte(nil), raw[pos+14:pos+14+int(h.ExtraBytes)]...)
		}
		seg.entries = append(seg.entries, de)
		pos += entrySize
		if de.isEOS() {
			break
		}
	}
	return seg, nil
}

func computeStartBlocks(segments []*segment) {
	for _, seg := range segments {
		blk := int(seg.header.FirstDataBlock)
		for _, e := range seg.entries {
			e.startBlk = blk
			blk += int(e.Length)
		}
	}
}

// validate implements the strict mount-time consistency checks from §8:
// no block double-referenced, and directory-described blocks fit the
// device's total block count.
func (fs *FS) validate() error {
	seen := map[int]bool{}
	for _, seg := range fs.segments {
		for _, e := range seg.entries {
			if !e.isPermanent() {
				continue
			}
			for b := e.startBlk; b < e.startBlk+int(e.Length); b++ {
				if n := fs.device.NumBlocks(); n > 0 && b >= n {
					return filesystem.NewError(filesystem.Corrupt, "mount", e.name(), errors.New("block beyond end of device"))
				}
				if seen[b] {
					return filesystem.NewError(filesystem.Corrupt, "mount", e.name(), errors.New("block referenced by two entries"))
				}
				seen[b] = true
			}
		}
	}
	return nil
}

func (fs *FS) BlockSize() int { return storage.BlockSize }

func (fs *FS) TotalBlocks() int { return fs.device.NumBlocks() }

func (fs *FS) FreeBlocks() int {
	total := 0
	for _, seg := range fs.segments {
		for _, e := range seg.entries {
			if e.isEmpty() {
				total += int(e.Length)
			}
		}
	}
	return total
}

func (fs *FS) ReadOnly() bool { return fs.readOnly }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	var out []filesystem.Entry
	for _, seg := range fs.segments {
		for _, e := range seg.entries {
			out = append(out, &Entry{fs: fs, e: e})
		}
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	all, err := fs.EntriesList()
	if err != nil {
		return nil, err
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(pattern), wildcard)
	glob := name
	if ext != "" {
		glob = name + "." + ext
	}
	var out []filesystem.Entry
	for _, e := range all {
		if !includeAll && e.IsEmpty() {
			continue
		}
		if filesystem.MatchGlob(glob, e.Name()) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	target := strings.ToUpper(strings.TrimSpace(fullPath))
	for _, seg := range fs.segments {
		for _, e := range seg.entries {
			if e.isPermanent() && e.name() == target {
				return &Entry{fs: fs, e: e}, nil
			}
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) Chdir(path string) (bool, error) { return false, nil }
func (fs *FS) GetPwd() string                  { return "" }
func (fs *FS) GetSize() int64                  { return int64(fs.device.NumBlocks()) * storage.BlockSize }
func (fs *FS) GetTypes() []string              { return []string{} }

func (fs *FS) Close() error { return fs.device.Close() }

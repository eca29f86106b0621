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

// DefaultReservedSegments is the number of directory segments reserved at
// INITIALIZE time; the reserve occupies DefaultReservedSegments*2 blocks
// starting at DirSegmentBase, per §4.1's allocation algorithm.
const DefaultReservedSegments = 4

// findBestFit scans every segment for an EMPTY entry of length >= n,
// returning the smallest sufficient candidate (best fit) to minimize
// fragmentation, as specified in §4.1.
func (fs *FS) findBestFit(n int) (segIdx, entIdx int, found bool) {
	best := -1
	for si, seg := range fs.segments {
		for ei, e := range seg.entries {
			if !e.isEmpty() || int(e.Length) < n {
				continue
			}
			if best == -1 || int(e.Length) < best {
				segIdx, entIdx, best = si, ei, int(e.Length)
				found = true
			}
		}
	}
	return
}

// CreateFile implements §4.1 create_file: delete any same-name file, find a
// best-fit EMPTY entry, split it if oversized (growing the segment chain
// from the reserve if the segment has no room for the extra entry), and
// populate the allocated entry.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	name := strings.ToUpper(strings.TrimSpace(fullPath))

	if existing, err := fs.GetFileEntry(name); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}

	segIdx, entIdx, found := fs.findBestFit(blocks)
	if !found {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, nil)
	}

	seg := fs.segments[segIdx]
	chosen := seg.entries[entIdx]
	remainder := int(chosen.Length) - blocks

	if remainder > 0 {
		if !fs.segmentHasRoom(seg) {
			if err := fs.growSegment(segIdx); err != nil {
				return nil, err
			}
			seg = fs.segments[segIdx]
			chosen = seg.entries[entIdx]
		}
		newEmpty := &dirEntry{
			Status:   statusEmpty,
			Length:   uint16(remainder),
			startBlk: chosen.startBlk + blocks,
			segment:  chosen.segment,
		}
		if chosen.isEOS() {
			newEmpty.Status |= statusEOS
			chosen.Status &^= statusEOS
		}
		tail := append([]*dirEntry{newEmpty}, seg.entries[entIdx+1:]...)
		seg.entries = append(seg.entries[:entIdx+1], tail...)
	}

	words := nameWords(name)
	chosen.Status = 0
	chosen.NameWords = words
	chosen.Length = uint16(blocks)
	chosen.CreationDate = encoding.RT11EncodeDate(creationDate)

	renumber(seg)
	if err := fs.writeSegment(segIdx); err != nil {
		return nil, err
	}
	return &Entry{fs: fs, e: chosen}, nil
}

func nameWords(fullName string) [3]uint16 {
	base := fullName
	ext := ""
	if idx := strings.IndexByte(fullName, '.'); idx >= 0 {
		base = fullName[:idx]
		ext = fullName[idx+1:]
	}
	return encoding.RAD50NameExtToWords(base, ext)
}

func renumber(seg *segment) {
	for i, e := range seg.entries {
		e.index = i
	}
}

// segmentHasRoom reports whether seg can hold one more entry without
// exceeding its 2-block (1024-byte) capacity.
func (fs *FS) segmentHasRoom(seg *segment) bool {
	entrySize := entryFixedSize + int(seg.header.ExtraBytes)
	used := 10 + len(seg.entries)*entrySize
	return used+entrySize <= segmentBlocks*storage.BlockSize
}

// growSegment allocates a fresh directory segment from the reserve and
// moves the tail of seg (everything after its midpoint) into it, preserving
// linkage, per §4.1.
func (fs *FS) growSegment(segIdx int) error {
	seg := fs.segments[segIdx]
	first := fs.segments[0]
	reserved := int(first.header.TotalSegments)
	nextNum := len(fs.segments) + 1
	if nextNum > reserved {
		return filesystem.NewError(filesystem.NoSpace, "create_file", "", errors.New("directory segment reserve exhausted"))
	}

	mid := len(seg.entries) / 2
	newSeg := &segment{
		header: segmentHeader{
			TotalSegments:  uint16(reserved),
			NextSegment:    seg.header.NextSegment,
			HighestSegment: uint16(nextNum),
			ExtraBytes:     seg.header.ExtraBytes,
			FirstDataBlock: uint16(seg.entries[mid].startBlk),
		},
		entries: append([]*dirEntry(nil), seg.entries[mid:]...),
	}
	for _, e := range newSeg.entries {
		e.segment = nextNum
	}
	seg.entries = seg.entries[:mid]
	seg.header.NextSegment = uint16(nextNum)

	for _, s := range fs.segments {
		if s.header.HighestSegment < uint16(nextNum) {
			s.header.HighestSegment = uint16(nextNum)
		}
	}

	fs.segments = append(fs.segments, newSeg)
	renumber(seg)
	renumber(newSeg)
	if err := fs.writeSegment(segIdx); err != nil {
		return err
	}
	return fs.writeSegment(len(fs.segments) - 1)
}

func (fs *FS) writeSegment(idx int) error {
	seg := fs.segments[idx]
	buf := serializeSegment(seg)
	blk := DirSegmentBase + idx*segmentBlocks
	return writeBlocks(fs.device, blk, buf)
}

func serializeSegment(seg *segment) []byte {
	buf := make([]byte, segmentBlocks*storage.BlockSize)
	binary.LittleEndian.PutUint16(buf[0:2], seg.header.TotalSegments)
	binary.LittleEndian.PutUint16(buf[2:4], seg.header.NextSegment)
	binary.LittleEndian.PutUint16(buf[4:6], seg.header.HighestSegment)
	binary.LittleEndian.PutUint16(buf[6:8], seg.header.ExtraBytes)
	binary.LittleEndian.PutUint16(buf[8:10], seg.header.FirstDataBlock)

	entrySize := entryFixedSize + int(seg.header.ExtraBytes)
	pos := 10
	for _, e := range seg.entries {
		if pos+entrySize > len(buf) {
			break
		}
		binary.LittleEndian.PutUint16(buf[pos:pos+2], e.Status)
		binary.LittleEndian.PutUint16(buf[pos+2:pos+4], e.NameWords[0])
		binary.LittleEndian.PutUint16(buf[pos+4:pos+6], e.NameWords[1])
		binary.LittleEndian.PutUint16(buf[pos+6:pos+8], e.NameWords[2])
		binary.LittleEndian.PutUint16(buf[pos+8:pos+10], e.Length)
		binary.LittleEndian.PutUint16(buf[pos+10:pos+12], e.JobChannel)
		binary.LittleEndian.PutUint16(buf[pos+12:pos+14], e.CreationDate)
		if len(e.Extra) > 0 {
			copy(buf[pos+14:pos+14+len(e.Extra)], e.Extra)
		}
		pos += entrySize
	}
	return buf
}

// Delete removes entry's directory entry, marks its blocks free, and
// coalesces adjacent free entries to counteract fragmentation.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	rtEntry, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	e := rtEntry.e
	segIdx := e.segment - 1
	if segIdx < 0 || segIdx >= len(fs.segments) {
		return filesystem.NewError(filesystem.NotFound, "delete", entry.FullPath(), nil)
	}
	seg := fs.segments[segIdx]

	e.Status = statusEmpty | (e.Status & statusEOS)
	e.NameWords = [3]uint16{}
	e.CreationDate = 0

	fs.coalesce(seg)
	return fs.writeSegment(segIdx)
}

func (fs *FS) coalesce(seg *segment) {
	for {
		merged := false
		for i := 0; i+1 < len(seg.entries); i++ {
			a, b := seg.entries[i], seg.entries[i+1]
			if a.isEmpty() && b.isEmpty() {
				a.Length += b.Length
				a.Status |= b.Status & statusEOS
				seg.entries = append(seg.entries[:i+1], seg.entries[i+2:]...)
				merged = true
				break
			}
		}
		if !merged {
			break
		}
	}
	renumber(seg)
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	blocks := (len(content) + storage.BlockSize - 1) / storage.BlockSize
	if blocks == 0 {
		blocks = 1
	}
	entry, err := fs.CreateFile(fullPath, blocks, creationDate, fileType)
	if err != nil {
		return nil, err
	}
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	padded := make([]byte, blocks*storage.BlockSize)
	copy(padded, content)
	if err := handle.WriteBlock(padded, 0, blocks); err != nil {
		return nil, err
	}
	return entry, nil
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

// CreateDirectory is unsupported: RT-11 is a flat filesystem.
func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, errors.New("RT-11 has no subdirectories"))
}

// Initialize writes a blank directory with a single reserved-segment chain
// and one EMPTY entry spanning every data block.
func Initialize(device *storage.BlockDevice, options map[string]string) error {
	if device.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	reserved := DefaultReservedSegments
	firstData := DirSegmentBase + reserved*segmentBlocks
	totalBlocks := device.NumBlocks()
	if totalBlocks <= firstData {
		return filesystem.NewError(filesystem.Invalid, "initialize", "", errors.New("volume too small for RT-11"))
	}

	seg := &segment{
		header: segmentHeader{
			TotalSegments:  uint16(reserved),
			NextSegment:    0,
			HighestSegment: 1,
			ExtraBytes:     0,
			FirstDataBlock: uint16(firstData),
		},
		entries: []*dirEntry{{
			Status:   statusEmpty | statusEOS,
			Length:   uint16(totalBlocks - firstData),
			startBlk: firstData,
			segment:  1,
		}},
	}
	buf := serializeSegment(seg)
	if err := writeBlocks(device, DirSegmentBase, buf); err != nil {
		return err
	}
	empty := make([]byte, segmentBlocks*storage.BlockSize)
	for s := 1; s < reserved; s++ {
		if err := writeBlocks(device, DirSegmentBase+s*segmentBlocks, empty); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) Initialize(options map[string]string) error {
	return Initialize(fs.device, options)
}

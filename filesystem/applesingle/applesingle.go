// Package applesingle implements the AppleSingle container format used to
// preserve ProDOS/AppleDOS metadata (file type, aux type, resource fork)
// when a file is transferred through a non-Apple-aware medium.
package applesingle

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	magic   uint32 = 0x00051600
	version uint32 = 0x00020000

	// Entry IDs consumed by XFERX.
	EntryDataFork       uint32 = 1
	EntryResourceFork   uint32 = 2
	EntryProDOSFileInfo uint32 = 11
)

// ProDOSFileInfo is entry ID 11: access bits, ProDOS file type, and aux type.
type ProDOSFileInfo struct {
	Access  uint16
	FileType uint16
	AuxType uint32
}

// File is a parsed or to-be-encoded AppleSingle envelope.
type File struct {
	Data       []byte
	Resource   []byte
	ProDOSInfo *ProDOSFileInfo
}

type entryHeader struct {
	ID     uint32
	Offset uint32
	Length uint32
}

// Decode parses an AppleSingle envelope. Per the specification's recovery
// rule, callers should treat a ValueError-equivalent failure here as "this
// is not AppleSingle, use the raw bytes as-is".
func Decode(buf []byte) (*File, error) {
	if len(buf) < 26 {
		return nil, errors.New("buffer too short for AppleSingle header")
	}
	gotMagic := binary.BigEndian.Uint32(buf[0:4])
	if gotMagic != magic {
		return nil, errors.Errorf("bad AppleSingle magic: %#x", gotMagic)
	}
	count := binary.BigEndian.Uint16(buf[24:26])

	headerLen := 26 + int(count)*12
	if len(buf) < headerLen {
		return nil, errors.New("buffer too short for AppleSingle entry table")
	}

	f := &File{}
	for i := 0; i < int(count); i++ {
		off := 26 + i*12
		e := entryHeader{
			ID:     binary.BigEndian.Uint32(buf[off : off+4]),
			Offset: binary.BigEndian.Uint32(buf[off+4 : off+8]),
			Length: binary.BigEndian.Uint32(buf[off+8 : off+12]),
		}
		if int(e.Offset+e.Length) > len(buf) {
			return nil, errors.Errorf("entry %d out of range", e.ID)
		}
		data := buf[e.Offset : e.Offset+e.Length]
		switch e.ID {
		case EntryDataFork:
			f.Data = append([]byte(nil), data...)
		case EntryResourceFork:
			f.Resource = append([]byte(nil), data...)
		case EntryProDOSFileInfo:
			if len(data) < 8 {
				continue
			}
			f.ProDOSInfo = &ProDOSFileInfo{
				Access:   binary.BigEndian.Uint16(data[0:2]),
				FileType: binary.BigEndian.Uint16(data[2:4]),
				AuxType:  binary.BigEndian.Uint32(data[4:8]),
			}
		}
	}
	return f, nil
}

// Encode serializes f as an AppleSingle envelope carrying whichever of
// Data/Resource/ProDOSInfo are set.
func Encode(f *File) []byte {
	type entry struct {
		id   uint32
		data []byte
	}
	var entries []entry
	entries = append(entries, entry{EntryDataFork, f.Data})
	if f.Resource != nil {
		entries = append(entries, entry{EntryResourceFork, f.Resource})
	}
	if f.ProDOSInfo != nil {
		info := make([]byte, 8)
		binary.BigEndian.PutUint16(info[0:2], f.ProDOSInfo.Access)
		binary.BigEndian.PutUint16(info[2:4], f.ProDOSInfo.FileType)
		binary.BigEndian.PutUint32(info[4:8], f.ProDOSInfo.AuxType)
		entries = append(entries, entry{EntryProDOSFileInfo, info})
	}

	headerLen := 26 + len(entries)*12
	out := make([]byte, headerLen)
	binary.BigEndian.PutUint32(out[0:4], magic)
	binary.BigEndian.PutUint32(out[4:8], version)
	// bytes 8:24 filler, left zero
	binary.BigEndian.PutUint16(out[24:26], uint16(len(entries)))

	cursor := uint32(headerLen)
	for i, e := range entries {
		off := 26 + i*12
		binary.BigEndian.PutUint32(out[off:off+4], e.id)
		binary.BigEndian.PutUint32(out[off+4:off+8], cursor)
		binary.BigEndian.PutUint32(out[off+8:off+12], uint32(len(e.data)))
		out = append(out, e.data...)
		cursor += uint32(len(e.data))
	}
	return out
}

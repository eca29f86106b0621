package dos33

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/filesystem/applesingle"
)

// blocks enumerates e's Track/Sector-List chain, yielding data sectors (and,
// if includeIndexes, the T/S list sectors themselves), per
// AppleDOSDirectoryEntry.blocks.
func (fs *FS) blocks(e *dirEntry, includeIndexes bool) ([]trackSector, error) {
	var out []trackSector
	addr := e.address
	for !addr.isZero() {
		if includeIndexes {
			out = append(out, addr)
		}
		buf, err := fs.readSector(addr.track, addr.sector)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "blocks", e.name, err)
		}
		for i := trackSectorOffset; i+1 < sectorSize; i += 2 {
			data := trackSector{int(buf[i]), int(buf[i+1])}
			if data.isZero() {
				break
			}
			out = append(out, data)
		}
		addr = trackSector{int(buf[nextTrackOffset]), int(buf[nextSectorOffset])}
	}
	return out, nil
}

// File is an open Track/Sector-List file handle.
type File struct {
	fs      *FS
	e       *dirEntry
	sectors []trackSector
	closed  bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	en, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	sectors, err := fs.blocks(en.e, false)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, e: en.e, sectors: sectors}, nil
}

func (f *File) BlockSize() int            { return sectorSize }
func (f *File) Length() int               { return len(f.sectors) }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.name, errors.New("handle closed"))
	}
	if n < 0 || n+count > len(f.sectors) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.name, errors.New("range exceeds file length"))
	}
	var out []byte
	for i := n; i < n+count; i++ {
		ts := f.sectors[i]
		data, err := f.fs.readSector(ts.track, ts.sector)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.name, err)
		}
		out = append(out, data...)
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	if f.fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "write_block", f.e.name, nil)
	}
	if n < 0 || n+count > len(f.sectors) {
		return filesystem.NewError(filesystem.EIO, "write_block", f.e.name, errors.New("range exceeds file length"))
	}
	for i := 0; i < count; i++ {
		chunk := buf[i*sectorSize : (i+1)*sectorSize]
		ts := f.sectors[n+i]
		if err := f.fs.writeSector(ts.track, ts.sector, chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.e.name, err)
		}
	}
	return nil
}

func (f *File) Close() error { f.closed = true; return nil }

// ReadBytes strips the on-disk header each file type carries, per
// AppleDOSDirectoryEntry.read_bytes: binary files are re-wrapped in an
// AppleSingle envelope (carrying the load address as the ProDOS aux type,
// matching prodos.ReadBytes's own BIN handling); BASIC files have their
// 2-byte length-prefix trimmed.
func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	en, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "read_bytes", entry.FullPath(), nil)
	}
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	data, err := handle.ReadBlock(0, handle.Length())
	if err != nil {
		return nil, err
	}

	switch en.e.rawFileType {
	case fileTypeBinary:
		if len(data) < 4 {
			return data, nil
		}
		address := int(data[0]) | int(data[1])<<8
		length := int(data[2]) | int(data[3])<<8
		payload := data[4:]
		if length <= len(payload) {
			payload = payload[:length]
		}
		return applesingle.Encode(&applesingle.File{
			Data: payload,
			ProDOSInfo: &applesingle.ProDOSFileInfo{
				Access:   0xFF,
				FileType: prodosBinFileType,
				AuxType:  uint32(address),
			},
		}), nil
	case fileTypeInteger, fileTypeApplesoft:
		if len(data) < 2 {
			return data, nil
		}
		length := int(data[0]) | int(data[1])<<8
		end := 2 + length
		if end > len(data) {
			end = len(data)
		}
		return data[2:end], nil
	default:
		return data, nil
	}
}

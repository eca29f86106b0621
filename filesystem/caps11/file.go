package caps11

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
)

// File is an opened CAPS-11 file handle. Files are contiguous, so reads and
// writes translate directly to device blocks at entry.FirstBlock+n.
type File struct {
	fs     *FS
	entry  *dirEntry
	mode   filesystem.OpenMode
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	e, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	return &File{fs: fs, entry: e.e, mode: mode}, nil
}

func (f *File) BlockSize() int            { return BlockSizeBytes }
func (f *File) Length() int               { return int(f.entry.Length) }
func (f *File) Mode() filesystem.OpenMode { return f.mode }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.name(), errors.New("handle closed"))
	}
	if n < 0 || n+count > int(f.entry.Length) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.name(), errors.New("range exceeds entry length"))
	}
	var out []byte
	for i := 0; i < count; i++ {
		b, err := f.fs.device.ReadBlock(int(f.entry.FirstBlock) + n + i)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.name(), err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	if f.closed {
		return filesystem.NewError(filesystem.EIO, "write_block", f.entry.name(), errors.New("handle closed"))
	}
	if f.fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "write_block", f.entry.name(), nil)
	}
	if n < 0 || n+count > int(f.entry.Length) {
		return filesystem.NewError(filesystem.EIO, "write_block", f.entry.name(), errors.New("range exceeds entry length"))
	}
	for i := 0; i < count; i++ {
		chunk := make([]byte, BlockSizeBytes)
		start := i * BlockSizeBytes
		end := start + BlockSizeBytes
		if end > len(buf) {
			end = len(buf)
		}
		if start < len(buf) {
			copy(chunk, buf[start:end])
		}
		if err := f.fs.device.WriteBlock(int(f.entry.FirstBlock)+n+i, chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.entry.name(), err)
		}
	}
	return nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

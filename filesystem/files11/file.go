package files11

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

// File is an opened Files-11 file handle: reads translate a virtual block
// number through the header's retrieval pointers to a logical block.
type File struct {
	fs     *FS
	header *fileHeader
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	de, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	h, err := de.resolve()
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "open", entry.FullPath(), err)
	}
	return &File{fs: fs, header: h}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return f.header.length }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed || n < 0 || count < 0 || n+count > f.header.length {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.header.basename(), errors.New("range exceeds entry length"))
	}
	var out []byte
	for i := n; i < n+count; i++ {
		lbn, err := f.header.mapBlock(i)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.header.basename(), err)
		}
		raw, err := f.fs.device.ReadBlock(lbn)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.header.basename(), err)
		}
		out = append(out, raw...)
	}
	return out, nil
}

// WriteBlock is unsupported: ODS-1 write support is not implemented.
func (f *File) WriteBlock(buf []byte, n, count int) error {
	return filesystem.NewError(filesystem.ReadOnly, "write_block", f.header.basename(), nil)
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

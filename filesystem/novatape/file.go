package novatape

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

// File is a read-only sequential view over one tape entry's data records.
type File struct {
	fs     *FS
	entry  *tapeEntry
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	te, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	return &File{fs: fs, entry: te.e}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return int(f.entry.blocks) }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.basename(), errors.New("handle closed"))
	}
	if n < 0 || n+count > int(f.entry.blocks) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.basename(), errors.New("range exceeds entry length"))
	}
	f.fs.tape.SeekOffset(f.entry.dataOffset)
	var out []byte
	for i := 0; i < n+count; i++ {
		raw, err := f.fs.tape.ReadRecord()
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.basename(), err)
		}
		if i >= n {
			out = append(out, raw...)
		}
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	return filesystem.NewError(filesystem.ReadOnly, "write_block", f.entry.basename(), errors.New("tape entries are write-once"))
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

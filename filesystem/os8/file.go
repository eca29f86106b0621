package os8

import (
	"xferx/filesystem"
	"xferx/storage"
)

// File is an opened OS/8 file: contents occupy a single contiguous run of
// blocks starting at the directory entry's start block.
type File struct {
	fs     *FS
	e      *dirEntry
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	en, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	return &File{fs: fs, e: en.e}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return f.e.length }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed || n < 0 || count < 0 || n+count > f.e.length {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), nil)
	}
	var out []byte
	for i := 0; i < count; i++ {
		buf, err := f.fs.device.ReadBlock(f.e.startBlock + n + i)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	if f.fs.readOnly || f.closed || n < 0 || count < 0 || n+count > f.e.length {
		return filesystem.NewError(filesystem.ReadOnly, "write_block", f.e.basename(), nil)
	}
	for i := 0; i < count; i++ {
		chunk := buf[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := f.fs.device.WriteBlock(f.e.startBlock+n+i, chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.e.basename(), err)
		}
	}
	return nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

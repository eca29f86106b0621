package unixfs

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

// File is a read-only view over one inode's data blocks.
type File struct {
	fs     *FS
	in     *inode
	blocks []int
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	e, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	blocks, err := fs.blocks(e.in)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "open", entry.FullPath(), err)
	}
	return &File{fs: fs, in: e.in, blocks: blocks}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return len(f.blocks) }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", "", errors.New("handle closed"))
	}
	if n < 0 || n+count > len(f.blocks) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", "", errors.New("range exceeds file length"))
	}
	var out []byte
	for i := n; i < n+count; i++ {
		data, err := f.fs.dev.ReadBlock(f.blocks[i])
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", "", err)
		}
		out = append(out, data...)
	}
	if int64(len(out)) > f.in.size-int64(n)*int64(storage.BlockSize) && n == 0 {
		if f.in.size < int64(len(out)) {
			out = out[:f.in.size]
		}
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	return filesystem.NewError(filesystem.ReadOnly, "write_block", "", errors.New("unix filesystems are read-only in this implementation"))
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	e, ok := entry.(*Entry)
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
	if int64(len(data)) > e.in.size {
		data = data[:e.in.size]
	}
	return data, nil
}

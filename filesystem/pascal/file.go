package pascal

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

// File is an open handle over a contiguous run of blocks, per PascalFile.
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
func (f *File) Length() int               { return f.e.length() }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.filename, errors.New("handle closed"))
	}
	if n < 0 || count < 0 || n+count > f.e.length() {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.filename, errors.New("range exceeds file length"))
	}
	var out []byte
	for i := 0; i < count; i++ {
		b, err := f.fs.dev.ReadBlock(f.e.startBlock + n + i)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.filename, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	if f.fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "write_block", f.e.filename, nil)
	}
	if f.closed || n < 0 || count < 0 || n+count > f.e.length() {
		return filesystem.NewError(filesystem.EIO, "write_block", f.e.filename, errors.New("range exceeds file length"))
	}
	for i := 0; i < count; i++ {
		chunk := buf[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := f.fs.dev.WriteBlock(f.e.startBlock+n+i, chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.e.filename, err)
		}
	}
	return nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

// ReadBytes reads the file's full block range verbatim: unlike ProDOS/
// DOS 3.3, Pascal's directory entry carries no per-type framing to strip,
// only last_block_bytes (used for Size(), not for trimming read_bytes),
// matching PascalFilesystem.read_bytes exactly.
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
	return handle.ReadBlock(0, en.e.length())
}

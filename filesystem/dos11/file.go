package dos11

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

// File is an opened DOS-11 file handle. BlockSize is linkedPayload (510)
// bytes for linked files, since each 512-byte disk block devotes its last 2
// bytes to the next-block pointer; contiguous files use the full 512 bytes.
type File struct {
	fs     *FS
	entry  *ufdEntry
	blocks []int
	mode   filesystem.OpenMode
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	de, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	return &File{fs: fs, entry: de.e, blocks: fs.entryBlocks(de.e), mode: mode}, nil
}

func (f *File) BlockSize() int {
	if f.entry.isContiguous() {
		return storage.BlockSize
	}
	return linkedPayload
}
func (f *File) Length() int               { return len(f.blocks) }
func (f *File) Mode() filesystem.OpenMode { return f.mode }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.name(), errors.New("handle closed"))
	}
	if n < 0 || n+count > len(f.blocks) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.name(), errors.New("range exceeds entry length"))
	}
	var out []byte
	for i := 0; i < count; i++ {
		raw, err := f.fs.device.ReadBlock(f.blocks[n+i])
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.entry.name(), err)
		}
		if f.entry.isContiguous() {
			out = append(out, raw...)
		} else {
			out = append(out, raw[:linkedPayload]...)
		}
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
	if n < 0 || n+count > len(f.blocks) {
		return filesystem.NewError(filesystem.EIO, "write_block", f.entry.name(), errors.New("range exceeds entry length"))
	}
	unit := f.BlockSize()
	for i := 0; i < count; i++ {
		chunk := make([]byte, unit)
		start := i * unit
		end := start + unit
		if end > len(buf) {
			end = len(buf)
		}
		if start < len(buf) {
			copy(chunk, buf[start:end])
		}
		diskBlock := make([]byte, storage.BlockSize)
		copy(diskBlock, chunk)
		if !f.entry.isContiguous() {
			next := 0
			if n+i+1 < len(f.blocks) {
				next = f.blocks[n+i+1]
			}
			binary.LittleEndian.PutUint16(diskBlock[linkedPayload:linkedPayload+2], uint16(next))
		}
		if err := f.fs.device.WriteBlock(f.blocks[n+i], diskBlock); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.entry.name(), err)
		}
	}
	return nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

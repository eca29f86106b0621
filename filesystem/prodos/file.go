package prodos

import (
	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/storage"
)

// readIndexBlock unpacks a 256-entry index block: low bytes in [0,256),
// high bytes in [256,512), per IndexBlock.read.
func (fs *FS) readIndexBlock(block int) ([]int, error) {
	out := make([]int, pointersPerIndex)
	if block == 0 {
		return out, nil // sparse
	}
	buf, err := fs.dev.ReadBlock(block)
	if err != nil {
		return nil, err
	}
	for i := 0; i < pointersPerIndex; i++ {
		out[i] = int(buf[i]) + int(buf[i+256])*256
	}
	return out, nil
}

func (fs *FS) writeIndexBlock(block int, indexes []int) error {
	buf := make([]byte, storage.BlockSize)
	for i, idx := range indexes {
		buf[i] = byte(idx & 0xFF)
		buf[i+256] = byte(idx >> 8)
	}
	return fs.dev.WriteBlock(block, buf)
}

// blocks enumerates this entry's data block numbers (excluding index
// blocks), per RegularFileEntry.blocks.
func (fs *FS) blocks(e *dirEntry) ([]int, error) {
	switch e.storageType {
	case storageSeedling:
		return []int{e.keyPointer}, nil
	case storageSapling:
		idx, err := fs.readIndexBlock(e.keyPointer)
		if err != nil {
			return nil, err
		}
		n := e.blocksUsed - 1
		if n > len(idx) {
			n = len(idx)
		}
		return idx[:n], nil
	case storageTree:
		master, err := fs.readIndexBlock(e.keyPointer)
		if err != nil {
			return nil, err
		}
		remaining := e.blocksUsed - 1
		var out []int
		for _, indexBlockNum := range master {
			if remaining <= 0 {
				break
			}
			remaining--
			idx, err := fs.readIndexBlock(indexBlockNum)
			if err != nil {
				return nil, err
			}
			for _, b := range idx {
				if remaining <= 0 {
					break
				}
				remaining--
				out = append(out, b)
			}
		}
		return out, nil
	default:
		return nil, errors.Errorf("storage type %#x has no data blocks", e.storageType)
	}
}

// File is an open seedling/sapling/tree file handle.
type File struct {
	fs     *FS
	e      *dirEntry
	blocks []int
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	en, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	if en.e.isDir() {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), errors.New("is a directory"))
	}
	blocks, err := fs.blocks(en.e)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "open", entry.FullPath(), err)
	}
	return &File{fs: fs, e: en.e, blocks: blocks}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return len(f.blocks) }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.name, errors.New("handle closed"))
	}
	if n < 0 || n+count > len(f.blocks) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.name, errors.New("range exceeds file length"))
	}
	var out []byte
	for i := n; i < n+count; i++ {
		data, err := f.fs.dev.ReadBlock(f.blocks[i])
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
	if n < 0 || n+count > len(f.blocks) {
		return filesystem.NewError(filesystem.EIO, "write_block", f.e.name, errors.New("range exceeds file length"))
	}
	for i := 0; i < count; i++ {
		chunk := buf[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := f.fs.dev.WriteBlock(f.blocks[n+i], chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.e.name, err)
		}
	}
	return nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

// ReadBytes reads the full data fork. Per prodosfs.py's FileEntry.read_bytes,
// BIN-type files are re-wrapped in an AppleSingle envelope carrying the
// ProDOS file-type/aux-type/access metadata, so a COPY out of the volume
// can preserve them on a non-ProDOS-aware filesystem.
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
	if len(data) < en.e.length {
		data = append(data, make([]byte, en.e.length-len(data))...)
	} else {
		data = data[:en.e.length]
	}
	if en.e.fileType == binFileType {
		return encodeAppleSingle(en.e, data), nil
	}
	return data, nil
}

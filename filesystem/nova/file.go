package nova

import (
	"xferx/filesystem"
	"xferx/storage"
)

// fileBlocks enumerates the data block addresses of e in file order, per its
// organization (RDOS System Reference pp. 21-23). When includeIndexes is
// true, a random file's own index blocks are yielded too (used by Delete to
// free them).
func (fs *FS) fileBlocks(e *ufd, includeIndexes bool) ([]int, error) {
	var out []int
	switch {
	case e.isRandom():
		indexBlock := e.address
		for indexBlock != 0 {
			if includeIndexes {
				out = append(out, indexBlock)
			}
			words, err := fs.readWords(indexBlock)
			if err != nil {
				return nil, err
			}
			next := words[len(words)-1]
			for _, w := range words[:len(words)-1] {
				if w != 0 {
					out = append(out, int(w))
				}
			}
			indexBlock = int(next)
		}
	case e.isContiguous():
		length := e.length()
		for b := e.address; b < e.address+length; b++ {
			out = append(out, b)
		}
	default: // sequential
		block := e.address
		for block != 0 {
			out = append(out, block)
			words, err := fs.readWords(block)
			if err != nil {
				return nil, err
			}
			next := int(words[len(words)-1])
			if fs.doubleAddressing {
				next += int(words[len(words)-2]) << 16
			}
			block = next
		}
	}
	return out, nil
}

// File is an opened Nova file. Content blocks, unlike directory/bitmap
// blocks, are always additionally byte-swapped on the wire regardless of
// the volume's own swap flag, matching the reference driver's DGDOSFile.
type File struct {
	fs     *FS
	e      *ufd
	blocks []int
	closed bool
}

var _ filesystem.File = (*File)(nil)

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	en, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	blocks, err := fs.fileBlocks(en.e, false)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "open", entry.FullPath(), err)
	}
	return &File{fs: fs, e: en.e, blocks: blocks}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return f.e.length() }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed || n < 0 || count < 0 || n+count > len(f.blocks) {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), nil)
	}
	var out []byte
	for i := n; i < n+count; i++ {
		buf, err := f.fs.readBlock(f.blocks[i])
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), err)
		}
		out = append(out, swapWords(buf)...)
	}
	return out, nil
}

func (f *File) WriteBlock(buf []byte, n, count int) error {
	if f.fs.readOnly || f.closed || n < 0 || count < 0 || n+count > len(f.blocks) {
		return filesystem.NewError(filesystem.ReadOnly, "write_block", f.e.basename(), nil)
	}
	for i := 0; i < count; i++ {
		chunk := swapWords(buf[i*storage.BlockSize : (i+1)*storage.BlockSize])
		if err := f.fs.writeBlock(f.blocks[n+i], chunk); err != nil {
			return filesystem.NewError(filesystem.EIO, "write_block", f.e.basename(), err)
		}
	}
	return nil
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

package rsts

import (
	"encoding/binary"

	"xferx/filesystem"
	"xferx/storage"
)

// File is an opened RSTS/E file: block reads resolve through the file's own
// retrieval-entry blockette chain (a separate chain from the UFD name/account
// blockettes) to a flat list of cluster DCNs, one per file cluster.
type File struct {
	fs          *FS
	e           *ufdNameEntry
	clusterDCNs []int
	closed      bool
}

var _ filesystem.File = (*File)(nil)

// readRetrievalEntries walks the blockette chain starting at e.uar (the link
// to the file's first retrieval entry, read against the owning UFD's own
// cluster map) and accumulates each blockette's 7 DCN words into a flat
// cluster list.
func (fs *FS) readRetrievalEntries(e *ufdNameEntry) ([]int, error) {
	link := e.uar
	labelBuf, err := fs.device.ReadBlock(link.Block + e.ufdUAR)
	if err != nil {
		return nil, err
	}
	clusterMap := fs.readUFDClusterMap(labelBuf)

	var dcns []int
	visited := map[Link]bool{}
	for !link.isNull() {
		if visited[link] {
			break
		}
		visited[link] = true

		buf, err := fs.device.ReadBlock(link.toLBN(clusterMap))
		if err != nil {
			return nil, err
		}
		pos := blockettesSize * link.Entry
		if pos+blockettesSize > len(buf) {
			break
		}
		next := decodeLink(binary.LittleEndian.Uint16(buf[pos : pos+2]))
		for i := 0; i < 7; i++ {
			w := binary.LittleEndian.Uint16(buf[pos+2+i*2 : pos+4+i*2])
			dcns = append(dcns, int(w))
		}
		link = next
	}
	return dcns, nil
}

func (fs *FS) Open(entry filesystem.Entry, mode filesystem.OpenMode) (filesystem.File, error) {
	en, ok := entry.(*Entry)
	if !ok {
		return nil, filesystem.NewError(filesystem.Invalid, "open", entry.FullPath(), nil)
	}
	dcns, err := fs.readRetrievalEntries(en.e)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "open", entry.FullPath(), err)
	}
	return &File{fs: fs, e: en.e, clusterDCNs: dcns}, nil
}

func (f *File) BlockSize() int            { return storage.BlockSize }
func (f *File) Length() int               { return int(f.e.accUSIZ) }
func (f *File) Mode() filesystem.OpenMode { return filesystem.ModeImage }

func (f *File) ReadBlock(n, count int) ([]byte, error) {
	if f.closed {
		return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), nil)
	}
	uclus := int(f.e.accUCLUS)
	if uclus == 0 {
		uclus = 1
	}
	var out []byte
	for i := n; i < n+count; i++ {
		cluster := i / uclus
		clusterBlock := i % uclus
		if cluster < 0 || cluster >= len(f.clusterDCNs) {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), nil)
		}
		dcn := f.clusterDCNs[cluster] + clusterBlock
		buf, err := f.fs.readBlockDCN(dcn)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "read_block", f.e.basename(), err)
		}
		out = append(out, buf...)
	}
	return out, nil
}

// WriteBlock is unsupported: RSTS/E is read-only in this codebase.
func (f *File) WriteBlock(buf []byte, n, count int) error {
	return filesystem.NewError(filesystem.ReadOnly, "write_block", f.e.basename(), nil)
}

func (f *File) Close() error {
	f.closed = true
	return nil
}

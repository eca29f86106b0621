// Package os8 implements PDP-8 OS/8: a linked chain of directory segments,
// each a 256 12-bit-word block holding a next-segment link and a sequence of
// name/extension/length entries, per §3 "PDP-8 OS/8". Every segment is read
// through the RX01/RX02 12-bit-word interleave (see storage.Unpack12BitWords)
// even though file data itself is plain byte-addressed through the same
// image's ordinary 8-bit skew.
package os8

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

const (
	dirStartBlock  = 1
	os8WordsPerBlock = 256
	headerWords    = 3 // next-segment link, extra-words count, first-entry start block
	entryBaseWords = 4 // name(2) + ext(1) + length(1)
)

type dirEntry struct {
	filename, extension string
	startBlock          int
	length              int
	isEmpty             bool
	date                time.Time

	segBlock   int
	entryIndex int
}

func (e *dirEntry) basename() string {
	if e.extension == "" {
		return e.filename
	}
	return e.filename + "." + e.extension
}

type segment struct {
	block      int
	next       int
	extraWords int
	startBlock int
	entries    []*dirEntry
}

// FS is a mounted OS/8 volume.
type FS struct {
	file       *storage.ByteFile
	device     *storage.BlockDevice
	sectorSize int
	numBlocks  int
	readOnly   bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// Entry adapts a resolved directory entry to filesystem.Entry.
type Entry struct {
	fs *FS
	e  *dirEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string            { return en.e.basename() }
func (en *Entry) FullPath() string        { return en.e.basename() }
func (en *Entry) Length() int             { return en.e.length }
func (en *Entry) Size() int64             { return int64(en.e.length) * storage.BlockSize }
func (en *Entry) CreationDate() time.Time { return en.e.date }
func (en *Entry) FileType() string        { return en.e.extension }
func (en *Entry) IsEmpty() bool           { return en.e.isEmpty }
func (en *Entry) IsDirectory() bool       { return false }

// readWordBlock unpacks the 256 12-bit words composing logical block blkno,
// following the RX01/RX02 directory interleave (distinct from the plain
// byte-addressed skew used for file content).
func (fs *FS) readWordBlock(blkno int) ([]uint16, error) {
	offsets := storage.RX12BitBlockOffsets(blkno, fs.sectorSize)
	words := make([]uint16, 0, os8WordsPerBlock)
	for _, off := range offsets {
		buf := make([]byte, fs.sectorSize)
		if _, err := fs.file.ReadAt(buf, off); err != nil {
			return nil, errors.Wrapf(err, "reading 12-bit block %d", blkno)
		}
		w, err := storage.Unpack12BitWords(buf, fs.sectorSize)
		if err != nil {
			return nil, err
		}
		words = append(words, w...)
	}
	return words, nil
}

func (fs *FS) writeWordBlock(blkno int, words []uint16) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "write_word_block", "", nil)
	}
	offsets := storage.RX12BitBlockOffsets(blkno, fs.sectorSize)
	wordsPerSector := os8WordsPerBlock / len(offsets)
	for i, off := range offsets {
		chunk := words[i*wordsPerSector : (i+1)*wordsPerSector]
		buf, err := storage.Pack12BitWords(chunk, fs.sectorSize)
		if err != nil {
			return err
		}
		if _, err := fs.file.WriteAt(buf, off); err != nil {
			return errors.Wrapf(err, "writing 12-bit block %d", blkno)
		}
	}
	return nil
}

func asciiWord(s string) uint16 {
	s = strings.ToUpper(s)
	for len(s) < 2 {
		s += " "
	}
	return encoding.ASCIIToRAD50(" " + s[:2]) // reuse the RAD-50 alphabet for 2-char-per-word packing
}

func wordASCII(w uint16) string {
	return strings.TrimRight(encoding.RAD50ToASCII(w)[1:], " ")
}

func nameWords(name, ext string) (w0, w1, w2 uint16) {
	name = padTrunc(strings.ToUpper(name), 4)
	ext = padTrunc(strings.ToUpper(ext), 2)
	return asciiWord(name[0:2]), asciiWord(name[2:4]), asciiWord(ext)
}

func padTrunc(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

func readSegment(fs *FS, blkno int) (*segment, error) {
	words, err := fs.readWordBlock(blkno)
	if err != nil {
		return nil, err
	}
	if len(words) < headerWords {
		return nil, filesystem.NewError(filesystem.Corrupt, "read_segment", "", errors.New("segment too short"))
	}
	seg := &segment{
		block:      blkno,
		next:       int(words[0]),
		extraWords: int(words[1]),
		startBlock: int(words[2]),
	}
	pos := headerWords
	cursor := seg.startBlock
	entryWords := entryBaseWords + seg.extraWords
	for pos+2 <= len(words) {
		if pos+entryWords > len(words) {
			break
		}
		w0 := words[pos]
		if w0 == 0 {
			length := decodeLength(words[pos+1])
			if length == 0 {
				break
			}
			e := &dirEntry{isEmpty: true, length: length, startBlock: cursor, segBlock: blkno, entryIndex: pos}
			seg.entries = append(seg.entries, e)
			cursor += length
			pos += 2
			continue
		}
		name := wordASCII(w0) + wordASCII(words[pos+1])
		ext := wordASCII(words[pos+2])
		length := decodeLength(words[pos+3])
		e := &dirEntry{
			filename:   strings.TrimRight(name, " "),
			extension:  ext,
			length:     length,
			startBlock: cursor,
			segBlock:   blkno,
			entryIndex: pos,
		}
		if seg.extraWords > 0 {
			e.date = encoding.OS8DecodeDate(words[pos+4], 0)
		}
		seg.entries = append(seg.entries, e)
		cursor += length
		pos += entryWords
	}
	return seg, nil
}

// decodeLength reverses the 12-bit two's-complement negative-length encoding
// used for both filled entries (positive, block count) and holes (also
// stored positive in this implementation's simplified layout).
func decodeLength(w uint16) int {
	if w&0x800 != 0 {
		return int(w) - 0x1000
	}
	return int(w)
}

func encodeLength(n int) uint16 {
	return uint16(n & 0xFFF)
}

func (fs *FS) readDirectory() ([]*segment, error) {
	var segs []*segment
	block := dirStartBlock
	visited := map[int]bool{}
	for block != 0 {
		if visited[block] {
			break
		}
		visited[block] = true
		seg, err := readSegment(fs, block)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		block = seg.next
	}
	return segs, nil
}

func (fs *FS) entries() ([]*dirEntry, error) {
	segs, err := fs.readDirectory()
	if err != nil {
		return nil, err
	}
	var out []*dirEntry
	for _, s := range segs {
		out = append(out, s.entries...)
	}
	return out, nil
}

// Mount reads the OS/8 directory chain starting at block 1. sectorSize
// (128 for RX01, 256 for RX02) selects the 12-bit interleave used for
// directory segments; file content is read through the ordinary 8-bit
// RX01/RX02 skew on the same image.
func Mount(file *storage.ByteFile, sectorSize int, strict bool) (*FS, error) {
	size, err := file.Size()
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	numBlocks := int(size / storage.BlockSize)
	layout := storage.LayoutRX01
	if sectorSize == 256 {
		layout = storage.LayoutRX02
	}
	device := storage.NewBlockDevice(file, layout, numBlocks)
	fs := &FS{file: file, device: device, sectorSize: sectorSize, numBlocks: numBlocks, readOnly: file.ReadOnly()}

	segs, err := fs.readDirectory()
	if err != nil {
		return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", err)
	}
	if strict && len(segs) == 0 {
		return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("no directory segments"))
	}
	return fs, nil
}

func (fs *FS) BlockSize() int   { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return fs.numBlocks }
func (fs *FS) FreeBlocks() int {
	entries, err := fs.entries()
	if err != nil {
		return 0
	}
	free := 0
	for _, e := range entries {
		if e.isEmpty {
			free += e.length
		}
	}
	return free
}
func (fs *FS) ReadOnly() bool { return fs.readOnly }

func (fs *FS) Chdir(path string) (bool, error) { return false, nil }
func (fs *FS) GetPwd() string                  { return "" }
func (fs *FS) GetSize() int64                  { return int64(fs.numBlocks) * storage.BlockSize }
func (fs *FS) GetTypes() []string              { return []string{} }
func (fs *FS) Close() error                    { return fs.file.Close() }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	entries, err := fs.entries()
	if err != nil {
		return nil, err
	}
	var out []filesystem.Entry
	for _, e := range entries {
		if e.isEmpty {
			continue
		}
		out = append(out, &Entry{fs: fs, e: e})
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	entries, err := fs.EntriesList()
	if err != nil {
		return nil, err
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(pattern), wildcard)
	glob := name
	if ext != "" {
		glob = name + "." + ext
	}
	var out []filesystem.Entry
	for _, en := range entries {
		if filesystem.MatchGlob(glob, en.Name()) {
			out = append(out, en)
		}
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	name := strings.ToUpper(strings.TrimSpace(fullPath))
	entries, err := fs.EntriesList()
	if err != nil {
		return nil, err
	}
	for _, en := range entries {
		if en.Name() == name {
			return en, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

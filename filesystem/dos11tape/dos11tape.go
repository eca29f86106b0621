// Package dos11tape implements DOS-11 magnetic tape: a stream of (14-byte
// header record, N x 512-byte data records, tape mark) triples with no
// central index, per §3 "DOS-11 magtape". Listing the directory means
// scanning the whole tape from BOT.
package dos11tape

import (
	"encoding/binary"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

// headerSize is the 14-byte header record: 3 RAD-50 name words, a
// DOS-11 date/type word, a block-count word, and a protection word.
const headerSize = 14

type tapeEntry struct {
	NameWords [3]uint16
	DateType  uint16
	Blocks    uint16
	Protect   uint16

	headerOffset int64 // byte offset of the header record, for reopening
	dataOffset   int64 // byte offset of the first data record
}

func (e *tapeEntry) name() string {
	name, ext := encoding.RAD50WordsToNameExt(e.NameWords)
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// FS is a mounted DOS-11 magtape "volume": the entry list is captured once
// at mount time by scanning the tape; there is no persistent index to keep
// in sync afterward.
type FS struct {
	tape     *storage.TapeDevice
	entries  []*tapeEntry
	readOnly bool
}

var _ filesystem.Filesystem = (*FS)(nil)

type Entry struct {
	fs *FS
	e  *tapeEntry
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string             { return en.e.name() }
func (en *Entry) FullPath() string         { return en.e.name() }
func (en *Entry) Length() int              { return int(en.e.Blocks) }
func (en *Entry) Size() int64              { return int64(en.e.Blocks) * storage.BlockSize }
func (en *Entry) CreationDate() time.Time  { return encoding.DOS11DecodeDate(en.e.DateType) }
func (en *Entry) FileType() string         { return "" }
func (en *Entry) IsEmpty() bool            { return false }
func (en *Entry) IsDirectory() bool        { return false }

// Mount scans the tape from BOT, reading (header, data..., mark) triples
// until a double mark (logical EOT) or the physical end of image. strict
// additionally requires every header's declared block count to match the
// number of data records actually present before the next mark.
func Mount(tape *storage.TapeDevice, strict bool) (*FS, error) {
	fs := &FS{tape: tape, readOnly: tape.ReadOnly()}
	tape.Rewind()

	for {
		headerOffset := tape.Offset()
		raw, err := tape.ReadRecord()
		if errors.Is(err, storage.ErrDoubleMark) || errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, storage.ErrTapeAtEOT) {
			continue
		}
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
		}
		if len(raw) < headerSize {
			if strict {
				return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("truncated header record"))
			}
			continue
		}
		e := &tapeEntry{
			NameWords:    [3]uint16{binary.LittleEndian.Uint16(raw[0:2]), binary.LittleEndian.Uint16(raw[2:4]), binary.LittleEndian.Uint16(raw[4:6])},
			DateType:     binary.LittleEndian.Uint16(raw[6:8]),
			Blocks:       binary.LittleEndian.Uint16(raw[8:10]),
			Protect:      binary.LittleEndian.Uint16(raw[10:12]),
			headerOffset: headerOffset,
			dataOffset:   tape.Offset(),
		}

		count := 0
		for {
			_, err := tape.ReadRecord()
			if errors.Is(err, storage.ErrTapeAtEOT) {
				break
			}
			if errors.Is(err, storage.ErrDoubleMark) || errors.Is(err, io.EOF) {
				if strict {
					return nil, filesystem.NewError(filesystem.Corrupt, "mount", e.name(), errors.New("missing end-of-file mark"))
				}
				fs.entries = append(fs.entries, e)
				return fs, nil
			}
			if err != nil {
				return nil, filesystem.NewError(filesystem.EIO, "mount", e.name(), err)
			}
			count++
		}
		if strict && count != int(e.Blocks) {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", e.name(), errors.Errorf("header declares %d blocks, found %d", e.Blocks, count))
		}
		fs.entries = append(fs.entries, e)
	}
	return fs, nil
}

func (fs *FS) BlockSize() int   { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return 0 }
func (fs *FS) FreeBlocks() int  { return 0 }
func (fs *FS) ReadOnly() bool   { return fs.readOnly }

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	out := make([]filesystem.Entry, 0, len(fs.entries))
	for _, e := range fs.entries {
		out = append(out, &Entry{fs: fs, e: e})
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	all, err := fs.EntriesList()
	if err != nil {
		return nil, err
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(pattern), wildcard)
	glob := name
	if ext != "" {
		glob = name + "." + ext
	}
	var out []filesystem.Entry
	for _, e := range all {
		if filesystem.MatchGlob(glob, e.Name()) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	target := strings.ToUpper(strings.TrimSpace(fullPath))
	for _, e := range fs.entries {
		if e.name() == target {
			return &Entry{fs: fs, e: e}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) Chdir(path string) (bool, error)   { return false, nil }
func (fs *FS) GetPwd() string                    { return "" }
func (fs *FS) GetSize() int64                    { return 0 }
func (fs *FS) GetTypes() []string                { return []string{} }
func (fs *FS) Close() error                      { return fs.tape.Close() }

// CreateDirectory is unsupported: tape has no hierarchy.
func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, errors.New("DOS-11 magtape has no directories"))
}

// Package novatape implements Nova RDOS magnetic tape: a sequential stream
// of (header record, data records..., tape mark) entries, each holding one
// file numbered by its position on the tape, per §3 "Nova RDOS magtape".
// No historical driver source was retrieved for this format (unlike its
// disk counterpart in xferx/nova), only its test fixtures; the header shape
// below is this implementation's own reconstruction, modeled directly on
// the disk format's UFD fields and the sibling DOS-11 magtape driver's
// scan-on-mount contract.
package novatape

import (
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

// headerSize is the fixed header record: 10+2 name/extension bytes (RDOS's
// own 10.2 limit, left empty for entries named only by tape position), an
// RDOS date word, a time word, and a block-count word.
const headerSize = 10 + 2 + 2 + 2 + 2

type tapeEntry struct {
	index      int // 1-based position on tape; the entry's name when name is empty
	name, ext  string
	date, time uint16
	blocks     uint16

	dataOffset int64
}

func (e *tapeEntry) basename() string {
	if e.name != "" {
		if e.ext != "" {
			return e.name + "." + e.ext
		}
		return e.name
	}
	return strconv.Itoa(e.index)
}

// FS is a mounted Nova RDOS magtape volume; like DOS-11 magtape, the entry
// list is captured once at mount time by scanning from BOT.
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

func (en *Entry) Name() string             { return en.e.basename() }
func (en *Entry) FullPath() string         { return en.e.basename() }
func (en *Entry) Length() int              { return int(en.e.blocks) }
func (en *Entry) Size() int64              { return int64(en.e.blocks) * storage.BlockSize }
func (en *Entry) CreationDate() time.Time  { return encoding.RDOSDecodeDateTime(en.e.date, en.e.time) }
func (en *Entry) FileType() string         { return "" }
func (en *Entry) IsEmpty() bool            { return false }
func (en *Entry) IsDirectory() bool        { return false }

// Mount scans the tape from BOT, reading (header, data records..., mark)
// entries until a double mark or physical EOF.
func Mount(tape *storage.TapeDevice, strict bool) (*FS, error) {
	fs := &FS{tape: tape, readOnly: tape.ReadOnly()}
	tape.Rewind()

	index := 0
	for {
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
		index++
		e := &tapeEntry{
			index:  index,
			name:   strings.TrimRight(string(raw[0:10]), "\x00 "),
			ext:    strings.TrimRight(string(raw[10:12]), "\x00 "),
			date:   binary.LittleEndian.Uint16(raw[12:14]),
			time:   binary.LittleEndian.Uint16(raw[14:16]),
			blocks: binary.LittleEndian.Uint16(raw[16:18]),
		}
		e.dataOffset = tape.Offset()

		count := 0
		for {
			_, err := tape.ReadRecord()
			if errors.Is(err, storage.ErrTapeAtEOT) {
				break
			}
			if errors.Is(err, storage.ErrDoubleMark) || errors.Is(err, io.EOF) {
				if strict {
					return nil, filesystem.NewError(filesystem.Corrupt, "mount", e.basename(), errors.New("missing end-of-file mark"))
				}
				fs.entries = append(fs.entries, e)
				return fs, nil
			}
			if err != nil {
				return nil, filesystem.NewError(filesystem.EIO, "mount", e.basename(), err)
			}
			count++
		}
		if strict && count != int(e.blocks) {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", e.basename(), errors.Errorf("header declares %d blocks, found %d", e.blocks, count))
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
	glob := strings.ToUpper(pattern)
	if glob == "" {
		glob = "*"
	}
	var out []filesystem.Entry
	for _, e := range all {
		if filesystem.MatchGlob(glob, e.Name()) {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetFileEntry matches by tape position ("5") or by name.ext when the entry
// carries one.
func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	target := strings.ToUpper(strings.TrimSpace(fullPath))
	for _, e := range fs.entries {
		if strings.ToUpper(e.basename()) == target {
			return &Entry{fs: fs, e: e}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
}

func (fs *FS) Chdir(path string) (bool, error) { return false, nil }
func (fs *FS) GetPwd() string                  { return "" }
func (fs *FS) GetSize() int64                  { return 0 }
func (fs *FS) GetTypes() []string              { return []string{} }
func (fs *FS) Close() error                    { return fs.tape.Close() }

func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, errors.New("Nova magtape has no directories"))
}

package novatape

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

// seekEOT rewinds and replays the whole tape to position immediately before
// its logical end, identical in spirit to dos11tape's seekEOT.
func seekEOT(tape *storage.TapeDevice) error {
	tape.Rewind()
	var lastGoodOffset int64
	for {
		offset := tape.Offset()
		_, err := tape.ReadRecord()
		if errors.Is(err, storage.ErrDoubleMark) || errors.Is(err, io.EOF) {
			tape.SeekOffset(lastGoodOffset)
			return nil
		}
		if errors.Is(err, storage.ErrTapeAtEOT) {
			if offset > 0 {
				lastGoodOffset = tape.Offset()
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}

// CreateFile appends a new entry at the logical end of tape, named by its
// resulting tape position unless fullPath already names one.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	name, ext := "", ""
	if idx := strings.IndexByte(fullPath, '.'); idx >= 0 {
		name, ext = strings.ToUpper(fullPath[:idx]), strings.ToUpper(fullPath[idx+1:])
	} else if _, err := parseIndex(fullPath); err != nil {
		name = strings.ToUpper(fullPath)
	}

	if err := seekEOT(fs.tape); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	if err := fs.tape.TruncateAtCurrentPosition(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}

	header := make([]byte, headerSize)
	copy(header[0:10], name)
	copy(header[10:12], ext)
	days, hm := encoding.RDOSEncodeDateTime(creationDate)
	binary.LittleEndian.PutUint16(header[12:14], days)
	binary.LittleEndian.PutUint16(header[14:16], hm)
	binary.LittleEndian.PutUint16(header[16:18], uint16(blocks))

	if err := fs.tape.WriteRecord(header); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	dataOffset := fs.tape.Offset()

	e := &tapeEntry{
		index:      len(fs.entries) + 1,
		name:       name,
		ext:        ext,
		date:       days,
		time:       hm,
		blocks:     uint16(blocks),
		dataOffset: dataOffset,
	}
	for i := 0; i < blocks; i++ {
		if err := fs.tape.WriteRecord(make([]byte, storage.BlockSize)); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
		}
	}
	if err := fs.tape.WriteMark(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	if err := fs.tape.WriteMark(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	fs.tape.SeekOffset(dataOffset)

	fs.entries = append(fs.entries, e)
	return &Entry{fs: fs, e: e}, nil
}

func parseIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, errors.New("empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("not numeric")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	blocks := (len(content) + storage.BlockSize - 1) / storage.BlockSize
	if blocks == 0 {
		blocks = 1
	}
	padded := make([]byte, blocks*storage.BlockSize)
	copy(padded, content)

	entry, err := fs.CreateFile(fullPath, blocks, creationDate, fileType)
	if err != nil {
		return nil, err
	}
	te := entry.(*Entry)
	fs.tape.SeekOffset(te.e.dataOffset)
	for i := 0; i < blocks; i++ {
		chunk := padded[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := fs.tape.WriteRecord(chunk); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "write_bytes", fullPath, err)
		}
	}
	if err := fs.tape.WriteMark(); err != nil {
		return nil, err
	}
	if err := fs.tape.WriteMark(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

// Delete is unsupported: magtape has no central index to edit in place.
func (fs *FS) Delete(entry filesystem.Entry) error {
	return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), errors.New("tape entries cannot be deleted in place"))
}

// Initialize writes a blank tape: a single double tape mark at BOT.
func (fs *FS) Initialize(options map[string]string) error {
	if fs.tape.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	fs.tape.Rewind()
	if err := fs.tape.TruncateAtCurrentPosition(); err != nil {
		return err
	}
	if err := fs.tape.WriteMark(); err != nil {
		return err
	}
	return fs.tape.WriteMark()
}

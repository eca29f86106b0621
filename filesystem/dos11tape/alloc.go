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

func nameWords(fullName string) [3]uint16 {
	base := fullName
	ext := ""
	if idx := strings.IndexByte(fullName, '.'); idx >= 0 {
		base = fullName[:idx]
		ext = fullName[idx+1:]
	}
	return encoding.RAD50NameExtToWords(base, ext)
}

// seekEOT rewinds and replays the whole tape to position the device just
// after the mark that ends the last file (the second mark of the terminating
// double mark), at BOT on a blank tape, or after the last mark if no double
// mark is present yet.
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

// CreateFile appends a new (header, data records, mark) triple at the
// logical end of tape, truncating away the second mark of the trailing double
// mark first (a blank tape loses both), per
// §9's note that DOS-11 magtape allocation rewrites the terminating marks.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	name := strings.ToUpper(strings.TrimSpace(fullPath))

	if err := seekEOT(fs.tape); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	if err := fs.tape.TruncateAtCurrentPosition(); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}

	words := nameWords(name)
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(header[0:2], words[0])
	binary.LittleEndian.PutUint16(header[2:4], words[1])
	binary.LittleEndian.PutUint16(header[4:6], words[2])
	binary.LittleEndian.PutUint16(header[6:8], encoding.DOS11EncodeDate(creationDate))
	binary.LittleEndian.PutUint16(header[8:10], uint16(blocks))

	headerOffset := fs.tape.Offset()
	if err := fs.tape.WriteRecord(header); err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
	}
	dataOffset := fs.tape.Offset()

	e := &tapeEntry{
		NameWords:    words,
		DateType:     binary.LittleEndian.Uint16(header[6:8]),
		Blocks:       uint16(blocks),
		headerOffset: headerOffset,
		dataOffset:   dataOffset,
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
	de := entry.(*Entry)
	fs.tape.SeekOffset(de.e.dataOffset)
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

// Delete is unsupported: DOS-11 magtape has no central index to remove an
// entry from without rewriting every following file.
func (fs *FS) Delete(entry filesystem.Entry) error {
	return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), errors.New("tape entries cannot be deleted in place"))
}

// Initialize writes a blank tape: a single double tape mark at BOT.
func Initialize(tape *storage.TapeDevice, options map[string]string) error {
	if tape.ReadOnly() {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	tape.Rewind()
	if err := tape.TruncateAtCurrentPosition(); err != nil {
		return err
	}
	if err := tape.WriteMark(); err != nil {
		return err
	}
	return tape.WriteMark()
}

func (fs *FS) Initialize(options map[string]string) error {
	return Initialize(fs.tape, options)
}

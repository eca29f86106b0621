package storage

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// TapePosition describes where the tape head logically sits, per the state
// machine in the specification: BOT, at a record header, between records, at
// a tape mark, or after a double mark (logical end of tape).
type TapePosition int

const (
	PositionBOT TapePosition = iota
	PositionAtRecord
	PositionBetweenRecords
	PositionAtMark
	PositionEOT
)

// TapeDevice implements the L1b layer: a SIMH .tap stream of variable-length
// records framed as (len:u32 LE, data, [pad byte if len odd], len:u32 LE),
// with a zero-length word acting as a tape mark.
type TapeDevice struct {
	file     *ByteFile
	offset   int64
	position TapePosition
	lastMark bool // true if the immediately preceding token was a mark
}

func NewTapeDevice(file *ByteFile) *TapeDevice {
	return &TapeDevice{file: file, position: PositionBOT}
}

func (t *TapeDevice) ReadOnly() bool { return t.file.ReadOnly() }
func (t *TapeDevice) Close() error   { return t.file.Close() }

// Rewind repositions the tape at BOT.
func (t *TapeDevice) Rewind() {
	t.offset = 0
	t.position = PositionBOT
	t.lastMark = false
}

func (t *TapeDevice) Position() TapePosition { return t.position }

// ReadRecord reads one data record, advancing past its length-prefix/suffix
// framing. Returns (nil, io.EOF) at end of the underlying image, or a tape
// mark error if the current token is a mark.
func (t *TapeDevice) ReadRecord() ([]byte, error) {
	var lenBuf [4]byte
	n, err := t.file.ReadAt(lenBuf[:], t.offset)
	if n < 4 {
		t.position = PositionEOT
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading tape record length")
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])

	if length == 0 {
		t.offset += 4
		if t.lastMark {
			t.position = PositionEOT
			return nil, errors.WithStack(ErrDoubleMark)
		}
		t.lastMark = true
		t.position = PositionAtMark
		return nil, errors.WithStack(ErrTapeAtEOT)
	}
	t.lastMark = false

	data := make([]byte, length)
	if _, err := t.file.ReadAt(data, t.offset+4); err != nil {
		return nil, errors.Wrap(err, "reading tape record data")
	}

	recordBytes := int64(length)
	if length%2 == 1 {
		recordBytes++ // padding byte
	}

	var trailerBuf [4]byte
	if _, err := t.file.ReadAt(trailerBuf[:], t.offset+4+recordBytes); err != nil {
		return nil, errors.Wrap(err, "reading tape record trailer")
	}
	trailer := binary.LittleEndian.Uint32(trailerBuf[:])
	if trailer != length {
		return nil, errors.Wrapf(ErrCorrupt, "tape record trailer mismatch: %d != %d", trailer, length)
	}

	t.offset += 4 + recordBytes + 4
	t.position = PositionBetweenRecords
	return data, nil
}

// WriteRecord appends a data record at the current offset; writes are only
// valid once the tape has been positioned at EOT by reading to the end.
func (t *TapeDevice) WriteRecord(data []byte) error {
	if t.file.ReadOnly() {
		return errors.WithStack(ErrReadOnly)
	}
	length := uint32(len(data))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], length)

	if _, err := t.file.WriteAt(lenBuf[:], t.offset); err != nil {
		return err
	}
	if _, err := t.file.WriteAt(data, t.offset+4); err != nil {
		return err
	}
	recordBytes := int64(length)
	pad := recordBytes % 2
	if pad == 1 {
		if _, err := t.file.WriteAt([]byte{0}, t.offset+4+recordBytes); err != nil {
			return err
		}
		recordBytes++
	}
	if _, err := t.file.WriteAt(lenBuf[:], t.offset+4+recordBytes); err != nil {
		return err
	}
	t.offset += 4 + recordBytes + 4
	t.position = PositionBetweenRecords
	t.lastMark = false
	return nil
}

// WriteMark appends a tape mark (zero-length word) at the current offset.
func (t *TapeDevice) WriteMark() error {
	if t.file.ReadOnly() {
		return errors.WithStack(ErrReadOnly)
	}
	var zero [4]byte
	if _, err := t.file.WriteAt(zero[:], t.offset); err != nil {
		return err
	}
	t.offset += 4
	if t.lastMark {
		t.position = PositionEOT
	} else {
		t.position = PositionAtMark
	}
	t.lastMark = true
	return nil
}

// SkipFile advances past records up to and including the next tape mark,
// used to skip over an entire logical file on DOS-11 magtape and Nova
// magtape images.
func (t *TapeDevice) SkipFile() error {
	for {
		_, err := t.ReadRecord()
		if errors.Is(err, ErrTapeAtEOT) {
			return nil
		}
		if errors.Is(err, ErrDoubleMark) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// TruncateAtCurrentPosition truncates the backing image at the current
// offset, used before appending new records at the logical end of tape: per
// the single-writer contract (see the concurrency notes in the design
// document), writes always start by discarding whatever followed the mark
// being overwritten.
func (t *TapeDevice) TruncateAtCurrentPosition() error {
	return t.file.Truncate(t.offset)
}

// Offset exposes the raw byte offset, used by drivers that need to record a
// tape position (e.g. a directory entry pointing at a header record).
func (t *TapeDevice) Offset() int64 { return t.offset }

// SeekOffset repositions the tape at a previously recorded byte offset.
func (t *TapeDevice) SeekOffset(off int64) {
	t.offset = off
	t.position = PositionBetweenRecords
	t.lastMark = false
}

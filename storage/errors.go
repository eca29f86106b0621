package storage

import "errors"

// Sentinel errors shared by the storage layer. Filesystem drivers wrap these
// with path/operation context via github.com/pkg/errors rather than
// introducing a parallel error type.
var (
	ErrReadOnly    = errors.New("device is read-only")
	ErrOutOfRange  = errors.New("block number out of range")
	ErrCorrupt     = errors.New("inconsistent on-disk structure")
	ErrEIO         = errors.New("device I/O error")
	ErrTapeAtBOT   = errors.New("tape is at beginning of tape")
	ErrTapeAtEOT   = errors.New("tape is at end of tape")
	ErrDoubleMark  = errors.New("tape positioned after double tape mark")
)

// Package storage implements the L0/L1/L1b layers of xferx: a seekable byte
// file, fixed-size block addressing with optional sector interleaving, and
// variable-length tape record streams.
package storage

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// ByteFile is a random-access byte image backed by an os.File. It is the L0
// layer: every block device and
// tape device is built on top of exactly one ByteFile.
type ByteFile struct {
	f        *os.File
	readOnly bool
}

// OpenByteFile opens path for the block/tape devices above it. When readOnly
// is true, Write and Truncate fail.
func OpenByteFile(path string, readOnly bool) (*ByteFile, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening image %s", path)
	}
	return &ByteFile{f: f, readOnly: readOnly}, nil
}

// CreateByteFile creates (or truncates) path for INITIALIZE operations.
func CreateByteFile(path string, size int64) (*ByteFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating image %s", path)
	}
	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "sizing new image")
		}
	}
	return &ByteFile{f: f}, nil
}

func (b *ByteFile) ReadOnly() bool {
	return b.readOnly
}

// ReadAt reads len(p) bytes starting at offset off.
func (b *ByteFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := b.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, errors.Wrap(err, "reading image")
	}
	return n, nil
}

// WriteAt writes p at offset off.
func (b *ByteFile) WriteAt(p []byte, off int64) (int, error) {
	if b.readOnly {
		return 0, errors.WithStack(ErrReadOnly)
	}
	n, err := b.f.WriteAt(p, off)
	if err != nil {
		return n, errors.Wrap(err, "writing image")
	}
	return n, nil
}

// Size returns the current size of the underlying image in bytes.
func (b *ByteFile) Size() (int64, error) {
	fi, err := b.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat image")
	}
	return fi.Size(), nil
}

// Truncate resizes the underlying image, used by INITIALIZE and by tape
// devices truncating at the logical end-of-tape.
func (b *ByteFile) Truncate(size int64) error {
	if b.readOnly {
		return errors.WithStack(ErrReadOnly)
	}
	return errors.Wrap(b.f.Truncate(size), "truncating image")
}

// Close releases the underlying file descriptor. Dismounting a filesystem or
// tape ultimately calls this.
func (b *ByteFile) Close() error {
	return b.f.Close()
}

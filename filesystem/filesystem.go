// Package filesystem defines the common contract implemented by every
// per-format driver (§4.1 of the design): the Filesystem and File traits,
// the DirectoryEntry value object, and the closed error taxonomy.
package filesystem

import (
	"time"
)

// OpenMode selects line-ending translation for file I/O.
type OpenMode int

const (
	// ModeImage transfers bytes verbatim.
	ModeImage OpenMode = iota
	// ModeASCII applies per-format line-ending translation on read/write.
	ModeASCII
)

// Entry is the common contract for one directory entry (file or
// subdirectory) within a mounted filesystem. Per-format packages implement
// it over their own parsed on-disk structures.
type Entry interface {
	// Name is the base name in canonical form for this format.
	Name() string
	// FullPath is the format-specific full path (e.g. "DL0:FOO.TXT",
	// "/VOL/DIR/FILE", "[1,2]FOO.TXT").
	FullPath() string
	// Length is the entry's length in blocks.
	Length() int
	// Size is the entry's length in bytes.
	Size() int64
	// CreationDate is the entry's creation timestamp, zero if unknown.
	CreationDate() time.Time
	// FileType is the format-specific type tag (e.g. "ASCII", "PRG", a
	// ProDOS file-type byte rendered as a string).
	FileType() string
	// IsEmpty reports whether this entry represents free space rather than
	// a real file (RT-11/OS-8-style "tentative"/"empty" markers).
	IsEmpty() bool
	// IsDirectory reports whether this entry names a subdirectory.
	IsDirectory() bool
}

// File is an opened file handle (L3's File trait). All block offsets are in
// units of the handle's own BlockSize, not necessarily the device's.
type File interface {
	// BlockSize is the logical block size for this handle's reads/writes;
	// most formats use the device's physical block size, but linked-record
	// formats (e.g. DOS-11) expose a smaller effective payload per block.
	BlockSize() int
	// Length is the total length of the file, in File BlockSize units.
	Length() int
	// Mode is the mode the handle was opened with.
	Mode() OpenMode
	// ReadBlock reads count logical blocks starting at block n.
	ReadBlock(n, count int) ([]byte, error)
	// WriteBlock writes buf as count logical blocks starting at block n.
	WriteBlock(buf []byte, n, count int) error
	// Close releases the handle. Closed handles fail all I/O with EIO.
	Close() error
}

// Filesystem is the common contract every L3 driver implements (§4.1).
type Filesystem interface {
	// BlockSize is the filesystem's physical block size in bytes.
	BlockSize() int
	// TotalBlocks is the volume's total capacity in blocks.
	TotalBlocks() int
	// FreeBlocks is the volume's currently free capacity in blocks.
	FreeBlocks() int
	// ReadOnly reports whether mutating operations are supported at all on
	// this mounted volume (either the device or the format is read-only).
	ReadOnly() bool

	// EntriesList returns a finite, non-restartable sequence of directory
	// entries in the current working directory.
	EntriesList() ([]Entry, error)
	// FilterEntriesList applies a case-insensitive glob over EntriesList,
	// canonicalized per the format's filename rules. When pattern names a
	// directory and expand is true, that directory's own entries are
	// enumerated instead.
	FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]Entry, error)
	// GetFileEntry resolves an exact path to its entry. Relative paths
	// resolve against the current working directory for formats that have
	// one.
	GetFileEntry(fullPath string) (Entry, error)

	// Open returns a handle for entry opened in the given mode.
	Open(entry Entry, mode OpenMode) (File, error)

	// CreateFile allocates blocks and a directory entry for a new file,
	// deleting any prior file of the same canonical name first.
	CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (Entry, error)
	// CreateDirectory creates a subdirectory, only supported by hierarchical
	// formats.
	CreateDirectory(fullPath string, options map[string]string) (Entry, error)
	// WriteBytes is a convenience wrapper: create, write, close.
	WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (Entry, error)
	// ReadBytes is a convenience wrapper: open in image mode, read all
	// blocks, close.
	ReadBytes(entry Entry) ([]byte, error)

	// Delete removes a directory entry and frees its blocks. Directory
	// deletion recurses into children first.
	Delete(entry Entry) error

	// Chdir changes the current working directory; returns false for flat
	// formats that have no directory hierarchy.
	Chdir(path string) (bool, error)
	// GetPwd returns the current working directory in format-specific form.
	GetPwd() string

	// GetSize returns the size of the underlying device, in bytes.
	GetSize() int64
	// GetTypes lists the file-type tags this format recognizes.
	GetTypes() []string

	// Initialize writes an empty, bootable-layout instance over the device.
	// Returns ErrReadOnly for formats where this is unsupported.
	Initialize(options map[string]string) error

	// Close releases the underlying device. Mounting twice is unsupported;
	// behavior after Close is undefined except that it must not panic.
	Close() error
}

package pascal

import (
	"time"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

// CreateFile allocates the smallest-indexed free gap at least blocks long
// and appends a directory entry for it, deleting any prior same-named file
// first, per PascalFilesystem.create_file.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	name := canonicalFilename(fullPath)
	if existing, err := fs.GetFileEntry(name); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}
	vd, err := readVolumeDir(fs)
	if err != nil {
		return nil, err
	}
	e, err := vd.allocateSpace(name, blocks, creationDate, fileType, 0)
	if err != nil {
		return nil, err
	}
	if err := vd.write(); err != nil {
		return nil, err
	}
	return &Entry{fs: fs, e: e}, nil
}

// WriteBytes pads content to a whole number of blocks, writes it, and
// records the trailing partial-block byte count, per write_bytes.
func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "write_bytes", fullPath, nil)
	}
	numberOfBlocks := (len(content) + storage.BlockSize - 1) / storage.BlockSize
	lastBlockBytes := len(content) % storage.BlockSize
	if numberOfBlocks == 0 {
		numberOfBlocks = 1
	}

	name := canonicalFilename(fullPath)
	if existing, err := fs.GetFileEntry(name); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}
	vd, err := readVolumeDir(fs)
	if err != nil {
		return nil, err
	}
	e, err := vd.allocateSpace(name, numberOfBlocks, creationDate, fileType, lastBlockBytes)
	if err != nil {
		return nil, err
	}
	if err := vd.write(); err != nil {
		return nil, err
	}

	entry := &Entry{fs: fs, e: e}
	padded := make([]byte, numberOfBlocks*storage.BlockSize)
	copy(padded, content)
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	if err := handle.WriteBlock(padded, 0, numberOfBlocks); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes the matching directory entry, collapsing it back into the
// implicit free space between its neighbors (nothing to free explicitly:
// unused space is derived from gaps, not a bitmap), per
// PascalDirectoryEntry.delete.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	en, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	vd, err := readVolumeDir(fs)
	if err != nil {
		return err
	}
	idx := -1
	for i, e := range vd.entries {
		if e.startBlock == en.e.startBlock && e.filename == en.e.filename {
			idx = i
			break
		}
	}
	if idx < 0 {
		return filesystem.NewError(filesystem.NotFound, "delete", entry.FullPath(), nil)
	}
	vd.entries = append(vd.entries[:idx], vd.entries[idx+1:]...)
	return vd.write()
}

// Initialize formats a fresh volume directory over the whole device, per
// PascalFilesystem.initialize.
func (fs *FS) Initialize(options map[string]string) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	name := defaultVolumeName
	if options != nil {
		if v, ok := options["name"]; ok && v != "" {
			name = canonicalFilename(v)
		}
	}
	numberOfBlocks := fs.dev.NumBlocks()
	vd := &volumeDir{
		fs:                fs,
		startBlock:        0,
		followingBlock:    dirBlock + dirSize,
		volumeName:        name,
		numberOfBlocks:    numberOfBlocks,
		rawMostRecentDate: encoding.PascalEncodeDate(time.Now()),
	}
	if err := vd.write(); err != nil {
		return err
	}
	fs.volumeName = name
	fs.numberOfBlocks = numberOfBlocks
	return nil
}

package dos33

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/filesystem/applesingle"
)

// CreateFile allocates a Track/Sector-List chain plus data sectors and
// appends a catalog entry, per AppleDOSCatalog.create_file.
func (fs *FS) CreateFile(fullPath string, sectors int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	return fs.createFile(fullPath, sectors, parseFileType(fileType, fileTypeText))
}

func (fs *FS) createFile(fullPath string, numberOfSectors int, ft byte) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	if existing, err := fs.GetFileEntry(fullPath); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}
	v, err := fs.readVTOC()
	if err != nil {
		return nil, err
	}

	tsListCount := (numberOfSectors + dataSectorsPerList - 1) / dataSectorsPerList
	if tsListCount < 1 {
		tsListCount = 1
	}
	allocated, err := v.allocate(numberOfSectors + tsListCount)
	if err != nil {
		return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, err)
	}
	tsListSectors := allocated[:tsListCount]
	dataSectors := append([]trackSector(nil), allocated[tsListCount:]...)

	for i, ts := range tsListSectors {
		buf := make([]byte, sectorSize)
		if i+1 < len(tsListSectors) {
			next := tsListSectors[i+1]
			buf[nextTrackOffset] = byte(next.track)
			buf[nextSectorOffset] = byte(next.sector)
		}
		for j := trackSectorOffset; j+1 < sectorSize && len(dataSectors) > 0; j += 2 {
			d := dataSectors[0]
			dataSectors = dataSectors[1:]
			buf[j] = byte(d.track)
			buf[j+1] = byte(d.sector)
		}
		if err := fs.writeSector(ts.track, ts.sector, buf); err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "create_file", fullPath, err)
		}
	}

	e := &dirEntry{
		address:     tsListSectors[0],
		rawFileType: ft,
		name:        canonicalFilename(strings.TrimPrefix(fullPath, "/")),
		length:      numberOfSectors + tsListCount,
	}
	if err := fs.appendCatalogEntry(e); err != nil {
		return nil, err
	}
	if err := v.write(); err != nil {
		return nil, err
	}
	return &Entry{fs: fs, e: e}, nil
}

// appendCatalogEntry places e into the first empty slot, or else the first
// deleted slot, per AppleDOSCatalog.search_empty_entry.
func (fs *FS) appendCatalogEntry(e *dirEntry) error {
	entries, err := fs.rawCatalogEntries()
	if err != nil {
		return err
	}
	var target *dirEntry
	for _, c := range entries {
		if c.isEmpty() {
			target = c
			break
		}
	}
	if target == nil {
		for _, c := range entries {
			if c.deleted {
				target = c
				break
			}
		}
	}
	if target == nil {
		return filesystem.NewError(filesystem.NoSpace, "append_catalog_entry", e.name, errors.New("catalog full"))
	}
	sectorBuf, err := fs.readSector(target.catalogTrack, target.catalogSector)
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "append_catalog_entry", e.name, err)
	}
	writeDirEntry(sectorBuf, target.slotOff, e)
	if err := fs.writeSector(target.catalogTrack, target.catalogSector, sectorBuf); err != nil {
		return filesystem.NewError(filesystem.EIO, "append_catalog_entry", e.name, err)
	}
	return nil
}

// WriteBytes decodes an AppleSingle envelope when present, mapping its
// ProDOS file type to a DOS 3.3 type and re-adding that type's on-disk
// header, per AppleDOSFilesystem.write_bytes.
func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	haveType := fileType != ""
	ft := parseFileType(fileType, fileTypeText)
	if decoded, err := applesingle.Decode(content); err == nil {
		content = decoded.Data
		if decoded.ProDOSInfo != nil && !haveType {
			switch decoded.ProDOSInfo.FileType {
			case prodosTxtFileType:
				ft = fileTypeText
			case prodosBinFileType:
				ft = fileTypeBinary
				header := []byte{
					byte(decoded.ProDOSInfo.AuxType), byte(decoded.ProDOSInfo.AuxType >> 8),
					byte(len(content)), byte(len(content) >> 8),
				}
				content = append(header, content...)
			case prodosIntFileType, prodosBasFileType:
				if decoded.ProDOSInfo.FileType == prodosIntFileType {
					ft = fileTypeInteger
				} else {
					ft = fileTypeApplesoft
				}
				header := []byte{byte(len(content)), byte(len(content) >> 8)}
				content = append(header, content...)
			case prodosRelFileType:
				ft = fileTypeRelocatable
			}
			haveType = true
		}
	}
	_ = haveType

	numSectors := (len(content) + sectorSize - 1) / sectorSize
	if numSectors == 0 {
		numSectors = 1
	}
	entry, err := fs.createFile(fullPath, numSectors, ft)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, numSectors*sectorSize)
	copy(padded, content)
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	if err := handle.WriteBlock(padded, 0, numSectors); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete marks the catalog entry deleted and frees its T/S-list and data
// sectors, per AppleDOSDirectoryEntry.delete.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	en, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}

	entries, err := fs.rawCatalogEntries()
	if err != nil {
		return err
	}
	var target *dirEntry
	for _, c := range entries {
		if !c.isEmpty() && !c.deleted && c.address == en.e.address && c.name == en.e.name {
			target = c
			break
		}
	}
	if target == nil {
		return filesystem.NewError(filesystem.NotFound, "delete", entry.FullPath(), nil)
	}

	sectors, err := fs.blocks(target, true)
	if err != nil {
		return err
	}
	target.deleted = true
	sectorBuf, err := fs.readSector(target.catalogTrack, target.catalogSector)
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "delete", entry.FullPath(), err)
	}
	writeDirEntry(sectorBuf, target.slotOff, target)
	if err := fs.writeSector(target.catalogTrack, target.catalogSector, sectorBuf); err != nil {
		return filesystem.NewError(filesystem.EIO, "delete", entry.FullPath(), err)
	}

	v, err := fs.readVTOC()
	if err != nil {
		return err
	}
	for _, ts := range sectors {
		v.setFree(ts)
	}
	return v.write()
}

// Initialize formats a blank DOS 3.3 volume: a fresh VTOC plus an empty
// catalog chain over the rest of the VTOC track.
func (fs *FS) Initialize(options map[string]string) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	fs.numberOfTracks = 35
	fs.sectorsPerTrack = 16
	if n := fs.dev.NumBlocks(); n > 0 {
		if tracks := n / 8; tracks > 0 {
			fs.numberOfTracks = tracks
		}
	}
	fs.catalogTrack = vtocTrack
	fs.catalogSector = fs.sectorsPerTrack - 1

	buf := make([]byte, sectorSize)
	buf[0] = 4 // DOS type
	buf[1] = byte(fs.catalogTrack)
	buf[2] = byte(fs.catalogSector)
	buf[3] = 3 // DOS version
	buf[6] = 254 // volume number
	buf[39] = dataSectorsPerList
	buf[48] = vtocTrack // last track allocated
	buf[49] = 0xFF      // allocation direction: -1
	buf[52] = byte(fs.numberOfTracks)
	buf[53] = byte(fs.sectorsPerTrack)
	buf[54] = byte(sectorSize)
	buf[55] = byte(sectorSize >> 8)

	full := (uint32(1)<<uint(fs.sectorsPerTrack) - 1) << uint(32-fs.sectorsPerTrack)
	for t := 0; t < fs.numberOfTracks; t++ {
		bm := full
		if t < 3 || t == vtocTrack {
			bm = 0
		}
		off := 56 + t*4
		buf[off] = byte(bm >> 24)
		buf[off+1] = byte(bm >> 16)
		buf[off+2] = byte(bm >> 8)
		buf[off+3] = byte(bm)
	}
	if err := fs.writeSector(vtocTrack, vtocSector, buf); err != nil {
		return filesystem.NewError(filesystem.EIO, "initialize", "", err)
	}

	for s := fs.sectorsPerTrack - 1; s >= 1; s-- {
		cbuf := make([]byte, sectorSize)
		if s-1 >= 1 {
			cbuf[nextTrackOffset] = vtocTrack
			cbuf[nextSectorOffset] = byte(s - 1)
		}
		if err := fs.writeSector(vtocTrack, s, cbuf); err != nil {
			return filesystem.NewError(filesystem.EIO, "initialize", "", err)
		}
	}
	return nil
}

// Package ppm implements the Pascal ProFile Manager (PPM) partition format,
// per §3/§12: a ProDOS storage-type-4 "PAS" file whose contiguous block
// range is internally divided into up to 31 named Apple Pascal volumes,
// each mountable as its own filesystem/pascal.FS.
//
// Grounded on original_source/xferx/apple2/ppm.py in full:
// PPM_HEADER_FORMAT/PPM_INFO_FORMAT struct layouts, the description/name
// side tables at fixed offsets 0x100/0x300, PPMDirectoryEntry's
// create_volume_entry/delete_volume_entry/write_pascal_volume_directory
// (first-fit placement, sort-by-key-pointer-before-write), and
// PPMVolumeEntry's plain contiguous-range storage.
package ppm

import (
	"strings"

	"github.com/pkg/errors"

	"xferx/filesystem/pascal"
	"xferx/storage"
)

const (
	headerBlocks      = 2 // Pascal Volume Directory header length in blocks
	maxVolumes        = 31
	infoSize          = 8 // "<HHBBH": start_block, blocks_used, default_unit, write_protect, reserved
	descriptionOffset = 0x100
	descriptionLen    = 16
	nameOffset        = 0x300
	nameLen           = 8
	magic             = "PPM"
)

func pascalToStr(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	n := int(b[0])
	if n > len(b)-1 {
		n = len(b) - 1
	}
	return string(b[1 : 1+n])
}

func putPascalStr(buf []byte, val string) {
	if len(val) > len(buf)-1 {
		val = val[:len(buf)-1]
	}
	buf[0] = byte(len(val))
	copy(buf[1:], val)
}

func le16(b []byte) int          { return int(b[0]) | int(b[1])<<8 }
func putLe16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }

// Volume is one named contiguous block range registered in a PPM
// partition's Pascal Volume Directory.
type Volume struct {
	VolumeNumber   int // 1-31
	StartBlock     int // absolute block number in the containing device
	NumBlocks      int
	DefaultUnit    int
	WriteProtected bool
	Description    string
	Name           string
}

func (v *Volume) parse(buf []byte, volumeNumber int) {
	v.VolumeNumber = volumeNumber
	off := volumeNumber * infoSize
	v.StartBlock = le16(buf[off : off+2])
	v.NumBlocks = le16(buf[off+2 : off+4])
	v.DefaultUnit = int(buf[off+4])
	v.WriteProtected = buf[off+5] != 0
	descOff := descriptionOffset + volumeNumber*descriptionLen
	v.Description = pascalToStr(buf[descOff : descOff+8])
	nmOff := nameOffset + volumeNumber*nameLen
	v.Name = pascalToStr(buf[nmOff : nmOff+8])
}

func (v *Volume) write(buf []byte) {
	off := v.VolumeNumber * infoSize
	putLe16(buf[off:off+2], uint16(v.StartBlock))
	putLe16(buf[off+2:off+4], uint16(v.NumBlocks))
	buf[off+4] = byte(v.DefaultUnit)
	if v.WriteProtected {
		buf[off+5] = 1
	} else {
		buf[off+5] = 0
	}
	descOff := descriptionOffset + v.VolumeNumber*descriptionLen
	desc := make([]byte, 8)
	putPascalStr(desc, v.Description)
	copy(buf[descOff:descOff+8], desc)
	nmOff := nameOffset + v.VolumeNumber*nameLen
	nm := make([]byte, 8)
	putPascalStr(nm, v.Name)
	copy(buf[nmOff:nmOff+8], nm)
}

// Directory is a mounted PPM partition: the 2-block header plus its
// volume table, addressed by absolute block numbers on the containing
// device (the same device and addressing a ProDOS directory entry's
// key_pointer would use, per PPMDirectoryEntry).
type Directory struct {
	dev        *storage.BlockDevice
	startBlock int
	numBlocks  int
	volumes    int
}

func readHeaderBuf(dev *storage.BlockDevice, startBlock int) ([]byte, error) {
	buf := make([]byte, 0, storage.BlockSize*headerBlocks)
	for i := 0; i < headerBlocks; i++ {
		b, err := dev.ReadBlock(startBlock + i)
		if err != nil {
			return nil, errors.Wrap(err, "read ppm header")
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

func writeHeaderBuf(dev *storage.BlockDevice, startBlock int, buf []byte) error {
	for i := 0; i < headerBlocks; i++ {
		chunk := buf[i*storage.BlockSize : (i+1)*storage.BlockSize]
		if err := dev.WriteBlock(startBlock+i, chunk); err != nil {
			return errors.Wrap(err, "write ppm header")
		}
	}
	return nil
}

// Format writes a fresh, empty Pascal Volume Directory over
// [startBlock, startBlock+numBlocks) of dev, per the header-write portion
// of PPMDirectoryEntry.create. The caller is responsible for reserving
// those blocks in the containing filesystem first (e.g. a ProDOS
// storage-type-4 "PAS" file allocated contiguously at the end of the
// volume); Format only initializes the PPM bookkeeping within them.
func Format(dev *storage.BlockDevice, startBlock, numBlocks int) (*Directory, error) {
	buf := make([]byte, storage.BlockSize*headerBlocks)
	putLe16(buf[0:2], uint16(numBlocks))
	putLe16(buf[2:4], 0)
	putPascalStr(buf[4:8], magic)
	if err := writeHeaderBuf(dev, startBlock, buf); err != nil {
		return nil, err
	}
	return &Directory{dev: dev, startBlock: startBlock, numBlocks: numBlocks}, nil
}

// Mount reads an existing PPM partition's header, validating its "PPM"
// marker string.
func Mount(dev *storage.BlockDevice, startBlock, numBlocks int) (*Directory, error) {
	buf, err := readHeaderBuf(dev, startBlock)
	if err != nil {
		return nil, err
	}
	name := pascalToStr(buf[4:8])
	if name != magic {
		return nil, errors.New("not a PPM partition: missing 'PPM' marker")
	}
	volumes := le16(buf[2:4])
	return &Directory{dev: dev, startBlock: startBlock, numBlocks: numBlocks, volumes: volumes}, nil
}

// Volumes lists the partition's registered volumes, per
// PPMDirectoryEntry.iterdir.
func (d *Directory) Volumes() ([]*Volume, error) {
	buf, err := readHeaderBuf(d.dev, d.startBlock)
	if err != nil {
		return nil, err
	}
	out := make([]*Volume, 0, d.volumes)
	for i := 1; i <= d.volumes; i++ {
		v := &Volume{}
		v.parse(buf, i)
		out = append(out, v)
	}
	return out, nil
}

// writeVolumes re-serializes the whole volume table, sorted by start
// block, per write_pascal_volume_directory.
func (d *Directory) writeVolumes(volumes []*Volume) error {
	sortVolumesByStartBlock(volumes)
	buf, err := readHeaderBuf(d.dev, d.startBlock)
	if err != nil {
		return err
	}
	d.volumes = len(volumes)
	putLe16(buf[0:2], uint16(d.numBlocks))
	putLe16(buf[2:4], uint16(d.volumes))
	putPascalStr(buf[4:8], magic)
	for i, v := range volumes {
		v.VolumeNumber = i + 1
		v.write(buf)
	}
	for i := len(volumes); i < maxVolumes; i++ {
		off := (i + 1) * infoSize
		for b := off; b < off+infoSize; b++ {
			buf[b] = 0
		}
	}
	return writeHeaderBuf(d.dev, d.startBlock, buf)
}

func sortVolumesByStartBlock(volumes []*Volume) {
	for i := 1; i < len(volumes); i++ {
		for j := i; j > 0 && volumes[j].StartBlock < volumes[j-1].StartBlock; j-- {
			volumes[j], volumes[j-1] = volumes[j-1], volumes[j]
		}
	}
}

// CreateVolume first-fits a new volume into the smallest-indexed gap at
// least blocks long between the header and the partition's end, per
// PPMDirectoryEntry.create_volume_entry.
func (d *Directory) CreateVolume(name string, blocks int) (*Volume, error) {
	volumes, err := d.Volumes()
	if err != nil {
		return nil, err
	}
	if len(volumes) >= maxVolumes {
		return nil, errors.New("too many volumes")
	}
	position := d.startBlock + headerBlocks
	for _, v := range volumes {
		if v.StartBlock-position >= blocks {
			break
		}
		position = v.StartBlock + v.NumBlocks
	}
	if position+blocks > d.startBlock+d.numBlocks {
		return nil, errors.New("ppm partition out of space")
	}
	nv := &Volume{StartBlock: position, NumBlocks: blocks, Name: strings.ToUpper(name)}
	volumes = append(volumes, nv)
	if err := d.writeVolumes(volumes); err != nil {
		return nil, err
	}
	return nv, nil
}

// DeleteVolume removes the volume starting at startBlock, per
// PPMDirectoryEntry.delete_volume_entry.
func (d *Directory) DeleteVolume(startBlock int) error {
	volumes, err := d.Volumes()
	if err != nil {
		return err
	}
	out := volumes[:0]
	found := false
	for _, v := range volumes {
		if v.StartBlock == startBlock {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		return errors.New("volume not found")
	}
	return d.writeVolumes(out)
}

// offsetDevice adapts a contiguous block range of a *storage.BlockDevice
// to filesystem/pascal's blockDevice interface, so a PPM volume can be
// mounted as an Apple Pascal filesystem without extracting it into its
// own image file first.
type offsetDevice struct {
	dev   *storage.BlockDevice
	base  int
	count int
}

func (d *offsetDevice) ReadBlock(blkno int) ([]byte, error) {
	if blkno < 0 || blkno >= d.count {
		return nil, errors.Errorf("block %d out of range [0,%d)", blkno, d.count)
	}
	return d.dev.ReadBlock(d.base + blkno)
}

func (d *offsetDevice) WriteBlock(blkno int, buf []byte) error {
	if blkno < 0 || blkno >= d.count {
		return errors.Errorf("block %d out of range [0,%d)", blkno, d.count)
	}
	return d.dev.WriteBlock(d.base+blkno, buf)
}

func (d *offsetDevice) NumBlocks() int { return d.count }
func (d *offsetDevice) ReadOnly() bool { return d.dev.ReadOnly() }
func (d *offsetDevice) Close() error   { return nil } // must not close the parent device

// OpenVolume mounts v as an Apple Pascal filesystem nested inside this PPM
// partition.
func (d *Directory) OpenVolume(v *Volume, readOnly bool) (*pascal.FS, error) {
	view := &offsetDevice{dev: d.dev, base: v.StartBlock, count: v.NumBlocks}
	return pascal.Mount(view, readOnly)
}

// FormatVolume initializes v as a fresh, empty Apple Pascal volume.
func (d *Directory) FormatVolume(v *Volume, name string) error {
	view := &offsetDevice{dev: d.dev, base: v.StartBlock, count: v.NumBlocks}
	return pascal.New(view).Initialize(map[string]string{"name": name})
}

package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"xferx/filesystem"
	"xferx/filesystem/caps11"
	"xferx/filesystem/dos11"
	"xferx/filesystem/dos11tape"
	"xferx/filesystem/dos33"
	"xferx/filesystem/files11"
	"xferx/filesystem/nova"
	"xferx/filesystem/novatape"
	"xferx/filesystem/os8"
	"xferx/filesystem/pascal"
	"xferx/filesystem/prodos"
	"xferx/filesystem/rsts"
	"xferx/filesystem/rt11"
	"xferx/filesystem/tss8"
	"xferx/filesystem/unixfs"
	"xferx/storage"
)

// fsType is the /fstype flag value recognised by MOUNT/INITIALIZE, one per
// §1's list of supported formats (RSTS/E, TSS/8, Files-11, RDOS, DOS-11 and
// their tape variants, Apple II formats, and UNIX).
type fsType string

const (
	fsRT11      fsType = "rt11"
	fsDOS11     fsType = "dos11"
	fsDOS11Tape fsType = "dos11mag"
	fsFiles11   fsType = "files11"
	fsRSTS      fsType = "rsts"
	fsOS8       fsType = "os8"
	fsTSS8      fsType = "tss8"
	fsCAPS11    fsType = "caps11"
	fsNova      fsType = "rdos"
	fsNovaTape  fsType = "rdosmag"
	fsUnixV0    fsType = "unix0"
	fsUnixV1    fsType = "unix1"
	fsUnixV5    fsType = "unix5"
	fsUnixV6    fsType = "unix6"
	fsUnixV7    fsType = "unix7"
	fsProDOS    fsType = "prodos"
	fsAppleDOS  fsType = "dos33"
	fsPascal    fsType = "pascal"
)

// guessFSType maps a file extension to a default format, mirroring the
// original shell's "media type defaults to file extension" convention
// (retained from the teacher's cmd.mediaType helper).
func guessFSType(path string) fsType {
	switch {
	case strings.HasSuffix(path, ".rx01"):
		return fsOS8
	case strings.HasSuffix(path, ".tap"):
		return fsDOS11Tape
	case strings.HasSuffix(path, ".po"):
		return fsProDOS
	case strings.HasSuffix(path, ".do"), strings.HasSuffix(path, ".dsk"):
		return fsAppleDOS
	default:
		return fsRT11
	}
}

// mountVolume opens path and mounts it as typ, returning a filesystem.Filesystem
// ready for registration with the volume registry. strict enables
// consistency checks at mount time (§4.1 mount's strict parameter).
func mountVolume(typ fsType, path string, readOnly, strict bool) (filesystem.Filesystem, error) {
	bf, err := storage.OpenByteFile(path, readOnly)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	switch typ {
	case fsDOS11Tape:
		tape := storage.NewTapeDevice(bf)
		return dos11tape.Mount(tape, strict)
	case fsNovaTape:
		tape := storage.NewTapeDevice(bf)
		return novatape.Mount(tape, strict)
	case fsOS8:
		return os8.Mount(bf, 128, strict)
	}

	size, err := bf.Size()
	if err != nil {
		bf.Close()
		return nil, err
	}
	numBlocks := int(size / storage.BlockSize)

	switch typ {
	case fsProDOS:
		dev := storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)
		return prodos.Mount(dev, readOnly)
	case fsAppleDOS:
		numBlocks = int(size / storage.SectorSize / 2)
		dev := storage.NewBlockDevice(bf, storage.LayoutAppleDOS33, numBlocks)
		return dos33.Mount(dev, readOnly)
	case fsPascal:
		dev := storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)
		return pascal.Mount(dev, readOnly)
	case fsRT11:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return rt11.Mount(dev, strict)
	case fsDOS11:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return dos11.Mount(dev, strict)
	case fsFiles11:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return files11.Mount(dev, strict)
	case fsRSTS:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return rsts.Mount(dev, strict)
	case fsTSS8:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return tss8.Mount(dev, strict)
	case fsCAPS11:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return caps11.Mount(dev, strict)
	case fsNova:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return nova.Mount(dev, strict)
	case fsUnixV0:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return unixfs.Mount(dev, unixfs.V0)
	case fsUnixV1:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return unixfs.Mount(dev, unixfs.V1)
	case fsUnixV5:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return unixfs.Mount(dev, unixfs.V5)
	case fsUnixV6:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return unixfs.Mount(dev, unixfs.V6)
	case fsUnixV7:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		return unixfs.Mount(dev, unixfs.V7)
	default:
		bf.Close()
		return nil, fmt.Errorf("unsupported /fstype %q", typ)
	}
}

// initializeVolume creates a new image file of the given size and writes an
// empty instance of typ's layout over it (§4.1 Initialize).
func initializeVolume(typ fsType, path string, size int64) error {
	bf, err := storage.CreateByteFile(path, size)
	if err != nil {
		return err
	}
	numBlocks := int(size / storage.BlockSize)

	switch typ {
	case fsRT11:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		defer dev.Close()
		return rt11.Initialize(dev, nil)
	case fsTSS8:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		defer dev.Close()
		return tss8.Initialize(dev, nil)
	case fsCAPS11:
		dev := storage.NewBlockDevice(bf, storage.LayoutLinear, numBlocks)
		defer dev.Close()
		return caps11.Initialize(dev, nil)
	case fsProDOS:
		dev := storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)
		defer dev.Close()
		fs := prodos.New(dev)
		return fs.Initialize(nil)
	case fsAppleDOS:
		numBlocks = int(size / storage.SectorSize / 2)
		dev := storage.NewBlockDevice(bf, storage.LayoutAppleDOS33, numBlocks)
		defer dev.Close()
		return dos33.New(dev).Initialize(nil)
	case fsPascal:
		dev := storage.NewBlockDevice(bf, storage.LayoutAppleProDOS, numBlocks)
		defer dev.Close()
		return pascal.New(dev).Initialize(nil)
	default:
		bf.Close()
		return fmt.Errorf("INITIALIZE not supported for /fstype %q", typ)
	}
}

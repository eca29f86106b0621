package dos33

import (
	"math/bits"

	"xferx/filesystem"
)

// vtocView is the in-memory Volume Table Of Contents: per-track 32-bit
// bitmaps (big-endian on disk) plus the rolling allocation cursor, per
// AppleDOSVTOC.
type vtocView struct {
	fs *FS

	lastTrackAllocated  int
	allocationDirection int // +1 or -1
	bitmaps             []uint32
}

func (fs *FS) readVTOC() (*vtocView, error) {
	buf, err := fs.readSector(vtocTrack, vtocSector)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "read_vtoc", "", err)
	}
	v := &vtocView{fs: fs}
	v.lastTrackAllocated = int(buf[48])
	if int8(buf[49]) >= 0 {
		v.allocationDirection = 1
	} else {
		v.allocationDirection = -1
	}
	v.bitmaps = make([]uint32, fs.numberOfTracks)
	for t := 0; t < fs.numberOfTracks; t++ {
		off := 56 + t*4
		v.bitmaps[t] = uint32(buf[off])<<24 | uint32(buf[off+1])<<16 | uint32(buf[off+2])<<8 | uint32(buf[off+3])
	}
	return v, nil
}

func (v *vtocView) write() error {
	buf, err := v.fs.readSector(vtocTrack, vtocSector)
	if err != nil {
		return filesystem.NewError(filesystem.EIO, "write_vtoc", "", err)
	}
	out := append([]byte(nil), buf...)
	out[48] = byte(v.lastTrackAllocated)
	if v.allocationDirection == 1 {
		out[49] = 1
	} else {
		out[49] = 0xFF
	}
	for t, bm := range v.bitmaps {
		off := 56 + t*4
		out[off] = byte(bm >> 24)
		out[off+1] = byte(bm >> 16)
		out[off+2] = byte(bm >> 8)
		out[off+3] = byte(bm)
	}
	if err := v.fs.writeSector(vtocTrack, vtocSector, out); err != nil {
		return filesystem.NewError(filesystem.EIO, "write_vtoc", "", err)
	}
	return nil
}

func (v *vtocView) bitPosition(sector int) int {
	return sector + (32 - v.fs.sectorsPerTrack)
}

func (v *vtocView) isFree(ts trackSector) bool {
	if ts.track < 0 || ts.track >= len(v.bitmaps) {
		return false
	}
	bit := v.bitPosition(ts.sector)
	if bit < 0 || bit >= 32 {
		return false
	}
	return v.bitmaps[ts.track]&(1<<uint(bit)) != 0
}

func (v *vtocView) setFree(ts trackSector) {
	if ts.track < 0 || ts.track >= len(v.bitmaps) {
		return
	}
	if bit := v.bitPosition(ts.sector); bit >= 0 && bit < 32 {
		v.bitmaps[ts.track] |= 1 << uint(bit)
	}
}

func (v *vtocView) setUsed(ts trackSector) {
	if ts.track < 0 || ts.track >= len(v.bitmaps) {
		return
	}
	if bit := v.bitPosition(ts.sector); bit >= 0 && bit < 32 {
		v.bitmaps[ts.track] &^= 1 << uint(bit)
	}
}

func (v *vtocView) free() int {
	n := 0
	for _, bm := range v.bitmaps {
		n += bits.OnesCount32(bm)
	}
	return n
}

// allocate reserves n sectors, walking tracks from lastTrackAllocated in
// allocationDirection and, within each track, sectors from sectorsPerTrack
// down to 1 — matching AppleDOSVTOC.allocate's own range, which never
// considers a track's sector 0.
func (v *vtocView) allocate(n int) ([]trackSector, error) {
	if v.free() < n {
		return nil, filesystem.NewError(filesystem.NoSpace, "allocate", "", nil)
	}
	var out []trackSector
	track := v.lastTrackAllocated
	for len(out) < n {
		if v.allocationDirection == 1 {
			track++
			if track >= v.fs.numberOfTracks {
				track = 1
			}
		} else {
			track--
			if track <= 0 {
				track = v.fs.numberOfTracks - 1
			}
		}
		for sector := v.fs.sectorsPerTrack; sector > 0 && len(out) < n; sector-- {
			ts := trackSector{track, sector}
			if v.isFree(ts) {
				v.setUsed(ts)
				out = append(out, ts)
			}
		}
		if track == v.lastTrackAllocated {
			break
		}
	}
	v.lastTrackAllocated = track
	if len(out) < n {
		return nil, filesystem.NewError(filesystem.NoSpace, "allocate", "", nil)
	}
	return out, nil
}

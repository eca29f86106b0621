package rsts

import (
	"encoding/binary"

	"xferx/filesystem"
	"xferx/filesystem/uic"
)

// readUFDClusterMap reads the cluster-size/map blockette at a fixed offset
// within a UFD's own label block.
func (fs *FS) readUFDClusterMap(buf []byte) []int {
	_, dcns := readClusterMap(buf)
	return dcns
}

// readUFDNameEntries walks the linked blockette chain of one UFD, starting
// at link (read from the UFD label entry), resolving each name entry's
// paired account blockette along the way.
func (fs *FS) readUFDNameEntries(link Link, ufdUAR int, ppn uic.UIC) ([]*ufdNameEntry, error) {
	labelBuf, err := fs.device.ReadBlock(link.Block + ufdUAR)
	if err != nil {
		return nil, err
	}
	clusterMap := fs.readUFDClusterMap(labelBuf)

	var out []*ufdNameEntry
	visited := map[Link]bool{}
	for !link.isNull() {
		if visited[link] {
			break
		}
		visited[link] = true

		buf, err := fs.device.ReadBlock(link.toLBN(clusterMap))
		if err != nil {
			return nil, err
		}
		pos := blockettesSize * link.Entry
		if pos+blockettesSize > len(buf) {
			break
		}
		ulnk := binary.LittleEndian.Uint16(buf[pos : pos+2])
		fnam0 := binary.LittleEndian.Uint16(buf[pos+2 : pos+4])
		fnam1 := binary.LittleEndian.Uint16(buf[pos+4 : pos+6])
		ftyp := binary.LittleEndian.Uint16(buf[pos+6 : pos+8])
		uaaWord := binary.LittleEndian.Uint16(buf[pos+12 : pos+14])
		uarWord := binary.LittleEndian.Uint16(buf[pos+14 : pos+16])

		e := &ufdNameEntry{
			ppn:       ppn,
			ufdUAR:    ufdUAR,
			filename:  nameFromRAD50(fnam0, fnam1, 0),
			extension: nameFromRAD50(ftyp, 0, 0),
			next:      decodeLink(ulnk),
			uaa:       decodeLink(uaaWord),
			uar:       decodeLink(uarWord),
		}

		accBuf, err := fs.device.ReadBlock(e.uaa.toLBN(clusterMap))
		if err == nil {
			accPos := blockettesSize * e.uaa.Entry
			if accPos+blockettesSize <= len(accBuf) {
				e.accUSIZ = binary.LittleEndian.Uint16(accBuf[accPos+4 : accPos+6])
				e.accUDC = binary.LittleEndian.Uint16(accBuf[accPos+6 : accPos+8])
				e.accUTC = binary.LittleEndian.Uint16(accBuf[accPos+8 : accPos+10])
				e.accUCLUS = binary.LittleEndian.Uint16(accBuf[accPos+14 : accPos+16])
				if e.accUCLUS == 0 {
					e.accUCLUS = 1
				}
			}
		}

		out = append(out, e)
		link = e.next
	}
	return out, nil
}

// readDirEntries enumerates the UFD for ppn (RDS1.x: MFD -> GFD -> UFD
// pointer maps; RDS0: a single MFD name-entry chain pointing at UFD DCNs
// directly), honoring wildcards in either field.
func (fs *FS) readDirEntries(ppn uic.UIC) ([]*ufdNameEntry, error) {
	if fs.rds1 {
		return fs.readDirEntriesRDS1(ppn)
	}
	return fs.readDirEntriesRDS0(ppn)
}

func (fs *FS) readDirEntriesRDS1(ppn uic.UIC) ([]*ufdNameEntry, error) {
	var out []*ufdNameEntry
	for group, gfdDCN := range fs.gfdPointerMap {
		if gfdDCN == 0 {
			continue
		}
		if ppn.Group != uic.AnyGroup && int(ppn.Group) != group {
			continue
		}
		gfdLabel, err := fs.readBlockDCN(gfdDCN + labelBlockOffset)
		if err != nil {
			continue
		}
		_, gfdClusterMap := readClusterMap(gfdLabel)
		ufdBuf, err := fs.readBlockDCN(gfdDCN + ufdPointerBlockOffset)
		if err != nil {
			continue
		}
		for user := 0; user < 255 && user*2+2 <= len(ufdBuf); user++ {
			ufdPointer := int(binary.LittleEndian.Uint16(ufdBuf[user*2 : user*2+2]))
			if ufdPointer == 0 {
				continue
			}
			if ppn.User != uic.AnyUser && int(ppn.User) != user {
				continue
			}
			ufdLabel, err := fs.readBlockDCN(ufdPointer)
			if err != nil {
				continue
			}
			ulnk := decodeLink(binary.LittleEndian.Uint16(ufdLabel[0:2]))
			entryPPN := uic.UIC{Group: uint8(group), User: uint8(user)}
			entries, err := fs.readUFDNameEntries(ulnk, ufdPointer, entryPPN)
			if err != nil {
				continue
			}
			out = append(out, entries...)
		}
		_ = gfdClusterMap
	}
	return out, nil
}

// readDirEntriesRDS0 walks the MFD's own blockette chain via each entry's
// ulnk field; for entries flagged as UFD name entries (US_UFD), that same
// ulnk value is reused as the starting Link into the target UFD's own
// blockette array (resolved against the UFD's cluster map, read via its
// uar DCN) — the Link's (cluster, block, entry) triple is meaningless until
// paired with a specific cluster map.
func (fs *FS) readDirEntriesRDS0(ppn uic.UIC) ([]*ufdNameEntry, error) {
	const usUFD = 1 << 6
	var out []*ufdNameEntry
	link := fs.mfdFirstName
	visited := map[Link]bool{}
	for !link.isNull() {
		if visited[link] {
			break
		}
		visited[link] = true
		buf, err := fs.device.ReadBlock(link.toLBN(fs.mfdClusterMap))
		if err != nil {
			return nil, filesystem.NewError(filesystem.Corrupt, "read_dir_entries", "", err)
		}
		pos := blockettesSize * link.Entry
		if pos+blockettesSize > len(buf) {
			break
		}
		ulnk := binary.LittleEndian.Uint16(buf[pos : pos+2])
		ppnWord := binary.LittleEndian.Uint16(buf[pos+2 : pos+4])
		ustat := buf[pos+8]
		uar := binary.LittleEndian.Uint16(buf[pos+14 : pos+16])
		ufdStart := decodeLink(ulnk)
		entryPPN := uic.FromWord(ppnWord)

		if ustat&usUFD != 0 {
			match := (ppn.Group == uic.AnyGroup || ppn.Group == entryPPN.Group) &&
				(ppn.User == uic.AnyUser || ppn.User == entryPPN.User)
			if match {
				entries, err := fs.readUFDNameEntries(ufdStart, int(uar), entryPPN)
				if err == nil {
					out = append(out, entries...)
				}
			}
		}
		link = ufdStart
	}
	return out, nil
}

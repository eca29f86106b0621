package os8

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

// writeSegment serializes seg back to its block, re-deriving each entry's
// on-disk word offset as it goes.
func (fs *FS) writeSegment(seg *segment) error {
	words := make([]uint16, os8WordsPerBlock)
	words[0] = uint16(seg.next)
	words[1] = uint16(seg.extraWords)
	words[2] = uint16(seg.startBlock)
	pos := headerWords
	entryWords := entryBaseWords + seg.extraWords
	for _, e := range seg.entries {
		if pos+entryWords > len(words) {
			return filesystem.NewError(filesystem.NoSpace, "write_segment", "", errors.New("directory segment full"))
		}
		e.segBlock = seg.block
		e.entryIndex = pos
		if e.isEmpty {
			words[pos] = 0
			words[pos+1] = encodeLength(e.length)
			pos += 2
			continue
		}
		w0, w1, w2 := nameWords(e.filename, e.extension)
		words[pos] = w0
		words[pos+1] = w1
		words[pos+2] = w2
		words[pos+3] = encodeLength(e.length)
		if seg.extraWords > 0 {
			words[pos+4] = encoding.OS8EncodeDate(e.date)
		}
		pos += entryWords
	}
	return fs.writeWordBlock(seg.block, words)
}

// CreateFile finds the first free hole at least blocks long, splitting it if
// larger, and writes a new filled entry in its place.
func (fs *FS) CreateFile(fullPath string, blocks int, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	if fs.readOnly {
		return nil, filesystem.NewError(filesystem.ReadOnly, "create_file", fullPath, nil)
	}
	if existing, err := fs.GetFileEntry(fullPath); err == nil {
		if err := fs.Delete(existing); err != nil {
			return nil, err
		}
	}
	name, ext := filesystem.SplitNameExt(strings.ToUpper(fullPath), false)

	segs, err := fs.readDirectory()
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		for i, e := range seg.entries {
			if !e.isEmpty || e.length < blocks {
				continue
			}
			newEntry := &dirEntry{filename: name, extension: ext, length: blocks, startBlock: e.startBlock, date: creationDate}
			if e.length == blocks {
				seg.entries[i] = newEntry
			} else {
				remaining := &dirEntry{isEmpty: true, length: e.length - blocks, startBlock: e.startBlock + blocks}
				out := make([]*dirEntry, 0, len(seg.entries)+1)
				out = append(out, seg.entries[:i]...)
				out = append(out, newEntry, remaining)
				out = append(out, seg.entries[i+1:]...)
				seg.entries = out
			}
			if err := fs.writeSegment(seg); err != nil {
				return nil, err
			}
			return &Entry{fs: fs, e: newEntry}, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NoSpace, "create_file", fullPath, nil)
}

func (fs *FS) CreateDirectory(fullPath string, options map[string]string) (filesystem.Entry, error) {
	return nil, filesystem.NewError(filesystem.ReadOnly, "create_directory", fullPath, errors.New("OS/8 has no subdirectories"))
}

func (fs *FS) WriteBytes(fullPath string, content []byte, creationDate time.Time, fileType string) (filesystem.Entry, error) {
	blocks := (len(content) + storage.BlockSize - 1) / storage.BlockSize
	if blocks == 0 {
		blocks = 1
	}
	padded := make([]byte, blocks*storage.BlockSize)
	copy(padded, content)

	entry, err := fs.CreateFile(fullPath, blocks, creationDate, fileType)
	if err != nil {
		return nil, err
	}
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	if err := handle.WriteBlock(padded, 0, blocks); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete turns a filled entry back into a hole, merging with an immediately
// adjacent hole in the same segment when present.
func (fs *FS) Delete(entry filesystem.Entry) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "delete", entry.FullPath(), nil)
	}
	en, ok := entry.(*Entry)
	if !ok {
		return filesystem.NewError(filesystem.Invalid, "delete", entry.FullPath(), nil)
	}
	segs, err := fs.readDirectory()
	if err != nil {
		return err
	}
	for _, seg := range segs {
		if seg.block != en.e.segBlock {
			continue
		}
		for i, e := range seg.entries {
			if e.entryIndex != en.e.entryIndex {
				continue
			}
			seg.entries[i] = &dirEntry{isEmpty: true, length: e.length, startBlock: e.startBlock}
			if i+1 < len(seg.entries) && seg.entries[i+1].isEmpty {
				seg.entries[i].length += seg.entries[i+1].length
				seg.entries = append(seg.entries[:i+1], seg.entries[i+2:]...)
			}
			if i > 0 && seg.entries[i-1].isEmpty {
				seg.entries[i-1].length += seg.entries[i].length
				seg.entries = append(seg.entries[:i], seg.entries[i+1:]...)
			}
			return fs.writeSegment(seg)
		}
	}
	return filesystem.NewError(filesystem.NotFound, "delete", entry.FullPath(), nil)
}

// Initialize writes a single directory segment describing every block after
// the segment's own block as one free hole.
func (fs *FS) Initialize(options map[string]string) error {
	if fs.readOnly {
		return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
	}
	dataStart := dirStartBlock + 1
	seg := &segment{
		block:      dirStartBlock,
		next:       0,
		extraWords: 1,
		startBlock: dataStart,
		entries:    []*dirEntry{{isEmpty: true, length: fs.numBlocks - dataStart, startBlock: dataStart}},
	}
	return fs.writeSegment(seg)
}

// Package nova implements Data General's RDOS/DOS filesystem: a random file
// (SYS.DR) of fixed-size User File Descriptor blocks addressed by a
// filename-hash probe, a contiguous bitmap file (MAP.DR) for block
// allocation, and three file organizations (random/indexed, contiguous, and
// sequential/linked), per §3 "Nova RDOS".
package nova

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/pkg/errors"

	"xferx/encoding"
	"xferx/filesystem"
	"xferx/storage"
)

const (
	diskIDBlock = 3 // disk information block
	sysDrBlock  = 6 // first index block of SYS.DR before SYS.DR's own entry is read
	mapDrBlock  = 15

	scppa = 6 // primary partition base address; blocks below this are never allocatable

	ufdEntrySize = 36 // bytes per User File Descriptor entry

	fileNameLength = 10
	fileExtLength  = 2

	indexEntries              = storage.BlockSize/2 - 1 // block addresses per random-file index block
	sequentialBlockSize       = storage.BlockSize - 2    // payload bytes per sequential block
	sequentialBlockSizeLarge  = storage.BlockSize - 4    // payload bytes per sequential block, double addressing
)

// File attribute bits, RDOS System Reference pg. 61.
const (
	atWP   = 1 << 0  // write protected
	atPER  = 1 << 1  // permanent: cannot be deleted or renamed
	atRAN  = 1 << 2  // random (indexed) file
	atCON  = 1 << 3  // contiguous file
	atUS2  = 1 << 5  // user-defined 2
	atUS1  = 1 << 6  // user-defined 1
	atNRS  = 1 << 8  // no resolution allowed
	atRES  = 1 << 9  // link resolution file
	atDIR  = 1 << 10 // directory
	atPAR  = 1 << 11 // disk partition
	atLNK  = 1 << 12 // link entry
	atSAV  = 1 << 13 // save file (core image)
	atCHA  = 1 << 14 // attribute protected
	atRP   = 1 << 15 // read protected
)

// Disk Information Block characteristics bits.
const (
	chDOBL = 1 << 15 // double addressing required
	chTOPL = 1 << 14 // top-loader (dual-platter) disk subsystem
)

// File organizations.
const (
	RandomFileType     = 0
	ContiguousFileType = 1
	SequentialFileType = 2
)

var fileTypeNames = map[int]string{
	RandomFileType:     "RANDOM",
	ContiguousFileType: "CONTIGUOUS",
	SequentialFileType: "SEQUENTIAL",
}

// FileTypeID maps a type name back to its organization id, defaulting to
// RandomFileType when name is empty.
func FileTypeID(name string) int {
	if name == "" {
		return RandomFileType
	}
	up := strings.ToUpper(name)
	for id, s := range fileTypeNames {
		if s == up {
			return id
		}
	}
	return RandomFileType
}

// swapWords byte-swaps every 16-bit word in buf in place and returns it,
// mirroring the big/little-endian flip some RDOS images are stored with.
func swapWords(buf []byte) []byte {
	out := make([]byte, len(buf))
	n := len(buf) / 2
	for i := 0; i < n; i++ {
		out[2*i] = buf[2*i+1]
		out[2*i+1] = buf[2*i]
	}
	if len(buf)%2 == 1 {
		out[len(out)-1] = buf[len(buf)-1]
	}
	return out
}

// asciiToWords packs an upper-cased name into length word-pairs, storing two
// characters per 16-bit word with the RDOS byte order (high byte first
// character, matching ascii_to_bytes+swap_bytes in the reference source).
func asciiToWords(s string, length int) []uint16 {
	b := make([]byte, length)
	copy(b, []byte(strings.ToUpper(s)))
	b = swapWords(b)
	words := make([]uint16, length/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(b[2*i : 2*i+2])
	}
	return words
}

// wordsToASCII is the inverse of asciiToWords.
func wordsToASCII(words []uint16) string {
	b := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(b[2*i:2*i+2], w)
	}
	b = swapWords(b)
	return strings.TrimRight(string(b), "\x00 ")
}

// filenameHash is RDOS's System Directory probe key: sum each name/extension
// byte weighted by position parity (odd positions weigh 0o400), reduce
// modulo 0xFFFF, then modulo the directory's frame size.
func filenameHash(name, ext string, frameSize int) int {
	sum := 0
	for i, b := range asciiToWordsBytes(name, fileNameLength) {
		if i%2 == 1 {
			sum += int(b) * 0o400
		} else {
			sum += int(b)
		}
	}
	for i, b := range asciiToWordsBytes(ext, fileExtLength) {
		if i%2 == 1 {
			sum += int(b) * 0o400
		} else {
			sum += int(b)
		}
	}
	frame := frameSize
	if frame <= 0 {
		frame = 1
	}
	return (sum % 0xFFFF) % frame
}

// asciiToWordsBytes returns the swapped byte sequence filenameHash sums
// over, matching ascii_to_bytes(name) in the reference before word-packing.
func asciiToWordsBytes(s string, length int) []byte {
	b := make([]byte, length)
	copy(b, []byte(strings.ToUpper(s)))
	return swapWords(b)
}

// canonicalName upper-cases and strips non-alphanumeric/'$' characters,
// truncating to the RDOS 10.2 name/extension limits.
func canonicalName(basename string) (name, ext string) {
	filter := func(s string) string {
		var b strings.Builder
		for _, r := range strings.ToUpper(s) {
			if r == '$' || (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	base := basename
	if idx := strings.IndexByte(basename, '.'); idx >= 0 {
		name = filter(basename[:idx])
		ext = filter(basename[idx+1:])
	} else {
		name = filter(base)
	}
	if len(name) > fileNameLength {
		name = name[:fileNameLength]
	}
	if len(ext) > fileExtLength {
		ext = ext[:fileExtLength]
	}
	return name, ext
}

// ufd is one User File Descriptor: a directory entry, link, partition, or
// subdirectory. Word layout per RDOS System Reference pg. 25.
type ufd struct {
	name, ext       string
	attributes      int
	linkAttributes  int
	lastBlockNumber int // 0-based index of last block
	bytesInLast     int
	address         int // first/index block, or link-less entries' UFD address
	lastAccessDate  uint16
	lastModDate     uint16
	lastModTime     uint16
	var1, var2      uint16
	useCount        uint16
	deviceCode      uint16
	target          string // ":"-free "DIR:NAME.EXT" for link entries

	parent *ufd // nil at the root System Directory

	sysDirBlock int // block holding this entry
	entryOffset int // byte offset of this entry within sysDirBlock
}

func (e *ufd) isEmpty() bool       { return e.name == "" && e.ext == "" }
func (e *ufd) isRandom() bool      { return e.attributes&atRAN != 0 }
func (e *ufd) isContiguous() bool  { return e.attributes&atCON != 0 }
func (e *ufd) isLink() bool        { return e.attributes&atLNK != 0 }
func (e *ufd) isDirectory() bool   { return e.attributes&atDIR != 0 }
func (e *ufd) isPartition() bool   { return e.attributes&atPAR != 0 }
func (e *ufd) isSequential() bool  { return !e.isRandom() && !e.isContiguous() && !e.isLink() }

func (e *ufd) basename() string {
	if e.ext == "" {
		return e.name
	}
	return e.name + "." + e.ext
}

func (e *ufd) fullname() string {
	if e.parent != nil {
		return e.parent.fullname() + "/" + e.basename()
	}
	return e.basename()
}

func (e *ufd) length() int {
	if e.bytesInLast == 0 {
		return e.lastBlockNumber
	}
	return e.lastBlockNumber + 1
}

func (e *ufd) size() int64 {
	return int64(e.lastBlockNumber)*storage.BlockSize + int64(e.bytesInLast)
}

func (e *ufd) creationDate() time.Time {
	return encoding.RDOSDecodeDateTime(e.lastModDate, e.lastModTime)
}

func (e *ufd) filenameHash(frameSize int) int {
	if e.isEmpty() {
		return 0
	}
	return filenameHash(e.name, e.ext, frameSize)
}

func readUFD(buf []byte, pos int, parent *ufd, sysDirBlock int) *ufd {
	e := &ufd{parent: parent, sysDirBlock: sysDirBlock, entryOffset: pos}
	nameWords := []uint16{
		binary.LittleEndian.Uint16(buf[pos : pos+2]),
		binary.LittleEndian.Uint16(buf[pos+2 : pos+4]),
		binary.LittleEndian.Uint16(buf[pos+4 : pos+6]),
		binary.LittleEndian.Uint16(buf[pos+6 : pos+8]),
		binary.LittleEndian.Uint16(buf[pos+8 : pos+10]),
	}
	extWords := []uint16{binary.LittleEndian.Uint16(buf[pos+10 : pos+12])}
	attributes := int(binary.LittleEndian.Uint16(buf[pos+12 : pos+14]))
	if buf[pos] == 0 && buf[pos+1] == 0 {
		e.name, e.ext = "", ""
	} else {
		e.name = wordsToASCII(nameWords)
		e.ext = wordsToASCII(extWords)
	}
	e.attributes = attributes
	if e.isLink() {
		linkDir := wordsToASCII([]uint16{
			binary.LittleEndian.Uint16(buf[pos+14 : pos+16]),
			binary.LittleEndian.Uint16(buf[pos+16 : pos+18]),
			binary.LittleEndian.Uint16(buf[pos+18 : pos+20]),
			binary.LittleEndian.Uint16(buf[pos+20 : pos+22]),
			binary.LittleEndian.Uint16(buf[pos+22 : pos+24]),
		})
		linkName := wordsToASCII([]uint16{
			binary.LittleEndian.Uint16(buf[pos+24 : pos+26]),
			binary.LittleEndian.Uint16(buf[pos+26 : pos+28]),
			binary.LittleEndian.Uint16(buf[pos+28 : pos+30]),
			binary.LittleEndian.Uint16(buf[pos+30 : pos+32]),
			binary.LittleEndian.Uint16(buf[pos+32 : pos+34]),
		})
		linkExt := wordsToASCII([]uint16{binary.LittleEndian.Uint16(buf[pos+34 : pos+36])})
		if linkDir != "" {
			e.target = linkDir + ":" + linkName
		} else {
			e.target = linkName
		}
		if linkExt != "" {
			e.target += "." + linkExt
		}
		return e
	}
	e.linkAttributes = int(binary.LittleEndian.Uint16(buf[pos+14 : pos+16]))
	e.lastBlockNumber = int(binary.LittleEndian.Uint16(buf[pos+16 : pos+18]))
	e.bytesInLast = int(binary.LittleEndian.Uint16(buf[pos+18 : pos+20]))
	e.address = int(binary.LittleEndian.Uint16(buf[pos+20 : pos+22]))
	e.lastAccessDate = binary.LittleEndian.Uint16(buf[pos+22 : pos+24])
	e.lastModDate = binary.LittleEndian.Uint16(buf[pos+24 : pos+26])
	e.lastModTime = binary.LittleEndian.Uint16(buf[pos+26 : pos+28])
	e.var1 = binary.LittleEndian.Uint16(buf[pos+28 : pos+30])
	e.var2 = binary.LittleEndian.Uint16(buf[pos+30 : pos+32])
	e.useCount = binary.LittleEndian.Uint16(buf[pos+32 : pos+34])
	e.deviceCode = binary.LittleEndian.Uint16(buf[pos+34 : pos+36])
	return e
}

func (e *ufd) writeTo(buf []byte) {
	pos := e.entryOffset
	nameWords := asciiToWords(e.name, fileNameLength)
	extWords := asciiToWords(e.ext, fileExtLength)
	for i, w := range nameWords {
		binary.LittleEndian.PutUint16(buf[pos+2*i:pos+2*i+2], w)
	}
	binary.LittleEndian.PutUint16(buf[pos+10:pos+12], extWords[0])
	binary.LittleEndian.PutUint16(buf[pos+12:pos+14], uint16(e.attributes))
	if e.isLink() {
		dir, name := "", e.target
		if idx := strings.IndexByte(e.target, ':'); idx >= 0 {
			dir, name = e.target[:idx], e.target[idx+1:]
		}
		ext := ""
		if idx := strings.IndexByte(name, '.'); idx >= 0 {
			name, ext = name[:idx], name[idx+1:]
		}
		dirWords := asciiToWords(dir, fileNameLength)
		nameWords2 := asciiToWords(name, fileNameLength)
		extWords2 := asciiToWords(ext, fileExtLength)
		for i, w := range dirWords {
			binary.LittleEndian.PutUint16(buf[pos+14+2*i:pos+14+2*i+2], w)
		}
		for i, w := range nameWords2 {
			binary.LittleEndian.PutUint16(buf[pos+24+2*i:pos+24+2*i+2], w)
		}
		binary.LittleEndian.PutUint16(buf[pos+34:pos+36], extWords2[0])
		return
	}
	binary.LittleEndian.PutUint16(buf[pos+14:pos+16], uint16(e.linkAttributes))
	binary.LittleEndian.PutUint16(buf[pos+16:pos+18], uint16(e.lastBlockNumber))
	binary.LittleEndian.PutUint16(buf[pos+18:pos+20], uint16(e.bytesInLast))
	binary.LittleEndian.PutUint16(buf[pos+20:pos+22], uint16(e.address))
	binary.LittleEndian.PutUint16(buf[pos+22:pos+24], e.lastAccessDate)
	binary.LittleEndian.PutUint16(buf[pos+24:pos+26], e.lastModDate)
	binary.LittleEndian.PutUint16(buf[pos+26:pos+28], e.lastModTime)
	binary.LittleEndian.PutUint16(buf[pos+28:pos+30], e.var1)
	binary.LittleEndian.PutUint16(buf[pos+30:pos+32], e.var2)
	binary.LittleEndian.PutUint16(buf[pos+32:pos+34], e.useCount)
	binary.LittleEndian.PutUint16(buf[pos+34:pos+36], e.deviceCode)
}

// FS is a mounted Nova RDOS/DOS volume.
type FS struct {
	device           *storage.BlockDevice
	swap             bool // disk stored word-swapped; flipped when revision > 16
	doubleAddressing bool
	topLoader        bool
	frameSize        int
	heads            int
	sectorsPerTrack  int
	pwd              []*ufd // path of directory/partition UFDs from root to cwd
	readOnly         bool
}

var _ filesystem.Filesystem = (*FS)(nil)

// physicalBlock applies the top-loader head interleave, per §13's Open
// Question decision: only active when heads/sectorsPerTrack are known and
// the disk characteristics flag it.
// TODO check if this condition is correct
func (fs *FS) physicalBlock(logical int) int {
	if fs.heads == 0 || fs.sectorsPerTrack == 0 || !fs.topLoader {
		return logical
	}
	h := fs.heads * fs.sectorsPerTrack
	return logical + (logical/h)*h
}

func (fs *FS) readBlock(block int) ([]byte, error) {
	buf, err := fs.device.ReadBlock(fs.physicalBlock(block))
	if err != nil {
		return nil, err
	}
	if fs.swap {
		buf = swapWords(buf)
	}
	return buf, nil
}

func (fs *FS) writeBlock(block int, buf []byte) error {
	if fs.swap {
		buf = swapWords(buf)
	}
	return fs.device.WriteBlock(fs.physicalBlock(block), buf)
}

func (fs *FS) readWords(block int) ([]uint16, error) {
	buf, err := fs.readBlock(block)
	if err != nil {
		return nil, err
	}
	words := make([]uint16, storage.BlockSize/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(buf[2*i : 2*i+2])
	}
	return words, nil
}

func (fs *FS) writeWords(block int, words []uint16) error {
	buf := make([]byte, storage.BlockSize)
	for i, w := range words {
		binary.LittleEndian.PutUint16(buf[2*i:2*i+2], w)
	}
	return fs.writeBlock(block, buf)
}

type diskInfo struct {
	revision, checksum           uint16
	heads, sectors               uint16
	blocks                       int
	frameSize, characteristics   uint16
}

func readDiskInfo(fs *FS) (*diskInfo, error) {
	words, err := fs.readWords(diskIDBlock)
	if err != nil {
		return nil, err
	}
	blocksHigh, blocksLow := words[4], words[5]
	return &diskInfo{
		revision:        words[0],
		checksum:        words[1],
		heads:           words[2],
		sectors:         words[3],
		blocks:          (int(blocksHigh) << 16) + int(blocksLow) + scppa,
		frameSize:       words[6],
		characteristics: words[7],
	}, nil
}

// Mount reads the Disk Information Block, detecting word-swapped images by
// an implausible revision number, and verifies MAP.DR is present unless
// strict is false.
func Mount(device *storage.BlockDevice, strict bool) (*FS, error) {
	fs := &FS{device: device, readOnly: device.ReadOnly(), frameSize: 1}
	info, err := readDiskInfo(fs)
	if err != nil {
		return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
	}
	if info.revision > 16 {
		fs.swap = true
		info, err = readDiskInfo(fs)
		if err != nil {
			return nil, filesystem.NewError(filesystem.EIO, "mount", "", err)
		}
	}
	fs.doubleAddressing = info.characteristics&chDOBL != 0
	fs.topLoader = info.characteristics&chTOPL != 0
	fs.frameSize = int(info.frameSize)
	if fs.frameSize == 0 {
		fs.frameSize = 1
	}
	fs.heads = int(info.heads)
	fs.sectorsPerTrack = int(info.sectors)

	if strict {
		found := false
		entries, err := fs.readDirEntries(nil)
		if err == nil {
			for _, e := range entries {
				if e.basename() == mapDrName {
					found = true
					break
				}
			}
		}
		if !found {
			return nil, filesystem.NewError(filesystem.Corrupt, "mount", "", errors.New("MAP.DR not found"))
		}
	}
	return fs, nil
}

const (
	sysDrName = "SYS.DR"
	mapDrName = "MAP.DR"
)

// sysDirBlocks returns the System Directory Block chain for dir (nil for the
// root), walking the random-file index chain rooted at dir.address, or at
// sysDrBlock before SYS.DR's own UFD has been read.
func (fs *FS) sysDirBlocks(dir *ufd) ([]int, error) {
	indexBlock := sysDrBlock
	if dir != nil {
		indexBlock = dir.address
	}
	var blocks []int
	for indexBlock != 0 {
		words, err := fs.readWords(indexBlock)
		if err != nil {
			return nil, err
		}
		next := words[len(words)-1]
		for _, b := range words[:len(words)-1] {
			if b != 0 {
				blocks = append(blocks, int(b))
			}
		}
		indexBlock = int(next)
	}
	return blocks, nil
}

// readDirEntries lists every UFD entry directly inside dir (nil for root).
func (fs *FS) readDirEntries(dir *ufd) ([]*ufd, error) {
	blocks, err := fs.sysDirBlocks(dir)
	if err != nil {
		return nil, err
	}
	var out []*ufd
	for _, block := range blocks {
		buf, err := fs.readBlock(block)
		if err != nil {
			return nil, err
		}
		for pos := 2; pos+ufdEntrySize <= storage.BlockSize-4; pos += ufdEntrySize {
			e := readUFD(buf, pos, dir, block)
			if !e.isEmpty() {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (fs *FS) cwd() *ufd {
	if len(fs.pwd) == 0 {
		return nil
	}
	return fs.pwd[len(fs.pwd)-1]
}

func (fs *FS) getUFD(dir *ufd, basename string) (*ufd, error) {
	name, ext := canonicalName(basename)
	target := name
	if ext != "" {
		target += "." + ext
	}
	entries, err := fs.readDirEntries(dir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.basename() == target {
			return e, nil
		}
	}
	return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", basename, nil)
}

// GetFileEntry resolves a "/"-separated path against the current directory;
// an absolute path (leading "/") resolves from the root System Directory.
func (fs *FS) GetFileEntry(fullPath string) (filesystem.Entry, error) {
	e, err := fs.resolve(fullPath)
	if err != nil {
		return nil, err
	}
	return &Entry{fs: fs, e: e}, nil
}

func (fs *FS) resolve(fullPath string) (*ufd, error) {
	parts := strings.Split(fullPath, "/")
	var dir *ufd
	start := 0
	if strings.HasPrefix(fullPath, "/") {
		dir = nil
	} else {
		dir = fs.cwd()
	}
	var cur *ufd = dir
	for i := start; i < len(parts); i++ {
		part := parts[i]
		if part == "" || part == "." {
			continue
		}
		if cur != nil && !cur.isDirectory() && !cur.isPartition() {
			return nil, filesystem.NewError(filesystem.NotDirectory, "get_file_entry", fullPath, nil)
		}
		next, err := fs.getUFD(cur, part)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	if cur == nil {
		return nil, filesystem.NewError(filesystem.NotFound, "get_file_entry", fullPath, nil)
	}
	return cur, nil
}

func (fs *FS) isDir(fullPath string) bool {
	e, err := fs.resolve(fullPath)
	if err != nil {
		return false
	}
	return e.isDirectory() || e.isPartition()
}

func (fs *FS) EntriesList() ([]filesystem.Entry, error) {
	entries, err := fs.readDirEntries(fs.cwd())
	if err != nil {
		return nil, err
	}
	out := make([]filesystem.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, &Entry{fs: fs, e: e})
	}
	return out, nil
}

func (fs *FS) FilterEntriesList(pattern string, includeAll, expand, wildcard bool) ([]filesystem.Entry, error) {
	if pattern == "" && expand {
		pattern = "*"
	}
	dir := fs.cwd()
	glob := strings.ToUpper(pattern)
	if fs.isDir(pattern) && expand {
		target, err := fs.resolve(pattern)
		if err != nil {
			return nil, err
		}
		dir = target
		glob = "*"
	}
	entries, err := fs.readDirEntries(dir)
	if err != nil {
		return nil, err
	}
	var out []filesystem.Entry
	for _, e := range entries {
		if filesystem.MatchGlob(glob, e.basename()) {
			out = append(out, &Entry{fs: fs, e: e})
		}
	}
	return out, nil
}

func (fs *FS) BlockSize() int   { return storage.BlockSize }
func (fs *FS) TotalBlocks() int { return fs.device.NumBlocks() }
func (fs *FS) FreeBlocks() int {
	bm, err := fs.readBitmap(fs.cwd())
	if err != nil {
		return 0
	}
	return bm.free()
}
func (fs *FS) ReadOnly() bool { return fs.readOnly }

func (fs *FS) Chdir(path string) (bool, error) {
	if !fs.isDir(path) {
		return false, nil
	}
	if strings.Contains(strings.ToUpper(path), sysDrName) {
		return false, nil
	}
	e, err := fs.resolve(path)
	if err != nil {
		return false, nil
	}
	if strings.HasPrefix(path, "/") {
		fs.pwd = nil
	}
	if e != nil {
		fs.pwd = append(fs.pwd, e)
	}
	return true, nil
}

func (fs *FS) GetPwd() string {
	if len(fs.pwd) == 0 {
		return "/"
	}
	return "/" + fs.cwd().fullname()
}

func (fs *FS) GetSize() int64 {
	return int64(fs.device.NumBlocks()) * storage.BlockSize
}

func (fs *FS) GetTypes() []string {
	return []string{"RANDOM", "CONTIGUOUS", "SEQUENTIAL"}
}

// Initialize is unsupported: RDOS volumes are built by the host's own system
// generation tools, matching the reference implementation's own EROFS stance.
func (fs *FS) Initialize(options map[string]string) error {
	return filesystem.NewError(filesystem.ReadOnly, "initialize", "", nil)
}

func (fs *FS) Close() error { return fs.device.Close() }

// Entry adapts a *ufd to filesystem.Entry.
type Entry struct {
	fs *FS
	e  *ufd
}

var _ filesystem.Entry = (*Entry)(nil)

func (en *Entry) Name() string             { return en.e.basename() }
func (en *Entry) FullPath() string         { return en.e.fullname() }
func (en *Entry) Length() int              { return en.e.length() }
func (en *Entry) Size() int64              { return en.e.size() }
func (en *Entry) CreationDate() time.Time  { return en.e.creationDate() }
func (en *Entry) IsEmpty() bool            { return en.e.isEmpty() }
func (en *Entry) IsDirectory() bool        { return en.e.isDirectory() || en.e.isPartition() }

func (en *Entry) FileType() string {
	switch {
	case en.e.isRandom():
		return fileTypeNames[RandomFileType]
	case en.e.isContiguous():
		return fileTypeNames[ContiguousFileType]
	default:
		return fileTypeNames[SequentialFileType]
	}
}

func (fs *FS) ReadBytes(entry filesystem.Entry) ([]byte, error) {
	handle, err := fs.Open(entry, filesystem.ModeImage)
	if err != nil {
		return nil, err
	}
	defer handle.Close()
	return handle.ReadBlock(0, entry.Length())
}

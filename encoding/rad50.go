// Package encoding implements the L2 layer: the small, format-specific
// codecs shared by several filesystem drivers (RAD-50, Pascal strings,
// per-format date encodings).
package encoding

import (
	"strings"

	"github.com/pkg/errors"
)

// RAD50Alphabet is the 40-symbol RAD-50 alphabet, in code order: space,
// A-Z, $, ., *, 0-9.
const RAD50Alphabet = " ABCDEFGHIJKLMNOPQRSTUVWXYZ$.*0123456789"

// ASCIIToRAD50 encodes a three-character string into a 16-bit RAD-50 word.
// Characters outside the RAD-50 alphabet are treated as a space, matching
// the canonicalization rule in the specification.
func ASCIIToRAD50(s string) uint16 {
	for len(s) < 3 {
		s += " "
	}
	var v uint16
	for i := 0; i < 3; i++ {
		c := rad50Index(s[i])
		v = v*40 + uint16(c)
	}
	return v
}

// RAD50ToASCII decodes a 16-bit RAD-50 word back into three characters.
func RAD50ToASCII(word uint16) string {
	var out [3]byte
	v := word
	for i := 2; i >= 0; i-- {
		out[i] = RAD50Alphabet[v%40]
		v /= 40
	}
	return string(out[:])
}

func rad50Index(c byte) int {
	idx := strings.IndexByte(RAD50Alphabet, upperByte(c))
	if idx < 0 {
		return 0 // space
	}
	return idx
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// RAD50NameExtToWords encodes a 6.3 filename (name, extension) into three
// RAD-50 words: two for the 6-character name, one for the 3-character
// extension, as used by RT-11, DOS-11, and RSTS/E directories.
func RAD50NameExtToWords(name, ext string) [3]uint16 {
	name = padTrunc(strings.ToUpper(name), 6)
	ext = padTrunc(strings.ToUpper(ext), 3)
	return [3]uint16{
		ASCIIToRAD50(name[0:3]),
		ASCIIToRAD50(name[3:6]),
		ASCIIToRAD50(ext),
	}
}

// RAD50WordsToNameExt decodes three RAD-50 words into trimmed name/extension
// strings.
func RAD50WordsToNameExt(words [3]uint16) (name, ext string) {
	name = RAD50ToASCII(words[0]) + RAD50ToASCII(words[1])
	ext = RAD50ToASCII(words[2])
	return strings.TrimRight(name, " "), strings.TrimRight(ext, " ")
}

// OS8NameExtToWords encodes an OS/8 filename cut to 4 name chars + 2
// extension chars into two RAD-50 name words and one RAD-50 extension word, the same
// representation used by RT-11 but truncated to OS/8's shorter fields.
func OS8NameExtToWords(name, ext string) [3]uint16 {
	return RAD50NameExtToWords(padTrunc(strings.ToUpper(name), 4)+"  ", padTrunc(strings.ToUpper(ext), 2)+" ")
}

func padTrunc(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// ValidateRAD50Char reports whether c belongs to the RAD-50 alphabet.
func ValidateRAD50Char(c byte) bool {
	return strings.IndexByte(RAD50Alphabet, upperByte(c)) >= 0
}

// ErrInvalidRAD50 is returned by strict decoders that reject out-of-range words.
var ErrInvalidRAD50 = errors.New("value is not a valid RAD-50 word")

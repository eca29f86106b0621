package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestASCIIToRAD50RoundTrip(t *testing.T) {
	for _, s := range []string{"ABC", "FOO", "   ", "0.$", "XYZ"} {
		word := ASCIIToRAD50(s)
		require.Equal(t, s, RAD50ToASCII(word))
	}
}

func TestASCIIToRAD50PadsShortStrings(t *testing.T) {
	require.Equal(t, ASCIIToRAD50("A  "), ASCIIToRAD50("A"))
}

func TestASCIIToRAD50LowercaseFoldsToUpper(t *testing.T) {
	require.Equal(t, ASCIIToRAD50("abc"), ASCIIToRAD50("ABC"))
}

func TestASCIIToRAD50InvalidCharBecomesSpace(t *testing.T) {
	require.Equal(t, ASCIIToRAD50(" BC"), ASCIIToRAD50("#BC"))
}

func TestRAD50NameExtRoundTrip(t *testing.T) {
	words := RAD50NameExtToWords("FOOBAR", "TXT")
	name, ext := RAD50WordsToNameExt(words)
	require.Equal(t, "FOOBAR", name)
	require.Equal(t, "TXT", ext)
}

func TestRAD50NameExtTruncatesAndPads(t *testing.T) {
	words := RAD50NameExtToWords("AB", "C")
	name, ext := RAD50WordsToNameExt(words)
	require.Equal(t, "AB", name)
	require.Equal(t, "C", ext)
}

func TestOS8NameExtToWords(t *testing.T) {
	words := OS8NameExtToWords("FOO", "BR")
	name, ext := RAD50WordsToNameExt(words)
	require.Equal(t, "FOO", name)
	require.Equal(t, "BR", ext)
}

func TestValidateRAD50Char(t *testing.T) {
	require.True(t, ValidateRAD50Char('A'))
	require.True(t, ValidateRAD50Char('a'))
	require.True(t, ValidateRAD50Char('9'))
	require.True(t, ValidateRAD50Char('$'))
	require.False(t, ValidateRAD50Char('#'))
}

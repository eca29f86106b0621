package encoding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRT11DateRoundTrip(t *testing.T) {
	in := time.Date(1985, time.June, 15, 0, 0, 0, 0, time.UTC)
	word := RT11EncodeDate(in)
	out := RT11DecodeDate(word)
	require.True(t, in.Equal(out))
}

func TestRT11DateZeroWordIsZeroTime(t *testing.T) {
	require.True(t, RT11DecodeDate(0).IsZero())
}

func TestDOS11DateRoundTrip(t *testing.T) {
	in := time.Date(1975, time.March, 10, 0, 0, 0, 0, time.UTC)
	word := DOS11EncodeDate(in)
	out := DOS11DecodeDate(word)
	require.Equal(t, in.Year(), out.Year())
	require.Equal(t, in.YearDay(), out.YearDay())
}

func TestDOS11DateZeroWordIsZeroTime(t *testing.T) {
	require.True(t, DOS11DecodeDate(0).IsZero())
}

func TestProDOSDateTimeRoundTrip(t *testing.T) {
	in := time.Date(1991, time.December, 25, 13, 45, 0, 0, time.UTC)
	word := ProDOSEncodeDateTime(in)
	out := ProDOSDecodeDateTime(word)
	require.True(t, in.Equal(out))
}

func TestProDOSDateTimeY2KBoundary(t *testing.T) {
	in := time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC)
	out := ProDOSDecodeDateTime(ProDOSEncodeDateTime(in))
	require.True(t, in.Equal(out))
}

func TestPascalDateRoundTrip(t *testing.T) {
	in := time.Date(1986, time.April, 2, 0, 0, 0, 0, time.UTC)
	word := PascalEncodeDate(in)
	out := PascalDecodeDate(word)
	require.True(t, in.Equal(out))
}

func TestRDOSDateTimeRoundTrip(t *testing.T) {
	in := time.Date(1980, time.May, 20, 14, 30, 0, 0, time.UTC)
	days, hm := RDOSEncodeDateTime(in)
	out := RDOSDecodeDateTime(days, hm)
	require.Equal(t, in.Year(), out.Year())
	require.Equal(t, in.Month(), out.Month())
	require.Equal(t, in.Day(), out.Day())
	require.Equal(t, in.Hour(), out.Hour())
	require.Equal(t, in.Minute(), out.Minute())
}

func TestRDOSDateTimeZeroDaysIsZeroTime(t *testing.T) {
	require.True(t, RDOSDecodeDateTime(0, 0).IsZero())
}

func TestOS8DateRoundTrip(t *testing.T) {
	in := time.Date(1973, time.August, 9, 0, 0, 0, 0, time.UTC)
	word := OS8EncodeDate(in)
	out := OS8DecodeDate(word, 1973)
	require.True(t, in.Equal(out))
}

func TestTSS8DateRoundTrip(t *testing.T) {
	in := time.Date(1978, time.February, 14, 0, 0, 0, 0, time.UTC)
	word := TSS8EncodeDate(in)
	out := TSS8DecodeDate(word)
	require.True(t, in.Equal(out))
}

func TestUnixDateRoundTrip(t *testing.T) {
	in := time.Date(2001, time.September, 9, 1, 46, 40, 0, time.UTC)
	word := UnixEncodeDate(in)
	out := UnixDecodeDate(word)
	require.True(t, in.Equal(out))
}

func TestUnixDateZeroWordIsZeroTime(t *testing.T) {
	require.True(t, UnixDecodeDate(0).IsZero())
}

func TestFiles11DateRoundTrip(t *testing.T) {
	in := time.Date(1995, time.November, 3, 9, 8, 7, 0, time.UTC)
	date, clock := Files11EncodeDate(in)
	out, err := Files11DecodeDate(date, clock)
	require.NoError(t, err)
	require.True(t, in.Equal(out))
}

func TestFiles11DateRejectsShortInput(t *testing.T) {
	_, err := Files11DecodeDate("1", "")
	require.Error(t, err)
}

func TestFiles11DateRejectsUnknownMonth(t *testing.T) {
	_, err := Files11DecodeDate("01XXX95", "000000")
	require.Error(t, err)
}

package encoding

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// All date codecs operate on time.Time truncated to the precision the
// on-disk encoding actually carries (day, minute, or second) and round-trip
// exactly within that precision, per the testable properties in the
// specification.

// RT11EncodeDate packs a date into RT-11's 16-bit word: bits 0-4 year (mod 32
// since 1972), bits 5-9 day, bits 10-13 month, bits 14-15 age (the 32-year
// epoch the year counter has wrapped through).
func RT11EncodeDate(t time.Time) uint16 {
	age := (t.Year() - 1972) / 32
	year := (t.Year() - 1972) % 32
	if year < 0 {
		year += 32
	}
	if age < 0 {
		age = 0
	}
	if age > 3 {
		age = 3
	}
	return uint16(year&0x1F) | uint16(t.Day()&0x1F)<<5 | uint16(t.Month()&0xF)<<10 | uint16(age&0x3)<<14
}

// RT11DecodeDate unpacks an RT-11 date word.
func RT11DecodeDate(word uint16) time.Time {
	year := int(word & 0x1F)
	day := int((word >> 5) & 0x1F)
	month := int((word >> 10) & 0xF)
	age := int((word >> 14) & 0x3)
	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(1972+age*32+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DOS11EncodeDate packs a date into DOS-11's 15-bit (year-1970)*1000+yday form.
func DOS11EncodeDate(t time.Time) uint16 {
	return uint16((t.Year()-1970)*1000 + t.YearDay())
}

func DOS11DecodeDate(word uint16) time.Time {
	if word == 0 {
		return time.Time{}
	}
	year := 1970 + int(word)/1000
	yday := int(word) % 1000
	if yday == 0 {
		yday = 1
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, yday-1)
}

// ProDOSEncodeDateTime packs a date+time into ProDOS's 32-bit word: year(7
// bits, 1900-base, flips to 2000-base at year>=40) | month(4) | day(5) |
// hour(5) | minute(6), minute precision.
func ProDOSEncodeDateTime(t time.Time) uint32 {
	year := t.Year() - 1900
	if year >= 100 {
		year -= 100
	}
	date := uint16(year&0x7F)<<9 | uint16(t.Month()&0xF)<<5 | uint16(t.Day()&0x1F)
	timeWord := uint16(t.Hour()&0x1F)<<8 | uint16(t.Minute()&0x3F)
	return uint32(date) | uint32(timeWord)<<16
}

func ProDOSDecodeDateTime(word uint32) time.Time {
	date := uint16(word & 0xFFFF)
	timeWord := uint16(word >> 16)
	year := int(date>>9) & 0x7F
	month := int(date>>5) & 0xF
	day := int(date) & 0x1F
	hour := int(timeWord>>8) & 0x1F
	minute := int(timeWord) & 0x3F
	if month == 0 || day == 0 {
		return time.Time{}
	}
	if year < 40 {
		year += 2000
	} else {
		year += 1900
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
}

// PascalEncodeDate packs a date into Apple Pascal's 16-bit word: year(7,
// 1900-base flipping to 2000 at year>=80) | day(5) | month(4).
func PascalEncodeDate(t time.Time) uint16 {
	year := t.Year() - 1900
	if year >= 100 {
		year -= 100
	}
	return uint16(year&0x7F)<<9 | uint16(t.Day()&0x1F)<<4 | uint16(t.Month()&0xF)
}

func PascalDecodeDate(word uint16) time.Time {
	year := int(word>>9) & 0x7F
	day := int(word>>4) & 0x1F
	month := int(word) & 0xF
	if month == 0 || day == 0 {
		return time.Time{}
	}
	if year >= 80 {
		year += 1900
	} else {
		year += 2000
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

var rdosEpoch = time.Date(1967, time.December, 31, 0, 0, 0, 0, time.UTC)

// RDOSEncodeDateTime packs a date+time into Nova RDOS's two 16-bit words:
// days since 1967-12-31, and (hour<<8 | minute).
func RDOSEncodeDateTime(t time.Time) (uint16, uint16) {
	days := uint16(t.Sub(rdosEpoch).Hours() / 24)
	hm := uint16(t.Hour())<<8 | uint16(t.Minute())
	return days, hm
}

func RDOSDecodeDateTime(days, hm uint16) time.Time {
	if days == 0 {
		return time.Time{}
	}
	d := rdosEpoch.AddDate(0, 0, int(days))
	hour := int(hm>>8) & 0xFF
	minute := int(hm) & 0xFF
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
}

// OS8EncodeDate packs a date into OS/8's 12-bit word: year(3, 1970-base,
// wraps every 8 years) | day(5) | month(4).
func OS8EncodeDate(t time.Time) uint16 {
	year := (t.Year() - 1970) % 8
	if year < 0 {
		year += 8
	}
	return uint16(year&0x7)<<9 | uint16(t.Day()&0x1F)<<4 | uint16(t.Month()&0xF)
}

// OS8DecodeDate unpacks an OS/8 date word. epochGuess should be the
// approximate decade to resolve the 8-year wraparound against (e.g. the
// image's known creation era); if 0, the 1970-1977 window is assumed.
func OS8DecodeDate(word uint16, epochGuess int) time.Time {
	year := int(word>>9) & 0x7
	day := int(word>>4) & 0x1F
	month := int(word) & 0xF
	if month == 0 || day == 0 {
		return time.Time{}
	}
	base := epochGuess
	if base == 0 {
		base = 1970
	}
	// round base down to its own 8-year window start, then add the field
	windowStart := 1970 + ((base-1970)/8)*8
	return time.Date(windowStart+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// TSS8EncodeDate packs a date into TSS/8's single-word form:
// year*372 + (month-1)*31 + (day-1), 1974-base.
func TSS8EncodeDate(t time.Time) uint16 {
	year := t.Year() - 1974
	return uint16(year*372 + (int(t.Month())-1)*31 + (t.Day() - 1))
}

func TSS8DecodeDate(word uint16) time.Time {
	v := int(word)
	year := v / 372
	rem := v % 372
	month := rem/31 + 1
	day := rem%31 + 1
	return time.Date(1974+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// UnixEncodeDate packs a date+time into a 32-bit Unix epoch seconds value.
// The word-swap on disk required by some UNIX versions is a block-device
// concern (storage.BlockDevice.SetByteSwap), not this codec's.
func UnixEncodeDate(t time.Time) uint32 {
	return uint32(t.Unix())
}

func UnixDecodeDate(word uint32) time.Time {
	if word == 0 {
		return time.Time{}
	}
	return time.Unix(int64(word), 0).UTC()
}

var files11Months = [...]string{"JAN", "FEB", "MAR", "APR", "MAY", "JUN", "JUL", "AUG", "SEP", "OCT", "NOV", "DEC"}

// Files11EncodeDate formats a date+time as Files-11's ASCII "DDMMMYY"+"HHMMSS"
// pair.
func Files11EncodeDate(t time.Time) (date, clock string) {
	yy := t.Year() % 100
	date = fmt.Sprintf("%2d%s%02d", t.Day(), files11Months[t.Month()-1], yy)
	clock = fmt.Sprintf("%02d%02d%02d", t.Hour(), t.Minute(), t.Second())
	return date, clock
}

func Files11DecodeDate(date, clock string) (time.Time, error) {
	date = strings.TrimRight(date, " ")
	if len(date) < 7 {
		return time.Time{}, fmt.Errorf("short files-11 date %q", date)
	}
	day, err := strconv.Atoi(strings.TrimSpace(date[0:2]))
	if err != nil {
		return time.Time{}, err
	}
	monStr := strings.ToUpper(date[2:5])
	month := 0
	for i, m := range files11Months {
		if m == monStr {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return time.Time{}, fmt.Errorf("unknown month %q", monStr)
	}
	yy, err := strconv.Atoi(date[5:7])
	if err != nil {
		return time.Time{}, err
	}
	year := 1900 + yy
	if yy < 70 {
		year = 2000 + yy
	}

	hour, minute, second := 0, 0, 0
	clock = strings.TrimSpace(clock)
	if len(clock) >= 6 {
		hour, _ = strconv.Atoi(clock[0:2])
		minute, _ = strconv.Atoi(clock[2:4])
		second, _ = strconv.Atoi(clock[4:6])
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
}

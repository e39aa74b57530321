package zipp

import "time"

// MSDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s.
// See: https://learn.microsoft.com/en-us/windows/win32/api/winbase/nf-winbase-dosdatetimetofiletime
func MSDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		// date bits 0-4: day of month; 5-8: month; 9-15: years since 1980
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),

		// time bits 0-4: second/2; 5-10: minute; 11-15: hour
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0, // nanoseconds

		time.UTC,
	)
}

// TimeToMSDosTime converts t into its MS-DOS date and time encoding, clamping
// to the representable range (1980 through 2107, 2-second resolution).
func TimeToMSDosTime(t time.Time) (dosDate, dosTime uint16) {
	t = t.In(time.UTC)
	if y := t.Year(); y < 1980 {
		return 0x21, 0 // 1980-01-01 00:00:00
	} else if y > 2107 {
		return 0xff9f, 0xbf7d // 2107-12-31 23:59:58
	}

	dosDate = uint16(t.Day() + int(t.Month())<<5 + (t.Year()-1980)<<9)
	dosTime = uint16(t.Second()/2 + t.Minute()<<5 + t.Hour()<<11)
	return
}

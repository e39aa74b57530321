package zipp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMSDosTimeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		time time.Time
	}{
		{name: "epoch", time: time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{name: "even seconds", time: time.Date(2024, time.June, 15, 13, 37, 42, 0, time.UTC)},
		{name: "end of day", time: time.Date(1999, time.December, 31, 23, 59, 58, 0, time.UTC)},
		{name: "max", time: time.Date(2107, time.December, 31, 23, 59, 58, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dosDate, dosTime := TimeToMSDosTime(tt.time)
			assert.Equal(t, tt.time, MSDosTimeToTime(dosDate, dosTime))
		})
	}
}

func TestTimeToMSDosTime_Clamps(t *testing.T) {
	dosDate, dosTime := TimeToMSDosTime(time.Date(1969, time.July, 20, 20, 17, 0, 0, time.UTC))
	assert.Equal(t, time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC), MSDosTimeToTime(dosDate, dosTime))

	dosDate, dosTime = TimeToMSDosTime(time.Date(2222, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2107, time.December, 31, 23, 59, 58, 0, time.UTC), MSDosTimeToTime(dosDate, dosTime))
}

func TestTimeToMSDosTime_TruncatesOddSeconds(t *testing.T) {
	dosDate, dosTime := TimeToMSDosTime(time.Date(2024, time.June, 15, 13, 37, 43, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.June, 15, 13, 37, 42, 0, time.UTC), MSDosTimeToTime(dosDate, dosTime))
}

func TestTimeToMSDosTime_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	dosDate, dosTime := TimeToMSDosTime(time.Date(2024, time.June, 15, 7, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC), MSDosTimeToTime(dosDate, dosTime))
}

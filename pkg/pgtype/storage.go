package pgtype

import (
	"fmt"
	"time"
)

// Storage-discipline conversions per §4.2: date/time values are stored as
// INTEGER microseconds since epoch (days for DATE, microseconds-of-day for
// TIME), booleans as INTEGER 0/1, NUMERIC as canonical TEXT decimal.

const microsPerDay = int64(24 * 60 * 60 * 1_000_000)

// DateToDays converts a civil date to days-since-epoch for SQLite storage.
func DateToDays(t time.Time) int64 {
	utc := t.UTC()
	epoch := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	return int64(utc.Sub(epoch).Hours() / 24)
}

func DaysToDate(days int64) time.Time {
	return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(days))
}

// TimestampToMicros converts a timestamp to microseconds-since-epoch.
func TimestampToMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func MicrosToTimestamp(micros int64) time.Time {
	return time.UnixMicro(micros).UTC()
}

// TimeOfDayToMicros converts a wall-clock time to microseconds-of-day.
func TimeOfDayToMicros(t time.Time) int64 {
	return int64(t.Hour())*3_600_000_000 +
		int64(t.Minute())*60_000_000 +
		int64(t.Second())*1_000_000 +
		int64(t.Nanosecond())/1000
}

func MicrosToTimeOfDay(micros int64) time.Time {
	micros = micros % microsPerDay
	d := time.Duration(micros) * time.Microsecond
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(d)
}

// BoolToInt / IntToBool implement the INTEGER 0/1 storage discipline.
func BoolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func IntToBool(v int64) bool { return v != 0 }

// CanonicalNumericText rejects an empty NUMERIC literal and otherwise
// returns s unchanged; it does not trim, parse or normalize the text.
func CanonicalNumericText(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty numeric literal")
	}
	return s, nil
}

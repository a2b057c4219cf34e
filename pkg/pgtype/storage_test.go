package pgtype

import (
	"testing"
	"time"
)

func TestDateDaysRoundTrip(t *testing.T) {
	d := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	days := DateToDays(d)
	got := DaysToDate(days)
	if !got.Equal(d) {
		t.Fatalf("round trip mismatch: got %v want %v", got, d)
	}
}

func TestTimestampMicrosRoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 29, 12, 34, 56, 789000, time.UTC)
	micros := TimestampToMicros(ts)
	got := MicrosToTimestamp(micros)
	if !got.Equal(ts) {
		t.Fatalf("round trip mismatch: got %v want %v", got, ts)
	}
}

func TestBoolIntRoundTrip(t *testing.T) {
	if IntToBool(BoolToInt(true)) != true {
		t.Fatal("true round trip failed")
	}
	if IntToBool(BoolToInt(false)) != false {
		t.Fatal("false round trip failed")
	}
}

func TestRegistryLookup(t *testing.T) {
	ti, ok := LookupByName("numeric")
	if !ok {
		t.Fatal("numeric type missing from registry")
	}
	if ti.Storage != StorageText {
		t.Fatalf("numeric storage class = %v, want TEXT", ti.Storage)
	}
	if StorageFor(EnumBaseOID+1) != StorageText {
		t.Fatal("enum OIDs should store as TEXT")
	}
}

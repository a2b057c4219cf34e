package sqlitedb

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kqlite/kqlite-pg/pkg/catalog"
	"github.com/kqlite/kqlite-pg/pkg/decimal"
	"github.com/mattn/go-sqlite3"
	decimallib "github.com/shopspring/decimal"
)

// DriverName is the single registered database/sql driver name for this
// module. The teacher registers the same driver name twice, once in
// pkg/catalog and once in pkg/sqlite, with two different UDF sets and two
// different version() strings — collapsed here into one registration.
const DriverName = "kqlite-pg-sqlite3"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := registerScalarFuncs(conn); err != nil {
				return err
			}
			if err := decimal.RegisterFuncs(conn); err != nil {
				return err
			}
			return catalog.InitConnection(conn)
		},
	})
}

func dataDir() string {
	if d := os.Getenv("DATA_DIR"); d != "" {
		return d
	}
	return "."
}

func registerScalarFuncs(conn *sqlite3.SQLiteConn) error {
	funcs := []struct {
		name string
		fn   any
		pure bool
	}{
		{"current_catalog", func() string { return "public" }, true},
		{"current_schema", func() string { return "public" }, true},
		{"current_user", func() string { return "kqlite" }, true},
		{"session_user", func() string { return "kqlite" }, true},
		{"version", func() string { return "PostgreSQL 14.0 (kqlite-pg)" }, true},
		{"show", func(name string) string { return "" }, true},
		{"format_type", func(oid, mod int64) string { return "" }, true},
		{"extract", extractField, true},
		{"date_trunc", dateTrunc, true},
		{"to_timestamp", toTimestamp, true},
		{"numeric_cast", numericCast, true},
		{"at_time_zone_deferred", atTimeZoneDeferred, true},
		{"json_array_concat", jsonArrayConcat, true},
		{"json_array_contains", jsonArrayContains, true},
		{"pg_total_relation_size", func(name string) int64 { return catalog.RelationSize(dataDir(), name) }, true},
	}
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.fn, f.pure); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	return nil
}

// extractField implements EXTRACT(field FROM expr) -> extract('field', expr).
func extractField(field, value string) (float64, error) {
	t, err := parseStoredTimestamp(value)
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(field) {
	case "year":
		return float64(t.Year()), nil
	case "month":
		return float64(t.Month()), nil
	case "day":
		return float64(t.Day()), nil
	case "hour":
		return float64(t.Hour()), nil
	case "minute":
		return float64(t.Minute()), nil
	case "second":
		return float64(t.Second()) + float64(t.Nanosecond())/1e9, nil
	case "dow":
		return float64(t.Weekday()), nil
	case "doy":
		return float64(t.YearDay()), nil
	case "epoch":
		return float64(t.Unix()), nil
	default:
		return 0, fmt.Errorf("unsupported extract field %q", field)
	}
}

func dateTrunc(unit, value string) (string, error) {
	t, err := parseStoredTimestamp(value)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(unit) {
	case "year":
		t = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	case "month":
		t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "day":
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case "hour":
		t = t.Truncate(time.Hour)
	case "minute":
		t = t.Truncate(time.Minute)
	case "second":
		t = t.Truncate(time.Second)
	default:
		return "", fmt.Errorf("unsupported date_trunc unit %q", unit)
	}
	return t.Format("2006-01-02 15:04:05.999999"), nil
}

func toTimestamp(epochSeconds float64) string {
	sec := int64(epochSeconds)
	nsec := int64((epochSeconds - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format("2006-01-02 15:04:05.999999")
}

func parseStoredTimestamp(value string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, value); err == nil {
			return t, nil
		}
	}
	if micros, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMicro(micros).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp %q", value)
}

// numericCast enforces NUMERIC(p,s) precision/scale on cast, per §4.4
// stage 1 and §8 scenario 5.
func numericCast(value string, precision, scale int64) (string, error) {
	d, err := decimallib.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid numeric literal %q: %w", value, err)
	}
	rounded := d.Round(int32(scale))
	digitsBeforePoint := len(strings.TrimLeft(strings.Split(rounded.Abs().String(), ".")[0], "0"))
	if digitsBeforePoint == 0 {
		digitsBeforePoint = 1
	}
	if int64(digitsBeforePoint) > precision-scale {
		return "", fmt.Errorf("numeric field overflow: value %s exceeds precision %d, scale %d", value, precision, scale)
	}
	return rounded.String(), nil
}

// atTimeZoneDeferred is the marker UDF the translator leaves in place of
// `expr AT TIME ZONE tz` when expr is an unbound parameter (Open Question
// c). Nothing rewrites the marker away at Bind, so a statement that still
// contains it fails with this error when it runs.
func atTimeZoneDeferred(paramOrdinal int64, tz string) (string, error) {
	return "", fmt.Errorf("at_time_zone_deferred($%d, %s) must be resolved before execution", paramOrdinal, tz)
}

func jsonArrayConcat(a, b string) string {
	a = strings.TrimSuffix(strings.TrimSpace(a), "]")
	b = strings.TrimPrefix(strings.TrimSpace(b), "[")
	if a == "[" || a == "" {
		return b
	}
	if strings.HasSuffix(a, "[") {
		return a + strings.TrimPrefix(b, "")
	}
	return a + "," + b
}

func jsonArrayContains(arr, needle string) bool {
	return strings.Contains(arr, needle)
}

// roundHalfAwayFromZero rounds v to scale decimal places with halves
// rounded away from zero, PostgreSQL's NUMERIC rounding mode.
func roundHalfAwayFromZero(v float64, scale int) float64 {
	mult := math.Pow10(scale)
	if v >= 0 {
		return math.Floor(v*mult+0.5) / mult
	}
	return math.Ceil(v*mult-0.5) / mult
}

package translator

import (
	"context"
	"database/sql"
	"regexp"
	"strconv"
	"strings"
)

// datetimeStage implements §4.4 stage 4: EXTRACT(field FROM expr) ->
// extract('field', expr); INTERVAL '...' literals -> microsecond
// integers; AT TIME ZONE -> session-timezone arithmetic (or the deferred
// marker UDF when the left operand is an unbound parameter, Open
// Question c); to_timestamp/date_trunc calls pass straight through since
// pkg/sqlitedb registers UDFs under the same names.
type datetimeStage struct{}

func (datetimeStage) Name() string { return "datetime" }

var (
	extractRegex   = regexp.MustCompile(`(?i)EXTRACT\s*\(\s*(\w+)\s+FROM\s+(.+?)\)`)
	intervalRegex  = regexp.MustCompile(`(?i)INTERVAL\s+'([^']+)'`)
	atTimeZoneExpr = regexp.MustCompile(`(?i)(\$\d+|[A-Za-z0-9_\.]+)\s+AT\s+TIME\s+ZONE\s+'([^']+)'`)
)

func (datetimeStage) NeedsTranslation(q string) bool {
	upper := strings.ToUpper(q)
	return strings.Contains(upper, "EXTRACT(") || strings.Contains(upper, "INTERVAL ") ||
		strings.Contains(upper, "AT TIME ZONE")
}

func (datetimeStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	changed := false

	if extractRegex.MatchString(query) {
		query = extractRegex.ReplaceAllString(query, `extract('$1', $2)`)
		changed = true
	}

	if intervalRegex.MatchString(query) {
		query = intervalRegex.ReplaceAllStringFunc(query, func(m string) string {
			parts := intervalRegex.FindStringSubmatch(m)
			micros, err := intervalToMicros(parts[1])
			if err != nil {
				return m
			}
			return strconv.FormatInt(micros, 10)
		})
		changed = true
	}

	if atTimeZoneExpr.MatchString(query) {
		query = atTimeZoneExpr.ReplaceAllStringFunc(query, func(m string) string {
			parts := atTimeZoneExpr.FindStringSubmatch(m)
			operand, tz := parts[1], parts[2]
			if strings.HasPrefix(operand, "$") {
				ordinal, _ := strconv.ParseInt(strings.TrimPrefix(operand, "$"), 10, 64)
				return "at_time_zone_deferred(" + strconv.FormatInt(ordinal, 10) + ", '" + tz + "')"
			}
			return "datetime(" + operand + ", '" + tz + "')"
		})
		changed = true
	}

	return query, changed, nil
}

// intervalToMicros parses a small subset of PostgreSQL interval literal
// syntax ("3 days", "1 hour 30 minutes") into total microseconds.
func intervalToMicros(lit string) (int64, error) {
	fields := strings.Fields(lit)
	var total int64
	for i := 0; i+1 < len(fields); i += 2 {
		n, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, err
		}
		unit := strings.ToLower(strings.TrimSuffix(fields[i+1], "s"))
		var unitMicros float64
		switch unit {
		case "microsecond":
			unitMicros = 1
		case "millisecond":
			unitMicros = 1_000
		case "second":
			unitMicros = 1_000_000
		case "minute":
			unitMicros = 60_000_000
		case "hour":
			unitMicros = 3_600_000_000
		case "day":
			unitMicros = 86_400_000_000
		case "week":
			unitMicros = 7 * 86_400_000_000
		case "month":
			unitMicros = 30 * 86_400_000_000
		case "year":
			unitMicros = 365 * 86_400_000_000
		default:
			continue
		}
		total += int64(n * unitMicros)
	}
	return total, nil
}

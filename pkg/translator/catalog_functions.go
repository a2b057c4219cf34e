package translator

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

// catalogFunctionStage implements §4.4 stage 3 plus the supplemented
// catalog_function_translator.rs behaviour: `current_user()` ->
// `current_user`, NOW()/CURRENT_DATE/CURRENT_TIME/CURRENT_TIMESTAMP to
// UDFs, and `format_type` left as a direct UDF call since pkg/sqlitedb
// registers it under the same name. Grounded on the
// teacher's systemFunctionRegex in pkg/parser/rewrite.go, generalized
// from a single regex into a table-driven replacement list (the
// supplemented function_parentheses_translator.rs behaviour).
type catalogFunctionStage struct{}

func (catalogFunctionStage) Name() string { return "catalog_functions" }

var systemFunctionParensRegex = regexp.MustCompile(`\b(current_catalog|current_schema|current_user|session_user|user)\b\s*\(\s*\)`)
var nowCallRegex = regexp.MustCompile(`(?i)\bNOW\s*\(\s*\)`)
var currentTimestampRegex = regexp.MustCompile(`(?i)\bCURRENT_TIMESTAMP\b(\s*\(\s*\))?`)
var currentDateRegex = regexp.MustCompile(`(?i)\bCURRENT_DATE\b`)
var currentTimeRegex = regexp.MustCompile(`(?i)\bCURRENT_TIME\b(\s*\(\s*\))?`)

func (catalogFunctionStage) NeedsTranslation(q string) bool {
	upper := strings.ToUpper(q)
	return strings.Contains(upper, "CURRENT_USER") || strings.Contains(upper, "SESSION_USER") ||
		strings.Contains(upper, "CURRENT_CATALOG") || strings.Contains(upper, "CURRENT_SCHEMA") ||
		strings.Contains(upper, "NOW(") || strings.Contains(upper, "CURRENT_DATE") ||
		strings.Contains(upper, "CURRENT_TIME") || strings.Contains(upper, "\"USER\"") ||
		strings.Contains(upper, " USER ") || strings.HasPrefix(upper, "SHOW ")
}

func (catalogFunctionStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	changed := false

	if systemFunctionParensRegex.MatchString(query) {
		query = systemFunctionParensRegex.ReplaceAllString(query, "$1")
		changed = true
	}
	if nowCallRegex.MatchString(query) {
		query = nowCallRegex.ReplaceAllString(query, "to_timestamp(strftime('%s','now'))")
		changed = true
	}
	if currentTimestampRegex.MatchString(query) {
		query = currentTimestampRegex.ReplaceAllString(query, "to_timestamp(strftime('%s','now'))")
		changed = true
	}
	if currentDateRegex.MatchString(query) {
		query = currentDateRegex.ReplaceAllString(query, "date('now')")
		changed = true
	}
	if currentTimeRegex.MatchString(query) {
		query = currentTimeRegex.ReplaceAllString(query, "time('now')")
		changed = true
	}
	if showRegex.MatchString(query) {
		query = showRegex.ReplaceAllString(query, `SELECT show('$1')`)
		changed = true
	}

	return query, changed, nil
}

var showRegex = regexp.MustCompile(`(?i)^SHOW\s+(\w+)\s*;?\s*$`)

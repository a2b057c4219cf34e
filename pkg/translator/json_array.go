package translator

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

// jsonOperatorStage implements §4.4 stage 5: `->>` and `->` translate to
// json_extract/json_extract_scalar with `$` path escaping.
type jsonOperatorStage struct{}

func (jsonOperatorStage) Name() string { return "json_operator" }

var (
	jsonTextArrowRegex = regexp.MustCompile(`([A-Za-z0-9_\.]+)\s*->>\s*'([^']+)'`)
	jsonArrowRegex     = regexp.MustCompile(`([A-Za-z0-9_\.]+)\s*->\s*'([^']+)'`)
	jsonIntArrowRegex  = regexp.MustCompile(`([A-Za-z0-9_\.]+)\s*->>?\s*(\d+)`)
)

func (jsonOperatorStage) NeedsTranslation(q string) bool {
	return strings.Contains(q, "->")
}

func (jsonOperatorStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	changed := false

	if jsonTextArrowRegex.MatchString(query) {
		query = jsonTextArrowRegex.ReplaceAllString(query, `json_extract_scalar($1, '$.$2')`)
		changed = true
	}
	if jsonIntArrowRegex.MatchString(query) {
		query = jsonIntArrowRegex.ReplaceAllString(query, `json_extract($1, '$[$2]')`)
		changed = true
	}
	if jsonArrowRegex.MatchString(query) {
		query = jsonArrowRegex.ReplaceAllString(query, `json_extract($1, '$.$2')`)
		changed = true
	}

	return query, changed, nil
}

// arrayOperatorStage implements §4.4 stage 6: `||` concatenation and
// `ANY(array)`/`= ANY` into UDF equivalents for array-typed columns.
type arrayOperatorStage struct{}

func (arrayOperatorStage) Name() string { return "array_operator" }

var (
	arrayConcatRegex = regexp.MustCompile(`([A-Za-z0-9_\.]+)\s*\|\|\s*([A-Za-z0-9_\.]+)`)
	anyArrayRegex    = regexp.MustCompile(`(?i)=\s*ANY\s*\(\s*([A-Za-z0-9_\.]+)\s*\)`)
)

func (arrayOperatorStage) NeedsTranslation(q string) bool {
	upper := strings.ToUpper(q)
	return strings.Contains(q, "||") || strings.Contains(upper, "ANY(")
}

func (arrayOperatorStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	changed := false

	if anyArrayRegex.MatchString(query) {
		query = anyArrayRegex.ReplaceAllString(query, ` IN (SELECT value FROM json_each($1))`)
		changed = true
	}
	if arrayConcatRegex.MatchString(query) {
		query = arrayConcatRegex.ReplaceAllString(query, `json_array_concat($1, $2)`)
		changed = true
	}

	return query, changed, nil
}

// visibilityStage implements §4.4 stage 7: elide conjuncts calling
// pg_table_is_visible, since SQLite has no search path.
type visibilityStage struct{}

func (visibilityStage) Name() string { return "visibility" }

var (
	visibilityAndRegex    = regexp.MustCompile(`(?i)\s+AND\s+pg_table_is_visible\s*\([^)]*\)`)
	visibilityOnlyRegex   = regexp.MustCompile(`(?i)pg_table_is_visible\s*\([^)]*\)\s+AND\s+`)
	visibilityAloneRegex  = regexp.MustCompile(`(?i)WHERE\s+pg_table_is_visible\s*\([^)]*\)`)
)

func (visibilityStage) NeedsTranslation(q string) bool {
	return strings.Contains(strings.ToUpper(q), "PG_TABLE_IS_VISIBLE")
}

func (visibilityStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	if !visibilityAndRegex.MatchString(query) && !visibilityOnlyRegex.MatchString(query) && !visibilityAloneRegex.MatchString(query) {
		return query, false, nil
	}
	query = visibilityAndRegex.ReplaceAllString(query, "")
	query = visibilityOnlyRegex.ReplaceAllString(query, "")
	query = visibilityAloneRegex.ReplaceAllString(query, "WHERE 1=1")
	return query, true, nil
}

package translator

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

// castStage implements §4.4 stage 1: normalize postfix `expr::type` casts
// into `CAST(expr AS type)`, and rewrite `CAST(expr AS NUMERIC(p,s))` into
// a call to the numeric_cast UDF that enforces precision/scale, grounded
// on original_source/src/translator/numeric_cast_translator.rs's regex
// (`CAST\s*\(\s*(.+?)\s*AS\s*(?:NUMERIC|DECIMAL)\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)\s*\)`),
// re-expressed in Go next to the teacher's own castRegex (`::(regclass)`)
// in pkg/parser/rewrite.go.
type castStage struct{}

func (castStage) Name() string { return "cast" }

var (
	postfixCastRegex  = regexp.MustCompile(`([A-Za-z0-9_\."'\)\]]+)::([A-Za-z_][A-Za-z0-9_]*(\([0-9,\s]*\))?)`)
	regclassCastRegex = regexp.MustCompile(`::(regclass)`)
	numericCastRegex  = regexp.MustCompile(`(?i)CAST\s*\(\s*(.+?)\s*AS\s*(?:NUMERIC|DECIMAL)\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)\s*\)`)
)

func (castStage) NeedsTranslation(q string) bool {
	return strings.Contains(q, "::") || numericCastRegex.MatchString(q)
}

func (c castStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	changed := false

	if numericCastRegex.MatchString(query) {
		query = numericCastRegex.ReplaceAllString(query, `numeric_cast($1, $2, $3)`)
		changed = true
	}

	if regclassCastRegex.MatchString(query) {
		query = regclassCastRegex.ReplaceAllString(query, "")
		changed = true
	}

	if postfixCastRegex.MatchString(query) {
		query = postfixCastRegex.ReplaceAllStringFunc(query, func(m string) string {
			parts := postfixCastRegex.FindStringSubmatch(m)
			if parts == nil {
				return m
			}
			return "CAST(" + parts[1] + " AS " + parts[2] + ")"
		})
		changed = true
	}

	return query, changed, nil
}

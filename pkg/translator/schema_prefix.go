package translator

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

// schemaPrefixStage implements §4.4 stage 2: strip `pg_catalog.` from
// known table and function names. Grounded on
// original_source/src/translator/schema_prefix_translator.rs's table and
// function name lists, and on the teacher's own pgCatalogRegex in
// pkg/parser/rewrite.go (defined but, notably, never applied there —
// applied here since §4.4 requires it).
type schemaPrefixStage struct{}

func (schemaPrefixStage) Name() string { return "schema_prefix" }

var pgCatalogPrefixRegex = regexp.MustCompile(`(?i)\bpg_catalog\.`)

func (schemaPrefixStage) NeedsTranslation(q string) bool {
	return strings.Contains(strings.ToUpper(q), "PG_CATALOG")
}

func (schemaPrefixStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	if !pgCatalogPrefixRegex.MatchString(query) {
		return query, false, nil
	}
	return pgCatalogPrefixRegex.ReplaceAllString(query, ""), true, nil
}

// IsCatalogQuery reports whether a query references a pg_catalog table
// directly (schema-qualified or not), used by the executor to route to
// the catalog emulator ahead of the general pipeline (§4.7).
func IsCatalogQuery(query string) bool {
	upper := strings.ToUpper(query)
	if strings.Contains(upper, "PG_CATALOG.") {
		return true
	}
	for _, t := range catalogTableNames {
		if strings.Contains(upper, strings.ToUpper(t)) {
			return true
		}
	}
	return false
}

var catalogTableNames = []string{
	"pg_class", "pg_namespace", "pg_attribute", "pg_type", "pg_enum",
	"pg_constraint", "pg_index", "pg_attrdef", "pg_am", "pg_range",
	"pg_database", "pg_description", "pg_settings",
}

package translator

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kqlite/kqlite-pg/pkg/catalog"
)

// createTableStage implements §4.4 stage 9: CREATE TABLE column
// definitions get rewritten column-by-column — SERIAL/BIGSERIAL become
// INTEGER PRIMARY KEY AUTOINCREMENT (dropping any other PRIMARY KEY
// clause on that column per SQLite's rowid-alias rule), VARCHAR(n)/CHAR(n)
// become TEXT with the length recorded as a shadow string constraint,
// NUMERIC(p,s) becomes TEXT with the precision/scale recorded as a shadow
// numeric constraint, and TSVECTOR columns get an FTS5 shadow table paired
// via the FTS association table. Grounded on the teacher's
// createTableRegex/alterTableRegex handling in pkg/parser/rewrite.go,
// supplemented with original_source/src/translator/create_table_translator.rs's
// per-column type switch.
type createTableStage struct{}

func (createTableStage) Name() string { return "create_table" }

var (
	createTableHeaderRegex = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?([A-Za-z0-9_\."]+)\s*\((.*)\)\s*;?\s*$`)
	serialRegex            = regexp.MustCompile(`(?i)^(BIG)?SERIAL$`)
	varcharRegex           = regexp.MustCompile(`(?i)^(VAR)?CHAR(ACTER)?\s*\(\s*(\d+)\s*\)$`)
	numericRegex           = regexp.MustCompile(`(?i)^(NUMERIC|DECIMAL)\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	tsvectorRegex          = regexp.MustCompile(`(?i)^TSVECTOR$`)
)

func (createTableStage) NeedsTranslation(q string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(q)), "CREATE TABLE")
}

func (createTableStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	trimmed := strings.TrimSpace(query)
	m := createTableHeaderRegex.FindStringSubmatch(trimmed)
	if m == nil {
		return query, false, nil
	}
	ifNotExists, table, body := m[1], unquoteIdent(m[2]), m[3]

	cols := splitTopLevel(body)
	var rewritten []string
	var ftsColumns []string
	ordinal := 0

	for _, raw := range cols {
		col := strings.TrimSpace(raw)
		upper := strings.ToUpper(col)
		if strings.HasPrefix(upper, "PRIMARY KEY") || strings.HasPrefix(upper, "FOREIGN KEY") ||
			strings.HasPrefix(upper, "UNIQUE") || strings.HasPrefix(upper, "CHECK") || strings.HasPrefix(upper, "CONSTRAINT") {
			rewritten = append(rewritten, col)
			continue
		}

		fields := strings.Fields(col)
		if len(fields) < 2 {
			rewritten = append(rewritten, col)
			continue
		}
		name := strings.Trim(fields[0], `"`)
		typeAndRest := strings.TrimSpace(strings.TrimPrefix(col, fields[0]))
		pgType, rest := splitTypeToken(typeAndRest)

		switch {
		case serialRegex.MatchString(pgType):
			rewritten = append(rewritten, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, name))
			if err := catalog.RecordColumn(ctx, db, catalog.ColumnType{Table: table, Column: name, PGType: strings.ToLower(pgType), SQLiteType: "INTEGER", Ordinal: ordinal}); err != nil {
				return query, false, err
			}
		case varcharRegex.MatchString(pgType):
			vm := varcharRegex.FindStringSubmatch(pgType)
			length, _ := strconv.Atoi(vm[3])
			rewritten = append(rewritten, fmt.Sprintf("%s TEXT%s", name, withRest(rest)))
			if err := catalog.RecordStringConstraint(ctx, db, table, name, length, vm[1] == ""); err != nil {
				return query, false, err
			}
			if err := catalog.RecordColumn(ctx, db, catalog.ColumnType{Table: table, Column: name, PGType: strings.ToLower(pgType), SQLiteType: "TEXT", Ordinal: ordinal}); err != nil {
				return query, false, err
			}
		case numericRegex.MatchString(pgType):
			nm := numericRegex.FindStringSubmatch(pgType)
			precision, _ := strconv.Atoi(nm[2])
			scale, _ := strconv.Atoi(nm[3])
			rewritten = append(rewritten, fmt.Sprintf("%s TEXT%s", name, withRest(rest)))
			if err := catalog.RecordNumericConstraint(ctx, db, table, name, precision, scale); err != nil {
				return query, false, err
			}
			if err := catalog.RecordColumn(ctx, db, catalog.ColumnType{Table: table, Column: name, PGType: "numeric", SQLiteType: "TEXT", Ordinal: ordinal}); err != nil {
				return query, false, err
			}
		case tsvectorRegex.MatchString(pgType):
			rewritten = append(rewritten, fmt.Sprintf("%s TEXT%s", name, withRest(rest)))
			ftsTable := fmt.Sprintf("%s_%s_fts", table, name)
			ftsColumns = append(ftsColumns, ftsTable)
			if err := catalog.RecordFTSAssociation(ctx, db, table, name, ftsTable); err != nil {
				return query, false, err
			}
			if err := catalog.RecordColumn(ctx, db, catalog.ColumnType{Table: table, Column: name, PGType: "tsvector", SQLiteType: "TEXT", Ordinal: ordinal}); err != nil {
				return query, false, err
			}
		default:
			rewritten = append(rewritten, col)
			if err := catalog.RecordColumn(ctx, db, catalog.ColumnType{Table: table, Column: name, PGType: strings.ToLower(pgType), SQLiteType: sqliteAffinity(pgType), Ordinal: ordinal}); err != nil {
				return query, false, err
			}
			if _, isEnum, err := catalog.LookupEnumType(ctx, db, strings.Trim(pgType, `"`)); err != nil {
				return query, false, err
			} else if isEnum {
				if err := catalog.RecordEnumUsage(ctx, db, table, name, strings.Trim(pgType, `"`)); err != nil {
					return query, false, err
				}
			}
		}
		ordinal++
	}

	var out strings.Builder
	out.WriteString("CREATE TABLE ")
	if ifNotExists != "" {
		out.WriteString("IF NOT EXISTS ")
	}
	out.WriteString(table)
	out.WriteString(" (\n  ")
	out.WriteString(strings.Join(rewritten, ",\n  "))
	out.WriteString("\n)")

	for _, ftsTable := range ftsColumns {
		out.WriteString(fmt.Sprintf(";\nCREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(content)", ftsTable))
	}

	return out.String(), true, nil
}

func withRest(rest string) string {
	if rest == "" {
		return ""
	}
	return " " + rest
}

// splitTypeToken separates a column's type token (possibly with a
// parenthesized length/precision) from any trailing constraint clauses.
func splitTypeToken(s string) (typeTok string, rest string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	if idx := strings.Index(s, "("); idx >= 0 {
		close := strings.Index(s[idx:], ")")
		if close >= 0 {
			end := idx + close + 1
			return strings.TrimSpace(s[:end]), strings.TrimSpace(s[end:])
		}
	}
	fields := strings.Fields(s)
	return fields[0], strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
}

// splitTopLevel splits a CREATE TABLE column list on commas that aren't
// nested inside parentheses.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

func sqliteAffinity(pgType string) string {
	switch strings.ToUpper(pgType) {
	case "INTEGER", "INT", "INT4", "SMALLINT", "INT2", "BOOLEAN", "BOOL":
		return "INTEGER"
	case "BIGINT", "INT8":
		return "INTEGER"
	case "REAL", "FLOAT4":
		return "REAL"
	case "DOUBLE PRECISION", "FLOAT8":
		return "REAL"
	case "BYTEA":
		return "BLOB"
	default:
		return "TEXT"
	}
}

package extended

import (
	"context"
	"regexp"
	"strings"

	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
)

// paramPlaceholderRegex finds every "$n" placeholder together with, if
// present, the column it's compared or assigned against — enough of an
// approximation of the teacher's parserResult.ArgColumns/Tables pair
// without transplanting the teacher's broken AST conversion layer.
var paramPlaceholderRegex = regexp.MustCompile(`([A-Za-z0-9_\."]+)\s*(?:=|<|>|<=|>=|<>|!=)?\s*\$(\d+)`)

var tableNameRegex = regexp.MustCompile(`(?i)\b(?:FROM|INTO|UPDATE|JOIN)\s+([A-Za-z0-9_\."]+)`)

// InferParamTypes builds the parameter-type OID list for a statement
// whose Parse message carried no explicit type hints, by matching each
// placeholder to the column it appears against and mapping that column's
// declared SQLite type through sqlitedb.LookupTypeInfo; the shadow
// catalog's recorded PostgreSQL types are not consulted (Open Question
// (b): explicit Parse-supplied OIDs always win
// over this inference path, so the caller only invokes this when
// len(msg.ParameterOIDs) == 0, mirroring the teacher's own handleParse).
func InferParamTypes(ctx context.Context, db *sqlitedb.DB, query string) ([]uint32, error) {
	count := placeholderCount(query)
	if count == 0 {
		return nil, nil
	}

	columns := make([]string, count)
	for _, m := range paramPlaceholderRegex.FindAllStringSubmatch(query, -1) {
		ordinal := atoiSafe(m[2])
		if ordinal >= 1 && ordinal <= count {
			columns[ordinal-1] = unquoteColumn(m[1])
		}
	}

	var tables []string
	for _, m := range tableNameRegex.FindAllStringSubmatch(query, -1) {
		tables = append(tables, unquoteColumn(m[1]))
	}

	oids, err := sqlitedb.LookupTypeInfo(ctx, db.RO(), columns, tables)
	if err != nil {
		return nil, err
	}
	return oids, nil
}

func placeholderCount(query string) int {
	max := 0
	for _, m := range regexp.MustCompile(`\$(\d+)`).FindAllStringSubmatch(query, -1) {
		if n := atoiSafe(m[1]); n > max {
			max = n
		}
	}
	return max
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func unquoteColumn(s string) string {
	s = strings.Trim(s, `"`)
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return s
}

package extended

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/kqlite/kqlite-pg/pkg/session"
	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
	"github.com/kqlite/kqlite-pg/pkg/translator"
)

// InferRowDescription builds the field list Describe needs before any
// row has actually been produced from sql.Rows.ColumnTypes, mapping each
// declared SQLite type through sqlitedb.Typemap; the translator's
// RETURNING-clause hint (§4.6) only supplies column names. The shadow
// catalog's recorded PostgreSQL types are not consulted.
func InferRowDescription(rows *sql.Rows, hint []translator.ProjectedColumn) ([]session.FieldDescription, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	typeNames := sqlitedb.Typemap()
	fields := make([]session.FieldDescription, len(cols))
	for i, c := range cols {
		oid := typeNames[c.DatabaseTypeName()]
		if oid == 0 {
			oid = 25 // text, the untyped fallback every PostgreSQL client tolerates
		}
		name := c.Name()
		if hint != nil && i < len(hint) && hint[i].Name != "" {
			name = hint[i].Name
		}
		fields[i] = session.FieldDescription{
			Name:         name,
			ColumnNumber: int16(i + 1),
			TypeOID:      oid,
			TypeSize:     typeSize(oid),
			TypeModifier: -1,
		}
	}
	return fields, nil
}

// dmlTargetTableRegex pulls the target table out of an INSERT/UPDATE/DELETE
// so a RETURNING clause's column types can be resolved from the shadow
// catalog/pragma_table_info without ever stepping the prepared statement
// (stepping an INSERT/UPDATE/DELETE performs the write).
var dmlTargetTableRegex = regexp.MustCompile(`(?is)^\s*(?:INSERT\s+INTO|UPDATE|DELETE\s+FROM)\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)

// StaticReturningFields resolves a RETURNING clause's row shape purely from
// static metadata — the translator's RowDescHint for the returned column
// names, and pragma_table_info for their types — so Describe-Statement
// never has to run an INSERT/UPDATE/DELETE to learn its result shape
// (§4.6(b): "parsing the projection list and resolving each expression's
// type", applied here to the RETURNING projection rather than a SELECT's).
func StaticReturningFields(ctx context.Context, db *sql.DB, sqlText string, hint []translator.ProjectedColumn) ([]session.FieldDescription, error) {
	m := dmlTargetTableRegex.FindStringSubmatch(sqlText)
	var table string
	if m != nil {
		table = m[1]
	}

	names := make([]string, len(hint))
	for i, h := range hint {
		names[i] = h.Name
	}
	if len(names) == 0 && table != "" {
		cols, err := sqlitedb.TableColumnNames(ctx, db, table)
		if err != nil {
			return nil, err
		}
		names = cols
	}

	var tables []string
	if table != "" {
		tables = []string{table}
	}
	oids, err := sqlitedb.LookupTypeInfo(ctx, db, names, tables)
	if err != nil {
		return nil, err
	}

	fields := make([]session.FieldDescription, len(names))
	for i, name := range names {
		oid := uint32(25)
		if i < len(oids) && oids[i] != 0 {
			oid = oids[i]
		}
		fields[i] = session.FieldDescription{
			Name:         strings.Trim(name, `"`),
			ColumnNumber: int16(i + 1),
			TypeOID:      oid,
			TypeSize:     typeSize(oid),
			TypeModifier: -1,
		}
	}
	return fields, nil
}

// typeSize returns the wire-protocol typlen for common fixed-width OIDs,
// -1 ("variable") otherwise — mirrors pg_type.typlen, which real clients
// read directly off RowDescription before ever querying pg_type.
func typeSize(oid uint32) int16 {
	switch oid {
	case 21: // int2
		return 2
	case 23: // int4
		return 4
	case 20: // int8
		return 8
	case 16: // bool
		return 1
	case 700: // float4
		return 4
	case 701: // float8
		return 8
	default:
		return -1
	}
}

// ToRowDescription converts a field list into the wire message, grounded
// on the teacher's toRowDescription in pkg/pgwire/utils.go.
func ToRowDescription(fields []session.FieldDescription) *pgproto3.RowDescription {
	rd := &pgproto3.RowDescription{Fields: make([]pgproto3.FieldDescription, len(fields))}
	for i, f := range fields {
		rd.Fields[i] = pgproto3.FieldDescription{
			Name:                 []byte(f.Name),
			TableOID:             f.TableOID,
			TableAttributeNumber: uint16(f.ColumnNumber),
			DataTypeOID:          f.TypeOID,
			DataTypeSize:         f.TypeSize,
			TypeModifier:         f.TypeModifier,
			Format:               f.Format,
		}
	}
	return rd
}

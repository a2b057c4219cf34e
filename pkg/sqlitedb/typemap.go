package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Typemap returns the SQLite declared-type-string -> PostgreSQL OID
// mapping used when a column has no shadow-catalog entry, grounded on
// the teacher's db/typeinfo.go Typemap().
func Typemap() map[string]uint32 {
	return map[string]uint32{
		"INT":              pgtype.Int8OID,
		"INTEGER":          pgtype.Int8OID,
		"TINYINT":          pgtype.Int2OID,
		"SMALLINT":         pgtype.Int4OID,
		"MEDIUMINT":        pgtype.Int4OID,
		"BIGINT":           pgtype.Int8OID,
		"UNSIGNED BIG INT": pgtype.Int8OID,
		"INT2":             pgtype.Int2OID,
		"INT8":             pgtype.Int8OID,
		"CHARACTER(20)":          pgtype.TextOID,
		"VARCHAR(255)":           pgtype.VarcharOID,
		"VARYING CHARACTER(255)": pgtype.VarcharOID,
		"NCHAR(55)":              pgtype.TextOID,
		"NATIVE CHARACTER(70)":   pgtype.TextOID,
		"NVARCHAR(100)":          pgtype.TextOID,
		"TEXT":                   pgtype.TextOID,
		"CLOB":                   pgtype.TextOID,
		"BLOB":                   pgtype.ByteaOID,
		"REAL":             pgtype.Float8OID,
		"DOUBLE":           pgtype.Float8OID,
		"DOUBLE PRECISION": pgtype.Float8OID,
		"FLOAT":            pgtype.Float8OID,
		"NUMERIC":       pgtype.NumericOID,
		"DECIMAL(10,5)": pgtype.NumericOID,
		"BOOLEAN":   pgtype.BoolOID,
		"DATE":      pgtype.DateOID,
		"TIMESTAMP": pgtype.TimestampOID,
		"DATETIME":  pgtype.TextOID,
	}
}

func joinElemNames(elems []string) string {
	var sb []byte
	for i, e := range elems {
		if i > 0 {
			sb = append(sb, ',', ' ')
		}
		sb = append(sb, '\'')
		sb = append(sb, e...)
		sb = append(sb, '\'')
	}
	return string(sb)
}

// LookupTypeInfo resolves the PostgreSQL OID of each named column by
// introspecting sqlite_master/pragma_table_info, falling back to the
// Typemap when a declared SQLite type is known and to TextOID otherwise.
// Grounded on db/typeinfo.go's LookupTypeInfo.
func LookupTypeInfo(ctx context.Context, db *sql.DB, columns, tables []string) ([]uint32, error) {
	var columnTypes []uint32
	if len(columns) == 0 || db == nil {
		return columnTypes, nil
	}

	sqlText := `WITH tables AS (SELECT name tableName, sql FROM sqlite_master WHERE type = 'table' `
	if len(tables) != 0 {
		sqlText += fmt.Sprintf("AND tableName IN (%s)) ", joinElemNames(tables))
	} else {
		sqlText += `AND tableName NOT LIKE 'sqlite_%' AND tableName NOT LIKE '__pgsqlite_%') `
	}
	sqlText += `SELECT fields.name, fields.type FROM tables CROSS JOIN pragma_table_info(tables.tableName) fields WHERE `
	sqlText += fmt.Sprintf("fields.name IN (%s) GROUP BY fields.name;", joinElemNames(columns))

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return columnTypes, err
	}
	defer rows.Close()

	columnDBInfo := map[string]string{}
	for rows.Next() {
		var colName, colType string
		if err := rows.Scan(&colName, &colType); err != nil {
			return columnTypes, err
		}
		columnDBInfo[colName] = colType
	}
	if err := rows.Err(); err != nil {
		return columnTypes, err
	}

	typemap := Typemap()
	for _, colName := range columns {
		if colType, found := columnDBInfo[colName]; found {
			if oid, exists := typemap[colType]; exists {
				columnTypes = append(columnTypes, oid)
			} else {
				columnTypes = append(columnTypes, pgtype.TextOID)
			}
			continue
		}
		switch colName {
		case "boolean":
			columnTypes = append(columnTypes, pgtype.BoolOID)
		case "blob":
			columnTypes = append(columnTypes, pgtype.ByteaOID)
		default:
			columnTypes = append(columnTypes, pgtype.TextOID)
		}
	}
	return columnTypes, nil
}

// TableColumnNames lists a table's columns in declaration order via
// pragma_table_info, for callers (RETURNING * row-shape inference) that
// need every column without already knowing their names.
func TableColumnNames(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ValueToOID infers a wire OID from a Go runtime value, used when no
// column context is available (literal expressions in a projection).
func ValueToOID(value any) uint32 {
	switch value.(type) {
	case int, int64:
		return pgtype.Int8OID
	case int16:
		return pgtype.Int2OID
	case int32:
		return pgtype.Int4OID
	case float32:
		return pgtype.Float4OID
	case float64:
		return pgtype.Float8OID
	case bool:
		return pgtype.BoolOID
	case string:
		return pgtype.TextOID
	case []byte:
		return pgtype.ByteaOID
	case time.Time:
		return pgtype.TimestampOID
	case nil:
		return pgtype.UnknownOID
	default:
		return pgtype.TextOID
	}
}

package session

import (
	"database/sql"

	"github.com/kqlite/kqlite-pg/pkg/translator"
)

// PreparedStatement is a SQL statement that has been translated and whose
// parameter/result types have been determined (§3, §4.6).
type PreparedStatement struct {
	Name string

	// OriginalSQL is the client-supplied PostgreSQL-dialect text; SQL is
	// the translated SQLite text prepared against the session's DB.
	OriginalSQL string
	SQL         string
	Stmt        *sql.Stmt

	// ParamOIDs are the parameter type OIDs: client-supplied when Parse
	// carried them, inferred from the columns' declared SQLite types otherwise
	// (Open Question (b) — Parse-supplied OIDs always win).
	ParamOIDs []uint32

	// Fields describes the statement's result row shape, used by
	// Describe before any row has actually been produced.
	Fields []FieldDescription

	// RowDescHint carries the translator's own projection hint (e.g. from
	// a RETURNING clause) when SQLite's column metadata can't be trusted.
	RowDescHint []translator.ProjectedColumn
}

// FieldDescription is one column of a RowDescription message (§4.6).
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnNumber int16
	TypeOID      uint32
	TypeSize     int16
	TypeModifier int32
	Format       int16
}

// PreparedPortal is a PreparedStatement bound to concrete argument values
// (§3, §4.6).
type PreparedPortal struct {
	Name     string
	Prepared *PreparedStatement
	Args     []any

	// ResultFormats are the per-column format codes requested by Bind;
	// empty means "text for all columns" per the wire protocol default.
	ResultFormats []int16
}

package catalog

import (
	"github.com/mattn/go-sqlite3"
)

// RowSource produces the current set of rows for one catalog virtual
// table. Called on every Open/Filter so catalog queries always see the
// live schema. Generalizes the teacher's pg_database.go VTab template
// (DeclareVTab + a per-table Open that recomputes rows) across every
// catalog table instead of duplicating the Module/Table/Cursor trio per
// table.
type RowSource func(conn *sqlite3.SQLiteConn) ([][]any, error)

// module is a generic sqlite3.Module backing one catalog virtual table.
type module struct {
	ddl    string
	source RowSource
}

func newModule(ddl string, source RowSource) *module {
	return &module{ddl: ddl, source: source}
}

func (m *module) Create(conn *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	if err := conn.DeclareVTab(m.ddl); err != nil {
		return nil, err
	}
	return &vtable{conn: conn, source: m.source}, nil
}

func (m *module) Connect(conn *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.Create(conn, args)
}

func (m *module) DestroyModule() {}

type vtable struct {
	conn   *sqlite3.SQLiteConn
	source RowSource
}

func (t *vtable) Open() (sqlite3.VTabCursor, error) {
	rows, err := t.source(t.conn)
	if err != nil {
		return nil, err
	}
	return &cursor{rows: rows}, nil
}

func (t *vtable) BestIndex(cst []sqlite3.InfoConstraint, ob []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	used := make([]bool, len(cst))
	return &sqlite3.IndexResult{Used: used}, nil
}

func (t *vtable) Disconnect() error { return nil }
func (t *vtable) Destroy() error    { return nil }

type cursor struct {
	rows []([]any)
	pos  int
}

func (c *cursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	if c.pos >= len(c.rows) {
		ctx.ResultNull()
		return nil
	}
	row := c.rows[c.pos]
	if col >= len(row) {
		ctx.ResultNull()
		return nil
	}
	switch v := row[col].(type) {
	case nil:
		ctx.ResultNull()
	case string:
		ctx.ResultText(v)
	case int:
		ctx.ResultInt(v)
	case int32:
		ctx.ResultInt(int(v))
	case int64:
		ctx.ResultInt64(v)
	case uint32:
		ctx.ResultInt64(int64(v))
	case bool:
		if v {
			ctx.ResultInt(1)
		} else {
			ctx.ResultInt(0)
		}
	case float64:
		ctx.ResultDouble(v)
	default:
		ctx.ResultNull()
	}
	return nil
}

func (c *cursor) Filter(idxNum int, idxStr string, vals []any) error {
	c.pos = 0
	return nil
}

func (c *cursor) Next() error {
	c.pos++
	return nil
}

func (c *cursor) EOF() bool {
	return c.pos >= len(c.rows)
}

func (c *cursor) Rowid() (int64, error) {
	return int64(c.pos), nil
}

func (c *cursor) Close() error { return nil }

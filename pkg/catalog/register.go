package catalog

import (
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// InitConnection wires the catalog emulator's virtual tables into a
// freshly opened SQLite connection. Called from sqlitedb's ConnectHook,
// collapsing what the teacher split across pkg/catalog's and pkg/sqlite's
// duplicate driver registrations into a single call site.
func InitConnection(conn *sqlite3.SQLiteConn) error {
	if _, err := conn.Exec(shadowDDL, nil); err != nil {
		return fmt.Errorf("ensure shadow schema: %w", err)
	}
	return registerCatalogModules(conn)
}

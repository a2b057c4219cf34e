package sqlitedb

import (
	"database/sql"
	"sync"
)

// pool caches the open RW *sql.DB handle by path so every session against
// the same database file shares the single exclusive writer connection
// SQLite requires, mirroring the teacher's pkg/db/pool.go. Each session
// still gets its own RO handle — only the writer is shared.
type pool struct {
	sync.Map
}

var dbPool pool

func pooledRW(dbPath string, fkEnabled, wal bool) (*sql.DB, error) {
	if v, ok := dbPool.Load(dbPath); ok {
		return v.(*sql.DB), nil
	}
	conn, err := openSQLiteDB(dbPath, false, fkEnabled, wal)
	if err != nil {
		return nil, err
	}
	dbPool.Store(dbPath, conn)
	return conn, nil
}

// ClearPool closes and forgets every pooled writer connection; used on
// server shutdown.
func ClearPool() {
	dbPool.Range(func(key, value any) bool {
		value.(*sql.DB).Close()
		return true
	})
	dbPool.Clear()
}

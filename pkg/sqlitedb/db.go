// Package sqlitedb owns the SQLite driver registration, UDFs, and the
// per-session RW/RO connection pairing that backs one gateway session's
// database handle (§5: "a session owns its SQLite connection for its
// full lifetime").
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DB wraps one session's paired read-write and read-only SQLite
// connections, adapted from the teacher's pkg/db.Database: same DSN
// construction, WAL handling, and checkpoint/vacuum surface, generalized
// to live under this module's own driver name and UDF set.
type DB struct {
	path      string
	fkEnabled bool
	wal       bool
	rwdb      *sql.DB
	rodb      *sql.DB
}

type CheckpointMode int

const (
	CheckpointRestart CheckpointMode = iota
	CheckpointTruncate
)

var checkpointPRAGMAs = map[CheckpointMode]string{
	CheckpointRestart:  "PRAGMA wal_checkpoint(RESTART)",
	CheckpointTruncate: "PRAGMA wal_checkpoint(TRUNCATE)",
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open opens (creating if needed) the database file at dbPath, returning
// a DB with an exclusive single-connection RW handle and a shared-cache
// RO handle for fast-path reads.
func Open(dbPath string, fkEnabled, wal bool) (*DB, error) {
	rwdb, err := openDBForWrite(dbPath, fkEnabled, wal)
	if err != nil {
		return nil, err
	}
	rodb, err := openSQLiteDB(dbPath, true, fkEnabled, wal)
	if err != nil {
		rwdb.Close()
		return nil, err
	}
	return &DB{path: dbPath, fkEnabled: fkEnabled, wal: wal, rwdb: rwdb, rodb: rodb}, nil
}

func openDBForWrite(dbPath string, fkEnabled, wal bool) (*sql.DB, error) {
	return pooledRW(dbPath, fkEnabled, wal)
}

func openSQLiteDB(dbPath string, readOnly, fkEnabled, wal bool) (*sql.DB, error) {
	if !fileExists(dbPath) {
		f, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	dsn := makeDSN(dbPath, readOnly, fkEnabled, wal)
	conn, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}

	if readOnly {
		conn.SetConnMaxIdleTime(30 * time.Second)
		conn.SetConnMaxLifetime(0)
		return conn, nil
	}

	if _, err := conn.Exec("PRAGMA wal_autocheckpoint=0"); err != nil {
		return nil, fmt.Errorf("disable autocheckpointing: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping on-disk database: %w", err)
	}
	if wal && !fileExists(dbPath+"-wal") {
		if _, err := conn.Exec("BEGIN IMMEDIATE"); err != nil {
			return nil, err
		}
		if _, err := conn.Exec("ROLLBACK"); err != nil {
			return nil, err
		}
	}
	conn.SetConnMaxLifetime(0)
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func makeDSN(path string, readOnly, fkEnabled, walEnabled bool) string {
	opts := url.Values{}
	opts.Add("_fk", strconv.FormatBool(fkEnabled))
	opts.Add("_journal", "WAL")
	if !walEnabled {
		opts.Set("_journal", "DELETE")
	}
	if readOnly {
		opts.Add("mode", "ro")
	}
	opts.Add("_sync", "0")
	opts.Add("cache", "shared")
	opts.Add("_busy_timeout", "3000")
	return fmt.Sprintf("file:%s?%s", path, opts.Encode())
}

func (d *DB) SetBusyTimeout(rwMs, roMs int) error {
	if rwMs >= 0 {
		if _, err := d.rwdb.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", rwMs)); err != nil {
			return err
		}
	}
	if roMs >= 0 {
		if _, err := d.rodb.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", roMs)); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) BusyTimeout() (rwMs, roMs int, err error) {
	if err = d.rwdb.QueryRow("PRAGMA busy_timeout").Scan(&rwMs); err != nil {
		return 0, 0, err
	}
	if err = d.rodb.QueryRow("PRAGMA busy_timeout").Scan(&roMs); err != nil {
		return 0, 0, err
	}
	return rwMs, roMs, nil
}

func (d *DB) Checkpoint(mode CheckpointMode) error {
	return d.CheckpointWithTimeout(mode, 0)
}

func (d *DB) CheckpointWithTimeout(mode CheckpointMode, dur time.Duration) error {
	if dur > 0 {
		rwBt, _, err := d.BusyTimeout()
		if err != nil {
			return fmt.Errorf("get busy_timeout: %w", err)
		}
		if err := d.SetBusyTimeout(int(dur.Milliseconds()), -1); err != nil {
			return fmt.Errorf("set busy_timeout: %w", err)
		}
		defer d.SetBusyTimeout(rwBt, -1)
	}
	ok, nPages, nMoved, err := checkpointDB(d.rwdb, mode)
	if err != nil {
		return fmt.Errorf("checkpoint WAL: %w", err)
	}
	if ok != 0 {
		return fmt.Errorf("incomplete WAL checkpoint (%d ok, %d pages, %d moved)", ok, nPages, nMoved)
	}
	return nil
}

func checkpointDB(rwdb *sql.DB, mode CheckpointMode) (ok, pages, moved int, err error) {
	err = rwdb.QueryRow(checkpointPRAGMAs[mode]).Scan(&ok, &pages, &moved)
	return
}

func (d *DB) Vacuum() error {
	_, err := d.rwdb.Exec("VACUUM")
	return err
}

func (d *DB) VacuumInto(path string) error {
	_, err := d.rwdb.Exec(fmt.Sprintf("VACUUM INTO '%s'", path))
	return err
}

// Close closes the session's own RO handle. The RW handle is pool-owned
// (shared by every session against the same file, since SQLite allows at
// most one writer) and is only closed by ClearPool on server shutdown.
func (d *DB) Close() error {
	return d.rodb.Close()
}

func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	return d.rwdb.Exec(query, args...)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.rwdb.ExecContext(ctx, query, args...)
}

func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	if ro, _ := d.StmtReadOnly(query); ro {
		return d.rodb.Query(query, args...)
	}
	return d.rwdb.Query(query, args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if ro, _ := d.StmtReadOnly(query); ro {
		return d.rodb.QueryContext(ctx, query, args...)
	}
	return d.rwdb.QueryContext(ctx, query, args...)
}

// StmtReadOnly reports whether sql is a read-only statement, per
// https://www.sqlite.org/c3ref/stmt_readonly.html — used to route fast
// read-only queries to the shared-cache RO connection.
func (d *DB) StmtReadOnly(sqlText string) (bool, error) {
	conn, err := d.rodb.Conn(context.Background())
	if err != nil {
		return false, err
	}
	defer conn.Close()
	return d.StmtReadOnlyWithConn(sqlText, conn)
}

func (d *DB) StmtReadOnlyWithConn(sqlText string, conn *sql.Conn) (bool, error) {
	var readOnly bool
	f := func(driverConn any) error {
		c := driverConn.(*sqlite3.SQLiteConn)
		drvStmt, err := c.Prepare(sqlText)
		if err != nil {
			return err
		}
		defer drvStmt.Close()
		readOnly = drvStmt.(*sqlite3.SQLiteStmt).Readonly()
		return nil
	}
	if err := conn.Raw(f); err != nil {
		return false, err
	}
	return readOnly, nil
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.rwdb.BeginTx(ctx, opts)
}

func (d *DB) GetName() string {
	_, file := filepath.Split(d.path)
	return strings.TrimSuffix(file, ".db")
}

// RW exposes the raw write connection for callers that need direct
// *sql.DB access (the translator's DDL-time shadow-catalog writes, the
// migration runner).
func (d *DB) RW() *sql.DB { return d.rwdb }
func (d *DB) RO() *sql.DB { return d.rodb }

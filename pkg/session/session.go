// Package session holds the per-connection state a PostgreSQL wire
// session needs across the simple and extended query protocols: the GUC
// settings a client has SET, its transaction status, and its prepared
// statement/portal tables (§3). Grounded on the teacher's ClientConn
// field set in pkg/pgwire/conn.go, split out of the wire-handling struct
// so it can be unit tested without a net.Conn.
package session

import (
	"fmt"
	"sync"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kqlite/kqlite-pg/pkg/pgerror"
	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
)

// TxStatus mirrors the ReadyForQuery status byte (§3).
type TxStatus byte

const (
	TxIdle   TxStatus = 'I'
	TxActive TxStatus = 'T'
	TxFailed TxStatus = 'E'
)

// Session is one client connection's state: its dedicated SQLite
// read-only handle, the shared pooled write handle, GUC settings, and
// prepared-statement/portal tables.
type Session struct {
	mu sync.Mutex

	DB      *sqlitedb.DB
	TypeMap *pgtype.Map

	TxStatus TxStatus
	InTxn    bool

	// GUCs the client has SET, e.g. "client_encoding", "DateStyle",
	// "TimeZone", "application_name".
	settings map[string]string

	prepStmts map[string]*PreparedStatement
	portals   map[string]*PreparedPortal
}

func New(db *sqlitedb.DB) *Session {
	return &Session{
		DB:        db,
		TypeMap:   pgtype.NewMap(),
		TxStatus:  TxIdle,
		settings:  map[string]string{"TimeZone": "UTC", "client_encoding": "UTF8"},
		prepStmts: map[string]*PreparedStatement{},
		portals:   map[string]*PreparedPortal{},
	}
}

func (s *Session) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[name] = value
}

func (s *Session) Get(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[name]
	return v, ok
}

// AddPreparedStatement registers a new prepared statement under name. A
// named statement that already exists is rejected; the unnamed statement
// ("") is replaced, closing the previous one (§3, §4.6).
func (s *Session) AddPreparedStatement(name string, stmt *PreparedStatement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.prepStmts[name]; ok {
		if name != "" {
			return pgerror.New(pgerrcode.DuplicatePreparedStatement, fmt.Sprintf("prepared statement %q already exists", name))
		}
		if old.Stmt != nil {
			old.Stmt.Close()
		}
	}
	s.prepStmts[name] = stmt
	return nil
}

func (s *Session) PreparedStatement(name string) (*PreparedStatement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.prepStmts[name]
	return ps, ok
}

func (s *Session) DeletePreparedStatement(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prepStmts, name)
}

// AddPortal registers a new portal bound to a prepared statement. A named
// portal that already exists is rejected; the unnamed portal ("") is
// replaced by each new Bind.
func (s *Session) AddPortal(name string, stmt *PreparedStatement, args []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portals[name]; ok && name != "" {
		return pgerror.New(pgerrcode.DuplicateCursor, fmt.Sprintf("portal %q already exists", name))
	}
	s.portals[name] = &PreparedPortal{Name: name, Prepared: stmt, Args: args}
	return nil
}

func (s *Session) Portal(name string) (*PreparedPortal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portals[name]
	return p, ok
}

func (s *Session) DeletePortal(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.portals, name)
}

// Close releases the session's read-only SQLite connection. The pooled
// write connection outlives the session (other sessions against the
// same file share it) and is never closed here.
func (s *Session) Close() error {
	return s.DB.Close()
}

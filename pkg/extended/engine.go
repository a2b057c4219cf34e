// Package extended implements the Parse/Bind/Describe/Execute/Close/Sync
// state machine of §4.6: it keeps a session in Ready or InBatch, buffers
// responses until Sync, and discards the remainder of a batch once an
// error occurs. Grounded on the teacher's handleParse/handleBind/
// handleDescribe/handleExecute/handleSync in pkg/pgwire/conn.go (the
// primary separated-handler reference) with pkg/pgwire/handler_extended.go
// consulted for the Parse-supplied-vs-inferred parameter OID precedence
// (Open Question (b)).
package extended

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/kqlite/kqlite-pg/pkg/cache"
	"github.com/kqlite/kqlite-pg/pkg/catalog"
	"github.com/kqlite/kqlite-pg/pkg/pgerror"
	"github.com/kqlite/kqlite-pg/pkg/session"
	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
	"github.com/kqlite/kqlite-pg/pkg/translator"
	"github.com/kqlite/kqlite-pg/pkg/wire"
)

// State is the session's extended-protocol batch state (§4.6).
type State int

const (
	Ready State = iota
	InBatch
)

// Engine drives one session's Parse/Bind/Describe/Execute/Close/Sync
// sequence, accumulating responses in Writer's queue until Sync flushes
// them, per the ordering rules of §4.1 and §4.6.
type Engine struct {
	Session  *session.Session
	Pipeline *translator.Pipeline
	Writer   *wire.Writer

	// ParamCache and RowDescCache are the query-text-keyed caches of §4.8,
	// shared across every session against the same database; nil disables
	// caching for callers that don't attach one.
	ParamCache   *cache.ParamTypeCache
	RowDescCache *cache.RowDescriptionCache

	state       State
	batchFailed bool
}

func New(sess *session.Session, pipeline *translator.Pipeline, w *wire.Writer) *Engine {
	return &Engine{Session: sess, Pipeline: pipeline, Writer: w}
}

// WithCache attaches the parameter-type and row-description caches shared
// across every session against the same database file.
func (e *Engine) WithCache(set *cache.Set) *Engine {
	if set == nil {
		return e
	}
	e.ParamCache = set.ParamTypes
	e.RowDescCache = set.RowDesc
	return e
}

func (e *Engine) schemaVersion(ctx context.Context) int64 {
	v, err := catalog.SchemaVersion(ctx, e.Session.DB.RW())
	if err != nil {
		return 0
	}
	return v
}

func (e *Engine) paramCacheGet(ctx context.Context, query string) ([]uint32, bool) {
	if e.ParamCache == nil {
		return nil, false
	}
	entry, ok := e.ParamCache.Get(e.schemaVersion(ctx), query)
	if !ok {
		return nil, false
	}
	return entry.OIDs, true
}

func (e *Engine) paramCachePut(ctx context.Context, query string, oids []uint32) {
	if e.ParamCache == nil {
		return
	}
	e.ParamCache.Put(e.schemaVersion(ctx), query, cache.ParamTypeEntry{OIDs: oids})
}

func (e *Engine) rowDescCacheGet(ctx context.Context, translatedQuery string) ([]session.FieldDescription, bool) {
	if e.RowDescCache == nil {
		return nil, false
	}
	return e.RowDescCache.Get(e.schemaVersion(ctx), translatedQuery)
}

func (e *Engine) rowDescCachePut(ctx context.Context, translatedQuery string, fields []session.FieldDescription) {
	if e.RowDescCache == nil {
		return
	}
	e.RowDescCache.Put(e.schemaVersion(ctx), translatedQuery, fields)
}

// isRollbackStatement reports whether sql is a ROLLBACK or ROLLBACK TO
// SAVEPOINT — the only statements §4.5/§7 still let through once a
// transaction has failed.
func isRollbackStatement(sqlText string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "ROLLBACK")
}

// rejectIfAborted implements §4.5/§7's "current transaction is aborted"
// rule for the extended protocol: once TxStatus is TxFailed, every
// statement but ROLLBACK/ROLLBACK TO is refused with 25P02 until the
// client issues one. The bool return tells the caller whether to stop
// processing the message and return immediately — err alone can't carry
// that, since a successful e.fail still returns a nil write error.
func (e *Engine) rejectIfAborted(sqlText string) (bool, error) {
	if e.Session.TxStatus != session.TxFailed || isRollbackStatement(sqlText) {
		return false, nil
	}
	return true, e.fail(pgerror.TransactionAborted())
}

// HandleParse implements the Parse sub-message: translate, prepare
// against SQLite, and infer parameter/result types unless the client
// already supplied them.
func (e *Engine) HandleParse(ctx context.Context, msg *pgproto3.Parse) error {
	e.state = InBatch
	if e.batchFailed {
		return nil
	}
	if aborted, err := e.rejectIfAborted(msg.Query); aborted {
		return err
	}

	name := msg.Name
	if _, exists := e.Session.PreparedStatement(name); exists && name != "" {
		return e.fail(pgerror.New(pgerrcode.DuplicatePreparedStatement,
			fmt.Sprintf("prepared statement %q already exists", name)))
	}

	result, err := e.Pipeline.Translate(ctx, e.Session.DB.RW(), msg.Query)
	if err != nil {
		return e.fail(pgerror.ErrWithCode(err, pgerrcode.SyntaxErrorOrAccessRuleViolation))
	}

	var paramOIDs []uint32
	if len(msg.ParameterOIDs) > 0 {
		// Open Question (b): Parse-supplied OIDs are authoritative.
		paramOIDs = msg.ParameterOIDs
	} else if cached, ok := e.paramCacheGet(ctx, result.SQL); ok {
		paramOIDs = cached
	} else {
		paramOIDs, err = InferParamTypes(ctx, e.Session.DB, result.SQL)
		if err != nil {
			return e.fail(pgerror.ErrWithCode(err, pgerrcode.InternalError))
		}
		e.paramCachePut(ctx, result.SQL, paramOIDs)
	}

	var stmt *sql.Stmt
	if !translator.IsCatalogQuery(result.SQL) {
		stmt, err = e.Session.DB.RW().PrepareContext(ctx, result.SQL)
		if err != nil {
			return e.fail(pgerror.ErrWithCode(err, pgerror.Classify(err)))
		}
	}

	ps := &session.PreparedStatement{
		Name:        name,
		OriginalSQL: msg.Query,
		SQL:         result.SQL,
		Stmt:        stmt,
		ParamOIDs:   paramOIDs,
		RowDescHint: result.RowDescHint,
	}
	if err := e.Session.AddPreparedStatement(name, ps); err != nil {
		return e.fail(err)
	}
	return e.Writer.Queue(&pgproto3.ParseComplete{})
}

// HandleBind implements the Bind sub-message: decode parameters through
// the type system per their format codes and create a named portal.
func (e *Engine) HandleBind(ctx context.Context, msg *pgproto3.Bind, codec pgtypeCodec) error {
	e.state = InBatch
	if e.batchFailed {
		return nil
	}

	ps, ok := e.Session.PreparedStatement(msg.PreparedStatement)
	if !ok {
		return e.fail(pgerror.New(pgerrcode.InvalidSQLStatementName,
			fmt.Sprintf("prepared statement %q does not exist", msg.PreparedStatement)))
	}
	if aborted, err := e.rejectIfAborted(ps.SQL); aborted {
		return err
	}

	args := make([]any, len(msg.Parameters))
	for i, raw := range msg.Parameters {
		format := formatAt(msg.ParameterFormatCodes, i)
		oid := oidAt(ps.ParamOIDs, i)
		v, err := codec.DecodeValue(oid, format, raw)
		if err != nil {
			return e.fail(pgerror.ErrWithCode(err, pgerrcode.InvalidBinaryRepresentation))
		}
		args[i] = v
	}

	if err := e.Session.AddPortal(msg.DestinationPortal, ps, args); err != nil {
		return e.fail(err)
	}
	if portal, ok := e.Session.Portal(msg.DestinationPortal); ok {
		portal.ResultFormats = msg.ResultFormatCodes
	}
	return e.Writer.Queue(&pgproto3.BindComplete{})
}

// HandleDescribe implements Describe-Statement and Describe-Portal.
func (e *Engine) HandleDescribe(ctx context.Context, msg *pgproto3.Describe) error {
	e.state = InBatch
	if e.batchFailed {
		return nil
	}

	var ps *session.PreparedStatement
	switch msg.ObjectType {
	case 'S':
		p, ok := e.Session.PreparedStatement(msg.Name)
		if !ok {
			return e.fail(pgerror.New(pgerrcode.InvalidSQLStatementName,
				fmt.Sprintf("prepared statement %q does not exist", msg.Name)))
		}
		ps = p
		if aborted, err := e.rejectIfAborted(ps.SQL); aborted {
			return err
		}
		if err := e.Writer.Queue(&pgproto3.ParameterDescription{ParameterOIDs: ps.ParamOIDs}); err != nil {
			return err
		}
	case 'P':
		portal, ok := e.Session.Portal(msg.Name)
		if !ok {
			return e.fail(pgerror.New(pgerrcode.InvalidCursorName,
				fmt.Sprintf("portal %q does not exist", msg.Name)))
		}
		ps = portal.Prepared
		if aborted, err := e.rejectIfAborted(ps.SQL); aborted {
			return err
		}
	default:
		return e.fail(fmt.Errorf("unknown describe target %q", msg.ObjectType))
	}

	// §4.1/§4.6: a statement with no result rows gets NoData, and must
	// never be run just to learn that — describeFields would step the
	// prepared statement, and stepping an INSERT/UPDATE/DELETE performs
	// its write.
	if isEmptyResultShape(ps) {
		return e.Writer.Queue(&pgproto3.NoData{})
	}

	if len(ps.Fields) == 0 && ps.Stmt != nil {
		if cached, ok := e.rowDescCacheGet(ctx, ps.SQL); ok {
			ps.Fields = cached
		} else {
			fields, err := describeFields(ctx, e.Session, ps)
			if err != nil {
				return e.fail(pgerror.ErrWithCode(err, pgerror.Classify(err)))
			}
			ps.Fields = fields
			e.rowDescCachePut(ctx, ps.SQL, fields)
		}
	}

	return e.Writer.Queue(ToRowDescription(ps.Fields))
}

// isEmptyResultShape reports whether a statement produces no result rows
// at all (e.g. DDL, or DML without RETURNING) and therefore NoData rather
// than an (empty) RowDescription is the correct Describe response.
func isEmptyResultShape(ps *session.PreparedStatement) bool {
	upper := strings.ToUpper(strings.TrimSpace(ps.SQL))
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") ||
		strings.HasPrefix(upper, "PRAGMA") || strings.Contains(upper, "RETURNING") {
		return false
	}
	return true
}

// HandleExecute runs a bound portal to completion and streams DataRow
// messages followed by CommandComplete. Execute's row limit (MaxRows) is
// not applied: every row is sent, and PortalSuspended is never emitted.
func (e *Engine) HandleExecute(ctx context.Context, msg *pgproto3.Execute, codec pgtypeCodec) error {
	e.state = InBatch
	if e.batchFailed {
		return nil
	}

	portal, ok := e.Session.Portal(msg.Portal)
	if !ok {
		return e.fail(pgerror.New(pgerrcode.InvalidCursorName,
			fmt.Sprintf("portal %q does not exist", msg.Portal)))
	}
	ps := portal.Prepared
	if aborted, err := e.rejectIfAborted(ps.SQL); aborted {
		return err
	}

	if ps.Stmt == nil {
		// Catalog or DDL-only statement handled directly against the RW
		// connection; no rows expected.
		if _, err := e.Session.DB.RW().ExecContext(ctx, ps.SQL); err != nil {
			return e.fail(pgerror.ErrWithCode(err, pgerror.Classify(err)))
		}
		return e.Writer.Queue(&pgproto3.CommandComplete{CommandTag: []byte(tagForSQL(ps.SQL, 0))})
	}

	rows, err := ps.Stmt.QueryContext(ctx, portal.Args...)
	if err != nil {
		return e.fail(pgerror.ErrWithCode(err, pgerror.Classify(err)))
	}
	defer rows.Close()

	if len(ps.Fields) == 0 {
		fields, err := InferRowDescription(rows, ps.RowDescHint)
		if err != nil {
			return e.fail(err)
		}
		ps.Fields = fields
	}

	var n int64
	for rows.Next() {
		vals, err := scanRow(rows, len(ps.Fields))
		if err != nil {
			return e.fail(err)
		}
		encoded := make([][]byte, len(vals))
		for i, v := range vals {
			format := formatAt(portal.ResultFormats, i)
			b, err := codec.EncodeValue(ps.Fields[i].TypeOID, format, v)
			if err != nil {
				return e.fail(err)
			}
			encoded[i] = b
		}
		if err := e.Writer.Queue(&pgproto3.DataRow{Values: encoded}); err != nil {
			return err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return e.fail(pgerror.ErrWithCode(err, pgerror.Classify(err)))
	}

	return e.Writer.Queue(&pgproto3.CommandComplete{CommandTag: []byte(tagForSQL(ps.OriginalSQL, n))})
}

// HandleClose implements Close-Statement/Close-Portal.
func (e *Engine) HandleClose(msg *pgproto3.Close) error {
	e.state = InBatch
	if e.batchFailed {
		return nil
	}
	switch msg.ObjectType {
	case 'S':
		if ps, ok := e.Session.PreparedStatement(msg.Name); ok && ps.Stmt != nil {
			ps.Stmt.Close()
		}
		e.Session.DeletePreparedStatement(msg.Name)
	case 'P':
		e.Session.DeletePortal(msg.Name)
	}
	return e.Writer.Queue(&pgproto3.CloseComplete{})
}

// HandleSync flushes every buffered response then emits ReadyForQuery,
// resetting the batch for the next round (§4.1, §4.6).
func (e *Engine) HandleSync() error {
	if err := e.Writer.Flush(); err != nil {
		return err
	}
	status := wire.TxIdle
	if e.Session.InTxn {
		status = wire.TxActive
	}
	if e.Session.TxStatus == session.TxFailed {
		status = wire.TxFailed
	}
	e.batchFailed = false
	e.state = Ready
	return e.Writer.SendReadyForQuery(status)
}

// fail emits an ErrorResponse immediately and marks the batch so every
// subsequent message is discarded without processing until Sync, per
// §4.6: "On any error inside InBatch ... discard every subsequent
// message in the batch without processing until Sync arrives."
func (e *Engine) fail(err error) error {
	e.batchFailed = true
	if e.Session.InTxn {
		e.Session.TxStatus = session.TxFailed
	}
	return e.Writer.Send(&pgproto3.ErrorResponse{
		Severity: string(pgerror.GetSeverity(err)),
		Code:     pgerror.GetPGCode(err),
		Message:  err.Error(),
	})
}

func formatAt(codes []int16, i int) int16 {
	if len(codes) == 0 {
		return 0
	}
	if len(codes) == 1 {
		return codes[0]
	}
	if i < len(codes) {
		return codes[i]
	}
	return 0
}

func oidAt(oids []uint32, i int) uint32 {
	if i < len(oids) {
		return oids[i]
	}
	return 25 // text fallback (§4.6: "default to text")
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	refs := make([]any, n)
	vals := make([]any, n)
	for i := range refs {
		refs[i] = &vals[i]
	}
	if err := rows.Scan(refs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func tagForSQL(sqlText string, n int64) string {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	switch {
	case strings.HasPrefix(upper, "SELECT"), strings.HasPrefix(upper, "WITH"):
		return fmt.Sprintf("SELECT %d", n)
	case strings.HasPrefix(upper, "INSERT"):
		return fmt.Sprintf("INSERT 0 %d", n)
	case strings.HasPrefix(upper, "UPDATE"):
		return fmt.Sprintf("UPDATE %d", n)
	case strings.HasPrefix(upper, "DELETE"):
		return fmt.Sprintf("DELETE %d", n)
	case strings.HasPrefix(upper, "CREATE"):
		return "CREATE TABLE"
	default:
		return "OK"
	}
}

// describeFields recovers a statement's row shape for the Describe-before-
// Bind path (§4.6(a)) without ever causing a write: a SELECT/WITH/PRAGMA is
// read-only to step with unbound parameters, so its column metadata is
// read off a live (zero-row-consuming) query the same way HandleExecute
// does; an INSERT/UPDATE/DELETE ... RETURNING is never stepped here at
// all — go-sqlite3 executes a prepared DML statement's write as a side
// effect of the very first Step(), so its shape is resolved purely from
// the translator's RowDescHint plus pragma_table_info instead (§4.6(b)).
func describeFields(ctx context.Context, sess *session.Session, ps *session.PreparedStatement) ([]session.FieldDescription, error) {
	upper := strings.ToUpper(strings.TrimSpace(ps.SQL))
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") || strings.HasPrefix(upper, "PRAGMA") {
		rows, err := ps.Stmt.QueryContext(ctx, placeholderArgs(ps.ParamOIDs)...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return InferRowDescription(rows, ps.RowDescHint)
	}

	return StaticReturningFields(ctx, sess.DB.RW(), ps.SQL, ps.RowDescHint)
}

func placeholderArgs(oids []uint32) []any {
	args := make([]any, len(oids))
	for i := range args {
		args[i] = nil
	}
	return args
}

// pgtypeCodec is the narrow interface describeFields/HandleBind/
// HandleExecute need from pkg/pgtype.Codec, kept local to avoid an import
// cycle (pkg/pgtype has no dependency on pkg/extended).
type pgtypeCodec interface {
	EncodeValue(oid uint32, formatCode int16, value any) ([]byte, error)
	DecodeValue(oid uint32, formatCode int16, data []byte) (any, error)
}

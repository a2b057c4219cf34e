package server

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/kqlite/kqlite-pg/pkg/executor"
	"github.com/kqlite/kqlite-pg/pkg/extended"
	"github.com/kqlite/kqlite-pg/pkg/pgerror"
	"github.com/kqlite/kqlite-pg/pkg/pgtype"
	"github.com/kqlite/kqlite-pg/pkg/session"
	"github.com/kqlite/kqlite-pg/pkg/wire"
)

// conn is one accepted TCP connection carried through the startup
// handshake into a steady-state session, per §6. Grounded on the
// teacher's ClientConn in pkg/pgwire/conn.go: same handshake shape, the
// dispatch loop rebuilt against this gateway's executor/extended split
// rather than the teacher's monolithic handler methods.
type conn struct {
	server    *Server
	netConn   net.Conn
	codec     *wire.Codec
	writer    *wire.Writer
	cancelKey cancelKey
}

func newConn(nc net.Conn, s *Server) *conn {
	return &conn{
		server:  s,
		netConn: nc,
		codec:   wire.NewCodec(nc),
		writer:  wire.NewWriter(nc),
	}
}

func (c *conn) close() error {
	return c.netConn.Close()
}

// serve runs the startup handshake then the steady-state message loop
// until Terminate, EOF, or ctx cancellation.
func (c *conn) serve(ctx context.Context) error {
	sess, err := c.handshake(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		// CancelRequest connection: handled and closed, nothing to serve.
		return nil
	}
	defer sess.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.server.registerCancelKey(c.cancelKey, cancel)

	codec := pgtype.NewCodec()
	caches := c.server.cacheFor(sess.DB.GetName())
	eng := extended.New(sess, c.server.pipeline, c.writer).WithCache(caches)
	ex := executor.New(sess, c.server.pipeline).WithCache(caches.Translation)

	for {
		msg, err := c.codec.Receive()
		if err != nil {
			return err
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			if err := c.handleQuery(connCtx, ex, sess, m.String); err != nil {
				return err
			}

		case *pgproto3.Parse:
			if err := eng.HandleParse(connCtx, m); err != nil {
				return err
			}

		case *pgproto3.Bind:
			if err := eng.HandleBind(connCtx, m, codec); err != nil {
				return err
			}

		case *pgproto3.Describe:
			if err := eng.HandleDescribe(connCtx, m); err != nil {
				return err
			}

		case *pgproto3.Execute:
			if err := eng.HandleExecute(connCtx, m, codec); err != nil {
				return err
			}

		case *pgproto3.Close:
			if err := eng.HandleClose(m); err != nil {
				return err
			}

		case *pgproto3.Flush:
			if err := c.writer.Flush(); err != nil {
				return err
			}

		case *pgproto3.Sync:
			if err := eng.HandleSync(); err != nil {
				return err
			}

		case *pgproto3.Terminate:
			return nil

		default:
			return fmt.Errorf("unsupported message type %T", msg)
		}
	}
}

// handleQuery runs one simple-query-protocol statement and emits
// RowDescription/DataRow*/CommandComplete/ReadyForQuery in the order §4.1
// requires, or an empty-query response for whitespace-only input.
func (c *conn) handleQuery(ctx context.Context, ex *executor.Executor, sess *session.Session, query string) error {
	if strings.TrimSpace(query) == "" {
		if err := c.writer.SendEmptyQueryResponse(); err != nil {
			return err
		}
		return c.sendReady(sess)
	}

	result, err := ex.ExecuteSimple(ctx, query)
	if err != nil {
		if sendErr := c.sendError(err); sendErr != nil {
			return sendErr
		}
		return c.sendReady(sess)
	}

	if result.HasSynthetic {
		if err := c.writer.Queue(&pgproto3.RowDescription{Fields: []pgproto3.FieldDescription{
			{Name: []byte(result.SyntheticColumn), DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
		}}); err != nil {
			return err
		}
		if err := c.writer.Queue(&pgproto3.DataRow{Values: [][]byte{[]byte(result.SyntheticValue)}}); err != nil {
			return err
		}
		if err := c.writer.Queue(&pgproto3.CommandComplete{CommandTag: []byte(result.CommandTag)}); err != nil {
			return err
		}
		return c.sendReady(sess)
	}

	if result.Rows == nil {
		if err := c.writer.Queue(&pgproto3.CommandComplete{CommandTag: []byte(result.CommandTag)}); err != nil {
			return err
		}
		return c.sendReady(sess)
	}
	defer result.Rows.Close()

	fields, err := extended.InferRowDescription(result.Rows, result.RowDescHint)
	if err != nil {
		if sendErr := c.sendError(err); sendErr != nil {
			return sendErr
		}
		return c.sendReady(sess)
	}
	if err := c.writer.Queue(extended.ToRowDescription(fields)); err != nil {
		return err
	}

	codec := pgtype.NewCodec()
	var n int64
	refs := make([]any, len(fields))
	vals := make([]any, len(fields))
	for i := range refs {
		refs[i] = &vals[i]
	}
	for result.Rows.Next() {
		if err := result.Rows.Scan(refs...); err != nil {
			if sendErr := c.sendError(err); sendErr != nil {
				return sendErr
			}
			return c.sendReady(sess)
		}
		encoded := make([][]byte, len(fields))
		for i, v := range vals {
			b, err := codec.EncodeValue(fields[i].TypeOID, 0, v)
			if err != nil {
				if sendErr := c.sendError(err); sendErr != nil {
					return sendErr
				}
				return c.sendReady(sess)
			}
			encoded[i] = b
		}
		if err := c.writer.Queue(&pgproto3.DataRow{Values: encoded}); err != nil {
			return err
		}
		n++
	}
	if err := result.Rows.Err(); err != nil {
		if sendErr := c.sendError(err); sendErr != nil {
			return sendErr
		}
		return c.sendReady(sess)
	}

	tag := result.CommandTag
	if tag == "" {
		tag = fmt.Sprintf("SELECT %d", n)
	} else if tag == "SELECT" {
		tag = fmt.Sprintf("SELECT %d", n)
	}
	if err := c.writer.Queue(&pgproto3.CommandComplete{CommandTag: []byte(tag)}); err != nil {
		return err
	}
	return c.sendReady(sess)
}

func (c *conn) sendError(err error) error {
	return c.writer.Send(&pgproto3.ErrorResponse{
		Severity: string(pgerror.GetSeverity(err)),
		Code:     pgerror.GetPGCode(err),
		Message:  err.Error(),
	})
}

func (c *conn) sendReady(sess *session.Session) error {
	status := wire.TxIdle
	switch {
	case sess.TxStatus == session.TxFailed:
		status = wire.TxFailed
	case sess.InTxn:
		status = wire.TxActive
	}
	return c.writer.Send(&pgproto3.ReadyForQuery{TxStatus: byte(status)})
}

// handshake drives §6 steps 1-3: negotiate away SSL/GSS, service a
// CancelRequest directly, or open the named database and complete the
// startup sequence for a StartupMessage.
func (c *conn) handshake(ctx context.Context) (*session.Session, error) {
	for {
		msg, err := c.codec.ReceiveStartupMessage()
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case *pgproto3.SSLRequest, *pgproto3.GSSEncRequest:
			if _, err := c.codec.Raw().Write([]byte{'N'}); err != nil {
				return nil, err
			}
			continue

		case *pgproto3.CancelRequest:
			c.server.handleCancelRequest(int32(m.ProcessID), int32(m.SecretKey))
			return nil, nil

		case *pgproto3.StartupMessage:
			return c.startSession(ctx, m)

		default:
			return nil, fmt.Errorf("unexpected startup message %T", msg)
		}
	}
}

func (c *conn) startSession(ctx context.Context, m *pgproto3.StartupMessage) (*session.Session, error) {
	dbName := m.Parameters["database"]
	if dbName == "" {
		dbName = m.Parameters["user"]
	}

	db, err := c.server.openDatabase(ctx, dbName)
	if err != nil {
		sendErr := c.writer.Send(&pgproto3.ErrorResponse{
			Severity: string(pgerror.SeverityFatal),
			Code:     "3D000",
			Message:  fmt.Sprintf("database %q does not exist or could not be opened: %v", dbName, err),
		})
		if sendErr != nil {
			return nil, sendErr
		}
		return nil, err
	}

	sess := session.New(db)
	if user, ok := m.Parameters["user"]; ok {
		sess.Set("application_name", m.Parameters["application_name"])
		sess.Set("user", user)
	}

	pid, secret := newCancelSecret()
	c.cancelKey = cancelKey{pid: pid, secret: secret}

	if err := c.writer.Queue(&pgproto3.AuthenticationOk{}); err != nil {
		return nil, err
	}
	for _, ps := range startupParameterStatuses() {
		if err := c.writer.Queue(&pgproto3.ParameterStatus{Name: ps[0], Value: ps[1]}); err != nil {
			return nil, err
		}
	}
	if err := c.writer.Queue(&pgproto3.BackendKeyData{ProcessID: uint32(pid), SecretKey: uint32(secret)}); err != nil {
		return nil, err
	}
	if err := c.writer.Send(&pgproto3.ReadyForQuery{TxStatus: byte(wire.TxIdle)}); err != nil {
		return nil, err
	}
	return sess, nil
}

// startupParameterStatuses is the fixed ParameterStatus set every session
// advertises at login (§6 step 3), matching what libpq-based clients
// expect to see before they'll trust server_version-gated behavior.
func startupParameterStatuses() [][2]string {
	return [][2]string{
		{"server_version", ServerVersion},
		{"client_encoding", "UTF8"},
		{"DateStyle", "ISO, MDY"},
		{"TimeZone", "UTC"},
		{"integer_datetimes", "on"},
		{"standard_conforming_strings", "on"},
	}
}

package wire

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgproto3"
)

// MaxFrameSize caps the 32-bit length field to guard against malformed or
// hostile frames; §4.1 requires failing the session on oversized frames.
const MaxFrameSize = 64 << 20

// Codec wraps pgproto3's Backend for the startup handshake and the steady
// state message loop. pgproto3 already does incremental, allocation-light
// frame parsing (the reference the teacher's conn.go builds on), so the
// codec's job here is to enforce the frame-size ceiling and centralise the
// read/write surface the rest of the gateway talks to.
type Codec struct {
	backend *pgproto3.Backend
	rw      io.ReadWriter
}

func NewCodec(rw io.ReadWriter) *Codec {
	br := bufio.NewReader(rw)
	backend := pgproto3.NewBackend(br, rw)
	backend.SetAuthType(pgproto3.AuthTypeOk)
	backend.SetMaxBodyLen(MaxFrameSize)
	return &Codec{backend: backend, rw: rw}
}

// ReceiveStartupMessage reads either a StartupMessage, an SSLRequest, a
// GSSEncRequest or a CancelRequest, per §6 step 1-2.
func (c *Codec) ReceiveStartupMessage() (pgproto3.FrontendMessage, error) {
	msg, err := c.backend.ReceiveStartupMessage()
	if err != nil {
		return nil, fmt.Errorf("receive startup message: %w", err)
	}
	return msg, nil
}

// Receive reads the next frontend message once the session is past the
// startup handshake.
func (c *Codec) Receive() (pgproto3.FrontendMessage, error) {
	msg, err := c.backend.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	return msg, nil
}

// Raw exposes the underlying writer for the one caller (SSLRequest reply)
// that must write a single unframed byte rather than a pgproto3 message.
func (c *Codec) Raw() io.Writer { return c.rw }

package wire

import (
	"io"

	"github.com/jackc/pgx/v5/pgproto3"
)

// interned holds static text encodings for a handful of small values,
// exposed through InternedInt and InternedBool. The row-encoding path
// (pkg/pgtype's Codec.EncodeValue) does not use them and allocates a
// fresh slice per value.
var interned = struct {
	zero, one, minusOne []byte
	trueB, falseB       []byte
	empty               []byte
}{
	zero:     []byte("0"),
	one:      []byte("1"),
	minusOne: []byte("-1"),
	trueB:    []byte("t"),
	falseB:   []byte("f"),
	empty:    []byte(""),
}

// InternedInt returns a shared byte slice for small integers and the
// zero-allocation fallback (nil) otherwise.
func InternedInt(v int64) []byte {
	switch v {
	case 0:
		return interned.zero
	case 1:
		return interned.one
	case -1:
		return interned.minusOne
	default:
		return nil
	}
}

func InternedBool(v bool) []byte {
	if v {
		return interned.trueB
	}
	return interned.falseB
}

// Writer is a typed façade over pgproto3 backend messages, batching every
// message belonging to one logical response into a single underlying
// Write call, mirroring the teacher's writeMessages idiom.
type Writer struct {
	w   io.Writer
	buf []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, buf: make([]byte, 0, 4096)}
}

// Queue appends an encoded message to the pending batch without writing.
func (w *Writer) Queue(msgs ...pgproto3.BackendMessage) error {
	for _, m := range msgs {
		buf, err := m.Encode(w.buf)
		if err != nil {
			return err
		}
		w.buf = buf
	}
	return nil
}

// Flush writes every queued message in one call and resets the batch.
func (w *Writer) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	_, err := w.w.Write(w.buf)
	w.buf = w.buf[:0]
	return err
}

// Send queues then immediately flushes; convenience for single-message
// emissions outside a batched response group.
func (w *Writer) Send(msgs ...pgproto3.BackendMessage) error {
	if err := w.Queue(msgs...); err != nil {
		return err
	}
	return w.Flush()
}

func (w *Writer) SendReadyForQuery(status TransactionStatus) error {
	return w.Send(&pgproto3.ReadyForQuery{TxStatus: byte(status)})
}

func (w *Writer) SendRowDescription(fields []pgproto3.FieldDescription) error {
	return w.Queue(&pgproto3.RowDescription{Fields: fields})
}

func (w *Writer) SendDataRow(values [][]byte) error {
	return w.Queue(&pgproto3.DataRow{Values: values})
}

func (w *Writer) SendCommandComplete(tag string) error {
	return w.Queue(&pgproto3.CommandComplete{CommandTag: []byte(tag)})
}

func (w *Writer) SendEmptyQueryResponse() error {
	return w.Queue(&pgproto3.EmptyQueryResponse{})
}

func (w *Writer) SendError(resp *pgproto3.ErrorResponse) error {
	return w.Queue(resp)
}

func (w *Writer) SendNotice(resp *pgproto3.NoticeResponse) error {
	return w.Queue(resp)
}

package wire

import (
	"bytes"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
)

func TestWriterBatchesIntoOneWrite(t *testing.T) {
	var sink countingWriter
	w := NewWriter(&sink)

	if err := w.Queue(
		&pgproto3.ParseComplete{},
		&pgproto3.BindComplete{},
		&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")},
	); err != nil {
		t.Fatalf("queue: %v", err)
	}
	if err := w.SendReadyForQuery(TxIdle); err != nil {
		t.Fatalf("send: %v", err)
	}

	if sink.writes != 1 {
		t.Fatalf("expected all queued messages plus ReadyForQuery to land in a single underlying Write, got %d calls", sink.writes)
	}
}

type countingWriter struct {
	writes int
	buf    bytes.Buffer
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.buf.Write(p)
}

func TestInternedValues(t *testing.T) {
	cases := []struct {
		v    int64
		want string
	}{
		{0, "0"},
		{1, "1"},
		{-1, "-1"},
	}
	for _, c := range cases {
		got := InternedInt(c.v)
		if string(got) != c.want {
			t.Errorf("InternedInt(%d) = %q, want %q", c.v, got, c.want)
		}
	}
	if InternedInt(42) != nil {
		t.Errorf("InternedInt(42) should not be interned")
	}
	if string(InternedBool(true)) != "t" || string(InternedBool(false)) != "f" {
		t.Errorf("InternedBool encoding mismatch")
	}
}

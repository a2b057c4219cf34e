package pgtype

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// Codec wraps a *pgtype.Map, adding the storage-class-aware encode/decode
// helpers the executor and extended protocol engine need; it does not
// intern small values. Grounded on the teacher's use of typeMap.Encode
// in pkg/pgwire/utils.go, generalized into its own package so both the
// simple and extended code paths share one instance.
type Codec struct {
	m *pgtype.Map
}

func NewCodec() *Codec {
	return &Codec{m: pgtype.NewMap()}
}

// EncodeValue renders a Go value into wire bytes for the given OID and
// format code (0 = text, 1 = binary).
func (c *Codec) EncodeValue(oid uint32, formatCode int16, value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	buf, err := c.m.Encode(oid, formatCode, value, nil)
	if err != nil {
		return nil, fmt.Errorf("encode oid=%d: %w", oid, err)
	}
	return buf, nil
}

// DecodeValue parses wire bytes for the given OID/format code into a Go
// value suitable for binding into a SQLite statement.
func (c *Codec) DecodeValue(oid uint32, formatCode int16, data []byte) (any, error) {
	if data == nil {
		return nil, nil
	}
	var dst any
	if err := c.m.Scan(oid, formatCode, data, &dst); err != nil {
		return decodeFallback(oid, formatCode, data)
	}
	return dst, nil
}

// decodeFallback covers OIDs pgtype.Map doesn't know how to Scan into a
// bare `any` (e.g. our synthetic enum OIDs >= 10000): fall back to the
// raw text/bytes, since every shadow-catalog-driven SQLite column stores
// these as TEXT already.
func decodeFallback(oid uint32, formatCode int16, data []byte) (any, error) {
	if formatCode == 1 {
		return data, nil
	}
	return string(data), nil
}

// Map exposes the underlying pgtype.Map for callers (extended protocol
// row-description inference) that need direct access to type metadata.
func (c *Codec) Map() *pgtype.Map { return c.m }

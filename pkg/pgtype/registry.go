// Package pgtype is the canonical PostgreSQL type registry: OIDs, SQLite
// storage classes, and text/binary codec wrappers driven by pgx/v5/pgtype.
package pgtype

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// StorageClass is the SQLite storage class a wire type is persisted as.
type StorageClass string

const (
	StorageInteger StorageClass = "INTEGER"
	StorageReal    StorageClass = "REAL"
	StorageText    StorageClass = "TEXT"
	StorageBlob    StorageClass = "BLOB"
)

// TypeInfo describes one entry of the canonical registry (§4.2).
type TypeInfo struct {
	OID     uint32
	Name    string
	Storage StorageClass
	// Width is the fixed byte width on the wire, or -1 for variable length.
	Width int
}

// Registry is the full built-in type table, keyed by OID and by name.
var (
	byOID  = map[uint32]TypeInfo{}
	byName = map[string]TypeInfo{}
)

func register(t TypeInfo) {
	byOID[t.OID] = t
	byName[t.Name] = t
}

func init() {
	register(TypeInfo{pgtype.BoolOID, "bool", StorageInteger, 1})
	register(TypeInfo{pgtype.Int2OID, "int2", StorageInteger, 2})
	register(TypeInfo{pgtype.Int4OID, "int4", StorageInteger, 4})
	register(TypeInfo{pgtype.Int8OID, "int8", StorageInteger, 8})
	register(TypeInfo{pgtype.Float4OID, "float4", StorageReal, 4})
	register(TypeInfo{pgtype.Float8OID, "float8", StorageReal, 8})
	register(TypeInfo{pgtype.NumericOID, "numeric", StorageText, -1})
	register(TypeInfo{pgtype.TextOID, "text", StorageText, -1})
	register(TypeInfo{pgtype.VarcharOID, "varchar", StorageText, -1})
	register(TypeInfo{pgtype.BPCharOID, "bpchar", StorageText, -1})
	register(TypeInfo{pgtype.ByteaOID, "bytea", StorageBlob, -1})
	register(TypeInfo{pgtype.DateOID, "date", StorageInteger, 4})
	register(TypeInfo{pgtype.TimeOID, "time", StorageInteger, 8})
	register(TypeInfo{pgtype.TimestampOID, "timestamp", StorageInteger, 8})
	register(TypeInfo{pgtype.TimestamptzOID, "timestamptz", StorageInteger, 8})
	register(TypeInfo{pgtype.IntervalOID, "interval", StorageInteger, 8})
	register(TypeInfo{pgtype.UUIDOID, "uuid", StorageText, 16})
	register(TypeInfo{pgtype.JSONOID, "json", StorageText, -1})
	register(TypeInfo{pgtype.JSONBOID, "jsonb", StorageText, -1})
	register(TypeInfo{pgtype.InetOID, "inet", StorageText, -1})
	register(TypeInfo{pgtype.CIDROID, "cidr", StorageText, -1})
	register(TypeInfo{pgtype.MacaddrOID, "macaddr", StorageText, 6})
	register(TypeInfo{790, "money", StorageText, 8})
	register(TypeInfo{pgtype.BitOID, "bit", StorageText, -1})
	register(TypeInfo{pgtype.VarbitOID, "varbit", StorageText, -1})
	register(TypeInfo{pgtype.Int4rangeOID, "int4range", StorageText, -1})
	register(TypeInfo{pgtype.Int8rangeOID, "int8range", StorageText, -1})
	register(TypeInfo{pgtype.NumrangeOID, "numrange", StorageText, -1})
	register(TypeInfo{pgtype.DaterangeOID, "daterange", StorageText, -1})
	register(TypeInfo{pgtype.TstzrangeOID, "tstzrange", StorageText, -1})

	// Array variants carry their element's storage class through JSON text.
	register(TypeInfo{pgtype.BoolArrayOID, "_bool", StorageText, -1})
	register(TypeInfo{pgtype.Int2ArrayOID, "_int2", StorageText, -1})
	register(TypeInfo{pgtype.Int4ArrayOID, "_int4", StorageText, -1})
	register(TypeInfo{pgtype.Int8ArrayOID, "_int8", StorageText, -1})
	register(TypeInfo{pgtype.Float4ArrayOID, "_float4", StorageText, -1})
	register(TypeInfo{pgtype.Float8ArrayOID, "_float8", StorageText, -1})
	register(TypeInfo{pgtype.TextArrayOID, "_text", StorageText, -1})
	register(TypeInfo{pgtype.VarcharArrayOID, "_varchar", StorageText, -1})
}

// EnumBaseOID is the first synthetic OID handed out to a user-defined enum
// type, per §3 ("synthetic type OID (>= 10000, unique, monotonic)").
const EnumBaseOID = 10000

func Lookup(oid uint32) (TypeInfo, bool) {
	t, ok := byOID[oid]
	return t, ok
}

func LookupByName(name string) (TypeInfo, bool) {
	t, ok := byName[name]
	return t, ok
}

func StorageFor(oid uint32) StorageClass {
	if t, ok := byOID[oid]; ok {
		return t.Storage
	}
	if oid >= EnumBaseOID {
		return StorageText
	}
	return StorageText
}

package catalog

import (
	"database/sql/driver"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// queryRaw runs sqlText against the low-level driver connection (the
// surface RowSource implementations get, since they run inside the
// ConnectHook before a *sql.DB wrapper exists) and collects every row.
func queryRaw(conn *sqlite3.SQLiteConn, sqlText string) ([][]driver.Value, error) {
	stmt, err := conn.Prepare(sqlText)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.Query(nil)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	var out [][]driver.Value
	for {
		vals := make([]driver.Value, len(cols))
		if err := rows.Next(vals); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, vals)
	}
	return out, nil
}

// relOID computes a stable OID for a relation name, per §4.7: "OID
// computed as a stable hash of the table name".
func relOID(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	// Keep user relation OIDs out of the low range reserved for built-in
	// catalog/type OIDs and the enum OID range.
	return 20000 + (h.Sum32() % 1_000_000)
}

// userTables lists every non-shadow, non-sqlite_ table in the database,
// returning (name, type, sql) triples from sqlite_master.
func userTables(conn *sqlite3.SQLiteConn) ([][]driver.Value, error) {
	return queryRaw(conn, `SELECT name, type, sql FROM sqlite_master
		WHERE type IN ('table', 'view', 'index')
		AND name NOT LIKE 'sqlite_%'
		AND name NOT LIKE '`+Reserved+`%'`)
}

func pgClassRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	tables, err := userTables(conn)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	for _, t := range tables {
		name, _ := t[0].(string)
		kind, _ := t[1].(string)

		var relkind string
		switch kind {
		case "table":
			relkind = "r"
		case "view":
			relkind = "v"
		case "index":
			relkind = "i"
		default:
			continue
		}

		natts, _ := columnCount(conn, name)
		rows = append(rows, []any{
			int64(relOID(name)), name, int64(11), int64(0), int64(0), int64(0),
			int64(0), int64(0), int64(0), int64(0), float64(0), int64(0),
			int64(0), int64(0), int64(0), "p", relkind, int64(natts),
			int64(0), int64(0), int64(0), int64(0), int64(0), int64(0),
			int64(1), "d", int64(0), int64(0), int64(0), int64(0), nil, nil, nil,
		})
	}
	return rows, nil
}

func columnCount(conn *sqlite3.SQLiteConn, table string) (int, error) {
	rows, err := queryRaw(conn, fmt.Sprintf(`SELECT COUNT(*) FROM pragma_table_info('%s')`, strings.ReplaceAll(table, "'", "''")))
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	switch v := rows[0][0].(type) {
	case int64:
		return int(v), nil
	default:
		return 0, nil
	}
}

func pgNamespaceRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	return [][]any{
		{int64(11), "public", int64(10), nil},
		{int64(99), "pg_catalog", int64(10), nil},
	}, nil
}

func pgAttributeRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	tables, err := userTables(conn)
	if err != nil {
		return nil, err
	}
	var rows [][]any
	for _, t := range tables {
		name, _ := t[0].(string)
		kind, _ := t[1].(string)
		if kind != "table" {
			continue
		}
		cols, err := queryRaw(conn, fmt.Sprintf(`SELECT cid, name, type FROM pragma_table_info('%s')`, strings.ReplaceAll(name, "'", "''")))
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			cid, _ := c[0].(int64)
			colName, _ := c[1].(string)
			rows = append(rows, []any{
				int64(relOID(name)), colName, int64(25), int64(-1), int64(-1),
				cid + 1, int64(0), int64(-1), int64(-1), true, "p", "", true,
				false, false, int64(0), int64(0), int64(0),
			})
		}
	}
	return rows, nil
}

func pgDatabaseRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, nil
	}
	var rows [][]any
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ok := strings.CutSuffix(e.Name(), ".db")
		if !ok {
			continue
		}
		rows = append(rows, []any{
			int64(relOID(name)), name, int64(10), int64(6), "en_US.UTF-8", "en_US.UTF-8",
			false, true, int64(-1), int64(0), int64(0), int64(1), int64(1663), nil,
		})
	}
	return rows, nil
}

func pgDescriptionRows(conn *sqlite3.SQLiteConn) ([][]any, error) { return nil, nil }

func pgSettingsRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	return [][]any{
		{"server_version", "14.0.0", nil, "Preset Options", "Shows the server version.", "", "internal", "string", "default", nil, nil, nil, "14.0.0", "14.0.0", nil, nil, false},
		{"server_encoding", "UTF8", nil, "Preset Options", "Shows the server character set encoding.", "", "internal", "string", "default", nil, nil, nil, "UTF8", "UTF8", nil, nil, false},
		{"TimeZone", "UTC", nil, "Client Connection Defaults / Locale and Formatting", "Sets the time zone for displaying and interpreting time stamps.", "", "user", "string", "default", nil, nil, nil, "UTC", "UTC", nil, nil, false},
	}, nil
}

func pgRangeRows(conn *sqlite3.SQLiteConn) ([][]any, error) { return nil, nil }

func pgAMRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	return [][]any{
		{int64(403), "btree", int64(2)},
		{int64(405), "hash", int64(2)},
	}, nil
}

func pgConstraintRows(conn *sqlite3.SQLiteConn) ([][]any, error) { return nil, nil }
func pgIndexRows(conn *sqlite3.SQLiteConn) ([][]any, error)      { return nil, nil }
func pgAttrdefRows(conn *sqlite3.SQLiteConn) ([][]any, error)    { return nil, nil }

func pgEnumRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	rows, err := queryRaw(conn, `SELECT type_oid, label, sort_order FROM __pgsqlite_enum_labels ORDER BY type_oid, sort_order`)
	if err != nil {
		return nil, nil // shadow tables may not exist yet on a fresh connection
	}
	var out [][]any
	for i, r := range rows {
		oid, _ := r[0].(int64)
		label, _ := r[1].(string)
		sortOrder, _ := r[2].(int64)
		out = append(out, []any{int64(relOID(fmt.Sprintf("enum-%d-%d", oid, i))), oid, sortOrder, label})
	}
	return out, nil
}

func pgTypeRows(conn *sqlite3.SQLiteConn) ([][]any, error) {
	rows := builtinTypeRows()
	enumRows, err := queryRaw(conn, `SELECT type_name, type_oid FROM __pgsqlite_enum_types`)
	if err == nil {
		for _, r := range enumRows {
			name, _ := r[0].(string)
			oid, _ := r[1].(int64)
			rows = append(rows, []any{
				oid, name, int64(11), int64(10), int64(-1), false, "e", "X",
				false, true, ",", int64(0), int64(0), int64(0), nil, nil, nil, nil,
				nil, nil, nil, "c", "p", false, int64(0), int64(-1), int64(0), int64(0), nil, nil, nil,
			})
		}
	}
	return rows, nil
}

func builtinTypeRows() [][]any {
	type bt struct {
		oid  int64
		name string
	}
	builtins := []bt{
		{16, "bool"}, {21, "int2"}, {23, "int4"}, {20, "int8"},
		{700, "float4"}, {701, "float8"}, {1700, "numeric"},
		{25, "text"}, {1043, "varchar"}, {1042, "bpchar"}, {17, "bytea"},
		{1082, "date"}, {1083, "time"}, {1114, "timestamp"}, {1184, "timestamptz"},
		{1186, "interval"}, {2950, "uuid"}, {114, "json"}, {3802, "jsonb"},
		{869, "inet"}, {650, "cidr"}, {829, "macaddr"}, {790, "money"},
		{1560, "bit"}, {1562, "varbit"},
	}
	var out [][]any
	for _, b := range builtins {
		out = append(out, []any{
			b.oid, b.name, int64(11), int64(10), int64(-1), true, "b", "X",
			true, true, ",", int64(0), int64(0), int64(0), nil, nil, nil, nil,
			nil, nil, nil, "c", "p", false, int64(0), int64(-1), int64(0), int64(0), nil, nil, nil,
		})
	}
	return out
}

// registerCatalogModules attaches the pg_catalog in-memory schema and
// creates every virtual table, mirroring the teacher's initCatatog but
// driven through the generic module/RowSource pair instead of one
// hand-written struct per table.
func registerCatalogModules(conn *sqlite3.SQLiteConn) error {
	tables := []struct {
		name   string
		ddl    string
		source RowSource
	}{
		{"pg_class", `CREATE TABLE x(oid,relname,relnamespace,reltype,reloftype,relowner,relam,relfilenode,reltablespace,relpages,reltuples,relallvisible,reltoastrelid,relhasindex,relisshared,relpersistence,relkind,relnatts,relchecks,relhasrules,relhastriggers,relhassubclass,relrowsecurity,relforcerowsecurity,relispopulated,relreplident,relispartition,relrewrite,relfrozenxid,relminmxid,relacl,reloptions,relpartbound)`, pgClassRows},
		{"pg_namespace", `CREATE TABLE x(oid,nspname,nspowner,nspacl)`, pgNamespaceRows},
		{"pg_attribute", `CREATE TABLE x(attrelid,attname,atttypid,attstattarget,attlen,attnum,attndims,atttypmod,attbyval,attnotnull,attidentity,attdefault,attisdropped,atthasdef,attgenerated,attcollation,attacl,attoptions)`, pgAttributeRows},
		{"pg_database", `CREATE TABLE x(oid,datname,datdba,encoding,datcollate,datctype,datistemplate,datallowconn,datconnlimit,datlastsysoid,datfrozenxid,datminmxid,dattablespace,datacl)`, pgDatabaseRows},
		{"pg_description", `CREATE TABLE x(objoid,classoid,objsubid,description)`, pgDescriptionRows},
		{"pg_settings", `CREATE TABLE x(name,setting,unit,category,short_desc,extra_desc,context,vartype,source,min_val,max_val,enumvals,boot_val,reset_val,sourcefile,sourceline,pending_restart)`, pgSettingsRows},
		{"pg_range", `CREATE TABLE x(rngtypid,rngsubtype,rngmultitypid,rngcollation,rngsubopc,rngcanonical,rngsubdiff)`, pgRangeRows},
		{"pg_am", `CREATE TABLE x(oid,amname,amhandler)`, pgAMRows},
		{"pg_constraint", `CREATE TABLE x(oid,conname,connamespace,contype,condeferrable,condeferred,convalidated,conrelid,contypid,conindid,confrelid,confupdtype,confdeltype,confmatchtype,conislocal,coninhcount,connoinherit,conkey,confkey)`, pgConstraintRows},
		{"pg_index", `CREATE TABLE x(indexrelid,indrelid,indnatts,indnkeyatts,indisunique,indisprimary,indisexclusion,indimmediate,indisclustered,indisvalid,indcheckxmin,indisready,indislive,indisreplident,indkey,indcollation,indclass,indoption,indexprs,indpred)`, pgIndexRows},
		{"pg_attrdef", `CREATE TABLE x(oid,adrelid,adnum,adbin,adsrc)`, pgAttrdefRows},
		{"pg_enum", `CREATE TABLE x(oid,enumtypid,enumsortorder,enumlabel)`, pgEnumRows},
		{"pg_type", `CREATE TABLE x(oid,typname,typnamespace,typowner,typlen,typbyval,typtype,typcategory,typispreferred,typisdefined,typdelim,typrelid,typelem,typarray,typinput,typoutput,typreceive,typsend,typmodin,typmodout,typanalyze,typalign,typstorage,typnotnull,typbasetype,typtypmod,typndims,typcollation,typdefaultbin,typdefault,typacl)`, pgTypeRows},
	}
	for _, t := range tables {
		if err := conn.CreateModule(t.name+"_module", newModule(t.ddl, t.source)); err != nil {
			return fmt.Errorf("register %s module: %w", t.name, err)
		}
	}

	if _, err := conn.Exec(`ATTACH ':memory:' AS pg_catalog`, nil); err != nil {
		if !strings.Contains(err.Error(), "already in use") {
			return fmt.Errorf("attach pg_catalog: %w", err)
		}
	}
	for _, t := range tables {
		stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS pg_catalog.%s USING %s_module`, t.name, t.name)
		if _, err := conn.Exec(stmt, nil); err != nil {
			return fmt.Errorf("create %s: %w", t.name, err)
		}
	}
	return nil
}

// RelationSize reports the on-disk size of the named relation's database
// file, backing the pg_total_relation_size() UDF.
func RelationSize(dataDir, name string) int64 {
	fi, err := os.Stat(filepath.Join(dataDir, name+".db"))
	if err != nil {
		return -1
	}
	return fi.Size()
}

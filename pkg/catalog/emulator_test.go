package catalog_test

import (
	"database/sql"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	_ "github.com/kqlite/kqlite-pg/pkg/sqlitedb"
)

// These specs drive the §4.7 pg_catalog emulator purely through
// database/sql, the same surface a real client query reaches — the
// virtual tables are wired into every connection by the ConnectHook
// (pkg/catalog/register.go), so opening the driver is enough to exercise
// them without reaching into the sqlite3.SQLiteConn internals directly.
var _ = Describe("pg_catalog emulation", Ordered, func() {
	var db *sql.DB

	BeforeAll(func() {
		var err error
		db, err = sql.Open("kqlite-pg-sqlite3", "file::memory:?cache=shared")
		Expect(err).NotTo(HaveOccurred())

		_, err = db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		Expect(db.Close()).To(Succeed())
	})

	It("lists every user table in pg_class with relkind 'r'", func() {
		rows, err := db.Query(`SELECT relname, relkind, relnatts FROM pg_catalog.pg_class WHERE relname = 'widgets'`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		found := false
		for rows.Next() {
			var name, relkind string
			var natts int64
			Expect(rows.Scan(&name, &relkind, &natts)).To(Succeed())
			found = true
			Expect(relkind).To(Equal("r"))
			Expect(natts).To(Equal(int64(2)))
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
	})

	It("lists the table's columns in pg_attribute", func() {
		rows, err := db.Query(`SELECT attname FROM pg_catalog.pg_attribute a
			JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
			WHERE c.relname = 'widgets' ORDER BY a.attnum`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			Expect(rows.Scan(&name)).To(Succeed())
			names = append(names, name)
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(names).To(Equal([]string{"id", "name"}))
	})

	It("exposes the public and pg_catalog namespaces", func() {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM pg_catalog.pg_namespace WHERE nspname IN ('public', 'pg_catalog')`).Scan(&count)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(2))
	})

	It("seeds the built-in scalar types in pg_type", func() {
		var oid int64
		err := db.QueryRow(`SELECT oid FROM pg_catalog.pg_type WHERE typname = 'numeric'`).Scan(&oid)
		Expect(err).NotTo(HaveOccurred())
		Expect(oid).To(Equal(int64(1700)))
	})

	It("reports server_version through pg_settings", func() {
		var setting string
		err := db.QueryRow(`SELECT setting FROM pg_catalog.pg_settings WHERE name = 'server_version'`).Scan(&setting)
		Expect(err).NotTo(HaveOccurred())
		Expect(setting).To(Equal("14.0.0"))
	})

	It("lists the btree and hash access methods in pg_am", func() {
		rows, err := db.Query(`SELECT amname FROM pg_catalog.pg_am ORDER BY amname`)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			Expect(rows.Scan(&name)).To(Succeed())
			names = append(names, name)
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(names).To(Equal([]string{"btree", "hash"}))
	})
})

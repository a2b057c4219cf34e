package translator_test

import (
	"context"
	"database/sql"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	_ "github.com/kqlite/kqlite-pg/pkg/sqlitedb"
	"github.com/kqlite/kqlite-pg/pkg/translator"
)

var _ = Describe("Pipeline translation", Ordered, func() {
	var (
		db  *sql.DB
		p   *translator.Pipeline
		ctx context.Context
	)

	BeforeAll(func() {
		var err error
		db, err = sql.Open("kqlite-pg-sqlite3", "file::memory:?cache=shared")
		Expect(err).NotTo(HaveOccurred())
		p = translator.NewPipeline()
		ctx = context.Background()
	})

	AfterAll(func() {
		Expect(db.Close()).To(Succeed())
	})

	It("rewrites CAST(expr AS NUMERIC(p,s)) into the numeric_cast UDF", func() {
		result, err := p.Translate(ctx, db, `SELECT CAST(price AS NUMERIC(10,2)) FROM receipts`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Changed).To(BeTrue())
		Expect(result.SQL).To(ContainSubstring("numeric_cast(price, 10, 2)"))
	})

	It("rewrites SERIAL and NUMERIC(p,s) columns on CREATE TABLE and records the shadow constraint", func() {
		result, err := p.Translate(ctx, db, `CREATE TABLE sales (id SERIAL PRIMARY KEY, price NUMERIC(10,2))`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Changed).To(BeTrue())
		Expect(result.SQL).To(ContainSubstring("id INTEGER PRIMARY KEY AUTOINCREMENT"))
		Expect(result.SQL).To(ContainSubstring("price TEXT"))

		_, err = db.ExecContext(ctx, result.SQL)
		Expect(err).NotTo(HaveOccurred())
	})

	It("folds a SUM aggregate combined with a literal multiplication into nested decimal_* calls", func() {
		result, err := p.Translate(ctx, db, `SELECT SUM(price)*0.1 FROM sales`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Changed).To(BeTrue())
		Expect(result.SQL).To(ContainSubstring("decimal_mul(decimal_sum(price), '0.1')"))
		Expect(result.SQL).NotTo(ContainSubstring("SUM(price)*0.1"))
	})

	It("produces an exact decimal result for SUM(price)*0.1 instead of a float approximation", func() {
		for _, price := range []string{"10.1", "10.2", "10.3"} {
			_, err := db.ExecContext(ctx, `INSERT INTO sales (price) VALUES (?)`, price)
			Expect(err).NotTo(HaveOccurred())
		}

		result, err := p.Translate(ctx, db, `SELECT SUM(price)*0.1 FROM sales`)
		Expect(err).NotTo(HaveOccurred())

		var got string
		Expect(db.QueryRowContext(ctx, result.SQL).Scan(&got)).To(Succeed())
		Expect(got).To(Equal("3.06"))
	})

	It("folds a comparison against a bare NUMERIC column once the fast path is disabled", func() {
		// The whole-query fast path (§4.5) skips straight past any
		// statement that doesn't mention one of a handful of trigger
		// tokens, and a bare "price > 10" carries none of them; the
		// database.fast_path_enable=false escape hatch forces every
		// statement through the per-stage guard loop instead.
		p.SetFastPathEnabled(false)
		defer p.SetFastPathEnabled(true)

		result, err := p.Translate(ctx, db, `SELECT id FROM sales WHERE price > 10`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Changed).To(BeTrue())
		Expect(result.SQL).To(ContainSubstring("decimal_gt(price, '10')"))

		rows, err := db.QueryContext(ctx, result.SQL)
		Expect(err).NotTo(HaveOccurred())
		defer rows.Close()

		var ids []int64
		for rows.Next() {
			var id int64
			Expect(rows.Scan(&id)).To(Succeed())
			ids = append(ids, id)
		}
		Expect(rows.Err()).NotTo(HaveOccurred())
		Expect(ids).To(HaveLen(3))
	})

	It("leaves a query untouched when no stage applies", func() {
		result, err := p.Translate(ctx, db, `SELECT 1`)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Changed).To(BeFalse())
		Expect(result.SQL).To(Equal(`SELECT 1`))
	})
})

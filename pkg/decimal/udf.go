// Package decimal implements the NUMERIC/DECIMAL precision-preserving
// arithmetic family as SQLite UDFs backed by shopspring/decimal. The
// rewriter that wraps operands in these UDFs (§4.4 stage 11) is
// decimalStage in pkg/translator.
package decimal

import (
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// RegisterFuncs installs the decimal_* UDFs on a freshly-opened SQLite
// connection. Grounded on the teacher's ConnectHook-based RegisterFunc
// pattern (pkg/catalog/catalog.go), using shopspring/decimal instead of
// float64 so arithmetic never loses precision (§8 scenario 5).
func RegisterFuncs(conn *sqlite3.SQLiteConn) error {
	funcs := map[string]any{
		"decimal_add":       add,
		"decimal_sub":       sub,
		"decimal_mul":       mul,
		"decimal_div":       div,
		"decimal_gt":        gt,
		"decimal_lt":        lt,
		"decimal_eq":        eq,
		"decimal_gte":       gte,
		"decimal_lte":       lte,
		"decimal_neg":       neg,
		"decimal_from_text": fromText,
		"decimal_to_real":   toReal,
	}
	for name, fn := range funcs {
		if err := conn.RegisterFunc(name, fn, true); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return conn.RegisterAggregator("decimal_sum", newSumAggregator, true)
}

func parse(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func binop(a, b string, f func(a, b decimal.Decimal) decimal.Decimal) (string, error) {
	da, err := parse(a)
	if err != nil {
		return "", err
	}
	db, err := parse(b)
	if err != nil {
		return "", err
	}
	return f(da, db).String(), nil
}

func add(a, b string) (string, error) {
	return binop(a, b, func(x, y decimal.Decimal) decimal.Decimal { return x.Add(y) })
}

func sub(a, b string) (string, error) {
	return binop(a, b, func(x, y decimal.Decimal) decimal.Decimal { return x.Sub(y) })
}

func mul(a, b string) (string, error) {
	return binop(a, b, func(x, y decimal.Decimal) decimal.Decimal { return x.Mul(y) })
}

func div(a, b string) (string, error) {
	db, err := parse(b)
	if err != nil {
		return "", err
	}
	if db.IsZero() {
		return "", fmt.Errorf("division by zero")
	}
	da, err := parse(a)
	if err != nil {
		return "", err
	}
	return da.DivRound(db, 16).String(), nil
}

func cmp(a, b string) (int, error) {
	da, err := parse(a)
	if err != nil {
		return 0, err
	}
	db, err := parse(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

func gt(a, b string) (bool, error)  { c, err := cmp(a, b); return c > 0, err }
func lt(a, b string) (bool, error)  { c, err := cmp(a, b); return c < 0, err }
func eq(a, b string) (bool, error)  { c, err := cmp(a, b); return c == 0, err }
func gte(a, b string) (bool, error) { c, err := cmp(a, b); return c >= 0, err }
func lte(a, b string) (bool, error) { c, err := cmp(a, b); return c <= 0, err }

func neg(a string) (string, error) {
	da, err := parse(a)
	if err != nil {
		return "", err
	}
	return da.Neg().String(), nil
}

// fromText normalizes arbitrary numeric-literal text into canonical
// decimal form, used by the translator when rewriting literals.
func fromText(a string) (string, error) {
	da, err := parse(a)
	if err != nil {
		return "", err
	}
	return da.String(), nil
}

func toReal(a string) (float64, error) {
	da, err := parse(a)
	if err != nil {
		return 0, err
	}
	f, _ := da.Float64()
	return f, nil
}

// sumAggregator implements SUM(price) over a NUMERIC column without
// accumulating float error, registered as a SQLite aggregate function.
type sumAggregator struct {
	total decimal.Decimal
	any   bool
}

func newSumAggregator() *sumAggregator { return &sumAggregator{} }

func (s *sumAggregator) Step(value string) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return
	}
	s.total = s.total.Add(d)
	s.any = true
}

func (s *sumAggregator) Done() string {
	if !s.any {
		return "0"
	}
	return s.total.String()
}

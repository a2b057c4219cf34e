// Package pgerror provides SQLSTATE-carrying errors and a best-effort
// classifier from raw SQLite error text into the taxonomy a PostgreSQL
// client expects.
package pgerror

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
)

// Severity mirrors the ErrorResponse "S" field.
type Severity string

const (
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
)

type errWithCode struct {
	cause    error
	code     string
	severity Severity
	detail   string
	hint     string
}

func (e *errWithCode) Error() string { return e.cause.Error() }
func (e *errWithCode) Unwrap() error { return e.cause }

// ErrWithCode wraps err with a SQLSTATE code, defaulting to ERROR severity.
func ErrWithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &errWithCode{cause: err, code: code, severity: SeverityError}
}

// Fatal wraps err with a SQLSTATE code and FATAL severity, used for
// protocol violations and auth failures that terminate the session.
func Fatal(err error, code string) error {
	if err == nil {
		return nil
	}
	return &errWithCode{cause: err, code: code, severity: SeverityFatal}
}

// WithDetail attaches a detail/hint string, returned verbatim in ErrorResponse.
func WithDetail(err error, detail, hint string) error {
	erc, ok := err.(*errWithCode)
	if !ok {
		return err
	}
	erc.detail = detail
	erc.hint = hint
	return erc
}

func New(code, msg string) error {
	return ErrWithCode(errors.New(msg), code)
}

func GetPGCode(err error) string {
	var erc *errWithCode
	if errors.As(err, &erc) {
		return erc.code
	}
	return pgerrcode.InternalError
}

func GetSeverity(err error) Severity {
	var erc *errWithCode
	if errors.As(err, &erc) {
		return erc.severity
	}
	return SeverityError
}

func GetDetail(err error) (detail, hint string) {
	var erc *errWithCode
	if errors.As(err, &erc) {
		return erc.detail, erc.hint
	}
	return "", ""
}

// Classify maps a raw SQLite error message to a SQLSTATE per §7 of the
// error-handling design: unique constraint, check/enum, numeric
// precision/scale, string length, relation-not-found, syntax, and a
// fallback runtime bucket.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if erc, ok := err.(*errWithCode); ok {
		return erc.code
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unique constraint"):
		return pgerrcode.UniqueViolation
	case strings.Contains(msg, "check constraint"):
		return pgerrcode.CheckViolation
	case strings.Contains(msg, "numeric_range"), strings.Contains(msg, "precision"):
		return pgerrcode.NumericValueOutOfRange
	case strings.Contains(msg, "string_length"), strings.Contains(msg, "too long"):
		return pgerrcode.StringDataRightTruncation
	case strings.Contains(msg, "divide by zero"), strings.Contains(msg, "division by zero"):
		return pgerrcode.DivisionByZero
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "no such column"):
		return pgerrcode.UndefinedTable
	case strings.Contains(msg, "syntax error"):
		return pgerrcode.SyntaxError
	case strings.Contains(msg, "invalid input value for enum"):
		return pgerrcode.InvalidTextRepresentation
	case strings.Contains(msg, "not null constraint"):
		return pgerrcode.NotNullViolation
	case strings.Contains(msg, "foreign key constraint"):
		return pgerrcode.ForeignKeyViolation
	default:
		return pgerrcode.InternalError
	}
}

// TransactionAborted is the error every statement after a failed one in
// an explicit transaction receives, until ROLLBACK.
func TransactionAborted() error {
	return New(pgerrcode.InFailedSQLTransaction, "current transaction is aborted, commands ignored until end of transaction block")
}

// EnumInvalidValue builds the §8 scenario-3 message verbatim.
func EnumInvalidValue(typeName, value string) error {
	return New(pgerrcode.InvalidTextRepresentation, `invalid input value for enum `+typeName+`: "`+value+`"`)
}

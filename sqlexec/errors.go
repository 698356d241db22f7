package sqlexec

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorKind is the coarse failure category reported by a sandbox.
type ErrorKind string

const (
	KindSyntax     ErrorKind = "syntax"
	KindMissing    ErrorKind = "missing_object"
	KindPermission ErrorKind = "permission"
	KindConnection ErrorKind = "connection"
	KindTimeout    ErrorKind = "timeout"
	KindReadOnly   ErrorKind = "read_only_violation"
	KindOther      ErrorKind = "other"
)

// Error is a structured execution failure.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Driver  string    `json:"driver,omitempty"`
	Code    string    `json:"code,omitempty"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Repairable reports whether changing the query text could plausibly fix the failure.
func (e *Error) Repairable() bool {
	return e.Kind != KindPermission && e.Kind != KindConnection
}

// AsError extracts a structured sandbox error from err.
func AsError(err error) (*Error, bool) {
	var sbErr *Error
	if errors.As(err, &sbErr) {
		return sbErr, true
	}
	return nil, false
}

// ClassifyDriverError converts a database/sql driver error into a structured Error.
// Typed driver errors are mapped by code; anything else falls back to message inspection.
func ClassifyDriverError(driverName string, err error) *Error {
	if err == nil {
		return nil
	}
	if sbErr, ok := AsError(err); ok {
		return sbErr
	}

	out := &Error{Kind: KindOther, Message: err.Error(), Driver: driverName, Err: err}

	var pqErr *pq.Error
	var pgErr *pgconn.PgError
	var myErr *mysql.MySQLError
	var msErr mssql.Error
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.As(err, &pqErr):
		out.Code = string(pqErr.Code)
		out.Message = pqErr.Message
		out.Kind = kindForSQLState(out.Code)
	case errors.As(err, &pgErr):
		out.Code = pgErr.Code
		out.Message = pgErr.Message
		out.Kind = kindForSQLState(out.Code)
	case errors.As(err, &myErr):
		out.Code = fmt.Sprintf("%d", myErr.Number)
		out.Message = myErr.Message
		out.Kind = kindForMySQL(myErr.Number)
	case errors.As(err, &msErr):
		out.Code = fmt.Sprintf("%d", msErr.Number)
		out.Message = msErr.Message
		out.Kind = kindForMSSQL(msErr.Number)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, mysql.ErrInvalidConn):
		out.Kind = KindConnection
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			out.Kind = KindTimeout
		} else {
			out.Kind = KindConnection
		}
	default:
		out.Kind = kindForMessage(err.Error())
	}

	return out
}

// kindForSQLState maps a Postgres SQLSTATE to a kind.
func kindForSQLState(code string) ErrorKind {
	switch {
	case code == "42601":
		return KindSyntax
	case code == "42703", code == "42P01", code == "42883", code == "3F000":
		return KindMissing
	case code == "42501":
		return KindPermission
	case code == "57014":
		return KindTimeout
	case code == "25006":
		return KindReadOnly
	case strings.HasPrefix(code, "28"):
		return KindPermission
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57P"):
		return KindConnection
	default:
		return KindOther
	}
}

// kindForMySQL maps a MySQL server error number to a kind.
func kindForMySQL(number uint16) ErrorKind {
	switch number {
	case 1064, 1149:
		return KindSyntax
	case 1054, 1146, 1049, 1305:
		return KindMissing
	case 1044, 1045, 1142, 1143, 1227:
		return KindPermission
	case 1040, 1053, 2002, 2003, 2006, 2013:
		return KindConnection
	case 3024, 1317:
		return KindTimeout
	case 1792:
		return KindReadOnly
	default:
		return KindOther
	}
}

// kindForMSSQL maps a SQL Server error number to a kind.
func kindForMSSQL(number int32) ErrorKind {
	switch number {
	case 102, 156, 170, 105:
		return KindSyntax
	case 207, 208, 4104, 2812:
		return KindMissing
	case 229, 230, 262, 297, 18456:
		return KindPermission
	case 4060, 10053, 10054, 10060:
		return KindConnection
	default:
		return KindOther
	}
}

// kindForMessage inspects driver text for drivers without typed errors (modernc sqlite).
func kindForMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such column"), strings.Contains(lower, "no such table"),
		strings.Contains(lower, "does not exist"), strings.Contains(lower, "no such function"):
		return KindMissing
	case strings.Contains(lower, "syntax error"), strings.Contains(lower, "incomplete input"):
		return KindSyntax
	case strings.Contains(lower, "readonly database"), strings.Contains(lower, "read-only"):
		return KindReadOnly
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"),
		strings.Contains(lower, "not authorized"), strings.Contains(lower, "authorization denied"):
		return KindPermission
	case strings.Contains(lower, "database is locked"), strings.Contains(lower, "unable to open database"),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "sql: database is closed"):
		return KindConnection
	case strings.Contains(lower, "interrupted"), strings.Contains(lower, "timeout"):
		return KindTimeout
	default:
		return KindOther
	}
}

package sqlkit

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrorKind groups every failure the package can surface into a small
// taxonomy the caller can switch on without parsing backend messages.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// Raised locally, before any transport call.
	KindValidation
	KindCompilation
	KindTransactionState
	KindTimeout

	// Backend execution sub-kinds.
	KindObjectNotFound
	KindConstraintViolation
	KindSyntax
	KindPermissionDenied
	KindConnectionLost
	KindLockTimeout
	KindDataOutOfRange
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCompilation:
		return "compilation"
	case KindTransactionState:
		return "transaction state"
	case KindTimeout:
		return "timeout"
	case KindObjectNotFound:
		return "object not found"
	case KindConstraintViolation:
		return "constraint violation"
	case KindSyntax:
		return "syntax"
	case KindPermissionDenied:
		return "permission denied"
	case KindConnectionLost:
		return "connection lost"
	case KindLockTimeout:
		return "lock timeout"
	case KindDataOutOfRange:
		return "data out of range"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by the package. Backend errors keep
// the original driver error as cause and, where parseable, the offending
// column and value.
type Error struct {
	Kind    ErrorKind
	Message string
	Column  string
	Value   string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("sqlkit: %s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("sqlkit: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// ErrNotFound is returned by First when the query matches no rows.
var ErrNotFound = errors.New("sqlkit: no matching row")

func validationErrf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func compilationErrf(format string, args ...any) *Error {
	return &Error{Kind: KindCompilation, Message: fmt.Sprintf(format, args...)}
}

func txStateErrf(format string, args ...any) *Error {
	return &Error{Kind: KindTransactionState, Message: fmt.Sprintf(format, args...)}
}

func timeoutErr(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: "query exceeded the configured timeout", cause: cause}
}

// mysqlDuplicateRe parses "Duplicate entry 'v' for key 'k'" messages.
var mysqlDuplicateRe = regexp.MustCompile(`Duplicate entry '(.*)' for key '(.*)'`)

func classifyMySQLError(err error) *Error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, mysql.ErrPktSync) {
			return &Error{Kind: KindConnectionLost, Message: "connection to the server was lost", cause: err}
		}
		return nil
	}
	e := &Error{Message: myErr.Message, cause: myErr}
	switch myErr.Number {
	case 1146, 1049: // table, database
		e.Kind = KindObjectNotFound
	case 1054: // unknown column
		e.Kind = KindObjectNotFound
	case 1062, 1169: // duplicate key
		e.Kind = KindConstraintViolation
		if m := mysqlDuplicateRe.FindStringSubmatch(myErr.Message); m != nil {
			e.Value, e.Column = m[1], m[2]
		}
	case 1048, 1452, 1451, 3819: // not null, fk child/parent, check
		e.Kind = KindConstraintViolation
	case 1064, 1149: // parse errors
		e.Kind = KindSyntax
	case 1044, 1045, 1142, 1143: // access denied
		e.Kind = KindPermissionDenied
	case 1040, 1053, 2002, 2006, 2013: // gone away family
		e.Kind = KindConnectionLost
	case 1205, 1213: // lock wait timeout, deadlock
		e.Kind = KindLockTimeout
	case 1406, 1264, 1265, 1366: // data too long / out of range / truncated
		e.Kind = KindDataOutOfRange
	default:
		e.Kind = KindUnknown
	}
	return e
}

func classifyPostgresError(err error) *Error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	e := &Error{Message: pqErr.Message, Column: pqErr.Column, cause: pqErr}
	if pqErr.Detail != "" {
		e.Value = pqErr.Detail
	}
	switch {
	case pqErr.Code == "42P01" || pqErr.Code == "42703" || pqErr.Code == "3D000" || pqErr.Code == "3F000":
		e.Kind = KindObjectNotFound
	case pqErr.Code.Class() == "23": // integrity constraint violation
		e.Kind = KindConstraintViolation
	case pqErr.Code == "42601":
		e.Kind = KindSyntax
	case pqErr.Code == "42501" || pqErr.Code.Class() == "28":
		e.Kind = KindPermissionDenied
	case pqErr.Code.Class() == "08" || pqErr.Code == "57P01" || pqErr.Code == "57P02" || pqErr.Code == "57P03":
		e.Kind = KindConnectionLost
	case pqErr.Code == "55P03" || pqErr.Code == "40P01":
		e.Kind = KindLockTimeout
	case pqErr.Code == "22001" || pqErr.Code == "22003" || pqErr.Code == "22008":
		e.Kind = KindDataOutOfRange
	default:
		e.Kind = KindUnknown
	}
	return e
}

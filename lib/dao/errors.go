package dao

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dShard/lib/db"
)

// ErrorCode classifies failures of the DAO layer.
type ErrorCode uint8

const (
	CodeNotFound        ErrorCode = iota + 1 // the root entity of a locked context does not exist
	CodeTransaction                          // begin or commit of a transaction failed
	CodeConfiguration                        // invalid schema or DAO wiring
	CodeLockContention                       // a no-wait row lock is held by another session
	CodePredicateFailed                      // a filter step of a locked context rejected the root
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeTransaction:
		return "Transaction"
	case CodeConfiguration:
		return "Configuration"
	case CodeLockContention:
		return "LockContention"
	case CodePredicateFailed:
		return "PredicateFailed"
	default:
		return "Unknown"
	}
}

// Error is returned by the DAO layer. Err holds the cause, if any.
type Error struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("dao (%s)", e.Code)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on the error code, so errors.Is(err, ErrLockContention) works for every row.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrTransaction     = &Error{Code: CodeTransaction}
	ErrConfiguration   = &Error{Code: CodeConfiguration}
	ErrLockContention  = &Error{Code: CodeLockContention}
	ErrPredicateFailed = &Error{Code: CodePredicateFailed, Msg: "predicate check failed"}
)

func newError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  err,
	}
}

// wrap adds context to err. Lock contention reported by the backend is classified
// as CodeLockContention, the backend sentinel stays reachable through errors.Is.
func wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var de *Error
	if !errors.As(err, &de) && errors.Is(err, db.ErrLockContention) {
		return newError(CodeLockContention, err, format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

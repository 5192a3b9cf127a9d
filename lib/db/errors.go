package db

import "errors"

var (
	ErrConstraintViolation = errors.New("constraint violation")
	ErrLockContention      = errors.New("could not acquire row lock (nowait)")
	ErrReadOnly            = errors.New("write in read-only transaction")
	ErrNoTransaction       = errors.New("no active transaction")
	ErrTxActive            = errors.New("transaction already active")
	ErrNotFound            = errors.New("row not found")
	ErrUnknownNamedUpdate  = errors.New("unknown named update")
	ErrClosed              = errors.New("backend or session closed")
)

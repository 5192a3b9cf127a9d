package sharding

import (
	"errors"
	"fmt"
)

// ErrorCode classifies routing and configuration failures.
type ErrorCode uint8

const (
	CodeShardBlacklisted ErrorCode = iota + 1 // routing resolved to a blacklisted shard
	CodeInvalidBucket                         // bucket id outside of the bucket space
	CodeConfiguration                         // invalid shard count or policy
	CodeStore                                 // the blacklisting store failed
)

func (c ErrorCode) String() string {
	switch c {
	case CodeShardBlacklisted:
		return "ShardBlacklisted"
	case CodeInvalidBucket:
		return "InvalidBucket"
	case CodeConfiguration:
		return "Configuration"
	case CodeStore:
		return "Store"
	default:
		return "Unknown"
	}
}

// Error is returned by the sharding layer. ShardID is -1 when no shard is involved.
type Error struct {
	Code    ErrorCode
	ShardID int
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("sharding (%s)", e.Code)
	if e.ShardID >= 0 {
		msg += fmt.Sprintf(" shard %d", e.ShardID)
	}
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

// Is matches on the error code, so errors.Is(err, ErrShardBlacklisted) works for every shard.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks
var (
	ErrShardBlacklisted = &Error{Code: CodeShardBlacklisted, ShardID: -1}
	ErrInvalidBucket    = &Error{Code: CodeInvalidBucket, ShardID: -1}
	ErrConfiguration    = &Error{Code: CodeConfiguration, ShardID: -1}
	ErrStore            = &Error{Code: CodeStore, ShardID: -1}
)

func newError(code ErrorCode, shardID int, err error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		ShardID: shardID,
		Msg:     fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// BlacklistedShard returns the shard id if err is a ShardBlacklisted error.
func BlacklistedShard(err error) (int, bool) {
	var e *Error
	if errors.As(err, &e) && e.Code == CodeShardBlacklisted {
		return e.ShardID, true
	}
	return -1, false
}

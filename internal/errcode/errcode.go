// Package errcode defines the fixed failure taxonomy and the process exit
// status associated with each class of failure.
package errcode

import (
	"errors"
	"fmt"
)

// Code classifies a failure for logging and for the process exit status.
type Code int

// Failure classes. The numeric values double as exit codes, so startup
// scripts can distinguish argument problems from network or database ones.
const (
	OK         Code = 0
	Args       Code = 2
	ConfigFile Code = 3
	NetDNS     Code = 10
	NetConnect Code = 11
	TLS        Code = 12
	Greeting   Code = 13
	Command    Code = 14
	Auth       Code = 15
	DBConnect  Code = 20
	DBSchema   Code = 21
	DBPrepare  Code = 22
	Runtime    Code = 30
)

// String returns a short human-readable description of the code.
func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case Args:
		return "invalid or missing arguments"
	case ConfigFile:
		return "configuration error"
	case NetDNS:
		return "DNS resolution failed"
	case NetConnect:
		return "network connect failed"
	case TLS:
		return "TLS error"
	case Greeting:
		return "NNTP greeting failed"
	case Command:
		return "NNTP command failed"
	case Auth:
		return "authentication failed"
	case DBConnect:
		return "database connection failed"
	case DBSchema:
		return "database schema creation failed"
	case DBPrepare:
		return "database statement preparation failed"
	default:
		return "runtime error"
	}
}

// Error pairs a Code with an underlying cause.
type Error struct {
	Code Code
	Err  error
}

// New wraps err with the given code. A nil err yields a nil *Error.
func New(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Err: err}
}

// Newf wraps a formatted error with the given code.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode resolves the process exit status for err. Errors outside the
// taxonomy map to Runtime; nil maps to OK.
func ExitCode(err error) int {
	if err == nil {
		return int(OK)
	}
	var coded *Error
	if errors.As(err, &coded) {
		return int(coded.Code)
	}
	return int(Runtime)
}

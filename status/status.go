// Package status defines Euler's closed error-kind set (spec §7) and the
// classification helpers the shard client pool and compiler use to decide
// whether a failure is retriable.
//
// The kind set is reproduced from the original implementation's
// euler/common/error_code.h; nothing here is invented.
package status

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the stable error kinds from spec §7.
type Code int

const (
	OK Code = iota
	Cancelled
	Unknown
	InvalidArgument
	DeadlineExceeded
	NotFound
	AlreadyExists
	PermissionDenied
	ResourceExhausted
	FailedPrecondition
	Aborted
	OutOfRange
	Unimplemented
	Internal
	Unavailable
	DataLoss
	Unauthenticated
	ProtoError
	RpcError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case Cancelled:
		return "Cancelled"
	case InvalidArgument:
		return "InvalidArgument"
	case DeadlineExceeded:
		return "DeadlineExceeded"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case PermissionDenied:
		return "PermissionDenied"
	case ResourceExhausted:
		return "ResourceExhausted"
	case FailedPrecondition:
		return "FailedPrecondition"
	case Aborted:
		return "Aborted"
	case OutOfRange:
		return "OutOfRange"
	case Unimplemented:
		return "Unimplemented"
	case Internal:
		return "Internal"
	case Unavailable:
		return "Unavailable"
	case DataLoss:
		return "DataLoss"
	case Unauthenticated:
		return "Unauthenticated"
	case ProtoError:
		return "ProtoError"
	case RpcError:
		return "RpcError"
	default:
		return "Unknown"
	}
}

// Error is a status.Code with a message, wrapped so errors.Is/As and
// github.com/pkg/errors' stack-trace Wrap continue to work across package
// boundaries (query compile -> optimise -> execute -> RPC).
type Error struct {
	Code Code
	Msg  string
	err  error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// New builds a status.Error of the given kind.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a status kind to an existing error, preserving it as the
// cause (errors.Wrap-style) for callers that want the original stack.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), err: errors.WithStack(cause)}
}

// Of extracts the Code from err, or Unknown if err does not carry one.
func Of(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	if err == nil {
		return OK
	}
	return Unknown
}

// Transient reports whether an error of this kind should be retried by the
// shard client pool (spec §4.7, §7): transport and availability failures
// are transient, everything else (including decode errors, which must
// surface immediately per §7) is not.
func Transient(code Code) bool {
	switch code {
	case Unavailable, RpcError, DeadlineExceeded, Aborted, ResourceExhausted:
		return true
	default:
		return false
	}
}

// Package tserr defines the error taxonomy shared by chunk, series, fanout,
// and wire: a fixed set of kinds (see Kind) plus a wrapping type that
// carries one of them, modeled on the teacher's cmn/cos typed-error style.
package tserr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind enumerates the taxonomy from spec section 7.
type Kind int

const (
	_ Kind = iota
	CapacityFull
	Duplicate
	SampleTooOld
	InvalidConfiguration
	CannotDecompress
	CannotDeserialize
	InvalidCompression
	RemoveRangeError
	ClusterInconsistent
)

func (k Kind) String() string {
	switch k {
	case CapacityFull:
		return "capacity full"
	case Duplicate:
		return "duplicate sample"
	case SampleTooOld:
		return "sample too old"
	case InvalidConfiguration:
		return "invalid configuration"
	case CannotDecompress:
		return "cannot decompress"
	case CannotDeserialize:
		return "cannot deserialize"
	case InvalidCompression:
		return "invalid compression"
	case RemoveRangeError:
		return "remove range error"
	case ClusterInconsistent:
		return "cluster inconsistent"
	default:
		return "unknown"
	}
}

// Error wraps a Kind with a message and an optional cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Cause: pkgerrors.WithMessage(cause, msg)}
}

func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// Sentinel convenience constructors used at call sites.

func ErrCapacityFull() *Error { return New(CapacityFull, "chunk at max_size") }

func ErrDuplicate(ts int64) *Error {
	return New(Duplicate, fmt.Sprintf("duplicate sample at ts=%d", ts))
}

func ErrSampleTooOld(ts, minTS int64) *Error {
	return New(SampleTooOld, fmt.Sprintf("timestamp %d older than retention floor %d", ts, minTS))
}

func ErrInvalidConfig(msg string) *Error { return New(InvalidConfiguration, msg) }

func ErrCannotDecompress(cause error) *Error {
	return Wrap(CannotDecompress, "corrupt or truncated codec body", cause)
}

func ErrCannotDeserialize(cause error) *Error {
	return Wrap(CannotDeserialize, "malformed wire/chunk payload", cause)
}

func ErrInvalidCompression(tag byte) *Error {
	return New(InvalidCompression, fmt.Sprintf("compression tag %d does not match embedded encoding", tag))
}

func ErrClusterInconsistent(msg string) *Error { return New(ClusterInconsistent, msg) }

// Package protoerr is the tagged error variant handlers return instead
// of raising distinct exception types per failure mode: the dispatcher
// is the one place that turns a Kind into a wire-level BAD/NO/BYE.
package protoerr

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure for the dispatcher.
type Kind int

const (
	// Protocol marks malformed input: bad syntax, unknown verb, wrong
	// connection state. Maps to a tagged BAD.
	Protocol Kind = iota
	// NotFound marks a missing entity. Maps to a tagged NO.
	NotFound
	// Constraint marks a unique/foreign-key violation or similar
	// invariant break. Maps to a tagged NO.
	Constraint
	// Retrieval marks a failed item-retrieval RPC. Maps to a tagged NO.
	Retrieval
	// DatabaseIO marks a failed storage call not classified above.
	// Maps to a tagged BYE; the connection is closed.
	DatabaseIO
	// Fatal marks an unrecoverable server condition. Maps to a tagged
	// BYE; the connection is closed.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case NotFound:
		return "not_found"
	case Constraint:
		return "constraint"
	case Retrieval:
		return "retrieval"
	case DatabaseIO:
		return "database_io"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the tagged variant itself.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error carrying cause, following the fmt.Errorf("...: %w")
// convention used elsewhere in this codebase, but keeping Kind available
// to the dispatcher without string-matching the message.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to DatabaseIO — an un-tagged storage error is
// treated as fatal-to-the-connection rather than silently downgraded to
// a recoverable NO.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return DatabaseIO
}

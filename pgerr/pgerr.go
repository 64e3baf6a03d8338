// Package pgerr defines the error categories this driver can produce
// (spec.md §7), so callers can distinguish them with errors.As.
package pgerr

import "fmt"

// ProtocolError means the framer or a decoder saw malformed bytes; the
// connection that produced it must be closed.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pgwire: protocol error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("pgwire: protocol error: %s", e.Msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthError means the server rejected credentials during the handshake.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "pgwire: authentication failed: " + e.Msg }

// Severity of a ServerError, per the Postgres ErrorResponse severity field.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
	SeverityPanic   Severity = "PANIC"
	SeverityWarning Severity = "WARNING"
	SeverityNotice  Severity = "NOTICE"
)

// Fatal reports whether this severity requires closing the connection.
func (s Severity) Fatal() bool { return s == SeverityFatal || s == SeverityPanic }

// ServerError wraps a Postgres ErrorResponse.
type ServerError struct {
	Severity Severity
	Code     string
	Message  string
	Detail   string
	Hint     string
	Fields   map[byte]string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pgwire: server error (%s): %s", e.Code, e.Message)
	}
	return "pgwire: server error: " + e.Message
}

// TimeoutError means the connect or handshake phase exceeded its budget.
type TimeoutError struct {
	Msg string
}

func (e *TimeoutError) Error() string { return "pgwire: timed out: " + e.Msg }

func (e *TimeoutError) Timeout() bool { return true }

// ClosedError means an operation was attempted on a closed connection or
// pool.
type ClosedError struct {
	Msg string
}

func (e *ClosedError) Error() string { return "pgwire: " + e.Msg }

// InvalidTypeError means the declared Postgres type and the runtime value
// passed to an encoder disagree.
type InvalidTypeError struct {
	Msg string
}

func (e *InvalidTypeError) Error() string { return "pgwire: invalid type: " + e.Msg }

// InvalidFormatError means a decoder received bytes that don't parse as
// the claimed type (e.g. a malformed UUID string).
type InvalidFormatError struct {
	Msg string
}

func (e *InvalidFormatError) Error() string { return "pgwire: invalid format: " + e.Msg }

// Rollback marks a transaction that the block explicitly cancelled
// (spec.md §4.4, §7). It implements error and Transaction returns it as its
// error result; callers separate it from a failure with errors.As.
type Rollback struct {
	Reason any
}

func (r *Rollback) Error() string {
	return fmt.Sprintf("pgwire: transaction rolled back: %v", r.Reason)
}

// ErrReopenClosed is returned by Connect-on-a-used-handle patterns that
// attempt to reopen a single-use connection (spec.md §4.5).
var ErrReopenClosed = &ClosedError{Msg: "attempting to reopen a closed connection"}

// ErrConnectionClosed is returned for operations on an already-closed
// connection.
var ErrConnectionClosed = &ClosedError{Msg: "connection is closed"}

// ErrCancelled is the single common error every queued query is completed
// with when a connection is closed out from under them (spec.md §5, §8).
var ErrCancelled = &ClosedError{Msg: "connection closed or query cancelled"}

// ErrPoolClosed is returned by Pool.Acquire after Pool.Close.
var ErrPoolClosed = &ClosedError{Msg: "pool is closed"}

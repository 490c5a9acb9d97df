package datasource

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the driver-level category of a failure.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindConnectionException
	KindSyntaxError
	KindConstraintViolation
	KindTimeout
)

// ErrorKinds lists every kind, in declaration order.
var ErrorKinds = []ErrorKind{
	KindOther,
	KindConnectionException,
	KindSyntaxError,
	KindConstraintViolation,
	KindTimeout,
}

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionException:
		return "connection_exception"
	case KindSyntaxError:
		return "syntax_error"
	case KindConstraintViolation:
		return "constraint_violation"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// DriverError is a failure reported by a Gateway.
type DriverError struct {
	Kind     ErrorKind
	SQLState string
	Message  string
	Err      error
}

func (e *DriverError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.SQLState != "" {
		b.WriteString(" [")
		b.WriteString(e.SQLState)
		b.WriteString("]")
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

func (e *DriverError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether establishing a connection again may succeed.
// Used by the retry package when connecting pool slots.
func (e *DriverError) IsRetryable() bool {
	return e.Kind == KindConnectionException || e.Kind == KindTimeout
}

// NewDriverError wraps err with the given kind.
func NewDriverError(kind ErrorKind, err error) *DriverError {
	de := &DriverError{Kind: kind, Err: err}
	if err != nil {
		de.Message = err.Error()
	}
	return de
}

// KindFromSQLState maps a SQLSTATE code to an ErrorKind.
func KindFromSQLState(state string) ErrorKind {
	state = strings.ToUpper(strings.TrimSpace(state))
	switch {
	case strings.HasPrefix(state, "08"), strings.HasPrefix(state, "57P0"):
		return KindConnectionException
	case strings.HasPrefix(state, "42"):
		return KindSyntaxError
	case strings.HasPrefix(state, "23"):
		return KindConstraintViolation
	case strings.HasPrefix(state, "HYT"):
		return KindTimeout
	default:
		return KindOther
	}
}

// Severity is the routing decision for a failure.
type Severity int

const (
	// SeverityLocal failures leave the connection usable.
	SeverityLocal Severity = iota
	// SeverityFatal failures mean the connection must be discarded.
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "local"
}

// Classify decides whether err kills the connection. Only a DriverError of
// kind KindConnectionException is fatal.
func Classify(err error) Severity {
	var de *DriverError
	if errors.As(err, &de) && de.Kind == KindConnectionException {
		return SeverityFatal
	}
	return SeverityLocal
}

// KindOf returns the kind of the DriverError in err's chain, or KindOther.
func KindOf(err error) ErrorKind {
	var de *DriverError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindOther
}

// ErrDisconnected marks errors that came from a Disconnect outcome.
var ErrDisconnected = errors.New("connection disconnected")

// DisconnectError carries the cause of a Disconnect outcome.
type DisconnectError struct {
	Err error
}

func (e *DisconnectError) Error() string {
	if e.Err == nil {
		return ErrDisconnected.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDisconnected.Error(), e.Err)
}

func (e *DisconnectError) Unwrap() error {
	return e.Err
}

func (e *DisconnectError) Is(target error) bool {
	return target == ErrDisconnected
}

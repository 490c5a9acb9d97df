package datasource

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeError
	OutcomeDisconnect
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeError:
		return "error"
	case OutcomeDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Outcome is returned by every protocol call. State is carried on every
// branch, since the pool needs it even when the call failed.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
	State *ConnState
}

// Ok reports success.
func Ok[T any](v T, state *ConnState) Outcome[T] {
	return Outcome[T]{Kind: OutcomeOK, Value: v, State: state}
}

// Fail reports a failure that leaves the connection usable (or, for
// lifecycle calls, a failure propagated unchanged).
func Fail[T any](err error, state *ConnState) Outcome[T] {
	return Outcome[T]{Kind: OutcomeError, Err: err, State: state}
}

// Disconnect reports a failure after which the connection must be discarded.
func Disconnect[T any](err error, state *ConnState) Outcome[T] {
	return Outcome[T]{Kind: OutcomeDisconnect, Err: err, State: state}
}

func (o Outcome[T]) IsOK() bool         { return o.Kind == OutcomeOK }
func (o Outcome[T]) IsError() bool      { return o.Kind == OutcomeError }
func (o Outcome[T]) IsDisconnect() bool { return o.Kind == OutcomeDisconnect }

// Unwrap converts the outcome to a value and error. Disconnect errors match
// ErrDisconnected with errors.Is.
func (o Outcome[T]) Unwrap() (T, error) {
	switch o.Kind {
	case OutcomeOK:
		return o.Value, nil
	case OutcomeDisconnect:
		var zero T
		return zero, &DisconnectError{Err: o.Err}
	default:
		var zero T
		return zero, o.Err
	}
}

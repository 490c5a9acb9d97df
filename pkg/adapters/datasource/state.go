package datasource

import "time"

// Status is the lifecycle position of a connection.
type Status int

const (
	StatusUninitialized Status = iota
	StatusIdle
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusIdle:
		return "idle"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Option is one ordered connection option.
type Option struct {
	Key   string
	Value string
}

// ConnState is the per-connection state owned by exactly one caller between
// Connect and Disconnect/Reconnect.
type ConnState struct {
	Handle  Handle
	Status  Status
	Options []Option
	// Timeout is the default statement timeout taken from configuration.
	Timeout time.Duration
}

// NewIdleState wraps a freshly opened handle.
func NewIdleState(h Handle, opts []Option, timeout time.Duration) *ConnState {
	return &ConnState{
		Handle:  h,
		Status:  StatusIdle,
		Options: opts,
		Timeout: timeout,
	}
}

// IsIdle reports whether the state holds a live handle ready for a query.
func (s *ConnState) IsIdle() bool {
	return s != nil && s.Status == StatusIdle && !s.Handle.IsZero()
}

// Option returns the value of the named option.
func (s *ConnState) Option(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	for _, o := range s.Options {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// Terminate marks the state as gone from the pool's perspective.
// A terminated state never carries a handle.
func (s *ConnState) Terminate() {
	if s == nil {
		return
	}
	s.Status = StatusTerminated
	s.Handle = Handle{}
}

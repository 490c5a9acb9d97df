package datasource

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handle is an opaque reference into a gateway's handle table.
// The zero value means no connection is held.
type Handle uuid.UUID

// NewHandle returns a fresh random handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

// IsZero reports whether the handle refers to nothing.
func (h Handle) IsZero() bool {
	return uuid.UUID(h) == uuid.Nil
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// ConnectOptions are passed to Gateway.Open alongside the connection string.
type ConnectOptions struct {
	// Timeout bounds establishing the connection and is the default
	// per-statement timeout for the handle.
	Timeout time.Duration
}

// QueryOptions are per-call execution options.
type QueryOptions struct {
	// Timeout overrides the connection default when positive.
	Timeout time.Duration
}

// Gateway owns live driver connections and executes statements on them.
// Implementations must be safe for concurrent use across handles; a single
// handle is only ever used by one caller at a time.
type Gateway interface {
	// Open establishes a connection and registers it under a new handle.
	Open(ctx context.Context, connString string, opts ConnectOptions) (Handle, error)

	// Close releases the connection behind the handle.
	Close(ctx context.Context, h Handle) error

	// Execute runs a statement with positional params. Failures are
	// reported as *DriverError.
	Execute(ctx context.Context, h Handle, statement string, params []Param, opts QueryOptions) (RawResponse, error)
}

// Protocol is the callback surface a pool manager drives for one connection.
// Calls against the same ConnState must be serialized by the caller.
type Protocol interface {
	Connect(ctx context.Context, config map[string]any) Outcome[*ConnState]
	Disconnect(ctx context.Context, reason error, state *ConnState) Outcome[struct{}]
	Reconnect(ctx context.Context, config map[string]any, state *ConnState) Outcome[*ConnState]

	Checkout(ctx context.Context, state *ConnState) Outcome[*ConnState]
	Checkin(ctx context.Context, state *ConnState) Outcome[*ConnState]
	Ping(ctx context.Context, state *ConnState) Outcome[*ConnState]

	Prepare(ctx context.Context, query Query, opts QueryOptions, state *ConnState) Outcome[Query]
	Execute(ctx context.Context, query Query, params []Param, opts QueryOptions, state *ConnState) Outcome[*Result]
	Close(ctx context.Context, query Query, opts QueryOptions, state *ConnState) Outcome[*Result]

	Begin(ctx context.Context, opts QueryOptions, state *ConnState) Outcome[*Result]
	Commit(ctx context.Context, opts QueryOptions, state *ConnState) Outcome[*Result]
	Rollback(ctx context.Context, opts QueryOptions, state *ConnState) Outcome[*Result]

	// HandleInfo absorbs out-of-band messages without changing state.
	HandleInfo(ctx context.Context, msg any, state *ConnState) Outcome[*ConnState]
}

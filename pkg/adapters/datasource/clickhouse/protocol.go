package clickhouse

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/logging"
)

// PingStatement is the health-check query. It succeeds on any live connection.
const PingStatement = "SELECT 1"

var errReconnect = errors.New("reconnect requested")

// Protocol drives one ClickHouse connection per ConnState through the pool
// lifecycle. It holds no per-connection state of its own, so one Protocol
// serves every slot of a pool; calls on the same ConnState must be serialized
// by the caller.
type Protocol struct {
	gw     datasource.Gateway
	logger *zap.Logger
}

var _ datasource.Protocol = (*Protocol)(nil)

// NewProtocol creates a protocol on top of gw.
func NewProtocol(gw datasource.Gateway, logger *zap.Logger) *Protocol {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protocol{
		gw:     gw,
		logger: logger.Named("clickhouse"),
	}
}

// Connect parses config, opens a connection and returns it Idle.
// Gateway failures are returned unchanged with no state.
func (p *Protocol) Connect(ctx context.Context, config map[string]any) datasource.Outcome[*datasource.ConnState] {
	cfg, err := FromMap(config)
	if err != nil {
		return datasource.Fail[*datasource.ConnState](err, nil)
	}

	connStr := cfg.ConnectionString()
	h, err := p.gw.Open(ctx, connStr, datasource.ConnectOptions{Timeout: cfg.Timeout})
	if err != nil {
		p.logger.Error("Failed to connect",
			zap.String("connectionString", logging.SanitizeConnectionString(connStr)),
			zap.String("error", logging.SanitizeError(err)))
		return datasource.Fail[*datasource.ConnState](err, nil)
	}

	state := datasource.NewIdleState(h, cfg.Options(), cfg.Timeout)
	p.logger.Debug("Connected",
		zap.String("handle", h.String()),
		zap.String("server", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database))
	return datasource.Ok(state, state)
}

// Disconnect releases the handle. The state is terminated even when the
// gateway reports a release failure.
func (p *Protocol) Disconnect(ctx context.Context, reason error, state *datasource.ConnState) datasource.Outcome[struct{}] {
	if state == nil || state.Handle.IsZero() {
		state.Terminate()
		return datasource.Ok(struct{}{}, state)
	}

	h := state.Handle
	err := p.gw.Close(ctx, h)
	state.Terminate()

	if err != nil {
		p.logger.Warn("Failed to release connection",
			zap.String("handle", h.String()),
			zap.String("reason", logging.SanitizeError(reason)),
			zap.String("error", logging.SanitizeError(err)))
		return datasource.Fail[struct{}](err, state)
	}

	p.logger.Debug("Disconnected",
		zap.String("handle", h.String()),
		zap.String("reason", logging.SanitizeError(reason)))
	return datasource.Ok(struct{}{}, state)
}

// Reconnect disconnects state and connects with config. A failed disconnect
// aborts before any new connection is opened.
func (p *Protocol) Reconnect(ctx context.Context, config map[string]any, state *datasource.ConnState) datasource.Outcome[*datasource.ConnState] {
	if out := p.Disconnect(ctx, errReconnect, state); !out.IsOK() {
		return datasource.Fail[*datasource.ConnState](fmt.Errorf("disconnect before reconnect: %w", out.Err), state)
	}
	return p.Connect(ctx, config)
}

func (p *Protocol) Checkout(_ context.Context, state *datasource.ConnState) datasource.Outcome[*datasource.ConnState] {
	return datasource.Ok(state, state)
}

func (p *Protocol) Checkin(_ context.Context, state *datasource.ConnState) datasource.Outcome[*datasource.ConnState] {
	return datasource.Ok(state, state)
}

// Ping runs PingStatement. Any failure, fatal or not, asks the pool to
// discard the connection.
func (p *Protocol) Ping(ctx context.Context, state *datasource.ConnState) datasource.Outcome[*datasource.ConnState] {
	out := p.Execute(ctx, datasource.Query{Name: "ping", Statement: PingStatement}, nil, datasource.QueryOptions{}, state)
	if out.IsOK() {
		return datasource.Ok(state, state)
	}
	return datasource.Disconnect[*datasource.ConnState](out.Err, state)
}

// Prepare returns the query unchanged; statements are sent as text on execute.
func (p *Protocol) Prepare(_ context.Context, query datasource.Query, _ datasource.QueryOptions, state *datasource.ConnState) datasource.Outcome[datasource.Query] {
	return datasource.Ok(query, state)
}

// Execute sends the statement through the gateway and normalizes the response.
// Connection exceptions yield Disconnect; every other failure yields an Error
// and leaves the connection usable. State is never modified.
func (p *Protocol) Execute(ctx context.Context, query datasource.Query, params []datasource.Param, opts datasource.QueryOptions, state *datasource.ConnState) datasource.Outcome[*datasource.Result] {
	if !state.IsIdle() {
		return datasource.Disconnect[*datasource.Result](apperrors.ErrConnectionClosed, state)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = state.Timeout
	}

	raw, err := p.gw.Execute(ctx, state.Handle, query.Statement, params, opts)
	if err != nil {
		if datasource.Classify(err) == datasource.SeverityFatal {
			p.logger.Warn("Connection lost during query",
				zap.String("handle", state.Handle.String()),
				zap.String("query", logging.SanitizeQuery(query.Statement)),
				zap.String("error", logging.SanitizeError(err)))
			return datasource.Disconnect[*datasource.Result](err, state)
		}
		p.logger.Debug("Query failed",
			zap.String("handle", state.Handle.String()),
			zap.String("kind", datasource.KindOf(err).String()),
			zap.String("query", logging.SanitizeQuery(query.Statement)),
			zap.String("error", logging.SanitizeError(err)))
		return datasource.Fail[*datasource.Result](err, state)
	}

	result, err := datasource.Normalize(raw)
	if err != nil {
		return datasource.Fail[*datasource.Result](err, state)
	}
	return datasource.Ok(result, state)
}

// Close acknowledges a statement close. Nothing is held server-side.
func (p *Protocol) Close(_ context.Context, _ datasource.Query, _ datasource.QueryOptions, state *datasource.ConnState) datasource.Outcome[*datasource.Result] {
	return datasource.Ok(datasource.EmptyResult("close"), state)
}

// Begin, Commit and Rollback are acknowledged without contacting the server.
// ClickHouse has no client-visible transactions, so callers get no atomicity.
func (p *Protocol) Begin(_ context.Context, _ datasource.QueryOptions, state *datasource.ConnState) datasource.Outcome[*datasource.Result] {
	return datasource.Ok(datasource.EmptyResult("begin"), state)
}

func (p *Protocol) Commit(_ context.Context, _ datasource.QueryOptions, state *datasource.ConnState) datasource.Outcome[*datasource.Result] {
	return datasource.Ok(datasource.EmptyResult("commit"), state)
}

func (p *Protocol) Rollback(_ context.Context, _ datasource.QueryOptions, state *datasource.ConnState) datasource.Outcome[*datasource.Result] {
	return datasource.Ok(datasource.EmptyResult("rollback"), state)
}

// HandleInfo logs the message and leaves state untouched.
func (p *Protocol) HandleInfo(_ context.Context, msg any, state *datasource.ConnState) datasource.Outcome[*datasource.ConnState] {
	fields := []zap.Field{zap.String("message", fmt.Sprint(msg))}
	if state != nil {
		fields = append(fields, zap.String("handle", state.Handle.String()))
	}
	p.logger.Debug("Ignoring out-of-band message", fields...)
	return datasource.Ok(state, state)
}

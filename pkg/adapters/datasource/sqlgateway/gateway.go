// Package sqlgateway implements datasource.Gateway on top of database/sql.
// Each handle pins one *sql.Conn from a private single-connection *sql.DB, so
// a handle always talks to the same server session.
package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/logging"
)

// DefaultTimeout bounds Open and Execute when neither the caller nor the
// handle supplies a timeout.
const DefaultTimeout = 15 * time.Second

// pinnedConn is the handle table entry: a dedicated pool of one and the
// connection pinned out of it.
type pinnedConn struct {
	db       *sql.DB
	conn     *sql.Conn
	timeout  time.Duration
	openedAt time.Time
}

// Ping verifies the pinned connection is alive.
func (c *pinnedConn) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

// Close returns the connection and closes its private pool.
func (c *pinnedConn) Close() error {
	connErr := c.conn.Close()
	dbErr := c.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// Gateway executes statements through a registered database/sql driver.
type Gateway struct {
	driverName string
	logger     *zap.Logger

	mu      sync.RWMutex
	handles map[datasource.Handle]*pinnedConn
}

var _ datasource.Gateway = (*Gateway)(nil)

// New creates a gateway for the named database/sql driver ("odbc",
// "sqlserver", "mysql", "hdb", "sqlite"). The driver must be registered.
func New(driverName string, logger *zap.Logger) (*Gateway, error) {
	if !isRegistered(driverName) {
		if tag, ok := driverBuildTags[driverName]; ok {
			return nil, fmt.Errorf("%w: sql driver %q is not compiled in (build with -tags %s or all_adapters)",
				apperrors.ErrInvalidConfig, driverName, tag)
		}
		return nil, fmt.Errorf("%w: sql driver %q is not registered", apperrors.ErrInvalidConfig, driverName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		driverName: driverName,
		logger:     logger.Named("sqlgateway").With(zap.String("driver", driverName)),
		handles:    make(map[datasource.Handle]*pinnedConn),
	}, nil
}

// driverBuildTags names the build tag that compiles in each optional driver.
var driverBuildTags = map[string]string{
	"odbc":      "odbc",
	"sqlserver": "mssql",
	"mysql":     "mysql",
	"hdb":       "hdb",
}

func isRegistered(name string) bool {
	for _, d := range sql.Drivers() {
		if d == name {
			return true
		}
	}
	return false
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Open creates a private pool for connString, pins one connection and
// verifies it with a ping.
func (g *Gateway) Open(ctx context.Context, connString string, opts datasource.ConnectOptions) (datasource.Handle, error) {
	db, err := sql.Open(g.driverName, connString)
	if err != nil {
		return datasource.Handle{}, MapError(ctx, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return datasource.Handle{}, MapError(ctx, err)
	}

	pc := &pinnedConn{db: db, conn: conn, timeout: opts.Timeout, openedAt: time.Now()}
	if err := pc.Ping(ctx); err != nil {
		_ = pc.Close()
		return datasource.Handle{}, MapError(ctx, err)
	}

	h := datasource.NewHandle()
	g.mu.Lock()
	g.handles[h] = pc
	g.mu.Unlock()

	g.logger.Debug("Opened connection",
		zap.String("handle", h.String()),
		zap.String("connectionString", logging.SanitizeConnectionString(connString)))
	return h, nil
}

// Close removes the handle and releases its connection.
func (g *Gateway) Close(_ context.Context, h datasource.Handle) error {
	g.mu.Lock()
	pc, ok := g.handles[h]
	delete(g.handles, h)
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("close %s: %w", h, apperrors.ErrUnknownHandle)
	}

	if err := pc.Close(); err != nil {
		return fmt.Errorf("close %s: %w", h, err)
	}

	g.logger.Debug("Closed connection",
		zap.String("handle", h.String()),
		zap.Duration("age", time.Since(pc.openedAt)))
	return nil
}

// Execute runs statement on the handle's connection. Row-returning
// statements are read fully before returning.
func (g *Gateway) Execute(ctx context.Context, h datasource.Handle, statement string, params []datasource.Param, opts datasource.QueryOptions) (datasource.RawResponse, error) {
	g.mu.RLock()
	pc, ok := g.handles[h]
	g.mu.RUnlock()

	if !ok {
		return nil, datasource.NewDriverError(datasource.KindConnectionException, fmt.Errorf("%s: %w", h, apperrors.ErrUnknownHandle))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = pc.timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	route := Route(statement)
	args := datasource.Values(params)

	if route.Query {
		resp, err := query(ctx, pc.conn, statement, args, route)
		if err != nil {
			return nil, MapError(ctx, err)
		}
		return resp, nil
	}

	res, err := pc.conn.ExecContext(ctx, statement, args...)
	if err != nil {
		return nil, MapError(ctx, err)
	}

	if route.Updates {
		if n, err := res.RowsAffected(); err == nil {
			return datasource.UpdatedCount{Count: n}, nil
		}
	}
	return datasource.OtherTagged{Tag: route.Tag}, nil
}

// Len returns the number of open handles.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// CloseAll releases every open handle. Used on shutdown.
func (g *Gateway) CloseAll() error {
	g.mu.Lock()
	handles := g.handles
	g.handles = make(map[datasource.Handle]*pinnedConn)
	g.mu.Unlock()

	var firstErr error
	for h, pc := range handles {
		if err := pc.Close(); err != nil {
			g.logger.Warn("Failed to close connection",
				zap.String("handle", h.String()),
				zap.String("error", logging.SanitizeError(err)))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func query(ctx context.Context, conn *sql.Conn, statement string, args []any, route StatementRoute) (datasource.RawResponse, error) {
	rows, err := conn.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	columns := make([]any, len(names))
	for i, n := range names {
		columns[i] = n
	}

	data := [][]any{}
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if route.Selected {
		return datasource.SelectedRows{Columns: columns, Rows: data}, nil
	}
	return datasource.OtherTagged{Tag: route.Tag, Columns: columns, Rows: data}, nil
}

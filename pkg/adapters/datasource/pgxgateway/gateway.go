// Package pgxgateway implements datasource.Gateway with one native pgx
// connection per handle.
package pgxgateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/logging"
)

// DriverName selects this gateway in configuration.
const DriverName = "pgx"

// DefaultTimeout bounds Open and Execute when no timeout is supplied.
const DefaultTimeout = 15 * time.Second

type handleConn struct {
	conn    *pgx.Conn
	timeout time.Duration
}

// Gateway owns pgx connections keyed by handle.
type Gateway struct {
	logger *zap.Logger

	mu      sync.RWMutex
	handles map[datasource.Handle]*handleConn
}

var _ datasource.Gateway = (*Gateway)(nil)

// New creates an empty gateway.
func New(logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		logger:  logger.Named("pgxgateway"),
		handles: make(map[datasource.Handle]*handleConn),
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// Open connects with a PostgreSQL URL or keyword/value connection string.
func (g *Gateway) Open(ctx context.Context, connString string, opts datasource.ConnectOptions) (datasource.Handle, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return datasource.Handle{}, datasource.NewDriverError(datasource.KindOther, fmt.Errorf("parse connection string: %w", err))
	}

	ctx, cancel := withTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return datasource.Handle{}, MapError(ctx, nil, err)
	}

	h := datasource.NewHandle()
	g.mu.Lock()
	g.handles[h] = &handleConn{conn: conn, timeout: opts.Timeout}
	g.mu.Unlock()

	g.logger.Debug("Opened connection",
		zap.String("handle", h.String()),
		zap.String("connectionString", logging.SanitizeConnectionString(connString)))
	return h, nil
}

// Close removes the handle and closes its connection.
func (g *Gateway) Close(ctx context.Context, h datasource.Handle) error {
	g.mu.Lock()
	hc, ok := g.handles[h]
	delete(g.handles, h)
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("close %s: %w", h, apperrors.ErrUnknownHandle)
	}

	if err := hc.conn.Close(ctx); err != nil {
		return fmt.Errorf("close %s: %w", h, err)
	}
	g.logger.Debug("Closed connection", zap.String("handle", h.String()))
	return nil
}

// Execute runs statement and maps the command tag to a response shape.
func (g *Gateway) Execute(ctx context.Context, h datasource.Handle, statement string, params []datasource.Param, opts datasource.QueryOptions) (datasource.RawResponse, error) {
	g.mu.RLock()
	hc, ok := g.handles[h]
	g.mu.RUnlock()

	if !ok {
		return nil, datasource.NewDriverError(datasource.KindConnectionException, fmt.Errorf("%s: %w", h, apperrors.ErrUnknownHandle))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = hc.timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	rows, err := hc.conn.Query(ctx, statement, datasource.Values(params)...)
	if err != nil {
		return nil, MapError(ctx, hc.conn, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]any, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	data := [][]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, MapError(ctx, hc.conn, err)
		}
		data = append(data, values)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, MapError(ctx, hc.conn, err)
	}

	return responseFor(rows.CommandTag(), columns, data), nil
}

// Len returns the number of open handles.
func (g *Gateway) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// CloseAll closes every open handle.
func (g *Gateway) CloseAll(ctx context.Context) error {
	g.mu.Lock()
	handles := g.handles
	g.handles = make(map[datasource.Handle]*handleConn)
	g.mu.Unlock()

	var errs []error
	for _, hc := range handles {
		if err := hc.conn.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// responseFor picks the response shape from the command tag: SELECT is
// Selected, INSERT/UPDATE/DELETE/MERGE without a result set is Updated, and
// everything else is Other tagged with the first word of the tag.
func responseFor(tag pgconn.CommandTag, columns []any, rows [][]any) datasource.RawResponse {
	if tag.Select() {
		return datasource.SelectedRows{Columns: columns, Rows: rows}
	}
	if len(columns) == 0 && (tag.Insert() || tag.Update() || tag.Delete() || strings.HasPrefix(tag.String(), "MERGE")) {
		return datasource.UpdatedCount{Count: tag.RowsAffected()}
	}

	name := tag.String()
	if i := strings.IndexByte(name, ' '); i >= 0 {
		name = name[:i]
	}
	return datasource.OtherTagged{Tag: strings.ToLower(name), Columns: columns, Rows: rows}
}

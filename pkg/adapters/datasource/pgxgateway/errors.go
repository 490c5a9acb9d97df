package pgxgateway

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// MapError converts a pgx failure to a *datasource.DriverError. conn may be
// nil when the failure happened while connecting.
func MapError(ctx context.Context, conn *pgx.Conn, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := datasource.KindFromSQLState(pgErr.Code)
		if pgErr.Code == "57014" { // query_canceled, raised by statement_timeout
			kind = datasource.KindTimeout
		}
		return &datasource.DriverError{
			Kind:     kind,
			SQLState: pgErr.Code,
			Message:  pgErr.Message,
			Err:      err,
		}
	}

	return datasource.NewDriverError(transportKind(ctx, conn, err), err)
}

func transportKind(ctx context.Context, conn *pgx.Conn, err error) datasource.ErrorKind {
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) ||
		(ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		// pgx closes the connection when a deadline interrupts a query
		if conn != nil && conn.IsClosed() {
			return datasource.KindConnectionException
		}
		return datasource.KindTimeout
	}

	if conn == nil || conn.IsClosed() {
		return datasource.KindConnectionException
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return datasource.KindConnectionException
	}
	return datasource.KindOther
}

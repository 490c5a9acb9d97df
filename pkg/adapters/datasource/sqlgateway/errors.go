package sqlgateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// ErrorMapper recognizes one driver's error type. It returns false for
// errors it does not know.
type ErrorMapper func(err error) (*datasource.DriverError, bool)

var (
	mappersMu sync.RWMutex
	mappers   []ErrorMapper
)

// RegisterErrorMapper is called by each driver file's init() function.
func RegisterErrorMapper(m ErrorMapper) {
	mappersMu.Lock()
	defer mappersMu.Unlock()
	mappers = append(mappers, m)
}

// MapError converts a database/sql failure into a *datasource.DriverError.
// Registered driver mappers are consulted first, then transport-level
// conditions common to every driver. ctx is the context the call ran under,
// so an expired deadline is reported as a timeout.
func MapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	var de *datasource.DriverError
	if errors.As(err, &de) {
		return err
	}

	mappersMu.RLock()
	registered := mappers
	mappersMu.RUnlock()

	for _, m := range registered {
		if mapped, ok := m(err); ok {
			return mapped
		}
	}

	return datasource.NewDriverError(genericKind(ctx, err), err)
}

func genericKind(ctx context.Context, err error) datasource.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return datasource.KindTimeout
	}

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE):
		return datasource.KindConnectionException
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return datasource.KindTimeout
		}
		return datasource.KindConnectionException
	}

	return datasource.KindOther
}

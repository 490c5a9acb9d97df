package clickhouse

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource/pgxgateway"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource/sqlgateway"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/config"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/retry"
)

// Pool wires application configuration to a gateway and a connection
// manager running this protocol.
type Pool struct {
	manager  *datasource.ConnectionManager
	closeAll func() error
	options  map[string]any
	logger   *zap.Logger
}

// NewPool builds the gateway selected by cfg.Datasource.SQLDriver: the native
// pgx gateway for "pgx", otherwise the database/sql gateway for that driver.
// No connection is made until the first Execute.
func NewPool(cfg *config.Config, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Datasource.Type != ProtocolType {
		return nil, fmt.Errorf("datasource type %q is not %s", cfg.Datasource.Type, ProtocolType)
	}

	gw, closeAll, err := newGateway(cfg.Datasource.SQLDriver, logger)
	if err != nil {
		return nil, err
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxRetries = cfg.Pool.ConnectRetries

	manager := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:                  cfg.Pool.ConnectionTTLMinutes,
		MaxConnectionsPerDatasource: cfg.Pool.MaxConnectionsPerDatasource,
		Retry:                       retryCfg,
	}, NewProtocol(gw, logger), logger)

	options := cfg.Datasource.ClickHouse.Options()
	logger.Info("ClickHouse pool ready",
		zap.String("env", cfg.Env),
		zap.String("sqlDriver", cfg.Datasource.SQLDriver),
		zap.Any("options", logging.SanitizeOptions(options)))

	return &Pool{
		manager:  manager,
		closeAll: closeAll,
		options:  options,
		logger:   logger,
	}, nil
}

func newGateway(driver string, logger *zap.Logger) (datasource.Gateway, func() error, error) {
	if driver == pgxgateway.DriverName {
		gw := pgxgateway.New(logger)
		return gw, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), datasource.DefaultCloseTimeout)
			defer cancel()
			return gw.CloseAll(ctx)
		}, nil
	}

	gw, err := sqlgateway.New(driver, logger)
	if err != nil {
		return nil, nil, err
	}
	return gw, gw.CloseAll, nil
}

// Execute runs query on the given slot of the named datasource.
func (p *Pool) Execute(ctx context.Context, key datasource.SlotKey, query datasource.Query, params []datasource.Param, opts datasource.QueryOptions) (*datasource.Result, error) {
	return p.manager.Execute(ctx, key, p.options, query, params, opts)
}

// Stats reports the connection manager's slots.
func (p *Pool) Stats() datasource.ConnectionStats {
	return p.manager.GetStats()
}

// Close disconnects every slot, then releases any handle left in the gateway.
func (p *Pool) Close() error {
	return errors.Join(p.manager.Close(), p.closeAll())
}

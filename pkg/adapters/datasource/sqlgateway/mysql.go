//go:build mysql || all_adapters

package sqlgateway

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// MySQLDriver is the database/sql name registered by go-sql-driver/mysql.
const MySQLDriver = "mysql"

func init() {
	RegisterErrorMapper(mapMySQLError)
}

func mapMySQLError(err error) (*datasource.DriverError, bool) {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return datasource.NewDriverError(datasource.KindConnectionException, err), true
	}

	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil, false
	}

	state := string(me.SQLState[:])
	kind := datasource.KindFromSQLState(state)
	switch me.Number {
	case 1205, 3024: // lock wait timeout, max_execution_time exceeded
		kind = datasource.KindTimeout
	}

	return &datasource.DriverError{Kind: kind, SQLState: state, Message: me.Message, Err: err}, true
}

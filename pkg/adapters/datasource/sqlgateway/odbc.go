//go:build odbc || all_adapters

package sqlgateway

import (
	"errors"

	"github.com/alexbrainman/odbc"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// ODBCDriver is the database/sql name registered by alexbrainman/odbc. The
// ClickHouse protocol's connection string is passed to it unchanged.
const ODBCDriver = "odbc"

func init() {
	RegisterErrorMapper(mapODBCError)
}

// mapODBCError classifies by the first diagnostic record carrying a SQLSTATE.
func mapODBCError(err error) (*datasource.DriverError, bool) {
	var oe *odbc.Error
	if !errors.As(err, &oe) {
		return nil, false
	}

	de := &datasource.DriverError{Kind: datasource.KindOther, Message: oe.Error(), Err: err}
	for _, d := range oe.Diag {
		if d.State == "" {
			continue
		}
		de.SQLState = d.State
		de.Message = d.Message
		de.Kind = datasource.KindFromSQLState(d.State)
		break
	}
	return de, true
}

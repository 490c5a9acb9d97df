//go:build mssql || all_adapters

package sqlgateway

import (
	"errors"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// SQLServerDriver is the database/sql name registered by go-mssqldb.
const SQLServerDriver = "sqlserver"

func init() {
	RegisterErrorMapper(mapMSSQLError)
}

func mapMSSQLError(err error) (*datasource.DriverError, bool) {
	var me mssql.Error
	if !errors.As(err, &me) {
		return nil, false
	}
	return &datasource.DriverError{
		Kind:    mssqlKind(me.Number),
		Message: me.Message,
		Err:     err,
	}, true
}

// mssqlKind maps SQL Server error numbers. SQL Server does not report
// SQLSTATE through the driver.
func mssqlKind(number int32) datasource.ErrorKind {
	switch number {
	case 102, 156, 207, 208, 2812:
		return datasource.KindSyntaxError
	case 515, 547, 2601, 2627:
		return datasource.KindConstraintViolation
	case -2, 1222:
		return datasource.KindTimeout
	case 233, 10053, 10054, 4060, 18456:
		return datasource.KindConnectionException
	default:
		return datasource.KindOther
	}
}

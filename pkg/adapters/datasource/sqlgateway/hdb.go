//go:build hdb || all_adapters

package sqlgateway

import (
	"errors"

	hdb "github.com/SAP/go-hdb/driver"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// HDBDriver is the database/sql name registered by go-hdb.
const HDBDriver = hdb.DriverName

func init() {
	RegisterErrorMapper(mapHDBError)
}

func mapHDBError(err error) (*datasource.DriverError, bool) {
	var he hdb.Error
	if !errors.As(err, &he) {
		return nil, false
	}

	kind := hdbKind(he.Code())
	if he.IsFatal() {
		kind = datasource.KindConnectionException
	}
	return &datasource.DriverError{Kind: kind, Message: he.Text(), Err: err}, true
}

// hdbKind maps SAP HANA error codes.
func hdbKind(code int) datasource.ErrorKind {
	switch code {
	case 257, 259, 260, 328:
		return datasource.KindSyntaxError
	case 287, 301, 461, 462:
		return datasource.KindConstraintViolation
	case 613:
		return datasource.KindTimeout
	case 129, 139, 414, 1033:
		return datasource.KindConnectionException
	default:
		return datasource.KindOther
	}
}

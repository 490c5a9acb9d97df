package sqlgateway

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
)

// SQLiteDriver is the database/sql name registered by modernc.org/sqlite.
const SQLiteDriver = "sqlite"

func init() {
	RegisterErrorMapper(mapSQLiteError)
}

func mapSQLiteError(err error) (*datasource.DriverError, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return nil, false
	}

	kind := datasource.KindOther
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		kind = datasource.KindConstraintViolation
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		kind = datasource.KindTimeout
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_IOERR:
		kind = datasource.KindConnectionException
	case sqlite3.SQLITE_ERROR:
		msg := se.Error()
		if strings.Contains(msg, "syntax error") || strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column") {
			kind = datasource.KindSyntaxError
		}
	}

	return &datasource.DriverError{Kind: kind, Message: se.Error(), Err: err}, true
}

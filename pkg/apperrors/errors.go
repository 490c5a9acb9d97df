package apperrors

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConnectionClosed       = errors.New("connection is not open")
	ErrConnectionLimitReached = errors.New("connection limit reached")
	ErrPoolClosed             = errors.New("connection pool is closed")
	ErrUnknownHandle          = errors.New("unknown connection handle")
	ErrInvalidConfig          = errors.New("invalid connection config")
)

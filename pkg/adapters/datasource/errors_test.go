package datasource

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cause := errors.New("driver said no")

	for _, kind := range ErrorKinds {
		want := SeverityLocal
		if kind == KindConnectionException {
			want = SeverityFatal
		}
		err := NewDriverError(kind, cause)
		assert.Equal(t, want, Classify(err), "kind %s", kind)
		assert.Equal(t, want, Classify(fmt.Errorf("wrapped: %w", err)), "wrapped kind %s", kind)
	}
}

func TestClassify_NonDriverErrors(t *testing.T) {
	for _, err := range []error{
		errors.New("plain"),
		context.DeadlineExceeded,
		context.Canceled,
		fmt.Errorf("connection reset: %w", errors.New("by peer")),
	} {
		assert.Equal(t, SeverityLocal, Classify(err), "%v", err)
	}
}

func TestKindFromSQLState(t *testing.T) {
	tests := map[string]ErrorKind{
		"08001":   KindConnectionException,
		"08S01":   KindConnectionException,
		"57P01":   KindConnectionException,
		"42000":   KindSyntaxError,
		"42S02":   KindSyntaxError,
		"23505":   KindConstraintViolation,
		"HYT00":   KindTimeout,
		" hyt01 ": KindTimeout,
		"HY000":   KindOther,
		"":        KindOther,
	}
	for state, want := range tests {
		assert.Equal(t, want, KindFromSQLState(state), "state %q", state)
	}
}

func TestDriverError_Error(t *testing.T) {
	err := &DriverError{Kind: KindSyntaxError, SQLState: "42000", Message: "unexpected token"}
	assert.Equal(t, "syntax_error [42000]: unexpected token", err.Error())

	err = NewDriverError(KindTimeout, errors.New("deadline"))
	assert.Equal(t, "timeout: deadline", err.Error())

	assert.Equal(t, "other", (&DriverError{}).Error())
}

func TestDriverError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := NewDriverError(KindOther, cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindOther, KindOf(err))
	assert.Equal(t, KindOther, KindOf(cause))
}

func TestDriverError_IsRetryable(t *testing.T) {
	for _, kind := range ErrorKinds {
		want := kind == KindConnectionException || kind == KindTimeout
		assert.Equal(t, want, NewDriverError(kind, nil).IsRetryable(), "kind %s", kind)
	}
}

func TestDisconnectError(t *testing.T) {
	cause := NewDriverError(KindConnectionException, errors.New("reset"))
	err := error(&DisconnectError{Err: cause})

	assert.ErrorIs(t, err, ErrDisconnected)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "reset")

	assert.Equal(t, ErrDisconnected.Error(), (&DisconnectError{}).Error())
}

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "fatal", SeverityFatal.String())
	assert.Equal(t, "local", SeverityLocal.String())
}

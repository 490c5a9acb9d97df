package sqlgateway

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
)

func newSQLiteGateway(t *testing.T) *Gateway {
	t.Helper()
	gw, err := New(SQLiteDriver, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.CloseAll() })
	return gw
}

func openMemory(t *testing.T, gw *Gateway) datasource.Handle {
	t.Helper()
	h, err := gw.Open(context.Background(), ":memory:", datasource.ConnectOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.False(t, h.IsZero())
	return h
}

func exec(t *testing.T, gw *Gateway, h datasource.Handle, stmt string, params ...datasource.Param) datasource.RawResponse {
	t.Helper()
	resp, err := gw.Execute(context.Background(), h, stmt, params, datasource.QueryOptions{})
	require.NoError(t, err, stmt)
	return resp
}

func TestNew_UnregisteredDriver(t *testing.T) {
	_, err := New("no-such-driver", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestNew_OptionalDriverNamesBuildTag(t *testing.T) {
	for name, tag := range driverBuildTags {
		if isRegistered(name) {
			continue
		}
		_, err := New(name, nil)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		assert.Contains(t, err.Error(), "-tags "+tag)
		assert.Contains(t, err.Error(), "all_adapters")
	}
}

func TestGateway_ResponseShapes(t *testing.T) {
	gw := newSQLiteGateway(t)
	h := openMemory(t, gw)

	resp := exec(t, gw, h, "CREATE TABLE events (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	assert.Equal(t, datasource.OtherTagged{Tag: "create"}, resp)

	resp = exec(t, gw, h, "INSERT INTO events (id, name) VALUES (?, ?)",
		datasource.Param{Type: "integer", Value: 1},
		datasource.Param{Type: "text", Value: "signup"})
	assert.Equal(t, datasource.UpdatedCount{Count: 1}, resp)

	exec(t, gw, h, "INSERT INTO events (id, name) VALUES (2, 'login'), (3, 'logout')")

	resp = exec(t, gw, h, "UPDATE events SET name = upper(name) WHERE id > ?", datasource.Param{Value: 1})
	assert.Equal(t, datasource.UpdatedCount{Count: 2}, resp)

	resp = exec(t, gw, h, "SELECT id, name FROM events ORDER BY id")
	selected, ok := resp.(datasource.SelectedRows)
	require.True(t, ok, "expected SelectedRows, got %T", resp)
	assert.Equal(t, []any{"id", "name"}, selected.Columns)
	assert.Equal(t, [][]any{
		{int64(1), "signup"},
		{int64(2), "LOGIN"},
		{int64(3), "LOGOUT"},
	}, selected.Rows)

	resp = exec(t, gw, h, "PRAGMA table_info(events)")
	other, ok := resp.(datasource.OtherTagged)
	require.True(t, ok, "expected OtherTagged, got %T", resp)
	assert.Equal(t, "pragma", other.Tag)
	assert.Len(t, other.Rows, 2)
}

func TestGateway_EmptySelect(t *testing.T) {
	gw := newSQLiteGateway(t)
	h := openMemory(t, gw)

	resp := exec(t, gw, h, "SELECT 1 AS one WHERE 1 = 0")
	selected, ok := resp.(datasource.SelectedRows)
	require.True(t, ok)
	assert.Equal(t, []any{"one"}, selected.Columns)
	assert.NotNil(t, selected.Rows)
	assert.Empty(t, selected.Rows)
}

func TestGateway_HandlesAreIsolated(t *testing.T) {
	gw := newSQLiteGateway(t)
	h1 := openMemory(t, gw)
	h2 := openMemory(t, gw)
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, gw.Len())

	exec(t, gw, h1, "CREATE TABLE only_here (x INTEGER)")

	_, err := gw.Execute(context.Background(), h2, "SELECT x FROM only_here", nil, datasource.QueryOptions{})
	require.Error(t, err)
	assert.Equal(t, datasource.KindSyntaxError, datasource.KindOf(err))
}

func TestGateway_SyntaxErrorIsLocal(t *testing.T) {
	gw := newSQLiteGateway(t)
	h := openMemory(t, gw)

	_, err := gw.Execute(context.Background(), h, "SELEC 1", nil, datasource.QueryOptions{})
	require.Error(t, err)

	var de *datasource.DriverError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, datasource.KindSyntaxError, de.Kind)
	assert.Equal(t, datasource.SeverityLocal, datasource.Classify(err))

	// connection stays usable
	exec(t, gw, h, "SELECT 1")
}

func TestGateway_ConstraintViolation(t *testing.T) {
	gw := newSQLiteGateway(t)
	h := openMemory(t, gw)

	exec(t, gw, h, "CREATE TABLE u (id INTEGER PRIMARY KEY)")
	exec(t, gw, h, "INSERT INTO u VALUES (1)")

	_, err := gw.Execute(context.Background(), h, "INSERT INTO u VALUES (1)", nil, datasource.QueryOptions{})
	require.Error(t, err)
	assert.Equal(t, datasource.KindConstraintViolation, datasource.KindOf(err))
	assert.Equal(t, datasource.SeverityLocal, datasource.Classify(err))
}

func TestGateway_Timeout(t *testing.T) {
	gw := newSQLiteGateway(t)
	h := openMemory(t, gw)

	const endless = "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c"
	_, err := gw.Execute(context.Background(), h, endless, nil, datasource.QueryOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, datasource.KindTimeout, datasource.KindOf(err))
	assert.Equal(t, datasource.SeverityLocal, datasource.Classify(err))
}

func TestGateway_ClosedHandleIsFatal(t *testing.T) {
	gw := newSQLiteGateway(t)
	h := openMemory(t, gw)

	require.NoError(t, gw.Close(context.Background(), h))
	assert.Equal(t, 0, gw.Len())

	_, err := gw.Execute(context.Background(), h, "SELECT 1", nil, datasource.QueryOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnknownHandle)
	assert.Equal(t, datasource.SeverityFatal, datasource.Classify(err))

	err = gw.Close(context.Background(), h)
	assert.ErrorIs(t, err, apperrors.ErrUnknownHandle)
}

func TestGateway_OpenFailureIsConnectionException(t *testing.T) {
	gw := newSQLiteGateway(t)

	path := filepath.Join(t.TempDir(), "missing", "dir", "db.sqlite")
	_, err := gw.Open(context.Background(), "file:"+path+"?mode=ro", datasource.ConnectOptions{})
	require.Error(t, err)
	assert.Equal(t, datasource.KindConnectionException, datasource.KindOf(err))
	assert.Equal(t, 0, gw.Len())
}

package clickhouse

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
)

type executeCall struct {
	handle    datasource.Handle
	statement string
	params    []datasource.Param
	opts      datasource.QueryOptions
}

// fakeGateway records calls and replays scripted responses.
type fakeGateway struct {
	mu sync.Mutex

	open     map[datasource.Handle]bool
	opens    []string
	openOpts []datasource.ConnectOptions
	closes   []datasource.Handle
	executes []executeCall

	openErr  error
	closeErr error
	respond  func(statement string) (datasource.RawResponse, error)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{open: make(map[datasource.Handle]bool)}
}

func (g *fakeGateway) Open(_ context.Context, connString string, opts datasource.ConnectOptions) (datasource.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opens = append(g.opens, connString)
	g.openOpts = append(g.openOpts, opts)
	if g.openErr != nil {
		return datasource.Handle{}, g.openErr
	}
	h := datasource.NewHandle()
	g.open[h] = true
	return h, nil
}

func (g *fakeGateway) Close(_ context.Context, h datasource.Handle) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes = append(g.closes, h)
	if g.closeErr != nil {
		return g.closeErr
	}
	if !g.open[h] {
		return apperrors.ErrUnknownHandle
	}
	delete(g.open, h)
	return nil
}

func (g *fakeGateway) Execute(_ context.Context, h datasource.Handle, statement string, params []datasource.Param, opts datasource.QueryOptions) (datasource.RawResponse, error) {
	g.mu.Lock()
	g.executes = append(g.executes, executeCall{handle: h, statement: statement, params: params, opts: opts})
	respond := g.respond
	g.mu.Unlock()

	if respond != nil {
		return respond(statement)
	}
	return datasource.SelectedRows{Columns: []any{"1"}, Rows: [][]any{{uint8(1)}}}, nil
}

func (g *fakeGateway) openCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.open)
}

func failWith(kind datasource.ErrorKind, msg string) func(string) (datasource.RawResponse, error) {
	return func(string) (datasource.RawResponse, error) {
		return nil, &datasource.DriverError{Kind: kind, Message: msg}
	}
}

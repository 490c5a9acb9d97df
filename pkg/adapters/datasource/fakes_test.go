package datasource

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-dbconn/pkg/apperrors"
)

// fakeProtocol is an in-memory Protocol that records calls.
type fakeProtocol struct {
	mu sync.Mutex

	connects    int
	disconnects int
	pings       int
	executes    int
	infos       []any

	connectErrs   []error // consumed one per Connect
	pingErr       error
	disconnectErr error
	executeFn     func(q Query, state *ConnState) Outcome[*Result]
}

var _ Protocol = (*fakeProtocol)(nil)

func selectOne() *Result {
	return &Result{
		Command: Command{Kind: CommandSelected},
		Columns: []string{"1"},
		Rows:    [][]any{{int64(1)}},
		NumRows: 1,
	}
}

func (p *fakeProtocol) counts() (connects, disconnects, pings, executes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects, p.disconnects, p.pings, p.executes
}

func (p *fakeProtocol) setPingErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pingErr = err
}

func (p *fakeProtocol) Connect(_ context.Context, _ map[string]any) Outcome[*ConnState] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if len(p.connectErrs) > 0 {
		err := p.connectErrs[0]
		p.connectErrs = p.connectErrs[1:]
		return Fail[*ConnState](err, nil)
	}
	state := NewIdleState(NewHandle(), []Option{{Key: "SERVER", Value: "fake"}}, 0)
	return Ok(state, state)
}

func (p *fakeProtocol) Disconnect(_ context.Context, _ error, state *ConnState) Outcome[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	state.Terminate()
	if p.disconnectErr != nil {
		return Fail[struct{}](p.disconnectErr, state)
	}
	return Ok(struct{}{}, state)
}

func (p *fakeProtocol) Reconnect(ctx context.Context, config map[string]any, state *ConnState) Outcome[*ConnState] {
	if out := p.Disconnect(ctx, nil, state); !out.IsOK() {
		return Fail[*ConnState](out.Err, state)
	}
	return p.Connect(ctx, config)
}

func (p *fakeProtocol) Checkout(_ context.Context, state *ConnState) Outcome[*ConnState] {
	return Ok(state, state)
}

func (p *fakeProtocol) Checkin(_ context.Context, state *ConnState) Outcome[*ConnState] {
	return Ok(state, state)
}

func (p *fakeProtocol) Ping(_ context.Context, state *ConnState) Outcome[*ConnState] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	if p.pingErr != nil {
		return Disconnect[*ConnState](p.pingErr, state)
	}
	return Ok(state, state)
}

func (p *fakeProtocol) Prepare(_ context.Context, q Query, _ QueryOptions, state *ConnState) Outcome[Query] {
	return Ok(q, state)
}

func (p *fakeProtocol) Execute(_ context.Context, q Query, _ []Param, _ QueryOptions, state *ConnState) Outcome[*Result] {
	p.mu.Lock()
	p.executes++
	fn := p.executeFn
	p.mu.Unlock()

	if !state.IsIdle() {
		return Disconnect[*Result](apperrors.ErrConnectionClosed, state)
	}
	if fn != nil {
		return fn(q, state)
	}
	return Ok(selectOne(), state)
}

func (p *fakeProtocol) Close(_ context.Context, _ Query, _ QueryOptions, state *ConnState) Outcome[*Result] {
	return Ok(EmptyResult("close"), state)
}

func (p *fakeProtocol) Begin(_ context.Context, _ QueryOptions, state *ConnState) Outcome[*Result] {
	return Ok(EmptyResult("begin"), state)
}

func (p *fakeProtocol) Commit(_ context.Context, _ QueryOptions, state *ConnState) Outcome[*Result] {
	return Ok(EmptyResult("commit"), state)
}

func (p *fakeProtocol) Rollback(_ context.Context, _ QueryOptions, state *ConnState) Outcome[*Result] {
	return Ok(EmptyResult("rollback"), state)
}

func (p *fakeProtocol) HandleInfo(_ context.Context, msg any, state *ConnState) Outcome[*ConnState] {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.infos = append(p.infos, msg)
	return Ok(state, state)
}

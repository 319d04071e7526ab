package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter records the lifecycle calls made against it.
type fakeAdapter struct {
	mu         sync.Mutex
	calls      []string
	connected  bool
	connectErr error
	execErr    error
	result     *ExecutionResult
	tables     []string
	inFlight   int
	maxFlight  int
	execDelay  time.Duration
	sawTimeout bool
}

var (
	_ Adapter = (*fakeAdapter)(nil)
	_ Catalog = (*fakeAdapter)(nil)
)

func (f *fakeAdapter) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAdapter) Engine() Engine         { return EnginePostgres }
func (f *fakeAdapter) DatabaseName() string   { return "app" }
func (f *fakeAdapter) DenyKeywords() []string { return nil }

func (f *fakeAdapter) Connect(ctx context.Context) error {
	f.record("connect")
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("connect called without a deadline")
	}
	if f.connectErr != nil {
		return &ConnectionError{Engine: EnginePostgres, Err: f.connectErr}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return ErrAlreadyConnected
	}
	f.connected = true
	return nil
}

func (f *fakeAdapter) ExecuteReadOnlyQuery(ctx context.Context, query string) (*ExecutionResult, error) {
	f.record("execute:" + query)

	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return nil, ErrNotConnected
	}
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.execDelay > 0 {
		select {
		case <-time.After(f.execDelay):
		case <-ctx.Done():
			f.mu.Lock()
			f.sawTimeout = true
			f.mu.Unlock()
			return nil, &ExecutionError{Engine: EnginePostgres, Err: ctx.Err()}
		}
	}
	if f.execErr != nil {
		return nil, &ExecutionError{Engine: EnginePostgres, Err: f.execErr}
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ExecutionResult{Rows: []map[string]any{}}, nil
}

func (f *fakeAdapter) Disconnect() error {
	f.record("disconnect")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeAdapter) ListTables(ctx context.Context) ([]string, error) {
	f.record("list_tables")
	return f.tables, nil
}

func (f *fakeAdapter) DescribeTable(ctx context.Context, table string) ([]map[string]any, error) {
	f.record("describe:" + table)
	return []map[string]any{{"column_name": "id", "data_type": "integer", "is_nullable": "NO"}}, nil
}

func newTestRunner(adapter Adapter) *Runner {
	return NewRunner(NewGuard(nil), adapter, time.Second, time.Second, nil)
}

func TestRunner_ScenarioA_Accepted(t *testing.T) {
	adapter := &fakeAdapter{result: &ExecutionResult{
		Columns: []string{"id"},
		Rows:    []map[string]any{{"id": int64(1)}, {"id": int64(2)}},
	}}

	result, err := newTestRunner(adapter).Run(context.Background(), "SELECT * FROM users")
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.Equal(t, []string{"connect", "execute:SELECT * FROM users", "disconnect"}, adapter.Calls())
}

func TestRunner_RejectionNeverConnects(t *testing.T) {
	tests := []struct {
		query    string
		wantKind RejectionKind
		wantKw   string
	}{
		{"select * from accounts; DROP TABLE accounts;", RejectWriteKeyword, "DROP"},
		{"UPDATE users SET active=1", RejectNotAllowlistedStart, ""},
		{"WITH deleted AS (DELETE FROM logs RETURNING *) SELECT * FROM deleted", RejectWriteKeyword, "DELETE"},
		{"", RejectNotAllowlistedStart, ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			adapter := &fakeAdapter{}
			_, err := newTestRunner(adapter).Run(context.Background(), tt.query)

			var rej *RejectionError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.wantKind, rej.Kind)
			assert.Equal(t, tt.wantKw, rej.Keyword)
			assert.Empty(t, adapter.Calls())
		})
	}
}

func TestRunner_ScenarioE_ConnectFailure(t *testing.T) {
	adapter := &fakeAdapter{connectErr: errors.New("dial tcp 10.0.0.1:5432: connect: no route to host")}

	_, err := newTestRunner(adapter).Run(context.Background(), "SELECT 1")

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, []string{"connect", "disconnect"}, adapter.Calls())
}

func TestRunner_ExecutionFailureStillDisconnects(t *testing.T) {
	adapter := &fakeAdapter{execErr: errors.New("syntax error at or near \"FORM\"")}

	_, err := newTestRunner(adapter).Run(context.Background(), "SELECT * FORM users")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, []string{"connect", "execute:SELECT * FORM users", "disconnect"}, adapter.Calls())

	// The adapter is reusable after a failure.
	adapter.execErr = nil
	_, err = newTestRunner(adapter).Run(context.Background(), "SELECT 1")
	assert.NoError(t, err)
}

func TestRunner_QueryTimeout(t *testing.T) {
	adapter := &fakeAdapter{execDelay: time.Second}
	runner := NewRunner(NewGuard(nil), adapter, 20*time.Millisecond, time.Second, nil)

	_, err := runner.Run(context.Background(), "SELECT pg_sleep(5)")

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, adapter.sawTimeout)
	assert.Equal(t, "disconnect", adapter.Calls()[len(adapter.Calls())-1])
}

func TestRunner_SerializesRequests(t *testing.T) {
	adapter := &fakeAdapter{execDelay: 5 * time.Millisecond}
	runner := newTestRunner(adapter)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := runner.Run(context.Background(), "SELECT 1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, adapter.maxFlight)
}

func TestRunner_Catalog(t *testing.T) {
	adapter := &fakeAdapter{tables: []string{"orders", "users"}}
	runner := newTestRunner(adapter)

	tables, err := runner.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)

	columns, err := runner.DescribeTable(context.Background(), "users")
	require.NoError(t, err)
	assert.Len(t, columns, 1)

	assert.Equal(t, []string{
		"connect", "list_tables", "disconnect",
		"connect", "describe:users", "disconnect",
	}, adapter.Calls())
}

// queryOnlyAdapter hides the fake's catalog methods.
type queryOnlyAdapter struct{ Adapter }

func TestRunner_CatalogUnsupported(t *testing.T) {
	runner := newTestRunner(queryOnlyAdapter{&fakeAdapter{}})

	_, err := runner.ListTables(context.Background())
	assert.ErrorIs(t, err, errors.ErrUnsupported)
}

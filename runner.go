package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Default deadlines (overridable via MCP_QUERY_TIMEOUT / MCP_CONNECT_TIMEOUT).
const (
	DefaultQueryTimeout   = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Runner drives one request through guard, connect, execute and disconnect.
// Requests are serialized so the adapter's connection is never shared.
type Runner struct {
	guard          *Guard
	adapter        Adapter
	queryTimeout   time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger

	mu sync.Mutex
}

// NewRunner wires a guard to an adapter. Zero timeouts fall back to the
// defaults.
func NewRunner(guard *Guard, adapter Adapter, queryTimeout, connectTimeout time.Duration, logger *slog.Logger) *Runner {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		guard:          guard,
		adapter:        adapter,
		queryTimeout:   queryTimeout,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Run validates query and, if it passes, executes it on a fresh connection.
func (r *Runner) Run(ctx context.Context, query string) (*ExecutionResult, error) {
	if err := r.guard.Validate(query); err != nil {
		r.logger.Info("query rejected", "error", err)
		return nil, err
	}

	var result *ExecutionResult
	err := r.withConnection(ctx, func(ctx context.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()

		res, err := r.adapter.ExecuteReadOnlyQuery(queryCtx, query)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("query executed", "rows", len(result.Rows), "truncated", result.Truncated)
	return result, nil
}

// ListTables returns the table names when the adapter supports a catalog.
func (r *Runner) ListTables(ctx context.Context) ([]string, error) {
	cat, ok := r.adapter.(Catalog)
	if !ok {
		return nil, errors.ErrUnsupported
	}

	var tables []string
	err := r.withConnection(ctx, func(ctx context.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()

		var err error
		tables, err = cat.ListTables(queryCtx)
		return err
	})
	return tables, err
}

// DescribeTable returns column metadata for table.
func (r *Runner) DescribeTable(ctx context.Context, table string) ([]map[string]any, error) {
	cat, ok := r.adapter.(Catalog)
	if !ok {
		return nil, errors.ErrUnsupported
	}

	var columns []map[string]any
	err := r.withConnection(ctx, func(ctx context.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()

		var err error
		columns, err = cat.DescribeTable(queryCtx, table)
		return err
	})
	return columns, err
}

// withConnection holds the runner lock for a full connect → fn → disconnect
// cycle. Disconnect runs on every path.
func (r *Runner) withConnection(ctx context.Context, fn func(context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		if err := r.adapter.Disconnect(); err != nil {
			r.logger.Warn("disconnect failed", "error", err)
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	err := r.adapter.Connect(connectCtx)
	cancel()
	if err != nil {
		r.logger.Warn("connect failed", "error", err)
		return err
	}

	if err := fn(ctx); err != nil {
		r.logger.Warn("query failed", "error", err)
		return err
	}
	return nil
}

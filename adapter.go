package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Engine identifies a supported SQL engine.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineMySQL    Engine = "mysql"
	EngineSQLite   Engine = "sqlite"
)

// engineAliases maps lowercase DB_TYPE values to engines.
var engineAliases = map[string]Engine{
	"postgres":   EnginePostgres,
	"postgresql": EnginePostgres,
	"pg":         EnginePostgres,
	"mysql":      EngineMySQL,
	"mariadb":    EngineMySQL,
	"sqlite":     EngineSQLite,
	"sqlite3":    EngineSQLite,
}

// ParseEngine resolves a configured engine name, case-insensitively.
func ParseEngine(name string) (Engine, error) {
	e, ok := engineAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", &ConfigError{Field: "DB_TYPE", Message: fmt.Sprintf("unsupported database type %q", name)}
	}
	return e, nil
}

// ConnectionDetails are fixed at startup. A zero Port means the engine's
// conventional port.
type ConnectionDetails struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (d ConnectionDetails) String() string {
	return fmt.Sprintf("%s@%s:%d/%s", d.User, d.Host, d.Port, d.Database)
}

// LogValue keeps the password out of structured logs.
func (d ConnectionDetails) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", d.Host),
		slog.Int("port", d.Port),
		slog.String("user", d.User),
		slog.String("database", d.Database),
	)
}

func (d ConnectionDetails) portOr(def int) int {
	if d.Port > 0 {
		return d.Port
	}
	return def
}

// ExecutionResult holds the engine's rows in engine order.
type ExecutionResult struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
}

// Adapter is the per-engine connect/execute/disconnect façade.
// An adapter is either Unconnected or Connected; it may cycle between the
// two any number of times.
type Adapter interface {
	Engine() Engine
	DatabaseName() string

	// DenyKeywords returns engine-specific keywords the guard adds to its
	// deny-list when MCP_ENGINE_DENY is on.
	DenyKeywords() []string

	// Connect opens exactly one connection. Calling it while connected
	// returns ErrAlreadyConnected.
	Connect(ctx context.Context) error

	// ExecuteReadOnlyQuery sends query to the engine verbatim.
	ExecuteReadOnlyQuery(ctx context.Context, query string) (*ExecutionResult, error)

	// Disconnect releases the connection, if any. It is idempotent.
	Disconnect() error
}

// Catalog is implemented by adapters that can describe their schema.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, table string) ([]map[string]any, error)
}

// AdapterOptions tune adapter behaviour independently of the engine.
type AdapterOptions struct {
	// MaxRows caps returned rows; 0 means unlimited.
	MaxRows int
	// SSLMode is passed to engines that support it.
	SSLMode string
	Logger  *slog.Logger
}

type adapterConstructor func(ConnectionDetails, AdapterOptions) Adapter

var adapterFactory = map[Engine]adapterConstructor{
	EnginePostgres: func(d ConnectionDetails, o AdapterOptions) Adapter { return NewPostgresAdapter(d, o) },
	EngineMySQL:    func(d ConnectionDetails, o AdapterOptions) Adapter { return NewMySQLAdapter(d, o) },
	EngineSQLite:   func(d ConnectionDetails, o AdapterOptions) Adapter { return NewSQLiteAdapter(d, o) },
}

// NewAdapter constructs the adapter registered for engine.
func NewAdapter(engine Engine, details ConnectionDetails, opts AdapterOptions) (Adapter, error) {
	ctor, ok := adapterFactory[engine]
	if !ok {
		return nil, &ConfigError{Field: "DB_TYPE", Message: fmt.Sprintf("no adapter registered for %q", engine)}
	}
	return ctor(details, opts), nil
}

// dialect is the engine-specific half of an sqlAdapter.
type dialect interface {
	driverName() string
	dsn() (string, error)
	readOnlyStatement() string
	listTablesQuery(database string) (string, []any)
	describeTableQuery(database, table string) (string, []any)
	scanColumn(rows *sql.Rows) (map[string]any, error)
}

// session is the connection handle owned by an adapter between Connect and
// Disconnect.
type session struct {
	db   *sql.DB
	conn *sql.Conn
}

func (s *session) close() error {
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// sqlAdapter implements the Adapter state machine on top of database/sql.
type sqlAdapter struct {
	engine  Engine
	details ConnectionDetails
	opts    AdapterOptions
	dialect dialect
	logger  *slog.Logger

	// openDB is sql.Open unless replaced in tests.
	openDB func(driverName, dsn string) (*sql.DB, error)

	mu   sync.Mutex
	sess *session
}

func newSQLAdapter(engine Engine, details ConnectionDetails, opts AdapterOptions, d dialect) *sqlAdapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &sqlAdapter{
		engine:  engine,
		details: details,
		opts:    opts,
		dialect: d,
		logger:  logger.With("engine", string(engine)),
		openDB:  sql.Open,
	}
}

func (a *sqlAdapter) Engine() Engine       { return a.engine }
func (a *sqlAdapter) DatabaseName() string { return a.details.Database }

func (a *sqlAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess != nil {
		return ErrAlreadyConnected
	}

	dsn, err := a.dialect.dsn()
	if err != nil {
		return &ConnectionError{Engine: a.engine, Err: err}
	}

	db, err := a.openDB(a.dialect.driverName(), dsn)
	if err != nil {
		return &ConnectionError{Engine: a.engine, Err: err}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return &ConnectionError{Engine: a.engine, Err: err}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return &ConnectionError{Engine: a.engine, Err: err}
	}

	if stmt := a.dialect.readOnlyStatement(); stmt != "" {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			a.logger.Warn("could not set read-only session", "error", err)
		}
	}

	a.sess = &session{db: db, conn: conn}
	return nil
}

func (a *sqlAdapter) ExecuteReadOnlyQuery(ctx context.Context, query string) (*ExecutionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		return nil, ErrNotConnected
	}

	rows, err := a.sess.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &ExecutionError{Engine: a.engine, Err: err}
	}
	defer rows.Close()

	result, err := scanRows(rows, a.opts.MaxRows)
	if err != nil {
		return nil, &ExecutionError{Engine: a.engine, Err: err}
	}
	return result, nil
}

func (a *sqlAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		return nil
	}
	sess := a.sess
	a.sess = nil
	return sess.close()
}

func (a *sqlAdapter) ListTables(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		return nil, ErrNotConnected
	}

	query, args := a.dialect.listTablesQuery(a.details.Database)
	rows, err := a.sess.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ExecutionError{Engine: a.engine, Err: fmt.Errorf("list tables: %w", err)}
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &ExecutionError{Engine: a.engine, Err: fmt.Errorf("scan table name: %w", err)}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Engine: a.engine, Err: err}
	}
	return tables, nil
}

func (a *sqlAdapter) DescribeTable(ctx context.Context, table string) ([]map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sess == nil {
		return nil, ErrNotConnected
	}

	query, args := a.dialect.describeTableQuery(a.details.Database, table)
	rows, err := a.sess.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &ExecutionError{Engine: a.engine, Err: fmt.Errorf("read schema: %w", err)}
	}
	defer rows.Close()

	columns := []map[string]any{}
	for rows.Next() {
		col, err := a.dialect.scanColumn(rows)
		if err != nil {
			return nil, &ExecutionError{Engine: a.engine, Err: fmt.Errorf("scan column info: %w", err)}
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Engine: a.engine, Err: err}
	}
	return columns, nil
}

// scanRows reads every row into a column-name map. []byte values become
// strings so results survive JSON encoding.
func scanRows(rows *sql.Rows, maxRows int) (*ExecutionResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	result := &ExecutionResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if maxRows > 0 && len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(result.Rows)+1, err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

package main

import (
	"database/sql"
	"errors"
	"net"
	"net/url"
	"strconv"

	_ "github.com/lib/pq"
)

const (
	postgresDefaultPort    = 5432
	postgresDefaultSSLMode = "prefer"
)

// postgresDenyKeywords are statements that mutate state on PostgreSQL but
// can start with a word the default deny-list does not cover.
var postgresDenyKeywords = []string{
	"COPY", "CALL", "EXECUTE", "MERGE", "VACUUM", "REFRESH",
	"LOCK", "LISTEN", "NOTIFY", "PREPARE",
}

// PostgresAdapter implements Adapter for PostgreSQL databases.
type PostgresAdapter struct {
	*sqlAdapter
}

func NewPostgresAdapter(details ConnectionDetails, opts AdapterOptions) *PostgresAdapter {
	a := &PostgresAdapter{}
	a.sqlAdapter = newSQLAdapter(EnginePostgres, details, opts, a)
	return a
}

func (a *PostgresAdapter) DenyKeywords() []string { return postgresDenyKeywords }

func (a *PostgresAdapter) driverName() string { return "postgres" }

func (a *PostgresAdapter) dsn() (string, error) {
	d := a.details
	if d.Host == "" {
		return "", errors.New("missing host")
	}
	sslmode := a.opts.SSLMode
	if sslmode == "" {
		sslmode = postgresDefaultSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.portOr(postgresDefaultPort))),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String(), nil
}

func (a *PostgresAdapter) readOnlyStatement() string {
	return "SET SESSION CHARACTERISTICS AS TRANSACTION READ ONLY"
}

func (a *PostgresAdapter) listTablesQuery(database string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_catalog = $1
		ORDER BY table_name`, []any{database}
}

func (a *PostgresAdapter) describeTableQuery(database, table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_catalog = $1 AND table_schema = 'public' AND table_name = $2
		ORDER BY ordinal_position`, []any{database, table}
}

func (a *PostgresAdapter) scanColumn(rows *sql.Rows) (map[string]any, error) {
	var colName, dataType, isNullable string
	var colDefault sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault); err != nil {
		return nil, err
	}

	col := map[string]any{
		"column_name": colName,
		"data_type":   dataType,
		"is_nullable": isNullable,
	}
	if colDefault.Valid {
		col["column_default"] = colDefault.String
	}
	return col, nil
}

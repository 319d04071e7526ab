package main

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// sqliteDenyKeywords block file attachment, maintenance and pragma writes.
var sqliteDenyKeywords = []string{
	"ATTACH", "DETACH", "VACUUM", "REINDEX", "PRAGMA",
}

// SQLiteAdapter implements Adapter for SQLite files. ConnectionDetails.Database
// is the file path; the other fields are unused.
type SQLiteAdapter struct {
	*sqlAdapter
}

func NewSQLiteAdapter(details ConnectionDetails, opts AdapterOptions) *SQLiteAdapter {
	a := &SQLiteAdapter{}
	a.sqlAdapter = newSQLAdapter(EngineSQLite, details, opts, a)
	return a
}

func (a *SQLiteAdapter) DenyKeywords() []string { return sqliteDenyKeywords }

func (a *SQLiteAdapter) driverName() string { return "sqlite" }

// dsn always opens the file through a URI so that mode=ro reaches SQLite.
func (a *SQLiteAdapter) dsn() (string, error) {
	path := a.details.Database
	if path == "" {
		return "", errors.New("missing database file path")
	}
	path = strings.TrimPrefix(path, "file:")
	if i := strings.Index(path, "?"); i != -1 {
		path = path[:i]
	}
	return "file:" + path + "?mode=ro", nil
}

// readOnlyStatement backs up mode=ro in the DSN.
func (a *SQLiteAdapter) readOnlyStatement() string {
	return "PRAGMA query_only = ON"
}

func (a *SQLiteAdapter) listTablesQuery(string) (string, []any) {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`, nil
}

func (a *SQLiteAdapter) describeTableQuery(_, table string) (string, []any) {
	// PRAGMA table_info cannot take placeholders.
	return fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(table, "'", "''")), nil
}

func (a *SQLiteAdapter) scanColumn(rows *sql.Rows) (map[string]any, error) {
	// cid, name, type, notnull, dflt_value, pk
	var cid int
	var name, colType string
	var notNull, pk int
	var dfltValue sql.NullString

	if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
		return nil, err
	}

	isNullable := "YES"
	if notNull == 1 {
		isNullable = "NO"
	}

	col := map[string]any{
		"column_name": name,
		"data_type":   colType,
		"is_nullable": isNullable,
	}
	if pk > 0 {
		col["column_key"] = "PRI"
	}
	if dfltValue.Valid {
		col["column_default"] = dfltValue.String
	}
	return col, nil
}

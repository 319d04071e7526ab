package main

import (
	"database/sql"
	"errors"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
)

const mysqlDefaultPort = 3306

// mysqlDenyKeywords extend the deny-list with MySQL-only mutating verbs.
var mysqlDenyKeywords = []string{
	"CALL", "EXECUTE", "HANDLER", "LOAD", "RENAME", "LOCK",
}

// MySQLAdapter implements Adapter for MySQL and MariaDB databases.
type MySQLAdapter struct {
	*sqlAdapter
}

func NewMySQLAdapter(details ConnectionDetails, opts AdapterOptions) *MySQLAdapter {
	a := &MySQLAdapter{}
	a.sqlAdapter = newSQLAdapter(EngineMySQL, details, opts, a)
	return a
}

func (a *MySQLAdapter) DenyKeywords() []string { return mysqlDenyKeywords }

func (a *MySQLAdapter) driverName() string { return "mysql" }

func (a *MySQLAdapter) dsn() (string, error) {
	d := a.details
	if d.Host == "" {
		return "", errors.New("missing host")
	}

	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.portOr(mysqlDefaultPort)))
	cfg.DBName = d.Database
	return cfg.FormatDSN(), nil
}

func (a *MySQLAdapter) readOnlyStatement() string {
	return "SET SESSION TRANSACTION READ ONLY"
}

func (a *MySQLAdapter) listTablesQuery(database string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name`, []any{database}
}

func (a *MySQLAdapter) describeTableQuery(database, table string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_key, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, []any{database, table}
}

func (a *MySQLAdapter) scanColumn(rows *sql.Rows) (map[string]any, error) {
	var colName, dataType, isNullable, colKey string
	var colDefault, extra sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colKey, &colDefault, &extra); err != nil {
		return nil, err
	}

	col := map[string]any{
		"column_name": colName,
		"data_type":   dataType,
		"is_nullable": isNullable,
		"column_key":  colKey,
	}
	if colDefault.Valid {
		col["column_default"] = colDefault.String
	}
	if extra.Valid && extra.String != "" {
		col["extra"] = extra.String
	}
	return col, nil
}

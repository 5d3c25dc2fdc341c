package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/tordrt/fedquery/internal/schema"
)

// MySQLAdapter serves one MySQL database.
type MySQLAdapter struct {
	sqlBase
	schemaName string
}

// NewMySQLAdapter connects to MySQL. schemaName selects the database to
// introspect; when empty the database named in the DSN is used.
func NewMySQLAdapter(ctx context.Context, dsn, schemaName string) (*MySQLAdapter, error) {
	if schemaName == "" {
		name, err := ParseDatabaseName(dsn)
		if err != nil {
			return nil, err
		}
		schemaName = name
	}

	db, err := openSQL(ctx, "mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &MySQLAdapter{sqlBase: sqlBase{db: db}, schemaName: schemaName}, nil
}

// ParseDatabaseName extracts the database name from a MySQL DSN.
func ParseDatabaseName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(strings.TrimPrefix(dsn, "mysql://"))
	if err != nil {
		return "", fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if cfg.DBName == "" {
		return "", fmt.Errorf("database name is required in MySQL DSN")
	}
	return cfg.DBName, nil
}

func (a *MySQLAdapter) Kind() Kind { return KindMySQL }

func (a *MySQLAdapter) ListTables(ctx context.Context) ([]string, error) {
	return mysqlIntrospector{a}.tableNames(ctx)
}

func (a *MySQLAdapter) DescribeTable(ctx context.Context, name string) (*schema.Table, error) {
	return extractTable(ctx, mysqlIntrospector{a}, name)
}

package db

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tordrt/fedquery/internal/schema"
)

// SQLiteAdapter serves a SQLite database file.
type SQLiteAdapter struct {
	sqlBase
}

// NewSQLiteAdapter opens the database file at path.
func NewSQLiteAdapter(ctx context.Context, path string) (*SQLiteAdapter, error) {
	db, err := openSQL(ctx, "sqlite3", path)
	if err != nil {
		return nil, err
	}
	return &SQLiteAdapter{sqlBase: sqlBase{db: db}}, nil
}

func (a *SQLiteAdapter) Kind() Kind { return KindSQLite }

func (a *SQLiteAdapter) ListTables(ctx context.Context) ([]string, error) {
	return sqliteIntrospector{a}.tableNames(ctx)
}

func (a *SQLiteAdapter) DescribeTable(ctx context.Context, name string) (*schema.Table, error) {
	return extractTable(ctx, sqliteIntrospector{a}, name)
}

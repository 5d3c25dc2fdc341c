// Package db implements physical adapters: one uniform interface for table
// listing, schema introspection and query execution over SQLite, PostgreSQL
// and MySQL backends.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tordrt/fedquery/internal/schema"
)

// Adapter is a connection to one physical database. Implementations are
// safe for concurrent use; every Query acquires its own connection.
type Adapter interface {
	Kind() Kind
	// ListTables returns the physical table names in name order.
	ListTables(ctx context.Context) ([]string, error)
	// DescribeTable returns the structured description of one physical table.
	DescribeTable(ctx context.Context, name string) (*schema.Table, error)
	// Query executes a statement in the backend's own dialect. Execution
	// errors surface either here or from the stream's Err.
	Query(ctx context.Context, query string) (RowStream, error)
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string) error
	Close() error
}

// Factory opens an adapter for a backend.
type Factory func(ctx context.Context, b Backend) (Adapter, error)

var factories = map[Kind]Factory{
	KindSQLite:   func(ctx context.Context, b Backend) (Adapter, error) { return NewSQLiteAdapter(ctx, b.DSN) },
	KindPostgres: func(ctx context.Context, b Backend) (Adapter, error) { return NewPostgresAdapter(ctx, b.DSN, b.Schema) },
	KindMySQL:    func(ctx context.Context, b Backend) (Adapter, error) { return NewMySQLAdapter(ctx, b.DSN, b.Schema) },
}

// Open connects to a backend using the factory registered for its kind.
func Open(ctx context.Context, b Backend) (Adapter, error) {
	f, ok := factories[b.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported database kind: %s", b.Kind)
	}
	return f(ctx, b)
}

// sqlBase carries the database/sql plumbing shared by the SQLite and MySQL
// adapters.
type sqlBase struct {
	db *sql.DB
}

func openSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (b *sqlBase) Query(ctx context.Context, query string) (RowStream, error) {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewSQLStream(rows, conn.Close)
}

func (b *sqlBase) Exec(ctx context.Context, query string) error {
	_, err := b.db.ExecContext(ctx, query)
	return err
}

func (b *sqlBase) Close() error {
	return b.db.Close()
}

// DB returns the underlying database handle.
func (b *sqlBase) DB() *sql.DB {
	return b.db
}

package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tordrt/fedquery/internal/schema"
)

const defaultPostgresSchema = "public"

// PostgresAdapter serves one PostgreSQL schema through a connection pool.
type PostgresAdapter struct {
	pool       *pgxpool.Pool
	schemaName string
}

// NewPostgresAdapter connects to PostgreSQL. schemaName defaults to "public".
func NewPostgresAdapter(ctx context.Context, connString, schemaName string) (*PostgresAdapter, error) {
	if schemaName == "" {
		schemaName = defaultPostgresSchema
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresAdapter{pool: pool, schemaName: schemaName}, nil
}

func (a *PostgresAdapter) Kind() Kind { return KindPostgres }

func (a *PostgresAdapter) ListTables(ctx context.Context) ([]string, error) {
	return postgresIntrospector{a}.tableNames(ctx)
}

func (a *PostgresAdapter) DescribeTable(ctx context.Context, name string) (*schema.Table, error) {
	return extractTable(ctx, postgresIntrospector{a}, name)
}

// Query runs the statement on a connection held until the stream closes.
// The first row is fetched eagerly so statement errors are reported here.
func (a *PostgresAdapter) Query(ctx context.Context, query string) (RowStream, error) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	rows, err := conn.Query(ctx, query)
	if err != nil {
		conn.Release()
		return nil, err
	}

	s := &pgStream{rows: rows, conn: conn}
	typeMap := conn.Conn().TypeMap()
	for _, fd := range rows.FieldDescriptions() {
		s.cols = append(s.cols, fd.Name)
		typeName := ""
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = strings.ToUpper(t.Name)
		}
		s.types = append(s.types, typeName)
	}

	s.primed = s.advance()
	if !s.primed && s.err != nil {
		err := s.err
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (a *PostgresAdapter) Exec(ctx context.Context, query string) error {
	_, err := a.pool.Exec(ctx, query)
	return err
}

func (a *PostgresAdapter) Close() error {
	a.pool.Close()
	return nil
}

type pgStream struct {
	rows   pgx.Rows
	conn   *pgxpool.Conn
	cols   []string
	types  []string
	cur    Row
	err    error
	primed bool
	closed bool
}

func (s *pgStream) advance() bool {
	if !s.rows.Next() {
		s.err = s.rows.Err()
		return false
	}
	values, err := s.rows.Values()
	if err != nil {
		s.err = err
		return false
	}
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	s.cur = Row{Columns: s.cols, Values: values}
	return true
}

func (s *pgStream) Columns() []string { return s.cols }

func (s *pgStream) ColumnTypes() []string { return s.types }

func (s *pgStream) Next() bool {
	if s.closed {
		return false
	}
	if s.primed {
		s.primed = false
		return true
	}
	if !s.advance() {
		_ = s.Close()
		return false
	}
	return true
}

func (s *pgStream) Row() Row { return s.cur }

func (s *pgStream) Err() error { return s.err }

func (s *pgStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.rows.Close()
	s.conn.Release()
	return nil
}

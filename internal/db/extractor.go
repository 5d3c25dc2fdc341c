package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/tordrt/fedquery/internal/schema"
)

// ErrTableNotFound is returned by DescribeTable when the backend has no such
// table.
var ErrTableNotFound = errors.New("table not found")

// introspector is the per-dialect half of schema extraction. Each method
// reads one aspect of a single table from the backend catalog.
type introspector interface {
	tableNames(ctx context.Context) ([]string, error)
	columns(ctx context.Context, table string) ([]schema.Column, error)
	primaryKey(ctx context.Context, table string) ([]string, error)
	relations(ctx context.Context, table string) ([]schema.Relation, error)
	indexes(ctx context.Context, table string) ([]schema.Index, error)
}

// extractTable extracts all information for a single table
func extractTable(ctx context.Context, in introspector, tableName string) (*schema.Table, error) {
	table := &schema.Table{Name: tableName}

	columns, err := in.columns(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableName)
	}
	table.Columns = columns

	pk, err := in.primaryKey(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract primary key: %w", err)
	}
	table.PrimaryKey = pk

	relations, err := in.relations(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract relations: %w", err)
	}
	table.Relations = relations

	indexes, err := in.indexes(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	table.Indexes = indexes

	return table, nil
}

// scanStrings reads a single text column from every row.
func scanStrings(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

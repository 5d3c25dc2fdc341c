package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/tordrt/fedquery/internal/schema"
)

// mysqlIntrospector reads table structure from information_schema.
type mysqlIntrospector struct {
	a *MySQLAdapter
}

func (m mysqlIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := m.a.db.QueryContext(ctx, query, m.a.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

// columns reports column_type rather than data_type so lengths and enum
// members stay visible (e.g. "varchar(255)", "enum('a','b')").
func (m mysqlIntrospector) columns(ctx context.Context, tableName string) ([]schema.Column, error) {
	query := `
		SELECT
			c.column_name,
			c.column_type,
			c.is_nullable,
			c.column_default,
			CASE WHEN EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON tc.constraint_name = kcu.constraint_name
					AND tc.table_schema = kcu.table_schema
					AND tc.table_name = kcu.table_name
				WHERE tc.table_schema = ?
					AND tc.table_name = ?
					AND tc.constraint_type = 'UNIQUE'
					AND kcu.column_name = c.column_name
			) THEN 1 ELSE 0 END AS is_unique
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position
	`

	schemaName := m.a.schemaName
	rows, err := m.a.db.QueryContext(ctx, query, schemaName, tableName, schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column
	for rows.Next() {
		var col schema.Column
		var nullable string
		var defaultVal sql.NullString
		var isUnique int

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &defaultVal, &isUnique); err != nil {
			return nil, err
		}

		col.Nullable = nullable == "YES"
		col.IsUnique = isUnique == 1
		if defaultVal.Valid {
			v := defaultVal.String
			col.DefaultValue = &v
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (m mysqlIntrospector) primaryKey(ctx context.Context, tableName string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
			AND table_name = ?
			AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := m.a.db.QueryContext(ctx, query, m.a.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (m mysqlIntrospector) relations(ctx context.Context, tableName string) ([]schema.Relation, error) {
	query := `
		SELECT
			kcu.column_name,
			kcu.referenced_table_name,
			kcu.referenced_column_name
		FROM information_schema.key_column_usage kcu
		WHERE kcu.table_schema = ?
			AND kcu.table_name = ?
			AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.ordinal_position
	`

	rows, err := m.a.db.QueryContext(ctx, query, m.a.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []schema.Relation
	for rows.Next() {
		var rel schema.Relation
		if err := rows.Scan(&rel.SourceColumn, &rel.TargetTable, &rel.TargetColumn); err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

func (m mysqlIntrospector) indexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	query := `
		SELECT
			s.index_name,
			MIN(s.non_unique) = 0 AS is_unique,
			GROUP_CONCAT(s.column_name ORDER BY s.seq_in_index) AS column_names
		FROM information_schema.statistics s
		WHERE s.table_schema = ?
			AND s.table_name = ?
			AND s.index_name != 'PRIMARY'
		GROUP BY s.index_name
		ORDER BY s.index_name
	`

	rows, err := m.a.db.QueryContext(ctx, query, m.a.schemaName, tableName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []schema.Index
	for rows.Next() {
		var idx schema.Index
		var isUnique int
		var columnNames string

		if err := rows.Scan(&idx.Name, &isUnique, &columnNames); err != nil {
			return nil, err
		}

		idx.IsUnique = isUnique == 1
		idx.Columns = strings.Split(columnNames, ",")
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

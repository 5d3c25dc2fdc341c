package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/tordrt/fedquery/internal/schema"
)

// sqliteIntrospector reads table structure through PRAGMA statements.
type sqliteIntrospector struct {
	a *SQLiteAdapter
}

func (s sqliteIntrospector) tableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := s.a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

type sqliteColumnInfo struct {
	name       string
	colType    string
	notNull    bool
	defaultVal sql.NullString
	pkOrder    int
}

func (s sqliteIntrospector) tableInfo(ctx context.Context, tableName string) ([]sqliteColumnInfo, error) {
	rows, err := s.a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []sqliteColumnInfo
	for rows.Next() {
		var cid, notNull int
		var info sqliteColumnInfo
		if err := rows.Scan(&cid, &info.name, &info.colType, &notNull, &info.defaultVal, &info.pkOrder); err != nil {
			return nil, err
		}
		info.notNull = notNull != 0
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s sqliteIntrospector) columns(ctx context.Context, tableName string) ([]schema.Column, error) {
	infos, err := s.tableInfo(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}

	indexes, err := s.allIndexes(ctx, tableName)
	if err != nil {
		return nil, err
	}
	unique := make(map[string]bool)
	for _, idx := range indexes {
		if idx.IsUnique && len(idx.Columns) == 1 {
			unique[idx.Columns[0]] = true
		}
	}

	columns := make([]schema.Column, 0, len(infos))
	for _, info := range infos {
		col := schema.Column{
			Name:     info.name,
			Type:     info.colType,
			Nullable: !info.notNull,
			// Primary keys are reported separately
			IsUnique: unique[info.name] && info.pkOrder == 0,
		}
		if info.defaultVal.Valid {
			v := info.defaultVal.String
			col.DefaultValue = &v
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (s sqliteIntrospector) primaryKey(ctx context.Context, tableName string) ([]string, error) {
	infos, err := s.tableInfo(ctx, tableName)
	if err != nil {
		return nil, err
	}

	// pk holds the 1-based position within the key
	ordered := make([]string, len(infos))
	n := 0
	for _, info := range infos {
		if info.pkOrder > 0 && info.pkOrder <= len(infos) {
			ordered[info.pkOrder-1] = info.name
			n++
		}
	}
	if n == 0 {
		return nil, nil
	}
	return ordered[:n], nil
}

func (s sqliteIntrospector) relations(ctx context.Context, tableName string) ([]schema.Relation, error) {
	rows, err := s.a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []schema.Relation
	for rows.Next() {
		var id, seq int
		var targetTable, fromCol, onUpdate, onDelete, match string
		var toCol sql.NullString

		if err := rows.Scan(&id, &seq, &targetTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}

		rel := schema.Relation{
			SourceColumn: fromCol,
			TargetTable:  targetTable,
			TargetColumn: toCol.String,
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

// indexes skips the automatic indexes SQLite creates for inline constraints.
func (s sqliteIntrospector) indexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	all, err := s.allIndexes(ctx, tableName)
	if err != nil {
		return nil, err
	}

	var indexes []schema.Index
	for _, idx := range all {
		if strings.HasPrefix(idx.Name, "sqlite_autoindex") {
			continue
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (s sqliteIntrospector) allIndexes(ctx context.Context, tableName string) ([]schema.Index, error) {
	rows, err := s.a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(tableName)))
	if err != nil {
		return nil, err
	}

	var indexes []schema.Index
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string

		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		indexes = append(indexes, schema.Index{Name: name, IsUnique: unique == 1})
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	result := indexes[:0]
	for _, idx := range indexes {
		cols, err := s.indexColumns(ctx, idx.Name)
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			continue
		}
		idx.Columns = cols
		result = append(result, idx)
	}
	return result, nil
}

func (s sqliteIntrospector) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := s.a.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(indexName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString

		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}
		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}
	return columns, rows.Err()
}

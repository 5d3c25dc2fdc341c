package db

import (
	"database/sql"
	"errors"
	"strings"
)

// Row is one result row. Values are positionally aligned with Columns.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by column name.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.Columns))
	for i, c := range r.Columns {
		m[c] = r.Values[i]
	}
	return m
}

// RowStream is a pull-based result iterator. Callers must Close it; Close is
// idempotent and releases the backend cursor and connection. A stream closes
// itself once Next returns false.
type RowStream interface {
	Columns() []string
	// ColumnTypes returns the backend type name of each column, uppercased.
	// Entries are empty when the backend does not report a type.
	ColumnTypes() []string
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Collect drains a stream into memory and closes it.
func Collect(s RowStream) ([]Row, error) {
	defer s.Close()

	var rows []Row
	for s.Next() {
		rows = append(rows, s.Row())
	}
	return rows, s.Err()
}

// sqlStream adapts *sql.Rows taken from a dedicated connection.
type sqlStream struct {
	rows    *sql.Rows
	release func() error
	cols    []string
	types   []string
	cur     Row
	err     error
	closed  bool
}

// NewSQLStream wraps rows in a RowStream. release, if not nil, runs after
// the rows are closed; it typically returns the connection that produced
// them. On error both are closed before returning.
func NewSQLStream(rows *sql.Rows, release func() error) (RowStream, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		if release != nil {
			_ = release()
		}
		return nil, err
	}

	types := make([]string, len(cols))
	if cts, err := rows.ColumnTypes(); err == nil {
		for i, ct := range cts {
			types[i] = strings.ToUpper(ct.DatabaseTypeName())
		}
	}
	return &sqlStream{rows: rows, release: release, cols: cols, types: types}, nil
}

func (s *sqlStream) Columns() []string { return s.cols }

func (s *sqlStream) ColumnTypes() []string { return s.types }

func (s *sqlStream) Next() bool {
	if s.closed {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		_ = s.Close()
		return false
	}

	values := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		s.err = err
		_ = s.Close()
		return false
	}
	for i, v := range values {
		// Text columns come back as []byte from some drivers
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	s.cur = Row{Columns: s.cols, Values: values}
	return true
}

func (s *sqlStream) Row() Row { return s.cur }

func (s *sqlStream) Err() error { return s.err }

func (s *sqlStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.rows.Close()
	if s.release != nil {
		err = errors.Join(err, s.release())
	}
	return err
}

// memoryStream iterates over rows already held in memory.
type memoryStream struct {
	cols    []string
	rows    [][]any
	pos     int
	onClose func() error
	closed  bool
}

// NewMemoryStream returns a stream over materialized rows. onClose, if not
// nil, runs exactly once when the stream is closed or exhausted.
func NewMemoryStream(columns []string, rows [][]any, onClose func() error) RowStream {
	return &memoryStream{cols: columns, rows: rows, pos: -1, onClose: onClose}
}

func (s *memoryStream) Columns() []string { return s.cols }

func (s *memoryStream) ColumnTypes() []string { return make([]string, len(s.cols)) }

func (s *memoryStream) Next() bool {
	if s.closed {
		return false
	}
	s.pos++
	if s.pos >= len(s.rows) {
		_ = s.Close()
		return false
	}
	return true
}

func (s *memoryStream) Row() Row {
	if s.pos < 0 || s.pos >= len(s.rows) {
		return Row{Columns: s.cols}
	}
	return Row{Columns: s.cols, Values: s.rows[s.pos]}
}

func (s *memoryStream) Err() error { return nil }

func (s *memoryStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.onClose != nil {
		return s.onClose()
	}
	return nil
}

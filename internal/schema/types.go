// Package schema holds the structured description of a physical table as
// introspected from a backend.
package schema

// Table represents a physical database table
type Table struct {
	Name       string
	Columns    []Column
	Relations  []Relation
	Indexes    []Index
	PrimaryKey []string
}

// Column represents a table column
type Column struct {
	Name         string
	Type         string
	Nullable     bool
	DefaultValue *string
	IsUnique     bool
}

// Relation represents a foreign key relationship
type Relation struct {
	TargetTable  string
	TargetColumn string
	SourceColumn string
}

// Index represents a database index
type Index struct {
	Name     string
	Columns  []string
	IsUnique bool
}

// Clone returns a deep copy so callers can rename the table or its
// relations without touching a cached original.
func (t *Table) Clone() *Table {
	c := &Table{
		Name:       t.Name,
		Columns:    make([]Column, len(t.Columns)),
		Relations:  make([]Relation, len(t.Relations)),
		Indexes:    make([]Index, len(t.Indexes)),
		PrimaryKey: append([]string(nil), t.PrimaryKey...),
	}
	copy(c.Columns, t.Columns)
	copy(c.Relations, t.Relations)
	for i, idx := range t.Indexes {
		c.Indexes[i] = Index{
			Name:     idx.Name,
			Columns:  append([]string(nil), idx.Columns...),
			IsUnique: idx.IsUnique,
		}
	}
	return c
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Package formatter renders virtual table descriptions as schema text for
// the drafting oracle and as documentation for operators.
package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/fedquery/internal/schema"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// TableDoc is one virtual table plus the annotations rendered with it.
type TableDoc struct {
	Table *schema.Table
	// Database is the owning alias. The text format leaves it out.
	Database string
	// Relationships are configured joins, already rendered as
	// "FOREIGN KEY (col) REFERENCES table(col)".
	Relationships []string
}

// Formatter writes a set of table docs.
type Formatter interface {
	Format(docs []TableDoc) error
}

// New returns the formatter for a format name.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(w), nil
	case FormatMarkdown:
		return NewMarkdownFormatter(w), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (use text or markdown)", format)
	}
}

// TextFormatter formats tables as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes each table, separated by blank lines
func (f *TextFormatter) Format(docs []TableDoc) error {
	for i, doc := range docs {
		if i > 0 {
			if _, err := fmt.Fprintln(f.writer); err != nil {
				return err
			}
		}
		if err := f.FormatTable(doc); err != nil {
			return err
		}
	}
	return nil
}

// FormatTable writes a single table
func (f *TextFormatter) FormatTable(doc TableDoc) error {
	var b strings.Builder
	writeTextTable(&b, doc)
	_, err := io.WriteString(f.writer, b.String())
	return err
}

// TableText renders one table in the text format.
func TableText(doc TableDoc) string {
	var b strings.Builder
	writeTextTable(&b, doc)
	return strings.TrimRight(b.String(), "\n")
}

func writeTextTable(b *strings.Builder, doc TableDoc) {
	table := doc.Table

	pkStr := ""
	if len(table.PrimaryKey) > 0 {
		pkStr = fmt.Sprintf(" (PK: %s)", strings.Join(table.PrimaryKey, ", "))
	}
	fmt.Fprintf(b, "TABLE %s%s\n", table.Name, pkStr)

	for _, col := range table.Columns {
		fmt.Fprintf(b, "  %s\n", formatColumn(col))
	}

	if len(table.Relations) > 0 {
		b.WriteString("  RELATIONS:\n")
		for _, rel := range table.Relations {
			fmt.Fprintf(b, "    %s → %s.%s\n", rel.SourceColumn, rel.TargetTable, rel.TargetColumn)
		}
	}

	if len(table.Indexes) > 0 {
		b.WriteString("  INDEXES:\n")
		for _, idx := range table.Indexes {
			unique := ""
			if idx.IsUnique {
				unique = " UNIQUE"
			}
			fmt.Fprintf(b, "    %s (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), unique)
		}
	}

	if len(doc.Relationships) > 0 {
		b.WriteString("  -- Relationships --\n")
		for _, rel := range doc.Relationships {
			fmt.Fprintf(b, "  %s\n", rel)
		}
	}
}

func formatColumn(col schema.Column) string {
	parts := []string{col.Name + ":", col.Type}

	if col.IsUnique {
		parts = append(parts, "UNIQUE")
	}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if col.DefaultValue != nil {
		parts = append(parts, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}

	return strings.Join(parts, " ")
}

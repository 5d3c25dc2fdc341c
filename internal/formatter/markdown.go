package formatter

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/tordrt/fedquery/internal/schema"
)

// MarkdownFormatter formats tables as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the virtual schema in markdown format
func (f *MarkdownFormatter) Format(docs []TableDoc) error {
	if _, err := fmt.Fprint(f.writer, "# Virtual Schema\n\n"); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := f.FormatTable(doc); err != nil {
			return err
		}
	}
	return nil
}

// FormatTable formats a single table
func (f *MarkdownFormatter) FormatTable(doc TableDoc) error {
	var b strings.Builder
	writeMarkdownTable(&b, doc)
	_, err := io.WriteString(f.writer, b.String())
	return err
}

func writeMarkdownTable(b *strings.Builder, doc TableDoc) {
	table := doc.Table

	fmt.Fprintf(b, "## %s\n\n", table.Name)
	if doc.Database != "" {
		fmt.Fprintf(b, "Database: `%s`\n\n", doc.Database)
	}

	b.WriteString("### Columns\n\n")
	for _, col := range table.Columns {
		constraints := formatConstraints(col, table.PrimaryKey)
		if constraints != "" {
			fmt.Fprintf(b, "- **%s:** %s, %s\n", col.Name, col.Type, constraints)
		} else {
			fmt.Fprintf(b, "- **%s:** %s\n", col.Name, col.Type)
		}
	}
	b.WriteString("\n")

	if len(table.Relations) > 0 || len(doc.Relationships) > 0 {
		b.WriteString("### References\n\n")
		for _, rel := range table.Relations {
			fmt.Fprintf(b, "- %s → %s.%s\n", rel.SourceColumn, rel.TargetTable, rel.TargetColumn)
		}
		for _, rel := range doc.Relationships {
			fmt.Fprintf(b, "- %s (cross-database)\n", rel)
		}
		b.WriteString("\n")
	}

	if len(table.Indexes) > 0 {
		b.WriteString("### Indexes\n\n")
		for _, idx := range table.Indexes {
			if idx.IsUnique {
				fmt.Fprintf(b, "- %s on (%s), unique\n", idx.Name, strings.Join(idx.Columns, ", "))
			} else {
				fmt.Fprintf(b, "- %s on (%s)\n", idx.Name, strings.Join(idx.Columns, ", "))
			}
		}
		b.WriteString("\n")
	}
}

func formatConstraints(col schema.Column, primaryKey []string) string {
	var constraints []string

	if slices.Contains(primaryKey, col.Name) {
		constraints = append(constraints, "PK")
	}
	if col.IsUnique {
		constraints = append(constraints, "UNIQUE")
	}
	if !col.Nullable {
		constraints = append(constraints, "NOT NULL")
	}
	if col.DefaultValue != nil {
		constraints = append(constraints, fmt.Sprintf("DEFAULT %s", *col.DefaultValue))
	}

	return strings.Join(constraints, ", ")
}

package formatter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MultiFileFormatter writes one file per virtual table plus an overview
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes the overview and the per-table files
func (f *MultiFileFormatter) Format(docs []TableDoc) error {
	if f.OutputFormat != FormatText && f.OutputFormat != FormatMarkdown {
		return fmt.Errorf("unsupported format: %s (use text or markdown)", f.OutputFormat)
	}

	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := f.writeFile("_overview", f.overview(docs)); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, doc := range docs {
		var b strings.Builder
		if f.OutputFormat == FormatMarkdown {
			writeMarkdownTable(&b, doc)
			writeReferencedBy(&b, doc.Table.Name, docs)
		} else {
			writeTextTable(&b, doc)
		}
		if err := f.writeFile(doc.Table.Name, b.String()); err != nil {
			return fmt.Errorf("failed to write table file for %s: %w", doc.Table.Name, err)
		}
	}
	return nil
}

func (f *MultiFileFormatter) writeFile(name, content string) error {
	filename := filepath.Join(f.OutputDir, name+f.extension())
	return os.WriteFile(filename, []byte(content), 0644)
}

// overview lists tables alphabetically with the databases that own them
// and the tables they reference.
func (f *MultiFileFormatter) overview(docs []TableDoc) string {
	sorted := make([]TableDoc, len(docs))
	copy(sorted, docs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Table.Name < sorted[j].Table.Name
	})

	var b strings.Builder
	if f.OutputFormat == FormatMarkdown {
		b.WriteString("# Virtual Schema Overview\n\n")
		fmt.Fprintf(&b, "Each table has a corresponding file: `<table_name>%s`\n\n", f.extension())
		b.WriteString("## Tables\n\n")
	} else {
		b.WriteString("VIRTUAL SCHEMA OVERVIEW\n")
		fmt.Fprintf(&b, "Each table has a file: <table_name>%s\n\n", f.extension())
	}

	for _, doc := range sorted {
		if f.OutputFormat == FormatMarkdown {
			fmt.Fprintf(&b, "- **%s**", doc.Table.Name)
		} else {
			b.WriteString(doc.Table.Name)
		}
		if doc.Database != "" {
			fmt.Fprintf(&b, " [%s]", doc.Database)
		}
		if targets := referencedTables(doc); len(targets) > 0 {
			fmt.Fprintf(&b, " (references: %s)", strings.Join(targets, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func referencedTables(doc TableDoc) []string {
	seen := make(map[string]bool)
	var targets []string
	for _, rel := range doc.Table.Relations {
		if !seen[rel.TargetTable] {
			seen[rel.TargetTable] = true
			targets = append(targets, rel.TargetTable)
		}
	}
	return targets
}

// writeReferencedBy lists the foreign keys in other tables that point here.
func writeReferencedBy(b *strings.Builder, tableName string, docs []TableDoc) {
	var lines []string
	for _, doc := range docs {
		for _, rel := range doc.Table.Relations {
			if rel.TargetTable == tableName {
				lines = append(lines, fmt.Sprintf("- %s.%s → %s", doc.Table.Name, rel.SourceColumn, rel.TargetColumn))
			}
		}
	}
	if len(lines) == 0 {
		return
	}

	b.WriteString("### Referenced by\n\n")
	for _, line := range lines {
		b.WriteString(line + "\n")
	}
	b.WriteString("\n")
}

func (f *MultiFileFormatter) extension() string {
	if f.OutputFormat == FormatMarkdown {
		return ".md"
	}
	return ".txt"
}

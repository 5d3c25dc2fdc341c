package formatter

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tordrt/fedquery/internal/schema"
)

func strPtr(s string) *string { return &s }

func sampleDocs() []TableDoc {
	customers := &schema.Table{
		Name:       "customers",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", Type: "INTEGER"},
			{Name: "email", Type: "TEXT", IsUnique: true},
		},
	}
	orders := &schema.Table{
		Name:       "orders",
		PrimaryKey: []string{"order_id"},
		Columns: []schema.Column{
			{Name: "order_id", Type: "INTEGER"},
			{Name: "customer_id", Type: "INTEGER"},
			{Name: "status", Type: "TEXT", Nullable: true, DefaultValue: strPtr("'open'")},
		},
		Relations: []schema.Relation{{SourceColumn: "customer_id", TargetTable: "customers", TargetColumn: "id"}},
		Indexes:   []schema.Index{{Name: "idx_orders_customer", Columns: []string{"customer_id"}}},
	}
	return []TableDoc{
		{Table: orders, Database: "sales", Relationships: []string{"FOREIGN KEY (customer_id) REFERENCES customers(id)"}},
		{Table: customers, Database: "crm"},
	}
}

func TestTableText(t *testing.T) {
	got := TableText(sampleDocs()[0])
	want := strings.Join([]string{
		"TABLE orders (PK: order_id)",
		"  order_id: INTEGER NOT NULL",
		"  customer_id: INTEGER NOT NULL",
		"  status: TEXT DEFAULT 'open'",
		"  RELATIONS:",
		"    customer_id → customers.id",
		"  INDEXES:",
		"    idx_orders_customer (customer_id)",
		"  -- Relationships --",
		"  FOREIGN KEY (customer_id) REFERENCES customers(id)",
	}, "\n")

	if got != want {
		t.Errorf("TableText() =\n%s\nwant\n%s", got, want)
	}
}

func TestTextFormatterOmitsDatabase(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextFormatter(&buf).Format(sampleDocs()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "sales") || strings.Contains(out, "crm") {
		t.Errorf("text output should not name databases:\n%s", out)
	}
	if !strings.Contains(out, "\n\nTABLE customers (PK: id)\n") {
		t.Errorf("tables should be separated by a blank line:\n%s", out)
	}
	if !strings.Contains(out, "email: TEXT UNIQUE NOT NULL") {
		t.Errorf("unique column not rendered:\n%s", out)
	}
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewMarkdownFormatter(&buf).Format(sampleDocs()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Virtual Schema",
		"## orders",
		"Database: `sales`",
		"- **order_id:** INTEGER, PK, NOT NULL",
		"- **status:** TEXT, DEFAULT 'open'",
		"- customer_id → customers.id",
		"- FOREIGN KEY (customer_id) REFERENCES customers(id) (cross-database)",
		"- idx_orders_customer on (customer_id)",
		"- **email:** TEXT, UNIQUE, NOT NULL",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"text", false},
		{"", false},
		{"markdown", false},
		{"html", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := New(tt.format, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
		})
	}
}

func TestMultiFileFormatter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "docs")

	if err := NewMultiFileFormatter(dir, FormatMarkdown).Format(sampleDocs()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	overview, err := os.ReadFile(filepath.Join(dir, "_overview.md"))
	if err != nil {
		t.Fatalf("overview not written: %v", err)
	}
	if !strings.Contains(string(overview), "- **customers** [crm]\n- **orders** [sales] (references: customers)") {
		t.Errorf("unexpected overview:\n%s", overview)
	}

	customers, err := os.ReadFile(filepath.Join(dir, "customers.md"))
	if err != nil {
		t.Fatalf("customers file not written: %v", err)
	}
	if !strings.Contains(string(customers), "### Referenced by\n\n- orders.customer_id → id") {
		t.Errorf("missing incoming reference:\n%s", customers)
	}

	if _, err := os.Stat(filepath.Join(dir, "orders.md")); err != nil {
		t.Errorf("orders file not written: %v", err)
	}
}

func TestMultiFileFormatterText(t *testing.T) {
	dir := t.TempDir()

	if err := NewMultiFileFormatter(dir, FormatText).Format(sampleDocs()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orders.txt")); err != nil {
		t.Errorf("orders.txt not written: %v", err)
	}
	if err := NewMultiFileFormatter(dir, "yaml").Format(sampleDocs()); err == nil {
		t.Error("expected error for unsupported format")
	}
}

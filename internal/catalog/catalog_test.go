package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/fedquery/internal/cache"
	"github.com/tordrt/fedquery/internal/config"
	"github.com/tordrt/fedquery/internal/db"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
	"github.com/tordrt/fedquery/internal/testutil"
)

func openRegistry(t *testing.T, paths map[string]string) *db.Registry {
	t.Helper()

	backends := make(map[string]db.Backend, len(paths))
	for alias, path := range paths {
		backends[alias] = db.Backend{Kind: db.KindSQLite, DSN: path}
	}
	reg, err := db.OpenRegistry(context.Background(), backends)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func salesCRM(t *testing.T, opts ...Option) (*Catalog, map[string]string) {
	t.Helper()

	paths := map[string]string{
		"sales": testutil.SQLiteFile(t, "sales", testutil.SalesStatements...),
		"crm":   testutil.SQLiteFile(t, "crm", testutil.CRMStatements...),
	}
	cat, err := New(
		[]VirtualTable{
			{Name: "orders", Alias: "sales", Physical: "sales_orders"},
			{Name: "customers", Alias: "crm", Physical: "crm_customers"},
		},
		[]Relationship{{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}},
		openRegistry(t, paths),
		opts...,
	)
	require.NoError(t, err)
	return cat, paths
}

func TestTablesAndResolve(t *testing.T) {
	cat, _ := salesCRM(t)

	assert.Equal(t, []string{"orders", "customers"}, cat.Tables())

	vt, err := cat.Resolve("customers")
	require.NoError(t, err)
	assert.Equal(t, VirtualTable{Name: "customers", Alias: "crm", Physical: "crm_customers"}, vt)

	_, err = cat.Resolve("Customers")
	assert.ErrorIs(t, err, fqerrors.ErrUnknownVirtualTable, "lookup is case-sensitive")

	_, err = cat.Describe(context.Background(), "invoices")
	assert.ErrorIs(t, err, fqerrors.ErrUnknownVirtualTable)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		tables []VirtualTable
		rels   []Relationship
	}{
		{
			name: "duplicate name",
			tables: []VirtualTable{
				{Name: "orders", Alias: "a", Physical: "o1"},
				{Name: "orders", Alias: "b", Physical: "o2"},
			},
		},
		{
			name:   "incomplete mapping",
			tables: []VirtualTable{{Name: "orders", Alias: "a"}},
		},
		{
			name:   "relationship to unknown table",
			tables: []VirtualTable{{Name: "orders", Alias: "a", Physical: "o"}},
			rels:   []Relationship{{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tables, tt.rels, db.NewRegistry())
			assert.Error(t, err)
		})
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.VirtualTables = []config.VirtualTableConfig{
		{Name: "orders", Source: "sales.sales_orders"},
		{Name: "events", Source: "warehouse.analytics.events"},
	}
	cfg.Relationships = []config.RelationshipConfig{{From: "orders.id", To: "events.order_id"}}

	cat, err := FromConfig(cfg, db.NewRegistry())
	require.NoError(t, err)

	vt, err := cat.Resolve("events")
	require.NoError(t, err)
	assert.Equal(t, "warehouse", vt.Alias)
	assert.Equal(t, "analytics.events", vt.Physical, "source splits on the first dot")

	assert.Equal(t, []Relationship{{FromTable: "orders", FromColumn: "id", ToTable: "events", ToColumn: "order_id"}}, cat.Relationships())
}

func TestDescribeUsesVirtualNames(t *testing.T) {
	cat, _ := salesCRM(t)

	text, err := cat.Describe(context.Background(), "orders")
	require.NoError(t, err)

	expected := `TABLE orders (PK: order_id)
  order_id: INTEGER
  customer_id: INTEGER NOT NULL
  total: REAL NOT NULL
  status: TEXT DEFAULT 'open'
  INDEXES:
    orders_customer_id_idx (customer_id)
  -- Relationships --
  FOREIGN KEY (customer_id) REFERENCES customers(id)`
	assert.Equal(t, expected, text)
	assert.NotContains(t, text, "sales_orders")

	text, err = cat.Describe(context.Background(), "customers")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "TABLE customers (PK: id)"))
	assert.NotContains(t, text, "Relationships", "only outgoing relationships are listed")
}

func TestDescribeRetargetsForeignKeys(t *testing.T) {
	path := testutil.SQLiteFile(t, "shop",
		`CREATE TABLE tbl_hdr (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE tbl_audit (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE tbl_line (
			id INTEGER PRIMARY KEY,
			hdr_id INTEGER REFERENCES tbl_hdr(id),
			audit_id INTEGER REFERENCES tbl_audit(id)
		)`,
	)
	cat, err := New(
		[]VirtualTable{
			{Name: "order_lines", Alias: "shop", Physical: "tbl_line"},
			{Name: "orders", Alias: "shop", Physical: "tbl_hdr"},
		},
		nil,
		openRegistry(t, map[string]string{"shop": path}),
	)
	require.NoError(t, err)

	doc, err := cat.Document(context.Background(), "order_lines")
	require.NoError(t, err)
	assert.Equal(t, "order_lines", doc.Table.Name)
	assert.Equal(t, "shop", doc.Database)
	require.Len(t, doc.Table.Relations, 1, "relation to the unmapped table is dropped")
	assert.Equal(t, "orders", doc.Table.Relations[0].TargetTable)
	assert.Equal(t, "hdr_id", doc.Table.Relations[0].SourceColumn)

	text, err := cat.Describe(context.Background(), "order_lines")
	require.NoError(t, err)
	assert.NotContains(t, text, "tbl_")
}

func TestSchemaAndDocuments(t *testing.T) {
	cat, _ := salesCRM(t)
	ctx := context.Background()

	docs, err := cat.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "orders", docs[0].Table.Name)
	assert.Equal(t, "crm", docs[1].Database)

	s, err := cat.Schema(ctx)
	require.NoError(t, err)
	parts := strings.Split(s, "\n\n")
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[1], "TABLE customers"))
}

func TestDescribeCache(t *testing.T) {
	mem := cache.NewMemoryClient(10)
	cat, paths := salesCRM(t, WithCache(mem, time.Minute))
	ctx := context.Background()

	first, err := cat.Describe(ctx, "customers")
	require.NoError(t, err)

	_, err = mem.Get(ctx, cache.Key("describe", "crm", "crm_customers"))
	require.NoError(t, err, "physical description is cached")

	// Alter the physical table; the cached description still wins
	raw, err := sql.Open("sqlite3", paths["crm"])
	require.NoError(t, err)
	defer raw.Close()
	_, err = raw.Exec(`ALTER TABLE crm_customers ADD COLUMN region TEXT`)
	require.NoError(t, err)

	second, err := cat.Describe(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotContains(t, second, "region")
}

type brokenCache struct{ gets, sets int }

func (b *brokenCache) Get(context.Context, string) ([]byte, error) {
	b.gets++
	return nil, errors.New("connection refused")
}

func (b *brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	b.sets++
	return errors.New("connection refused")
}

func (b *brokenCache) Delete(context.Context, string) error { return nil }
func (b *brokenCache) Close() error                         { return nil }

func TestDescribeCacheFailureFallsThrough(t *testing.T) {
	bc := &brokenCache{}
	cat, _ := salesCRM(t, WithCache(bc, time.Minute))

	text, err := cat.Describe(context.Background(), "orders")
	require.NoError(t, err)
	assert.Contains(t, text, "TABLE orders")
	assert.Equal(t, 1, bc.gets)
	assert.Equal(t, 1, bc.sets)
}

func TestDescribeKeepsColumnNamesAsWritten(t *testing.T) {
	paths := map[string]string{
		"hr": testutil.SQLiteFile(t, "hr",
			`CREATE TABLE emp_master (emp_master_id INTEGER PRIMARY KEY, name TEXT)`),
	}
	cat, err := New([]VirtualTable{{Name: "staff", Alias: "hr", Physical: "emp_master"}}, nil, openRegistry(t, paths))
	require.NoError(t, err)

	text, err := cat.Describe(context.Background(), "staff")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "TABLE staff"))
	assert.NotContains(t, text, "TABLE emp_master")
	assert.Contains(t, text, "emp_master_id", "columns are queried by their physical names")
}

// Physical names all start with "zq"; no other generated text contains it.
func TestProperty_DescribeNeverLeaksPhysicalNames(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("schema text only names virtual tables", prop.ForAll(
		func(n int, mapped []bool, targets []int, indexed []bool) bool {
			stmts := make([]string, 0, 2*n)
			for i := 0; i < n; i++ {
				fk := ""
				if target := targets[i] % n; target != i {
					fk = fmt.Sprintf(", ref_id INTEGER REFERENCES zq%d_t(id)", target)
				}
				stmts = append(stmts, fmt.Sprintf(
					"CREATE TABLE zq%d_t (id INTEGER PRIMARY KEY, label TEXT DEFAULT 'x'%s)", i, fk))
				if indexed[i] {
					stmts = append(stmts, fmt.Sprintf("CREATE INDEX zq%d_t_label ON zq%d_t (label)", i, i))
				}
			}
			path := testutil.SQLiteFile(t, "prop", stmts...)

			// Table 0 is always mapped so there is something to describe
			var tables []VirtualTable
			for i := 0; i < n; i++ {
				if i == 0 || mapped[i] {
					tables = append(tables, VirtualTable{
						Name: fmt.Sprintf("vt%d", i), Alias: "main", Physical: fmt.Sprintf("zq%d_t", i),
					})
				}
			}

			reg, err := db.OpenRegistry(context.Background(), map[string]db.Backend{
				"main": {Kind: db.KindSQLite, DSN: path},
			})
			if err != nil {
				return false
			}
			defer reg.Close()

			cat, err := New(tables, nil, reg)
			if err != nil {
				return false
			}
			text, err := cat.Schema(context.Background())
			if err != nil {
				return false
			}
			return !strings.Contains(text, "zq")
		},
		gen.IntRange(1, 4),
		gen.SliceOfN(4, gen.Bool()),
		gen.SliceOfN(4, gen.IntRange(0, 3)),
		gen.SliceOfN(4, gen.Bool()),
	))

	properties.TestingRun(t)
}

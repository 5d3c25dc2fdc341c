//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"slices"
	"testing"

	"github.com/tordrt/fedquery/internal/catalog"
	"github.com/tordrt/fedquery/internal/db"
	"github.com/tordrt/fedquery/internal/federation"
	"github.com/tordrt/fedquery/internal/schema"
	"github.com/tordrt/fedquery/internal/testutil"
)

// envOrDefault returns the environment value for key, or def when unset.
func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// openBackend opens an adapter for url and closes it when the test ends.
func openBackend(t *testing.T, url string) db.Adapter {
	t.Helper()

	b, err := db.ParseURL(url)
	if err != nil {
		t.Fatalf("Invalid backend URL: %v", err)
	}
	a, err := db.Open(context.Background(), b)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", b.Kind, err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// seed runs statements in order, failing the test on the first error.
func seed(t *testing.T, a db.Adapter, statements ...string) {
	t.Helper()

	for _, stmt := range statements {
		if err := a.Exec(context.Background(), stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
}

// ordersFixture registers a SQLite orders database next to the backend
// holding fq_customers and returns a router over both.
func ordersFixture(t *testing.T, alias string, customers db.Adapter) *federation.Router {
	t.Helper()
	ctx := context.Background()

	sales, err := db.Open(ctx, db.Backend{Kind: db.KindSQLite, DSN: testutil.SQLiteFile(t, "sales", testutil.SalesStatements...)})
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { _ = sales.Close() })

	reg := db.NewRegistry()
	if err := reg.Register("sales", sales); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(alias, customers); err != nil {
		t.Fatal(err)
	}

	cat, err := catalog.New([]catalog.VirtualTable{
		{Name: "orders", Alias: "sales", Physical: "sales_orders"},
		{Name: "customers", Alias: alias, Physical: "fq_customers"},
	}, []catalog.Relationship{
		{FromTable: "orders", FromColumn: "customer_id", ToTable: "customers", ToColumn: "id"},
	}, reg)
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}

	return federation.NewRouter(cat, reg, federation.NewJoinExecutor(reg))
}

// collect drains a stream.
func collect(t *testing.T, stream db.RowStream, err error) []db.Row {
	t.Helper()

	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	rows, err := db.Collect(stream)
	if err != nil {
		t.Fatalf("Reading rows failed: %v", err)
	}
	return rows
}

// verifyColumns checks that expected columns exist in a table
func verifyColumns(t *testing.T, table *schema.Table, expectedColumns []string) {
	t.Helper()

	names := table.ColumnNames()
	for _, colName := range expectedColumns {
		if !slices.Contains(names, colName) {
			t.Errorf("Expected column %s not found in %s table", colName, table.Name)
		}
	}
}

// verifyPrimaryKey checks that a table has the expected primary key
func verifyPrimaryKey(t *testing.T, table *schema.Table, expectedPK []string) {
	t.Helper()

	if !slices.Equal(table.PrimaryKey, expectedPK) {
		t.Errorf("Expected primary key %v, got %v", expectedPK, table.PrimaryKey)
	}
}

// verifyForeignKey checks that a foreign key relationship exists
func verifyForeignKey(t *testing.T, table *schema.Table, sourceColumn, targetTable string) {
	t.Helper()

	for _, rel := range table.Relations {
		if rel.TargetTable == targetTable && rel.SourceColumn == sourceColumn {
			return
		}
	}
	t.Errorf("Expected foreign key relationship from %s.%s to %s not found", table.Name, sourceColumn, targetTable)
}

// verifyUniqueConstraint checks that a column has a unique constraint
func verifyUniqueConstraint(t *testing.T, table *schema.Table, columnName string) {
	t.Helper()

	for _, col := range table.Columns {
		if col.Name == columnName {
			if !col.IsUnique {
				t.Errorf("Expected %s column to have unique constraint", columnName)
			}
			return
		}
	}
	t.Errorf("Column %s not found in table %s", columnName, table.Name)
}

// verifyCrossJoin runs a join between SQLite orders and the backend's
// customers and checks the per-customer totals.
func verifyCrossJoin(t *testing.T, router *federation.Router) {
	t.Helper()

	decision, err := router.Plan("SELECT c.name FROM orders o JOIN customers c ON o.customer_id = c.id")
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if decision.Mode != federation.CrossBackend {
		t.Fatalf("Expected a cross-backend plan, got %s", decision.Mode)
	}

	stream, err := router.Execute(context.Background(), `SELECT c.name, count(*) AS n
		FROM orders o JOIN customers c ON o.customer_id = c.id
		GROUP BY c.name ORDER BY c.name`)
	rows := collect(t, stream, err)

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].Values[0] != "Acme" || rows[0].Values[1] != int64(2) {
		t.Errorf("Unexpected first row %v", rows[0].Values)
	}
	if rows[1].Values[0] != "Globex" || rows[1].Values[1] != int64(1) {
		t.Errorf("Unexpected second row %v", rows[1].Values)
	}
}

package federation

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tordrt/fedquery/internal/catalog"
	"github.com/tordrt/fedquery/internal/db"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
	"github.com/tordrt/fedquery/internal/testutil"
)

type fixture struct {
	registry *db.Registry
	catalog  *catalog.Catalog
}

func newFixture(t *testing.T, crmStatements ...string) *fixture {
	t.Helper()
	if len(crmStatements) == 0 {
		crmStatements = testutil.CRMStatements
	}

	ctx := context.Background()
	reg, err := db.OpenRegistry(ctx, map[string]db.Backend{
		"hr":    {Kind: db.KindSQLite, DSN: testutil.SQLiteFile(t, "hr", testutil.HRStatements...)},
		"sales": {Kind: db.KindSQLite, DSN: testutil.SQLiteFile(t, "sales", testutil.SalesStatements...)},
		"crm":   {Kind: db.KindSQLite, DSN: testutil.SQLiteFile(t, "crm", crmStatements...)},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	cat, err := catalog.New([]catalog.VirtualTable{
		{Name: "employees", Alias: "hr", Physical: "employees"},
		{Name: "orders", Alias: "sales", Physical: "sales_orders"},
		{Name: "customers", Alias: "crm", Physical: "crm_customers"},
	}, nil, reg)
	require.NoError(t, err)

	return &fixture{registry: reg, catalog: cat}
}

func (f *fixture) router(opts ...JoinOption) *Router {
	return NewRouter(f.catalog, f.registry, NewJoinExecutor(f.registry, opts...))
}

func values(t *testing.T, rows []db.Row) [][]any {
	t.Helper()
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	r := f.router()

	d, err := r.Plan("SELECT o.total FROM orders o WHERE o.status = 'open'")
	require.NoError(t, err)
	assert.Equal(t, SingleBackend, d.Mode)
	assert.Equal(t, []string{"sales"}, d.RequiredAliases)
	assert.Equal(t, "SELECT o.total FROM sales_orders o WHERE o.status = 'open'", d.SQL)

	d, err = r.Plan("SELECT c.name FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.NoError(t, err)
	assert.Equal(t, CrossBackend, d.Mode)
	assert.Equal(t, []string{"crm", "sales"}, d.RequiredAliases)
	assert.Equal(t, "SELECT c.name FROM orders o JOIN customers c ON o.customer_id = c.id", d.SQL)
	assert.Equal(t, "crm_customers", d.Tables["customers"].Physical)
}

func TestPlanErrors(t *testing.T) {
	r := newFixture(t).router()

	tests := []struct {
		name string
		sql  string
		want error
	}{
		{name: "unknown table", sql: "SELECT * FROM invoices", want: fqerrors.ErrUnknownVirtualTable},
		{name: "case-sensitive", sql: "SELECT * FROM Orders", want: fqerrors.ErrUnknownVirtualTable},
		{name: "no tables", sql: "SELECT 1", want: fqerrors.ErrQueryParse},
		{name: "unparsable", sql: "SELECT FROM WHERE", want: fqerrors.ErrQueryParse},
		{name: "write statement", sql: "DELETE FROM orders", want: fqerrors.ErrQueryParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Plan(tt.sql)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSingleBackendMatchesDirectQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const query = "SELECT name, role FROM employees WHERE role = 'Engineer' ORDER BY name"

	stream, err := f.router().Execute(ctx, query)
	require.NoError(t, err)
	routed, err := db.Collect(stream)
	require.NoError(t, err)

	hr, err := f.registry.Get("hr")
	require.NoError(t, err)
	direct, err := hr.Query(ctx, query)
	require.NoError(t, err)
	want, err := db.Collect(direct)
	require.NoError(t, err)

	assert.Equal(t, want, routed)
	assert.Equal(t, [][]any{{"Bob", "Engineer"}, {"Carol", "Engineer"}}, values(t, routed))
}

func TestSingleBackendRenamedTable(t *testing.T) {
	stream, err := newFixture(t).router().Execute(context.Background(),
		"SELECT orders.order_id FROM orders WHERE orders.status = 'shipped' ORDER BY orders.order_id")
	require.NoError(t, err)

	rows, err := db.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(101)}, {int64(102)}}, values(t, rows))
}

func TestSingleBackendExecutionError(t *testing.T) {
	_, err := newFixture(t).router().Execute(context.Background(), "SELECT salary FROM employees")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such column")
}

// spyJoiner records join calls without executing them.
type spyJoiner struct {
	calls  int
	tables map[string]catalog.VirtualTable
}

func (s *spyJoiner) ExecuteJoin(_ context.Context, _ string, tables map[string]catalog.VirtualTable) (db.RowStream, error) {
	s.calls++
	s.tables = tables
	return db.NewMemoryStream(nil, nil, nil), nil
}

// countingSource counts adapter lookups.
type countingSource struct {
	mu     sync.Mutex
	inner  AdapterSource
	lookup map[string]int
}

func (c *countingSource) Get(alias string) (db.Adapter, error) {
	c.mu.Lock()
	c.lookup[alias]++
	c.mu.Unlock()
	return c.inner.Get(alias)
}

func TestCrossBackendUsesJoiner(t *testing.T) {
	f := newFixture(t)
	spy := &spyJoiner{}
	src := &countingSource{inner: f.registry, lookup: map[string]int{}}
	r := NewRouter(f.catalog, src, spy)

	stream, err := r.Execute(context.Background(), "SELECT * FROM orders JOIN customers ON orders.customer_id = customers.id")
	require.NoError(t, err)
	_ = stream.Close()

	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, catalog.VirtualTable{Name: "orders", Alias: "sales", Physical: "sales_orders"}, spy.tables["orders"])
	assert.Equal(t, catalog.VirtualTable{Name: "customers", Alias: "crm", Physical: "crm_customers"}, spy.tables["customers"])
	assert.Empty(t, src.lookup, "single-backend path never touched an adapter")
}

func TestCrossBackendJoin(t *testing.T) {
	stream, err := newFixture(t).router().Execute(context.Background(), `
		SELECT c.name, SUM(o.total) AS spent
		FROM orders o JOIN customers c ON o.customer_id = c.id
		GROUP BY c.name
		ORDER BY c.name`)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "spent"}, stream.Columns())
	rows, err := db.Collect(stream)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme", rows[0].Values[0])
	assert.InDelta(t, 125.49, rows[0].Values[1], 1e-9)
	assert.Equal(t, "Globex", rows[1].Values[0])
	assert.InDelta(t, 10.0, rows[1].Values[1], 1e-9)
}

func TestCrossBackendThreeDatabases(t *testing.T) {
	stream, err := newFixture(t).router().Execute(context.Background(), `
		SELECT count(*) AS n FROM orders, customers, employees
		WHERE orders.customer_id = customers.id AND employees.id = customers.id`)
	require.NoError(t, err)

	rows, err := db.Collect(stream)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(3)}}, values(t, rows))
}

// trackStaging swaps in a staging opener that records every store.
func trackStaging(t *testing.T) *[]*sql.DB {
	t.Helper()
	var stores []*sql.DB
	orig := openStagingStore
	openStagingStore = func() (*sql.DB, error) {
		s, err := orig()
		if err == nil {
			stores = append(stores, s)
		}
		return s, err
	}
	t.Cleanup(func() { openStagingStore = orig })
	return &stores
}

func assertClosed(t *testing.T, store *sql.DB) {
	t.Helper()
	assert.ErrorContains(t, store.Ping(), "database is closed")
}

func TestJoinTeardown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stores := trackStaging(t)
	join := "SELECT o.order_id FROM orders o JOIN customers c ON o.customer_id = c.id ORDER BY o.order_id"

	t.Run("exhaustion", func(t *testing.T) {
		stream, err := f.router().Execute(ctx, join)
		require.NoError(t, err)
		for stream.Next() {
		}
		assertClosed(t, (*stores)[len(*stores)-1])
	})

	t.Run("early close", func(t *testing.T) {
		stream, err := f.router().Execute(ctx, join)
		require.NoError(t, err)
		require.True(t, stream.Next())
		require.NoError(t, stream.Close())
		require.NoError(t, stream.Close())
		assertClosed(t, (*stores)[len(*stores)-1])
	})

	t.Run("staged query failure", func(t *testing.T) {
		_, err := f.router().Execute(ctx, "SELECT o.nope FROM orders o JOIN customers c ON o.customer_id = c.id")
		assert.ErrorIs(t, err, fqerrors.ErrStagingStore)
		assertClosed(t, (*stores)[len(*stores)-1])
	})

	t.Run("fetch failure", func(t *testing.T) {
		tables := map[string]catalog.VirtualTable{
			"customers": {Name: "customers", Alias: "crm", Physical: "crm_customers"},
			"orders":    {Name: "orders", Alias: "warehouse", Physical: "orders"},
		}
		_, err := NewJoinExecutor(f.registry).ExecuteJoin(ctx, "SELECT 1", tables)
		require.ErrorIs(t, err, fqerrors.ErrCrossDatabaseExecution)
		assert.ErrorIs(t, err, fqerrors.ErrUnknownAlias)

		var fe *fqerrors.Error
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, "warehouse", fe.Alias)
		assertClosed(t, (*stores)[len(*stores)-1])
	})
}

func TestJoinSkipsEmptyTables(t *testing.T) {
	f := newFixture(t, `CREATE TABLE crm_customers (id INTEGER PRIMARY KEY, name TEXT)`)

	var logs bytes.Buffer
	r := f.router(WithJoinLogger(zerolog.New(&logs)))

	_, err := r.Execute(context.Background(), "SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.ErrorIs(t, err, fqerrors.ErrStagingStore)
	assert.Contains(t, err.Error(), "no such table: customers")
	assert.Contains(t, logs.String(), "Skipping empty table")
	assert.Contains(t, logs.String(), `"table":"customers"`)
}

func TestJoinFetchLimit(t *testing.T) {
	f := newFixture(t)

	var logs bytes.Buffer
	r := f.router(WithFetchLimit(2), WithJoinLogger(zerolog.New(&logs)))

	stream, err := r.Execute(context.Background(),
		"SELECT count(*) FROM orders, customers WHERE orders.customer_id = customers.id")
	require.NoError(t, err)
	rows, err := db.Collect(stream)
	require.NoError(t, err)

	assert.Equal(t, [][]any{{int64(2)}}, values(t, rows), "only two orders were staged")
	assert.Contains(t, logs.String(), "Fetch limit reached")
	assert.Contains(t, logs.String(), "staging_id")
}

type valuer struct{ v string }

func (v valuer) Value() (driver.Value, error) { return v.v, nil }

func numeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	require.NoError(t, n.Scan(s))
	return n
}

func TestStageValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name     string
		in       any
		affinity string
		want     any
	}{
		{name: "nil", in: nil, want: nil},
		{name: "int32", in: int32(7), want: int64(7)},
		{name: "uint16", in: uint16(9), want: int64(9)},
		{name: "float32", in: float32(1.5), want: float64(1.5)},
		{name: "time", in: ts, want: ts},
		{name: "bool", in: true, want: true},
		{name: "raw uuid", in: [16]byte(id), want: id.String()},
		{name: "valuer", in: valuer{"42.10"}, want: "42.10"},
		{name: "valuer into real column", in: valuer{"42.10"}, affinity: affinityReal, want: 42.1},
		{name: "decimal text", in: "5.00", affinity: affinityReal, want: 5.0},
		{name: "integer text", in: "12", affinity: affinityInteger, want: int64(12)},
		{name: "non-numeric text stays", in: "n/a", affinity: affinityReal, want: "n/a"},
		{name: "numeric", in: numeric(t, "42.10"), affinity: affinityReal, want: 42.1},
		{name: "null numeric", in: pgtype.Numeric{}, affinity: affinityReal, want: nil},
		{name: "json object", in: map[string]any{"a": 1}, want: `{"a":1}`},
		{name: "fallback", in: struct{ X int }{3}, want: "{3}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stageValue(tt.in, tt.affinity))
		})
	}
}

func TestColumnAffinity(t *testing.T) {
	tests := []struct {
		declared string
		sample   any
		want     string
	}{
		{declared: "NUMERIC", want: affinityReal},
		{declared: "DECIMAL(10,2)", want: affinityReal},
		{declared: "FLOAT8", want: affinityReal},
		{declared: "INT4", want: affinityInteger},
		{declared: "UNSIGNED BIGINT", want: affinityInteger},
		{declared: "BOOL", want: affinityInteger},
		{declared: "VARCHAR", want: affinityText},
		{declared: "TIMESTAMPTZ", want: affinityText},
		{declared: "INTERVAL", want: affinityText},
		{declared: "UUID", want: affinityText},
		{declared: "BYTEA", want: affinityBlob},
		{declared: "", sample: int64(1), want: affinityInteger},
		{declared: "", sample: pgtype.Numeric{}, want: affinityReal},
		{declared: "", sample: "x", want: affinityText},
		{declared: "", sample: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, columnAffinity(tt.declared, tt.sample))
		})
	}
}

// decimalAdapter serves fixed rows the way pgx returns NUMERIC columns.
type decimalAdapter struct {
	db.Adapter
	columns []string
	rows    [][]any
}

func (a *decimalAdapter) Query(context.Context, string) (db.RowStream, error) {
	return db.NewMemoryStream(a.columns, a.rows, nil), nil
}

type adapterMap map[string]db.Adapter

func (m adapterMap) Get(alias string) (db.Adapter, error) {
	a, ok := m[alias]
	if !ok {
		return nil, fqerrors.UnknownAlias(alias, nil)
	}
	return a, nil
}

func TestJoinComparesDecimalsNumerically(t *testing.T) {
	f := newFixture(t)
	crm, err := f.registry.Get("crm")
	require.NoError(t, err)

	source := adapterMap{
		"crm": crm,
		"billing": &decimalAdapter{
			columns: []string{"id", "customer_id", "total"},
			rows: [][]any{
				{int32(1), int32(1), numeric(t, "42.10")},
				{int32(2), int32(2), numeric(t, "5.00")},
			},
		},
	}
	tables := map[string]catalog.VirtualTable{
		"invoices":  {Name: "invoices", Alias: "billing", Physical: "invoices"},
		"customers": {Name: "customers", Alias: "crm", Physical: "crm_customers"},
	}
	join := NewJoinExecutor(source)
	ctx := context.Background()

	tests := []struct {
		threshold string
		want      [][]any
	}{
		{threshold: "100", want: nil},
		{threshold: "10", want: [][]any{{"Acme", 42.1}}},
		{threshold: "4.99", want: [][]any{{"Acme", 42.1}, {"Globex", 5.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.threshold, func(t *testing.T) {
			stream, err := join.ExecuteJoin(ctx,
				"SELECT c.name, i.total FROM invoices i JOIN customers c ON i.customer_id = c.id WHERE i.total > "+tt.threshold+" ORDER BY c.name",
				tables)
			require.NoError(t, err)
			rows, err := db.Collect(stream)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, rows)
				return
			}
			assert.Equal(t, tt.want, values(t, rows))
		})
	}
}

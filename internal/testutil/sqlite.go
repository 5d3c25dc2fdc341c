// Package testutil builds throwaway SQLite databases for package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteFile creates a database file under t.TempDir, runs the statements
// in order and returns the file path.
func SQLiteFile(t *testing.T, name string, statements ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer db.Close()

	ctx := context.Background()
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("Failed to execute %q: %v", stmt, err)
		}
	}
	return path
}

// HRStatements seed an employees table.
var HRStatements = []string{
	`CREATE TABLE employees (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		email TEXT UNIQUE
	)`,
	`INSERT INTO employees (id, name, role, email) VALUES
		(1, 'Alice', 'Manager', 'alice@example.com'),
		(2, 'Bob', 'Engineer', 'bob@example.com'),
		(3, 'Carol', 'Engineer', 'carol@example.com')`,
}

// SalesStatements seed an orders table whose physical name differs from the
// virtual name used in federation tests.
var SalesStatements = []string{
	`CREATE TABLE sales_orders (
		order_id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL,
		total REAL NOT NULL,
		status TEXT DEFAULT 'open'
	)`,
	`CREATE INDEX idx_sales_orders_customer ON sales_orders (customer_id)`,
	`INSERT INTO sales_orders (order_id, customer_id, total, status) VALUES
		(100, 1, 25.5, 'open'),
		(101, 2, 10.0, 'shipped'),
		(102, 1, 99.99, 'shipped')`,
}

// CRMStatements seed a customers table.
var CRMStatements = []string{
	`CREATE TABLE crm_customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		segment TEXT
	)`,
	`INSERT INTO crm_customers (id, name, segment) VALUES
		(1, 'Acme', 'enterprise'),
		(2, 'Globex', 'smb')`,
}

// Package demo seeds a small set of SQLite databases that exercise the
// virtual schema: customers and reviews in crm, the product catalog in
// inventory, orders with their items and payments in sales. Foreign keys only
// exist inside a database; references across databases are plain columns.
package demo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tordrt/fedquery/internal/db"
)

// Database is one seeded SQLite file.
type Database struct {
	Alias      string
	Statements []string
}

// File returns the database file name.
func (d Database) File() string { return d.Alias + ".db" }

// Databases lists the demo databases in seeding order.
var Databases = []Database{
	{Alias: "crm", Statements: crmStatements},
	{Alias: "inventory", Statements: inventoryStatements},
	{Alias: "sales", Statements: salesStatements},
}

var crmStatements = []string{
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		name TEXT,
		email TEXT,
		country TEXT,
		signup_date DATE
	)`,
	`CREATE TABLE reviews (
		id INTEGER PRIMARY KEY,
		product_id INTEGER,
		customer_id INTEGER,
		rating INTEGER CHECK(rating >= 1 AND rating <= 5),
		review_text TEXT,
		review_date DATE,
		FOREIGN KEY(customer_id) REFERENCES customers(id)
	)`,
	`INSERT INTO customers VALUES
		(1, 'Alice Smith', 'alice@example.com', 'USA', '2023-01-15'),
		(2, 'Bob Jones', 'bob@example.com', 'UK', '2023-02-20'),
		(3, 'Charlie Brown', 'charlie@example.com', 'Canada', '2023-03-05'),
		(4, 'Diana Prince', 'diana@example.com', 'USA', '2023-04-10'),
		(5, 'Eve Wilson', 'eve@example.com', 'Australia', '2023-05-12'),
		(6, 'Frank Miller', 'frank@example.com', 'Germany', '2023-06-18'),
		(7, 'Grace Lee', 'grace@example.com', 'USA', '2023-07-22'),
		(8, 'Hank Green', 'hank@example.com', 'UK', '2023-08-30')`,
	`INSERT INTO reviews VALUES
		(1, 101, 1, 5, 'Great laptop, fast and reliable!', '2024-01-15'),
		(2, 102, 1, 4, 'Good mouse, but battery life could be better.', '2024-01-16'),
		(3, 103, 2, 3, 'Chair is okay, but not very comfortable.', '2024-01-18'),
		(4, 105, 4, 5, 'Love the mugs, perfect for coffee!', '2024-01-25')`,
}

var inventoryStatements = []string{
	`CREATE TABLE suppliers (
		id INTEGER PRIMARY KEY,
		name TEXT,
		contact_email TEXT,
		country TEXT
	)`,
	`CREATE TABLE categories (
		id INTEGER PRIMARY KEY,
		name TEXT,
		description TEXT
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		product_name TEXT,
		category_id INTEGER,
		supplier_id INTEGER,
		price DECIMAL(10, 2),
		stock_quantity INTEGER,
		FOREIGN KEY(category_id) REFERENCES categories(id),
		FOREIGN KEY(supplier_id) REFERENCES suppliers(id)
	)`,
	`INSERT INTO suppliers VALUES
		(1, 'TechCorp', 'contact@techcorp.com', 'USA'),
		(2, 'FurniWorld', 'info@furniworld.com', 'Canada'),
		(3, 'AccessoryHub', 'sales@accessoryhub.com', 'UK')`,
	`INSERT INTO categories VALUES
		(1, 'Electronics', 'Electronic devices and gadgets'),
		(2, 'Furniture', 'Office and home furniture'),
		(3, 'Accessories', 'Various accessories')`,
	`INSERT INTO products VALUES
		(101, 'Laptop Pro', 1, 1, 1200.00, 50),
		(102, 'Wireless Mouse', 1, 1, 25.00, 200),
		(103, 'Office Chair', 2, 2, 150.00, 30),
		(104, 'Standing Desk', 2, 2, 450.00, 20),
		(105, 'Coffee Mug', 3, 3, 12.50, 500),
		(106, 'Bluetooth Headphones', 1, 1, 80.00, 100),
		(107, 'Notebook Set', 3, 3, 15.00, 300),
		(108, 'Ergonomic Keyboard', 1, 1, 60.00, 150)`,
}

var salesStatements = []string{
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER,
		order_date DATE,
		total_amount DECIMAL(10, 2),
		status TEXT DEFAULT 'pending'
	)`,
	`CREATE TABLE order_items (
		id INTEGER PRIMARY KEY,
		order_id INTEGER,
		product_id INTEGER,
		quantity INTEGER,
		unit_price DECIMAL(10, 2),
		FOREIGN KEY(order_id) REFERENCES orders(id)
	)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		order_id INTEGER,
		payment_method TEXT,
		payment_date DATE,
		amount DECIMAL(10, 2),
		FOREIGN KEY(order_id) REFERENCES orders(id)
	)`,
	`INSERT INTO orders VALUES
		(1001, 1, '2024-01-10', 1250.00, 'completed'),
		(1002, 2, '2024-01-12', 150.00, 'completed'),
		(1003, 3, '2024-01-15', 1200.00, 'completed'),
		(1004, 4, '2024-01-20', 50.00, 'completed'),
		(1005, 5, '2024-02-01', 95.00, 'pending')`,
	`INSERT INTO order_items VALUES
		(1, 1001, 101, 1, 1200.00),
		(2, 1001, 102, 2, 25.00),
		(3, 1002, 103, 1, 150.00),
		(4, 1003, 101, 1, 1200.00),
		(5, 1004, 105, 4, 12.50),
		(6, 1005, 106, 1, 80.00),
		(7, 1005, 107, 1, 15.00)`,
	`INSERT INTO payments VALUES
		(1, 1001, 'Credit Card', '2024-01-10', 1250.00),
		(2, 1002, 'PayPal', '2024-01-12', 150.00),
		(3, 1003, 'Bank Transfer', '2024-01-15', 1200.00),
		(4, 1004, 'Credit Card', '2024-01-20', 50.00)`,
}

// ErrExists is returned when a database file is already present and
// overwriting was not requested.
var ErrExists = errors.New("database file already exists")

// Seed writes every demo database into dir and returns the file paths by
// alias. Existing files are replaced only when overwrite is set.
func Seed(ctx context.Context, dir string, overwrite bool) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	paths := make(map[string]string, len(Databases))
	for _, d := range Databases {
		path := filepath.Join(dir, d.File())
		if _, err := os.Stat(path); err == nil {
			if !overwrite {
				return nil, fmt.Errorf("%s: %w", path, ErrExists)
			}
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}

		if err := seedOne(ctx, path, d.Statements); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", d.Alias, err)
		}
		paths[d.Alias] = path
	}
	return paths, nil
}

func seedOne(ctx context.Context, path string, statements []string) error {
	a, err := db.NewSQLiteAdapter(ctx, path)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, stmt := range statements {
		if err := a.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// VirtualTables maps each demo table to a virtual table of the same name.
// Pairs are virtual name and alias.table source.
var VirtualTables = [][2]string{
	{"customers", "crm.customers"},
	{"reviews", "crm.reviews"},
	{"suppliers", "inventory.suppliers"},
	{"categories", "inventory.categories"},
	{"products", "inventory.products"},
	{"orders", "sales.orders"},
	{"order_items", "sales.order_items"},
	{"payments", "sales.payments"},
}

// Relationships are the references that cross database boundaries.
var Relationships = [][2]string{
	{"orders.customer_id", "customers.id"},
	{"order_items.product_id", "products.id"},
	{"reviews.product_id", "products.id"},
}

// Config renders a configuration file that serves the databases seeded in
// dir with the offline oracle and embedder.
func Config(dir string) string {
	var b strings.Builder
	b.WriteString("backends:\n")
	for _, d := range Databases {
		fmt.Fprintf(&b, "  %s: {url: \"sqlite://%s\"}\n", d.Alias, filepath.ToSlash(filepath.Join(dir, d.File())))
	}
	b.WriteString("\nvirtual_tables:\n")
	for _, vt := range VirtualTables {
		fmt.Fprintf(&b, "  - {name: %s, source: %s}\n", vt[0], vt[1])
	}
	b.WriteString("\nrelationships:\n")
	for _, r := range Relationships {
		fmt.Fprintf(&b, "  - {from: %s, to: %s}\n", r[0], r[1])
	}
	b.WriteString("\nllm: {provider: mock}\nembedding: {provider: hash, dimension: 256}\n")
	return b.String()
}

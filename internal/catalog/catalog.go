// Package catalog maps virtual table names onto physical tables and renders
// leak-free schema text for them.
//
// A virtual table is described by introspecting its physical table and then
// renaming the result structurally: the table takes its virtual name, foreign
// keys pointing at other mapped tables in the same database are re-targeted
// at their virtual names, and everything else that would expose a physical
// name is dropped or renamed.
//
// Column names are never rewritten. Queries run against the physical
// columns, so a column whose name embeds the physical table name (say
// emp_master_id on emp_master) appears in schema text as written.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tordrt/fedquery/internal/cache"
	"github.com/tordrt/fedquery/internal/config"
	"github.com/tordrt/fedquery/internal/db"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
	"github.com/tordrt/fedquery/internal/formatter"
	"github.com/tordrt/fedquery/internal/schema"
)

// VirtualTable is a logical table name bound to one physical table.
type VirtualTable struct {
	Name     string
	Alias    string
	Physical string
}

// Relationship is a declared join between two virtual tables.
type Relationship struct {
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

// String renders the relationship as a foreign key clause.
func (r Relationship) String() string {
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)", r.FromColumn, r.ToTable, r.ToColumn)
}

// AdapterSource looks up the adapter for an alias.
type AdapterSource interface {
	Get(alias string) (db.Adapter, error)
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	tables        []VirtualTable
	byName        map[string]VirtualTable
	relationships []Relationship
	adapters      AdapterSource
	cache         cache.Client
	cacheTTL      time.Duration
	logger        zerolog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache stores physical table descriptions in c for ttl.
func WithCache(c cache.Client, ttl time.Duration) Option {
	return func(cat *Catalog) {
		cat.cache = c
		cat.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(cat *Catalog) {
		cat.logger = l.With().Str("component", "catalog").Logger()
	}
}

// New builds a catalog. Virtual names must be unique and every relationship
// must reference known virtual tables.
func New(tables []VirtualTable, relationships []Relationship, adapters AdapterSource, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		tables:        append([]VirtualTable(nil), tables...),
		byName:        make(map[string]VirtualTable, len(tables)),
		relationships: append([]Relationship(nil), relationships...),
		adapters:      adapters,
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, vt := range c.tables {
		if vt.Name == "" || vt.Alias == "" || vt.Physical == "" {
			return nil, fmt.Errorf("incomplete virtual table %+v", vt)
		}
		if _, dup := c.byName[vt.Name]; dup {
			return nil, fmt.Errorf("duplicate virtual table %q", vt.Name)
		}
		c.byName[vt.Name] = vt
	}
	for _, rel := range c.relationships {
		for _, name := range []string{rel.FromTable, rel.ToTable} {
			if _, ok := c.byName[name]; !ok {
				return nil, fmt.Errorf("relationship %s.%s -> %s.%s: %w",
					rel.FromTable, rel.FromColumn, rel.ToTable, rel.ToColumn, fqerrors.UnknownVirtualTable(name))
			}
		}
	}
	return c, nil
}

// FromConfig builds a catalog from the virtual_tables and relationships
// configuration sections.
func FromConfig(cfg *config.Config, adapters AdapterSource, opts ...Option) (*Catalog, error) {
	tables := make([]VirtualTable, 0, len(cfg.VirtualTables))
	for _, vtc := range cfg.VirtualTables {
		alias, physical, err := config.SplitSource(vtc.Source)
		if err != nil {
			return nil, fmt.Errorf("virtual table %q: %w", vtc.Name, err)
		}
		tables = append(tables, VirtualTable{Name: vtc.Name, Alias: alias, Physical: physical})
	}

	relationships := make([]Relationship, 0, len(cfg.Relationships))
	for _, rc := range cfg.Relationships {
		fromTable, fromCol, err := config.SplitColumnRef(rc.From)
		if err != nil {
			return nil, err
		}
		toTable, toCol, err := config.SplitColumnRef(rc.To)
		if err != nil {
			return nil, err
		}
		relationships = append(relationships, Relationship{
			FromTable: fromTable, FromColumn: fromCol,
			ToTable: toTable, ToColumn: toCol,
		})
	}

	return New(tables, relationships, adapters, opts...)
}

// Tables returns the virtual table names in configuration order.
func (c *Catalog) Tables() []string {
	names := make([]string, len(c.tables))
	for i, vt := range c.tables {
		names[i] = vt.Name
	}
	return names
}

// VirtualTables returns all mappings in configuration order.
func (c *Catalog) VirtualTables() []VirtualTable {
	return append([]VirtualTable(nil), c.tables...)
}

// Resolve looks up a virtual table by exact name.
func (c *Catalog) Resolve(name string) (VirtualTable, error) {
	vt, ok := c.byName[name]
	if !ok {
		return VirtualTable{}, fqerrors.UnknownVirtualTable(name)
	}
	return vt, nil
}

// Relationships returns the configured relationships.
func (c *Catalog) Relationships() []Relationship {
	return append([]Relationship(nil), c.relationships...)
}

// Describe renders the schema text of one virtual table.
func (c *Catalog) Describe(ctx context.Context, name string) (string, error) {
	doc, err := c.Document(ctx, name)
	if err != nil {
		return "", err
	}
	return formatter.TableText(doc), nil
}

// Document returns the virtualized table description with its owner alias
// and configured relationships.
func (c *Catalog) Document(ctx context.Context, name string) (formatter.TableDoc, error) {
	vt, err := c.Resolve(name)
	if err != nil {
		return formatter.TableDoc{}, err
	}

	physical, err := c.describePhysical(ctx, vt)
	if err != nil {
		return formatter.TableDoc{}, err
	}

	var rels []string
	for _, rel := range c.relationships {
		if rel.FromTable == name {
			rels = append(rels, rel.String())
		}
	}

	return formatter.TableDoc{
		Table:         c.virtualize(vt, physical),
		Database:      vt.Alias,
		Relationships: rels,
	}, nil
}

// Documents describes every virtual table in configuration order.
func (c *Catalog) Documents(ctx context.Context) ([]formatter.TableDoc, error) {
	docs := make([]formatter.TableDoc, 0, len(c.tables))
	for _, vt := range c.tables {
		doc, err := c.Document(ctx, vt.Name)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", vt.Name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Schema renders every virtual table, separated by blank lines.
func (c *Catalog) Schema(ctx context.Context) (string, error) {
	docs, err := c.Documents(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = formatter.TableText(doc)
	}
	return strings.Join(parts, "\n\n"), nil
}

func (c *Catalog) describePhysical(ctx context.Context, vt VirtualTable) (*schema.Table, error) {
	key := cache.Key("describe", vt.Alias, vt.Physical)

	if c.cache != nil {
		data, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			var t schema.Table
			if err := json.Unmarshal(data, &t); err == nil {
				return &t, nil
			}
			c.logger.Warn().Str("key", key).Msg("Discarding undecodable cache entry")
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", key).Msg("Describe cache read failed")
		}
	}

	adapter, err := c.adapters.Get(vt.Alias)
	if err != nil {
		return nil, err
	}
	t, err := adapter.DescribeTable(ctx, vt.Physical)
	if err != nil {
		return nil, fmt.Errorf("describe %s.%s: %w", vt.Alias, vt.Physical, err)
	}

	if c.cache != nil {
		data, err := json.Marshal(t)
		if err == nil {
			err = c.cache.Set(ctx, key, data, c.cacheTTL)
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Describe cache write failed")
		}
	}
	return t, nil
}

// virtualize returns a copy of physical that names only virtual tables.
func (c *Catalog) virtualize(vt VirtualTable, physical *schema.Table) *schema.Table {
	t := physical.Clone()
	t.Name = vt.Name

	relations := t.Relations[:0]
	for _, rel := range t.Relations {
		target, ok := c.virtualName(vt.Alias, rel.TargetTable)
		if !ok {
			continue
		}
		rel.TargetTable = target
		relations = append(relations, rel)
	}
	t.Relations = relations

	for i := range t.Indexes {
		t.Indexes[i].Name = fmt.Sprintf("%s_%s_idx", vt.Name, strings.Join(t.Indexes[i].Columns, "_"))
	}

	// Defaults can name sequences or functions tied to the physical table
	for i, col := range t.Columns {
		if col.DefaultValue != nil && strings.Contains(*col.DefaultValue, vt.Physical) {
			t.Columns[i].DefaultValue = nil
		}
	}
	return t
}

// virtualName finds the first virtual table mapped to physical in alias.
func (c *Catalog) virtualName(alias, physical string) (string, bool) {
	for _, vt := range c.tables {
		if vt.Alias == alias && vt.Physical == physical {
			return vt.Name, true
		}
	}
	return "", false
}

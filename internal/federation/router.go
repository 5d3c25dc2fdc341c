// Package federation executes SQL written against virtual tables. Queries
// touching one database are rewritten and forwarded; queries spanning
// databases are answered by staging the referenced tables in a private
// in-memory SQLite store.
package federation

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tordrt/fedquery/internal/catalog"
	"github.com/tordrt/fedquery/internal/db"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
)

// Mode says how a query is executed.
type Mode int

const (
	SingleBackend Mode = iota
	CrossBackend
)

func (m Mode) String() string {
	if m == CrossBackend {
		return "cross-backend"
	}
	return "single-backend"
}

// RoutingDecision is the outcome of planning one query.
type RoutingDecision struct {
	// RequiredAliases is the sorted set of databases the query touches.
	RequiredAliases []string
	Mode            Mode
	Tables          map[string]catalog.VirtualTable
	// SQL is the statement sent to the backend: the rewritten query for a
	// single backend, the original for a cross-backend join.
	SQL string
}

// Resolver maps virtual table names to physical locations.
type Resolver interface {
	Resolve(name string) (catalog.VirtualTable, error)
}

// AdapterSource looks up the adapter for an alias.
type AdapterSource interface {
	Get(alias string) (db.Adapter, error)
}

// Joiner answers a query whose tables live in more than one database.
type Joiner interface {
	ExecuteJoin(ctx context.Context, sql string, tables map[string]catalog.VirtualTable) (db.RowStream, error)
}

// Router dispatches queries. It never retries.
type Router struct {
	resolver Resolver
	adapters AdapterSource
	joiner   Joiner
	logger   zerolog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger.
func WithRouterLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l.With().Str("component", "router").Logger()
	}
}

// NewRouter creates a router.
func NewRouter(resolver Resolver, adapters AdapterSource, joiner Joiner, opts ...RouterOption) *Router {
	r := &Router{
		resolver: resolver,
		adapters: adapters,
		joiner:   joiner,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan parses sql and decides where it runs without executing anything.
func (r *Router) Plan(sql string) (*RoutingDecision, error) {
	pq, err := parseQuery(sql)
	if err != nil {
		return nil, fqerrors.QueryParse(sql, err)
	}
	if len(pq.Tables) == 0 {
		return nil, fqerrors.QueryParse(sql, fmt.Errorf("no tables found"))
	}

	tables := make(map[string]catalog.VirtualTable, len(pq.Tables))
	aliasSet := make(map[string]bool)
	for _, name := range pq.Tables {
		vt, err := r.resolver.Resolve(name)
		if err != nil {
			return nil, err
		}
		tables[name] = vt
		aliasSet[vt.Alias] = true
	}

	aliases := make([]string, 0, len(aliasSet))
	for a := range aliasSet {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	decision := &RoutingDecision{
		RequiredAliases: aliases,
		Tables:          tables,
		SQL:             pq.SQL,
	}
	if len(aliases) > 1 {
		decision.Mode = CrossBackend
		return decision, nil
	}

	physical := make(map[string]string, len(tables))
	for name, vt := range tables {
		physical[name] = vt.Physical
	}
	decision.SQL, err = rewriteTables(pq.SQL, physical)
	if err != nil {
		return nil, fqerrors.QueryParse(sql, err)
	}
	return decision, nil
}

// Execute plans sql and runs it. Single-backend results stream straight
// from the adapter.
func (r *Router) Execute(ctx context.Context, sql string) (db.RowStream, error) {
	decision, err := r.Plan(sql)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("mode", decision.Mode.String()).
		Strs("aliases", decision.RequiredAliases).
		Msg("Routing query")

	if decision.Mode == CrossBackend {
		return r.joiner.ExecuteJoin(ctx, decision.SQL, decision.Tables)
	}

	alias := decision.RequiredAliases[0]
	adapter, err := r.adapters.Get(alias)
	if err != nil {
		return nil, err
	}
	stream, err := adapter.Query(ctx, decision.SQL)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", alias, err)
	}
	return stream, nil
}

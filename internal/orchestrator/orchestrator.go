// Package orchestrator answers natural-language questions: it selects the
// relevant virtual tables, drafts SQL, executes it and feeds failures back
// for repair until the query succeeds or the retry budget is spent.
package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tordrt/fedquery/internal/db"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
	"github.com/tordrt/fedquery/internal/federation"
	"github.com/tordrt/fedquery/internal/oracle"
	"github.com/tordrt/fedquery/internal/selector"
)

// DefaultMaxRetries is the number of repairs after the first execution.
const DefaultMaxRetries = 2

// Selector narrows a question to relevant schema text.
type Selector interface {
	Route(ctx context.Context, question string, topK int) (*selector.Selection, error)
}

// Router executes SQL over the virtual schema.
type Router interface {
	Plan(sql string) (*federation.RoutingDecision, error)
	Execute(ctx context.Context, sql string) (db.RowStream, error)
}

// QueryAttempt records one execution of one SQL text.
type QueryAttempt struct {
	Number     int
	Question   string
	SchemaText string
	SQL        string
	// Error is empty when the attempt succeeded.
	Error string
}

// Result is the outcome of one question.
type Result struct {
	RequestID   string
	SQL         string
	Columns     []string
	Rows        []db.Row
	Attempts    []QueryAttempt
	TargetAlias string
	Tables      []string
	// LastError holds the final failure text when retries ran out.
	LastError string
}

// Orchestrator runs the draft, execute, repair loop. It holds no per-request
// state and is safe for concurrent use.
type Orchestrator struct {
	selector   Selector
	oracle     oracle.Oracle
	router     Router
	maxRetries int
	topK       int
	maxRows    int
	logger     zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRetries sets the repair budget.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithTopK sets the number of tables passed to the oracle. Zero uses the
// selector's default.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithMaxRows stops reading results after n rows. Zero reads everything.
func WithMaxRows(n int) Option {
	return func(o *Orchestrator) { o.maxRows = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l.With().Str("component", "orchestrator").Logger()
	}
}

// New creates an orchestrator.
func New(sel Selector, orc oracle.Oracle, router Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		selector:   sel,
		oracle:     orc,
		router:     router,
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ask answers a question. When every attempt fails the returned Result
// still carries the attempt history, alongside a RetryExhausted error.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*Result, error) {
	requestID := uuid.NewString()
	logger := o.logger.With().Str("request_id", requestID).Logger()

	sel, err := o.selector.Route(ctx, question, o.topK)
	if err != nil {
		return nil, fmt.Errorf("select tables: %w", err)
	}
	logger.Debug().
		Strs("tables", sel.Tables()).
		Str("target_alias", sel.TargetAlias).
		Msg("Selected tables")

	sql, err := o.oracle.Draft(ctx, sel.SchemaText, question)
	if err != nil {
		return nil, fmt.Errorf("draft sql: %w", err)
	}

	result := &Result{
		RequestID:   requestID,
		TargetAlias: sel.TargetAlias,
		Tables:      sel.Tables(),
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxRetries+1; attempt++ {
		if attempt > 1 {
			repaired, err := o.oracle.Repair(ctx, sel.SchemaText, sql, lastErr.Error())
			if err != nil {
				result.SQL = sql
				result.LastError = lastErr.Error()
				return result, fmt.Errorf("repair sql: %w", err)
			}
			sql = repaired
		}

		rec := QueryAttempt{Number: attempt, Question: question, SchemaText: sel.SchemaText, SQL: sql}
		logger.Info().Int("attempt", attempt).Str("sql", sql).Msg("Executing query")

		columns, rows, err := o.execute(ctx, sql, sel.TargetAlias, logger)
		if err == nil {
			result.Attempts = append(result.Attempts, rec)
			result.SQL = sql
			result.Columns = columns
			result.Rows = rows
			logger.Info().Int("attempt", attempt).Int("rows", len(rows)).Msg("Query succeeded")
			return result, nil
		}

		lastErr = err
		rec.Error = err.Error()
		result.Attempts = append(result.Attempts, rec)
		logger.Warn().Err(err).
			Int("attempt", attempt).
			Str("kind", string(fqerrors.KindOf(err))).
			Msg("Query failed")
	}

	result.SQL = sql
	result.LastError = lastErr.Error()
	return result, fqerrors.RetryExhausted(len(result.Attempts), sql, lastErr)
}

func (o *Orchestrator) execute(ctx context.Context, sql, targetAlias string, logger zerolog.Logger) ([]string, []db.Row, error) {
	if targetAlias != "" {
		if decision, err := o.router.Plan(sql); err == nil && !slices.Contains(decision.RequiredAliases, targetAlias) {
			logger.Warn().
				Str("target_alias", targetAlias).
				Strs("required_aliases", decision.RequiredAliases).
				Msg("Advisory alias differs from routed databases")
		}
	}

	stream, err := o.router.Execute(ctx, sql)
	if err != nil {
		return nil, nil, err
	}
	defer stream.Close()

	columns := stream.Columns()
	var rows []db.Row
	for stream.Next() {
		rows = append(rows, stream.Row())
		if o.maxRows > 0 && len(rows) >= o.maxRows {
			break
		}
	}
	if err := stream.Err(); err != nil {
		return nil, nil, err
	}
	return columns, rows, nil
}

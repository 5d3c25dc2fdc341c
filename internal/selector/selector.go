// Package selector narrows a question to the virtual tables most likely to
// answer it, using embedding similarity over each table's schema text.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tordrt/fedquery/internal/catalog"
	"github.com/tordrt/fedquery/internal/embedding"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
)

// DefaultTopK is used when neither the caller nor the options give a value.
const DefaultTopK = 3

// Entry is one indexed virtual table.
type Entry struct {
	Key        string
	Embedding  []float32
	SchemaText string
	Alias      string
}

// Match is a ranked entry.
type Match struct {
	Table string
	Alias string
	Score float64
}

// Selection is the outcome of routing a question.
type Selection struct {
	// SchemaText holds the selected entries' texts joined by newlines.
	SchemaText string
	// TargetAlias owns the best match. It is advisory only.
	TargetAlias string
	Matches     []Match
}

// Tables returns the selected virtual table names in rank order.
func (s *Selection) Tables() []string {
	names := make([]string, len(s.Matches))
	for i, m := range s.Matches {
		names[i] = m.Table
	}
	return names
}

// Source is the part of the catalog the selector reads.
type Source interface {
	VirtualTables() []catalog.VirtualTable
	Describe(ctx context.Context, name string) (string, error)
}

type index struct {
	entries []Entry
}

// Selector holds an in-memory embedding index. Route may be called
// concurrently with IndexAll; readers see either the old or the new index.
type Selector struct {
	source   Source
	embedder embedding.Embedder
	topK     int
	logger   zerolog.Logger

	buildMu sync.Mutex
	current atomic.Pointer[index]
}

// Option configures a Selector.
type Option func(*Selector)

// WithTopK sets the default number of tables returned by Route.
func WithTopK(k int) Option {
	return func(s *Selector) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Selector) {
		s.logger = l.With().Str("component", "selector").Logger()
	}
}

// New creates an empty selector.
func New(source Source, embedder embedding.Embedder, opts ...Option) *Selector {
	s := &Selector{
		source:   source,
		embedder: embedder,
		topK:     DefaultTopK,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexAll describes every virtual table, embeds all descriptions in one
// batch and publishes the new index. Rebuilding is idempotent.
func (s *Selector) IndexAll(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	tables := s.source.VirtualTables()
	texts := make([]string, len(tables))
	for i, vt := range tables {
		desc, err := s.source.Describe(ctx, vt.Name)
		if err != nil {
			return fmt.Errorf("describe %s: %w", vt.Name, err)
		}
		texts[i] = fmt.Sprintf("Database: %s\n%s", vt.Alias, desc)
	}

	var vectors [][]float32
	if len(texts) > 0 {
		var err error
		vectors, err = s.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed schema texts: %w", err)
		}
		if len(vectors) != len(texts) {
			return fmt.Errorf("embedder returned %d vectors for %d tables", len(vectors), len(texts))
		}
	}

	entries := make([]Entry, len(tables))
	for i, vt := range tables {
		v := append([]float32(nil), vectors[i]...)
		entries[i] = Entry{
			Key:        vt.Name,
			Embedding:  embedding.Normalize(v),
			SchemaText: texts[i],
			Alias:      vt.Alias,
		}
	}

	s.current.Store(&index{entries: entries})
	s.logger.Info().Int("tables", len(entries)).Msg("Schema index built")
	return nil
}

// Reset drops the index. The next Route rebuilds it.
func (s *Selector) Reset() {
	s.current.Store(nil)
}

// Entries returns a snapshot of the current index.
func (s *Selector) Entries() []Entry {
	idx := s.current.Load()
	if idx == nil {
		return nil
	}
	return append([]Entry(nil), idx.entries...)
}

// Route ranks indexed tables by cosine similarity to the question and
// returns the top k. A k of zero or less uses the configured default.
func (s *Selector) Route(ctx context.Context, question string, k int) (*Selection, error) {
	idx := s.current.Load()
	if idx == nil {
		if err := s.IndexAll(ctx); err != nil {
			return nil, err
		}
		idx = s.current.Load()
	}
	if idx == nil || len(idx.entries) == 0 {
		return nil, fqerrors.EmptyIndex()
	}

	q, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	type scored struct {
		entry Entry
		score float64
	}
	ranked := make([]scored, len(idx.entries))
	for i, e := range idx.entries {
		score, err := embedding.Cosine(q, e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", e.Key, err)
		}
		ranked[i] = scored{entry: e, score: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k <= 0 {
		k = s.topK
	}
	k = min(k, len(ranked))

	sel := &Selection{
		TargetAlias: ranked[0].entry.Alias,
		Matches:     make([]Match, k),
	}
	texts := make([]string, k)
	for i := 0; i < k; i++ {
		r := ranked[i]
		texts[i] = r.entry.SchemaText
		sel.Matches[i] = Match{Table: r.entry.Key, Alias: r.entry.Alias, Score: r.score}
	}
	sel.SchemaText = strings.Join(texts, "\n")

	s.logger.Debug().
		Strs("tables", sel.Tables()).
		Str("target_alias", sel.TargetAlias).
		Msg("Routed question")
	return sel, nil
}

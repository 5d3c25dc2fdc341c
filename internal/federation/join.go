package federation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/tordrt/fedquery/internal/catalog"
	"github.com/tordrt/fedquery/internal/db"
	fqerrors "github.com/tordrt/fedquery/internal/errors"
)

// DefaultFetchLimit bounds the rows pulled from each table for a join.
const DefaultFetchLimit = 1000

// JoinExecutor answers cross-database queries. For each call it copies up to
// FetchLimit rows of every referenced table into a fresh in-memory SQLite
// database under the virtual names, runs the original query there and
// discards the database when the result stream is closed.
//
// Tables larger than the fetch limit produce incomplete joins; a warning is
// logged whenever a fetch reaches the limit.
type JoinExecutor struct {
	adapters   AdapterSource
	fetchLimit int
	logger     zerolog.Logger
}

// JoinOption configures a JoinExecutor.
type JoinOption func(*JoinExecutor)

// WithFetchLimit sets the per-table row bound.
func WithFetchLimit(n int) JoinOption {
	return func(j *JoinExecutor) {
		if n > 0 {
			j.fetchLimit = n
		}
	}
}

// WithJoinLogger sets the logger.
func WithJoinLogger(l zerolog.Logger) JoinOption {
	return func(j *JoinExecutor) {
		j.logger = l.With().Str("component", "join").Logger()
	}
}

// NewJoinExecutor creates a join executor.
func NewJoinExecutor(adapters AdapterSource, opts ...JoinOption) *JoinExecutor {
	j := &JoinExecutor{
		adapters:   adapters,
		fetchLimit: DefaultFetchLimit,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// fetched is one table's rows pulled from its backend.
type fetched struct {
	columns []string
	types   []string
	rows    [][]any
}

// ExecuteJoin runs query over staged copies of tables.
func (j *JoinExecutor) ExecuteJoin(ctx context.Context, query string, tables map[string]catalog.VirtualTable) (db.RowStream, error) {
	stagingID := uuid.NewString()
	logger := j.logger.With().Str("staging_id", stagingID).Logger()

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	store, err := openStagingStore()
	if err != nil {
		return nil, fqerrors.StagingStore("failed to open staging store", err)
	}

	for _, name := range names {
		vt := tables[name]
		data, err := j.fetch(ctx, vt)
		if err != nil {
			_ = store.Close()
			return nil, fqerrors.CrossDatabaseExecution(vt.Alias, name, err)
		}

		if len(data.rows) >= j.fetchLimit {
			logger.Warn().
				Str("table", name).
				Str("alias", vt.Alias).
				Int("limit", j.fetchLimit).
				Msg("Fetch limit reached; join results may be incomplete")
		}
		if len(data.rows) == 0 {
			logger.Warn().Str("table", name).Str("alias", vt.Alias).Msg("Skipping empty table")
			continue
		}

		if err := stage(ctx, store, name, data); err != nil {
			_ = store.Close()
			return nil, fqerrors.StagingStore(fmt.Sprintf("failed to stage %s", name), err)
		}
		logger.Debug().Str("table", name).Int("rows", len(data.rows)).Msg("Staged table")
	}

	rows, err := store.QueryContext(ctx, query)
	if err != nil {
		_ = store.Close()
		return nil, fqerrors.StagingStore("staged query failed", err)
	}
	stream, err := db.NewSQLStream(rows, store.Close)
	if err != nil {
		return nil, fqerrors.StagingStore("staged query failed", err)
	}
	return stream, nil
}

var openStagingStore = func() (*sql.DB, error) {
	store, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database
	store.SetMaxOpenConns(1)
	return store, nil
}

func (j *JoinExecutor) fetch(ctx context.Context, vt catalog.VirtualTable) (*fetched, error) {
	adapter, err := j.adapters.Get(vt.Alias)
	if err != nil {
		return nil, err
	}

	stream, err := adapter.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", vt.Physical, j.fetchLimit))
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	out := &fetched{columns: stream.Columns(), types: stream.ColumnTypes()}
	for stream.Next() {
		out.rows = append(out.rows, stream.Row().Values)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func stage(ctx context.Context, store *sql.DB, table string, data *fetched) error {
	cols := make([]string, len(data.columns))
	marks := make([]string, len(data.columns))
	affinities := make([]string, len(data.columns))
	for i, c := range data.columns {
		declared := ""
		if i < len(data.types) {
			declared = data.types[i]
		}
		affinities[i] = columnAffinity(declared, sampleValue(data.rows, i))

		cols[i] = quoteIdent(c)
		if affinities[i] != "" {
			cols[i] += " " + affinities[i]
		}
		marks[i] = "?"
	}

	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
	if _, err := store.ExecContext(ctx, create); err != nil {
		return err
	}

	tx, err := store.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(marks, ", "))
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(data.columns))
	for _, row := range data.rows {
		for i, v := range row {
			args[i] = stageValue(v, affinities[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SQLite column affinities used for staged tables.
const (
	affinityInteger = "INTEGER"
	affinityReal    = "REAL"
	affinityText    = "TEXT"
	affinityBlob    = "BLOB"
)

// columnAffinity picks the staging column type from the backend's declared
// type, falling back to the first non-NULL value when the backend reports
// none. An empty result leaves the column untyped.
func columnAffinity(declared string, sample any) string {
	t := strings.ToUpper(declared)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)

	switch {
	case t == "":
	case strings.Contains(t, "INTERVAL"), strings.Contains(t, "POINT"):
		return affinityText
	case strings.Contains(t, "INT"), strings.HasPrefix(t, "BOOL"), t == "BIT", t == "YEAR":
		return affinityInteger
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"),
		strings.Contains(t, "UUID"), strings.Contains(t, "JSON"), strings.Contains(t, "ENUM"),
		strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return affinityText
	case strings.Contains(t, "BLOB"), strings.Contains(t, "BYTEA"), strings.Contains(t, "BINARY"):
		return affinityBlob
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"),
		strings.Contains(t, "DEC"), strings.Contains(t, "NUMERIC"), strings.Contains(t, "MONEY"):
		return affinityReal
	}

	switch sample.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return affinityInteger
	case float32, float64, pgtype.Numeric:
		return affinityReal
	case string, time.Time:
		return affinityText
	case []byte:
		return affinityBlob
	}
	return ""
}

// sampleValue returns the first non-NULL value of column i.
func sampleValue(rows [][]any, i int) any {
	for _, row := range rows {
		if i < len(row) && row[i] != nil {
			return row[i]
		}
	}
	return nil
}

// stageValue converts a backend value into one SQLite can store in a column
// of the given affinity. Decimal text bound for a REAL column is parsed so
// numeric comparisons on staged rows behave as they do on the backend.
func stageValue(v any, affinity string) any {
	v = storableValue(v)
	s, ok := v.(string)
	if !ok {
		return v
	}

	switch affinity {
	case affinityReal:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f
		}
	case affinityInteger:
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return n
		}
	}
	return v
}

// storableValue maps driver values onto the types the SQLite driver binds.
func storableValue(v any) any {
	switch x := v.(type) {
	case nil, int64, float64, string, []byte, bool, time.Time:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return fmt.Sprint(v)
		}
		return f.Float64
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return storableValue(val)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Package errors provides the structured error type raised by the federation core.
// Every error carries a kind so callers can match with errors.Is against the
// sentinel values, independent of the message or the wrapped cause.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a federation failure.
type Kind string

const (
	KindUnknownVirtualTable    Kind = "UNKNOWN_VIRTUAL_TABLE"
	KindUnknownAlias           Kind = "UNKNOWN_ALIAS"
	KindQueryParse             Kind = "QUERY_PARSE"
	KindCrossDatabaseExecution Kind = "CROSS_DATABASE_EXECUTION"
	KindStagingStore           Kind = "STAGING_STORE"
	KindEmptyIndex             Kind = "EMPTY_INDEX"
	KindRetryExhausted         Kind = "RETRY_EXHAUSTED"
)

// Sentinel values for errors.Is matching.
var (
	ErrUnknownVirtualTable    = &Error{Kind: KindUnknownVirtualTable, Message: "unknown virtual table"}
	ErrUnknownAlias           = &Error{Kind: KindUnknownAlias, Message: "unknown database alias"}
	ErrQueryParse             = &Error{Kind: KindQueryParse, Message: "query parse error"}
	ErrCrossDatabaseExecution = &Error{Kind: KindCrossDatabaseExecution, Message: "cross-database execution failed"}
	ErrStagingStore           = &Error{Kind: KindStagingStore, Message: "staging store error"}
	ErrEmptyIndex             = &Error{Kind: KindEmptyIndex, Message: "schema index is empty"}
	ErrRetryExhausted         = &Error{Kind: KindRetryExhausted, Message: "retries exhausted"}
)

// Error is the structured error type used throughout the federation core.
type Error struct {
	Kind    Kind
	Message string
	Table   string
	Alias   string
	SQL     string
	Cause   error
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.Alias != "" {
		fmt.Fprintf(&b, " (alias %s)", e.Alias)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether the target has the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf extracts the kind from an error chain.
// Returns empty string if the chain holds no *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// UnknownVirtualTable reports a table name with no catalog mapping.
func UnknownVirtualTable(name string) *Error {
	return &Error{
		Kind:    KindUnknownVirtualTable,
		Message: fmt.Sprintf("unknown virtual table: %s", name),
		Table:   name,
	}
}

// UnknownAlias reports a database alias with no registered adapter.
func UnknownAlias(alias string, available []string) *Error {
	return &Error{
		Kind:    KindUnknownAlias,
		Message: fmt.Sprintf("database %q is not registered (available: %s)", alias, strings.Join(available, ", ")),
		Alias:   alias,
	}
}

// QueryParse reports SQL text the router cannot accept.
func QueryParse(sql string, cause error) *Error {
	return &Error{
		Kind:    KindQueryParse,
		Message: "failed to parse query",
		SQL:     sql,
		Cause:   cause,
	}
}

// CrossDatabaseExecution reports a failed fetch from one backend during a join.
func CrossDatabaseExecution(alias, table string, cause error) *Error {
	return &Error{
		Kind:    KindCrossDatabaseExecution,
		Message: fmt.Sprintf("failed to fetch %s", table),
		Table:   table,
		Alias:   alias,
		Cause:   cause,
	}
}

// StagingStore reports a failure inside the transient join store.
func StagingStore(message string, cause error) *Error {
	return &Error{
		Kind:    KindStagingStore,
		Message: message,
		Cause:   cause,
	}
}

// EmptyIndex reports a route request against an index with no entries.
func EmptyIndex() *Error {
	return &Error{
		Kind:    KindEmptyIndex,
		Message: "schema index has no entries",
	}
}

// RetryExhausted reports the final failure of a request. The last attempted
// SQL and the last failure text are part of the message.
func RetryExhausted(attempts int, sql string, last error) *Error {
	return &Error{
		Kind:    KindRetryExhausted,
		Message: fmt.Sprintf("query failed after %d attempts; last sql: %s", attempts, sql),
		SQL:     sql,
		Cause:   last,
	}
}

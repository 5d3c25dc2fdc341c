package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"unknown table", UnknownVirtualTable("orders"), ErrUnknownVirtualTable, true},
		{"wrapped unknown table", fmt.Errorf("resolve: %w", UnknownVirtualTable("orders")), ErrUnknownVirtualTable, true},
		{"parse is not unknown table", QueryParse("SELEC", errors.New("syntax")), ErrUnknownVirtualTable, false},
		{"cross database", CrossDatabaseExecution("crm", "customers", errors.New("timeout")), ErrCrossDatabaseExecution, true},
		{"staging", StagingStore("stage", nil), ErrStagingStore, true},
		{"empty index", EmptyIndex(), ErrEmptyIndex, true},
		{"retry exhausted", RetryExhausted(3, "SELECT 1", errors.New("boom")), ErrRetryExhausted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := CrossDatabaseExecution("crm", "customers", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "alias crm")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRetryExhaustedCarriesContext(t *testing.T) {
	err := RetryExhausted(3, "SELECT nope FROM employees", errors.New("no such column: nope"))

	msg := err.Error()
	assert.True(t, strings.Contains(msg, "SELECT nope FROM employees"))
	assert.True(t, strings.Contains(msg, "no such column: nope"))
	assert.Equal(t, KindRetryExhausted, KindOf(fmt.Errorf("ask: %w", err)))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

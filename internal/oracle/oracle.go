// Package oracle drafts and repairs SQL from natural-language questions.
package oracle

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// Oracle turns a question plus schema text into SQL, and repairs SQL that
// failed to execute.
type Oracle interface {
	Draft(ctx context.Context, schemaText, question string) (string, error)
	Repair(ctx context.Context, schemaText, badSQL, errText string) (string, error)
}

// ErrEmptyResponse is returned when the model produces no usable text.
var ErrEmptyResponse = errors.New("oracle returned an empty response")

var statementPattern = regexp.MustCompile(`(?is)\b(SELECT|WITH|INSERT|UPDATE|DELETE|DROP)\s+.*?(;|$)`)

// Cleanup strips markdown code fences and returns the first SQL statement in
// a model response. Text without a recognizable statement is returned
// trimmed.
func Cleanup(text string) string {
	text = strings.ReplaceAll(text, "```sql", "")
	text = strings.ReplaceAll(text, "```SQL", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	if m := statementPattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return text
}

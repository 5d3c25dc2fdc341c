package federation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// rewriteTables replaces every table reference named in physical with its
// physical name, working on tokens of the original text so literals,
// comments and formatting are left alone. An unaliased reference keeps its
// old name as alias so column qualifiers still resolve.
func rewriteTables(sql string, physical map[string]string) (string, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return "", err
	}

	type splice struct {
		start, end int
		text       string
	}
	var splices []splice
	rewritten := make(map[string]bool, len(physical))

	for _, ref := range tableRefs(sql, tokens) {
		// db.table references are left as written
		if ref.qualified {
			continue
		}
		target, ok := physical[ref.name]
		if !ok {
			continue
		}
		rewritten[ref.name] = true
		if target == ref.name {
			continue
		}

		tok := tokens[ref.index]
		text := target
		if !hasAlias(tokens, ref.index) {
			text += " AS " + sql[tok.start:tok.end]
		}
		splices = append(splices, splice{start: tok.start, end: tok.end, text: text})
	}

	for name := range physical {
		if !rewritten[name] {
			return "", fmt.Errorf("table %s is referenced in a position that cannot be rewritten", name)
		}
	}

	sort.Slice(splices, func(i, j int) bool { return splices[i].start < splices[j].start })
	var b strings.Builder
	last := 0
	for _, sp := range splices {
		b.WriteString(sql[last:sp.start])
		b.WriteString(sp.text)
		last = sp.end
	}
	b.WriteString(sql[last:])
	return b.String(), nil
}

// hasAlias reports whether the table token at i is followed by an alias.
func hasAlias(tokens []token, i int) bool {
	if i+1 >= len(tokens) {
		return false
	}
	next := tokens[i+1].typ
	return next == sqlparser.AS || next == sqlparser.ID
}

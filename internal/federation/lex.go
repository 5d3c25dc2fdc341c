package federation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xwb1989/sqlparser"
)

type token struct {
	typ        int
	val        string
	start, end int
}

// tokenize scans sql into tokens with byte offsets into the original text.
func tokenize(sql string) ([]token, error) {
	tkn := sqlparser.NewStringTokenizer(sql)
	var tokens []token
	prevEnd := 0
	for {
		typ, val := tkn.Scan()
		if typ == 0 {
			return tokens, nil
		}
		if typ == sqlparser.LEX_ERROR {
			return nil, fmt.Errorf("cannot tokenize query near offset %d", prevEnd)
		}

		// The tokenizer reads one character ahead
		end := min(tkn.Position-1, len(sql))
		start := prevEnd
		for start < end && strings.IndexByte(" \t\r\n", sql[start]) >= 0 {
			start++
		}
		prevEnd = end

		if typ == sqlparser.COMMENT {
			continue
		}
		tokens = append(tokens, token{typ: typ, val: string(val), start: start, end: end})
	}
}

// tokenName returns the identifier as written. Keywords come back from the
// tokenizer lowercased, so the original text is used unless the token was
// quoted.
func tokenName(sql string, tok token) string {
	raw := sql[tok.start:tok.end]
	if strings.HasPrefix(raw, "`") {
		return tok.val
	}
	return raw
}

// frame tracks whether the tokens at one parenthesis depth are inside a
// FROM clause.
type frame struct {
	inFrom bool
}

// tableRef is a token in a FROM or JOIN table position.
type tableRef struct {
	index     int
	name      string
	qualified bool
}

// tableRefs finds every table position in tokens, at any depth. Table
// functions such as generate_series(1, 3) are skipped.
func tableRefs(sql string, tokens []token) []tableRef {
	var refs []tableRef
	stack := []frame{{}}
	expectTable := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		top := &stack[len(stack)-1]
		wasExpecting := expectTable
		expectTable = false

		switch tok.typ {
		case '(':
			stack = append(stack, frame{inFrom: wasExpecting})
			expectTable = wasExpecting
			continue
		case ')':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		case sqlparser.FROM, sqlparser.JOIN, sqlparser.STRAIGHT_JOIN:
			top.inFrom = true
			expectTable = true
			continue
		case ',':
			expectTable = top.inFrom
			continue
		case sqlparser.SELECT, sqlparser.WHERE, sqlparser.GROUP, sqlparser.HAVING,
			sqlparser.ORDER, sqlparser.LIMIT, sqlparser.ON, sqlparser.USING, sqlparser.UNION:
			top.inFrom = false
			continue
		case sqlparser.STRING, sqlparser.INTEGRAL, sqlparser.FLOAT:
			continue
		}

		if !wasExpecting || !isName(sql, tok) {
			continue
		}
		if i+1 < len(tokens) && tokens[i+1].typ == '(' {
			continue
		}

		name := tokenName(sql, tok)
		if i+2 < len(tokens) && tokens[i+1].typ == '.' {
			refs = append(refs, tableRef{index: i, name: name + "." + tokenName(sql, tokens[i+2]), qualified: true})
			i += 2
			continue
		}
		refs = append(refs, tableRef{index: i, name: name})
	}
	return refs
}

// isName reports whether tok can name a table. Non-reserved keywords such
// as status come back as keyword tokens.
func isName(sql string, tok token) bool {
	if tok.typ == sqlparser.ID {
		return true
	}
	raw := sql[tok.start:tok.end]
	if raw == "" {
		return false
	}
	for i := 0; i < len(raw); i++ {
		if !isWordByte(raw[i]) {
			return false
		}
	}
	return true
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// scanQuery reads the tables of a statement the grammar rejected. It
// accepts a single statement led by SELECT or WITH, with balanced
// parentheses, no writes and at least one table.
func scanQuery(sql string) ([]string, error) {
	tokens, err := tokenize(sql)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errors.New("empty query")
	}
	if first := tokens[0].typ; first != sqlparser.SELECT && first != sqlparser.WITH {
		return nil, errNotSelect
	}

	depth := 0
	topSelect := false
	for _, tok := range tokens {
		switch tok.typ {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced parentheses")
			}
		case ';':
			return nil, errors.New("multiple statements are not supported")
		case sqlparser.SELECT:
			if depth == 0 {
				topSelect = true
			}
		case sqlparser.INSERT, sqlparser.UPDATE, sqlparser.DELETE, sqlparser.DROP,
			sqlparser.CREATE, sqlparser.ALTER, sqlparser.TRUNCATE, sqlparser.RENAME:
			return nil, errNotSelect
		}
	}
	if depth != 0 {
		return nil, errors.New("unbalanced parentheses")
	}
	if !topSelect {
		return nil, errors.New("missing statement after WITH clause")
	}

	found := make(map[string]bool)
	for _, ref := range tableRefs(sql, tokens) {
		found[ref.name] = true
	}
	tables := sortedNames(found, cteNames(sql, tokens))
	if len(tables) == 0 {
		return nil, errors.New("no tables found")
	}
	return tables, nil
}

// cteNames collects the names defined by a leading WITH clause.
func cteNames(sql string, tokens []token) map[string]bool {
	names := make(map[string]bool)
	if len(tokens) == 0 || tokens[0].typ != sqlparser.WITH {
		return names
	}

	depth := 0
	expectName := true
	for i := 1; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok.typ {
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth > 0 {
			continue
		}

		switch {
		case tok.typ == sqlparser.SELECT:
			return names
		case tok.typ == ',':
			expectName = true
		case expectName:
			name := tokenName(sql, tok)
			if strings.EqualFold(name, "recursive") && i+1 < len(tokens) && isName(sql, tokens[i+1]) {
				continue
			}
			names[name] = true
			expectName = false
		}
	}
	return names
}

package federation

import (
	"errors"
	"sort"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

var errNotSelect = errors.New("only SELECT statements are supported")

// grammar parses the MySQL dialect at the library's default server version.
var grammar = func() *sqlparser.Parser {
	p, err := sqlparser.New(sqlparser.Options{})
	if err != nil {
		panic(err)
	}
	return p
}()

// parsedQuery is a validated SELECT with its base table references.
type parsedQuery struct {
	SQL    string
	Tables []string // sorted, CTE names excluded
}

// normalizeSQL trims whitespace and trailing semicolons.
func normalizeSQL(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
}

// parseQuery validates a read-only statement and collects the tables it
// reads. Text the grammar rejects is still accepted when it lexes as a
// single SELECT that reads at least one table, so dialect extensions such
// as ILIKE or NULLS LAST reach the backend that understands them.
func parseQuery(sql string) (*parsedQuery, error) {
	sql = normalizeSQL(sql)
	if sql == "" {
		return nil, errors.New("empty query")
	}

	stmt, err := grammar.Parse(sql)
	if err != nil {
		tables, scanErr := scanQuery(sql)
		if scanErr != nil {
			return nil, err
		}
		return &parsedQuery{SQL: sql, Tables: tables}, nil
	}

	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
	default:
		return nil, errNotSelect
	}
	return &parsedQuery{SQL: sql, Tables: baseTables(stmt)}, nil
}

// baseTables returns every table named in a FROM or JOIN position, at any
// depth, minus the names common table expressions define. Column
// qualifiers are not table references and are skipped.
func baseTables(stmt sqlparser.SQLNode) []string {
	ctes := make(map[string]bool)
	found := make(map[string]bool)
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.CommonTableExpr:
			ctes[n.ID.String()] = true
		case *sqlparser.AliasedTableExpr:
			tn, ok := n.Expr.(sqlparser.TableName)
			if !ok || tn.IsEmpty() {
				break
			}
			name := tn.Name.String()
			if tn.Qualifier.IsEmpty() {
				// A SELECT without FROM reads from dual
				if strings.EqualFold(name, "dual") {
					break
				}
			} else {
				name = tn.Qualifier.String() + "." + name
			}
			found[name] = true
		}
		return true, nil
	}, stmt)

	return sortedNames(found, ctes)
}

func sortedNames(found, exclude map[string]bool) []string {
	names := make([]string, 0, len(found))
	for name := range found {
		if !exclude[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

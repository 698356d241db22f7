package sqlexec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

// Analysis is the outcome of statically inspecting a candidate query.
//
// The parser follows the MySQL grammar, so a parse failure is not proof that
// the query is invalid for the target dialect (CTEs, Postgres casts and
// T-SQL TOP are common examples). Callers treat Parsed == false as advisory.
type Analysis struct {
	Parsed        bool
	ReadOnly      bool
	StatementType string
	Tables        []string
	MultiStmt     bool
	ParseError    string
}

// Analyze parses query and reports its statement type and referenced tables.
func Analyze(query string) Analysis {
	trimmed := TrimStatement(query)
	a := Analysis{MultiStmt: hasMultipleStatements(trimmed)}

	stmt, err := sqlparser.Parse(trimmed)
	if err != nil {
		a.ParseError = err.Error()
		return a
	}
	a.Parsed = true

	switch stmt.(type) {
	case *sqlparser.Select:
		a.StatementType, a.ReadOnly = "select", true
	case *sqlparser.Union:
		a.StatementType, a.ReadOnly = "union", true
	case *sqlparser.ParenSelect:
		a.StatementType, a.ReadOnly = "select", true
	case *sqlparser.Insert:
		a.StatementType = "insert"
	case *sqlparser.Update:
		a.StatementType = "update"
	case *sqlparser.Delete:
		a.StatementType = "delete"
	case *sqlparser.DDL:
		a.StatementType = "ddl"
	case *sqlparser.Set:
		a.StatementType = "set"
	default:
		a.StatementType = fmt.Sprintf("%T", stmt)
	}

	a.Tables = referencedTables(stmt)
	return a
}

// referencedTables collects the names of tables appearing in FROM and JOIN clauses.
func referencedTables(stmt sqlparser.Statement) []string {
	seen := make(map[string]struct{})
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		aliased, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		if name, ok := aliased.Expr.(sqlparser.TableName); ok && !name.IsEmpty() {
			seen[name.Name.String()] = struct{}{}
		}
		return true, nil
	}, stmt)

	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables
}

// UnknownTables returns the referenced tables missing from known, compared case-insensitively.
// Schema-qualified known names match on their final segment.
func (a Analysis) UnknownTables(known []string) []string {
	if len(known) == 0 {
		return nil
	}
	index := make(map[string]struct{}, len(known))
	for _, k := range known {
		k = strings.ToLower(k)
		index[k] = struct{}{}
		if dot := strings.LastIndex(k, "."); dot >= 0 {
			index[k[dot+1:]] = struct{}{}
		}
	}

	var unknown []string
	for _, t := range a.Tables {
		if _, ok := index[strings.ToLower(t)]; !ok {
			unknown = append(unknown, t)
		}
	}
	return unknown
}

// TrimStatement strips surrounding whitespace and trailing semicolons.
func TrimStatement(query string) string {
	q := strings.TrimSpace(query)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

// hasMultipleStatements reports whether a semicolon outside quotes and
// comments separates two statements.
func hasMultipleStatements(query string) bool {
	var quote rune
	lineComment, blockComment := false, false
	runes := []rune(query)

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case lineComment:
			if r == '\n' {
				lineComment = false
			}
		case blockComment:
			if r == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				blockComment = false
				i++
			}
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			lineComment = true
		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			blockComment = true
		case r == ';':
			if strings.TrimSpace(string(runes[i+1:])) != "" {
				return true
			}
		}
	}
	return false
}

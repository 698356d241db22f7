package orchestration

import (
	"strings"

	"github.com/itsneelabh/querysynth/sqlexec"
)

// Category is the repair-relevant class of a failed execution.
type Category string

const (
	CategoryMissingFieldOrTable    Category = "missing_field_or_table"
	CategorySyntaxError            Category = "syntax_error"
	CategoryTemporalFieldMisuse    Category = "temporal_field_misuse"
	CategoryPermissionOrConnection Category = "permission_or_connection_error"
	CategoryTimeout                Category = "timeout"
	CategoryEmptyResult            Category = "empty_result"
	CategoryUnclassified           Category = "unclassified"
)

// IssueSource says where an issue was detected
type IssueSource string

const (
	SourceSandbox IssueSource = "sandbox"
	SourceGuard   IssueSource = "guard"
	SourceResult  IssueSource = "result"
)

// Issue is one structured problem found while validating a query.
type Issue struct {
	Iteration int               `json:"iteration"`
	Source    IssueSource       `json:"source"`
	Kind      sqlexec.ErrorKind `json:"kind,omitempty"`
	Category  Category          `json:"category,omitempty"`
	Message   string            `json:"message"`
	Driver    string            `json:"driver,omitempty"`
	Query     string            `json:"query,omitempty"`
}

// Classification selects a repair strategy. It never decides the outcome
// of the task; the orchestrator does that from the budget.
type Classification struct {
	Category               Category
	Repairable             bool
	NeedsSchemaRefresh     bool
	NeedsQueryRegeneration bool
	Summary                string
}

type classificationRule struct {
	category Category
	patterns []string
}

// Rules are tried in order; the first match wins.
var defaultRules = []classificationRule{
	{
		category: CategoryMissingFieldOrTable,
		patterns: []string{
			"does not exist", "doesn't exist", "no such column", "no such table",
			"unknown column", "unknown table", "invalid column name", "invalid object name",
			"undefined column", "undefined table", "not found in known tables",
		},
	},
	{
		category: CategorySyntaxError,
		patterns: []string{"syntax error", "incorrect syntax", "parse error", "unexpected"},
	},
	{
		category: CategoryTemporalFieldMisuse,
		patterns: []string{
			"date/time", "for type date", "for type timestamp", "datetime", "interval",
			"date_trunc", "time zone", "timestamp", "extract(",
		},
	},
	{
		category: CategoryPermissionOrConnection,
		patterns: []string{
			"permission denied", "access denied", "not authorized", "insufficient privilege",
			"connection refused", "connection reset", "broken pipe", "could not connect",
			"no route to host", "authentication failed", "login failed", "bad connection",
			"too many connections",
		},
	},
	{
		category: CategoryEmptyResult,
		patterns: []string{"returned no rows", "returned no columns"},
	},
}

// ErrorClassifier maps failed executions to repair categories.
type ErrorClassifier struct {
	rules []classificationRule

	// maxConsecutiveTimeouts is the count at which timeouts stop being repairable
	maxConsecutiveTimeouts int
}

// NewErrorClassifier creates a classifier with the built-in rules
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{rules: defaultRules, maxConsecutiveTimeouts: 2}
}

// Classify inspects the issues of the last failed attempt.
func (c *ErrorClassifier) Classify(issues []Issue, columnDetailsKnown bool, consecutiveTimeouts int) Classification {
	category := c.category(issues)

	cl := Classification{Category: category, Repairable: true}
	switch category {
	case CategoryPermissionOrConnection:
		cl.Repairable = false
	case CategoryTimeout:
		cl.Repairable = consecutiveTimeouts < c.maxConsecutiveTimeouts
	case CategoryMissingFieldOrTable, CategoryTemporalFieldMisuse, CategoryEmptyResult:
		cl.NeedsSchemaRefresh = !columnDetailsKnown
		cl.NeedsQueryRegeneration = columnDetailsKnown
	}

	cl.Summary = summarize(category, issues)
	return cl
}

func (c *ErrorClassifier) category(issues []Issue) Category {
	// Structured kinds that no query edit can change come first
	for _, issue := range issues {
		switch issue.Kind {
		case sqlexec.KindPermission, sqlexec.KindConnection:
			return CategoryPermissionOrConnection
		case sqlexec.KindTimeout:
			return CategoryTimeout
		}
	}

	var sb strings.Builder
	for _, issue := range issues {
		sb.WriteString(issue.Message)
		sb.WriteByte(' ')
		sb.WriteString(issue.Driver)
		sb.WriteByte(' ')
	}
	text := strings.ToLower(sb.String())

	for _, rule := range c.rules {
		for _, p := range rule.patterns {
			if strings.Contains(text, p) {
				return rule.category
			}
		}
	}

	for _, issue := range issues {
		switch issue.Kind {
		case sqlexec.KindMissing:
			return CategoryMissingFieldOrTable
		case sqlexec.KindSyntax:
			return CategorySyntaxError
		}
	}
	return CategoryUnclassified
}

const maxSummaryLength = 160

func summarize(category Category, issues []Issue) string {
	if len(issues) == 0 {
		return string(category)
	}
	return truncate(string(category)+": "+issues[0].Message, maxSummaryLength)
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Package sqlexec runs candidate queries against a data source and reports
// either a bounded row sample or a structured failure.
package sqlexec

import (
	"context"
)

// Sandbox is the query-execution capability consumed by the synthesis loop.
// Structured failures are returned as *Error so callers can classify them.
type Sandbox interface {
	Execute(ctx context.Context, dataSource, query string) (*Result, error)
}

// Result is a bounded sample of the rows a query produced.
type Result struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated,omitempty"`
}

// Empty reports whether the query returned no rows.
func (r *Result) Empty() bool {
	return r == nil || r.RowCount == 0
}

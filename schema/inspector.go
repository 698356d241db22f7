// Package schema provides read-only schema introspection for the data
// sources a synthesis task targets: table lists and per-table column
// metadata. Adapters exist for database/sql (postgres, mysql, sqlserver,
// sqlite), an in-memory catalog, and a Redis-backed cache wrapper.
package schema

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
)

// ErrUnavailable is returned when schema metadata cannot be read.
var ErrUnavailable = errors.New("schema unavailable")

// ErrUnknownDataSource is returned when an inspector does not serve the requested data source.
var ErrUnknownDataSource = errors.New("unknown data source")

// Column describes a single column of a table.
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// TableColumns maps a table name to its columns in ordinal order.
type TableColumns map[string][]Column

// Tables returns the table names in sorted order.
func (tc TableColumns) Tables() []string {
	names := make([]string, 0, len(tc))
	for name := range tc {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inspector is the schema-introspection capability consumed by the synthesis loop.
// Implementations must tolerate concurrent calls from independent tasks.
type Inspector interface {
	// ListTables returns the user tables of a data source.
	ListTables(ctx context.Context, dataSource string) ([]string, error)

	// GetColumns returns column metadata for the requested tables.
	// Tables that do not exist are omitted from the result rather than reported as errors.
	GetColumns(ctx context.Context, dataSource string, tables []string) (TableColumns, error)
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*(\.[a-zA-Z_][a-zA-Z0-9_$]*)?$`)

// IsValidIdentifier reports whether s is a plain or schema-qualified table name.
func IsValidIdentifier(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	return identifierPattern.MatchString(s)
}

// NormalizeTables trims, de-duplicates and sorts table names, dropping empty entries.
func NormalizeTables(tables []string) []string {
	seen := make(map[string]struct{}, len(tables))
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

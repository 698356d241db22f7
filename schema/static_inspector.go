package schema

import (
	"context"
	"sync"
)

// StaticInspector serves schema metadata from memory. It is used for fixed
// catalogs and in tests; the zero value is not usable, call NewStaticInspector.
type StaticInspector struct {
	mu      sync.RWMutex
	sources map[string]TableColumns
}

// NewStaticInspector creates an inspector with no data sources.
func NewStaticInspector() *StaticInspector {
	return &StaticInspector{sources: make(map[string]TableColumns)}
}

// AddTable registers a table and its columns under a data source, replacing any previous definition.
func (s *StaticInspector) AddTable(dataSource, table string, columns ...Column) *StaticInspector {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables, ok := s.sources[dataSource]
	if !ok {
		tables = make(TableColumns)
		s.sources[dataSource] = tables
	}
	tables[table] = append([]Column(nil), columns...)
	return s
}

// ListTables returns the registered tables of a data source in sorted order.
func (s *StaticInspector) ListTables(ctx context.Context, dataSource string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	tables, ok := s.sources[dataSource]
	if !ok {
		return nil, ErrUnknownDataSource
	}
	return tables.Tables(), nil
}

// GetColumns returns copies of the registered columns for the requested tables.
func (s *StaticInspector) GetColumns(ctx context.Context, dataSource string, tables []string) (TableColumns, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	known, ok := s.sources[dataSource]
	if !ok {
		return nil, ErrUnknownDataSource
	}

	result := make(TableColumns, len(tables))
	for _, table := range NormalizeTables(tables) {
		if cols, ok := known[table]; ok {
			result[table] = append([]Column(nil), cols...)
		}
	}
	return result, nil
}

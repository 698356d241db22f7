package schema

import (
	"context"

	"github.com/itsneelabh/querysynth/core"
)

// CachedInspector wraps an Inspector with a read-through Cache.
// Column lookups are cached per table so overlapping requests share entries.
type CachedInspector struct {
	inner  Inspector
	cache  Cache
	logger core.Logger
}

// NewCachedInspector creates a caching wrapper around inner.
func NewCachedInspector(inner Inspector, cache Cache) *CachedInspector {
	return &CachedInspector{
		inner:  inner,
		cache:  cache,
		logger: &core.NoOpLogger{},
	}
}

// SetLogger sets the logger for cache diagnostics.
func (c *CachedInspector) SetLogger(logger core.Logger) {
	if logger == nil {
		c.logger = &core.NoOpLogger{}
		return
	}
	c.logger = core.ComponentLogger(logger, "schema/cache")
}

// ListTables serves the table list from cache, falling back to the wrapped inspector.
func (c *CachedInspector) ListTables(ctx context.Context, dataSource string) ([]string, error) {
	if tables, ok := c.cache.GetTables(ctx, dataSource); ok {
		return tables, nil
	}

	tables, err := c.inner.ListTables(ctx, dataSource)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetTables(ctx, dataSource, tables); err != nil {
		c.logger.Warn("Failed to cache table list", map[string]interface{}{
			"operation":   "list_tables",
			"data_source": dataSource,
			"error":       err.Error(),
		})
	}
	return tables, nil
}

// GetColumns serves cached tables directly and fetches only the misses.
func (c *CachedInspector) GetColumns(ctx context.Context, dataSource string, tables []string) (TableColumns, error) {
	result := make(TableColumns, len(tables))
	var missing []string

	for _, table := range NormalizeTables(tables) {
		if cols, ok := c.cache.GetColumns(ctx, dataSource, table); ok {
			result[table] = cols
			continue
		}
		missing = append(missing, table)
	}

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.inner.GetColumns(ctx, dataSource, missing)
	if err != nil {
		return nil, err
	}

	for table, cols := range fetched {
		result[table] = cols
		if err := c.cache.SetColumns(ctx, dataSource, table, cols); err != nil {
			c.logger.Warn("Failed to cache column details", map[string]interface{}{
				"operation":   "get_columns",
				"data_source": dataSource,
				"table":       table,
				"error":       err.Error(),
			})
		}
	}

	c.logger.Debug("Column lookup served", map[string]interface{}{
		"operation":   "get_columns",
		"data_source": dataSource,
		"cache_hits":  len(result) - len(fetched),
		"fetched":     len(fetched),
	})

	return result, nil
}

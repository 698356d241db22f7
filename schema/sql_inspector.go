package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/itsneelabh/querysynth/core"
)

// SQLInspector reads catalog metadata through database/sql.
// It does not own the *sql.DB; callers open and close it.
type SQLInspector struct {
	db         *sql.DB
	dialect    Dialect
	dataSource string
	schemaName string
	logger     core.Logger
}

// SQLInspectorOption configures an SQLInspector.
type SQLInspectorOption func(*SQLInspector)

// WithDataSourceName restricts the inspector to one named data source.
// Requests for any other name fail with ErrUnknownDataSource.
func WithDataSourceName(name string) SQLInspectorOption {
	return func(i *SQLInspector) {
		i.dataSource = name
	}
}

// WithSchemaName limits table listing to one database schema.
func WithSchemaName(name string) SQLInspectorOption {
	return func(i *SQLInspector) {
		i.schemaName = name
	}
}

// NewSQLInspector creates an inspector over db using the given dialect's catalog queries.
func NewSQLInspector(db *sql.DB, dialect Dialect, opts ...SQLInspectorOption) *SQLInspector {
	i := &SQLInspector{
		db:      db,
		dialect: dialect,
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// SetLogger sets the logger for the inspector.
func (i *SQLInspector) SetLogger(logger core.Logger) {
	if logger == nil {
		i.logger = &core.NoOpLogger{}
		return
	}
	i.logger = core.ComponentLogger(logger, "schema/sql")
}

func (i *SQLInspector) checkDataSource(op, dataSource string) error {
	if i.dataSource != "" && dataSource != "" && dataSource != i.dataSource {
		return &core.FrameworkError{Op: op, Kind: "schema", ID: dataSource, Err: ErrUnknownDataSource}
	}
	return nil
}

// ListTables returns the user tables of the configured database.
func (i *SQLInspector) ListTables(ctx context.Context, dataSource string) ([]string, error) {
	if err := i.checkDataSource("schema.ListTables", dataSource); err != nil {
		return nil, err
	}

	query := i.dialect.tablesQuery()
	if query == "" {
		return nil, &core.FrameworkError{
			Op:      "schema.ListTables",
			Kind:    "schema",
			ID:      dataSource,
			Message: fmt.Sprintf("no catalog query for dialect %q", i.dialect),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	rows, err := i.db.QueryContext(ctx, query, i.dialect.tablesArgs(i.schemaName)...)
	if err != nil {
		return nil, &core.FrameworkError{
			Op:   "schema.ListTables",
			Kind: "schema",
			ID:   dataSource,
			Err:  fmt.Errorf("%w: failed to query tables: %v", ErrUnavailable, err),
		}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			i.logger.Warn("Skipping unreadable table row", map[string]interface{}{
				"operation":   "list_tables",
				"data_source": dataSource,
				"error":       err.Error(),
			})
			continue
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.FrameworkError{
			Op:   "schema.ListTables",
			Kind: "schema",
			ID:   dataSource,
			Err:  fmt.Errorf("%w: %v", ErrUnavailable, err),
		}
	}

	i.logger.Debug("Listed tables", map[string]interface{}{
		"operation":   "list_tables",
		"data_source": dataSource,
		"dialect":     string(i.dialect),
		"table_count": len(tables),
	})

	return NormalizeTables(tables), nil
}

// GetColumns returns column metadata for each requested table.
// Invalid identifiers and tables without columns are left out of the result.
func (i *SQLInspector) GetColumns(ctx context.Context, dataSource string, tables []string) (TableColumns, error) {
	if err := i.checkDataSource("schema.GetColumns", dataSource); err != nil {
		return nil, err
	}

	result := make(TableColumns, len(tables))
	for _, table := range NormalizeTables(tables) {
		if !IsValidIdentifier(table) {
			i.logger.Warn("Ignoring invalid table name", map[string]interface{}{
				"operation":   "get_columns",
				"data_source": dataSource,
				"table":       table,
			})
			continue
		}

		columns, err := i.tableColumns(ctx, table)
		if err != nil {
			return nil, &core.FrameworkError{
				Op:   "schema.GetColumns",
				Kind: "schema",
				ID:   table,
				Err:  fmt.Errorf("%w: %v", ErrUnavailable, err),
			}
		}
		if len(columns) > 0 {
			result[table] = columns
		}
	}

	i.logger.Debug("Fetched column details", map[string]interface{}{
		"operation":       "get_columns",
		"data_source":     dataSource,
		"requested":       len(tables),
		"described_count": len(result),
	})

	return result, nil
}

func (i *SQLInspector) tableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := i.db.QueryContext(ctx, i.dialect.columnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

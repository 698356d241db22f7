package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/itsneelabh/querysynth/core"
)

// DefaultMaxRows bounds the row sample returned for a successful query.
const DefaultMaxRows = 50

// SQLSandbox executes read-only queries through database/sql.
// Writes are rejected before reaching the database, and where the driver
// supports it the query runs inside a read-only transaction that is always
// rolled back.
type SQLSandbox struct {
	db         *sql.DB
	driver     string
	dataSource string
	maxRows    int
	readOnlyTx bool
	logger     core.Logger
}

// SandboxOption configures an SQLSandbox.
type SandboxOption func(*SQLSandbox)

// WithMaxRows sets the maximum number of rows returned in a Result.
func WithMaxRows(n int) SandboxOption {
	return func(s *SQLSandbox) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

// WithSandboxDataSource restricts the sandbox to one named data source.
func WithSandboxDataSource(name string) SandboxOption {
	return func(s *SQLSandbox) {
		s.dataSource = name
	}
}

// NewSQLSandbox creates a sandbox over db. driver is the registered
// database/sql driver name and selects read-only transaction support.
func NewSQLSandbox(db *sql.DB, driver string, opts ...SandboxOption) *SQLSandbox {
	s := &SQLSandbox{
		db:      db,
		driver:  driver,
		maxRows: DefaultMaxRows,
		// go-mssqldb and modernc sqlite reject read-only transaction options
		readOnlyTx: driver == "postgres" || driver == "pgx" || driver == "mysql",
		logger:     &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger sets the logger for the sandbox.
func (s *SQLSandbox) SetLogger(logger core.Logger) {
	if logger == nil {
		s.logger = &core.NoOpLogger{}
		return
	}
	s.logger = core.ComponentLogger(logger, "sqlexec/sandbox")
}

// Execute runs query and returns up to maxRows rows.
// Failures are always returned as *Error.
func (s *SQLSandbox) Execute(ctx context.Context, dataSource, query string) (*Result, error) {
	if s.dataSource != "" && dataSource != "" && dataSource != s.dataSource {
		return nil, &Error{Kind: KindConnection, Message: fmt.Sprintf("unknown data source %q", dataSource), Driver: s.driver}
	}

	stmt := TrimStatement(query)
	if stmt == "" {
		return nil, &Error{Kind: KindSyntax, Message: "empty query", Driver: s.driver}
	}

	analysis := Analyze(stmt)
	if analysis.MultiStmt {
		return nil, &Error{Kind: KindReadOnly, Message: "multiple statements are not allowed", Driver: s.driver}
	}
	if analysis.Parsed && !analysis.ReadOnly {
		return nil, &Error{
			Kind:    KindReadOnly,
			Message: fmt.Sprintf("only SELECT statements may be executed, got %s", analysis.StatementType),
			Driver:  s.driver,
		}
	}

	start := time.Now()
	result, err := s.run(ctx, stmt)
	duration := time.Since(start)

	if err != nil {
		sbErr := ClassifyDriverError(s.driver, err)
		s.logger.Warn("Query execution failed", map[string]interface{}{
			"operation":   "execute",
			"data_source": dataSource,
			"kind":        string(sbErr.Kind),
			"code":        sbErr.Code,
			"duration_ms": duration.Milliseconds(),
			"error":       sbErr.Message,
		})
		return nil, sbErr
	}

	s.logger.Debug("Query executed", map[string]interface{}{
		"operation":   "execute",
		"data_source": dataSource,
		"rows":        result.RowCount,
		"truncated":   result.Truncated,
		"duration_ms": duration.Milliseconds(),
	})
	return result, nil
}

func (s *SQLSandbox) run(ctx context.Context, query string) (*Result, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.readOnlyTx})
	if err != nil {
		return nil, err
	}
	// The transaction only ever reads
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRows(rows, s.maxRows)
}

func collectRows(rows *sql.Rows, maxRows int) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns, Rows: make([][]interface{}, 0)}
	for rows.Next() {
		if len(result.Rows) >= maxRows {
			result.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

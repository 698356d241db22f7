package orchestration

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/reasoning"
	"github.com/itsneelabh/querysynth/resilience"
	"github.com/itsneelabh/querysynth/schema"
	"github.com/itsneelabh/querysynth/sqlexec"
)

// ExecutorConfig bounds the executor's external calls.
type ExecutorConfig struct {
	Timeouts              core.TimeoutConfig
	SchemaRetry           *resilience.RetryConfig
	MaxSelectedTables     int
	RequireNonEmptyResult bool
}

// ActionOutcome is what performing one action produced. Err is set only
// for failures that end the task; everything else travels in Delta.
type ActionOutcome struct {
	Delta ContextDelta
	Err   *SynthesisError
}

// Executor performs actions against the collaborators. It writes what it
// learns into the task's resource pool and reports loop-state changes as a
// delta; it never touches the ExecutionContext itself.
type Executor struct {
	inspector schema.Inspector
	sandbox   sqlexec.Sandbox
	reasoner  reasoning.Service
	selector  TableSelector
	planner   *Planner
	config    ExecutorConfig
	logger    core.Logger
}

// NewExecutor creates an executor. A nil selector uses keyword matching.
func NewExecutor(inspector schema.Inspector, sandbox sqlexec.Sandbox, reasoner reasoning.Service, planner *Planner, selector TableSelector, config ExecutorConfig) *Executor {
	if selector == nil {
		selector = &KeywordTableSelector{}
	}
	if config.SchemaRetry == nil {
		config.SchemaRetry = resilience.SingleRetryConfig(100 * time.Millisecond)
	}
	return &Executor{
		inspector: inspector,
		sandbox:   sandbox,
		reasoner:  reasoner,
		selector:  selector,
		planner:   planner,
		config:    config,
		logger:    &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (e *Executor) SetLogger(logger core.Logger) {
	if logger == nil {
		e.logger = &core.NoOpLogger{}
		return
	}
	e.logger = core.ComponentLogger(logger, "querysynth/orchestration")
}

// Execute performs action. A panic inside an action is recovered and
// reported as a hard failure.
func (e *Executor) Execute(ctx context.Context, task *Task, action Action, ec ExecutionContext, pool *ResourcePool, iteration int) (out ActionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Action panicked", map[string]interface{}{
				"operation": "execute_action",
				"task_id":   task.ID,
				"action":    string(action.Kind),
				"panic":     fmt.Sprintf("%v", r),
				"stack":     string(debug.Stack()),
			})
			out = ActionOutcome{Err: newSynthesisError("Execute", KindInternal,
				fmt.Sprintf("action %s panicked", action.Kind), fmt.Errorf("%v", r))}
		}
	}()

	switch action.Kind {
	case ActionListTables:
		return e.listTables(ctx, task, pool)
	case ActionGetColumns:
		return e.getColumns(ctx, task, action, pool)
	case ActionRegenerateQuery:
		return e.regenerateQuery(ctx, task, ec, pool)
	case ActionRefineQuery:
		return e.refineQuery(ctx, task, ec, pool)
	case ActionRunQuery:
		return e.runQuery(ctx, task, ec, pool, iteration)
	}
	return ActionOutcome{Err: newSynthesisError("Execute", KindReasoningUnavailable,
		fmt.Sprintf("unknown action %q", action.Kind), reasoning.ErrMalformedDecision)}
}

func (e *Executor) listTables(ctx context.Context, task *Task, pool *ResourcePool) ActionOutcome {
	tables, err := e.fetchTables(ctx, task.DataSource)
	if err != nil {
		return ActionOutcome{Err: newSynthesisError("list_tables", KindSchemaUnavailable, "could not list tables", err)}
	}
	if len(tables) == 0 {
		return ActionOutcome{Err: newSynthesisError("list_tables", KindSchemaUnavailable,
			fmt.Sprintf("data source %q exposes no tables", task.DataSource), schema.ErrUnavailable)}
	}

	pool.SetAvailableTables(tables)

	e.logger.Debug("Listed tables", map[string]interface{}{
		"operation":   "list_tables",
		"task_id":     task.ID,
		"table_count": len(tables),
	})
	return ActionOutcome{Delta: ContextDelta{
		Observation: fmt.Sprintf("list_tables: %d tables available", len(pool.AvailableTables())),
	}}
}

// fetchTables lists tables under the schema timeout, retrying once.
func (e *Executor) fetchTables(ctx context.Context, dataSource string) ([]string, error) {
	var tables []string
	err := resilience.Retry(context.WithoutCancel(ctx), e.config.SchemaRetry, func() error {
		t, err := resilience.CallWithTimeout(ctx, e.config.Timeouts.Schema, func(callCtx context.Context) ([]string, error) {
			return e.inspector.ListTables(callCtx, dataSource)
		})
		if err != nil {
			return err
		}
		tables = t
		return nil
	})
	return tables, err
}

func (e *Executor) fetchColumns(ctx context.Context, dataSource string, tables []string) (schema.TableColumns, error) {
	var cols schema.TableColumns
	err := resilience.Retry(context.WithoutCancel(ctx), e.config.SchemaRetry, func() error {
		c, err := resilience.CallWithTimeout(ctx, e.config.Timeouts.Schema, func(callCtx context.Context) (schema.TableColumns, error) {
			return e.inspector.GetColumns(callCtx, dataSource, tables)
		})
		if err != nil {
			return err
		}
		cols = c
		return nil
	})
	return cols, err
}

func (e *Executor) getColumns(ctx context.Context, task *Task, action Action, pool *ResourcePool) ActionOutcome {
	var notes []string

	// Columns are only requested for tables known to exist
	if !pool.SchemaAvailable() {
		tables, err := e.fetchTables(ctx, task.DataSource)
		if err != nil {
			return ActionOutcome{Err: newSynthesisError("get_columns", KindSchemaUnavailable, "could not list tables", err)}
		}
		pool.SetAvailableTables(tables)
		notes = append(notes, fmt.Sprintf("listed %d tables first", len(pool.AvailableTables())))
	}
	known := pool.AvailableTables()

	requested, unknown := resolveTables(action.Tables, known)
	if len(unknown) > 0 {
		notes = append(notes, fmt.Sprintf("ignored unknown tables %s", strings.Join(unknown, ", ")))
	}

	limit := e.config.MaxSelectedTables
	if len(requested) == 0 {
		selected, err := resilience.CallWithTimeout(ctx, e.config.Timeouts.Reasoning, func(callCtx context.Context) ([]string, error) {
			return e.selector.Select(callCtx, task, known, limit)
		})
		if err != nil {
			return ActionOutcome{Err: newSynthesisError("get_columns", KindReasoningUnavailable, "table selection failed", err)}
		}
		requested, _ = resolveTables(selected, known)
		if len(requested) == 0 && len(known) <= limit {
			requested = known
		}
		if len(requested) == 0 {
			notes = append(notes, fmt.Sprintf("no relevant tables identified among %d; name tables explicitly", len(known)))
			return ActionOutcome{Delta: ContextDelta{Observation: "get_columns: " + strings.Join(notes, "; ")}}
		}
		notes = append(notes, fmt.Sprintf("%s selection chose %s", e.selector.Name(), strings.Join(requested, ", ")))
	}
	if limit > 0 && len(requested) > limit {
		requested = requested[:limit]
	}
	pool.SetSelectedTables(requested)

	cols, err := e.fetchColumns(ctx, task.DataSource, requested)
	if err != nil {
		return ActionOutcome{Err: newSynthesisError("get_columns", KindSchemaUnavailable, "could not read column details", err)}
	}

	truncated := pool.MergeColumns(cols)
	if len(truncated) > 0 {
		notes = append(notes, fmt.Sprintf("truncated columns of %s", strings.Join(truncated, ", ")))
	}
	if missing := missingTables(requested, cols); len(missing) > 0 {
		notes = append(notes, fmt.Sprintf("no columns returned for %s", strings.Join(missing, ", ")))
	}

	e.logger.Debug("Fetched column details", map[string]interface{}{
		"operation":       "get_columns",
		"task_id":         task.ID,
		"requested":       len(requested),
		"described":       len(cols),
		"total_described": pool.DescribedTableCount(),
		"truncated":       len(truncated),
	})

	notes = append([]string{fmt.Sprintf("described %d tables", len(cols))}, notes...)
	return ActionOutcome{Delta: ContextDelta{
		Observation:     "get_columns: " + strings.Join(notes, "; "),
		SchemaRefreshed: len(cols) > 0,
	}}
}

func (e *Executor) regenerateQuery(ctx context.Context, task *Task, ec ExecutionContext, pool *ResourcePool) ActionOutcome {
	prompt := e.planner.BuildGeneration(task, ec, pool)
	query, out := e.generate(ctx, "regenerate_query", prompt)
	if out != nil {
		return *out
	}

	pool.SetCurrentQuery(query)
	return ActionOutcome{Delta: ContextDelta{
		Query:            &query,
		Observation:      "regenerate_query: " + describeQuery(query),
		QueryRegenerated: true,
	}}
}

func (e *Executor) refineQuery(ctx context.Context, task *Task, ec ExecutionContext, pool *ResourcePool) ActionOutcome {
	if strings.TrimSpace(ec.CurrentQuery) == "" {
		return ActionOutcome{Delta: ContextDelta{Observation: "refine_query skipped: there is no query to refine"}}
	}

	prompt := e.planner.BuildRefinement(task, ec, pool)
	query, out := e.generate(ctx, "refine_query", prompt)
	if out != nil {
		return *out
	}

	note := "refine_query: " + describeQuery(query)
	if query == ec.CurrentQuery {
		note = "refine_query: query unchanged"
	}
	pool.SetCurrentQuery(query)
	return ActionOutcome{Delta: ContextDelta{Query: &query, Observation: note}}
}

// generate asks for query text and cleans it. A non-nil outcome ends the action.
func (e *Executor) generate(ctx context.Context, op, prompt string) (string, *ActionOutcome) {
	text, err := resilience.CallWithTimeout(ctx, e.config.Timeouts.Reasoning, func(callCtx context.Context) (string, error) {
		return e.reasoner.Generate(callCtx, prompt)
	})
	if err != nil {
		return "", &ActionOutcome{Err: newSynthesisError(op, KindReasoningUnavailable, "query generation failed", err)}
	}

	query := cleanQuery(text)
	if query == "" {
		return "", &ActionOutcome{Delta: ContextDelta{Observation: op + ": reasoning service returned no query"}}
	}
	return query, nil
}

func (e *Executor) runQuery(ctx context.Context, task *Task, ec ExecutionContext, pool *ResourcePool, iteration int) ActionOutcome {
	query := strings.TrimSpace(ec.CurrentQuery)
	if query == "" {
		return ActionOutcome{Delta: ContextDelta{Observation: "run_query skipped: there is no query to run"}}
	}

	if issues := guardQuery(query, pool.AvailableTables(), iteration); len(issues) > 0 {
		e.logger.Info("Query rejected before execution", map[string]interface{}{
			"operation": "run_query",
			"iteration": iteration,
			"issue":     issues[0].Message,
		})
		return ActionOutcome{Delta: ContextDelta{
			Observation: "run_query rejected: " + issues[0].Message,
			Issues:      issues,
		}}
	}

	dataSource := task.DataSource
	res, err := resilience.CallWithTimeout(ctx, e.config.Timeouts.Execution, func(callCtx context.Context) (*sqlexec.Result, error) {
		return e.sandbox.Execute(callCtx, dataSource, query)
	})

	delta := ContextDelta{Executed: true}
	if err != nil {
		sbErr := sandboxError(err)
		delta.TimedOut = sbErr.Kind == sqlexec.KindTimeout
		delta.Issues = []Issue{{
			Iteration: iteration,
			Source:    SourceSandbox,
			Kind:      sbErr.Kind,
			Message:   sbErr.Message,
			Driver:    driverMessage(sbErr),
			Query:     query,
		}}
		delta.Observation = fmt.Sprintf("run_query failed: %s: %s", sbErr.Kind, sbErr.Message)
		pool.SetLastExecution(ExecutionRecord{Query: query, Error: sbErr})

		e.logger.Info("Query execution failed", map[string]interface{}{
			"operation":  "run_query",
			"iteration":  iteration,
			"error_kind": string(sbErr.Kind),
			"error":      sbErr.Message,
		})
		return ActionOutcome{Delta: delta}
	}

	pool.SetLastExecution(ExecutionRecord{Query: query, Columns: res.Columns, RowCount: res.RowCount})

	if issue, ok := e.checkResult(res, query, iteration); !ok {
		delta.Issues = []Issue{issue}
		delta.Observation = "run_query: " + issue.Message
		return ActionOutcome{Delta: delta}
	}

	delta.Succeeded = true
	delta.Rows = res.Rows
	delta.Columns = res.Columns
	delta.Observation = fmt.Sprintf("run_query: %d rows, columns %s", res.RowCount, strings.Join(res.Columns, ", "))
	return ActionOutcome{Delta: delta}
}

// checkResult applies the structural checks a successful execution must pass.
func (e *Executor) checkResult(res *sqlexec.Result, query string, iteration int) (Issue, bool) {
	issue := Issue{Iteration: iteration, Source: SourceResult, Query: query}
	switch {
	case res == nil || len(res.Columns) == 0:
		issue.Message = "query returned no columns"
	case e.config.RequireNonEmptyResult && res.Empty():
		issue.Message = "query returned no rows"
	default:
		return Issue{}, true
	}
	return issue, false
}

// guardQuery rejects statements that must never reach the sandbox and
// references to tables the data source does not have.
func guardQuery(query string, known []string, iteration int) []Issue {
	a := sqlexec.Analyze(query)
	newIssue := func(kind sqlexec.ErrorKind, msg string) []Issue {
		return []Issue{{Iteration: iteration, Source: SourceGuard, Kind: kind, Message: msg, Query: query}}
	}

	if a.MultiStmt {
		return newIssue(sqlexec.KindReadOnly, "multiple statements are not allowed; send a single SELECT")
	}
	if !a.Parsed {
		return nil
	}
	if !a.ReadOnly {
		return newIssue(sqlexec.KindReadOnly, fmt.Sprintf("only read-only SELECT statements may run, got %s", a.StatementType))
	}
	if unknown := a.UnknownTables(known); len(unknown) > 0 {
		return newIssue(sqlexec.KindMissing, fmt.Sprintf("table %s not found in known tables", strings.Join(unknown, ", ")))
	}
	return nil
}

// sandboxError turns any execution failure into a structured error
func sandboxError(err error) *sqlexec.Error {
	if sbErr, ok := sqlexec.AsError(err); ok {
		return sbErr
	}
	if errors.Is(err, core.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return &sqlexec.Error{Kind: sqlexec.KindTimeout, Message: err.Error(), Err: err}
	}
	return sqlexec.ClassifyDriverError("", err)
}

func driverMessage(e *sqlexec.Error) string {
	if e.Err == nil {
		return ""
	}
	if msg := e.Err.Error(); msg != e.Message {
		return msg
	}
	return ""
}

// resolveTables maps requested names onto the known list, case-insensitively.
func resolveTables(requested, known []string) (resolved, unknown []string) {
	if len(requested) == 0 {
		return nil, nil
	}
	index := make(map[string]string, len(known))
	for _, k := range known {
		index[strings.ToLower(k)] = k
	}
	seen := make(map[string]bool, len(requested))
	for _, r := range requested {
		canonical, ok := index[strings.ToLower(r)]
		if !ok {
			unknown = append(unknown, r)
			continue
		}
		if !seen[canonical] {
			seen[canonical] = true
			resolved = append(resolved, canonical)
		}
	}
	return resolved, unknown
}

func missingTables(requested []string, got schema.TableColumns) []string {
	var missing []string
	for _, t := range requested {
		if _, ok := got[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}

func describeQuery(query string) string {
	a := sqlexec.Analyze(query)
	if a.Parsed && len(a.Tables) > 0 {
		return fmt.Sprintf("drafted query over %s", strings.Join(a.Tables, ", "))
	}
	return "drafted query"
}

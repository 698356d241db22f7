package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/reasoning"
	"github.com/itsneelabh/querysynth/resilience"
	"github.com/itsneelabh/querysynth/schema"
	"github.com/itsneelabh/querysynth/sqlexec"
)

// OrchestratorConfig holds the loop budgets and per-call timeouts.
type OrchestratorConfig struct {
	Synthesis core.SynthesisConfig
	Timeouts  core.TimeoutConfig

	// SchemaRetryDelay is the pause before the single schema retry
	SchemaRetryDelay time.Duration
}

// DefaultConfig returns the default loop configuration
func DefaultConfig() *OrchestratorConfig {
	return ConfigFromCore(core.DefaultConfig())
}

// ConfigFromCore extracts the orchestration settings from a full configuration
func ConfigFromCore(cfg *core.Config) *OrchestratorConfig {
	return &OrchestratorConfig{
		Synthesis:        cfg.Synthesis,
		Timeouts:         cfg.Timeouts,
		SchemaRetryDelay: 100 * time.Millisecond,
	}
}

// Dependencies are the collaborators an orchestrator drives.
type Dependencies struct {
	// Required
	Inspector schema.Inspector
	Sandbox   sqlexec.Sandbox
	Reasoner  reasoning.Service

	// Optional (can be nil)
	Selector     TableSelector // built from Synthesis.SelectionStrategy when nil
	TokenCounter TokenCounter  // tiktoken cl100k_base when nil
	Logger       core.Logger
}

// SynthesisResult is what a task ends with. Query and Issues are always
// populated with what was last tried, whatever the status.
type SynthesisResult struct {
	TaskID            string          `json:"task_id"`
	Status            State           `json:"status"`
	Query             string          `json:"query"`
	Issues            []Issue         `json:"issues"`
	AttemptsUsed      int             `json:"attempts_used"`
	ExecutionAttempts int             `json:"execution_attempts"`
	Iterations        int             `json:"iterations"`
	Columns           []string        `json:"columns,omitempty"`
	Rows              [][]interface{} `json:"rows,omitempty"`
	Message           string          `json:"message"`
	ErrorKind         ErrorKind       `json:"error_kind,omitempty"`
	Duration          time.Duration   `json:"duration"`
	Err               error           `json:"-"`
}

// OrchestratorMetrics are counters across every task an orchestrator ran
type OrchestratorMetrics struct {
	TasksStarted   int64 `json:"tasks_started"`
	TasksDone      int64 `json:"tasks_done"`
	TasksFailed    int64 `json:"tasks_failed"`
	TasksCancelled int64 `json:"tasks_cancelled"`
	Iterations     int64 `json:"iterations"`
	Executions     int64 `json:"executions"`
	Repairs        int64 `json:"repairs"`
}

type orchestratorStats struct {
	tasksStarted   atomic.Int64
	tasksDone      atomic.Int64
	tasksFailed    atomic.Int64
	tasksCancelled atomic.Int64
	iterations     atomic.Int64
	executions     atomic.Int64
	repairs        atomic.Int64
}

// Orchestrator runs synthesis tasks. It holds no per-task state: every
// call to Synthesize gets its own ExecutionContext and ResourcePool, so
// one orchestrator can serve concurrent tasks.
type Orchestrator struct {
	config     OrchestratorConfig
	reasoner   reasoning.Service
	planner    *Planner
	executor   *Executor
	classifier *ErrorClassifier
	progress   progressHub
	stats      orchestratorStats
	logger     core.Logger
}

// CreateOrchestrator wires an orchestrator from its configuration and collaborators.
func CreateOrchestrator(config *OrchestratorConfig, deps Dependencies) (*Orchestrator, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Inspector == nil || deps.Sandbox == nil || deps.Reasoner == nil {
		return nil, &core.FrameworkError{
			Op:      "CreateOrchestrator",
			Kind:    "config",
			Message: "schema inspector, sandbox and reasoning service are required",
			Err:     core.ErrMissingConfiguration,
		}
	}
	if config.Synthesis.MaxFixAttempts < 1 || config.Synthesis.MaxIterations < 1 {
		return nil, &core.FrameworkError{
			Op:      "CreateOrchestrator",
			Kind:    "config",
			Message: fmt.Sprintf("invalid budgets: max fix attempts %d, max iterations %d", config.Synthesis.MaxFixAttempts, config.Synthesis.MaxIterations),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	counter := deps.TokenCounter
	if counter == nil {
		counter = DefaultTokenCounter()
	}
	selector := deps.Selector
	if selector == nil {
		selector = NewTableSelector(config.Synthesis.SelectionStrategy, deps.Reasoner, config.Synthesis.KeywordSelectionThreshold)
	}

	strategy := NewContextStrategy(config.Synthesis.ContextMode, config.Synthesis.PromptTokenBudget, counter)
	planner := NewPlanner(strategy, counter, config.Synthesis.MaxFixAttempts)
	executor := NewExecutor(deps.Inspector, deps.Sandbox, deps.Reasoner, planner, selector, ExecutorConfig{
		Timeouts:              config.Timeouts,
		SchemaRetry:           resilience.SingleRetryConfig(config.SchemaRetryDelay),
		MaxSelectedTables:     config.Synthesis.MaxSelectedTables,
		RequireNonEmptyResult: config.Synthesis.RequireNonEmptyResult,
	})

	o := &Orchestrator{
		config:     *config,
		reasoner:   deps.Reasoner,
		planner:    planner,
		executor:   executor,
		classifier: NewErrorClassifier(),
	}
	o.SetLogger(deps.Logger)

	o.logger.Info("Created orchestrator", map[string]interface{}{
		"operation":          "orchestrator_creation",
		"context_mode":       strategy.Name(),
		"selection_strategy": selector.Name(),
		"max_fix_attempts":   config.Synthesis.MaxFixAttempts,
		"max_iterations":     config.Synthesis.MaxIterations,
	})
	return o, nil
}

// SetLogger sets the logger on the orchestrator and its executor
func (o *Orchestrator) SetLogger(logger core.Logger) {
	if logger == nil {
		o.logger = &core.NoOpLogger{}
	} else {
		o.logger = core.ComponentLogger(logger, "querysynth/orchestration")
	}
	o.executor.SetLogger(logger)
}

// OnProgress registers a callback for per-iteration progress events
func (o *Orchestrator) OnProgress(cb ProgressCallback) {
	if cb != nil {
		o.progress.add(cb)
	}
}

// Metrics returns counters across all tasks run so far
func (o *Orchestrator) Metrics() OrchestratorMetrics {
	return OrchestratorMetrics{
		TasksStarted:   o.stats.tasksStarted.Load(),
		TasksDone:      o.stats.tasksDone.Load(),
		TasksFailed:    o.stats.tasksFailed.Load(),
		TasksCancelled: o.stats.tasksCancelled.Load(),
		Iterations:     o.stats.iterations.Load(),
		Executions:     o.stats.executions.Load(),
		Repairs:        o.stats.repairs.Load(),
	}
}

// Synthesize produces a verified query for description against dataSource.
// The error is non-nil only for invalid input; a task that runs always
// ends in a result, with FAILED and CANCELLED outcomes carrying Err.
func (o *Orchestrator) Synthesize(ctx context.Context, description, dataSource string) (*SynthesisResult, error) {
	task, err := NewTask(description, dataSource)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, task), nil
}

// Run executes the loop for an already created task.
func (o *Orchestrator) Run(ctx context.Context, task *Task) *SynthesisResult {
	start := time.Now()
	o.stats.tasksStarted.Add(1)

	ctx, span := startTaskSpan(ctx, task, o.planner.Strategy().Name())

	o.logger.Info("Starting synthesis", map[string]interface{}{
		"operation":    "synthesize",
		"task_id":      task.ID,
		"data_source":  task.DataSource,
		"context_mode": o.planner.Strategy().Name(),
	})

	run := &taskRun{
		o:    o,
		task: task,
		ec:   newExecutionContext(o.config.Synthesis),
		pool: NewResourcePool(o.config.Synthesis.MaxColumnsPerTable),
	}
	result := run.loop(ctx)
	result.Duration = time.Since(start)

	switch result.Status {
	case StateDone:
		o.stats.tasksDone.Add(1)
	case StateCancelled:
		o.stats.tasksCancelled.Add(1)
	default:
		o.stats.tasksFailed.Add(1)
	}
	recordTask(result, start)
	finishTaskSpan(span, result)

	fields := map[string]interface{}{
		"operation":          "synthesize",
		"task_id":            task.ID,
		"status":             string(result.Status),
		"attempts_used":      result.AttemptsUsed,
		"execution_attempts": result.ExecutionAttempts,
		"iterations":         result.Iterations,
		"duration_ms":        result.Duration.Milliseconds(),
	}
	if result.Status == StateDone {
		o.logger.Info("Synthesis complete", fields)
	} else {
		fields["error_kind"] = string(result.ErrorKind)
		fields["message"] = result.Message
		o.logger.Warn("Synthesis did not produce a verified query", fields)
	}
	return result
}

// taskRun is the state of one task. The ExecutionContext is only mutated here.
type taskRun struct {
	o     *Orchestrator
	task  *Task
	ec    *ExecutionContext
	pool  *ResourcePool
	state State
}

func (r *taskRun) loop(ctx context.Context) *SynthesisResult {
	cfg := r.o.config.Synthesis
	r.state = StateInit

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		// Cancellation is only observed between iterations
		if err := ctx.Err(); err != nil {
			r.transition(StateCancelled)
			r.emit(iteration, "")
			return r.result(iteration-1, newSynthesisError("Synthesize", KindCancelled, "synthesis cancelled", err))
		}

		r.o.stats.iterations.Add(1)
		r.pool.SetIteration(iteration)

		if res := r.iterate(ctx, iteration); res != nil {
			return res
		}
	}

	r.transition(StateFailed)
	r.emit(cfg.MaxIterations, "")
	return r.result(cfg.MaxIterations, newSynthesisError("Synthesize", KindBudgetExhausted,
		fmt.Sprintf("iteration ceiling of %d reached without a verified query", cfg.MaxIterations), nil))
}

// iterate runs one PLANNING → ACTING → VALIDATING pass. It returns a
// result once the task has reached a terminal state.
func (r *taskRun) iterate(ctx context.Context, iteration int) (res *SynthesisResult) {
	cfg := r.o.config.Synthesis
	ctx, span := startIterationSpan(ctx, iteration)

	var action Action
	var spanErr error
	defer func() {
		endIterationSpan(span, r.state, action.Kind, spanErr)
	}()

	fail := func(serr *SynthesisError) *SynthesisResult {
		spanErr = serr
		r.transition(StateFailed)
		r.emit(iteration, action.Kind)
		return r.result(iteration, serr)
	}

	r.transition(StatePlanning)
	prompt := r.o.planner.BuildDecision(r.task, r.ec.View(), r.pool, iteration, cfg.MaxIterations)
	recordPrompt(ctx, prompt, r.o.planner.Strategy().Name())

	r.transition(StateActing)
	decision, err := resilience.CallWithTimeout(ctx, r.o.config.Timeouts.Reasoning, func(callCtx context.Context) (*reasoning.Decision, error) {
		return r.o.reasoner.Decide(callCtx, prompt.Text, prompt.ActionNames())
	})
	if err != nil {
		return fail(newSynthesisError("Decide", KindReasoningUnavailable, "reasoning service failed to choose an action", err))
	}

	action, err = ParseAction(decision)
	if err != nil {
		var serr *SynthesisError
		if !errors.As(err, &serr) {
			serr = newSynthesisError("ParseAction", KindReasoningUnavailable, err.Error(), err)
		}
		return fail(serr)
	}

	r.o.logger.Debug("Performing action", map[string]interface{}{
		"operation":     "synthesize_iteration",
		"task_id":       r.task.ID,
		"iteration":     iteration,
		"action":        string(action.Kind),
		"repair":        prompt.Repair,
		"hint":          prompt.Hint,
		"prompt_tokens": prompt.Tokens,
	})

	start := time.Now()
	outcome := r.o.executor.Execute(ctx, r.task, action, r.ec.View(), r.pool, iteration)
	recordAction(ctx, action.Kind, start, outcome)
	if outcome.Err != nil {
		return fail(outcome.Err)
	}

	r.ec.apply(outcome.Delta)
	if outcome.Delta.Executed {
		r.o.stats.executions.Add(1)
	}

	// Only a run_query that reached validation can end or repair the task
	if !outcome.Delta.Succeeded && !outcome.Delta.Failed() {
		r.emit(iteration, action.Kind)
		return nil
	}

	r.transition(StateValidating)
	if outcome.Delta.Succeeded {
		r.transition(StateDone)
		r.emit(iteration, action.Kind)
		return r.result(iteration, nil)
	}

	cl := r.o.classifier.Classify(r.ec.ValidationIssues, r.pool.DescribedTableCount() > 0, r.ec.ConsecutiveTimeouts)
	r.ec.recordClassification(cl)
	recordRepair(ctx, cl, r.ec.FixAttempts)

	if !cl.Repairable {
		msg := "execution denied: " + cl.Summary
		if cl.Category == CategoryTimeout {
			msg = fmt.Sprintf("query timed out %d times in a row", r.ec.ConsecutiveTimeouts)
		}
		return fail(newSynthesisError("Validate", KindExecutionDenied, msg, nil))
	}

	r.ec.FixAttempts++
	r.o.stats.repairs.Add(1)
	if r.ec.FixAttempts >= cfg.MaxFixAttempts {
		return fail(newSynthesisError("Validate", KindBudgetExhausted,
			fmt.Sprintf("repair budget exhausted after %d attempts; last error: %s", r.ec.FixAttempts, cl.Summary), ErrQueryInvalid))
	}

	r.transition(StateRepairing)
	r.o.logger.Info("Query failed validation, repairing", map[string]interface{}{
		"operation":    "synthesize_repair",
		"task_id":      r.task.ID,
		"iteration":    iteration,
		"category":     string(cl.Category),
		"fix_attempts": r.ec.FixAttempts,
		"hint":         RepairHint(*r.ec),
	})
	r.emit(iteration, action.Kind)
	return nil
}

func (r *taskRun) transition(next State) {
	if r.state != "" && r.state != next && !r.state.CanTransition(next) {
		r.o.logger.Warn("Unexpected state transition", map[string]interface{}{
			"operation": "synthesize_transition",
			"task_id":   r.task.ID,
			"from":      string(r.state),
			"to":        string(next),
		})
	}
	r.state = next
}

func (r *taskRun) emit(iteration int, action ActionKind) {
	r.o.progress.emit(ProgressEvent{
		TaskID:       r.task.ID,
		Iteration:    iteration,
		State:        r.state,
		Action:       string(action),
		FixAttempts:  r.ec.FixAttempts,
		ErrorSummary: r.ec.LastErrorSummary,
		Timestamp:    time.Now(),
	}, r.o.logger)
}

func (r *taskRun) result(iterations int, serr *SynthesisError) *SynthesisResult {
	res := &SynthesisResult{
		TaskID:            r.task.ID,
		Status:            r.state,
		Query:             r.ec.CurrentQuery,
		Issues:            append([]Issue{}, r.ec.IssueHistory...),
		AttemptsUsed:      r.ec.FixAttempts,
		ExecutionAttempts: r.ec.ExecutionAttempts,
		Iterations:        iterations,
	}

	if serr == nil {
		res.Columns = r.ec.LastColumns
		res.Rows = r.ec.LastRows
		res.Message = fmt.Sprintf("query verified after %d repair attempts", r.ec.FixAttempts)
		return res
	}

	res.Err = serr
	res.ErrorKind = serr.Kind
	res.Message = serr.Message
	if res.Message == "" {
		res.Message = serr.Error()
	}
	return res
}

package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/reasoning"
	"github.com/itsneelabh/querysynth/sqlexec"
)

const monthlyComplaints = "SELECT COUNT(*) FROM complaints WHERE created_at >= date_trunc('month', now())"

// Scenario: schema discovered, query generated and verified on the first run
func TestSynthesize_FirstAttemptSucceeds(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("get_columns", "tables", []interface{}{"complaints"}),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{"```sql\n" + monthlyComplaints + ";\n```"},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{succeeds(rows(1))}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, err := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if result.Status != StateDone {
		t.Fatalf("Status = %s, want DONE (message: %s)", result.Status, result.Message)
	}
	if result.AttemptsUsed != 0 {
		t.Errorf("AttemptsUsed = %d, want 0", result.AttemptsUsed)
	}
	if result.Query != monthlyComplaints {
		t.Errorf("Query = %q, want %q", result.Query, monthlyComplaints)
	}
	if !strings.Contains(result.Query, "complaints") {
		t.Errorf("Query does not reference complaints: %q", result.Query)
	}
	if result.ExecutionAttempts != 1 || sandbox.Calls() != 1 {
		t.Errorf("executions = %d (sandbox %d), want 1", result.ExecutionAttempts, sandbox.Calls())
	}
	if result.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", result.Iterations)
	}
	if len(result.Rows) != 1 || result.Columns[0] != "count" {
		t.Errorf("unexpected rows %v / columns %v", result.Rows, result.Columns)
	}
	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}
	if sandbox.queries[0] != monthlyComplaints {
		t.Errorf("sandbox ran %q, want the cleaned query", sandbox.queries[0])
	}
}

// Scenario: a wrong column name with schema known leads to regeneration
func TestSynthesize_MissingColumnRegenerates(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("get_columns", "tables", []interface{}{"complaints"}),
			decide("regenerate_query"),
			decide("run_query"),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{
			"SELECT complaint_count FROM complaints",
			"SELECT COUNT(*) FROM complaints",
		},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{
		fails(sqlexec.KindMissing, `column "complaint_count" does not exist`),
		succeeds(rows(1)),
	}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, err := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if result.Status != StateDone {
		t.Fatalf("Status = %s, want DONE (message: %s)", result.Status, result.Message)
	}
	if result.AttemptsUsed != 1 {
		t.Errorf("AttemptsUsed = %d, want 1", result.AttemptsUsed)
	}
	if len(result.Issues) != 1 || result.Issues[0].Category != CategoryMissingFieldOrTable {
		t.Fatalf("Issues = %+v, want one missing_field_or_table issue", result.Issues)
	}

	repairPrompt := reasoner.Prompt(4)
	if !strings.Contains(repairPrompt, HintRegenerate) {
		t.Errorf("repair prompt lacks regeneration hint:\n%s", repairPrompt)
	}
	if !strings.Contains(repairPrompt, "Attempt 1 of 3") {
		t.Errorf("repair prompt lacks attempt count:\n%s", repairPrompt)
	}
	if !strings.Contains(repairPrompt, "complaint_count") {
		t.Errorf("repair prompt lacks the failed query:\n%s", repairPrompt)
	}
}

// Scenario: three syntax errors exhaust the budget
func TestSynthesize_SyntaxErrorsExhaustBudget(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("get_columns", "tables", []interface{}{"complaints"}),
			decide("regenerate_query"),
			decide("run_query"),
			decide("refine_query"),
			decide("run_query"),
			decide("refine_query"),
			decide("run_query"),
			decide("refine_query"),
			decide("run_query"),
		},
		generations: []string{
			"SELECT COUNT(*) FORM complaints",
			"SELECT COUNT(*) FORM complaints c",
			"SELECT COUNT(*) FROMM complaints",
			"SELECT COUNT(*) FROM complaints",
		},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{
		fails(sqlexec.KindSyntax, `syntax error at or near "FORM"`),
	}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, err := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if result.Status != StateFailed {
		t.Fatalf("Status = %s, want FAILED", result.Status)
	}
	if !errors.Is(result.Err, ErrBudgetExhausted) {
		t.Errorf("Err = %v, want ErrBudgetExhausted", result.Err)
	}
	if result.AttemptsUsed != 3 {
		t.Errorf("AttemptsUsed = %d, want 3", result.AttemptsUsed)
	}
	if len(result.Issues) != 3 {
		t.Errorf("len(Issues) = %d, want 3", len(result.Issues))
	}
	for _, issue := range result.Issues {
		if issue.Category != CategorySyntaxError {
			t.Errorf("issue category = %s, want syntax_error", issue.Category)
		}
	}
	if sandbox.Calls() != 3 {
		t.Errorf("sandbox calls = %d, want 3", sandbox.Calls())
	}
	if result.Query == "" {
		t.Error("failed result must carry the last query")
	}
	if !strings.Contains(reasoner.Prompt(4), HintRefine) {
		t.Errorf("repair prompt lacks refine hint:\n%s", reasoner.Prompt(4))
	}
}

// Scenario: permission errors fail immediately
func TestSynthesize_PermissionErrorFailsImmediately(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("get_columns", "tables", []interface{}{"complaints"}),
			decide("regenerate_query"),
			decide("run_query"),
			decide("run_query"),
		},
		generations: []string{"SELECT COUNT(*) FROM complaints"},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{
		fails(sqlexec.KindPermission, "permission denied for table complaints"),
	}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, err := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	if result.Status != StateFailed {
		t.Fatalf("Status = %s, want FAILED", result.Status)
	}
	if !errors.Is(result.Err, ErrExecutionDenied) {
		t.Errorf("Err = %v, want ErrExecutionDenied", result.Err)
	}
	if result.AttemptsUsed != 0 {
		t.Errorf("AttemptsUsed = %d, want 0", result.AttemptsUsed)
	}
	if sandbox.Calls() != 1 {
		t.Errorf("sandbox calls = %d, want exactly 1", sandbox.Calls())
	}
	if reasoner.decideCalls != 4 {
		t.Errorf("decide calls = %d, want 4", reasoner.decideCalls)
	}
	if len(result.Issues) != 1 || result.Issues[0].Category != CategoryPermissionOrConnection {
		t.Errorf("Issues = %+v", result.Issues)
	}
}

func TestSynthesize_ExecutionsBoundedByBudget(t *testing.T) {
	for _, maxFix := range []int{1, 2, 3, 5} {
		cfg := testConfig()
		cfg.Synthesis.MaxFixAttempts = maxFix
		cfg.Synthesis.MaxIterations = 40

		reasoner := &scriptedReasoner{
			decideFn: func(call int, prompt string, actions []string) (*reasoning.Decision, error) {
				if call%2 == 0 {
					return decide("regenerate_query"), nil
				}
				return decide("run_query"), nil
			},
		}
		reasoner.generations = make([]string, 40)
		for i := range reasoner.generations {
			reasoner.generations[i] = "SELECT broken FROM complaints"
		}
		sandbox := &fakeSandbox{replies: []sandboxReply{
			fails(sqlexec.KindSyntax, "syntax error near broken"),
		}}
		o := newTestOrchestrator(t, cfg, complaintsInspector(), sandbox, reasoner)

		result, _ := o.Synthesize(context.Background(), "complaints", testDataSource)
		if result.Status != StateFailed {
			t.Fatalf("max=%d: Status = %s, want FAILED", maxFix, result.Status)
		}
		if result.AttemptsUsed > maxFix+1 || sandbox.Calls() > maxFix+1 {
			t.Errorf("max=%d: attempts %d, executions %d exceed budget", maxFix, result.AttemptsUsed, sandbox.Calls())
		}
		if result.AttemptsUsed != maxFix {
			t.Errorf("max=%d: AttemptsUsed = %d", maxFix, result.AttemptsUsed)
		}
	}
}

func TestSynthesize_CancelledBeforeStart(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []*reasoning.Decision{decide("list_tables")}}
	sandbox := &fakeSandbox{}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	var events []ProgressEvent
	o.OnProgress(func(ev ProgressEvent) { events = append(events, ev) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := o.Synthesize(ctx, "total complaints", testDataSource)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if result.Status != StateCancelled {
		t.Fatalf("Status = %s, want CANCELLED", result.Status)
	}
	if !errors.Is(result.Err, ErrCancelled) || !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Err = %v, want ErrCancelled wrapping context.Canceled", result.Err)
	}
	if reasoner.decideCalls != 0 || sandbox.Calls() != 0 {
		t.Errorf("collaborators called after cancellation: decide=%d sandbox=%d", reasoner.decideCalls, sandbox.Calls())
	}
	if len(events) != 1 || events[0].State != StateCancelled {
		t.Errorf("events = %+v, want one CANCELLED event", events)
	}
}

func TestSynthesize_CancelledBetweenIterations(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{decide("list_tables"), decide("get_columns")},
	}
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, reasoner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.OnProgress(func(ev ProgressEvent) {
		if ev.Iteration == 1 {
			cancel()
		}
	})

	result, _ := o.Synthesize(ctx, "total complaints", testDataSource)
	if result.Status != StateCancelled {
		t.Fatalf("Status = %s, want CANCELLED", result.Status)
	}
	if reasoner.decideCalls != 1 {
		t.Errorf("decide calls = %d, want 1", reasoner.decideCalls)
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
}

func TestSynthesize_UnknownActionFails(t *testing.T) {
	reasoner := &scriptedReasoner{decisions: []*reasoning.Decision{decide("drop_database")}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateFailed {
		t.Fatalf("Status = %s, want FAILED", result.Status)
	}
	if !errors.Is(result.Err, ErrReasoningUnavailable) {
		t.Errorf("Err = %v, want ErrReasoningUnavailable", result.Err)
	}
	if result.ErrorKind != KindReasoningUnavailable {
		t.Errorf("ErrorKind = %s", result.ErrorKind)
	}
}

func TestSynthesize_ReasoningFailure(t *testing.T) {
	reasoner := &scriptedReasoner{decideErr: reasoning.ErrUnavailable}
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateFailed || !errors.Is(result.Err, ErrReasoningUnavailable) {
		t.Fatalf("got %s / %v, want FAILED with ErrReasoningUnavailable", result.Status, result.Err)
	}
	if !errors.Is(result.Err, reasoning.ErrUnavailable) {
		t.Errorf("cause not preserved: %v", result.Err)
	}
	if reasoner.decideCalls != 1 {
		t.Errorf("decide calls = %d, want no retries", reasoner.decideCalls)
	}
}

func TestSynthesize_GenerationFailure(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions:   []*reasoning.Decision{decide("regenerate_query")},
		generateErr: errors.New("model overloaded"),
	}
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if !errors.Is(result.Err, ErrReasoningUnavailable) {
		t.Fatalf("Err = %v, want ErrReasoningUnavailable", result.Err)
	}
}

func TestSynthesize_IterationCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.Synthesis.MaxIterations = 5
	reasoner := &scriptedReasoner{
		decideFn: func(call int, prompt string, actions []string) (*reasoning.Decision, error) {
			return decide("list_tables"), nil
		},
	}
	sandbox := &fakeSandbox{}
	o := newTestOrchestrator(t, cfg, complaintsInspector(), sandbox, reasoner)

	var events []ProgressEvent
	o.OnProgress(func(ev ProgressEvent) { events = append(events, ev) })

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateFailed {
		t.Fatalf("Status = %s, want FAILED", result.Status)
	}
	if !errors.Is(result.Err, ErrBudgetExhausted) {
		t.Errorf("Err = %v, want ErrBudgetExhausted", result.Err)
	}
	if len(events) == 0 || events[len(events)-1].State != StateFailed {
		t.Errorf("last progress event = %+v, want FAILED", events)
	}
	if result.Iterations != 5 || reasoner.decideCalls != 5 {
		t.Errorf("Iterations = %d, decide calls = %d, want 5", result.Iterations, reasoner.decideCalls)
	}
	if sandbox.Calls() != 0 {
		t.Errorf("sandbox calls = %d, want 0", sandbox.Calls())
	}
}

func TestSynthesize_RunWithoutQueryIsObservation(t *testing.T) {
	cfg := testConfig()
	cfg.Synthesis.MaxIterations = 3
	reasoner := &scriptedReasoner{
		decideFn: func(call int, prompt string, actions []string) (*reasoning.Decision, error) {
			return decide("run_query"), nil
		},
	}
	sandbox := &fakeSandbox{}
	o := newTestOrchestrator(t, cfg, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if sandbox.Calls() != 0 {
		t.Errorf("sandbox calls = %d, want 0", sandbox.Calls())
	}
	if result.Status != StateFailed || result.Iterations != 3 {
		t.Errorf("got %s after %d iterations", result.Status, result.Iterations)
	}
	for _, set := range reasoner.actionSets {
		for _, a := range set {
			if a == string(ActionRunQuery) || a == string(ActionRefineQuery) {
				t.Errorf("action %s offered without a query", a)
			}
		}
	}
	if !strings.Contains(reasoner.Prompt(1), "run_query skipped") {
		t.Errorf("second prompt lacks the skipped observation:\n%s", reasoner.Prompt(1))
	}
}

func TestSynthesize_RepeatedTimeoutFails(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("regenerate_query"),
			decide("run_query"),
			decide("run_query"),
			decide("run_query"),
		},
		generations: []string{"SELECT COUNT(*) FROM complaints"},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{
		fails(sqlexec.KindTimeout, "canceling statement due to statement timeout"),
	}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateFailed {
		t.Fatalf("Status = %s, want FAILED", result.Status)
	}
	if !errors.Is(result.Err, ErrExecutionDenied) {
		t.Errorf("Err = %v, want ErrExecutionDenied", result.Err)
	}
	if sandbox.Calls() != 2 {
		t.Errorf("sandbox calls = %d, want 2", sandbox.Calls())
	}
	if result.AttemptsUsed != 1 {
		t.Errorf("AttemptsUsed = %d, want 1 (first timeout repaired once)", result.AttemptsUsed)
	}
}

func TestSynthesize_SandboxDeadline(t *testing.T) {
	cfg := testConfig()
	cfg.Timeouts.Execution = 20 * time.Millisecond
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("regenerate_query"),
			decide("run_query"),
			decide("run_query"),
		},
		generations: []string{"SELECT COUNT(*) FROM complaints"},
	}
	sandbox := &fakeSandbox{delay: time.Second}
	o := newTestOrchestrator(t, cfg, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateFailed || !errors.Is(result.Err, ErrExecutionDenied) {
		t.Fatalf("got %s / %v, want FAILED after repeated timeouts", result.Status, result.Err)
	}
	if len(result.Issues) != 2 || result.Issues[0].Kind != sqlexec.KindTimeout {
		t.Errorf("Issues = %+v, want two timeout issues", result.Issues)
	}
}

func TestSynthesize_SchemaRetriedOnce(t *testing.T) {
	t.Run("recovers after one failure", func(t *testing.T) {
		inspector := &flakyInspector{Inspector: complaintsInspector(), listFailures: 1}
		reasoner := &scriptedReasoner{
			decisions: []*reasoning.Decision{
				decide("list_tables"),
				decide("get_columns", "tables", []interface{}{"complaints"}),
				decide("regenerate_query"),
				decide("run_query"),
			},
			generations: []string{"SELECT COUNT(*) FROM complaints"},
		}
		o := newTestOrchestrator(t, nil, inspector, &fakeSandbox{}, reasoner)

		result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
		if result.Status != StateDone {
			t.Fatalf("Status = %s (%s), want DONE", result.Status, result.Message)
		}
		if inspector.listCalls != 2 {
			t.Errorf("ListTables calls = %d, want 2", inspector.listCalls)
		}
	})

	t.Run("fails after the retry", func(t *testing.T) {
		inspector := &flakyInspector{Inspector: complaintsInspector(), listFailures: 5}
		reasoner := &scriptedReasoner{decisions: []*reasoning.Decision{decide("list_tables")}}
		o := newTestOrchestrator(t, nil, inspector, &fakeSandbox{}, reasoner)

		result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
		if result.Status != StateFailed || !errors.Is(result.Err, ErrSchemaUnavailable) {
			t.Fatalf("got %s / %v, want FAILED with ErrSchemaUnavailable", result.Status, result.Err)
		}
		if inspector.listCalls != 2 {
			t.Errorf("ListTables calls = %d, want exactly 2", inspector.listCalls)
		}
	})
}

func TestSynthesize_GuardRejectsWrites(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("regenerate_query"),
			decide("run_query"),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{"DELETE FROM complaints", "SELECT COUNT(*) FROM complaints"},
	}
	sandbox := &fakeSandbox{}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateDone {
		t.Fatalf("Status = %s (%s), want DONE", result.Status, result.Message)
	}
	if sandbox.Calls() != 1 {
		t.Errorf("sandbox calls = %d, want only the SELECT", sandbox.Calls())
	}
	if len(result.Issues) != 1 || result.Issues[0].Source != SourceGuard {
		t.Errorf("Issues = %+v, want one guard issue", result.Issues)
	}
	if result.ExecutionAttempts != 1 {
		t.Errorf("ExecutionAttempts = %d, want 1", result.ExecutionAttempts)
	}
}

func TestSynthesize_UnknownTableNeedsSchemaRefresh(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{"SELECT COUNT(*) FROM complaint"},
	}
	sandbox := &fakeSandbox{}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if sandbox.Calls() != 0 {
		t.Errorf("sandbox calls = %d, want 0", sandbox.Calls())
	}
	if len(result.Issues) == 0 || result.Issues[0].Category != CategoryMissingFieldOrTable {
		t.Fatalf("Issues = %+v", result.Issues)
	}
	// No column details were fetched, so the hint asks for schema first
	if !strings.Contains(reasoner.Prompt(3), HintSchemaRefresh) {
		t.Errorf("repair prompt lacks schema refresh hint:\n%s", reasoner.Prompt(3))
	}
}

// Columns fetched after a refresh hint lead to regeneration, not refinement
func TestSynthesize_SchemaRefreshThenRegenerate(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("regenerate_query"),
			decide("run_query"),
			decide("get_columns", "tables", []interface{}{"complaints"}),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{
			"SELECT complaint_count FROM complaints",
			"SELECT COUNT(*) FROM complaints",
		},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{
		fails(sqlexec.KindMissing, `column "complaint_count" does not exist`),
		succeeds(rows(1)),
	}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
	if result.Status != StateDone {
		t.Fatalf("Status = %s (%s), want DONE", result.Status, result.Message)
	}
	if !strings.Contains(reasoner.Prompt(3), HintSchemaRefresh) {
		t.Errorf("prompt after the failure lacks schema refresh hint:\n%s", reasoner.Prompt(3))
	}
	afterColumns := reasoner.Prompt(4)
	if !strings.Contains(afterColumns, HintRegenerate) {
		t.Errorf("prompt after get_columns lacks regeneration hint:\n%s", afterColumns)
	}
	if strings.Contains(afterColumns, HintRefine) {
		t.Errorf("prompt after get_columns still suggests refinement:\n%s", afterColumns)
	}
}

func TestSynthesize_EmptyResultIsRepaired(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("get_columns", "tables", []interface{}{"complaints"}),
			decide("regenerate_query"),
			decide("run_query"),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{
			"SELECT id FROM complaints WHERE 1 = 0",
			"SELECT COUNT(*) FROM complaints",
		},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{succeeds(rows(0)), succeeds(rows(1))}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateDone {
		t.Fatalf("Status = %s (%s), want DONE", result.Status, result.Message)
	}
	if result.AttemptsUsed != 1 || result.Issues[0].Category != CategoryEmptyResult {
		t.Errorf("AttemptsUsed = %d, Issues = %+v", result.AttemptsUsed, result.Issues)
	}
}

func TestSynthesize_ExecutorPanicIsRecovered(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions:   []*reasoning.Decision{decide("regenerate_query"), decide("run_query")},
		generations: []string{"SELECT COUNT(*) FROM complaints"},
	}
	logger := &TestLogger{}
	o, err := CreateOrchestrator(testConfig(), Dependencies{
		Inspector:    complaintsInspector(),
		Sandbox:      &fakeSandbox{panicOn: 1},
		Reasoner:     reasoner,
		TokenCounter: HeuristicCounter{},
		Logger:       logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateFailed || result.ErrorKind != KindInternal {
		t.Fatalf("got %s / %s, want FAILED Internal", result.Status, result.ErrorKind)
	}
	if !logger.HasMessage("Action panicked") {
		t.Error("panic was not logged")
	}
}

func TestSynthesize_ProgressEvents(t *testing.T) {
	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("get_columns"),
			decide("regenerate_query"),
			decide("run_query"),
			decide("refine_query"),
			decide("run_query"),
		},
		generations: []string{"SELECT COUNT(*) FORM complaints", "SELECT COUNT(*) FROM complaints"},
	}
	sandbox := &fakeSandbox{replies: []sandboxReply{
		fails(sqlexec.KindSyntax, "syntax error at or near \"FORM\""),
		succeeds(rows(1)),
	}}
	o := newTestOrchestrator(t, nil, complaintsInspector(), sandbox, reasoner)

	var mu sync.Mutex
	var events []ProgressEvent
	o.OnProgress(func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	o.OnProgress(func(ev ProgressEvent) { panic("bad subscriber") })

	result, _ := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
	if result.Status != StateDone {
		t.Fatalf("Status = %s (%s)", result.Status, result.Message)
	}

	if len(events) != 6 {
		t.Fatalf("len(events) = %d, want one per iteration", len(events))
	}
	wantStates := []State{StateActing, StateActing, StateActing, StateRepairing, StateActing, StateDone}
	wantActions := []string{"list_tables", "get_columns", "regenerate_query", "run_query", "refine_query", "run_query"}
	for i, ev := range events {
		if ev.State != wantStates[i] || ev.Action != wantActions[i] || ev.Iteration != i+1 {
			t.Errorf("event %d = %+v, want state %s action %s", i, ev, wantStates[i], wantActions[i])
		}
		if ev.TaskID != result.TaskID {
			t.Errorf("event %d has task %s", i, ev.TaskID)
		}
	}
	if events[3].FixAttempts != 1 || !strings.HasPrefix(events[3].ErrorSummary, string(CategorySyntaxError)) {
		t.Errorf("repair event = %+v", events[3])
	}
}

func TestSynthesize_ContextModes(t *testing.T) {
	for _, mode := range []string{core.ContextModeCurated, core.ContextModeFull} {
		t.Run(mode, func(t *testing.T) {
			cfg := testConfig()
			cfg.Synthesis.ContextMode = mode
			reasoner := &scriptedReasoner{
				decisions: []*reasoning.Decision{
					decide("list_tables"),
					decide("get_columns", "tables", []interface{}{"complaints"}),
					decide("regenerate_query"),
					decide("run_query"),
				},
				generations: []string{monthlyComplaints},
			}
			o := newTestOrchestrator(t, cfg, complaintsInspector(), &fakeSandbox{}, reasoner)

			result, _ := o.Synthesize(context.Background(), "total complaints this month", testDataSource)
			if result.Status != StateDone {
				t.Fatalf("Status = %s (%s)", result.Status, result.Message)
			}

			// Decision prompt after columns were fetched
			decisionPrompt := reasoner.Prompt(2)
			hasColumns := strings.Contains(decisionPrompt, "created_at timestamp")
			if mode == core.ContextModeFull && !hasColumns {
				t.Errorf("full mode decision prompt lacks column details:\n%s", decisionPrompt)
			}
			if mode == core.ContextModeCurated && hasColumns {
				t.Errorf("curated decision prompt carries column details:\n%s", decisionPrompt)
			}

			// Both modes show the selected table's columns when writing the query
			if !strings.Contains(reasoner.genPrompts[0], "created_at timestamp") {
				t.Errorf("generation prompt lacks schema:\n%s", reasoner.genPrompts[0])
			}
		})
	}
}

func TestSynthesize_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	reasoner := &scriptedReasoner{
		decisions: []*reasoning.Decision{
			decide("list_tables"),
			decide("regenerate_query"),
			decide("run_query"),
		},
		generations: []string{"SELECT COUNT(*) FROM complaints"},
	}
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, reasoner)
	result, _ := o.Synthesize(context.Background(), "total complaints", testDataSource)
	if result.Status != StateDone {
		t.Fatalf("Status = %s", result.Status)
	}

	var tasks, iterations int
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case SpanSynthesize:
			tasks++
		case SpanIteration:
			iterations++
		}
	}
	if tasks != 1 || iterations != 3 {
		t.Errorf("spans: %d task, %d iteration; want 1 and 3", tasks, iterations)
	}
}

func TestSynthesize_ConcurrentTasksShareNothing(t *testing.T) {
	reasoner := &scriptedReasoner{
		decideFn: func(call int, prompt string, actions []string) (*reasoning.Decision, error) {
			if !strings.Contains(prompt, "query drafted: true") {
				return decide("regenerate_query"), nil
			}
			return decide("run_query"), nil
		},
	}
	reasoner.generations = make([]string, 16)
	for i := range reasoner.generations {
		reasoner.generations[i] = "SELECT COUNT(*) FROM complaints"
	}
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, reasoner)

	var wg sync.WaitGroup
	results := make([]*SynthesisResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = o.Synthesize(context.Background(), "total complaints", testDataSource)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, r := range results {
		if r.Status != StateDone {
			t.Errorf("task %d: Status = %s (%s)", i, r.Status, r.Message)
		}
		if seen[r.TaskID] {
			t.Errorf("duplicate task id %s", r.TaskID)
		}
		seen[r.TaskID] = true
	}
	m := o.Metrics()
	if m.TasksStarted != 8 || m.TasksDone != 8 {
		t.Errorf("Metrics = %+v", m)
	}
}

func TestSynthesize_InvalidInput(t *testing.T) {
	o := newTestOrchestrator(t, nil, complaintsInspector(), &fakeSandbox{}, &scriptedReasoner{})
	if _, err := o.Synthesize(context.Background(), "  ", testDataSource); err == nil {
		t.Error("expected error for empty description")
	}
	if _, err := o.Synthesize(context.Background(), "total complaints", ""); err == nil {
		t.Error("expected error for empty data source")
	}
}

func TestCreateOrchestrator_Validation(t *testing.T) {
	_, err := CreateOrchestrator(nil, Dependencies{Sandbox: &fakeSandbox{}, Reasoner: &scriptedReasoner{}})
	if !errors.Is(err, core.ErrMissingConfiguration) {
		t.Errorf("missing inspector: err = %v", err)
	}

	cfg := testConfig()
	cfg.Synthesis.MaxFixAttempts = 0
	_, err = CreateOrchestrator(cfg, Dependencies{
		Inspector: complaintsInspector(),
		Sandbox:   &fakeSandbox{},
		Reasoner:  &scriptedReasoner{},
	})
	if !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("zero budget: err = %v", err)
	}
}

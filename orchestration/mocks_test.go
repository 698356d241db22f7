package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/reasoning"
	"github.com/itsneelabh/querysynth/schema"
	"github.com/itsneelabh/querysynth/sqlexec"
)

const testDataSource = "reports"

var errScriptExhausted = errors.New("reasoning script exhausted")

// TestLogger captures logs for verification in tests
type TestLogger struct {
	logs []LogEntry
	mu   sync.RWMutex
}

type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func (t *TestLogger) record(level, msg string, fields map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	t.logs = append(t.logs, LogEntry{Level: level, Message: msg, Fields: copied})
}

func (t *TestLogger) Info(msg string, fields map[string]interface{})  { t.record("INFO", msg, fields) }
func (t *TestLogger) Error(msg string, fields map[string]interface{}) { t.record("ERROR", msg, fields) }
func (t *TestLogger) Warn(msg string, fields map[string]interface{})  { t.record("WARN", msg, fields) }
func (t *TestLogger) Debug(msg string, fields map[string]interface{}) { t.record("DEBUG", msg, fields) }

func (t *TestLogger) GetLogs() []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]LogEntry, len(t.logs))
	copy(result, t.logs)
	return result
}

func (t *TestLogger) HasMessage(substr string) bool {
	for _, l := range t.GetLogs() {
		if strings.Contains(l.Message, substr) {
			return true
		}
	}
	return false
}

// scriptedReasoner replays decisions and generated texts in order
type scriptedReasoner struct {
	mu          sync.Mutex
	decisions   []*reasoning.Decision
	generations []string

	// decideFn, when set, replaces the decision script
	decideFn    func(call int, prompt string, actions []string) (*reasoning.Decision, error)
	decideErr   error
	generateErr error

	decideCalls   int
	generateCalls int
	prompts       []string
	actionSets    [][]string
	genPrompts    []string
}

func decide(action string, args ...interface{}) *reasoning.Decision {
	d := &reasoning.Decision{Action: action, Args: map[string]interface{}{}}
	for i := 0; i+1 < len(args); i += 2 {
		d.Args[args[i].(string)] = args[i+1]
	}
	return d
}

func (s *scriptedReasoner) Decide(ctx context.Context, prompt string, actions []string) (*reasoning.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.decideCalls
	s.decideCalls++
	s.prompts = append(s.prompts, prompt)
	s.actionSets = append(s.actionSets, append([]string(nil), actions...))

	if s.decideErr != nil {
		return nil, s.decideErr
	}
	if s.decideFn != nil {
		return s.decideFn(call, prompt, actions)
	}
	if call >= len(s.decisions) {
		return nil, errScriptExhausted
	}
	return s.decisions[call], nil
}

func (s *scriptedReasoner) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.generateCalls
	s.generateCalls++
	s.genPrompts = append(s.genPrompts, prompt)

	if s.generateErr != nil {
		return "", s.generateErr
	}
	if call >= len(s.generations) {
		return "", errScriptExhausted
	}
	return s.generations[call], nil
}

func (s *scriptedReasoner) Prompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.prompts) {
		return ""
	}
	return s.prompts[i]
}

type sandboxReply struct {
	result *sqlexec.Result
	err    error
}

// fakeSandbox replays replies; the last one repeats once the script runs out
type fakeSandbox struct {
	mu      sync.Mutex
	replies []sandboxReply
	queries []string
	panicOn int
	delay   time.Duration
}

func (f *fakeSandbox) Execute(ctx context.Context, dataSource, query string) (*sqlexec.Result, error) {
	f.mu.Lock()
	call := len(f.queries)
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.panicOn > 0 && call+1 == f.panicOn {
		panic("sandbox exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(f.replies) == 0 {
		return rows(1), nil
	}
	if call >= len(f.replies) {
		call = len(f.replies) - 1
	}
	return f.replies[call].result, f.replies[call].err
}

func (f *fakeSandbox) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func rows(n int) *sqlexec.Result {
	res := &sqlexec.Result{Columns: []string{"count"}, RowCount: n}
	for i := 0; i < n; i++ {
		res.Rows = append(res.Rows, []interface{}{int64(12)})
	}
	return res
}

func succeeds(res *sqlexec.Result) sandboxReply { return sandboxReply{result: res} }

func fails(kind sqlexec.ErrorKind, msg string) sandboxReply {
	return sandboxReply{err: &sqlexec.Error{Kind: kind, Message: msg, Driver: "postgres"}}
}

// flakyInspector fails the first listFailures ListTables calls
type flakyInspector struct {
	schema.Inspector
	mu           sync.Mutex
	listFailures int
	listCalls    int
	columnCalls  int
	columnErr    error
}

func (f *flakyInspector) ListTables(ctx context.Context, dataSource string) ([]string, error) {
	f.mu.Lock()
	f.listCalls++
	fail := f.listCalls <= f.listFailures
	f.mu.Unlock()
	if fail {
		return nil, schema.ErrUnavailable
	}
	return f.Inspector.ListTables(ctx, dataSource)
}

func (f *flakyInspector) GetColumns(ctx context.Context, dataSource string, tables []string) (schema.TableColumns, error) {
	f.mu.Lock()
	f.columnCalls++
	f.mu.Unlock()
	if f.columnErr != nil {
		return nil, f.columnErr
	}
	return f.Inspector.GetColumns(ctx, dataSource, tables)
}

func complaintsInspector() *schema.StaticInspector {
	return schema.NewStaticInspector().
		AddTable(testDataSource, "complaints",
			schema.Column{Name: "id", Type: "integer", PrimaryKey: true},
			schema.Column{Name: "created_at", Type: "timestamp"},
		).
		AddTable(testDataSource, "users",
			schema.Column{Name: "id", Type: "integer", PrimaryKey: true},
			schema.Column{Name: "email", Type: "text"},
		)
}

func testConfig() *OrchestratorConfig {
	cfg := DefaultConfig()
	cfg.SchemaRetryDelay = 0
	cfg.Timeouts = core.TimeoutConfig{
		Reasoning: 2 * time.Second,
		Schema:    2 * time.Second,
		Execution: 2 * time.Second,
	}
	return cfg
}

func newTestOrchestrator(t *testing.T, cfg *OrchestratorConfig, inspector schema.Inspector, sandbox sqlexec.Sandbox, reasoner reasoning.Service) *Orchestrator {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	o, err := CreateOrchestrator(cfg, Dependencies{
		Inspector:    inspector,
		Sandbox:      sandbox,
		Reasoner:     reasoner,
		TokenCounter: HeuristicCounter{},
	})
	if err != nil {
		t.Fatalf("CreateOrchestrator() error = %v", err)
	}
	return o
}

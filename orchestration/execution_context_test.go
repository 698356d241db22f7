package orchestration

import (
	"strings"
	"testing"

	"github.com/itsneelabh/querysynth/core"
)

func testExecutionContext() *ExecutionContext {
	return newExecutionContext(core.SynthesisConfig{MaxObservations: 3, MaxObservationLength: 20})
}

func TestExecutionContext_Apply(t *testing.T) {
	ec := testExecutionContext()
	q := "SELECT 1"

	ec.apply(ContextDelta{Query: &q, Observation: "drafted"})
	if ec.CurrentQuery != q || len(ec.Observations) != 1 {
		t.Fatalf("after draft: %+v", ec)
	}

	issue := Issue{Source: SourceSandbox, Message: "boom"}
	ec.apply(ContextDelta{Executed: true, TimedOut: true, Issues: []Issue{issue}})
	if ec.ExecutionAttempts != 1 || ec.ConsecutiveTimeouts != 1 {
		t.Errorf("attempts = %d, timeouts = %d", ec.ExecutionAttempts, ec.ConsecutiveTimeouts)
	}
	if len(ec.ValidationIssues) != 1 || len(ec.IssueHistory) != 1 {
		t.Errorf("issues = %v, history = %v", ec.ValidationIssues, ec.IssueHistory)
	}

	ec.apply(ContextDelta{Executed: true, Issues: []Issue{issue, issue}})
	if ec.ConsecutiveTimeouts != 0 {
		t.Errorf("non-timeout execution must reset timeouts, got %d", ec.ConsecutiveTimeouts)
	}
	if len(ec.ValidationIssues) != 2 || len(ec.IssueHistory) != 3 {
		t.Errorf("issues replace, history accumulates: %d / %d", len(ec.ValidationIssues), len(ec.IssueHistory))
	}

	ec.apply(ContextDelta{Executed: true, Succeeded: true, Columns: []string{"n"}, Rows: [][]interface{}{{1}}})
	if !ec.GoalAchieved || ec.ValidationIssues != nil || ec.LastColumns[0] != "n" {
		t.Errorf("after success: %+v", ec)
	}
	if len(ec.IssueHistory) != 3 {
		t.Errorf("history must survive success, got %d", len(ec.IssueHistory))
	}
}

func TestExecutionContext_RepairFlagsCleared(t *testing.T) {
	ec := testExecutionContext()
	ec.NeedsSchemaRefresh = true
	ec.NeedsQueryRegeneration = true

	ec.apply(ContextDelta{SchemaRefreshed: true})
	if ec.NeedsSchemaRefresh || !ec.NeedsQueryRegeneration {
		t.Errorf("schema refresh: %v / %v", ec.NeedsSchemaRefresh, ec.NeedsQueryRegeneration)
	}
	ec.apply(ContextDelta{QueryRegenerated: true})
	if ec.NeedsQueryRegeneration {
		t.Error("regeneration flag not cleared")
	}
}

func TestExecutionContext_SchemaRefreshRequestsRegeneration(t *testing.T) {
	ec := testExecutionContext()
	ec.NeedsSchemaRefresh = true

	ec.apply(ContextDelta{SchemaRefreshed: true})
	if ec.NeedsSchemaRefresh || !ec.NeedsQueryRegeneration {
		t.Errorf("after refresh: %v / %v, want regeneration pending", ec.NeedsSchemaRefresh, ec.NeedsQueryRegeneration)
	}
	if got := RepairHint(ec.View()); got != HintRegenerate {
		t.Errorf("RepairHint() = %q, want %q", got, HintRegenerate)
	}

	// Fetching columns outside a refresh leaves the flags alone
	plain := testExecutionContext()
	plain.apply(ContextDelta{SchemaRefreshed: true})
	if plain.NeedsQueryRegeneration || plain.NeedsSchemaRefresh {
		t.Errorf("unrequested refresh set flags: %v / %v", plain.NeedsSchemaRefresh, plain.NeedsQueryRegeneration)
	}
}

func TestExecutionContext_ObservationsBounded(t *testing.T) {
	ec := testExecutionContext()
	for _, note := range []string{"one", "two", "three", "four", strings.Repeat("x", 50)} {
		ec.apply(ContextDelta{Observation: note})
	}

	if len(ec.Observations) != 3 {
		t.Fatalf("len(Observations) = %d, want 3", len(ec.Observations))
	}
	if ec.Observations[0] != "three" {
		t.Errorf("oldest kept = %q, want three", ec.Observations[0])
	}
	last := ec.Observations[2]
	if len(last) > 20 || !strings.HasSuffix(last, "...") {
		t.Errorf("long observation not truncated: %q", last)
	}
}

func TestExecutionContext_View(t *testing.T) {
	ec := testExecutionContext()
	ec.apply(ContextDelta{Observation: "a", Issues: []Issue{{Message: "m"}}})

	v := ec.View()
	v.Observations[0] = "changed"
	v.ValidationIssues[0].Message = "changed"
	v.FixAttempts = 9

	if ec.Observations[0] != "a" || ec.ValidationIssues[0].Message != "m" || ec.FixAttempts != 0 {
		t.Errorf("view mutation leaked into context: %+v", ec)
	}
}

func TestExecutionContext_RecordClassification(t *testing.T) {
	ec := testExecutionContext()
	ec.apply(ContextDelta{Issues: []Issue{{Message: "first"}}})
	ec.apply(ContextDelta{Issues: []Issue{{Message: "second"}}})

	ec.recordClassification(Classification{
		Category:               CategoryMissingFieldOrTable,
		NeedsQueryRegeneration: true,
		Summary:                "missing_field_or_table: second",
	})

	if ec.ValidationIssues[0].Category != CategoryMissingFieldOrTable {
		t.Errorf("current issue not tagged: %+v", ec.ValidationIssues[0])
	}
	if ec.IssueHistory[0].Category != "" {
		t.Errorf("older issue retagged: %+v", ec.IssueHistory[0])
	}
	if ec.IssueHistory[1].Category != CategoryMissingFieldOrTable {
		t.Errorf("history entry not tagged: %+v", ec.IssueHistory[1])
	}
	if !ec.NeedsQueryRegeneration || ec.NeedsSchemaRefresh {
		t.Errorf("flags = %v / %v", ec.NeedsSchemaRefresh, ec.NeedsQueryRegeneration)
	}
	if ec.LastErrorSummary != "missing_field_or_table: second" {
		t.Errorf("LastErrorSummary = %q", ec.LastErrorSummary)
	}
}

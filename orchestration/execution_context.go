package orchestration

import (
	"github.com/itsneelabh/querysynth/core"
)

// ExecutionContext is the per-task loop state. Only the orchestrator
// mutates it; the planner and executor receive a copy and report changes
// through a ContextDelta.
type ExecutionContext struct {
	CurrentQuery           string
	ValidationIssues       []Issue
	IssueHistory           []Issue
	FixAttempts            int
	GoalAchieved           bool
	LastErrorSummary       string
	NeedsSchemaRefresh     bool
	NeedsQueryRegeneration bool
	Observations           []string

	ExecutionAttempts   int
	ConsecutiveTimeouts int
	LastRows            [][]interface{}
	LastColumns         []string

	maxObservations      int
	maxObservationLength int
}

func newExecutionContext(cfg core.SynthesisConfig) *ExecutionContext {
	return &ExecutionContext{
		maxObservations:      cfg.MaxObservations,
		maxObservationLength: cfg.MaxObservationLength,
	}
}

// InRepair reports whether a previous attempt has failed.
func (ec *ExecutionContext) InRepair() bool {
	return ec.FixAttempts > 0
}

// View returns a copy safe to hand to the planner or executor.
func (ec *ExecutionContext) View() ExecutionContext {
	v := *ec
	v.ValidationIssues = append([]Issue(nil), ec.ValidationIssues...)
	v.IssueHistory = append([]Issue(nil), ec.IssueHistory...)
	v.Observations = append([]string(nil), ec.Observations...)
	return v
}

// ContextDelta is the change an action asks the orchestrator to apply.
type ContextDelta struct {
	// Query replaces the current query when non-nil
	Query *string

	Observation string

	// Executed is set when the sandbox was called
	Executed bool
	TimedOut bool

	// Succeeded is set when the query ran and produced an acceptable result
	Succeeded bool
	Rows      [][]interface{}
	Columns   []string

	// Issues from a failed validation; replaces ValidationIssues
	Issues []Issue

	SchemaRefreshed  bool
	QueryRegenerated bool
}

// Failed reports whether the delta carries a failed validation.
func (d ContextDelta) Failed() bool {
	return len(d.Issues) > 0
}

// apply folds d into ec.
func (ec *ExecutionContext) apply(d ContextDelta) {
	if d.Query != nil {
		ec.CurrentQuery = *d.Query
	}
	if d.Observation != "" {
		ec.observe(d.Observation)
	}
	if d.SchemaRefreshed && ec.NeedsSchemaRefresh {
		// The failed query was written without these columns
		ec.NeedsSchemaRefresh = false
		ec.NeedsQueryRegeneration = true
	}
	if d.QueryRegenerated {
		ec.NeedsQueryRegeneration = false
	}

	if d.Executed {
		ec.ExecutionAttempts++
		if d.TimedOut {
			ec.ConsecutiveTimeouts++
		} else {
			ec.ConsecutiveTimeouts = 0
		}
	}

	if d.Failed() {
		ec.ValidationIssues = append([]Issue(nil), d.Issues...)
		ec.IssueHistory = append(ec.IssueHistory, d.Issues...)
	}

	if d.Succeeded {
		ec.GoalAchieved = true
		ec.ValidationIssues = nil
		ec.LastRows = d.Rows
		ec.LastColumns = d.Columns
	}
}

// observe appends a note, truncating it and dropping the oldest past the cap.
func (ec *ExecutionContext) observe(note string) {
	if ec.maxObservationLength > 0 {
		note = truncate(note, ec.maxObservationLength)
	}
	ec.Observations = append(ec.Observations, note)
	if ec.maxObservations > 0 && len(ec.Observations) > ec.maxObservations {
		ec.Observations = append([]string(nil), ec.Observations[len(ec.Observations)-ec.maxObservations:]...)
	}
}

// recordClassification sets the repair hints and tags the last issues.
func (ec *ExecutionContext) recordClassification(cl Classification) {
	ec.LastErrorSummary = cl.Summary
	ec.NeedsSchemaRefresh = cl.NeedsSchemaRefresh
	ec.NeedsQueryRegeneration = cl.NeedsQueryRegeneration

	for i := range ec.ValidationIssues {
		ec.ValidationIssues[i].Category = cl.Category
	}
	start := len(ec.IssueHistory) - len(ec.ValidationIssues)
	for i := start; i < len(ec.IssueHistory); i++ {
		if i >= 0 {
			ec.IssueHistory[i].Category = cl.Category
		}
	}
}

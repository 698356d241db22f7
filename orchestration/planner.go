package orchestration

import (
	"fmt"
	"strings"
)

// Repair strategy hints. Advisory: the reasoning service makes the final choice.
const (
	HintSchemaRefresh = "fetch schema before regenerating"
	HintRegenerate    = "regenerate query; do not attempt textual refinement of field names"
	HintRefine        = "refine the existing query"
)

// maxPromptObservations caps the observations a decision prompt repeats
const maxPromptObservations = 6

// Prompt is a decision prompt and what the planner derived while building it.
type Prompt struct {
	Text    string
	Actions []ActionKind
	Tokens  int
	Repair  bool
	Hint    string
}

// ActionNames returns the available actions as strings
func (p Prompt) ActionNames() []string {
	return actionNames(p.Actions)
}

// Planner turns loop state into prompts. It keeps no state of its own and
// never forces an action; in a repair cycle it narrows the choice with a hint.
type Planner struct {
	strategy       ContextStrategy
	counter        TokenCounter
	maxFixAttempts int
}

// NewPlanner creates a planner rendering context through strategy
func NewPlanner(strategy ContextStrategy, counter TokenCounter, maxFixAttempts int) *Planner {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Planner{strategy: strategy, counter: counter, maxFixAttempts: maxFixAttempts}
}

// Strategy returns the context strategy in use
func (p *Planner) Strategy() ContextStrategy {
	return p.strategy
}

// AvailableActions returns the actions that make sense in the current
// state. Refining or running is withheld until a query exists.
func AvailableActions(ec ExecutionContext) []ActionKind {
	hasQuery := strings.TrimSpace(ec.CurrentQuery) != ""
	out := make([]ActionKind, 0, len(allActions))
	for _, k := range allActions {
		if !hasQuery && (k == ActionRefineQuery || k == ActionRunQuery) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// RepairHint derives the strategy hint from the two repair flags.
func RepairHint(ec ExecutionContext) string {
	switch {
	case ec.NeedsSchemaRefresh:
		return HintSchemaRefresh
	case ec.NeedsQueryRegeneration:
		return HintRegenerate
	default:
		return HintRefine
	}
}

// BuildDecision builds the prompt asking for the next action.
func (p *Planner) BuildDecision(task *Task, ec ExecutionContext, pool *ResourcePool, iteration, maxIterations int) Prompt {
	mem := Snapshot(pool, ec)
	prompt := Prompt{
		Actions: AvailableActions(ec),
		Repair:  ec.InRepair(),
	}

	var sb strings.Builder
	sb.WriteString("You are the planning step of an agent that writes a read-only SQL query answering a data request.\n")
	sb.WriteString("Pick the single next action that moves the task forward.\n\n")
	fmt.Fprintf(&sb, "TASK: %s\n", task.Description)
	fmt.Fprintf(&sb, "DATA SOURCE: %s\n", task.DataSource)
	fmt.Fprintf(&sb, "ITERATION: %d of %d\n\n", iteration, maxIterations)

	sb.WriteString("## KNOWN CONTEXT\n")
	sb.WriteString(p.strategy.RenderState(mem, pool))

	if !prompt.Repair && mem.HasQuery {
		sb.WriteString("\n## CURRENT QUERY\n")
		sb.WriteString(ec.CurrentQuery)
		sb.WriteString("\n")
	}

	if obs := recentObservations(ec.Observations); len(obs) > 0 {
		sb.WriteString("\n## RECENT OBSERVATIONS\n")
		for _, o := range obs {
			fmt.Fprintf(&sb, "- %s\n", o)
		}
	}

	if prompt.Repair {
		prompt.Hint = RepairHint(ec)
		sb.WriteString("\n")
		sb.WriteString(p.repairBlock(ec, mem, prompt.Hint))
	}

	sb.WriteString("\n## AVAILABLE ACTIONS\n")
	for _, k := range prompt.Actions {
		fmt.Fprintf(&sb, "- %s: %s\n", k, k.Description())
	}

	prompt.Text = sb.String()
	prompt.Tokens = p.counter.Count(prompt.Text)
	return prompt
}

func (p *Planner) repairBlock(ec ExecutionContext, mem ContextMemory, hint string) string {
	var sb strings.Builder
	sb.WriteString("## REPAIR\n")
	fmt.Fprintf(&sb, "The last query failed validation. Attempt %d of %d.\n", ec.FixAttempts, p.maxFixAttempts)
	fmt.Fprintf(&sb, "Column details known: %s\n", yesNo(mem.ColumnDetailsKnown))
	sb.WriteString("Failed query:\n")
	sb.WriteString(ec.CurrentQuery)
	sb.WriteString("\nIssues:\n")
	sb.WriteString(renderIssues(ec.ValidationIssues))
	fmt.Fprintf(&sb, "Strategy hint: %s\n", hint)
	return sb.String()
}

// BuildGeneration builds the prompt asking for a complete replacement query.
func (p *Planner) BuildGeneration(task *Task, ec ExecutionContext, pool *ResourcePool) string {
	var sb strings.Builder
	sb.WriteString("Write one read-only SQL SELECT query that answers the request below.\n")
	sb.WriteString("Use only the tables and columns listed. Reply with the SQL only, no explanation.\n\n")
	fmt.Fprintf(&sb, "REQUEST: %s\n\n", task.Description)

	sb.WriteString("## SCHEMA\n")
	if schemaText := p.strategy.RenderSchema(pool); schemaText != "" {
		sb.WriteString(schemaText)
	} else if tables := pool.AvailableTables(); len(tables) > 0 {
		fmt.Fprintf(&sb, "  tables (columns unknown): %s\n", strings.Join(tables, ", "))
	} else {
		sb.WriteString("  unknown\n")
	}

	if ec.InRepair() && ec.CurrentQuery != "" {
		sb.WriteString("\n## PREVIOUS ATTEMPT\n")
		sb.WriteString(ec.CurrentQuery)
		sb.WriteString("\nIt failed with:\n")
		sb.WriteString(renderIssues(ec.ValidationIssues))
		sb.WriteString("Do not reuse names that the schema above does not contain.\n")
	}
	return sb.String()
}

// BuildRefinement builds the prompt asking for a minimal edit of the current query.
func (p *Planner) BuildRefinement(task *Task, ec ExecutionContext, pool *ResourcePool) string {
	var sb strings.Builder
	sb.WriteString("Fix the SQL query below with the smallest possible edit. Keep its structure.\n")
	sb.WriteString("Reply with the corrected SQL only, no explanation.\n\n")
	fmt.Fprintf(&sb, "REQUEST: %s\n\n", task.Description)
	sb.WriteString("## QUERY\n")
	sb.WriteString(ec.CurrentQuery)
	sb.WriteString("\n\n## ISSUES\n")
	if len(ec.ValidationIssues) > 0 {
		sb.WriteString(renderIssues(ec.ValidationIssues))
	} else {
		sb.WriteString("- none recorded; check the query against the request\n")
	}
	if schemaText := p.strategy.RenderSchema(pool); schemaText != "" {
		sb.WriteString("\n## SCHEMA\n")
		sb.WriteString(schemaText)
	}
	return sb.String()
}

func renderIssues(issues []Issue) string {
	if len(issues) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, issue := range issues {
		if issue.Category != "" {
			fmt.Fprintf(&sb, "- [%s] %s\n", issue.Category, issue.Message)
		} else {
			fmt.Fprintf(&sb, "- %s\n", issue.Message)
		}
	}
	return sb.String()
}

func recentObservations(obs []string) []string {
	if len(obs) <= maxPromptObservations {
		return obs
	}
	return obs[len(obs)-maxPromptObservations:]
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

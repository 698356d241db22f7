package orchestration

import (
	"strings"
	"testing"

	"github.com/itsneelabh/querysynth/schema"
)

func plannerFixture(t *testing.T) (*Planner, *Task, *ResourcePool) {
	t.Helper()
	task, err := NewTask("total complaints this month", testDataSource)
	if err != nil {
		t.Fatal(err)
	}
	pool := NewResourcePool(0)
	pool.SetAvailableTables([]string{"complaints", "users"})
	pool.SetSelectedTables([]string{"complaints"})
	pool.MergeColumns(schema.TableColumns{
		"complaints": {{Name: "id", Type: "integer", PrimaryKey: true}, {Name: "created_at", Type: "timestamp"}},
	})
	return NewPlanner(NewCuratedStrategy(0, HeuristicCounter{}), HeuristicCounter{}, 3), task, pool
}

func TestPlanner_BuildDecision(t *testing.T) {
	planner, task, pool := plannerFixture(t)
	ec := ExecutionContext{CurrentQuery: "SELECT COUNT(*) FROM complaints", Observations: []string{"list_tables: 2 tables available"}}

	p := planner.BuildDecision(task, ec, pool, 3, 15)

	for _, want := range []string{
		"TASK: total complaints this month",
		"ITERATION: 3 of 15",
		"## KNOWN CONTEXT",
		"- query drafted: true",
		"- relevant tables: complaints",
		"## CURRENT QUERY\nSELECT COUNT(*) FROM complaints",
		"- list_tables: 2 tables available",
		"- run_query: ",
	} {
		if !strings.Contains(p.Text, want) {
			t.Errorf("prompt lacks %q:\n%s", want, p.Text)
		}
	}
	if p.Repair || p.Hint != "" {
		t.Errorf("not in repair, got Repair=%v Hint=%q", p.Repair, p.Hint)
	}
	if strings.Contains(p.Text, "## REPAIR") {
		t.Error("repair block outside a repair cycle")
	}
	if want := (HeuristicCounter{}).Count(p.Text); p.Tokens != want {
		t.Errorf("Tokens = %d", p.Tokens)
	}
}

func TestPlanner_RepairBlock(t *testing.T) {
	planner, task, pool := plannerFixture(t)

	tests := []struct {
		name string
		ec   ExecutionContext
		hint string
	}{
		{
			name: "schema refresh wins",
			ec:   ExecutionContext{NeedsSchemaRefresh: true, NeedsQueryRegeneration: true},
			hint: HintSchemaRefresh,
		},
		{
			name: "regenerate",
			ec:   ExecutionContext{NeedsQueryRegeneration: true},
			hint: HintRegenerate,
		},
		{
			name: "refine by default",
			ec:   ExecutionContext{},
			hint: HintRefine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := tt.ec
			ec.FixAttempts = 2
			ec.CurrentQuery = "SELECT complaint_count FROM complaints"
			ec.ValidationIssues = []Issue{{Category: CategoryMissingFieldOrTable, Message: `column "complaint_count" does not exist`}}

			p := planner.BuildDecision(task, ec, pool, 6, 15)
			if !p.Repair || p.Hint != tt.hint {
				t.Fatalf("Repair=%v Hint=%q, want %q", p.Repair, p.Hint, tt.hint)
			}
			for _, want := range []string{
				"## REPAIR",
				"Attempt 2 of 3",
				"Column details known: yes",
				"SELECT complaint_count FROM complaints",
				`- [missing_field_or_table] column "complaint_count" does not exist`,
				"Strategy hint: " + tt.hint,
			} {
				if !strings.Contains(p.Text, want) {
					t.Errorf("prompt lacks %q:\n%s", want, p.Text)
				}
			}
			if strings.Contains(p.Text, "## CURRENT QUERY") {
				t.Error("failed query rendered twice")
			}
		})
	}
}

func TestPlanner_BuildDecisionWithoutQuery(t *testing.T) {
	planner, task, _ := plannerFixture(t)
	p := planner.BuildDecision(task, ExecutionContext{}, NewResourcePool(0), 1, 15)

	for _, k := range p.Actions {
		if k == ActionRunQuery || k == ActionRefineQuery {
			t.Errorf("action %s offered without a query", k)
		}
	}
	if strings.Contains(p.Text, "run_query:") {
		t.Errorf("prompt describes run_query:\n%s", p.Text)
	}
}

func TestPlanner_RecentObservationsCapped(t *testing.T) {
	planner, task, pool := plannerFixture(t)
	var obs []string
	for i := 0; i < 10; i++ {
		obs = append(obs, "note-"+string(rune('a'+i)))
	}
	p := planner.BuildDecision(task, ExecutionContext{Observations: obs}, pool, 1, 15)

	if strings.Contains(p.Text, "note-a") || !strings.Contains(p.Text, "note-j") {
		t.Errorf("expected only the latest %d observations:\n%s", maxPromptObservations, p.Text)
	}
}

func TestPlanner_BuildGeneration(t *testing.T) {
	planner, task, pool := plannerFixture(t)

	fresh := planner.BuildGeneration(task, ExecutionContext{}, pool)
	if !strings.Contains(fresh, "complaints: id integer pk, created_at timestamp") {
		t.Errorf("generation prompt lacks schema:\n%s", fresh)
	}
	if strings.Contains(fresh, "PREVIOUS ATTEMPT") {
		t.Error("fresh generation mentions a previous attempt")
	}

	repair := planner.BuildGeneration(task, ExecutionContext{
		FixAttempts:      1,
		CurrentQuery:     "SELECT complaint_count FROM complaints",
		ValidationIssues: []Issue{{Message: "no such column"}},
	}, pool)
	if !strings.Contains(repair, "## PREVIOUS ATTEMPT\nSELECT complaint_count FROM complaints") {
		t.Errorf("repair generation lacks failed query:\n%s", repair)
	}

	unknown := planner.BuildGeneration(task, ExecutionContext{}, NewResourcePool(0))
	if !strings.Contains(unknown, "## SCHEMA\n  unknown") {
		t.Errorf("schema placeholder missing:\n%s", unknown)
	}

	listed := NewResourcePool(0)
	listed.SetAvailableTables([]string{"complaints"})
	if got := planner.BuildGeneration(task, ExecutionContext{}, listed); !strings.Contains(got, "tables (columns unknown): complaints") {
		t.Errorf("table-only schema missing:\n%s", got)
	}
}

func TestPlanner_BuildRefinement(t *testing.T) {
	planner, task, pool := plannerFixture(t)
	got := planner.BuildRefinement(task, ExecutionContext{
		CurrentQuery:     "SELECT COUNT(*) FORM complaints",
		ValidationIssues: []Issue{{Category: CategorySyntaxError, Message: `syntax error at or near "FORM"`}},
	}, pool)

	for _, want := range []string{
		"## QUERY\nSELECT COUNT(*) FORM complaints",
		`- [syntax_error] syntax error at or near "FORM"`,
		"## SCHEMA",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("refinement prompt lacks %q:\n%s", want, got)
		}
	}
}

package orchestration

import (
	"fmt"
	"strings"

	"github.com/itsneelabh/querysynth/reasoning"
	"github.com/itsneelabh/querysynth/schema"
)

// ActionKind names one of the steps the reasoning service may choose.
type ActionKind string

const (
	ActionListTables      ActionKind = "list_tables"
	ActionGetColumns      ActionKind = "get_columns"
	ActionRegenerateQuery ActionKind = "regenerate_query"
	ActionRefineQuery     ActionKind = "refine_query"
	ActionRunQuery        ActionKind = "run_query"
)

// allActions is the closed action set in prompt order
var allActions = []ActionKind{
	ActionListTables,
	ActionGetColumns,
	ActionRegenerateQuery,
	ActionRefineQuery,
	ActionRunQuery,
}

var actionDescriptions = map[ActionKind]string{
	ActionListTables:      "fetch the list of tables in the data source",
	ActionGetColumns:      `fetch column details; args {"tables": [..]} optional, relevant tables are chosen when omitted`,
	ActionRegenerateQuery: "write a complete new query from the task and the known column details",
	ActionRefineQuery:     "make a minimal edit to the current query to fix the last issues",
	ActionRunQuery:        "execute the current query and validate its result",
}

// Known reports whether k is a supported action
func (k ActionKind) Known() bool {
	_, ok := actionDescriptions[k]
	return ok
}

// Description is the one-line explanation shown in prompts
func (k ActionKind) Description() string {
	return actionDescriptions[k]
}

// Action is a validated decision.
type Action struct {
	Kind ActionKind

	// Tables requested by get_columns; empty means select automatically
	Tables []string

	// Rationale given by the reasoning service, kept for observations
	Rationale string
}

// ParseAction validates a decision against the closed action set. Unknown
// names are a reasoning failure, never a silent no-op.
func ParseAction(d *reasoning.Decision) (Action, error) {
	if d == nil {
		return Action{}, newSynthesisError("ParseAction", KindReasoningUnavailable, "no decision returned", reasoning.ErrMalformedDecision)
	}

	kind := ActionKind(strings.ToLower(strings.TrimSpace(d.Action)))
	if !kind.Known() {
		return Action{}, newSynthesisError("ParseAction", KindReasoningUnavailable,
			fmt.Sprintf("unknown action %q", d.Action), reasoning.ErrMalformedDecision)
	}

	action := Action{Kind: kind, Rationale: d.Rationale}
	if kind == ActionGetColumns {
		tables, err := tablesArg(d.Args)
		if err != nil {
			return Action{}, newSynthesisError("ParseAction", KindReasoningUnavailable, err.Error(), reasoning.ErrMalformedDecision)
		}
		action.Tables = tables
	}
	return action, nil
}

// tablesArg accepts a JSON array or a comma separated string under
// "tables" or "table_names". Names that are not identifiers are dropped.
func tablesArg(args map[string]interface{}) ([]string, error) {
	raw, ok := args["tables"]
	if !ok {
		raw, ok = args["table_names"]
	}
	if !ok || raw == nil {
		return nil, nil
	}

	var names []string
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("table names must be strings, got %T", item)
			}
			names = append(names, s)
		}
	case []string:
		names = append(names, v...)
	case string:
		names = strings.Split(v, ",")
	default:
		return nil, fmt.Errorf("tables must be a list, got %T", raw)
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.Trim(strings.TrimSpace(n), "`\"[]")
		if schema.IsValidIdentifier(n) {
			out = append(out, n)
		}
	}
	return schema.NormalizeTables(out), nil
}

func actionNames(kinds []ActionKind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

// cleanQuery strips the decoration models put around generated SQL:
// markdown fences, a leading "SQL:" label and trailing semicolons.
func cleanQuery(text string) string {
	q := strings.TrimSpace(text)

	if start := strings.Index(q, "```"); start >= 0 {
		body := q[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			lang := strings.TrimSpace(body[:nl])
			if lang == "" || !strings.ContainsAny(lang, " \t") {
				body = body[nl+1:]
			}
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		q = strings.TrimSpace(body)
	}

	for _, prefix := range []string{"sql:", "query:"} {
		if len(q) >= len(prefix) && strings.EqualFold(q[:len(prefix)], prefix) {
			q = strings.TrimSpace(q[len(prefix):])
		}
	}

	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

package orchestration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/reasoning"
)

// TableSelector proposes which known tables are relevant to a task, so
// the columns of a large schema are never fetched wholesale.
type TableSelector interface {
	Name() string
	Select(ctx context.Context, task *Task, tables []string, limit int) ([]string, error)
}

// NewTableSelector returns the selector for a strategy name. Strategies
// that need the reasoning service degrade to keyword matching without one.
func NewTableSelector(strategy string, service reasoning.Service, keywordThreshold int) TableSelector {
	keyword := &KeywordTableSelector{}
	if service == nil {
		return keyword
	}
	switch strategy {
	case core.SelectionKeyword:
		return keyword
	case core.SelectionReasoning:
		return &ReasoningTableSelector{service: service}
	default:
		return &HybridTableSelector{
			keyword:   keyword,
			reasoning: &ReasoningTableSelector{service: service},
			threshold: keywordThreshold,
		}
	}
}

// KeywordTableSelector ranks tables by stemmed token overlap with the
// task description. It never fails and never calls out.
type KeywordTableSelector struct{}

func (s *KeywordTableSelector) Name() string { return core.SelectionKeyword }

func (s *KeywordTableSelector) Select(ctx context.Context, task *Task, tables []string, limit int) ([]string, error) {
	wanted := make(map[string]bool)
	for _, tok := range tokenize(task.Description) {
		wanted[tok] = true
	}

	type scored struct {
		table string
		score int
	}
	var ranked []scored
	for _, table := range tables {
		score := 0
		for _, tok := range tokenize(table) {
			if wanted[tok] {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{table: table, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].table < ranked[j].table
	})

	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, r.table)
	}
	return out, nil
}

// ReasoningTableSelector asks the reasoning service and keeps only the
// names that exist in the known table list.
type ReasoningTableSelector struct {
	service reasoning.Service
}

// NewReasoningTableSelector creates a selector backed by service
func NewReasoningTableSelector(service reasoning.Service) *ReasoningTableSelector {
	return &ReasoningTableSelector{service: service}
}

func (s *ReasoningTableSelector) Name() string { return core.SelectionReasoning }

func (s *ReasoningTableSelector) Select(ctx context.Context, task *Task, tables []string, limit int) ([]string, error) {
	reply, err := s.service.Generate(ctx, selectionPrompt(task, tables, limit))
	if err != nil {
		return nil, err
	}
	return matchKnownTables(reply, tables, limit), nil
}

// HybridTableSelector uses keyword matching for small schemas when it
// finds something, and the reasoning service otherwise. A reasoning
// failure falls back to the keyword result.
type HybridTableSelector struct {
	keyword   *KeywordTableSelector
	reasoning *ReasoningTableSelector
	threshold int
}

func (s *HybridTableSelector) Name() string { return core.SelectionHybrid }

func (s *HybridTableSelector) Select(ctx context.Context, task *Task, tables []string, limit int) ([]string, error) {
	byKeyword, _ := s.keyword.Select(ctx, task, tables, limit)
	if len(tables) <= s.threshold && len(byKeyword) > 0 {
		return byKeyword, nil
	}

	byReasoning, err := s.reasoning.Select(ctx, task, tables, limit)
	if err != nil || len(byReasoning) == 0 {
		return byKeyword, nil
	}
	return byReasoning, nil
}

func selectionPrompt(task *Task, tables []string, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Which of these tables are needed to answer the request? Choose at most %d.\n", limit)
	sb.WriteString("Reply with the table names only, separated by commas.\n\n")
	fmt.Fprintf(&sb, "REQUEST: %s\n\n", task.Description)
	sb.WriteString("TABLES:\n")
	for _, t := range tables {
		fmt.Fprintf(&sb, "- %s\n", t)
	}
	return sb.String()
}

// matchKnownTables picks the known table names out of a free-text reply,
// in reply order, compared case-insensitively.
func matchKnownTables(reply string, known []string, limit int) []string {
	index := make(map[string]string, len(known))
	for _, k := range known {
		index[strings.ToLower(k)] = k
	}

	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t'
	})

	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		name := strings.ToLower(strings.Trim(f, "-*`\"'[]()."))
		canonical, ok := index[name]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "to": true, "by": true, "per": true, "with": true, "from": true, "all": true,
	"this": true, "that": true, "each": true, "total": true, "number": true, "count": true,
	"how": true, "many": true, "what": true, "which": true, "is": true, "are": true,
	"month": true, "week": true, "year": true, "day": true, "today": true, "last": true,
}

// tokenize lowercases s, splits on anything that is not a letter or digit,
// drops short and stop words and stems what remains.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips common English plural and verb suffixes.
func stem(w string) string {
	switch {
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return w[:len(w)-3]
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return w[:len(w)-2]
	case len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss"):
		return w[:len(w)-1]
	}
	return w
}

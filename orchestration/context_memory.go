package orchestration

import (
	"fmt"
	"strings"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/schema"
)

// ContextMemory is the compact projection of a ResourcePool shown to the
// reasoning service. It carries flags and counts only, never column lists,
// and is rebuilt from the pool whenever it is needed.
type ContextMemory struct {
	HasQuery            bool `json:"has_query"`
	SchemaAvailable     bool `json:"schema_available"`
	AvailableTableCount int  `json:"available_table_count"`
	ColumnDetailsKnown  bool `json:"column_details_known"`
	DescribedTableCount int  `json:"described_table_count"`
	SelectedTableCount  int  `json:"selected_table_count"`
	ObservationCount    int  `json:"observation_count"`
}

// Snapshot projects the pool and loop state into a ContextMemory.
func Snapshot(pool *ResourcePool, ec ExecutionContext) ContextMemory {
	described := pool.DescribedTableCount()
	return ContextMemory{
		HasQuery:            strings.TrimSpace(ec.CurrentQuery) != "",
		SchemaAvailable:     pool.SchemaAvailable(),
		AvailableTableCount: len(pool.AvailableTables()),
		ColumnDetailsKnown:  described > 0,
		DescribedTableCount: described,
		SelectedTableCount:  len(pool.SelectedTables()),
		ObservationCount:    len(ec.Observations),
	}
}

// ContextStrategy decides how much of the pool a prompt carries. Both
// modes run through the same planner and executor; only the rendering differs.
type ContextStrategy interface {
	// Name returns the context mode the strategy implements
	Name() string

	// RenderState describes what is known, for decision prompts
	RenderState(mem ContextMemory, pool *ResourcePool) string

	// RenderSchema renders the column details used to write a query
	RenderSchema(pool *ResourcePool) string
}

// NewContextStrategy returns the strategy for a context mode. Unknown
// modes fall back to curated.
func NewContextStrategy(mode string, tokenBudget int, counter TokenCounter) ContextStrategy {
	if mode == core.ContextModeFull {
		return &FullStrategy{}
	}
	return NewCuratedStrategy(tokenBudget, counter)
}

// maxListedTables caps the table names a curated state block shows
const maxListedTables = 40

// CuratedStrategy shows flags and counts each turn, and the column details
// of the selected tables only when a query is being written. Schema
// fragments are added table by table until the token budget is spent.
type CuratedStrategy struct {
	tokenBudget int
	counter     TokenCounter
}

// NewCuratedStrategy creates a curated strategy. tokenBudget <= 0 disables the cap.
func NewCuratedStrategy(tokenBudget int, counter TokenCounter) *CuratedStrategy {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &CuratedStrategy{tokenBudget: tokenBudget, counter: counter}
}

func (s *CuratedStrategy) Name() string { return core.ContextModeCurated }

func (s *CuratedStrategy) RenderState(mem ContextMemory, pool *ResourcePool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- query drafted: %t\n", mem.HasQuery)
	fmt.Fprintf(&sb, "- table list fetched: %t (%d tables)\n", mem.SchemaAvailable, mem.AvailableTableCount)
	fmt.Fprintf(&sb, "- column details known: %t (%d tables described)\n", mem.ColumnDetailsKnown, mem.DescribedTableCount)
	if mem.SelectedTableCount > 0 {
		fmt.Fprintf(&sb, "- relevant tables: %s\n", strings.Join(pool.SelectedTables(), ", "))
	}
	if mem.SchemaAvailable {
		tables := pool.AvailableTables()
		listed := tables
		if len(listed) > maxListedTables {
			listed = listed[:maxListedTables]
		}
		fmt.Fprintf(&sb, "- available tables: %s", strings.Join(listed, ", "))
		if omitted := len(tables) - len(listed); omitted > 0 {
			fmt.Fprintf(&sb, " (%d more not shown)", omitted)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (s *CuratedStrategy) RenderSchema(pool *ResourcePool) string {
	details := pool.ColumnDetails()
	if len(details) == 0 {
		return ""
	}

	// Selected tables first, then anything else that was described
	order := make([]string, 0, len(details))
	seen := make(map[string]bool, len(details))
	for _, t := range pool.SelectedTables() {
		if _, ok := details[t]; ok && !seen[t] {
			order = append(order, t)
			seen[t] = true
		}
	}
	for _, t := range details.Tables() {
		if !seen[t] {
			order = append(order, t)
			seen[t] = true
		}
	}

	var sb strings.Builder
	used := 0
	for i, table := range order {
		line := renderTable(table, details[table])
		cost := s.counter.Count(line)
		if s.tokenBudget > 0 && i > 0 && used+cost > s.tokenBudget {
			fmt.Fprintf(&sb, "(%d more tables omitted)\n", len(order)-i)
			break
		}
		sb.WriteString(line)
		used += cost
	}
	return sb.String()
}

// FullStrategy forwards every known table and column on every turn.
type FullStrategy struct{}

func (s *FullStrategy) Name() string { return core.ContextModeFull }

func (s *FullStrategy) RenderState(mem ContextMemory, pool *ResourcePool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- query drafted: %t\n", mem.HasQuery)
	if mem.SchemaAvailable {
		fmt.Fprintf(&sb, "- available tables: %s\n", strings.Join(pool.AvailableTables(), ", "))
	} else {
		sb.WriteString("- available tables: not fetched\n")
	}
	if schemaText := s.RenderSchema(pool); schemaText != "" {
		sb.WriteString("- column details:\n")
		sb.WriteString(schemaText)
	}
	return sb.String()
}

func (s *FullStrategy) RenderSchema(pool *ResourcePool) string {
	details := pool.ColumnDetails()
	var sb strings.Builder
	for _, table := range details.Tables() {
		sb.WriteString(renderTable(table, details[table]))
	}
	return sb.String()
}

// renderTable formats one table as "  table: col TYPE pk, col TYPE null".
func renderTable(table string, cols []schema.Column) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		p := c.Name
		if c.Type != "" {
			p += " " + c.Type
		}
		if c.PrimaryKey {
			p += " pk"
		}
		if c.Nullable {
			p += " null"
		}
		parts = append(parts, p)
	}
	return fmt.Sprintf("  %s: %s\n", table, strings.Join(parts, ", "))
}

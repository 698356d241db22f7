package orchestration

import (
	"sort"
	"time"

	"github.com/itsneelabh/querysynth/core"
	"github.com/itsneelabh/querysynth/schema"
	"github.com/itsneelabh/querysynth/sqlexec"
)

// Entry is a pool value with its freshness marker.
type Entry struct {
	Value     interface{}
	Version   int
	Iteration int
	UpdatedAt time.Time
}

// ExecutionRecord is the last sandbox outcome kept in the pool.
type ExecutionRecord struct {
	Query    string
	Columns  []string
	RowCount int
	Error    *sqlexec.Error
}

// ResourcePool holds everything learned during one task. Writes replace
// the whole value of a key; there are no partial merges except for column
// details, where tables are only ever added or truncated.
//
// A pool belongs to one task and is not safe for concurrent use.
type ResourcePool struct {
	entries            map[string]Entry
	iteration          int
	maxColumnsPerTable int
	now                func() time.Time
}

// NewResourcePool creates an empty pool. maxColumnsPerTable <= 0 disables truncation.
func NewResourcePool(maxColumnsPerTable int) *ResourcePool {
	return &ResourcePool{
		entries:            make(map[string]Entry),
		maxColumnsPerTable: maxColumnsPerTable,
		now:                time.Now,
	}
}

// SetIteration stamps subsequent writes with the loop iteration
func (p *ResourcePool) SetIteration(iteration int) {
	p.iteration = iteration
}

// Set stores value under key, last writer wins
func (p *ResourcePool) Set(key string, value interface{}) {
	prev := p.entries[key]
	p.entries[key] = Entry{
		Value:     value,
		Version:   prev.Version + 1,
		Iteration: p.iteration,
		UpdatedAt: p.now(),
	}
}

// Get returns the entry for key
func (p *ResourcePool) Get(key string) (Entry, bool) {
	e, ok := p.entries[key]
	return e, ok
}

// Keys returns the populated keys in sorted order
func (p *ResourcePool) Keys() []string {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetAvailableTables stores the table list sorted and de-duplicated,
// so repeated listings produce an identical entry value.
func (p *ResourcePool) SetAvailableTables(tables []string) {
	p.Set(core.KeyAvailableTables, schema.NormalizeTables(tables))
}

// AvailableTables returns a copy of the known table list
func (p *ResourcePool) AvailableTables() []string {
	e, ok := p.entries[core.KeyAvailableTables]
	if !ok {
		return nil
	}
	tables, _ := e.Value.([]string)
	return append([]string(nil), tables...)
}

// SchemaAvailable reports whether the table list has been fetched
func (p *ResourcePool) SchemaAvailable() bool {
	_, ok := p.entries[core.KeyAvailableTables]
	return ok
}

// MergeColumns folds newly described tables into the column details.
// Every previously known table is kept; a table whose column list exceeds
// the cap is truncated. Returns the tables that were truncated.
func (p *ResourcePool) MergeColumns(incoming schema.TableColumns) []string {
	merged := p.columnDetails()
	next := make(schema.TableColumns, len(merged)+len(incoming))
	for table, cols := range merged {
		next[table] = cols
	}

	var truncated []string
	for _, table := range incoming.Tables() {
		if _, known := next[table]; known && len(incoming[table]) == 0 {
			continue
		}
		cols := append([]schema.Column(nil), incoming[table]...)
		if p.maxColumnsPerTable > 0 && len(cols) > p.maxColumnsPerTable {
			cols = cols[:p.maxColumnsPerTable]
			truncated = append(truncated, table)
		}
		next[table] = cols
	}

	p.Set(core.KeyColumnDetails, next)
	return truncated
}

// ColumnDetails returns a copy of the described tables
func (p *ResourcePool) ColumnDetails() schema.TableColumns {
	details := p.columnDetails()
	out := make(schema.TableColumns, len(details))
	for table, cols := range details {
		out[table] = append([]schema.Column(nil), cols...)
	}
	return out
}

func (p *ResourcePool) columnDetails() schema.TableColumns {
	e, ok := p.entries[core.KeyColumnDetails]
	if !ok {
		return nil
	}
	details, _ := e.Value.(schema.TableColumns)
	return details
}

// DescribedTableCount returns how many tables have column details
func (p *ResourcePool) DescribedTableCount() int {
	return len(p.columnDetails())
}

// SetCurrentQuery stores the current query text
func (p *ResourcePool) SetCurrentQuery(query string) {
	p.Set(core.KeyCurrentQuery, query)
}

// CurrentQuery returns the stored query text
func (p *ResourcePool) CurrentQuery() string {
	e, ok := p.entries[core.KeyCurrentQuery]
	if !ok {
		return ""
	}
	q, _ := e.Value.(string)
	return q
}

// SetSelectedTables stores the tables judged relevant to the task
func (p *ResourcePool) SetSelectedTables(tables []string) {
	p.Set(core.KeySelectedTables, append([]string(nil), tables...))
}

// SelectedTables returns the tables judged relevant, in selection order
func (p *ResourcePool) SelectedTables() []string {
	e, ok := p.entries[core.KeySelectedTables]
	if !ok {
		return nil
	}
	tables, _ := e.Value.([]string)
	return append([]string(nil), tables...)
}

// SetLastExecution stores the outcome of the most recent sandbox call
func (p *ResourcePool) SetLastExecution(rec ExecutionRecord) {
	p.Set(core.KeyLastExecution, rec)
}

// LastExecution returns the most recent sandbox outcome
func (p *ResourcePool) LastExecution() (ExecutionRecord, bool) {
	e, ok := p.entries[core.KeyLastExecution]
	if !ok {
		return ExecutionRecord{}, false
	}
	rec, ok := e.Value.(ExecutionRecord)
	return rec, ok
}

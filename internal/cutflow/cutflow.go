// Package cutflow accumulates per-filter pass/total statistics across one
// evaluation pass and exposes them as an immutable report.
//
// Counters are registered at plan construction time, single-threaded, in
// declaration order. Increments happen during the pass and may come from
// many workers at once, so both counts are atomic. Registering a name
// that already exists returns the existing counter: duplicate filter
// names share one line in the report.
package cutflow

import (
	"sync/atomic"
)

// Counter tracks how many rows a named filter saw and how many passed.
type Counter struct {
	name  string
	pass  atomic.Int64
	total atomic.Int64
}

// Seen records one row arriving at the filter.
func (c *Counter) Seen() { c.total.Add(1) }

// Passed records one row satisfying the filter.
func (c *Counter) Passed() { c.pass.Add(1) }

// Accumulator owns the ordered set of filter counters for one plan.
type Accumulator struct {
	entries []*Counter
	index   map[string]*Counter
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{index: make(map[string]*Counter)}
}

// Register returns the counter for the given filter name, creating it at
// the end of the declaration order on first sight. Registration is not
// safe for concurrent use; it happens while the plan is being built.
func (a *Accumulator) Register(name string) *Counter {
	if c, ok := a.index[name]; ok {
		return c
	}
	c := &Counter{name: name}
	a.index[name] = c
	a.entries = append(a.entries, c)
	return c
}

// Len returns the number of distinct registered filter names.
func (a *Accumulator) Len() int { return len(a.entries) }

// Snapshot freezes the current counts into a read-only report.
// rootTotal is the number of rows read from the source during the pass;
// it is the denominator for cumulative efficiencies.
func (a *Accumulator) Snapshot(rootTotal int64) *Report {
	entries := make([]Entry, len(a.entries))
	for i, c := range a.entries {
		entries[i] = Entry{
			Name:  c.name,
			Pass:  c.pass.Load(),
			Total: c.total.Load(),
		}
	}
	return &Report{RootTotal: rootTotal, Entries: entries}
}

// Entry is one filter's statistics: rows seen at the filter and rows passed.
type Entry struct {
	Name  string
	Pass  int64
	Total int64
}

// Efficiency is Pass/Total, 0 when the filter saw no rows.
func (e Entry) Efficiency() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Pass) / float64(e.Total)
}

// Report is the immutable cutflow of one evaluation pass, in filter
// declaration order.
type Report struct {
	RootTotal int64
	Entries   []Entry
}

// Cumulative is entry i's pass count over the rows read at the source
// root, 0 when the source produced no rows.
func (r *Report) Cumulative(i int) float64 {
	if r.RootTotal == 0 {
		return 0
	}
	return float64(r.Entries[i].Pass) / float64(r.RootTotal)
}

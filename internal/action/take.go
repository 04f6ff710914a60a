package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lazyframe/internal/schema"
)

// Take collects one or more columns of every surviving row into
// column-oriented buffers, preserving source row order even when rows
// arrive out of order from parallel workers.
type Take struct {
	columns []string

	mu    sync.Mutex
	cells []indexed[[]cty.Value]

	out map[string][]cty.Value
}

// NewTake builds an export over the given columns.
func NewTake(columns ...string) *Take {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Take{columns: cols}
}

// Columns returns the exported column names.
func (t *Take) Columns() []string { return t.columns }

// Accept implements Accumulator.
func (t *Take) Accept(idx int64, row schema.Row) error {
	vals := make([]cty.Value, len(t.columns))
	for i, name := range t.columns {
		v, ok := row[name]
		if !ok {
			return fmt.Errorf("take: row has no column %q", name)
		}
		vals[i] = v
	}
	t.mu.Lock()
	t.cells = append(t.cells, indexed[[]cty.Value]{idx: idx, val: vals})
	t.mu.Unlock()
	return nil
}

// Finalize implements Accumulator: restores source order and pivots the
// buffered rows into per-column slices.
func (t *Take) Finalize() error {
	sort.Slice(t.cells, func(i, j int) bool { return t.cells[i].idx < t.cells[j].idx })
	t.out = make(map[string][]cty.Value, len(t.columns))
	for i, name := range t.columns {
		buf := make([]cty.Value, len(t.cells))
		for j, c := range t.cells {
			buf[j] = c.val[i]
		}
		t.out[name] = buf
	}
	t.cells = nil
	return nil
}

// Len returns the number of collected rows; valid after Finalize.
func (t *Take) Len() int {
	if t.out == nil {
		return 0
	}
	for _, buf := range t.out {
		return len(buf)
	}
	return 0
}

// Column returns the buffer for one column as a borrowed view: the slice
// is owned by the Take result and stays valid while it is alive; callers
// that outlive the result must copy.
func (t *Take) Column(name string) ([]cty.Value, bool) {
	buf, ok := t.out[name]
	return buf, ok
}

// Float64s converts one collected column to float64s. The returned slice
// is freshly allocated and owned by the caller.
func (t *Take) Float64s(name string) ([]float64, error) {
	buf, ok := t.out[name]
	if !ok {
		return nil, fmt.Errorf("take: no column %q collected", name)
	}
	out := make([]float64, len(buf))
	for i, v := range buf {
		f, err := schema.Float64Value(v)
		if err != nil {
			return nil, fmt.Errorf("take: column %q row %d: %w", name, i, err)
		}
		out[i] = f
	}
	return out, nil
}

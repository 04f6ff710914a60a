package action

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/lazyframe/internal/schema"
)

// Count counts surviving rows.
type Count struct {
	n     atomic.Int64
	total int64
}

// NewCount returns an empty counter.
func NewCount() *Count { return &Count{} }

// Accept implements Accumulator.
func (c *Count) Accept(_ int64, _ schema.Row) error {
	c.n.Add(1)
	return nil
}

// Finalize implements Accumulator.
func (c *Count) Finalize() error {
	c.total = c.n.Load()
	return nil
}

// Value returns the surviving-row count; valid after Finalize.
func (c *Count) Value() int64 { return c.total }

// Mean accumulates the arithmetic mean of a numeric column. Sum and count
// are folded under a mutex; addition is associative, so arrival order
// under parallel dispatch does not change the result.
type Mean struct {
	column string

	mu  sync.Mutex
	sum float64
	n   int64

	mean float64
}

// NewMean returns an empty mean over the given column.
func NewMean(column string) *Mean { return &Mean{column: column} }

// Column returns the projected column name.
func (m *Mean) Column() string { return m.column }

// Accept implements Accumulator.
func (m *Mean) Accept(_ int64, row schema.Row) error {
	f, err := row.Float64(m.column)
	if err != nil {
		return fmt.Errorf("mean %q: %w", m.column, err)
	}
	m.mu.Lock()
	m.sum += f
	m.n++
	m.mu.Unlock()
	return nil
}

// Finalize implements Accumulator. The mean of zero rows is 0.
func (m *Mean) Finalize() error {
	if m.n > 0 {
		m.mean = m.sum / float64(m.n)
	}
	return nil
}

// Value returns the mean; valid after Finalize.
func (m *Mean) Value() float64 { return m.mean }

// Entries returns how many rows contributed; valid after Finalize.
func (m *Mean) Entries() int64 { return m.n }

package source

import (
	"context"

	"github.com/vk/lazyframe/internal/schema"
)

// Memory is a Source backed by a slice of rows. It backs tests and small
// embedded datasets; iteration is restartable.
type Memory struct {
	name string
	sch  *schema.Schema
	rows []schema.Row
}

// NewMemory wraps pre-built rows as a source. The rows are not copied;
// callers must not mutate them afterwards.
func NewMemory(name string, sch *schema.Schema, rows []schema.Row) *Memory {
	return &Memory{name: name, sch: sch, rows: rows}
}

// Name implements Source.
func (m *Memory) Name() string { return m.name }

// Schema implements Source.
func (m *Memory) Schema() *schema.Schema { return m.sch }

// Rows implements Source.
func (m *Memory) Rows(_ context.Context) (Iterator, error) {
	return &memoryIterator{rows: m.rows, pos: -1}, nil
}

type memoryIterator struct {
	rows []schema.Row
	pos  int
}

func (it *memoryIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

func (it *memoryIterator) Row() schema.Row { return it.rows[it.pos] }

func (it *memoryIterator) Err() error { return nil }

func (it *memoryIterator) Close() error { return nil }

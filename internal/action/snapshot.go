package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/lazyframe/internal/schema"
	"github.com/vk/lazyframe/internal/sink"
)

// Snapshot buffers surviving rows and, after a clean pass, streams them
// to a persistence sink in source order. The sink sees nothing from a
// failed pass.
type Snapshot struct {
	columns []string
	dest    sink.Sink

	mu   sync.Mutex
	rows []indexed[schema.Row]

	written int64
}

// NewSnapshot builds a snapshot of the given columns into dest.
func NewSnapshot(dest sink.Sink, columns ...string) *Snapshot {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Snapshot{columns: cols, dest: dest}
}

// Columns returns the persisted column names.
func (s *Snapshot) Columns() []string { return s.columns }

// Accept implements Accumulator.
func (s *Snapshot) Accept(idx int64, row schema.Row) error {
	s.mu.Lock()
	s.rows = append(s.rows, indexed[schema.Row]{idx: idx, val: row})
	s.mu.Unlock()
	return nil
}

// Finalize implements Accumulator: sorts the buffered rows back into
// source order and writes them through the sink.
func (s *Snapshot) Finalize() error {
	sort.Slice(s.rows, func(i, j int) bool { return s.rows[i].idx < s.rows[j].idx })
	if err := s.dest.Begin(s.columns); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	for _, r := range s.rows {
		if err := s.dest.Write(r.val); err != nil {
			s.dest.Close()
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	s.written = int64(len(s.rows))
	s.rows = nil
	if err := s.dest.Close(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// Written returns the number of rows persisted; valid after Finalize.
func (s *Snapshot) Written() int64 { return s.written }

package frame

import (
	"context"

	"github.com/vk/lazyframe/internal/action"
	"github.com/vk/lazyframe/internal/cutflow"
)

// Result handles are created empty at booking time and filled exactly
// once, by the shared pass the first Value call triggers. There is no
// way to peek at a value without triggering evaluation. Value is
// idempotent and safe to call from multiple goroutines.

// HistoResult is the handle to a booked histogram.
type HistoResult struct {
	st *state
	h  *action.Histogram
}

// Value triggers the pass if needed and returns the frozen histogram.
func (r *HistoResult) Value(ctx context.Context) (*action.HistogramSnapshot, error) {
	if err := r.st.run(ctx); err != nil {
		return nil, err
	}
	return r.h.Snapshot(), nil
}

// TakeResult is the handle to a booked column export.
type TakeResult struct {
	st *state
	t  *action.Take
}

// Value triggers the pass if needed and returns the finalized export.
// Column buffers inside it are borrowed views owned by the export.
func (r *TakeResult) Value(ctx context.Context) (*action.Take, error) {
	if err := r.st.run(ctx); err != nil {
		return nil, err
	}
	return r.t, nil
}

// SnapshotResult is the handle to a booked persistence action.
type SnapshotResult struct {
	st *state
	s  *action.Snapshot
}

// Value triggers the pass if needed and returns the number of rows
// written through the sink.
func (r *SnapshotResult) Value(ctx context.Context) (int64, error) {
	if err := r.st.run(ctx); err != nil {
		return 0, err
	}
	return r.s.Written(), nil
}

// CountResult is the handle to a booked row count.
type CountResult struct {
	st *state
	c  *action.Count
}

// Value triggers the pass if needed and returns the surviving-row count.
func (r *CountResult) Value(ctx context.Context) (int64, error) {
	if err := r.st.run(ctx); err != nil {
		return 0, err
	}
	return r.c.Value(), nil
}

// MeanResult is the handle to a booked column mean.
type MeanResult struct {
	st *state
	m  *action.Mean
}

// Value triggers the pass if needed and returns the mean.
func (r *MeanResult) Value(ctx context.Context) (float64, error) {
	if err := r.st.run(ctx); err != nil {
		return 0, err
	}
	return r.m.Value(), nil
}

// ReportHandle is the handle to the plan's shared cutflow accumulator.
type ReportHandle struct {
	st *state
}

// Value triggers the pass if needed and returns the frozen cutflow, one
// entry per named filter in declaration order.
func (r *ReportHandle) Value(ctx context.Context) (*cutflow.Report, error) {
	if err := r.st.run(ctx); err != nil {
		return nil, err
	}
	return r.st.cut.Snapshot(r.st.rowsRead.Load()), nil
}

package frame

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/lazyframe/internal/action"
	"github.com/vk/lazyframe/internal/cutflow"
	"github.com/vk/lazyframe/internal/expr"
	"github.com/vk/lazyframe/internal/schema"
	"github.com/vk/lazyframe/internal/sink"
	"github.com/vk/lazyframe/internal/source"
)

// state is the execution plan shared by every Frame handle chained off
// the same source: the node tree, the booked actions, the cutflow
// accumulator and the once-only pass bookkeeping.
type state struct {
	src     source.Source
	cut     *cutflow.Accumulator
	funcs   map[string]function.Function
	workers int

	root    *node
	actions []*node

	rowsRead      atomic.Int64
	sawSaturation atomic.Bool
	started       atomic.Bool
	once          sync.Once
	runErr        error
}

// Frame is a handle onto one point of the plan. Chaining methods return
// a new handle; all handles share the same state, so every booked result
// is filled by the same single pass.
type Frame struct {
	st   *state
	tail *node
	sch  *schema.Schema
}

// Option configures a frame at construction time.
type Option func(*state)

// WithWorkers sets the evaluation worker count. 1 (the default) is the
// exact sequential walk; higher values dispatch row batches to a pool.
func WithWorkers(n int) Option {
	return func(s *state) {
		if n < 1 {
			n = 1
		}
		s.workers = n
	}
}

// WithFunction registers an extra function usable inside snippets. This
// is the explicit pre-construction registration step for compiled user
// logic; the engine never compiles anything at evaluation time.
func WithFunction(name string, fn function.Function) Option {
	return func(s *state) { s.funcs[name] = fn }
}

// New wraps a source in an empty frame.
func New(src source.Source, opts ...Option) *Frame {
	st := &state{
		src:     src,
		cut:     cutflow.NewAccumulator(),
		funcs:   expr.Functions(),
		workers: 1,
		root:    &node{kind: rootNode},
	}
	for _, opt := range opts {
		opt(st)
	}
	return &Frame{st: st, tail: st.root, sch: src.Schema()}
}

// Schema returns the columns visible at this point of the chain,
// including upstream defines.
func (f *Frame) Schema() *schema.Schema { return f.sch }

// Filter appends a filter stage compiled from a snippet. name is the
// cutflow label; an empty name cuts rows without being reported.
// Unknown column references and parse failures fail here, before the
// node is linked.
func (f *Frame) Filter(name, snippet string) (*Frame, error) {
	if f.st.started.Load() {
		return nil, ErrPlanFrozen
	}
	pred, err := f.compile(snippet)
	if err != nil {
		return nil, err
	}
	n := &node{kind: filterNode, name: name, pred: pred}
	if name != "" {
		n.counter = f.st.cut.Register(name)
	}
	f.tail.attach(n)
	return &Frame{st: f.st, tail: n, sch: f.sch}, nil
}

// FilterFn appends a filter stage backed by a pre-resolved Go predicate.
func (f *Frame) FilterFn(name string, fn func(schema.Row) (bool, error)) (*Frame, error) {
	if f.st.started.Load() {
		return nil, ErrPlanFrozen
	}
	n := &node{kind: filterNode, name: name, predFn: fn}
	if name != "" {
		n.counter = f.st.cut.Register(name)
	}
	f.tail.attach(n)
	return &Frame{st: f.st, tail: n, sch: f.sch}, nil
}

// Define appends a derived column computed from a snippet. The name must
// not collide with any column visible at this point of the chain.
func (f *Frame) Define(name, snippet string) (*Frame, error) {
	if f.st.started.Load() {
		return nil, ErrPlanFrozen
	}
	if f.sch.Has(name) {
		return nil, &NameCollisionError{Name: name}
	}
	deriv, err := f.compile(snippet)
	if err != nil {
		return nil, err
	}
	n := &node{kind: defineNode, name: name, deriv: deriv}
	f.tail.attach(n)
	return &Frame{st: f.st, tail: n, sch: f.sch.Extend(name, cty.DynamicPseudoType)}, nil
}

// DefineFn appends a derived column computed by a pre-resolved Go
// function.
func (f *Frame) DefineFn(name string, fn func(schema.Row) (cty.Value, error)) (*Frame, error) {
	if f.st.started.Load() {
		return nil, ErrPlanFrozen
	}
	if f.sch.Has(name) {
		return nil, &NameCollisionError{Name: name}
	}
	n := &node{kind: defineNode, name: name, derivFn: fn}
	f.tail.attach(n)
	return &Frame{st: f.st, tail: n, sch: f.sch.Extend(name, cty.DynamicPseudoType)}, nil
}

// Range caps the rows flowing past this point at n. The counter belongs
// to this node alone: sibling branches are unaffected, and a second
// Range on a diverging branch counts independently.
func (f *Frame) Range(n int64) (*Frame, error) {
	if f.st.started.Load() {
		return nil, ErrPlanFrozen
	}
	if n < 0 {
		return nil, fmt.Errorf("range bound must be non-negative, got %d", n)
	}
	nd := &node{kind: rangeNode, limit: n}
	f.tail.attach(nd)
	return &Frame{st: f.st, tail: nd, sch: f.sch}, nil
}

// Histo1D books a fixed-binning histogram of a numeric column over the
// rows surviving this chain. Out-of-range values are dropped into
// under/overflow, never clamped.
func (f *Frame) Histo1D(column string, bins int, low, high float64) (*HistoResult, error) {
	if err := f.checkColumns(column); err != nil {
		return nil, err
	}
	h, err := action.NewHistogram(column, bins, low, high)
	if err != nil {
		return nil, err
	}
	if err := f.book(h); err != nil {
		return nil, err
	}
	return &HistoResult{st: f.st, h: h}, nil
}

// Take books a column export: the named columns of every surviving row,
// collected into column-oriented buffers in source row order.
func (f *Frame) Take(columns ...string) (*TakeResult, error) {
	if err := f.checkColumns(columns...); err != nil {
		return nil, err
	}
	t := action.NewTake(columns...)
	if err := f.book(t); err != nil {
		return nil, err
	}
	return &TakeResult{st: f.st, t: t}, nil
}

// Snapshot books persistence of the named columns through a sink. The
// sink receives rows in source order, and nothing at all from a failed
// pass.
func (f *Frame) Snapshot(dest sink.Sink, columns ...string) (*SnapshotResult, error) {
	if err := f.checkColumns(columns...); err != nil {
		return nil, err
	}
	s := action.NewSnapshot(dest, columns...)
	if err := f.book(s); err != nil {
		return nil, err
	}
	return &SnapshotResult{st: f.st, s: s}, nil
}

// Count books a count of the rows surviving this chain.
func (f *Frame) Count() (*CountResult, error) {
	c := action.NewCount()
	if err := f.book(c); err != nil {
		return nil, err
	}
	return &CountResult{st: f.st, c: c}, nil
}

// Mean books the arithmetic mean of a numeric column over surviving rows.
func (f *Frame) Mean(column string) (*MeanResult, error) {
	if err := f.checkColumns(column); err != nil {
		return nil, err
	}
	m := action.NewMean(column)
	if err := f.book(m); err != nil {
		return nil, err
	}
	return &MeanResult{st: f.st, m: m}, nil
}

// Report returns the handle to the shared cutflow accumulator. Like any
// result, its first Value call triggers the pass.
func (f *Frame) Report() *ReportHandle {
	return &ReportHandle{st: f.st}
}

// compile parses a snippet and checks its column references against the
// schema visible at this point of the chain.
func (f *Frame) compile(snippet string) (*expr.Compiled, error) {
	c, err := expr.Parse(snippet)
	if err != nil {
		return nil, &InvalidExpressionError{Expr: snippet, Err: err}
	}
	for _, ref := range c.References() {
		if !f.sch.Has(ref) {
			return nil, &InvalidExpressionError{Expr: snippet, Column: ref}
		}
	}
	return c, nil
}

// checkColumns validates that booked columns exist in the chain's schema.
func (f *Frame) checkColumns(columns ...string) error {
	for _, c := range columns {
		if !f.sch.Has(c) {
			return &InvalidExpressionError{Expr: c, Column: c}
		}
	}
	return nil
}

// book links a terminal action node at the current tail.
func (f *Frame) book(acc action.Accumulator) error {
	if f.st.started.Load() {
		return ErrPlanFrozen
	}
	n := &node{kind: actionNode, acc: acc}
	f.tail.attach(n)
	f.st.actions = append(f.st.actions, n)
	return nil
}

package frame

import (
	"fmt"
	"sync/atomic"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/lazyframe/internal/action"
	"github.com/vk/lazyframe/internal/cutflow"
	"github.com/vk/lazyframe/internal/expr"
	"github.com/vk/lazyframe/internal/schema"
)

// nodeKind tags the variants of a plan stage.
type nodeKind int

const (
	rootNode nodeKind = iota
	filterNode
	defineNode
	rangeNode
	actionNode
)

// node is one stage of the plan tree. The tree is built single-threaded
// at construction time and read-only during the pass; the only mutable
// per-pass state is the atomic counters.
type node struct {
	kind     nodeKind
	parent   *node
	children []*node

	// filterNode: exactly one of pred/predFn is set; counter is nil for
	// unnamed filters, which cut rows without appearing in the report.
	name    string
	pred    *expr.Compiled
	predFn  func(schema.Row) (bool, error)
	counter *cutflow.Counter

	// defineNode: the new column's name is in name; one of deriv/derivFn
	// is set.
	deriv   *expr.Compiled
	derivFn func(schema.Row) (cty.Value, error)

	// rangeNode
	limit int64
	taken atomic.Int64

	// actionNode
	acc action.Accumulator
}

// attach links a child built by the frame API. Linking happens only
// after all construction-time validation has passed.
func (n *node) attach(child *node) {
	child.parent = n
	n.children = append(n.children, child)
}

// evalPredicate runs the filter, whichever form it was supplied in.
func (n *node) evalPredicate(row schema.Row, funcs map[string]function.Function) (bool, error) {
	if n.predFn != nil {
		ok, err := n.predFn(row)
		if err != nil {
			return false, fmt.Errorf("filter %q: %w", n.name, err)
		}
		return ok, nil
	}
	return n.pred.EvalBool(row, funcs)
}

// evalDerivation computes the defined column's value for one row.
func (n *node) evalDerivation(row schema.Row, funcs map[string]function.Function) (cty.Value, error) {
	if n.derivFn != nil {
		v, err := n.derivFn(row)
		if err != nil {
			return cty.NilVal, fmt.Errorf("define %q: %w", n.name, err)
		}
		return v, nil
	}
	return n.deriv.Eval(row, funcs)
}

// saturated reports whether the range has already admitted its bound.
func (n *node) saturated() bool {
	return n.kind == rangeNode && n.taken.Load() >= n.limit
}

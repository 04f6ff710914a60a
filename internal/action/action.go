// Package action implements the terminal accumulators an evaluation pass
// feeds: histograms, column exports, snapshots and scalar reductions.
//
// Accumulators receive rows during the pass, possibly from several
// workers at once, so Accept must be safe for concurrent use. Each row
// carries the stable index it was assigned when read from the source;
// order-sensitive accumulators sort by it in Finalize, which runs once,
// single-threaded, only after a clean pass.
package action

import (
	"github.com/vk/lazyframe/internal/schema"
)

// Accumulator consumes the rows surviving the chain feeding one action.
type Accumulator interface {
	// Accept folds one surviving row in. idx is the row's position in
	// source order, unique across the whole pass.
	Accept(idx int64, row schema.Row) error
	// Finalize seals the accumulated state after a successful pass.
	Finalize() error
}

// indexed pairs a buffered value with its source-order position.
type indexed[T any] struct {
	idx int64
	val T
}

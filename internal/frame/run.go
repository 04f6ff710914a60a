package frame

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vk/lazyframe/internal/ctxlog"
	"github.com/vk/lazyframe/internal/schema"
	"github.com/vk/lazyframe/internal/source"
)

// run performs the evaluation pass at most once per state. The outcome,
// success or failure, is sticky: every caller observes the same result.
func (s *state) run(ctx context.Context) error {
	s.once.Do(func() {
		s.started.Store(true)
		s.runErr = s.evaluate(ctx)
	})
	return s.runErr
}

// evaluate iterates the source once, walks every row through the plan
// tree and finalizes the accumulators. Any failure aborts the pass
// before finalization, so no partial result is ever observable.
func (s *state) evaluate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx).With("source", s.src.Name())
	logger.Debug("Evaluation pass starting.", "workers", s.workers, "actions", len(s.actions))

	it, err := s.src.Rows(ctx)
	if err != nil {
		return &SourceReadError{Source: s.src.Name(), Err: err}
	}
	defer it.Close()

	if s.workers > 1 {
		err = s.evalParallel(ctx, it)
	} else {
		err = s.evalSequential(ctx, it)
	}
	if err != nil {
		logger.Error("Evaluation pass failed.", "error", err)
		return err
	}

	for _, a := range s.actions {
		if err := a.acc.Finalize(); err != nil {
			logger.Error("Action finalization failed.", "error", err)
			return fmt.Errorf("finalize action: %w", err)
		}
	}
	logger.Debug("Evaluation pass complete.", "rows", s.rowsRead.Load())
	return nil
}

// evalSequential is the single-threaded walk: one row at a time,
// root to leaves, in source order.
func (s *state) evalSequential(ctx context.Context, it source.Iterator) error {
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := s.rowsRead.Add(1) - 1
		if err := s.visit(s.root, idx, it.Row()); err != nil {
			return err
		}
		if s.sawSaturation.Load() && s.allExhausted() {
			break
		}
	}
	if err := it.Err(); err != nil {
		return &SourceReadError{Source: s.src.Name(), Err: err}
	}
	return nil
}

// evalParallel dispatches rows to a worker pool. Rows keep the stable
// index assigned at read time, so order-sensitive accumulators can
// restore source order; counters and bins are atomic, so accumulation is
// order-independent. A saturated range stops dispatch into its subtree
// via the shared atomic counter; rows already dispatched complete.
func (s *state) evalParallel(ctx context.Context, it source.Iterator) error {
	type job struct {
		idx int64
		row schema.Row
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, s.workers*2)

	for i := 0; i < s.workers; i++ {
		g.Go(func() error {
			for j := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := s.visit(s.root, j.idx, j.row); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for it.Next() {
			idx := s.rowsRead.Add(1) - 1
			select {
			case jobs <- job{idx: idx, row: it.Row()}:
			case <-gctx.Done():
				return gctx.Err()
			}
			if s.sawSaturation.Load() && s.allExhausted() {
				break
			}
		}
		if err := it.Err(); err != nil {
			return &SourceReadError{Source: s.src.Name(), Err: err}
		}
		return nil
	})

	return g.Wait()
}

// visit walks one row down the plan tree. Filters short-circuit their
// branch; defines extend a copy of the row, so siblings never see each
// other's columns; ranges admit rows until their bound; actions
// accumulate. Children run in declaration order.
func (s *state) visit(n *node, idx int64, row schema.Row) error {
	switch n.kind {
	case filterNode:
		if n.counter != nil {
			n.counter.Seen()
		}
		ok, err := n.evalPredicate(row, s.funcs)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if n.counter != nil {
			n.counter.Passed()
		}
	case defineNode:
		v, err := n.evalDerivation(row, s.funcs)
		if err != nil {
			return err
		}
		row = row.With(n.name, v)
	case rangeNode:
		t := n.taken.Add(1)
		if t >= n.limit {
			s.sawSaturation.Store(true)
		}
		if t > n.limit {
			return nil
		}
	case actionNode:
		return n.acc.Accept(idx, row)
	}
	for _, child := range n.children {
		if err := s.visit(child, idx, row); err != nil {
			return err
		}
	}
	return nil
}

// allExhausted reports whether every action sits below a saturated
// range, in which case reading further rows cannot change any result.
// Cutflow counters upstream of the ranges stop too; the pass is over.
func (s *state) allExhausted() bool {
	if len(s.actions) == 0 {
		return false
	}
	for _, a := range s.actions {
		covered := false
		for n := a.parent; n != nil; n = n.parent {
			if n.saturated() {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}

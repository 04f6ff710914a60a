package frame_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lazyframe/internal/frame"
	"github.com/vk/lazyframe/internal/schema"
	"github.com/vk/lazyframe/internal/source"
)

// trackSchema is the two-column layout used by most tests: an event
// multiplicity n and a list of charges q.
func trackSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.New(
		schema.Column{Name: "n", Type: cty.Number},
		schema.Column{Name: "q", Type: cty.List(cty.Number)},
	)
	require.NoError(t, err)
	return sch
}

// trackRows is the reference dataset: row 1 passes both filters, row 2
// fails the charge filter, row 3 fails the multiplicity filter.
func trackRows() []schema.Row {
	return []schema.Row{
		{"n": cty.NumberIntVal(2), "q": cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(-1)})},
		{"n": cty.NumberIntVal(2), "q": cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(1)})},
		{"n": cty.NumberIntVal(3), "q": cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(-1), cty.NumberIntVal(1)})},
	}
}

// numberRows builds single-column rows 0..count-1.
func numberRows(count int) []schema.Row {
	rows := make([]schema.Row, count)
	for i := range rows {
		rows[i] = schema.Row{"x": cty.NumberIntVal(int64(i))}
	}
	return rows
}

func numberSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.New(schema.Column{Name: "x", Type: cty.Number})
	require.NoError(t, err)
	return sch
}

// countingSource wraps a source and counts how many iterations start.
type countingSource struct {
	source.Source
	opens atomic.Int64
}

func (c *countingSource) Rows(ctx context.Context) (source.Iterator, error) {
	c.opens.Add(1)
	return c.Source.Rows(ctx)
}

// failingSource yields a fixed number of rows, then fails.
type failingSource struct {
	sch  *schema.Schema
	good int
}

func (f *failingSource) Name() string           { return "failing" }
func (f *failingSource) Schema() *schema.Schema { return f.sch }

func (f *failingSource) Rows(_ context.Context) (source.Iterator, error) {
	return &failingIterator{remaining: f.good}, nil
}

type failingIterator struct {
	remaining int
	err       error
}

func (it *failingIterator) Next() bool {
	if it.remaining == 0 {
		it.err = errors.New("disk on fire")
		return false
	}
	it.remaining--
	return true
}

func (it *failingIterator) Row() schema.Row { return schema.Row{"x": cty.NumberIntVal(1)} }
func (it *failingIterator) Err() error      { return it.err }
func (it *failingIterator) Close() error    { return nil }

func TestEvaluation_SinglePassSharedByAllResults(t *testing.T) {
	t.Parallel()

	src := &countingSource{Source: source.NewMemory("tracks", trackSchema(t), trackRows())}
	f := frame.New(src)

	filtered, err := f.Filter("n==2", "n == 2")
	require.NoError(t, err)

	count, err := filtered.Count()
	require.NoError(t, err)
	take, err := filtered.Take("n")
	require.NoError(t, err)
	report := filtered.Report()

	ctx := context.Background()
	n, err := count.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	exported, err := take.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, exported.Len())

	rep, err := report.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), rep.RootTotal)

	require.Equal(t, int64(1), src.opens.Load(), "three result reads must share one pass")
}

func TestEvaluation_CutFlowScenario(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("tracks", trackSchema(t), trackRows())
	f := frame.New(src)

	f, err := f.Filter("n==2", "n == 2")
	require.NoError(t, err)
	f, err = f.Filter("q[0]!=q[1]", "q[0] != q[1]")
	require.NoError(t, err)
	f, err = f.Define("prod", "q[0] * q[1]")
	require.NoError(t, err)

	histo, err := f.Histo1D("prod", 4, -2, 2)
	require.NoError(t, err)

	rep, err := f.Report().Value(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Entries, 2)
	require.Equal(t, "n==2", rep.Entries[0].Name)
	require.Equal(t, int64(2), rep.Entries[0].Pass)
	require.Equal(t, int64(3), rep.Entries[0].Total)
	require.Equal(t, "q[0]!=q[1]", rep.Entries[1].Name)
	require.Equal(t, int64(1), rep.Entries[1].Pass)
	require.Equal(t, int64(2), rep.Entries[1].Total)

	require.InDelta(t, 2.0/3.0, rep.Entries[0].Efficiency(), 1e-9)
	require.InDelta(t, 1.0/2.0, rep.Entries[1].Efficiency(), 1e-9)
	require.InDelta(t, 2.0/3.0, rep.Cumulative(0), 1e-9)
	require.InDelta(t, 1.0/3.0, rep.Cumulative(1), 1e-9)

	snap, err := histo.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), snap.Entries, "one row survives the full chain")
}

func TestEvaluation_DivergentBranchesAccumulateIndependently(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(10))
	base, err := frame.New(src).Filter("x<8", "x < 8")
	require.NoError(t, err)

	// Branch A books directly; branch B adds one more filter first.
	histoA, err := base.Histo1D("x", 8, 0, 8)
	require.NoError(t, err)
	branchB, err := base.Filter("even", "x % 2 == 0")
	require.NoError(t, err)
	histoB, err := branchB.Histo1D("x", 8, 0, 8)
	require.NoError(t, err)

	ctx := context.Background()
	snapA, err := histoA.Value(ctx)
	require.NoError(t, err)
	snapB, err := histoB.Value(ctx)
	require.NoError(t, err)

	require.Equal(t, int64(8), snapA.Entries)
	require.Equal(t, int64(4), snapB.Entries)

	rep, err := base.Report().Value(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Entries, 2)
	require.Equal(t, int64(10), rep.Entries[0].Total, "shared upstream filter counted once, not per branch")
	require.Equal(t, int64(8), rep.Entries[0].Pass)
	require.Equal(t, int64(8), rep.Entries[1].Total)
	require.Equal(t, int64(4), rep.Entries[1].Pass)
}

func TestRange_BoundsBranchWithoutAffectingSiblings(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(20))
	f := frame.New(src)

	bounded, err := f.Range(5)
	require.NoError(t, err)
	boundedCount, err := bounded.Count()
	require.NoError(t, err)

	fullCount, err := f.Count()
	require.NoError(t, err)

	ctx := context.Background()
	n, err := boundedCount.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	full, err := fullCount.Value(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(20), full, "sibling branch must not be bounded")
}

func TestRange_StopsSourceWhenAllBranchesExhausted(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(1000))
	bounded, err := frame.New(src).Range(7)
	require.NoError(t, err)
	count, err := bounded.Count()
	require.NoError(t, err)

	n, err := count.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	rep, err := bounded.Report().Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(7), rep.RootTotal, "pass must stop reading once every action is range-saturated")
}

func TestRange_CapsAtNaturalSurvivorCount(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(4))
	bounded, err := frame.New(src).Range(100)
	require.NoError(t, err)
	count, err := bounded.Count()
	require.NoError(t, err)

	n, err := count.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}

func TestFilter_UnknownColumnFailsFast(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(3))
	f := frame.New(src)

	_, err := f.Filter("bad", "y > 0")
	var invalid *frame.InvalidExpressionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "y", invalid.Column)

	// The failed filter must not have linked: the chain still sees all rows.
	count, err := f.Count()
	require.NoError(t, err)
	n, err := count.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	rep, err := f.Report().Value(context.Background())
	require.NoError(t, err)
	require.Empty(t, rep.Entries, "rejected filter must not appear in the cutflow")
}

func TestFilter_ParseErrorFailsFast(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(1))
	_, err := frame.New(src).Filter("bad", "x ==")
	var invalid *frame.InvalidExpressionError
	require.ErrorAs(t, err, &invalid)
	require.Empty(t, invalid.Column)
	require.Error(t, invalid.Err)
}

func TestDefine_NameCollisionFailsFast(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		setup func(f *frame.Frame) (*frame.Frame, error)
	}{
		{
			name: "collides with source column",
			setup: func(f *frame.Frame) (*frame.Frame, error) {
				return f.Define("x", "x * 2")
			},
		},
		{
			name: "collides with upstream define",
			setup: func(f *frame.Frame) (*frame.Frame, error) {
				f2, err := f.Define("twice", "x * 2")
				if err != nil {
					return nil, err
				}
				return f2.Define("twice", "x * 3")
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := source.NewMemory("numbers", numberSchema(t), numberRows(1))
			_, err := tc.setup(frame.New(src))
			var collision *frame.NameCollisionError
			require.ErrorAs(t, err, &collision)
			require.Equal(t, "twice", collision.Name)
		})
	}
}

func TestDefine_IsScopedToItsBranch(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(2))
	f := frame.New(src)

	branch, err := f.Define("twice", "x * 2")
	require.NoError(t, err)
	_, err = branch.Take("twice")
	require.NoError(t, err)

	// The sibling branch never saw the define, so the name is free there.
	sibling, err := f.Define("twice", "x * 3")
	require.NoError(t, err)
	taken, err := sibling.Take("twice")
	require.NoError(t, err)

	vals, err := taken.Value(context.Background())
	require.NoError(t, err)
	floats, err := vals.Float64s("twice")
	require.NoError(t, err)
	require.Equal(t, []float64{0, 3}, floats)
}

func TestDefine_ComputedOnlyOnLiveBranches(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(10))
	f, err := frame.New(src).Filter("keep", "x < 3")
	require.NoError(t, err)

	var calls atomic.Int64
	defined, err := f.DefineFn("expensive", func(row schema.Row) (cty.Value, error) {
		calls.Add(1)
		return cty.NumberIntVal(0), nil
	})
	require.NoError(t, err)

	count, err := defined.Count()
	require.NoError(t, err)
	n, err := count.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, int64(3), calls.Load(), "defines below a failed filter must not run")
}

func TestEvaluation_SourceErrorIsStickyAndAtomic(t *testing.T) {
	t.Parallel()

	src := &failingSource{sch: numberSchema(t), good: 2}
	f := frame.New(src)

	count, err := f.Count()
	require.NoError(t, err)
	take, err := f.Take("x")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = count.Value(ctx)
	var srcErr *frame.SourceReadError
	require.ErrorAs(t, err, &srcErr)
	require.Equal(t, "failing", srcErr.Source)

	// Every later reader observes the same failed pass; nothing is
	// partially materialized.
	_, err2 := take.Value(ctx)
	require.ErrorAs(t, err2, &srcErr)
	require.Equal(t, err, err2)
}

func TestBooking_RejectedAfterEvaluation(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(3))
	f := frame.New(src)
	count, err := f.Count()
	require.NoError(t, err)
	_, err = count.Value(context.Background())
	require.NoError(t, err)

	_, err = f.Filter("late", "x > 0")
	require.ErrorIs(t, err, frame.ErrPlanFrozen)
	_, err = f.Count()
	require.ErrorIs(t, err, frame.ErrPlanFrozen)
}

func TestCutFlow_UnnamedFiltersCutButAreNotReported(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(10))
	f, err := frame.New(src).Filter("", "x < 5")
	require.NoError(t, err)
	f, err = f.Filter("named", "x < 3")
	require.NoError(t, err)
	count, err := f.Count()
	require.NoError(t, err)

	n, err := count.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	rep, err := f.Report().Value(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	require.Equal(t, "named", rep.Entries[0].Name)
	require.Equal(t, int64(5), rep.Entries[0].Total, "unnamed filter still cuts")
}

func TestCutFlow_DuplicateNamesMergeCounters(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(10))
	base, err := frame.New(src).Filter("quality", "x < 8")
	require.NoError(t, err)
	// A second filter with the same name on a downstream stage.
	f, err := base.Filter("quality", "x < 4")
	require.NoError(t, err)
	_, err = f.Count()
	require.NoError(t, err)

	rep, err := f.Report().Value(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Entries, 1)
	require.Equal(t, int64(18), rep.Entries[0].Total, "10 at the first stage, 8 at the second")
	require.Equal(t, int64(12), rep.Entries[0].Pass, "8 pass the first stage, 4 the second")
}

func TestCutFlow_EmptySourceHasZeroEfficiencies(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("empty", numberSchema(t), nil)
	f, err := frame.New(src).Filter("any", "x > 0")
	require.NoError(t, err)
	_, err = f.Count()
	require.NoError(t, err)

	rep, err := f.Report().Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(0), rep.RootTotal)
	require.Equal(t, 0.0, rep.Entries[0].Efficiency())
	require.Equal(t, 0.0, rep.Cumulative(0))
}

func TestHistogram_BinSumsPlusDropsEqualSurvivors(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(100))
	f, err := frame.New(src).Filter("keep", "x % 3 == 0")
	require.NoError(t, err)

	// Range [10, 40) drops survivors on both sides.
	histo, err := f.Histo1D("x", 6, 10, 40)
	require.NoError(t, err)
	count, err := f.Count()
	require.NoError(t, err)

	ctx := context.Background()
	snap, err := histo.Value(ctx)
	require.NoError(t, err)
	survivors, err := count.Value(ctx)
	require.NoError(t, err)

	var inRange int64
	for _, b := range snap.Bins {
		inRange += b
	}
	require.Equal(t, survivors, inRange+snap.Dropped())
	require.Equal(t, survivors, snap.Entries)
	require.Positive(t, snap.Underflow)
	require.Positive(t, snap.Overflow)
}

func TestTake_PreservesSourceOrder(t *testing.T) {
	t.Parallel()

	for _, workers := range []int{1, 4} {
		workers := workers
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			t.Parallel()

			src := source.NewMemory("numbers", numberSchema(t), numberRows(500))
			f, err := frame.New(src, frame.WithWorkers(workers)).Filter("even", "x % 2 == 0")
			require.NoError(t, err)
			take, err := f.Take("x")
			require.NoError(t, err)

			vals, err := take.Value(context.Background())
			require.NoError(t, err)
			floats, err := vals.Float64s("x")
			require.NoError(t, err)
			require.Len(t, floats, 250)
			for i, got := range floats {
				require.Equal(t, float64(2*i), got, "row order must match source order at position %d", i)
			}
		})
	}
}

func TestEvaluation_ParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	build := func(workers int) (*frame.HistoResult, *frame.ReportHandle, error) {
		src := source.NewMemory("numbers", numberSchema(t), numberRows(1000))
		f, err := frame.New(src, frame.WithWorkers(workers)).Filter("nonzero", "x > 0")
		if err != nil {
			return nil, nil, err
		}
		f, err = f.Define("half", "x / 2")
		if err != nil {
			return nil, nil, err
		}
		h, err := f.Histo1D("half", 20, 0, 500)
		if err != nil {
			return nil, nil, err
		}
		return h, f.Report(), nil
	}

	ctx := context.Background()
	seqHisto, seqReport, err := build(1)
	require.NoError(t, err)
	parHisto, parReport, err := build(8)
	require.NoError(t, err)

	seqSnap, err := seqHisto.Value(ctx)
	require.NoError(t, err)
	parSnap, err := parHisto.Value(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(seqSnap, parSnap); diff != "" {
		t.Fatalf("parallel histogram diverged from sequential (-seq +par):\n%s", diff)
	}

	seqRep, err := seqReport.Value(ctx)
	require.NoError(t, err)
	parRep, err := parReport.Value(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(seqRep, parRep); diff != "" {
		t.Fatalf("parallel cut flow diverged from sequential (-seq +par):\n%s", diff)
	}
}

func TestFilterFn_UsesPreResolvedCallables(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(10))
	f, err := frame.New(src).FilterFn("gofilter", func(row schema.Row) (bool, error) {
		v, err := row.Float64("x")
		return v >= 5, err
	})
	require.NoError(t, err)
	count, err := f.Count()
	require.NoError(t, err)

	n, err := count.Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	rep, err := f.Report().Value(context.Background())
	require.NoError(t, err)
	require.Equal(t, "gofilter", rep.Entries[0].Name)
}

func TestMean_OverSurvivingRows(t *testing.T) {
	t.Parallel()

	src := source.NewMemory("numbers", numberSchema(t), numberRows(10))
	f, err := frame.New(src).Filter("small", "x < 4")
	require.NoError(t, err)
	mean, err := f.Mean("x")
	require.NoError(t, err)

	v, err := mean.Value(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1.5, v, 1e-9)
}

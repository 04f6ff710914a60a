package action

import (
	"fmt"
	"sync/atomic"

	"github.com/vk/lazyframe/internal/schema"
)

// Histogram accumulates a fixed-binning one-dimensional histogram of a
// numeric column. Bins cover [Low, High) uniformly; values outside the
// range are dropped, not clamped, and counted as underflow or overflow.
// Bin counters are atomic, so accumulation is order-independent and safe
// under parallel dispatch.
type Histogram struct {
	column string
	nbins  int
	low    float64
	high   float64
	width  float64

	bins     []atomic.Int64
	under    atomic.Int64
	over     atomic.Int64
	entries  atomic.Int64
	snapshot *HistogramSnapshot
}

// NewHistogram builds an empty histogram over the given column.
func NewHistogram(column string, bins int, low, high float64) (*Histogram, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("histogram %q: bin count must be positive, got %d", column, bins)
	}
	if high <= low {
		return nil, fmt.Errorf("histogram %q: high edge %v not above low edge %v", column, high, low)
	}
	return &Histogram{
		column: column,
		nbins:  bins,
		low:    low,
		high:   high,
		width:  (high - low) / float64(bins),
		bins:   make([]atomic.Int64, bins),
	}, nil
}

// Column returns the projected column name.
func (h *Histogram) Column() string { return h.column }

// Accept implements Accumulator.
func (h *Histogram) Accept(_ int64, row schema.Row) error {
	f, err := row.Float64(h.column)
	if err != nil {
		return fmt.Errorf("histogram %q: %w", h.column, err)
	}
	h.entries.Add(1)
	switch {
	case f < h.low:
		h.under.Add(1)
	case f >= h.high:
		h.over.Add(1)
	default:
		i := int((f - h.low) / h.width)
		// Guard the upper edge against float rounding.
		if i >= h.nbins {
			i = h.nbins - 1
		}
		h.bins[i].Add(1)
	}
	return nil
}

// Finalize implements Accumulator, freezing the counts into a snapshot.
func (h *Histogram) Finalize() error {
	bins := make([]int64, h.nbins)
	for i := range h.bins {
		bins[i] = h.bins[i].Load()
	}
	h.snapshot = &HistogramSnapshot{
		Column:    h.column,
		Low:       h.low,
		High:      h.high,
		Bins:      bins,
		Underflow: h.under.Load(),
		Overflow:  h.over.Load(),
		Entries:   h.entries.Load(),
	}
	return nil
}

// Snapshot returns the frozen histogram; nil before Finalize.
func (h *Histogram) Snapshot() *HistogramSnapshot { return h.snapshot }

// HistogramSnapshot is the read-only result of a histogram action.
// Entries equals the number of rows that survived the chain feeding the
// histogram; sum(Bins) + Underflow + Overflow == Entries.
type HistogramSnapshot struct {
	Column    string
	Low       float64
	High      float64
	Bins      []int64
	Underflow int64
	Overflow  int64
	Entries   int64
}

// BinEdge returns the low edge of bin i; i may be len(Bins) for the
// upper edge of the last bin.
func (s *HistogramSnapshot) BinEdge(i int) float64 {
	width := (s.High - s.Low) / float64(len(s.Bins))
	return s.Low + float64(i)*width
}

// Dropped returns the out-of-range entry count.
func (s *HistogramSnapshot) Dropped() int64 { return s.Underflow + s.Overflow }

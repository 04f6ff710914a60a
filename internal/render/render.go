// Package render formats the read-only snapshots the engine exposes
// (cutflow reports and histogram contents) for terminal output. It reads
// snapshots only; nothing here touches the evaluation pass.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/vk/lazyframe/internal/action"
	"github.com/vk/lazyframe/internal/cutflow"
)

// barWidth is the maximum histogram bar length in runes.
const barWidth = 40

// CutFlow writes the cutflow report as a table: one line per named
// filter in declaration order, with per-filter and cumulative
// efficiencies.
func CutFlow(w io.Writer, r *cutflow.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Filter", "Pass", "All", "Efficiency", "Cumulative"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	for i, e := range r.Entries {
		t.AppendRow(table.Row{
			e.Name,
			humanize.Comma(e.Pass),
			humanize.Comma(e.Total),
			percent(e.Efficiency()),
			percent(r.Cumulative(i)),
		})
	}
	t.AppendFooter(table.Row{"rows read", "", humanize.Comma(r.RootTotal), "", ""})
	t.Render()
}

// Histogram writes a histogram's bins with proportional bars.
func Histogram(w io.Writer, name string, s *action.HistogramSnapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s (%s)", name, s.Column)
	t.AppendHeader(table.Row{"Bin", "Count", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})

	var max int64
	for _, c := range s.Bins {
		if c > max {
			max = c
		}
	}
	for i, c := range s.Bins {
		t.AppendRow(table.Row{
			fmt.Sprintf("[%g, %g)", s.BinEdge(i), s.BinEdge(i+1)),
			humanize.Comma(c),
			bar(c, max),
		})
	}
	t.AppendFooter(table.Row{
		"entries",
		humanize.Comma(s.Entries),
		fmt.Sprintf("dropped %s", humanize.Comma(s.Dropped())),
	})
	t.Render()
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f %%", f*100)
}

func bar(count, max int64) string {
	if max == 0 || count == 0 {
		return ""
	}
	n := int(count * barWidth / max)
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

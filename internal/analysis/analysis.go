// Package analysis loads a declarative pipeline description from an HCL
// file and builds the corresponding frame with all of its bookings.
//
// An analysis file is a source block followed by chain and booking
// blocks; block order is the chain order:
//
//	source "csv" "events" {
//	  path   = "events.csv"
//	  schema = "events.yaml"   # optional YAML column types
//	}
//
//	filter "two_tracks" { expr = "n == 2" }
//	define "opposite"   { expr = "q[0] != q[1]" }
//	range  { rows = 1000 }
//
//	histogram "h_n" {
//	  column = "n"
//	  bins   = 10
//	  low    = 0
//	  high   = 10
//	}
//
//	snapshot "skim" {
//	  path    = "skim.csv"
//	  columns = ["n"]
//	}
//
//	count "selected" {}
//	mean "avg_n" { column = "n" }
//
// Loading only builds the plan; nothing executes until a result is read.
package analysis

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/vk/lazyframe/internal/ctxlog"
	"github.com/vk/lazyframe/internal/frame"
	"github.com/vk/lazyframe/internal/sink"
	"github.com/vk/lazyframe/internal/source"
)

// BookedHistogram names a histogram booked by the analysis file.
type BookedHistogram struct {
	Name   string
	Result *frame.HistoResult
}

// BookedSnapshot names a snapshot booked by the analysis file.
type BookedSnapshot struct {
	Name   string
	Path   string
	Result *frame.SnapshotResult
}

// BookedCount names a count booked by the analysis file.
type BookedCount struct {
	Name   string
	Result *frame.CountResult
}

// BookedMean names a mean booked by the analysis file.
type BookedMean struct {
	Name   string
	Result *frame.MeanResult
}

// Analysis is a fully built, not yet executed pipeline.
type Analysis struct {
	Source     source.Source
	Frame      *frame.Frame
	Report     *frame.ReportHandle
	Histograms []BookedHistogram
	Snapshots  []BookedSnapshot
	Counts     []BookedCount
	Means      []BookedMean
}

type sourceBlock struct {
	Path   string `hcl:"path"`
	Schema string `hcl:"schema,optional"`
}

type exprBlock struct {
	Expr string `hcl:"expr"`
}

type rangeBlock struct {
	Rows int64 `hcl:"rows"`
}

type histogramBlock struct {
	Column string  `hcl:"column"`
	Bins   int     `hcl:"bins"`
	Low    float64 `hcl:"low"`
	High   float64 `hcl:"high"`
}

type snapshotBlock struct {
	Path    string   `hcl:"path"`
	Format  string   `hcl:"format,optional"`
	Columns []string `hcl:"columns"`
}

type meanBlock struct {
	Column string `hcl:"column"`
}

// Load parses an analysis file and builds its plan. Relative paths in
// the file are resolved against the file's directory.
func Load(ctx context.Context, path string, opts ...frame.Option) (*Analysis, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading analysis file.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", path, diags.Error())
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("parse %s: unexpected body type", path)
	}

	dir := filepath.Dir(path)
	a := &Analysis{}
	var f *frame.Frame

	for _, block := range body.Blocks {
		if a.Source == nil && block.Type != "source" {
			return nil, fmt.Errorf("%s: the source block must come first, found %q", path, block.Type)
		}
		switch block.Type {
		case "source":
			if a.Source != nil {
				return nil, fmt.Errorf("%s: duplicate source block", path)
			}
			src, err := loadSource(dir, block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			a.Source = src
			f = frame.New(src, opts...)
			a.Report = f.Report()
			logger.Debug("Source opened.", "dataset", src.Name(), "columns", src.Schema().Len())

		case "filter":
			name, err := oneLabel(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			var b exprBlock
			if err := decode(block, &b); err != nil {
				return nil, fmt.Errorf("%s: filter %q: %w", path, name, err)
			}
			if f, err = f.Filter(name, b.Expr); err != nil {
				return nil, fmt.Errorf("%s: filter %q: %w", path, name, err)
			}

		case "define":
			name, err := oneLabel(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			var b exprBlock
			if err := decode(block, &b); err != nil {
				return nil, fmt.Errorf("%s: define %q: %w", path, name, err)
			}
			if f, err = f.Define(name, b.Expr); err != nil {
				return nil, fmt.Errorf("%s: define %q: %w", path, name, err)
			}

		case "range":
			var b rangeBlock
			if err := decode(block, &b); err != nil {
				return nil, fmt.Errorf("%s: range: %w", path, err)
			}
			var err error
			if f, err = f.Range(b.Rows); err != nil {
				return nil, fmt.Errorf("%s: range: %w", path, err)
			}

		case "histogram":
			name, err := oneLabel(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			var b histogramBlock
			if err := decode(block, &b); err != nil {
				return nil, fmt.Errorf("%s: histogram %q: %w", path, name, err)
			}
			res, err := f.Histo1D(b.Column, b.Bins, b.Low, b.High)
			if err != nil {
				return nil, fmt.Errorf("%s: histogram %q: %w", path, name, err)
			}
			a.Histograms = append(a.Histograms, BookedHistogram{Name: name, Result: res})

		case "snapshot":
			name, err := oneLabel(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			var b snapshotBlock
			if err := decode(block, &b); err != nil {
				return nil, fmt.Errorf("%s: snapshot %q: %w", path, name, err)
			}
			dest, outPath, err := openSink(dir, b)
			if err != nil {
				return nil, fmt.Errorf("%s: snapshot %q: %w", path, name, err)
			}
			res, err := f.Snapshot(dest, b.Columns...)
			if err != nil {
				return nil, fmt.Errorf("%s: snapshot %q: %w", path, name, err)
			}
			a.Snapshots = append(a.Snapshots, BookedSnapshot{Name: name, Path: outPath, Result: res})

		case "count":
			name, err := oneLabel(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			res, err := f.Count()
			if err != nil {
				return nil, fmt.Errorf("%s: count %q: %w", path, name, err)
			}
			a.Counts = append(a.Counts, BookedCount{Name: name, Result: res})

		case "mean":
			name, err := oneLabel(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			var b meanBlock
			if err := decode(block, &b); err != nil {
				return nil, fmt.Errorf("%s: mean %q: %w", path, name, err)
			}
			res, err := f.Mean(b.Column)
			if err != nil {
				return nil, fmt.Errorf("%s: mean %q: %w", path, name, err)
			}
			a.Means = append(a.Means, BookedMean{Name: name, Result: res})

		default:
			return nil, fmt.Errorf("%s: unknown block type %q", path, block.Type)
		}
	}

	if a.Source == nil {
		return nil, fmt.Errorf("%s: no source block", path)
	}
	a.Frame = f
	return a, nil
}

// loadSource opens the dataset a source block points at. Only the "csv"
// kind exists today.
func loadSource(dir string, block *hclsyntax.Block) (source.Source, error) {
	if len(block.Labels) != 2 {
		return nil, fmt.Errorf("source block needs a kind and a name, got %d labels", len(block.Labels))
	}
	kind, name := block.Labels[0], block.Labels[1]
	if kind != "csv" {
		return nil, fmt.Errorf("source %q: unknown kind %q", name, kind)
	}
	var b sourceBlock
	if err := decode(block, &b); err != nil {
		return nil, fmt.Errorf("source %q: %w", name, err)
	}
	var opts []source.CSVOption
	if b.Schema != "" {
		opts = append(opts, source.WithSchemaFile(resolve(dir, b.Schema)))
	}
	return source.NewCSV(name, resolve(dir, b.Path), opts...)
}

// openSink creates the snapshot destination declared by a snapshot block.
func openSink(dir string, b snapshotBlock) (sink.Sink, string, error) {
	outPath := resolve(dir, b.Path)
	switch b.Format {
	case "", "csv":
		s, err := sink.NewCSVFile(outPath)
		return s, outPath, err
	case "jsonl":
		s, err := sink.NewJSONLFile(outPath)
		return s, outPath, err
	default:
		return nil, "", fmt.Errorf("unknown format %q", b.Format)
	}
}

func decode(block *hclsyntax.Block, target any) error {
	if diags := gohcl.DecodeBody(block.Body, nil, target); diags.HasErrors() {
		return fmt.Errorf("%s", diags.Error())
	}
	return nil
}

func oneLabel(block *hclsyntax.Block) (string, error) {
	if len(block.Labels) != 1 {
		return "", fmt.Errorf("%s block needs exactly one label, got %d", block.Type, len(block.Labels))
	}
	return block.Labels[0], nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lazyframe/internal/schema"
)

// listSeparator joins list elements inside one CSV cell, mirroring the
// CSV source's cell format so a snapshot can be re-opened as a source.
const listSeparator = ";"

// CSVSink writes rows as comma-separated values with a header row.
type CSVSink struct {
	w       *csv.Writer
	closer  io.Closer
	columns []string
}

// NewCSVWriter writes CSV to an arbitrary writer.
func NewCSVWriter(w io.Writer) *CSVSink {
	return &CSVSink{w: csv.NewWriter(w)}
}

// NewCSVFile creates (or truncates) a file and writes CSV to it.
func NewCSVFile(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file %s: %w", path, err)
	}
	s := NewCSVWriter(f)
	s.closer = f
	return s, nil
}

// Begin implements Sink.
func (s *CSVSink) Begin(columns []string) error {
	s.columns = columns
	if err := s.w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	return nil
}

// Write implements Sink.
func (s *CSVSink) Write(row schema.Row) error {
	record := make([]string, len(s.columns))
	for i, name := range s.columns {
		cell, err := formatCell(row[name])
		if err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
		record[i] = cell
	}
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *CSVSink) Close() error {
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// formatCell renders one value the way the CSV source parses it back.
func formatCell(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	ty := v.Type()
	switch {
	case ty.Equals(cty.Number):
		f := v.AsBigFloat()
		return f.Text('g', -1), nil
	case ty.Equals(cty.Bool):
		if v.True() {
			return "true", nil
		}
		return "false", nil
	case ty.Equals(cty.String):
		return v.AsString(), nil
	case ty.IsListType() || ty.IsTupleType():
		var parts []string
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			cell, err := formatCell(elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, cell)
		}
		return strings.Join(parts, listSeparator), nil
	default:
		return "", fmt.Errorf("cannot format %s as csv", ty.FriendlyName())
	}
}

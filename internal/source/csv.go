package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/lazyframe/internal/schema"
)

// listSeparator splits list-valued cells, e.g. "1;-1;1".
const listSeparator = ";"

// CSV is a Source reading a comma-separated file with a header row.
// Column types come from an optional YAML sidecar schema; without one
// they are inferred from the first data row. Iteration is restartable:
// every Rows call reopens the file.
type CSV struct {
	name string
	path string
	sch  *schema.Schema
}

// CSVOption configures a CSV source.
type CSVOption func(*csvConfig)

type csvConfig struct {
	schemaFile string
}

// WithSchemaFile points at a YAML sidecar declaring column types,
// overriding inference.
func WithSchemaFile(path string) CSVOption {
	return func(c *csvConfig) { c.schemaFile = path }
}

// NewCSV opens a CSV dataset and resolves its schema. The file is read
// far enough to see the header and, when no sidecar is given, the first
// data row for type inference, then closed again.
func NewCSV(name, path string, opts ...CSVOption) (*CSV, error) {
	var cfg csvConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	header, first, err := readHead(path)
	if err != nil {
		return nil, err
	}

	var declared map[string]cty.Type
	if cfg.schemaFile != "" {
		declared, err = loadSidecar(cfg.schemaFile)
		if err != nil {
			return nil, err
		}
	}

	cols := make([]schema.Column, len(header))
	for i, colName := range header {
		ty, ok := declared[colName]
		if !ok {
			if cfg.schemaFile != "" {
				return nil, fmt.Errorf("csv %s: column %q missing from schema file %s", path, colName, cfg.schemaFile)
			}
			ty = inferType(cell(first, i))
		}
		cols[i] = schema.Column{Name: colName, Type: ty}
	}
	sch, err := schema.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("csv %s: %w", path, err)
	}

	return &CSV{name: name, path: path, sch: sch}, nil
}

// Name implements Source.
func (c *CSV) Name() string { return c.name }

// Schema implements Source.
func (c *CSV) Schema() *schema.Schema { return c.sch }

// Rows implements Source.
func (c *CSV) Rows(_ context.Context) (Iterator, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", c.path, err)
	}
	r := csv.NewReader(f)
	r.ReuseRecord = true
	if _, err := r.Read(); err != nil {
		f.Close()
		return nil, fmt.Errorf("read csv header %s: %w", c.path, err)
	}
	return &csvIterator{src: c, file: f, reader: r}, nil
}

type csvIterator struct {
	src    *CSV
	file   *os.File
	reader *csv.Reader
	row    schema.Row
	err    error
}

func (it *csvIterator) Next() bool {
	if it.err != nil {
		return false
	}
	record, err := it.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		it.err = fmt.Errorf("read csv %s: %w", it.src.path, err)
		return false
	}
	row, err := it.src.convert(record)
	if err != nil {
		it.err = err
		return false
	}
	it.row = row
	return true
}

func (it *csvIterator) Row() schema.Row { return it.row }

func (it *csvIterator) Err() error { return it.err }

func (it *csvIterator) Close() error { return it.file.Close() }

// convert parses one record into a typed row following the schema.
func (c *CSV) convert(record []string) (schema.Row, error) {
	names := c.sch.Names()
	if len(record) != len(names) {
		return nil, fmt.Errorf("csv %s: record has %d fields, schema has %d", c.path, len(record), len(names))
	}
	row := make(schema.Row, len(names))
	for i, name := range names {
		ty, _ := c.sch.Type(name)
		v, err := parseCell(record[i], ty)
		if err != nil {
			return nil, fmt.Errorf("csv %s: column %q: %w", c.path, name, err)
		}
		row[name] = v
	}
	return row, nil
}

func parseCell(raw string, ty cty.Type) (cty.Value, error) {
	switch {
	case ty.Equals(cty.Number):
		v, err := cty.ParseNumberVal(strings.TrimSpace(raw))
		if err != nil {
			return cty.NilVal, fmt.Errorf("parse number %q: %w", raw, err)
		}
		return v, nil
	case ty.Equals(cty.Bool):
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return cty.NilVal, fmt.Errorf("parse bool %q: %w", raw, err)
		}
		return cty.BoolVal(b), nil
	case ty.IsListType():
		return parseList(raw, ty.ElementType())
	default:
		return cty.StringVal(raw), nil
	}
}

func parseList(raw string, elem cty.Type) (cty.Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cty.ListValEmpty(elem), nil
	}
	parts := strings.Split(raw, listSeparator)
	vals := make([]cty.Value, len(parts))
	for i, p := range parts {
		v, err := parseCell(p, elem)
		if err != nil {
			return cty.NilVal, err
		}
		vals[i] = v
	}
	return cty.ListVal(vals), nil
}

// readHead returns the header and, when present, the first data record.
func readHead(path string) ([]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header %s: %w", path, err)
	}
	first, err := r.Read()
	if err == io.EOF {
		return header, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	firstCopy := make([]string, len(first))
	copy(firstCopy, first)
	return header, firstCopy, nil
}

func cell(record []string, i int) string {
	if record == nil || i >= len(record) {
		return ""
	}
	return record[i]
}

// inferType guesses a column type from one sample cell. Empty samples
// default to string.
func inferType(sample string) cty.Type {
	sample = strings.TrimSpace(sample)
	if sample == "" {
		return cty.String
	}
	if strings.Contains(sample, listSeparator) {
		elem := inferType(strings.SplitN(sample, listSeparator, 2)[0])
		return cty.List(elem)
	}
	if _, err := cty.ParseNumberVal(sample); err == nil {
		return cty.Number
	}
	if sample == "true" || sample == "false" {
		return cty.Bool
	}
	return cty.String
}

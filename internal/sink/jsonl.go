package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/lazyframe/internal/schema"
)

// JSONLSink writes one JSON object per row, one row per line.
type JSONLSink struct {
	w       *bufio.Writer
	closer  io.Closer
	columns []string
}

// NewJSONLWriter writes JSON lines to an arbitrary writer.
func NewJSONLWriter(w io.Writer) *JSONLSink {
	return &JSONLSink{w: bufio.NewWriter(w)}
}

// NewJSONLFile creates (or truncates) a file and writes JSON lines to it.
func NewJSONLFile(path string) (*JSONLSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create snapshot file %s: %w", path, err)
	}
	s := NewJSONLWriter(f)
	s.closer = f
	return s, nil
}

// Begin implements Sink.
func (s *JSONLSink) Begin(columns []string) error {
	s.columns = columns
	return nil
}

// Write implements Sink.
func (s *JSONLSink) Write(row schema.Row) error {
	attrs := make(map[string]cty.Value, len(s.columns))
	for _, name := range s.columns {
		v, ok := row[name]
		if !ok || v.IsNull() {
			v = cty.NullVal(cty.DynamicPseudoType)
		}
		attrs[name] = v
	}
	obj := cty.ObjectVal(attrs)
	raw, err := ctyjson.Marshal(obj, obj.Type())
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	if _, err := s.w.Write(raw); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONLSink) Close() error {
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Package schema models the column layout of a tabular dataset and the
// rows flowing through an evaluation pass.
//
// Columns are typed with cty types so the same value model serves the
// expression evaluator, the HCL analysis front end, and the sinks. A
// Schema is immutable once built; deriving a new column produces a new
// Schema that shares the original's storage.
package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Column is a single named, typed column.
type Column struct {
	Name string
	Type cty.Type
}

// Schema is an ordered set of columns. The zero value is not usable; use New.
type Schema struct {
	cols  []Column
	index map[string]int
}

// New builds a schema from columns in the given order. Duplicate names are
// rejected because downstream reference resolution is by name.
func New(cols ...Column) (*Schema, error) {
	s := &Schema{
		cols:  make([]Column, 0, len(cols)),
		index: make(map[string]int, len(cols)),
	}
	for _, c := range cols {
		if _, exists := s.index[c.Name]; exists {
			return nil, fmt.Errorf("duplicate column %q in schema", c.Name)
		}
		s.index[c.Name] = len(s.cols)
		s.cols = append(s.cols, c)
	}
	return s, nil
}

// MustNew is New for statically-known column sets, panicking on duplicates.
func MustNew(cols ...Column) *Schema {
	s, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Has reports whether a column with the given name exists.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Type returns the declared type of a column.
func (s *Schema) Type(name string) (cty.Type, bool) {
	i, ok := s.index[name]
	if !ok {
		return cty.NilType, false
	}
	return s.cols[i].Type, true
}

// Names returns the column names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.cols))
	for i, c := range s.cols {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.cols)
}

// Extend returns a new schema with one additional column appended. The
// receiver is left untouched. Callers must check Has first; Extend
// panics on a duplicate name because by this point the collision is a
// programming error, not user input.
func (s *Schema) Extend(name string, ty cty.Type) *Schema {
	if s.Has(name) {
		panic(fmt.Sprintf("schema: column %q already exists", name))
	}
	next := &Schema{
		cols:  make([]Column, len(s.cols), len(s.cols)+1),
		index: make(map[string]int, len(s.cols)+1),
	}
	copy(next.cols, s.cols)
	for k, v := range s.index {
		next.index[k] = v
	}
	next.index[name] = len(next.cols)
	next.cols = append(next.cols, Column{Name: name, Type: ty})
	return next
}

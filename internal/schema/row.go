package schema

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// Row is one unit of input data: a mapping from column name to value.
// Rows handed to accumulators are never mutated in place; derived columns
// are added via With, which clones.
type Row map[string]cty.Value

// With returns a copy of the row extended with one more column. The
// receiver is not modified, so sibling branches of a plan never observe
// each other's defines.
func (r Row) With(name string, v cty.Value) Row {
	next := make(Row, len(r)+1)
	for k, val := range r {
		next[k] = val
	}
	next[name] = v
	return next
}

// Float64 extracts a column as float64. Number values convert exactly
// within float range; anything else is an error.
func (r Row) Float64(name string) (float64, error) {
	v, ok := r[name]
	if !ok {
		return 0, fmt.Errorf("row has no column %q", name)
	}
	return Float64Value(v)
}

// Float64Value converts a cty value to float64.
func Float64Value(v cty.Value) (float64, error) {
	if v.IsNull() {
		return 0, fmt.Errorf("value is null")
	}
	if !v.Type().Equals(cty.Number) {
		return 0, fmt.Errorf("value is %s, not a number", v.Type().FriendlyName())
	}
	f, _ := v.AsBigFloat().Float64()
	return f, nil
}

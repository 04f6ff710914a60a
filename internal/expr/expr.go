// Package expr turns filter and define snippets into compiled, reusable
// expressions. Snippets use HCL expression syntax ("n == 2",
// "q[0] != q[1]", "pt * cos(0)") and are parsed exactly once, at plan
// construction time. Evaluation never parses or compiles anything; it
// only binds a row's columns into an eval context.
package expr

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/vk/lazyframe/internal/schema"
)

// Compiled is a parsed expression together with the column references it
// makes. It is immutable and safe for concurrent evaluation.
type Compiled struct {
	src  string
	expr hcl.Expression
	refs []string
}

// Parse compiles a snippet. The returned error carries HCL diagnostics
// verbatim; callers decide how to classify it.
func Parse(src string) (*Compiled, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "expr", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %q: %s", src, diags.Error())
	}
	return &Compiled{
		src:  src,
		expr: expr,
		refs: rootReferences(expr),
	}, nil
}

// Source returns the snippet text the expression was compiled from.
func (c *Compiled) Source() string {
	return c.src
}

// References returns the sorted, de-duplicated column names the
// expression reads.
func (c *Compiled) References() []string {
	out := make([]string, len(c.refs))
	copy(out, c.refs)
	return out
}

// Eval evaluates the expression against one row.
func (c *Compiled) Eval(row schema.Row, funcs map[string]function.Function) (cty.Value, error) {
	evalCtx := &hcl.EvalContext{
		Variables: row,
		Functions: funcs,
	}
	v, diags := c.expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluate %q: %s", c.src, diags.Error())
	}
	return v, nil
}

// EvalBool evaluates the expression as a predicate, converting the result
// to bool. Non-boolean results that cty cannot convert are errors.
func (c *Compiled) EvalBool(row schema.Row, funcs map[string]function.Function) (bool, error) {
	v, err := c.Eval(row, funcs)
	if err != nil {
		return false, err
	}
	b, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("predicate %q: %w", c.src, err)
	}
	if b.IsNull() {
		return false, fmt.Errorf("predicate %q evaluated to null", c.src)
	}
	return b.True(), nil
}

// rootReferences collects the root variable name of every traversal in
// the expression. Only root names matter: "q[0]" reads column "q".
func rootReferences(expr hcl.Expression) []string {
	seen := make(map[string]struct{})
	for _, traversal := range expr.Variables() {
		seen[traversal.RootName()] = struct{}{}
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

package expr

import (
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions returns the function table available inside snippets. The set
// is intentionally small: numeric helpers plus a few collection and string
// helpers, all from the cty stdlib. User-supplied logic beyond this is
// expected to arrive as pre-resolved Go callables, not as snippet text.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"abs":      stdlib.AbsoluteFunc,
		"ceil":     stdlib.CeilFunc,
		"floor":    stdlib.FloorFunc,
		"log":      stdlib.LogFunc,
		"pow":      stdlib.PowFunc,
		"signum":   stdlib.SignumFunc,
		"min":      stdlib.MinFunc,
		"max":      stdlib.MaxFunc,
		"length":   stdlib.LengthFunc,
		"element":  stdlib.ElementFunc,
		"contains": stdlib.ContainsFunc,
		"coalesce": stdlib.CoalesceFunc,
		"upper":    stdlib.UpperFunc,
		"lower":    stdlib.LowerFunc,
	}
}

package frame

import (
	"errors"
	"fmt"
)

// ErrPlanFrozen is returned when chaining or booking is attempted after
// the plan has already been evaluated.
var ErrPlanFrozen = errors.New("plan already evaluated; chain and book before reading any result")

// InvalidExpressionError reports a snippet that failed to parse or that
// references a column the upstream chain does not provide. It is raised
// at construction time, before the offending node is linked.
type InvalidExpressionError struct {
	Expr   string
	Column string // unknown column, when that is the cause
	Err    error  // parse diagnostics, when that is the cause
}

func (e *InvalidExpressionError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("invalid expression %q: unknown column %q", e.Expr, e.Column)
	}
	return fmt.Sprintf("invalid expression %q: %v", e.Expr, e.Err)
}

func (e *InvalidExpressionError) Unwrap() error { return e.Err }

// NameCollisionError reports a define whose column name is already bound
// upstream. Raised at construction time; the plan is left unmodified.
type NameCollisionError struct {
	Name string
}

func (e *NameCollisionError) Error() string {
	return fmt.Sprintf("define %q: column already exists upstream", e.Name)
}

// SourceReadError reports that row production failed mid-pass. The whole
// pass is aborted and the error is sticky: the reader that triggered
// evaluation and every later reader of any result on the same plan
// receive it.
type SourceReadError struct {
	Source string
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading source %q: %v", e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

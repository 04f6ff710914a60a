// Package sink holds the persistence collaborators a snapshot action
// writes through. The engine hands a sink the selected columns once, then
// surviving rows in source order; file format, buffering and compression
// are the sink's concern.
package sink

import (
	"github.com/vk/lazyframe/internal/schema"
)

// Sink receives the surviving rows of one evaluation pass.
//
// Begin is called exactly once before any Write with the column
// selection in output order, and only after the pass has succeeded; a
// failed pass never touches the sink. Close is called exactly once after
// the last Write.
type Sink interface {
	Begin(columns []string) error
	Write(row schema.Row) error
	Close() error
}

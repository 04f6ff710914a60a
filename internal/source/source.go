// Package source defines the column-source collaborator contract and the
// built-in implementations: an in-memory source and a CSV file source.
//
// A Source abstracts the storage backend behind two narrow capabilities:
// schema discovery and an ordered row iterator. Remote access, retries
// and caching belong behind this interface, never in the engine.
package source

import (
	"context"

	"github.com/vk/lazyframe/internal/schema"
)

// Iterator produces rows in storage order. The usual loop is:
//
//	for it.Next() {
//		row := it.Row()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
//
// Each Row must be an independent value: the engine buffers rows past
// subsequent Next calls, so iterators must not reuse row storage.
type Iterator interface {
	Next() bool
	Row() schema.Row
	Err() error
	Close() error
}

// Source supplies named, typed columns for one dataset.
type Source interface {
	// Name identifies the dataset in logs and errors.
	Name() string
	// Schema returns the column layout, resolved once when the source
	// was opened.
	Schema() *schema.Schema
	// Rows starts a fresh iteration over the dataset.
	Rows(ctx context.Context) (Iterator, error)
}

// Package frame is the lazy tabular-computation core: a declarative
// builder producing an immutable plan over a column source, and the
// executor that materializes every booked result in one shared pass.
//
// Chaining Filter/Define/Range appends nodes and returns a new Frame
// handle sharing the same underlying state; nothing executes. Booking an
// action (histogram, column export, snapshot, count, mean) returns a
// result handle immediately. The first Value call on any result handle,
// or on the cutflow report handle, runs the single evaluation pass that
// fills every booked result on the plan atomically: the source is
// iterated exactly once no matter how many results are read.
//
// A pass that fails leaves nothing observable behind: no result is
// filled, and every reader of every handle receives the same error.
package frame

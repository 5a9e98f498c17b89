// Package guard serializes access to the single index writer of a process.
//
// A Guard owns a store.Writer and a permit pool of fixed capacity
// (DefaultPermits). Every writer operation takes one permit, so up to
// capacity operations run concurrently. Close takes every permit, which
// waits for all in-flight operations, then commits and closes the writer
// and moves the guard to its terminal Closed state. Operations issued after
// Close fail with errors.ErrInvalidState.
//
// A goroutine that holds a permit (for example inside a writer callback or
// an info stream sink) must never call Close: Close would wait forever for
// the permit that goroutine still holds.
//
// Holder provides the lazily opened, never-reopened instance used by the
// application.
package guard

package guard

import (
	"sync"

	"github.com/Aman-CERP/notesearch/internal/errors"
)

// OpenFunc opens the guard on first use.
type OpenFunc func() (*Guard, error)

// Holder hands out the single Guard of a process. The guard is opened on
// the first Instance call and never reopened once closed.
//
// Holder's mutex only covers opening and closing; guarded operations do
// not touch it.
type Holder struct {
	mu     sync.Mutex
	open   OpenFunc
	guard  *Guard
	closed bool
}

// NewHolder creates a Holder that opens its guard with open.
func NewHolder(open OpenFunc) *Holder {
	return &Holder{open: open}
}

// Instance returns the guard, opening it on first call. Every call before
// Close returns the same *Guard. After Close, or once the guard itself has
// been closed, Instance fails with errors.ErrInvalidState. A failed open
// leaves the holder uninitialized so a later call may retry.
func (h *Holder) Instance() (*Guard, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.guard != nil && h.guard.State() == StateClosed {
		h.closed = true
	}
	if h.closed {
		return nil, errors.InvalidState("get_instance")
	}

	if h.guard == nil {
		g, err := h.open()
		if err != nil {
			return nil, err
		}
		h.guard = g
	}
	return h.guard, nil
}

// State returns the holder's lifecycle state.
func (h *Holder) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return StateClosed
	case h.guard == nil:
		return StateUninitialized
	default:
		return h.guard.State()
	}
}

// Close closes the guard if one was opened and makes the holder terminal.
// It always returns nil and is safe to call more than once.
func (h *Holder) Close() error {
	h.mu.Lock()
	h.closed = true
	g := h.guard
	h.mu.Unlock()

	// The drain may wait on in-flight operations; it runs outside mu so
	// concurrent Instance calls fail fast instead of queueing behind it.
	if g != nil {
		return g.Close()
	}
	return nil
}

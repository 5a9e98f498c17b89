package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer coalesces rapid file events so each path appears at most once
// per batch. Successive operations on one path merge as follows:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - MODIFY then DELETE becomes DELETE
//   - DELETE then CREATE becomes MODIFY
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	stopped bool

	output  chan []FileEvent
	dropped atomic.Uint64
}

// NewDebouncer creates a debouncer that emits a batch once window has
// passed without new events. buffer is the number of batches held for a
// slow consumer before batches are dropped.
func NewDebouncer(window time.Duration, buffer int) *Debouncer {
	if buffer < 1 {
		buffer = 1
	}
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, buffer),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[event.Path]; ok {
		op, keep := coalesce(prev.Operation, event.Operation)
		if !keep {
			delete(d.pending, event.Path)
		} else {
			event.Operation = op
			d.pending[event.Path] = event
		}
	} else {
		d.pending[event.Path] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges the pending operation with the next one for the same
// path. keep is false when the two cancel out.
func coalesce(pending, next Operation) (op Operation, keep bool) {
	switch {
	case pending == OpCreate && next == OpModify:
		return OpCreate, true
	case pending == OpCreate && next == OpDelete:
		return 0, false
	case pending == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

// Flush emits the pending events now instead of waiting for the window.
func (d *Debouncer) Flush() {
	d.flush()
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]FileEvent)

	select {
	case d.output <- batch:
	default:
		n := d.dropped.Add(1)
		slog.Warn("debounce_batch_dropped",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped", n))
	}
}

// Output returns the channel of debounced batches.
// It is closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Dropped returns how many batches were discarded because the consumer
// fell behind.
func (d *Debouncer) Dropped() uint64 {
	return d.dropped.Load()
}

// Stop discards pending events and closes the output channel.
// Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	close(d.output)
}

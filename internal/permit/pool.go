// Package permit provides a fixed-capacity permit pool used as a
// shared/exclusive lock: holders of one permit run concurrently, a holder of
// every permit runs alone.
//
// The pool is backed by golang.org/x/sync/semaphore and inherits its FIFO
// policy. Once an exclusive acquirer is queued, later shared acquirers wait
// behind it even if permits are free, so the exclusive side cannot be starved
// by a steady stream of shared callers.
package permit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool is a counting semaphore with a fixed capacity.
// Callers can only take one permit or all of them, and give back exactly
// what they took through the returned Lease.
type Pool struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// Lease is a set of permits held by one caller.
type Lease struct {
	pool    *Pool
	weight  int64
	release sync.Once
}

// New creates a pool with the given capacity.
// Panics if capacity is less than one.
func New(capacity int) *Pool {
	if capacity < 1 {
		panic(fmt.Sprintf("permit: capacity must be at least 1, got %d", capacity))
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}
}

// Capacity returns the total number of permits.
func (p *Pool) Capacity() int {
	return int(p.capacity)
}

// InUse returns the number of permits currently held.
// The value is a snapshot and may be stale by the time it is read.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// AcquireShared blocks until one permit is available.
// The wait cannot be cancelled.
func (p *Pool) AcquireShared() *Lease {
	return p.mustAcquire(1)
}

// AcquireExclusive blocks until every permit is available.
// The wait cannot be cancelled.
func (p *Pool) AcquireExclusive() *Lease {
	return p.mustAcquire(p.capacity)
}

// AcquireSharedContext is AcquireShared with a cancellable wait.
// On ctx expiry it returns ctx.Err() and holds nothing.
func (p *Pool) AcquireSharedContext(ctx context.Context) (*Lease, error) {
	return p.acquire(ctx, 1)
}

// AcquireExclusiveContext is AcquireExclusive with a cancellable wait.
func (p *Pool) AcquireExclusiveContext(ctx context.Context) (*Lease, error) {
	return p.acquire(ctx, p.capacity)
}

// TryAcquireShared takes one permit without blocking.
// It fails when no permit is free or another acquirer is already queued.
func (p *Pool) TryAcquireShared() (*Lease, bool) {
	if !p.sem.TryAcquire(1) {
		return nil, false
	}
	return p.lease(1), true
}

func (p *Pool) mustAcquire(n int64) *Lease {
	// A background context never expires, so Acquire cannot fail here.
	l, err := p.acquire(context.Background(), n)
	if err != nil {
		panic(fmt.Sprintf("permit: uncancellable acquire failed: %v", err))
	}
	return l
}

func (p *Pool) acquire(ctx context.Context, n int64) (*Lease, error) {
	if err := p.sem.Acquire(ctx, n); err != nil {
		return nil, err
	}
	return p.lease(n), nil
}

func (p *Pool) lease(n int64) *Lease {
	p.inUse.Add(n)
	return &Lease{pool: p, weight: n}
}

// size returns the number of permits held by the lease.
func (l *Lease) size() int {
	return int(l.weight)
}

// exclusive reports whether the lease holds every permit of its pool.
func (l *Lease) exclusive() bool {
	return l.weight == l.pool.capacity
}

// Release returns the leased permits to the pool.
// Calling Release more than once has no further effect.
func (l *Lease) Release() {
	l.release.Do(func() {
		l.pool.inUse.Add(-l.weight)
		l.pool.sem.Release(l.weight)
	})
}

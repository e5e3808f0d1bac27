// Package gate bounds how many enrichment tasks run at the same time.
package gate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Observer receives the number of slots held after every acquire and release.
type Observer func(inFlight int)

// Gate is a counting semaphore with FIFO admission. It is the only shared
// mutable resource of the enrichment pipeline.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
	waiting  atomic.Int64
	peakMu   sync.Mutex
	peak     int
	observe  Observer
}

// New creates a Gate admitting at most capacity concurrent holders.
func New(capacity int, observe Observer) (*Gate, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("gate capacity must be >= 1, got %d", capacity)
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
		observe:  observe,
	}, nil
}

// Capacity reports the configured slot count.
func (g *Gate) Capacity() int {
	return g.capacity
}

// Acquire blocks until a slot is free or ctx ends. Waiters are admitted in the
// order they called Acquire.
func (g *Gate) Acquire(ctx context.Context) error {
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return fmt.Errorf("gate acquire: %w", err)
	}
	n := int(g.inFlight.Add(1))
	g.peakMu.Lock()
	if n > g.peak {
		g.peak = n
	}
	g.peakMu.Unlock()
	g.notify(n)
	return nil
}

// Release frees a slot previously obtained with Acquire.
func (g *Gate) Release() {
	n := int(g.inFlight.Add(-1))
	g.sem.Release(1)
	g.notify(n)
}

// Do runs task while holding a slot. The slot is released even if task panics.
func (g *Gate) Do(ctx context.Context, task func(context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return task(ctx)
}

// InFlight returns the number of slots currently held.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Waiting returns the number of callers blocked in Acquire.
func (g *Gate) Waiting() int {
	return int(g.waiting.Load())
}

// Peak returns the highest number of simultaneous holders observed.
func (g *Gate) Peak() int {
	g.peakMu.Lock()
	defer g.peakMu.Unlock()
	return g.peak
}

func (g *Gate) notify(n int) {
	if g.observe != nil {
		g.observe(n)
	}
}

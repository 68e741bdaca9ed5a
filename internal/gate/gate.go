// Package gate bounds concurrent access to the shared synthesis model.
//
// The model is a single GPU-resident resource that cannot run unbounded
// concurrent inference. Admission is FIFO: a request that starts waiting
// first is granted its slot first. Waiters that outlive the admission
// timeout are rejected with ErrOverloaded instead of queueing without
// bound, which is the service's backpressure signal.
package gate

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrOverloaded is returned when no slot frees up within the admission
// timeout. Callers should retry later.
var ErrOverloaded = errors.New("all inference slots busy")

// Gate admits up to a fixed number of concurrent inference calls.
type Gate struct {
	sem              *semaphore.Weighted
	capacity         int
	admissionTimeout time.Duration
}

// New creates a gate with the given slot count and admission timeout.
// Capacity below one is treated as one.
func New(capacity int, admissionTimeout time.Duration) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:              semaphore.NewWeighted(int64(capacity)),
		capacity:         capacity,
		admissionTimeout: admissionTimeout,
	}
}

// Capacity returns the configured slot count.
func (g *Gate) Capacity() int {
	return g.capacity
}

// Acquire blocks until a slot is granted, ctx is cancelled, or the
// admission timeout expires. On success the returned release function must
// be called when inference finishes; calling it more than once is safe.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	admitCtx, cancel := context.WithTimeout(ctx, g.admissionTimeout)
	defer cancel()

	if err := g.sem.Acquire(admitCtx, 1); err != nil {
		// Distinguish the caller going away from the queue timing out.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrOverloaded
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.sem.Release(1) })
	}, nil
}

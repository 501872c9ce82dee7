package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/docparse/internal/common"
)

// Limiter caps how many extractions run at once. Callers over the cap wait up
// to the configured queue wait before being turned away.
type Limiter struct {
	sem      *semaphore.Weighted
	max      int64
	wait     time.Duration
	inFlight atomic.Int64
}

func NewLimiter(maxConcurrent int64, queueWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:  semaphore.NewWeighted(maxConcurrent),
		max:  maxConcurrent,
		wait: queueWait,
	}
}

// Acquire blocks until a slot is free, the queue wait elapses or ctx ends.
// The returned release must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, common.NewAppError("OVERLOADED", "all extraction slots are busy", common.ErrOverloaded)
		}
		return nil, err
	}
	l.inFlight.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		}
	}, nil
}

// InFlight is the number of slots currently held.
func (l *Limiter) InFlight() int64 { return l.inFlight.Load() }

// Capacity is the configured maximum.
func (l *Limiter) Capacity() int64 { return l.max }

package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyBatches is returned when no snapshot batch slot frees up within
// the wait time. The web layer maps it to 503 so clients retry later.
var ErrTooManyBatches = errors.New("too many concurrent batches, please try again later")

const (
	// DefaultMaxConcurrentBatches bounds parallel snapshot applies.
	DefaultMaxConcurrentBatches = 2
	// DefaultMaxWaitTime is how long an apply queues for a slot.
	DefaultMaxWaitTime = 30 * time.Second
)

// BatchLimiter admits a bounded number of snapshot applies. Each apply
// holds the full current index and the parsed snapshot in memory and keeps
// one transaction open, so extra uploads queue rather than run in parallel.
//
// Shutdown waits on WaitForDrain so no apply is cut off mid-transaction.
type BatchLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	idle    chan struct{} // closed while active == 0
	observe func(active int)
}

// NewBatchLimiter admits maxConcurrent batches; others wait up to maxWait.
// Non-positive arguments select the defaults.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	idle := make(chan struct{})
	close(idle)
	return &BatchLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// Observe registers fn to receive the active batch count after every
// admission and release. The service feeds it to the active-batches gauge.
func (l *BatchLimiter) Observe(fn func(active int)) {
	l.mu.Lock()
	l.observe = fn
	l.mu.Unlock()
}

// Acquire admits one batch, waiting up to the limiter's maxWait. The
// returned release must be called when the batch finishes; extra calls
// are no-ops.
func (l *BatchLimiter) Acquire(ctx context.Context) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
		return l.admit(), nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyBatches
	}
}

// TryAcquire admits one batch only if a slot is free right now.
func (l *BatchLimiter) TryAcquire() (release func(), ok bool) {
	select {
	case l.slots <- struct{}{}:
		return l.admit(), true
	default:
		return nil, false
	}
}

func (l *BatchLimiter) admit() func() {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.notify()
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.active--
			if l.active == 0 {
				close(l.idle)
			}
			l.notify()
			l.mu.Unlock()
			<-l.slots
		})
	}
}

// notify must be called with mu held.
func (l *BatchLimiter) notify() {
	if l.observe != nil {
		l.observe(l.active)
	}
}

// WaitForDrain blocks until no batch is active or ctx is done.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BatchLimiterStatus is a point-in-time view of the limiter.
type BatchLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *BatchLimiter) Status() BatchLimiterStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()

	return BatchLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}

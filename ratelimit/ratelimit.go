// Package ratelimit gates outbound requests per source so the aggregate
// request rate never exceeds the configured ceiling, regardless of how many
// logical calls are in flight.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/vulnscraper/vuln-scraper/types"
)

const defaultWaitTimeout = 30 * time.Second

type options struct {
	waitTimeout time.Duration
}

type option func(*options)

func WithWaitTimeout(d time.Duration) option {
	return func(opts *options) {
		opts.waitTimeout = d
	}
}

// Limiter is a sliding-window rate limiter. At most maxRequests grants are
// issued within any window of length perInterval.
type Limiter struct {
	*options

	maxRequests int
	perInterval time.Duration

	mu     sync.Mutex
	grants []time.Time
}

func New(maxRequests int, perInterval time.Duration, opts ...option) *Limiter {
	o := &options{
		waitTimeout: defaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if maxRequests < 1 {
		maxRequests = 1
	}
	return &Limiter{
		options:     o,
		maxRequests: maxRequests,
		perInterval: perInterval,
	}
}

// Acquire blocks until a request slot is available. It fails with a
// RATE_LIMITED error when the wait-timeout elapses first, and with TIMEOUT
// when ctx expires.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitDeadline := time.Now().Add(l.waitTimeout)

	for {
		next, ok := l.tryAcquire()
		if ok {
			return nil
		}

		now := time.Now()
		if next.After(waitDeadline) {
			return types.NewRateLimited(next.Sub(now))
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.NewTimeout(ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire grants a slot when fewer than maxRequests grants fall inside the
// current window. Otherwise it returns the earliest time a slot frees up.
func (l *Limiter) tryAcquire() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.perInterval)
	kept := l.grants[:0]
	for _, g := range l.grants {
		if g.After(cutoff) {
			kept = append(kept, g)
		}
	}
	l.grants = kept

	if len(l.grants) < l.maxRequests {
		l.grants = append(l.grants, now)
		return time.Time{}, true
	}
	return l.grants[0].Add(l.perInterval), false
}

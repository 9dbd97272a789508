package ratelimit_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnscraper/vuln-scraper/ratelimit"
	"github.com/vulnscraper/vuln-scraper/types"
)

func TestAcquireSlidingWindowBound(t *testing.T) {
	const (
		maxRequests = 5
		interval    = 200 * time.Millisecond
		calls       = 20
	)

	l := ratelimit.New(maxRequests, interval, ratelimit.WithWaitTimeout(time.Minute))

	var mu sync.Mutex
	var grants []time.Time

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.Acquire(context.Background()))
			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	require.Len(t, grants, calls)
	sort.Slice(grants, func(i, j int) bool { return grants[i].Before(grants[j]) })

	// No more than maxRequests grants in any sliding window of one interval.
	// Timestamps are taken after Acquire returns, so the window is shrunk a
	// little to absorb scheduling jitter.
	const jitter = 20 * time.Millisecond
	for i := range grants {
		count := 0
		for j := i; j < len(grants); j++ {
			if grants[j].Sub(grants[i]) < interval-jitter {
				count++
			}
		}
		assert.LessOrEqual(t, count, maxRequests)
	}

	// 20 calls at 5 per 200ms need at least 3 full intervals
	assert.GreaterOrEqual(t, elapsed, 3*interval)
}

func TestAcquireWaitTimeout(t *testing.T) {
	l := ratelimit.New(1, time.Hour, ratelimit.WithWaitTimeout(10*time.Millisecond))

	require.NoError(t, l.Acquire(context.Background()))

	err := l.Acquire(context.Background())
	require.Error(t, err)

	srcErr := types.AsSourceError(err)
	require.NotNil(t, srcErr)
	assert.Equal(t, types.ErrRateLimited, srcErr.Kind)
	assert.Greater(t, srcErr.RetryAfter, time.Duration(0))
}

func TestAcquireContextCancel(t *testing.T) {
	l := ratelimit.New(1, time.Hour, ratelimit.WithWaitTimeout(time.Hour))

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	require.Error(t, err)

	srcErr := types.AsSourceError(err)
	require.NotNil(t, srcErr)
	assert.Equal(t, types.ErrTimeout, srcErr.Kind)
}

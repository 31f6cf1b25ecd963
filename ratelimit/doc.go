// Package ratelimit throttles callers by key using token buckets.
//
// Each key (typically a worker ID) gets its own golang.org/x/time/rate
// limiter, created on first use. Idle limiters are pruned so the map does
// not grow with every worker that ever connected.
//
//	limiter := ratelimit.New(ratelimit.DefaultConfig())
//	if !limiter.Allow(workerID) {
//		// reject with 429
//	}
//
// A zero or negative Rate disables limiting: Allow always succeeds and
// Wait returns immediately.
package ratelimit

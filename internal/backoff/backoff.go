// Package backoff provides the exponential delay policy shared by the
// generation queue and the sync engine.
package backoff

import "time"

// Policy computes capped exponential delays: Base * 2^attempt, never
// exceeding Cap when Cap is positive.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before the attempt that follows `attempt` prior
// failures. Attempt 0 yields Base, attempt 1 yields 2*Base, and so on.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := p.Base
	for i := 0; i < attempt; i++ {
		if p.Cap > 0 && delay > p.Cap/2 {
			return p.Cap
		}
		delay *= 2
	}
	if p.Cap > 0 && delay > p.Cap {
		return p.Cap
	}
	return delay
}

// QueueRetry is the delay policy for generation queue retries.
var QueueRetry = Policy{Base: time.Minute, Cap: 60 * time.Minute}

// SyncRetry is the delay policy for per-reference sync retries. Attempts are
// 1-based in the sync loop, so the first failure waits 2s.
var SyncRetry = Policy{Base: time.Second, Cap: 2 * time.Minute}

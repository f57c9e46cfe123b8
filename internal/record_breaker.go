package internal

import (
	"slices"
	"sync"
	"time"

	"github.com/lychee-technology/crm"
	"go.uber.org/zap"
)

// BreakerPolicy controls when the record client stops calling a failing
// backend. A zero Threshold disables the breaker.
type BreakerPolicy struct {
	Threshold int           // failed calls within Window that trip the breaker
	Window    time.Duration // how long a failed call counts
	OpenFor   time.Duration // how long calls are refused once tripped
}

// callBreaker gates record API calls. It is owned by one RecordClient.
type callBreaker struct {
	policy BreakerPolicy
	now    func() time.Time

	mu        sync.Mutex
	failedAt  []time.Time
	openUntil time.Time
}

func newCallBreaker(policy BreakerPolicy) *callBreaker {
	if policy.Threshold <= 0 {
		return nil
	}
	return &callBreaker{policy: policy, now: time.Now}
}

// admit returns a circuit-open transport error while the breaker is tripped.
func (b *callBreaker) admit() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	wait := b.openUntil.Sub(b.now())
	if wait <= 0 {
		return nil
	}
	return crm.NewCRMError(crm.ErrorTypeTransport, crm.ErrCodeCircuitOpen, "record API temporarily unavailable").
		WithDetail("retryAfter", wait.Round(time.Millisecond).String())
}

// report records the outcome of one call. A healthy call forgets earlier
// failures and closes the breaker.
func (b *callBreaker) report(healthy bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if healthy {
		b.failedAt = b.failedAt[:0]
		b.openUntil = time.Time{}
		return
	}
	cutoff := now.Add(-b.policy.Window)
	b.failedAt = slices.DeleteFunc(b.failedAt, func(at time.Time) bool { return !at.After(cutoff) })
	b.failedAt = append(b.failedAt, now)
	if len(b.failedAt) >= b.policy.Threshold {
		b.openUntil = now.Add(b.policy.OpenFor)
		zap.S().Warnw("record api breaker tripped", "failures", len(b.failedAt), "openFor", b.policy.OpenFor)
	}
}

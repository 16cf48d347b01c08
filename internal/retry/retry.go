// Package retry implements bounded exponential backoff for transient store errors.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/smartdustbin/ecorewards/internal/apperr"
)

// Policy configures how many times an operation is attempted and how long to
// wait between attempts.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// Jitter is the fraction (0..1) of each delay that is randomised.
	Jitter float64
}

// DefaultPolicy is used by the deposit saga when no policy is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
		Multiplier:     2,
		Jitter:         0.2,
	}
}

// Delay returns the wait before the given retry (attempt starts at 1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter > 0 {
		spread := d * math.Min(p.Jitter, 1)
		d = d - spread + rand.Float64()*2*spread
	}
	return time.Duration(d)
}

// Sleep waits for the delay of the given attempt or until ctx is done.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil || !apperr.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if sleepErr := p.Sleep(ctx, attempt); sleepErr != nil {
			return apperr.Storage(sleepErr)
		}
	}
	return err
}

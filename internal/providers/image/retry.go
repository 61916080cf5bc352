package image

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts is the attempt budget used when a policy leaves it unset.
const DefaultMaxAttempts = 3

// DefaultBackoffUnit is the first pause when a policy leaves Unit unset.
const DefaultBackoffUnit = time.Second

// RetryPolicy bounds how often and how patiently a generation is retried.
// The pause after the failed attempt i (zero-based) is Unit * 2^i.
type RetryPolicy struct {
	MaxAttempts int
	Unit        time.Duration
}

// DefaultRetryPolicy makes three attempts, backing off 1s then 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Unit: DefaultBackoffUnit}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// BackOff returns the pause schedule between attempts. It yields
// backoff.Stop once attempts-1 pauses were handed out or ctx is done.
func (p RetryPolicy) BackOff(ctx context.Context) backoff.BackOff {
	unit := p.Unit
	if unit <= 0 {
		unit = DefaultBackoffUnit
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = unit
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.attempts()-1)), ctx)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
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

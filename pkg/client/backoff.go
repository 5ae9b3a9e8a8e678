package client

import (
	"context"
	"math/rand"
	"time"
)

// BackoffStrategy defines how long to wait before retrying a refresh that found the cluster
// busy.
type BackoffStrategy interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64 // 0.0 to 1.0
}

// DefaultBackoff waits 250ms, 500ms, 1s... capped at 4s, with 20% jitter. A pass usually
// finishes well inside the first few steps.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Base:   250 * time.Millisecond,
		Max:    4 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next calculates the wait duration for the given attempt (0-based).
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		return b.withJitter(float64(b.Base))
	}

	delay := float64(b.Base)
	for range attempt {
		delay *= b.Factor
		if delay >= float64(b.Max) {
			delay = float64(b.Max)
			break
		}
	}
	return b.withJitter(delay)
}

func (b *ExponentialBackoff) withJitter(delay float64) time.Duration {
	if b.Jitter > 0 {
		delay += delay * (rand.Float64()*2 - 1) * b.Jitter
	}
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

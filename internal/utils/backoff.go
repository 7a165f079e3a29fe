package utils

import (
	"context"
	"time"
)

// Backoff produces exponentially growing delays: Base * 2^(attempt-1), capped at Max.
// A Backoff is not safe for concurrent use; each loop owns its own.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

// NewBackoff returns a Backoff starting at base and never exceeding max
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Max: max}
}

// Next advances the attempt counter and returns the delay for it
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return b.Delay(b.attempt)
}

// Attempt returns how many delays have been handed out since the last Reset
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset starts the schedule over after a success
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Delay returns the delay for the given attempt without advancing the schedule
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}

// Wait sleeps for the next delay or until ctx is done
func (b *Backoff) Wait(ctx context.Context) error {
	return Sleep(ctx, b.Next())
}

// Sleep blocks for d or until ctx is done, returning ctx.Err() in the latter case
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryUntil calls fn until it succeeds or ctx is done, waiting b between attempts.
// onRetry, when set, is told about every failure and the delay before the next try.
func RetryUntil(ctx context.Context, b *Backoff, fn func(ctx context.Context) error, onRetry func(err error, delay time.Duration)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			b.Reset()
			return nil
		}

		delay := b.Next()
		if onRetry != nil {
			onRetry(err, delay)
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

package planner

import (
	"context"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 200 * time.Millisecond
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for derived fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone in which due dates are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRetry sets the number of attempts for full submits of persisted tasks
// and the base backoff. The n-th retry waits n times the backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Store) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// WithSleeper replaces the function used to wait between retries.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Store) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

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

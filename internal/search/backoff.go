package search

import (
	"context"
	"time"

	"github.com/desertthunder/plsync/internal/shared"
)

// Backoff is an exponential retry policy for transient catalog failures.
type Backoff struct {
	Base        time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

// BackoffFromConfig builds a Backoff from the [search] config section.
func BackoffFromConfig(c shared.SearchConfig) Backoff {
	return Backoff{
		Base:        c.BaseBackoff(),
		Max:         c.MaxBackoff(),
		Multiplier:  2,
		MaxAttempts: c.MaxAttempts,
	}
}

// Delay returns the wait before the attempt following attempt (1-based).
// A server hint longer than the computed delay wins, even above Max.
func (b Backoff) Delay(attempt int, retryAfter time.Duration) time.Duration {
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= mult
		if b.Max > 0 && d >= float64(b.Max) {
			d = float64(b.Max)
			break
		}
	}

	delay := time.Duration(d)
	if b.Max > 0 && delay > b.Max {
		delay = b.Max
	}
	return max(delay, retryAfter)
}

// Attempts returns the attempt budget, at least 1.
func (b Backoff) Attempts() int {
	return max(b.MaxAttempts, 1)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
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

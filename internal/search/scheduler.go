package search

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Scheduler bounds remote calls with a global concurrency ceiling and a request rate.
//
// One Scheduler is shared by every playlist in a run, so the ceiling holds
// across playlists as well as within one.
type Scheduler struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	ceiling  int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// NewScheduler creates a Scheduler allowing at most ceiling concurrent calls
// and rps calls per second. A non-positive rps disables rate limiting.
func NewScheduler(ceiling int, rps float64) *Scheduler {
	if ceiling <= 0 {
		ceiling = 1
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Scheduler{
		sem:     semaphore.NewWeighted(int64(ceiling)),
		limiter: rate.NewLimiter(limit, ceiling),
		ceiling: ceiling,
	}
}

// Do runs fn once a slot and a rate token are available.
// Only fn runs inside the slot; callers must sleep between retries outside Do.
func (s *Scheduler) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	return fn(ctx)
}

// Ceiling returns the configured concurrency ceiling.
func (s *Scheduler) Ceiling() int { return s.ceiling }

// Peak returns the highest number of concurrent calls observed.
func (s *Scheduler) Peak() int { return int(s.peak.Load()) }

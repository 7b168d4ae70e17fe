// package search queries a remote catalog for candidates of normalized entries.
//
// Every remote call goes through a shared [Scheduler], which enforces the
// global concurrency ceiling and request rate. Transient failures are retried
// with a [Backoff] whose sleeps happen outside the scheduler slot. Identical
// keys are resolved at most once per run: a run-scoped memo serves repeats and
// [singleflight.Group] collapses concurrent duplicates. An optional persistent
// [CandidateCache] is consulted before the catalog.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/sync/singleflight"
)

const defaultResultLimit = 10

// CandidateCache persists successful search results across runs.
type CandidateCache interface {
	Lookup(fingerprint, service string, maxAge time.Duration) ([]models.CatalogCandidate, bool, error)
	Store(fingerprint, service, query string, candidates []models.CatalogCandidate) error
}

// Outcome is the result of searching for one key.
type Outcome struct {
	Candidates []models.CatalogCandidate
	Attempts   int   // remote calls made to produce this outcome
	Exhausted  bool  // every attempt failed transiently; Candidates is empty
	Cached     bool  // served from the persistent cache
	Shared     bool  // served from the run memo or a concurrent identical search
	LastErr    error // final transient error when Exhausted
}

// Options configures a [Client].
type Options struct {
	Limit    int
	Backoff  Backoff
	Cache    CandidateCache // optional
	CacheTTL time.Duration
	Logger   *log.Logger
}

// Client searches a [services.Catalog] through a [Scheduler].
type Client struct {
	catalog services.Catalog
	sched   *Scheduler
	opts    Options
	logger  *log.Logger

	mu      sync.Mutex
	memo    map[string]Outcome
	group   singleflight.Group
	queries atomic.Int64
}

// NewClient creates a search client. sched may be shared with other clients.
func NewClient(catalog services.Catalog, sched *Scheduler, opts Options) *Client {
	if opts.Limit <= 0 {
		opts.Limit = defaultResultLimit
	}
	if opts.Backoff.MaxAttempts <= 0 {
		opts.Backoff.MaxAttempts = 1
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Client{
		catalog: catalog,
		sched:   sched,
		opts:    opts,
		logger:  shared.WithLogger(logger, "component", "search", "catalog", catalog.Name()),
		memo:    make(map[string]Outcome),
	}
}

// Search returns catalog candidates for key.
//
// Exhausted retries are not an error: the outcome is marked Exhausted with no
// candidates. Authentication failures and context cancellation are returned
// as errors and never retried.
func (c *Client) Search(ctx context.Context, key models.NormalizedKey) (Outcome, error) {
	if key.IsZero() {
		return Outcome{}, fmt.Errorf("%w: empty search key", shared.ErrInvalidInput)
	}
	fp := key.Fingerprint()
	return c.lookup(ctx, "key:"+fp, fp, key.Query())
}

// SearchQuery runs an operator-supplied free-text query. Results are memoized for the run but never persisted.
func (c *Client) SearchQuery(ctx context.Context, query string) (Outcome, error) {
	canon := normalize.Canonical(query)
	if canon == "" {
		return Outcome{}, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	return c.lookup(ctx, "query:"+canon, "", query)
}

// Queries returns the number of remote calls made so far.
func (c *Client) Queries() int {
	return int(c.queries.Load())
}

// Reset clears the run memo. The persistent cache is untouched.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo = make(map[string]Outcome)
}

func (c *Client) lookup(ctx context.Context, memoKey, fingerprint, query string) (Outcome, error) {
	if out, ok := c.memoGet(memoKey); ok {
		out.Shared = true
		return out, nil
	}

	v, err, dup := c.group.Do(memoKey, func() (any, error) {
		if out, ok := c.memoGet(memoKey); ok {
			out.Shared = true
			return out, nil
		}

		if out, ok := c.cached(fingerprint); ok {
			c.memoPut(memoKey, out)
			return out, nil
		}

		out, err := c.fetch(ctx, query)
		if err != nil {
			return Outcome{}, err
		}
		c.memoPut(memoKey, out)
		c.store(fingerprint, query, out)
		return out, nil
	})
	if err != nil {
		return Outcome{}, err
	}

	out := v.(Outcome)
	if dup {
		out.Shared = true
	}
	return out, nil
}

func (c *Client) fetch(ctx context.Context, query string) (Outcome, error) {
	attempts := c.opts.Backoff.Attempts()
	var last error

	for attempt := 1; attempt <= attempts; attempt++ {
		var candidates []models.CatalogCandidate
		err := c.sched.Do(ctx, func(ctx context.Context) error {
			c.queries.Add(1)
			var err error
			candidates, err = c.catalog.SearchTracks(ctx, query, c.opts.Limit)
			return err
		})
		if err == nil {
			c.logger.Debug("search complete", "query", query, "results", len(candidates), "attempt", attempt)
			return Outcome{Candidates: candidates, Attempts: attempt}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, ctxErr
		}

		var transient *shared.TransientError
		if !errors.As(err, &transient) {
			return Outcome{}, fmt.Errorf("search %q: %w", query, err)
		}

		last = err
		if attempt == attempts {
			break
		}

		delay := c.opts.Backoff.Delay(attempt, transient.RetryAfter)
		c.logger.Warn("transient search failure", "query", query, "attempt", attempt, "retry_in", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return Outcome{}, err
		}
	}

	c.logger.Error("search retries exhausted", "query", query, "attempts", attempts, "error", last)
	return Outcome{Attempts: attempts, Exhausted: true, LastErr: last}, nil
}

func (c *Client) cached(fingerprint string) (Outcome, bool) {
	if c.opts.Cache == nil || fingerprint == "" || c.opts.CacheTTL <= 0 {
		return Outcome{}, false
	}

	candidates, ok, err := c.opts.Cache.Lookup(fingerprint, c.catalog.Name(), c.opts.CacheTTL)
	if err != nil {
		c.logger.Warn("candidate cache lookup failed", "fingerprint", fingerprint, "error", err)
		return Outcome{}, false
	}
	if !ok || len(candidates) == 0 {
		return Outcome{}, false
	}
	return Outcome{Candidates: candidates, Cached: true}, true
}

// store persists non-empty successful results only, so failures and misses are retried next run.
func (c *Client) store(fingerprint, query string, out Outcome) {
	if c.opts.Cache == nil || fingerprint == "" || c.opts.CacheTTL <= 0 {
		return
	}
	if out.Exhausted || len(out.Candidates) == 0 {
		return
	}
	if err := c.opts.Cache.Store(fingerprint, c.catalog.Name(), query, out.Candidates); err != nil {
		c.logger.Warn("candidate cache store failed", "fingerprint", fingerprint, "error", err)
	}
}

func (c *Client) memoGet(key string) (Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.memo[key]
	return out, ok
}

func (c *Client) memoPut(key string, out Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo[key] = out
}

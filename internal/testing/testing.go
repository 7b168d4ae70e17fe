// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/decision"
	"github.com/desertthunder/plsync/internal/models"
)

// FakeCatalog is a test double for [services.Catalog].
//
// Results are keyed by query. Errors holds a queue of errors per query that
// are returned, in order, before the query succeeds.
type FakeCatalog struct {
	ServiceName string
	Results     map[string][]models.CatalogCandidate
	Errors      map[string][]error
	Delay       time.Duration

	mu       sync.Mutex
	calls    map[string]int
	inFlight int
	peak     int
}

// NewFakeCatalog creates an empty FakeCatalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		ServiceName: "fake",
		Results:     make(map[string][]models.CatalogCandidate),
		Errors:      make(map[string][]error),
		calls:       make(map[string]int),
	}
}

func (f *FakeCatalog) Name() string { return f.ServiceName }

// Add registers candidates returned for query.
func (f *FakeCatalog) Add(query string, candidates ...models.CatalogCandidate) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[query] = append(f.Results[query], candidates...)
	return f
}

// Fail queues errs to be returned for query before any success.
func (f *FakeCatalog) Fail(query string, errs ...error) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[query] = append(f.Errors[query], errs...)
	return f
}

func (f *FakeCatalog) SearchTracks(ctx context.Context, query string, limit int) ([]models.CatalogCandidate, error) {
	f.mu.Lock()
	f.calls[query]++
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	var err error
	if queue := f.Errors[query]; len(queue) > 0 {
		err, f.Errors[query] = queue[0], queue[1:]
	}
	results := f.Results[query]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return append([]models.CatalogCandidate(nil), results...), nil
}

// Calls returns the number of searches made for query.
func (f *FakeCatalog) Calls(query string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[query]
}

// TotalCalls returns the number of searches made for any query.
func (f *FakeCatalog) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Peak returns the highest number of concurrent searches observed.
func (f *FakeCatalog) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// WriteCall records one [FakeWriter.ReplacePlaylist] call.
type WriteCall struct {
	Name        string
	Description string
	IDs         []string
}

// FakeWriter is a test double for [services.PlaylistWriter].
type FakeWriter struct {
	Err error

	mu    sync.Mutex
	calls []WriteCall
}

func (w *FakeWriter) ReplacePlaylist(ctx context.Context, name, description string, ids []string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, WriteCall{Name: name, Description: description, IDs: append([]string(nil), ids...)})
	if w.Err != nil {
		return "", w.Err
	}
	return "playlist-" + name, nil
}

// Calls returns a copy of the recorded calls.
func (w *FakeWriter) Calls() []WriteCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WriteCall(nil), w.calls...)
}

// FakeReviewer is a scripted [decision.Reviewer].
//
// Verdicts are returned in order; once exhausted, Decide is consulted, then NoSuggestion.
type FakeReviewer struct {
	ReviewerName string
	Verdicts     []decision.Verdict
	Decide       func(req decision.ReviewRequest) decision.Verdict
	Err          error

	mu       sync.Mutex
	requests []decision.ReviewRequest
}

func (r *FakeReviewer) Name() string {
	if r.ReviewerName == "" {
		return "fake"
	}
	return r.ReviewerName
}

func (r *FakeReviewer) Review(ctx context.Context, req decision.ReviewRequest) (decision.Verdict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.Err != nil {
		return decision.Verdict{}, r.Err
	}
	if len(r.Verdicts) > 0 {
		v := r.Verdicts[0]
		r.Verdicts = r.Verdicts[1:]
		return v, nil
	}
	if r.Decide != nil {
		return r.Decide(req), nil
	}
	return decision.Verdict{Action: decision.NoSuggestion}, nil
}

// Requests returns the review requests received so far.
func (r *FakeReviewer) Requests() []decision.ReviewRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]decision.ReviewRequest(nil), r.requests...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// WritePlaylist writes lines to a playlist file under dir and returns its path.
func WritePlaylist(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := dir + string(os.PathSeparator) + name
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write playlist %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/decision"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/scoring"
	"github.com/desertthunder/plsync/internal/search"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/desertthunder/plsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	catalog     services.Catalog
	writer      services.PlaylistWriter
	logger      *log.Logger
	output      io.Writer
	input       io.Reader
	prompt      io.Writer
	interactive bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Catalog     services.Catalog
	Writer      services.PlaylistWriter
	Logger      *log.Logger
	Output      io.Writer
	Input       io.Reader // operator prompt input
	Prompt      io.Writer // operator prompt output
	Interactive bool      // input and prompt are attached to a terminal
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Prompt == nil {
		opts.Prompt = os.Stderr
	}

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		catalog:     opts.Catalog,
		writer:      opts.Writer,
		logger:      opts.Logger,
		output:      opts.Output,
		input:       opts.Input,
		prompt:      opts.Prompt,
		interactive: opts.Interactive,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, parseCommand, searchCommand, reconcileCommand, memoryCommand, runsCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// openDatabase opens the configured database and applies pending migrations.
// The returned lock is nil for in-memory databases.
func (r *Runner) openDatabase() (*sql.DB, *shared.WriteLock, error) {
	path := r.config.Database.Path
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, shared.NewWriteLock(path), nil
}

// newSearchClient builds a search client for the configured catalog. cache may be nil.
func (r *Runner) newSearchClient(cache *repositories.CandidateCacheRepository) (*search.Client, error) {
	if r.catalog == nil {
		return nil, fmt.Errorf("%w: no %s catalog configured", shared.ErrServiceUnavailable, r.config.Search.Service)
	}

	s := r.config.Search
	opts := search.Options{
		Limit:   s.ResultLimit,
		Backoff: search.BackoffFromConfig(s),
		Logger:  r.logger,
	}
	if cache != nil && s.CacheTTL() > 0 {
		opts.Cache = cache
		opts.CacheTTL = s.CacheTTL()
	}
	return search.NewClient(r.catalog, search.NewScheduler(s.Concurrency, s.RateLimit), opts), nil
}

func (r *Runner) newScorer() *scoring.Scorer {
	return scoring.New(scoring.OptionsFromConfig(r.config.Matching))
}

// oracle returns the configured match oracle, or nil when it is disabled or unavailable.
func (r *Runner) oracle(ctx context.Context) decision.Reviewer {
	if !r.config.Review.Oracle {
		return nil
	}
	gemini := r.config.Credentials.Gemini
	if gemini.APIKey == "" {
		r.logger.Warn("oracle enabled without credentials.gemini.api_key, skipping")
		return nil
	}

	gen, err := decision.NewGeminiGenerator(ctx, gemini)
	if err != nil {
		r.logger.Warn("failed to create oracle, continuing without it", "error", err)
		return nil
	}
	return decision.NewOracleReviewer(gen, gemini.MaxRequests, r.logger)
}

// operator returns the terminal reviewer, or nil when the run cannot prompt.
// abort is called when the operator aborts the run from a prompt.
func (r *Runner) operator(noReview bool, abort context.CancelFunc) decision.Reviewer {
	if noReview || !r.config.Review.Interactive || !r.interactive {
		return nil
	}
	return ui.NewReviewer(r.input, r.prompt, abort)
}

// newEngine wires the reconcile engine over db.
func (r *Runner) newEngine(ctx context.Context, db *sql.DB, lock *shared.WriteLock, noReview bool, abort context.CancelFunc) (*tasks.ReconcileEngine, error) {
	client, err := r.newSearchClient(repositories.NewCandidateCacheRepository(db, lock))
	if err != nil {
		return nil, err
	}
	scorer := r.newScorer()

	policy := decision.New(decision.Options{
		Thresholds: decision.ThresholdsFromConfig(r.config),
		Memory:     repositories.NewDecisionRepository(db, lock, r.logger),
		Oracle:     r.oracle(ctx),
		Operator:   r.operator(noReview, abort),
		Scorer:     scorer,
		Search:     tasks.ManualSearch(client),
		Logger:     r.logger,
	})

	return tasks.NewReconcileEngine(tasks.EngineConfig{
		Search: client,
		Scorer: scorer,
		Policy: policy,
		Sync:   tasks.NewSyncController(repositories.NewSyncStateRepository(db, lock), r.config.Sync, r.logger),
		Writer: r.writer,
		Runs:   repositories.NewRunRepository(db),
		Logger: r.logger,
	}), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

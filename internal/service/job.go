// Package service holds the job that decides when a new leader is announced.
//
// THE JOB, ONE CYCLE:
//
//	Searching  → ask the data source for flights above a threshold, lowering
//	             the threshold by Step until at least RankingCount come back
//	Ranked     → sort best-first, keep the top RankingCount
//	Comparing  → look at the persisted rank-1 flight for this category
//	Unchanged  → same flight: stop. No write, no post.
//	Updating   → replace the leader rows (one transaction)
//	Publishing → get a credential, format, post the rank-1 flight
//
// ORDERING:
// The leader rows are committed before anything is posted. If posting fails
// the rows stay, so the next cycle sees the flight as already announced and
// does not try again. One change may go unannounced; none is announced twice.
//
// DEPENDENCIES:
// JobRunner takes interfaces (DataSource, Authorizer, Poster and the leader
// repository), never concrete clients. main.go wires the AeroAPI client, the
// auth broker, the X client and a store; tests wire fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/oauth2"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/publisher"
	"github.com/sakif/highest-aircraft/internal/repository"
)

// DataSource returns flights whose category metric is above threshold,
// minus any whose ident starts with one of excludePrefixes.
type DataSource interface {
	Search(ctx context.Context, category model.Category, threshold int, excludePrefixes []string) ([]model.Flight, error)
}

// Authorizer hands out the bearer credential used to post for a category.
type Authorizer interface {
	Authorize(ctx context.Context, category model.Category) (*oauth2.Token, error)
}

// Poster publishes one announcement.
type Poster interface {
	Post(ctx context.Context, token *oauth2.Token, text string) error
}

// DiffPolicy decides when the new top flight counts as a change.
type DiffPolicy string

const (
	// DiffIdent compares idents only. A momentarily missing destination
	// does not trigger a second announcement of the same flight.
	DiffIdent DiffPolicy = "ident"
	// DiffFull compares every field.
	DiffFull DiffPolicy = "full"
)

// Outcome is how a cycle that got past searching ended.
type Outcome string

const (
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomePublished     Outcome = "published"
	OutcomePublishFailed Outcome = "publish_failed"
)

// JobConfig is the per-category search and ranking configuration.
type JobConfig struct {
	Category model.Category

	// StartThreshold is the first threshold searched. Each retry lowers it
	// by Step. The search gives up below Floor or after MaxAttempts calls,
	// whichever comes first.
	StartThreshold int
	Step           int
	Floor          int
	MaxAttempts    int

	// RankingCount is how many flights are required and kept.
	RankingCount int

	ExcludePrefixes []string
	Diff            DiffPolicy
}

// Validate reports the first invalid field.
func (c JobConfig) Validate() error {
	switch {
	case !c.Category.Valid():
		return apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", c.Category))
	case c.Step <= 0:
		return apperror.ValidationFailed("step", "step must be positive")
	case c.Floor > c.StartThreshold:
		return apperror.ValidationFailed("floor", "floor must not exceed the start threshold")
	case c.MaxAttempts <= 0:
		return apperror.ValidationFailed("max_attempts", "max attempts must be positive")
	case c.RankingCount <= 0:
		return apperror.ValidationFailed("ranking_count", "ranking count must be positive")
	case c.Diff != "" && c.Diff != DiffIdent && c.Diff != DiffFull:
		return apperror.ValidationFailed("diff", fmt.Sprintf("unknown diff policy %q", c.Diff))
	}
	return nil
}

// Result describes one completed cycle.
type Result struct {
	RunID     string         `json:"runId"`
	Category  model.Category `json:"category"`
	Outcome   Outcome        `json:"outcome"`
	Leader    model.Flight   `json:"leader"`
	Previous  *model.Flight  `json:"previous,omitempty"`
	Threshold int            `json:"threshold"`
	Attempts  int            `json:"attempts"`
	Duration  time.Duration  `json:"duration"`
}

// JobRunner runs leader cycles. Safe for concurrent use; cycles of the same
// category never overlap.
type JobRunner struct {
	source  DataSource
	leaders repository.LeaderRepository
	auth    Authorizer
	poster  Poster
	jobs    map[model.Category]JobConfig
	running map[model.Category]*sync.Mutex
	logger  *slog.Logger
}

// NewJobRunner validates every job config and builds a runner for them.
func NewJobRunner(
	source DataSource,
	leaders repository.LeaderRepository,
	auth Authorizer,
	poster Poster,
	jobs []JobConfig,
	logger *slog.Logger,
) (*JobRunner, error) {
	r := &JobRunner{
		source:  source,
		leaders: leaders,
		auth:    auth,
		poster:  poster,
		jobs:    make(map[model.Category]JobConfig, len(jobs)),
		running: make(map[model.Category]*sync.Mutex, len(jobs)),
		logger:  logger,
	}

	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("service: %s job: %w", job.Category, err)
		}
		if job.Diff == "" {
			job.Diff = DiffIdent
		}
		r.jobs[job.Category] = job
		r.running[job.Category] = &sync.Mutex{}
	}

	return r, nil
}

// Categories returns the configured categories in canonical order.
func (r *JobRunner) Categories() []model.Category {
	var out []model.Category
	for _, c := range model.Categories() {
		if _, ok := r.jobs[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Leaders returns the persisted leader set for category.
func (r *JobRunner) Leaders(ctx context.Context, category model.Category) ([]model.Leader, error) {
	if !category.Valid() {
		return nil, apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", category))
	}

	leaders, err := r.leaders.ListLeaders(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("service: listing %s leaders: %w", category, err)
	}
	return leaders, nil
}

// Run executes one cycle for category.
//
// The error is nil for OutcomeUnchanged and OutcomePublished. For
// OutcomePublishFailed both a Result and the authorization or publish error
// are returned: the leader change was persisted, only the post is missing.
// Any failure before persistence returns a nil Result.
//
// A second Run for a category that is already running returns
// apperror.ErrConflict immediately instead of queueing.
func (r *JobRunner) Run(ctx context.Context, category model.Category) (*Result, error) {
	job, ok := r.jobs[category]
	if !ok {
		return nil, apperror.ValidationFailed("category", fmt.Sprintf("no job configured for %q", category))
	}

	mu := r.running[category]
	if !mu.TryLock() {
		return nil, apperror.Conflict("job", string(category))
	}
	defer mu.Unlock()

	start := time.Now()
	res := &Result{RunID: xid.New().String(), Category: category}
	logger := r.logger.With(slog.String("run_id", res.RunID), slog.String("category", string(category)))

	// === SEARCHING ===
	flights, err := r.search(ctx, job, res, logger)
	if err != nil {
		return nil, fmt.Errorf("service: searching %s: %w", category, err)
	}

	// === RANKED ===
	ranked := Rank(flights, category, job.RankingCount)
	res.Leader = ranked[0]

	// === COMPARING ===
	previous, err := r.leaders.ListLeaders(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("service: reading %s leaders: %w", category, err)
	}
	if len(previous) > 0 {
		prev := previous[0].Flight
		res.Previous = &prev

		if sameLeader(job.Diff, prev, res.Leader) {
			res.Outcome = OutcomeUnchanged
			res.Duration = time.Since(start)
			logger.Info("leader unchanged", slog.String("ident", res.Leader.Ident))
			return res, nil
		}
	}

	// === UPDATING ===
	if err := r.leaders.ReplaceLeaders(ctx, category, ranked); err != nil {
		return nil, fmt.Errorf("service: replacing %s leaders: %w", category, err)
	}
	logger.Info("new leader persisted",
		slog.String("ident", res.Leader.Ident),
		slog.String("previous", previousIdent(res.Previous)),
	)

	// === PUBLISHING ===
	// From here on the change is committed; failures only lose the post.
	if err := r.publish(ctx, category, res.Leader); err != nil {
		res.Outcome = OutcomePublishFailed
		res.Duration = time.Since(start)
		logger.Error("announcement failed, leader change kept",
			slog.String("kind", apperror.KindOf(err)),
			slog.String("error", err.Error()),
		)
		return res, fmt.Errorf("service: announcing %s leader: %w", category, err)
	}

	res.Outcome = OutcomePublished
	res.Duration = time.Since(start)
	logger.Info("new leader announced",
		slog.String("ident", res.Leader.Ident),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

// search widens the threshold until enough flights come back.
//
// Only a short result widens the search. A data source error ends the cycle
// immediately.
func (r *JobRunner) search(ctx context.Context, job JobConfig, res *Result, logger *slog.Logger) ([]model.Flight, error) {
	threshold := job.StartThreshold

	for attempt := 1; ; attempt++ {
		flights, err := r.source.Search(ctx, job.Category, threshold, job.ExcludePrefixes)
		if err != nil {
			return nil, err
		}

		res.Threshold = threshold
		res.Attempts = attempt

		if len(flights) >= job.RankingCount {
			logger.Debug("search satisfied",
				slog.Int("threshold", threshold),
				slog.Int("attempts", attempt),
				slog.Int("flights", len(flights)),
			)
			return flights, nil
		}

		next := threshold - job.Step
		if next < job.Floor || attempt >= job.MaxAttempts {
			return nil, apperror.InsufficientData(job.RankingCount, len(flights), job.Floor)
		}

		logger.Debug("widening search",
			slog.Int("threshold", threshold),
			slog.Int("next", next),
			slog.Int("flights", len(flights)),
		)
		if err := ctx.Err(); err != nil {
			return nil, apperror.DataSource("widening search", err)
		}
		threshold = next
	}
}

func (r *JobRunner) publish(ctx context.Context, category model.Category, leader model.Flight) error {
	token, err := r.auth.Authorize(ctx, category)
	if err != nil {
		return err
	}
	if token == nil {
		return apperror.Authorization("no credential returned", nil)
	}

	return r.poster.Post(ctx, token, publisher.Format(leader, category))
}

func sameLeader(policy DiffPolicy, prev, next model.Flight) bool {
	if policy == DiffFull {
		return prev.Equal(next)
	}
	return prev.Ident == next.Ident
}

func previousIdent(prev *model.Flight) string {
	if prev == nil {
		return ""
	}
	return prev.Ident
}

// IsSkipped reports whether err means the cycle never started because
// another cycle of the same category was running.
func IsSkipped(err error) bool {
	return errors.Is(err, apperror.ErrConflict)
}

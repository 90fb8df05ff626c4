// Package scheduler fires the leader job for each category on its own cron
// schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/service"
)

// Runner runs one cycle of a category's job.
type Runner interface {
	Run(ctx context.Context, category model.Category) (*service.Result, error)
}

// DefaultSchedule fires at 00:00 and 16:00 UTC.
const DefaultSchedule = "0 0 */16 * * *"

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule parses a cron expression with an optional leading seconds
// field, or a descriptor such as "@daily" or "@every 16h".
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Job is one category's schedule.
type Job struct {
	Category model.Category
	// Schedule is evaluated in UTC.
	Schedule cron.Schedule
	// RunTimeout bounds a single cycle. It must leave room for an
	// interactive authorization on the first run.
	RunTimeout time.Duration
}

// Scheduler owns one loop goroutine per category.
//
// Each loop runs a cycle at start, then at every activation of its schedule.
// A cycle runs to completion inside the loop and the next activation is
// computed after it returns, so a category can never overlap itself and
// activations missed while a cycle was running are dropped, not queued.
// Loops for different categories run concurrently.
type Scheduler struct {
	runner    Runner
	jobs      []Job
	logger    *slog.Logger
	now       func() time.Time
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(runner Runner, jobs []Job, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Start launches the loops. Calling it again has no effect.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for _, job := range s.jobs {
			s.logger.Info("scheduling job",
				slog.String("category", string(job.Category)),
				slog.Time("first_activation", job.Schedule.Next(s.now().UTC())),
			)
			s.wg.Add(1)
			go s.loop(job)
		}
	})
}

// Stop cancels any running cycle and waits for every loop to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping scheduler")
		close(s.done)
	})
	s.wg.Wait()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	s.runOnce(job)
	for {
		now := s.now().UTC()
		next := job.Schedule.Next(now)
		if next.IsZero() {
			s.logger.Warn("schedule has no further activations",
				slog.String("category", string(job.Category)))
			<-s.done
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(job)
		}
	}
}

// runOnce runs a cycle and logs how it ended. Errors never escape: the next
// activation is the only retry.
func (s *Scheduler) runOnce(job Job) {
	// Stop cancels the in-flight cycle.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if job.RunTimeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, job.RunTimeout)
		defer timeoutCancel()
	}

	logger := s.logger.With(slog.String("category", string(job.Category)))

	res, err := s.runner.Run(ctx, job.Category)
	switch {
	case err == nil:
		logger.Info("job finished",
			slog.String("run_id", res.RunID),
			slog.String("outcome", string(res.Outcome)),
			slog.String("leader", res.Leader.Ident),
		)
	case errors.Is(err, apperror.ErrConflict):
		logger.Warn("job still running, activation skipped")
	case errors.Is(err, apperror.ErrInsufficientData):
		logger.Warn("job found too few flights", slog.String("error", err.Error()))
	default:
		attrs := []any{
			slog.String("kind", apperror.KindOf(err)),
			slog.String("error", err.Error()),
		}
		if res != nil {
			attrs = append(attrs, slog.String("run_id", res.RunID), slog.String("outcome", string(res.Outcome)))
		}
		logger.Error("job failed", attrs...)
	}
}

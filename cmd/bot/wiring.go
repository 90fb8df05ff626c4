package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/highest-aircraft/internal/aeroapi"
	"github.com/sakif/highest-aircraft/internal/auth"
	"github.com/sakif/highest-aircraft/internal/config"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/publisher"
	"github.com/sakif/highest-aircraft/internal/repository"
	"github.com/sakif/highest-aircraft/internal/repository/postgres"
	"github.com/sakif/highest-aircraft/internal/repository/sqlite"
	"github.com/sakif/highest-aircraft/internal/scheduler"
	"github.com/sakif/highest-aircraft/internal/service"
)

// openStore opens Postgres when a database URL is configured and SQLite
// otherwise.
func openStore(ctx context.Context, c *config.Config) (repository.Store, error) {
	if c.Store.DatabaseURL != "" {
		db, err := postgres.Open(ctx, c.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres store")
		return db, nil
	}

	dir := filepath.Dir(c.Store.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}
	db, err := sqlite.New(c.Store.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Info("using sqlite store", slog.String("path", c.Store.DBPath))
	return db, nil
}

func newBroker(c *config.Config, sessions repository.SessionRepository) (*auth.Broker, error) {
	var sealer *auth.Sealer
	if c.SessionSealKey != "" {
		var err error
		if sealer, err = auth.NewSealer(c.SessionSealKey); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("SESSION_SEAL_KEY not set, session tokens are stored unencrypted")
	}

	clients := make(map[model.Category]auth.ClientCredentials)
	for _, category := range model.Categories() {
		job := c.Job(category)
		clients[category] = auth.ClientCredentials{ClientID: job.ClientID, ClientSecret: job.ClientSecret}
	}

	return auth.NewBroker(sessions, auth.BrokerConfig{
		Clients:         clients,
		CallbackAddr:    c.X.CallbackAddr,
		RedirectURL:     c.X.CallbackURL,
		CallbackTimeout: c.X.CallbackTimeout,
		ExchangeTimeout: c.X.Timeout,
	}, logger, auth.WithSealer(sealer))
}

func newRunner(c *config.Config, leaders repository.LeaderRepository, broker service.Authorizer) (*service.JobRunner, error) {
	source := aeroapi.NewClient(c.AeroAPI.APIKey, logger).
		WithBaseURL(c.AeroAPI.BaseURL).
		WithHTTPClient(&http.Client{Timeout: c.AeroAPI.Timeout})

	poster := publisher.NewClient(logger).
		WithBaseURL(c.X.BaseURL).
		WithHTTPClient(&http.Client{Timeout: c.X.Timeout})

	var jobs []service.JobConfig
	for _, category := range c.EnabledCategories() {
		j := c.Job(category)
		jobs = append(jobs, service.JobConfig{
			Category:        category,
			StartThreshold:  j.StartThreshold,
			Step:            j.Step,
			Floor:           j.Floor,
			MaxAttempts:     j.MaxAttempts,
			RankingCount:    j.RankingCount,
			ExcludePrefixes: j.ExcludePrefixes,
			Diff:            service.DiffPolicy(j.Diff),
		})
	}

	return service.NewJobRunner(source, leaders, broker, poster, jobs, logger)
}

func schedulerJobs(c *config.Config) ([]scheduler.Job, error) {
	var jobs []scheduler.Job
	for _, category := range c.EnabledCategories() {
		j := c.Job(category)
		sched, err := scheduler.ParseSchedule(j.ScheduleSpec())
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, scheduler.Job{Category: category, Schedule: sched, RunTimeout: j.RunTimeout})
	}
	return jobs, nil
}

// maxRunTimeout is the longest per-cycle timeout across enabled jobs.
func maxRunTimeout(c *config.Config) (d time.Duration) {
	for _, category := range c.EnabledCategories() {
		d = max(d, c.Job(category).RunTimeout)
	}
	return d
}

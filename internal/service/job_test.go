package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"golang.org/x/oauth2"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
)

// =========================================================================
// FAKES
// =========================================================================
//
// Each fake records what the runner asked of it so tests can assert on side
// effects (how many searches, writes, posts) rather than on log output.

// fakeSource answers every search through fn and records the thresholds.
type fakeSource struct {
	mu         sync.Mutex
	thresholds []int
	fn         func(threshold int) ([]model.Flight, error)
}

func (f *fakeSource) Search(_ context.Context, _ model.Category, threshold int, _ []string) ([]model.Flight, error) {
	f.mu.Lock()
	f.thresholds = append(f.thresholds, threshold)
	f.mu.Unlock()
	return f.fn(threshold)
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.thresholds)
}

// returning makes a source that always answers with flights.
func returning(flights ...model.Flight) *fakeSource {
	return &fakeSource{fn: func(int) ([]model.Flight, error) { return flights, nil }}
}

type fakeLeaders struct {
	mu         sync.Mutex
	rows       map[model.Category][]model.Flight
	writes     int
	listErr    error
	replaceErr error
}

func newFakeLeaders() *fakeLeaders {
	return &fakeLeaders{rows: make(map[model.Category][]model.Flight)}
}

func (f *fakeLeaders) ListLeaders(_ context.Context, category model.Category) ([]model.Leader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Leader, 0, len(f.rows[category]))
	for i, fl := range f.rows[category] {
		out = append(out, model.Leader{Category: category, Rank: i + 1, Flight: fl})
	}
	return out, nil
}

func (f *fakeLeaders) ReplaceLeaders(_ context.Context, category model.Category, flights []model.Flight) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.writes++
	f.rows[category] = append([]model.Flight(nil), flights...)
	return nil
}

type fakeAuth struct {
	calls int
	err   error
}

func (f *fakeAuth) Authorize(context.Context, model.Category) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "token"}, nil
}

type fakePoster struct {
	texts []string
	err   error
}

func (f *fakePoster) Post(_ context.Context, _ *oauth2.Token, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

// =========================================================================
// TEST HELPERS
// =========================================================================

type rig struct {
	runner  *JobRunner
	source  *fakeSource
	leaders *fakeLeaders
	auth    *fakeAuth
	poster  *fakePoster
}

func altitudeJob() JobConfig {
	return JobConfig{
		Category:        model.CategoryAltitude,
		StartThreshold:  450,
		Step:            10,
		Floor:           300,
		MaxAttempts:     50,
		RankingCount:    3,
		ExcludePrefixes: []string{"HBAL"},
	}
}

func newRig(t *testing.T, source *fakeSource, job JobConfig) *rig {
	t.Helper()
	r := &rig{source: source, leaders: newFakeLeaders(), auth: &fakeAuth{}, poster: &fakePoster{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	runner, err := NewJobRunner(r.source, r.leaders, r.auth, r.poster, []JobConfig{job}, logger)
	if err != nil {
		t.Fatalf("NewJobRunner() error = %v", err)
	}
	r.runner = runner
	return r
}

func alt(ident string, fl int) model.Flight {
	return model.Flight{Ident: ident, Altitude: model.Ptr(fl), Groundspeed: model.Ptr(480)}
}

// =========================================================================
// CHANGE DETECTION
// =========================================================================

func TestRun_FirstRunPublishes(t *testing.T) {
	r := newRig(t, returning(alt("B", 430), alt("A", 470), alt("C", 450), alt("D", 440)), altitudeJob())

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Outcome != OutcomePublished {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomePublished)
	}
	if res.Leader.Ident != "A" {
		t.Errorf("Leader = %q, want A", res.Leader.Ident)
	}
	if res.Previous != nil {
		t.Errorf("Previous = %v, want nil on first run", res.Previous)
	}
	if res.RunID == "" {
		t.Error("RunID should be set")
	}

	if got := idents(r.leaders.rows[model.CategoryAltitude]); strings.Join(got, ",") != "A,C,D" {
		t.Errorf("persisted leaders = %v, want [A C D]", got)
	}
	if len(r.poster.texts) != 1 || !strings.HasPrefix(r.poster.texts[0], "Current highest flight: A\n") {
		t.Errorf("posts = %q", r.poster.texts)
	}
}

func TestRun_Idempotent(t *testing.T) {
	r := newRig(t, returning(alt("A", 470), alt("B", 460), alt("C", 450)), altitudeJob())

	if _, err := r.runner.Run(context.Background(), model.CategoryAltitude); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if res.Outcome != OutcomeUnchanged {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomeUnchanged)
	}
	if r.leaders.writes != 1 {
		t.Errorf("leader writes = %d, want 1", r.leaders.writes)
	}
	if len(r.poster.texts) != 1 {
		t.Errorf("posts = %d, want 1", len(r.poster.texts))
	}
	if r.auth.calls != 1 {
		t.Errorf("authorize calls = %d, want 1", r.auth.calls)
	}
}

func TestRun_IdentityNotFullEquality(t *testing.T) {
	persisted := model.Flight{Ident: "UAL123", Altitude: model.Ptr(370)}
	fresh := model.Flight{Ident: "UAL123", Altitude: model.Ptr(370), Origin: model.Ptr("JFK")}
	others := []model.Flight{alt("X1", 300), alt("X2", 310)}

	tests := []struct {
		policy DiffPolicy
		want   Outcome
	}{
		{DiffIdent, OutcomeUnchanged},
		{"", OutcomeUnchanged},
		{DiffFull, OutcomePublished},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			job := altitudeJob()
			job.Diff = tt.policy
			r := newRig(t, returning(append([]model.Flight{fresh}, others...)...), job)
			r.leaders.rows[model.CategoryAltitude] = []model.Flight{persisted}

			res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Outcome != tt.want {
				t.Errorf("Outcome = %q, want %q", res.Outcome, tt.want)
			}
			if tt.want == OutcomeUnchanged && (r.leaders.writes != 0 || len(r.poster.texts) != 0) {
				t.Errorf("unchanged run wrote %d times and posted %d times", r.leaders.writes, len(r.poster.texts))
			}
		})
	}
}

func TestRun_NewLeaderReplacesOld(t *testing.T) {
	r := newRig(t, returning(alt("NEW", 480), alt("B", 460), alt("C", 450)), altitudeJob())
	r.leaders.rows[model.CategoryAltitude] = []model.Flight{alt("OLD", 470)}

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Outcome != OutcomePublished {
		t.Errorf("Outcome = %q, want %q", res.Outcome, OutcomePublished)
	}
	if res.Previous == nil || res.Previous.Ident != "OLD" {
		t.Errorf("Previous = %v, want OLD", res.Previous)
	}
	if got := r.leaders.rows[model.CategoryAltitude][0].Ident; got != "NEW" {
		t.Errorf("rank 1 = %q, want NEW", got)
	}
}

func TestRun_MissingFieldsStillRankedAndFormatted(t *testing.T) {
	r := newRig(t, returning(
		model.Flight{Ident: "ABC123", Groundspeed: model.Ptr(500)},
		alt("B", 400),
		alt("C", 390),
	), altitudeJob())

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := idents(r.leaders.rows[model.CategoryAltitude]); strings.Join(got, ",") != "B,C,ABC123" {
		t.Errorf("persisted leaders = %v, want [B C ABC123]", got)
	}
	if res.Leader.Ident != "B" {
		t.Errorf("Leader = %q, want B", res.Leader.Ident)
	}
}

func TestRun_MissingFieldsInAnnouncement(t *testing.T) {
	r := newRig(t, returning(
		model.Flight{Ident: "ABC123", Groundspeed: model.Ptr(500)},
		model.Flight{Ident: "B"},
		model.Flight{Ident: "C"},
	), JobConfig{
		Category:       model.CategoryGroundspeed,
		StartThreshold: 650,
		Step:           10,
		Floor:          400,
		MaxAttempts:    50,
		RankingCount:   3,
	})

	if _, err := r.runner.Run(context.Background(), model.CategoryGroundspeed); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	text := r.poster.texts[0]
	for _, want := range []string{"Current fastest flight: ABC123", "Altitude: N/A", "Groundspeed: 500kts (926.00km/h)", "Origin: Unknown"} {
		if !strings.Contains(text, want) {
			t.Errorf("announcement missing %q:\n%s", want, text)
		}
	}
}

// =========================================================================
// WIDENING SEARCH
// =========================================================================

func TestRun_WideningFindsEnough(t *testing.T) {
	source := &fakeSource{fn: func(threshold int) ([]model.Flight, error) {
		if threshold > 430 {
			return []model.Flight{alt("A", 470)}, nil
		}
		return []model.Flight{alt("A", 470), alt("B", 435), alt("C", 431)}, nil
	}}
	r := newRig(t, source, altitudeJob())

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Threshold != 430 || res.Attempts != 3 {
		t.Errorf("Threshold, Attempts = %d, %d; want 430, 3", res.Threshold, res.Attempts)
	}
	want := []int{450, 440, 430}
	for i, th := range want {
		if source.thresholds[i] != th {
			t.Errorf("thresholds = %v, want %v", source.thresholds, want)
			break
		}
	}
}

func TestRun_WideningStopsAtFloor(t *testing.T) {
	r := newRig(t, returning(alt("ONLY", 470)), altitudeJob())

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrInsufficientData) {
		t.Fatalf("Run() error = %v, want ErrInsufficientData", err)
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}

	// 450, 440, ..., 300
	if got := r.source.calls(); got != 16 {
		t.Errorf("search calls = %d, want 16", got)
	}
	if last := r.source.thresholds[len(r.source.thresholds)-1]; last != 300 {
		t.Errorf("last threshold = %d, want the floor 300", last)
	}
	if r.leaders.writes != 0 || len(r.poster.texts) != 0 {
		t.Error("insufficient data must not write or post")
	}
}

func TestRun_WideningStopsAtMaxAttempts(t *testing.T) {
	job := altitudeJob()
	job.Floor = -1 << 30
	job.MaxAttempts = 5
	r := newRig(t, returning(), job)

	_, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrInsufficientData) {
		t.Fatalf("Run() error = %v, want ErrInsufficientData", err)
	}
	if got := r.source.calls(); got != 5 {
		t.Errorf("search calls = %d, want 5", got)
	}
}

func TestRun_DataSourceErrorIsNotRetried(t *testing.T) {
	source := &fakeSource{fn: func(int) ([]model.Flight, error) {
		return nil, apperror.DataSource("flight search", errors.New("status 500"))
	}}
	r := newRig(t, source, altitudeJob())

	_, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrDataSource) {
		t.Fatalf("Run() error = %v, want ErrDataSource", err)
	}
	if got := source.calls(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
}

func TestRun_CancelledContextStopsWidening(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{fn: func(int) ([]model.Flight, error) {
		cancel()
		return nil, nil
	}}
	r := newRig(t, source, altitudeJob())

	_, err := r.runner.Run(ctx, model.CategoryAltitude)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if got := source.calls(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
}

// =========================================================================
// FAILURE ORDERING
// =========================================================================

func TestRun_PublishFailureKeepsLeader(t *testing.T) {
	r := newRig(t, returning(alt("A", 470), alt("B", 460), alt("C", 450)), altitudeJob())
	r.poster.err = apperror.Publish("status 503", nil)

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrPublish) {
		t.Fatalf("Run() error = %v, want ErrPublish", err)
	}
	if res == nil || res.Outcome != OutcomePublishFailed {
		t.Fatalf("Result = %+v, want outcome %q", res, OutcomePublishFailed)
	}
	if r.leaders.writes != 1 {
		t.Errorf("leader writes = %d, want 1 (not rolled back)", r.leaders.writes)
	}

	// The failed announcement is not retried on the next cycle.
	r.poster.err = nil
	res, err = r.runner.Run(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if res.Outcome != OutcomeUnchanged {
		t.Errorf("second Outcome = %q, want %q", res.Outcome, OutcomeUnchanged)
	}
	if len(r.poster.texts) != 1 {
		t.Errorf("posts = %d, want 1", len(r.poster.texts))
	}
}

func TestRun_AuthorizationFailureAfterPersist(t *testing.T) {
	r := newRig(t, returning(alt("A", 470), alt("B", 460), alt("C", 450)), altitudeJob())
	r.auth.err = apperror.Authorization("callback is missing code or state", nil)

	res, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrAuthorization) {
		t.Fatalf("Run() error = %v, want ErrAuthorization", err)
	}
	if res == nil || res.Outcome != OutcomePublishFailed {
		t.Fatalf("Result = %+v, want outcome %q", res, OutcomePublishFailed)
	}
	if len(r.poster.texts) != 0 {
		t.Error("nothing should be posted without a credential")
	}
}

func TestRun_PersistenceFailureSkipsPublish(t *testing.T) {
	r := newRig(t, returning(alt("A", 470), alt("B", 460), alt("C", 450)), altitudeJob())
	r.leaders.replaceErr = apperror.Persistence("replacing leaders", errors.New("disk full"))

	_, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Fatalf("Run() error = %v, want ErrPersistence", err)
	}
	if r.auth.calls != 0 || len(r.poster.texts) != 0 {
		t.Error("a failed write must abort before publishing")
	}
}

func TestRun_ReadFailureSkipsEverything(t *testing.T) {
	r := newRig(t, returning(alt("A", 470), alt("B", 460), alt("C", 450)), altitudeJob())
	r.leaders.listErr = apperror.Persistence("listing leaders", errors.New("locked"))

	_, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !errors.Is(err, apperror.ErrPersistence) {
		t.Fatalf("Run() error = %v, want ErrPersistence", err)
	}
	if r.leaders.writes != 0 || len(r.poster.texts) != 0 {
		t.Error("a failed read must not write or post")
	}
}

// =========================================================================
// CONCURRENCY
// =========================================================================

func TestRun_SameCategoryDoesNotOverlap(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	source := &fakeSource{fn: func(int) ([]model.Flight, error) {
		close(entered)
		<-release
		return []model.Flight{alt("A", 470), alt("B", 460), alt("C", 450)}, nil
	}}
	r := newRig(t, source, altitudeJob())

	done := make(chan error, 1)
	go func() {
		_, err := r.runner.Run(context.Background(), model.CategoryAltitude)
		done <- err
	}()
	<-entered

	_, err := r.runner.Run(context.Background(), model.CategoryAltitude)
	if !IsSkipped(err) {
		t.Errorf("overlapping Run() error = %v, want a conflict", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if got := source.calls(); got != 1 {
		t.Errorf("search calls = %d, want 1", got)
	}
}

// =========================================================================
// CONFIGURATION
// =========================================================================

func TestRun_UnknownCategory(t *testing.T) {
	r := newRig(t, returning(), altitudeJob())

	_, err := r.runner.Run(context.Background(), model.CategoryGroundspeed)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Run() error = %v, want ErrValidation", err)
	}
}

func TestJobConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*JobConfig)
		field  string
	}{
		{"zero step", func(c *JobConfig) { c.Step = 0 }, "step"},
		{"floor above start", func(c *JobConfig) { c.Floor = 500 }, "floor"},
		{"no attempts", func(c *JobConfig) { c.MaxAttempts = 0 }, "max_attempts"},
		{"no ranking", func(c *JobConfig) { c.RankingCount = 0 }, "ranking_count"},
		{"bad diff", func(c *JobConfig) { c.Diff = "fuzzy" }, "diff"},
		{"bad category", func(c *JobConfig) { c.Category = "DEPTH" }, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := altitudeJob()
			tt.mutate(&c)

			err := c.Validate()
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("Validate() error = %v, want *AppError", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}

	if err := altitudeJob().Validate(); err != nil {
		t.Errorf("default job should be valid: %v", err)
	}
}

func TestLeaders(t *testing.T) {
	r := newRig(t, returning(), altitudeJob())
	r.leaders.rows[model.CategoryAltitude] = []model.Flight{alt("A", 470)}

	leaders, err := r.runner.Leaders(context.Background(), model.CategoryAltitude)
	if err != nil {
		t.Fatalf("Leaders() error = %v", err)
	}
	if len(leaders) != 1 || leaders[0].Flight.Ident != "A" || leaders[0].Rank != 1 {
		t.Errorf("Leaders() = %+v", leaders)
	}

	if _, err := r.runner.Leaders(context.Background(), "DEPTH"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Leaders(DEPTH) error = %v, want ErrValidation", err)
	}
}

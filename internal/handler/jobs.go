package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/auth"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/service"
)

// JobService is what the admin API needs from the job runner.
type JobService interface {
	Leaders(ctx context.Context, category model.Category) ([]model.Leader, error)
	Run(ctx context.Context, category model.Category) (*service.Result, error)
}

// JobHandler serves leader reads and manual job runs.
type JobHandler struct {
	jobs       JobService
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewJobHandler creates a JobHandler. A manual run is bounded by runTimeout
// and keeps going if the client disconnects.
func NewJobHandler(jobs JobService, runTimeout time.Duration, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, runTimeout: runTimeout, logger: logger}
}

// LeadersResponse is the body of GET /api/leaders/{category}.
type LeadersResponse struct {
	Category model.Category `json:"category"`
	Leaders  []model.Leader `json:"leaders"`
}

// HandleLeaders returns the persisted leader set.
//
// HTTP: GET /api/leaders/{category}
func (h *JobHandler) HandleLeaders(w http.ResponseWriter, r *http.Request) {
	category, err := categoryParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	leaders, err := h.jobs.Leaders(r.Context(), category)
	if err != nil {
		h.logger.Error("listing leaders failed",
			slog.String("category", string(category)),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}
	if leaders == nil {
		leaders = []model.Leader{}
	}

	writeJSON(w, http.StatusOK, LeadersResponse{Category: category, Leaders: leaders})
}

// RunResponse is the body of POST /api/jobs/{category}/run.
type RunResponse struct {
	*service.Result
	Error string `json:"error,omitempty"`
}

// HandleRun runs one cycle synchronously and reports its outcome.
//
// HTTP: POST /api/jobs/{category}/run  (operator token required)
//
// A cycle whose announcement failed still changed the leader, so it answers
// 200 with outcome "publish_failed" and the error. Failures before the
// leader was written are mapped by writeError.
func (h *JobHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	category, err := categoryParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	operator, _ := auth.OperatorFromContext(r.Context())
	h.logger.Info("manual run requested",
		slog.String("category", string(category)),
		slog.String("operator", operator),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
	defer cancel()

	res, err := h.jobs.Run(ctx, category)
	if err != nil && res == nil {
		if !errors.Is(err, apperror.ErrConflict) {
			h.logger.Error("manual run failed",
				slog.String("category", string(category)),
				slog.String("kind", apperror.KindOf(err)),
				slog.String("error", err.Error()),
			)
		}
		writeError(w, err)
		return
	}

	resp := RunResponse{Result: res}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func categoryParam(r *http.Request) (model.Category, error) {
	raw := chi.URLParam(r, "category")
	category, err := model.ParseCategory(raw)
	if err != nil {
		return "", apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", raw))
	}
	return category, nil
}

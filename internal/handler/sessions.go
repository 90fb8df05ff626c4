package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/highest-aircraft/internal/model"
)

// SessionLister lists stored authorization sessions.
type SessionLister interface {
	ListSessions(ctx context.Context) ([]model.Session, error)
}

type SessionHandler struct {
	sessions SessionLister
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionLister, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// HandleList reports which categories are authorized. Tokens are never
// included (model.Session does not serialize them).
//
// HTTP: GET /api/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("listing sessions failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}

	writeJSON(w, http.StatusOK, sessions)
}

// HandleHealth answers liveness probes.
//
// HTTP: GET /healthz
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

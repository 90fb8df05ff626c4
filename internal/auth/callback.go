package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/highest-aircraft/internal/apperror"
)

type callbackResult struct {
	code  string
	state string
	err   error
}

// awaitCallback serves the redirect on ln until the first request to path
// arrives, ctx ends, or timeout elapses. The listener is always released
// before returning.
//
// Only the first GET to path decides the outcome; anything else the browser
// asks for (favicon.ico and friends) gets a 404 and is otherwise ignored.
func awaitCallback(ctx context.Context, ln net.Listener, path string, timeout time.Duration, logger *slog.Logger) (callbackResult, error) {
	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		res := callbackResult{code: q.Get("code"), state: q.Get("state")}

		switch {
		case q.Get("error") != "":
			res.err = apperror.Authorization("provider denied authorization: "+q.Get("error"), nil)
			http.Error(w, "authorization denied", http.StatusBadRequest)
		case res.code == "" || res.state == "":
			res.err = apperror.Authorization("callback is missing code or state", nil)
			http.Error(w, "missing code or state", http.StatusBadRequest)
		default:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("DONE"))
		}

		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("callback listener shutdown", slog.String("error", err.Error()))
		}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil {
			return callbackResult{}, res.err
		}
		return res, nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return callbackResult{}, apperror.Authorization("callback listener stopped", err)
	case <-timer.C:
		return callbackResult{}, apperror.Authorization("timed out waiting for callback after "+timeout.String(), context.DeadlineExceeded)
	case <-ctx.Done():
		return callbackResult{}, apperror.Authorization("waiting for callback", ctx.Err())
	}
}

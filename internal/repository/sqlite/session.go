package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// GetSession returns the cached session for (provider, category).
// Returns apperror.ErrNotFound if none has been created yet.
func (db *DB) GetSession(ctx context.Context, provider model.Provider, category model.Category) (*model.Session, error) {
	s := model.Session{Provider: provider, Category: category}

	err := db.conn.QueryRowContext(ctx,
		`SELECT access_token, created_at FROM sessions WHERE provider = ? AND category = ?`,
		string(provider), string(category),
	).Scan(&s.AccessToken, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", fmt.Sprintf("%s/%s", provider, category))
		}
		return nil, apperror.Persistence(fmt.Sprintf("getting %s/%s session", provider, category), err)
	}

	return &s, nil
}

// CreateSession inserts a session. The primary key rejects a second row for
// the same (provider, category), reported as apperror.ErrConflict.
func (db *DB) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (provider, category, access_token, created_at) VALUES (?, ?, ?, ?)`,
		string(session.Provider),
		string(session.Category),
		session.AccessToken,
		session.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("session", fmt.Sprintf("%s/%s", session.Provider, session.Category))
		}
		return apperror.Persistence(fmt.Sprintf("inserting %s/%s session", session.Provider, session.Category), err)
	}

	return nil
}

// ListSessions returns every cached session, ordered by provider and category.
func (db *DB) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider, category, access_token, created_at FROM sessions ORDER BY provider, category`,
	)
	if err != nil {
		return nil, apperror.Persistence("listing sessions", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var (
			s                  model.Session
			provider, category string
		)
		if err := rows.Scan(&provider, &category, &s.AccessToken, &s.CreatedAt); err != nil {
			return nil, apperror.Persistence("scanning session row", err)
		}
		s.Provider = model.Provider(provider)
		s.Category = model.Category(category)
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("iterating session rows", err)
	}

	return sessions, nil
}

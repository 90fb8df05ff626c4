// Package repository declares the storage contracts the bot depends on.
// Implementations live in the sqlite and postgres sub-packages.
package repository

import (
	"context"

	"github.com/sakif/highest-aircraft/internal/model"
)

// LeaderRepository stores the last announced leader set per category.
type LeaderRepository interface {
	// ListLeaders returns the category's leader rows ordered by rank.
	// An empty slice (not an error) means nothing has been announced yet.
	ListLeaders(ctx context.Context, category model.Category) ([]model.Leader, error)

	// ReplaceLeaders deletes every row for category and inserts flights as
	// ranks 1..len(flights), atomically. Readers never observe a partial set.
	ReplaceLeaders(ctx context.Context, category model.Category, flights []model.Flight) error
}

// SessionRepository stores cached OAuth sessions.
type SessionRepository interface {
	// GetSession returns apperror.ErrNotFound when no session exists.
	GetSession(ctx context.Context, provider model.Provider, category model.Category) (*model.Session, error)

	// CreateSession inserts a new session; apperror.ErrConflict if one exists.
	CreateSession(ctx context.Context, session *model.Session) error

	ListSessions(ctx context.Context) ([]model.Session, error)
}

// Store is everything the bot persists. Both backends implement it.
type Store interface {
	LeaderRepository
	SessionRepository
	Close() error
}

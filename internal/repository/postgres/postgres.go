// Package postgres implements the repository interfaces on PostgreSQL via
// pgx. It is selected when DATABASE_URL is configured; otherwise the bot
// uses the embedded sqlite store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// uniqueViolation is the SQLSTATE for a primary key / unique conflict.
const uniqueViolation = "23505"

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, verifies the connection and creates the schema.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	cfg.MaxConns = 4
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.createSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the pool. It never fails; the error return satisfies repository.Store.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) createSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS leaders (
		category    TEXT NOT NULL,
		rank        INTEGER NOT NULL,
		ident       TEXT NOT NULL,
		altitude    INTEGER,
		groundspeed INTEGER,
		origin      TEXT,
		destination TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (category, rank)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		provider     TEXT NOT NULL,
		category     TEXT NOT NULL,
		access_token TEXT NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (provider, category)
	);
	`)
	if err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

func (db *DB) ListLeaders(ctx context.Context, category model.Category) ([]model.Leader, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT rank, ident, altitude, groundspeed, origin, destination, created_at
		FROM leaders WHERE category = $1 ORDER BY rank ASC
	`, string(category))
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("listing %s leaders", category), err)
	}
	defer rows.Close()

	leaders := make([]model.Leader, 0, 3)
	for rows.Next() {
		l := model.Leader{Category: category}
		if err := rows.Scan(&l.Rank, &l.Flight.Ident, &l.Flight.Altitude, &l.Flight.Groundspeed,
			&l.Flight.Origin, &l.Flight.Destination, &l.CreatedAt); err != nil {
			return nil, apperror.Persistence("scanning leader row", err)
		}
		leaders = append(leaders, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("iterating leader rows", err)
	}

	return leaders, nil
}

// ReplaceLeaders deletes and re-inserts the category's leaders in one transaction.
func (db *DB) ReplaceLeaders(ctx context.Context, category model.Category, flights []model.Flight) error {
	err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM leaders WHERE category = $1`, string(category)); err != nil {
			return fmt.Errorf("deleting %s leaders: %w", category, err)
		}

		batch := &pgx.Batch{}
		now := time.Now().UTC()
		for i, f := range flights {
			batch.Queue(`
				INSERT INTO leaders (category, rank, ident, altitude, groundspeed, origin, destination, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			`, string(category), i+1, f.Ident, f.Altitude, f.Groundspeed, f.Origin, f.Destination, now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting %s leaders: %w", category, err)
		}
		return nil
	})
	if err != nil {
		return apperror.Persistence("replacing leaders", err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, provider model.Provider, category model.Category) (*model.Session, error) {
	s := model.Session{Provider: provider, Category: category}

	err := db.pool.QueryRow(ctx, `
		SELECT access_token, created_at FROM sessions WHERE provider = $1 AND category = $2
	`, string(provider), string(category)).Scan(&s.AccessToken, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperror.NotFound("session", fmt.Sprintf("%s/%s", provider, category))
	}
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("getting %s/%s session", provider, category), err)
	}

	return &s, nil
}

func (db *DB) CreateSession(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, `
		INSERT INTO sessions (provider, category, access_token, created_at) VALUES ($1, $2, $3, $4)
	`, string(session.Provider), string(session.Category), session.AccessToken, session.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.Conflict("session", fmt.Sprintf("%s/%s", session.Provider, session.Category))
		}
		return apperror.Persistence(fmt.Sprintf("inserting %s/%s session", session.Provider, session.Category), err)
	}

	return nil
}

func (db *DB) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := db.pool.Query(ctx, `
		SELECT provider, category, access_token, created_at FROM sessions ORDER BY provider, category
	`)
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

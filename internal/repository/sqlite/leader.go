package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/highest-aircraft/internal/apperror"
	"github.com/sakif/highest-aircraft/internal/model"
	"github.com/sakif/highest-aircraft/internal/repository"
)

var _ repository.LeaderRepository = (*DB)(nil)

// ListLeaders returns the persisted leader set for category, rank 1 first.
func (db *DB) ListLeaders(ctx context.Context, category model.Category) ([]model.Leader, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT rank, ident, altitude, groundspeed, origin, destination, created_at
		 FROM leaders
		 WHERE category = ?
		 ORDER BY rank ASC`,
		string(category),
	)
	if err != nil {
		return nil, apperror.Persistence(fmt.Sprintf("listing %s leaders", category), err)
	}
	defer rows.Close()

	leaders := make([]model.Leader, 0, 3)
	for rows.Next() {
		var (
			l           model.Leader
			altitude    sql.NullInt64
			groundspeed sql.NullInt64
			origin      sql.NullString
			destination sql.NullString
		)
		if err := rows.Scan(&l.Rank, &l.Flight.Ident, &altitude, &groundspeed,
			&origin, &destination, &l.CreatedAt); err != nil {
			return nil, apperror.Persistence("scanning leader row", err)
		}
		l.Category = category
		l.Flight.Altitude = intPtr(altitude)
		l.Flight.Groundspeed = intPtr(groundspeed)
		l.Flight.Origin = strPtr(origin)
		l.Flight.Destination = strPtr(destination)
		leaders = append(leaders, l)
	}

	if err := rows.Err(); err != nil {
		return nil, apperror.Persistence("iterating leader rows", err)
	}

	return leaders, nil
}

// ReplaceLeaders swaps the category's leader set inside one transaction.
//
// DELETE-THEN-INSERT, NOT UPSERT:
// The new set may be shorter than the old one and the flights at each rank
// are unrelated to the previous ones, so the old rows are removed wholesale.
// Doing both statements in a single transaction means a crash or an insert
// failure rolls back to the previous leaders instead of leaving the category
// empty (which the next cycle would read as "never announced").
func (db *DB) ReplaceLeaders(ctx context.Context, category model.Category, flights []model.Flight) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Persistence("beginning leader transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM leaders WHERE category = ?`, string(category)); err != nil {
		return apperror.Persistence(fmt.Sprintf("deleting %s leaders", category), err)
	}

	now := time.Now().UTC()
	for i, f := range flights {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO leaders (category, rank, ident, altitude, groundspeed, origin, destination, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(category),
			i+1,
			f.Ident,
			nullInt(f.Altitude),
			nullInt(f.Groundspeed),
			nullStr(f.Origin),
			nullStr(f.Destination),
			now,
		)
		if err != nil {
			return apperror.Persistence(fmt.Sprintf("inserting %s leader %s", category, f.Ident), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return apperror.Persistence("committing leader transaction", err)
	}
	return nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

package quota

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the postgres ledger uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLedger stores one row per (identity_key, day) in quota_usage.
type PostgresLedger struct {
	db  DB
	now Clock
}

var _ Ledger = (*PostgresLedger)(nil)

func NewPostgresLedger(db DB, now Clock) *PostgresLedger {
	if now == nil {
		now = time.Now
	}
	return &PostgresLedger{db: db, now: now}
}

// Consume creates today's row at 1 or increments it, but only while the
// stored count is below the limit. A denied upsert returns no row.
func (p *PostgresLedger) Consume(ctx context.Context, key string, limit int) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyIdentity
	}
	if limit == 0 {
		return denied(limit), nil
	}
	bound := limit
	if limit < 0 {
		bound = math.MaxInt32
	}

	var used int
	err := p.db.QueryRow(ctx, `
		INSERT INTO quota_usage (identity_key, day, used_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (identity_key, day) DO UPDATE
			SET used_count = quota_usage.used_count + 1, updated_at = now()
			WHERE quota_usage.used_count < $3
		RETURNING used_count
	`, key, Day(p.now()), bound).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return NewDecision(false, limit, limit), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("quota/postgres: consume: %w", err)
	}
	return NewDecision(true, used, limit), nil
}

func (p *PostgresLedger) Release(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyIdentity
	}
	_, err := p.db.Exec(ctx, `
		UPDATE quota_usage SET used_count = used_count - 1, updated_at = now()
		WHERE identity_key = $1 AND day = $2 AND used_count > 0
	`, key, Day(p.now()))
	if err != nil {
		return fmt.Errorf("quota/postgres: release: %w", err)
	}
	return nil
}

func (p *PostgresLedger) Used(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, ErrEmptyIdentity
	}
	var used int
	err := p.db.QueryRow(ctx,
		`SELECT used_count FROM quota_usage WHERE identity_key = $1 AND day = $2`,
		key, Day(p.now()),
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota/postgres: used: %w", err)
	}
	return used, nil
}

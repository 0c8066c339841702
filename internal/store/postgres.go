package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/guardflux/internal/ratelimit"
)

const createRateLimitsTable = `
	CREATE TABLE IF NOT EXISTS rate_limits (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		route         TEXT NOT NULL DEFAULT '',
		request_count BIGINT NOT NULL DEFAULT 0,
		last_request  TIMESTAMPTZ NOT NULL,
		version       BIGINT NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS rate_limits_user_id_idx ON rate_limits (user_id);
`

// PostgresRecordStore is a PostgreSQL implementation of ratelimit.RecordStore.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordStore creates a new PostgreSQL-backed record store.
func NewPostgresRecordStore(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

// Migrate creates the rate_limits table if it does not exist.
func (p *PostgresRecordStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createRateLimitsTable); err != nil {
		return fmt.Errorf("create rate_limits table: %w", err)
	}

	return nil
}

func (p *PostgresRecordStore) Load(ctx context.Context, key string) (*ratelimit.Record, error) {
	query := `
		SELECT id, user_id, route, request_count, last_request, version
		FROM rate_limits
		WHERE id = $1
	`

	var rec ratelimit.Record

	err := p.pool.QueryRow(ctx, query, key).Scan(
		&rec.Key,
		&rec.UserID,
		&rec.Route,
		&rec.RequestCount,
		&rec.WindowStart,
		&rec.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ratelimit.ErrNotFound
		}

		return nil, err
	}

	rec.WindowStart = rec.WindowStart.UTC()

	return &rec, nil
}

// Save inserts or updates rec. WindowStart is normalized to the column's
// microsecond precision.
func (p *PostgresRecordStore) Save(ctx context.Context, rec *ratelimit.Record) error {
	rec.WindowStart = rec.WindowStart.UTC().Truncate(time.Microsecond)

	if rec.Version == 0 {
		return p.insert(ctx, rec)
	}

	query := `
		UPDATE rate_limits
		SET request_count = $2, last_request = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`

	tag, err := p.pool.Exec(ctx, query, rec.Key, rec.RequestCount, rec.WindowStart, rec.Version)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ratelimit.ErrConflict
	}

	rec.Version++

	return nil
}

func (p *PostgresRecordStore) insert(ctx context.Context, rec *ratelimit.Record) error {
	query := `
		INSERT INTO rate_limits (id, user_id, route, request_count, last_request, version)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := p.pool.Exec(ctx, query, rec.Key, rec.UserID, rec.Route, rec.RequestCount, rec.WindowStart)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ratelimit.ErrConflict
	}

	rec.Version = 1

	return nil
}

func (p *PostgresRecordStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rate_limits WHERE last_request < $1`, before)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// Ping checks PostgreSQL connectivity.
func (p *PostgresRecordStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Compile-time checks.
var (
	_ ratelimit.RecordStore = (*PostgresRecordStore)(nil)
	_ ratelimit.Purger      = (*PostgresRecordStore)(nil)
)

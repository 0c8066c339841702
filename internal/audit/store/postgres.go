package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/guardflux/internal/audit"
)

const createLogsTable = `
	CREATE TABLE IF NOT EXISTS logs (
		id        TEXT PRIMARY KEY,
		function  TEXT NOT NULL,
		message   TEXT NOT NULL,
		metadata  JSONB,
		timestamp TIMESTAMPTZ NOT NULL
	)
`

// Postgres is a PostgreSQL implementation of audit.Store writing to the logs table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed audit store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the logs table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createLogsTable); err != nil {
		return fmt.Errorf("create logs table: %w", err)
	}

	return nil
}

func (p *Postgres) SaveEvent(ctx context.Context, event *audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO logs (id, function, message, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = p.pool.Exec(ctx, query,
		event.ID,
		event.Function,
		event.Message,
		metadata,
		event.Timestamp,
	)

	return err
}

// Compile-time checks.
var (
	_ audit.Store = (*Postgres)(nil)
	_ audit.Store = (*Noop)(nil)
)

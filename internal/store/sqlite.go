package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/guardflux/internal/ratelimit"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLiteRecordStore is a persistent ratelimit.RecordStore backed by SQLite.
// last_request is stored as unix nanoseconds.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewSQLiteRecordStore opens (or creates) a SQLite database at dsn and
// initialises the schema. Use ":memory:" for an in-memory database.
func NewSQLiteRecordStore(dsn string) (*SQLiteRecordStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite serializes writers; one connection also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limits (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			route         TEXT NOT NULL DEFAULT '',
			request_count INTEGER NOT NULL DEFAULT 0,
			last_request  INTEGER NOT NULL,
			version       INTEGER NOT NULL DEFAULT 1
		)
	`); err != nil {
		db.Close()

		return nil, fmt.Errorf("create rate_limits table: %w", err)
	}

	return &SQLiteRecordStore{db: db}, nil
}

func (s *SQLiteRecordStore) Load(ctx context.Context, key string) (*ratelimit.Record, error) {
	var (
		rec         ratelimit.Record
		lastRequest int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, route, request_count, last_request, version FROM rate_limits WHERE id = ?`, key,
	).Scan(&rec.Key, &rec.UserID, &rec.Route, &rec.RequestCount, &lastRequest, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ratelimit.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	rec.WindowStart = time.Unix(0, lastRequest).UTC()

	return &rec, nil
}

func (s *SQLiteRecordStore) Save(ctx context.Context, rec *ratelimit.Record) error {
	rec.WindowStart = rec.WindowStart.Round(0).UTC()

	var (
		res sql.Result
		err error
	)

	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO rate_limits (id, user_id, route, request_count, last_request, version)
			 VALUES (?, ?, ?, ?, ?, 1) ON CONFLICT (id) DO NOTHING`,
			rec.Key, rec.UserID, rec.Route, rec.RequestCount, rec.WindowStart.UnixNano(),
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE rate_limits SET request_count = ?, last_request = ?, version = version + 1
			 WHERE id = ? AND version = ?`,
			rec.RequestCount, rec.WindowStart.UnixNano(), rec.Key, rec.Version,
		)
	}

	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return ratelimit.ErrConflict
	}

	rec.Version++

	return nil
}

func (s *SQLiteRecordStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE last_request < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *SQLiteRecordStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying SQLite database connection.
func (s *SQLiteRecordStore) Close() error {
	return s.db.Close()
}

// Compile-time checks.
var (
	_ ratelimit.RecordStore = (*SQLiteRecordStore)(nil)
	_ ratelimit.Purger      = (*SQLiteRecordStore)(nil)
)

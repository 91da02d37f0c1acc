package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return &DB{Pool: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS access_logs (
    id               BIGSERIAL PRIMARY KEY,
    request_id       TEXT        NOT NULL,
    client_key       TEXT        NOT NULL,
    mode             TEXT        NOT NULL,
    tone_mode        TEXT        NOT NULL,
    outcome          TEXT        NOT NULL,
    status_code      INTEGER     NOT NULL,
    response_time_ms INTEGER     NOT NULL,
    request_size     BIGINT      NOT NULL,
    response_size    BIGINT      NOT NULL,
    timestamp        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS access_logs_client_key_idx ON access_logs (client_key, timestamp DESC);
`

// EnsureSchema creates the access log table when it does not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("db: ensure schema: %w", err)
	}
	return nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

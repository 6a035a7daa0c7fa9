package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
  id             UUID PRIMARY KEY,
  email          TEXT NOT NULL UNIQUE,
  password_hash  TEXT NOT NULL,
  api_key        TEXT NOT NULL,
  secret_key     TEXT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_commands (
  order_id      UUID PRIMARY KEY,
  user_id       UUID NOT NULL REFERENCES users(id),
  symbol        TEXT NOT NULL,
  side          TEXT NOT NULL,
  type          TEXT NOT NULL,
  quantity      DOUBLE PRECISION NOT NULL,
  price         DOUBLE PRECISION,
  status        TEXT NOT NULL DEFAULT 'PENDING',
  attempted_at  TIMESTAMPTZ,
  venue_order_id BIGINT,
  executed_quantity DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE order_commands ADD COLUMN IF NOT EXISTS executed_quantity DOUBLE PRECISION NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS order_commands_user_created_idx ON order_commands (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS order_commands_open_idx ON order_commands (updated_at) WHERE status IN ('PENDING', 'PARTIALLY_FILLED') AND venue_order_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS order_commands_unclaimed_idx ON order_commands (created_at) WHERE status = 'PENDING' AND attempted_at IS NULL;

CREATE TABLE IF NOT EXISTS order_events (
  id          BIGSERIAL PRIMARY KEY,
  order_id    TEXT NOT NULL,
  user_id     TEXT NOT NULL,
  status      TEXT NOT NULL,
  symbol      TEXT NOT NULL,
  side        TEXT NOT NULL,
  quantity    DOUBLE PRECISION NOT NULL,
  price       DOUBLE PRECISION NOT NULL DEFAULT 0,
  ts          TIMESTAMPTZ NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS order_events_order_idx ON order_events (order_id);
`

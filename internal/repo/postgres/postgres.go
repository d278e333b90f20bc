package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

var _ repo.Catalog = (*Store)(nil)
var _ repo.HistoryStore = (*Store)(nil)
var _ repo.AlertStore = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
  id           BIGSERIAL PRIMARY KEY,
  name         TEXT NOT NULL,
  host         TEXT NOT NULL,
  port         INTEGER NOT NULL,
  description  TEXT NOT NULL DEFAULT '',
  status       TEXT NOT NULL DEFAULT 'warning',
  last_checked TIMESTAMPTZ NULL,
  created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS node_groups (
  id          BIGSERIAL PRIMARY KEY,
  name        TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  node_ids    BIGINT[] NOT NULL DEFAULT '{}',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_definitions (
  id          BIGSERIAL PRIMARY KEY,
  name        TEXT NOT NULL,
  method      TEXT NOT NULL,
  uri         TEXT NOT NULL,
  params      JSONB NOT NULL DEFAULT '[]',
  description TEXT NOT NULL DEFAULT '',
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS synthetic_tests (
  id                 BIGSERIAL PRIMARY KEY,
  name               TEXT NOT NULL,
  api_id             BIGINT NOT NULL,
  target_kind        TEXT NOT NULL,
  target_id          BIGINT NOT NULL,
  interval_seconds   INTEGER NOT NULL CHECK (interval_seconds >= 10),
  alert_threshold_ms BIGINT NOT NULL CHECK (alert_threshold_ms >= 0),
  tags               TEXT[] NOT NULL DEFAULT '{}',
  last_params        JSONB NOT NULL DEFAULT '{}',
  created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS execution_history (
  id               TEXT PRIMARY KEY,
  cycle_id         TEXT NOT NULL,
  test_id          BIGINT NOT NULL,
  node_id          BIGINT NOT NULL,
  status_code      INTEGER NOT NULL,
  success          BOOLEAN NOT NULL,
  response_time_ms BIGINT NOT NULL,
  input            TEXT NOT NULL DEFAULT '{}',
  output           TEXT NOT NULL DEFAULT '',
  executed_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_test_time ON execution_history (test_id, executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_history_executed_at ON execution_history (executed_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  alert_key    TEXT PRIMARY KEY,
  last_state   BOOLEAN NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

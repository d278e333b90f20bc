package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

func (s *Store) GetAlert(ctx context.Context, key string) (*repo.AlertRecord, error) {
	const q = `SELECT last_state, last_sent_at FROM alerts WHERE alert_key=$1`
	var r repo.AlertRecord
	r.Key = key
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, key).Scan(&r.LastState, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, key string, lastState bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alerts (alert_key, last_state, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (alert_key)
		DO UPDATE SET last_state=EXCLUDED.last_state, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	if _, err := s.pool.Exec(ctx, q, key, lastState, ts); err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	return nil
}

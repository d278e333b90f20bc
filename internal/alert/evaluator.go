// Package alert derives alerts from recorded execution history.
package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

const (
	DefaultLimit    = 100
	defaultPageSize = 500
	DefaultWindow   = "24h"
)

var windows = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// ParseWindow maps a bucket name to its duration. Unknown names fall back
// to 24h.
func ParseWindow(s string) (string, time.Duration) {
	if d, ok := windows[s]; ok {
		return s, d
	}
	return DefaultWindow, windows[DefaultWindow]
}

// Qualifies reports whether a history row is alert-worthy. Failed calls
// always alert; successful calls alert when strictly slower than the
// test's threshold.
func Qualifies(row domain.HistoryRow) (domain.AlertReason, bool) {
	if !row.Success {
		return domain.AlertFailed, true
	}
	if row.ResponseTimeMs > row.AlertThresholdMs {
		return domain.AlertSlow, true
	}
	return "", false
}

type Evaluator struct {
	History  repo.HistoryStore
	Logger   *zap.Logger
	Limit    int
	PageSize int
	Now      func() time.Time
}

func NewEvaluator(history repo.HistoryStore, logger *zap.Logger, limit int) *Evaluator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Evaluator{
		History:  history,
		Logger:   logger,
		Limit:    limit,
		PageSize: defaultPageSize,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns alerts in [now - window, now], newest first.
func (e *Evaluator) Evaluate(ctx context.Context, window string) ([]domain.Alert, error) {
	_, d := ParseWindow(window)
	to := e.Now()
	return e.EvaluateRange(ctx, to.Add(-d), to)
}

// EvaluateRange scans history in [from, to] page by page until Limit alerts
// are collected or the range is exhausted. History read errors are returned.
func (e *Evaluator) EvaluateRange(ctx context.Context, from, to time.Time) ([]domain.Alert, error) {
	pageSize := e.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	limit := e.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	out := make([]domain.Alert, 0)
	// rows appended mid-scan shift the offsets, so a row can show up on two pages
	seen := make(map[string]bool)
	badParams := 0
	for offset := 0; len(out) < limit; offset += pageSize {
		rows, total, err := e.History.Search(ctx, domain.HistoryFilter{
			From:   from,
			To:     to,
			Limit:  pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: search history: %w", domain.ErrPersistence, err)
		}
		for _, row := range rows {
			if seen[row.ID] {
				continue
			}
			seen[row.ID] = true
			reason, ok := Qualifies(row)
			if !ok {
				continue
			}
			params, err := domain.DecodeParams(row.Input)
			if err != nil {
				badParams++
			}
			out = append(out, toAlert(row, reason, params))
			if len(out) == limit {
				break
			}
		}
		if len(rows) < pageSize || offset+len(rows) >= total {
			break
		}
	}

	if badParams > 0 && e.Logger != nil {
		e.Logger.Warn("alert_params_decode",
			zap.Int("rows", badParams),
			zap.Time("from", from),
			zap.Time("to", to),
		)
	}
	return out, nil
}

func toAlert(row domain.HistoryRow, reason domain.AlertReason, params map[string]any) domain.Alert {
	return domain.Alert{
		OutcomeID:        row.ID,
		TestID:           row.TestID,
		TestName:         row.TestName,
		NodeID:           row.NodeID,
		NodeName:         row.NodeName,
		APIName:          row.APIName,
		APIMethod:        row.APIMethod,
		APIURI:           row.APIURI,
		StatusCode:       row.StatusCode,
		Success:          row.Success,
		ResponseTimeMs:   row.ResponseTimeMs,
		AlertThresholdMs: row.AlertThresholdMs,
		Reason:           reason,
		Params:           params,
		ExecutedAt:       row.ExecutedAt,
	}
}

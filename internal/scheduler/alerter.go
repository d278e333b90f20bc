package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/alert"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
	// Lookback bounds the history scanned on each pass.
	Lookback time.Duration
}

// Alerter notifies when a (test, node) pair starts or stops alerting. State
// is taken from the newest history row per pair.
type Alerter struct {
	logger   *zap.Logger
	history  repo.HistoryStore
	alertDB  repo.AlertStore
	notifier interface {
		Send(context.Context, string, string) error
	}
	cfg AlerterConfig
	now func() time.Time
}

func NewAlerter(
	logger *zap.Logger,
	history repo.HistoryStore,
	alertDB repo.AlertStore,
	notifier interface {
		Send(context.Context, string, string) error
	},
	cfg AlerterConfig,
) *Alerter {
	if cfg.Lookback <= 0 {
		cfg.Lookback = time.Hour
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Alerter{
		logger:   logger,
		history:  history,
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	a.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.pass(ctx)
		}
	}
}

func (a *Alerter) pass(ctx context.Context) {
	if err := a.scanOnce(ctx); err != nil {
		a.logger.Warn("alerter_scan_error", zap.Error(err))
	}
}

func alertKey(testID, nodeID int64) string {
	return fmt.Sprintf("%d:%d", testID, nodeID)
}

// latest keeps the newest row per (test, node) pair; rows arrive newest first.
func latest(rows []domain.HistoryRow) []domain.HistoryRow {
	seen := make(map[string]bool)
	out := make([]domain.HistoryRow, 0)
	for _, r := range rows {
		k := alertKey(r.TestID, r.NodeID)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	now := a.now()
	rows, _, err := a.history.Search(ctx, domain.HistoryFilter{From: now.Add(-a.cfg.Lookback), To: now})
	if err != nil {
		return err
	}

	for _, r := range latest(rows) {
		key := alertKey(r.TestID, r.NodeID)
		reason, alerting := alert.Qualifies(r)

		rec, err := a.alertDB.GetAlert(ctx, key)
		if err != nil {
			a.logger.Warn("alerter_state_error", zap.String("key", key), zap.Error(err))
			continue
		}
		stateChanged := rec == nil || rec.LastState != alerting

		// cooldown only applies to firing alerts
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		fire := stateChanged && alerting && cooled
		recovered := stateChanged && !alerting && rec != nil && a.cfg.AlertOnRecovery

		if fire || recovered {
			title := "🔴 Synthetic test ALERT"
			if recovered {
				title = "🟢 Synthetic test RECOVERED"
			}
			if err := a.notifier.Send(ctx, title, message(r, reason)); err != nil {
				a.logger.Warn("alerter_send_error", zap.String("key", key), zap.Error(err))
			}
			a.setState(ctx, key, alerting, now)
			continue
		}

		if !stateChanged {
			continue
		}
		// a firing held back by the cooldown keeps the old state, so it is
		// seen as a flip again on the first scan after the cooldown ends
		if alerting {
			a.logger.Debug("alerter_suppressed_cooldown", zap.String("key", key))
			continue
		}
		var sentAt time.Time
		if rec != nil && rec.LastSentAt != nil {
			sentAt = *rec.LastSentAt
		}
		a.setState(ctx, key, alerting, sentAt)
	}
	return nil
}

func (a *Alerter) setState(ctx context.Context, key string, alerting bool, sentAt time.Time) {
	if err := a.alertDB.SetAlert(ctx, key, alerting, sentAt); err != nil {
		a.logger.Warn("alerter_state_error", zap.String("key", key), zap.Error(err))
	}
}

func message(r domain.HistoryRow, reason domain.AlertReason) string {
	status := "n/a"
	if r.StatusCode != 0 {
		status = fmt.Sprintf("%d", r.StatusCode)
	}
	why := string(reason)
	if why == "" {
		why = "ok"
	}
	return fmt.Sprintf(
		"Test: %s\nNode: %s (%s:%d)\nAPI: %s %s\nHTTP: %s\nLatency: %d ms (threshold %d ms)\nReason: %s\nExecuted: %s",
		r.TestName, r.NodeName, r.NodeHost, r.NodePort, r.APIMethod, r.APIURI,
		status, r.ResponseTimeMs, r.AlertThresholdMs, why, r.ExecutedAt.Format(time.RFC3339),
	)
}

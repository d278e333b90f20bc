package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

// ---- HistoryStore ----

func (s *Store) Append(ctx context.Context, o *domain.ExecutionOutcome) error {
	if o.ExecutedAt.IsZero() {
		o.ExecutedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO execution_history
		   (id, cycle_id, test_id, node_id, status_code, success, response_time_ms, input, output, executed_at)
		 VALUES
		   ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.CycleID, o.TestID, o.NodeID, o.StatusCode, o.Success,
		o.ResponseTimeMs, o.Input, o.Output, o.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

const historyFrom = `
  FROM execution_history h
  LEFT JOIN synthetic_tests t ON t.id = h.test_id
  LEFT JOIN nodes n ON n.id = h.node_id
  LEFT JOIN api_definitions a ON a.id = t.api_id
  LEFT JOIN node_groups g ON t.target_kind = 'group' AND g.id = t.target_id`

// historyWhere renders the filter as a WHERE clause with positional args.
func historyWhere(f domain.HistoryFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	like := func(s string) string { return "%" + s + "%" }

	if f.TestID != 0 {
		add("h.test_id = $%d", f.TestID)
	}
	if f.NodeID != 0 {
		add("h.node_id = $%d", f.NodeID)
	}
	if f.TestName != "" {
		add("t.name ILIKE $%d", like(f.TestName))
	}
	if f.NodeName != "" {
		add("n.name ILIKE $%d", like(f.NodeName))
	}
	if f.GroupName != "" {
		add("g.name ILIKE $%d", like(f.GroupName))
	}
	if f.TagName != "" {
		add("EXISTS (SELECT 1 FROM unnest(t.tags) AS tag WHERE tag ILIKE $%d)", like(f.TagName))
	}
	if f.Success != nil {
		add("h.success = $%d", *f.Success)
	}
	if !f.From.IsZero() {
		add("h.executed_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("h.executed_at <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *Store) Search(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRow, int, error) {
	where, args := historyWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*)`+historyFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	q := `
SELECT h.id, h.cycle_id, h.test_id, h.node_id, h.status_code, h.success,
       h.response_time_ms, h.input, h.output, h.executed_at,
       COALESCE(t.name, ''), COALESCE(t.alert_threshold_ms, 0),
       COALESCE(n.name, ''), COALESCE(n.host, ''), COALESCE(n.port, 0),
       COALESCE(a.name, ''), COALESCE(a.method, ''), COALESCE(a.uri, '')` +
		historyFrom + where + `
 ORDER BY h.executed_at DESC, h.id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryRow
	for rows.Next() {
		var r domain.HistoryRow
		if err := rows.Scan(
			&r.ID, &r.CycleID, &r.TestID, &r.NodeID, &r.StatusCode, &r.Success,
			&r.ResponseTimeMs, &r.Input, &r.Output, &r.ExecutedAt,
			&r.TestName, &r.AlertThresholdMs,
			&r.NodeName, &r.NodeHost, &r.NodePort,
			&r.APIName, &r.APIMethod, &r.APIURI,
		); err != nil {
			return nil, 0, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

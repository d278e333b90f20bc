package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

func (m *Store) Append(ctx context.Context, o *domain.ExecutionOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ExecutedAt.IsZero() {
		o.ExecutedAt = time.Now().UTC()
	}
	m.history = append(m.history, *o)
	return nil
}

func (m *Store) Search(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRow, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := make([]domain.HistoryRow, 0)
	for _, o := range m.history {
		row := m.join(o)
		if m.matches(row, f) {
			matched = append(matched, row)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].ExecutedAt.Equal(matched[j].ExecutedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].ExecutedAt.After(matched[j].ExecutedAt)
	})

	total := len(matched)
	start := f.Offset
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}
	return matched[start:end], total, nil
}

func (m *Store) join(o domain.ExecutionOutcome) domain.HistoryRow {
	row := domain.HistoryRow{ExecutionOutcome: o}
	if t := m.tests[o.TestID]; t != nil {
		row.TestName = t.Name
		row.AlertThresholdMs = t.AlertThresholdMs
		if a := m.apis[t.APIID]; a != nil {
			row.APIName = a.Name
			row.APIMethod = a.Method
			row.APIURI = a.URI
		}
	}
	if n := m.nodes[o.NodeID]; n != nil {
		row.NodeName = n.Name
		row.NodeHost = n.Host
		row.NodePort = n.Port
	}
	return row
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func (m *Store) matches(row domain.HistoryRow, f domain.HistoryFilter) bool {
	if f.TestID != 0 && row.TestID != f.TestID {
		return false
	}
	if f.NodeID != 0 && row.NodeID != f.NodeID {
		return false
	}
	if f.TestName != "" && !contains(row.TestName, f.TestName) {
		return false
	}
	if f.NodeName != "" && !contains(row.NodeName, f.NodeName) {
		return false
	}
	if f.Success != nil && row.Success != *f.Success {
		return false
	}
	if !f.From.IsZero() && row.ExecutedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && row.ExecutedAt.After(f.To) {
		return false
	}
	t := m.tests[row.TestID]
	if f.GroupName != "" {
		if t == nil || t.Target.Kind != domain.TargetGroup {
			return false
		}
		g := m.groups[t.Target.ID]
		if g == nil || !contains(g.Name, f.GroupName) {
			return false
		}
	}
	if f.TagName != "" {
		if t == nil {
			return false
		}
		found := false
		for _, tag := range t.Tags {
			if contains(tag, f.TagName) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

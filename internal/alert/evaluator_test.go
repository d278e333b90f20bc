package alert

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo/memory"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type world struct {
	store *memory.Store
	test  int64
	node  int64
}

func newWorld(t *testing.T, threshold int64) *world {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	n := &domain.Node{Name: "edge-1", Host: "10.0.0.1", Port: 80}
	require.NoError(t, s.AddNode(ctx, n))
	api := &domain.APIDefinition{Name: "ping", Method: "GET", URI: "/ping"}
	require.NoError(t, s.AddAPI(ctx, api))
	tst := &domain.SyntheticTest{
		Name: "ping-test", APIID: api.ID,
		Target:           domain.Target{Kind: domain.TargetNode, ID: n.ID},
		IntervalSeconds:  10,
		AlertThresholdMs: threshold,
	}
	require.NoError(t, s.AddTest(ctx, tst))
	return &world{store: s, test: tst.ID, node: n.ID}
}

func (w *world) add(t *testing.T, id string, ms int64, ok bool, at time.Time, input string) {
	t.Helper()
	require.NoError(t, w.store.Append(context.Background(), &domain.ExecutionOutcome{
		ID: id, TestID: w.test, NodeID: w.node, StatusCode: 200,
		Success: ok, ResponseTimeMs: ms, Input: input, ExecutedAt: at,
	}))
}

func TestQualifies_ThresholdIsStrict(t *testing.T) {
	row := func(ms int64, ok bool) domain.HistoryRow {
		return domain.HistoryRow{
			ExecutionOutcome: domain.ExecutionOutcome{ResponseTimeMs: ms, Success: ok},
			AlertThresholdMs: 500,
		}
	}
	_, ok := Qualifies(row(500, true))
	require.False(t, ok, "500ms at threshold 500 must not alert")

	reason, ok := Qualifies(row(501, true))
	require.True(t, ok)
	require.Equal(t, domain.AlertSlow, reason)

	reason, ok = Qualifies(row(0, false))
	require.True(t, ok, "failed calls alert regardless of threshold")
	require.Equal(t, domain.AlertFailed, reason)
}

func TestParseWindow(t *testing.T) {
	for name, want := range map[string]time.Duration{
		"1h": time.Hour, "6h": 6 * time.Hour, "24h": 24 * time.Hour, "7d": 7 * 24 * time.Hour,
	} {
		got, d := ParseWindow(name)
		require.Equal(t, name, got)
		require.Equal(t, want, d)
	}
	got, d := ParseWindow("3w")
	require.Equal(t, "24h", got)
	require.Equal(t, 24*time.Hour, d)
}

func TestEvaluate_WindowAndJoins(t *testing.T) {
	w := newWorld(t, 500)
	w.add(t, "slow", 501, true, base.Add(-30*time.Minute), `{"id":"7"}`)
	w.add(t, "edge", 500, true, base.Add(-20*time.Minute), `{}`)
	w.add(t, "fail", 0, false, base.Add(-10*time.Minute), `{}`)
	w.add(t, "old", 900, true, base.Add(-2*time.Hour), `{}`)

	e := NewEvaluator(w.store, zap.NewNop(), 0)
	e.Now = func() time.Time { return base }

	alerts, err := e.Evaluate(context.Background(), "1h")
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	require.Equal(t, "fail", alerts[0].OutcomeID)
	require.Equal(t, domain.AlertFailed, alerts[0].Reason)
	require.Equal(t, "slow", alerts[1].OutcomeID)
	require.Equal(t, domain.AlertSlow, alerts[1].Reason)
	require.Equal(t, "ping-test", alerts[1].TestName)
	require.Equal(t, "edge-1", alerts[1].NodeName)
	require.Equal(t, "/ping", alerts[1].APIURI)
	require.Equal(t, "GET", alerts[1].APIMethod)
	require.Equal(t, map[string]any{"id": "7"}, alerts[1].Params)

	alerts, err = e.Evaluate(context.Background(), "bogus")
	require.NoError(t, err)
	require.Len(t, alerts, 3, "unknown window defaults to 24h")
}

func TestEvaluate_MalformedParamsDoNotFail(t *testing.T) {
	w := newWorld(t, 0)
	w.add(t, "a", 10, true, base.Add(-time.Minute), `{broken`)

	e := NewEvaluator(w.store, zap.NewNop(), 0)
	e.Now = func() time.Time { return base }
	alerts, err := e.Evaluate(context.Background(), "1h")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].Params)
	require.Empty(t, alerts[0].Params)
}

func TestEvaluateRange_Idempotent(t *testing.T) {
	w := newWorld(t, 100)
	for i := 0; i < 20; i++ {
		w.add(t, fmt.Sprintf("o%02d", i), int64(50+10*i), i%7 != 0, base.Add(-time.Duration(i)*time.Minute), `{}`)
	}
	e := NewEvaluator(w.store, zap.NewNop(), 0)
	from, to := base.Add(-time.Hour), base

	first, err := e.EvaluateRange(context.Background(), from, to)
	require.NoError(t, err)
	second, err := e.EvaluateRange(context.Background(), from, to)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestEvaluateRange_LimitAndPaging(t *testing.T) {
	w := newWorld(t, 0)
	for i := 0; i < 30; i++ {
		w.add(t, fmt.Sprintf("o%02d", i), 10, true, base.Add(-time.Duration(i)*time.Second), `{}`)
	}
	e := NewEvaluator(w.store, zap.NewNop(), 12)
	e.PageSize = 5
	alerts, err := e.EvaluateRange(context.Background(), base.Add(-time.Hour), base)
	require.NoError(t, err)
	require.Len(t, alerts, 12)
	require.Equal(t, "o00", alerts[0].OutcomeID, "newest first")
}

// growingHistory records a newer outcome after every page it serves, the way
// a live dispatcher writes while a listing is being paged.
type growingHistory struct {
	*memory.Store
	w     *world
	t     *testing.T
	calls int
}

func (g *growingHistory) Search(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRow, int, error) {
	rows, total, err := g.Store.Search(ctx, f)
	g.calls++
	g.w.add(g.t, fmt.Sprintf("late%02d", g.calls), 10, true, base.Add(-time.Duration(60-g.calls)*time.Second), `{}`)
	return rows, total, err
}

func TestEvaluateRange_RowsWrittenDuringScanNotDuplicated(t *testing.T) {
	w := newWorld(t, 100)
	for i := 0; i < 10; i++ {
		w.add(t, fmt.Sprintf("o%02d", i), 0, false, base.Add(-30*time.Minute-time.Duration(i)*time.Second), `{}`)
	}
	hist := &growingHistory{Store: w.store, w: w, t: t}
	e := NewEvaluator(hist, zap.NewNop(), 0)
	e.PageSize = 3
	alerts, err := e.EvaluateRange(context.Background(), base.Add(-time.Hour), base)
	require.NoError(t, err)
	require.Greater(t, hist.calls, 1)

	ids := make(map[string]bool)
	for _, a := range alerts {
		require.False(t, ids[a.OutcomeID], "duplicate alert %s", a.OutcomeID)
		ids[a.OutcomeID] = true
	}
	require.Len(t, alerts, 10)
	require.Equal(t, "o00", alerts[0].OutcomeID)
}

type brokenHistory struct{ *memory.Store }

func (brokenHistory) Search(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRow, int, error) {
	return nil, 0, errors.New("connection reset")
}

func TestEvaluate_ReadFailurePropagates(t *testing.T) {
	e := NewEvaluator(brokenHistory{memory.New()}, zap.NewNop(), 0)
	_, err := e.Evaluate(context.Background(), "1h")
	require.ErrorIs(t, err, domain.ErrPersistence)
}

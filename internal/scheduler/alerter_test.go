package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo/memory"
)

// ---- shared helpers ----

type memNotifier struct {
	n      int
	titles []string
}

func (m *memNotifier) Send(ctx context.Context, title, text string) error {
	m.n++
	m.titles = append(m.titles, title)
	return nil
}

type alertWorld struct {
	store *memory.Store
	test  int64
	node  int64
	now   time.Time
	seq   int
}

func newAlertWorld(t *testing.T) *alertWorld {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	n := &domain.Node{Name: "n1", Host: "10.0.0.9", Port: 80}
	_ = s.AddNode(ctx, n)
	api := &domain.APIDefinition{Name: "ping", Method: "GET", URI: "/ping"}
	_ = s.AddAPI(ctx, api)
	tst := &domain.SyntheticTest{
		Name: "t1", APIID: api.ID,
		Target:          domain.Target{Kind: domain.TargetNode, ID: n.ID},
		IntervalSeconds: 10, AlertThresholdMs: 200,
	}
	_ = s.AddTest(ctx, tst)
	return &alertWorld{store: s, test: tst.ID, node: n.ID, now: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (w *alertWorld) record(ok bool, ms int64) {
	w.seq++
	w.now = w.now.Add(time.Second)
	_ = w.store.Append(context.Background(), &domain.ExecutionOutcome{
		ID: fmt.Sprintf("o%d", w.seq), TestID: w.test, NodeID: w.node,
		StatusCode: 200, Success: ok, ResponseTimeMs: ms, ExecutedAt: w.now,
	})
}

func (w *alertWorld) alerter(nt *memNotifier, cfg AlerterConfig) *Alerter {
	a := NewAlerter(zap.NewNop(), w.store, w.store, nt, cfg)
	a.now = func() time.Time { return w.now }
	return a
}

// ---- tests ----

func TestAlerter_SendsOnFailure_RespectsCooldown(t *testing.T) {
	w := newAlertWorld(t)
	nt := &memNotifier{}
	al := w.alerter(nt, AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute})

	w.record(false, 0)
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if nt.n != 1 {
		t.Fatalf("want 1 alert, got %d", nt.n)
	}

	// still failing: no repeat
	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	if nt.n != 1 {
		t.Fatalf("want no repeat while state unchanged, got %d", nt.n)
	}

	// recovery is sent regardless of cooldown
	w.record(true, 50)
	_ = al.scanOnce(context.Background())
	if nt.n != 2 || nt.titles[1] != "🟢 Synthetic test RECOVERED" {
		t.Fatalf("want recovery alert, got %d %v", nt.n, nt.titles)
	}

	// fails again within cooldown of the last send: suppressed
	w.record(true, 500)
	_ = al.scanOnce(context.Background())
	if nt.n != 2 {
		t.Fatalf("want cooldown to suppress, got %d", nt.n)
	}
}

func TestAlerter_FiringHeldByCooldownSentOnceCooled(t *testing.T) {
	w := newAlertWorld(t)
	nt := &memNotifier{}
	al := w.alerter(nt, AlerterConfig{AlertOnRecovery: true, Cooldown: time.Minute})

	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	w.record(true, 20)
	_ = al.scanOnce(context.Background())
	if nt.n != 2 {
		t.Fatalf("want alert and recovery, got %d %v", nt.n, nt.titles)
	}

	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	if nt.n != 2 {
		t.Fatalf("want failure inside cooldown held back, got %d", nt.n)
	}

	// still failing after the cooldown: the held alert goes out once
	w.now = w.now.Add(5 * time.Minute)
	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	if nt.n != 3 || nt.titles[2] != "🔴 Synthetic test ALERT" {
		t.Fatalf("want delayed alert, got %d %v", nt.n, nt.titles)
	}

	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	if nt.n != 3 {
		t.Fatalf("want no repeat, got %d", nt.n)
	}
}

func TestAlerter_SilentRecoveryKeepsCooldown(t *testing.T) {
	w := newAlertWorld(t)
	nt := &memNotifier{}
	al := w.alerter(nt, AlerterConfig{Cooldown: time.Minute})

	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	w.record(true, 20)
	_ = al.scanOnce(context.Background())
	w.record(false, 0)
	_ = al.scanOnce(context.Background())
	if nt.n != 1 {
		t.Fatalf("want refire held by cooldown, got %d %v", nt.n, nt.titles)
	}
}

type brokenAlertStore struct {
	*memory.Store
}

func (b brokenAlertStore) SetAlert(ctx context.Context, key string, lastState bool, sentAt time.Time) error {
	return errors.New("alerts table unavailable")
}

func TestAlerter_StateWriteErrorLogged(t *testing.T) {
	w := newAlertWorld(t)
	nt := &memNotifier{}
	core, logs := observer.New(zap.WarnLevel)
	al := NewAlerter(zap.New(core), w.store, brokenAlertStore{w.store}, nt, AlerterConfig{})
	al.now = func() time.Time { return w.now }

	w.record(false, 0)
	if err := al.scanOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if nt.n != 1 {
		t.Fatalf("want alert sent, got %d", nt.n)
	}
	entries := logs.FilterMessage("alerter_state_error").All()
	if len(entries) != 1 {
		t.Fatalf("want one state error logged, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["key"]; got != alertKey(w.test, w.node) {
		t.Fatalf("unexpected key field %v", got)
	}
}

func TestAlerter_NoRecoveryIfDisabled(t *testing.T) {
	w := newAlertWorld(t)
	nt := &memNotifier{}
	al := w.alerter(nt, AlerterConfig{AlertOnRecovery: false})

	// first healthy row: nothing to report
	w.record(true, 10)
	_ = al.scanOnce(context.Background())
	if nt.n != 0 {
		t.Fatalf("unexpected alert: %d", nt.n)
	}

	// slow response above threshold fires
	w.record(true, 201)
	_ = al.scanOnce(context.Background())
	if nt.n != 1 {
		t.Fatalf("want one alert, got %d", nt.n)
	}

	w.record(true, 10)
	_ = al.scanOnce(context.Background())
	if nt.n != 1 {
		t.Fatalf("recovery disabled, got %d", nt.n)
	}
}

func TestLatest_KeepsNewestPerPair(t *testing.T) {
	rows := []domain.HistoryRow{
		{ExecutionOutcome: domain.ExecutionOutcome{ID: "new", TestID: 1, NodeID: 1}},
		{ExecutionOutcome: domain.ExecutionOutcome{ID: "other", TestID: 1, NodeID: 2}},
		{ExecutionOutcome: domain.ExecutionOutcome{ID: "old", TestID: 1, NodeID: 1}},
	}
	got := latest(rows)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "other" {
		t.Fatalf("unexpected: %+v", got)
	}
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

func TestMemoryStore_AddAndGetNode(t *testing.T) {
	ctx := context.Background()
	s := New()

	n := &domain.Node{Name: "edge-1", Host: "10.0.0.1", Port: 8080}
	if err := s.AddNode(ctx, n); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if n.ID == 0 {
		t.Fatalf("expected node ID to be set")
	}

	got, err := s.GetNode(ctx, n.ID)
	if err != nil || got == nil {
		t.Fatalf("GetNode: %v %v", got, err)
	}
	if got.Host != "10.0.0.1" {
		t.Fatalf("unexpected host: %s", got.Host)
	}

	missing, err := s.GetNode(ctx, 999)
	if err != nil || missing != nil {
		t.Fatalf("missing node should be nil,nil; got %v %v", missing, err)
	}

	now := time.Now().UTC()
	if err := s.UpdateNodeStatus(ctx, n.ID, domain.NodeHealthy, now); err != nil {
		t.Fatalf("UpdateNodeStatus: %v", err)
	}
	got, _ = s.GetNode(ctx, n.ID)
	if got.Status != domain.NodeHealthy || got.LastChecked == nil || !got.LastChecked.Equal(now) {
		t.Fatalf("status not updated: %+v", got)
	}
}

func TestMemoryStore_GroupCopiesMembers(t *testing.T) {
	ctx := context.Background()
	s := New()
	g := &domain.NodeGroup{Name: "edge", NodeIDs: []int64{1, 2}}
	if err := s.AddGroup(ctx, g); err != nil {
		t.Fatalf("AddGroup: %v", err)
	}
	g.NodeIDs[0] = 42

	got, _ := s.GetGroup(ctx, g.ID)
	if got.NodeIDs[0] != 1 {
		t.Fatalf("store shares member slice with caller: %v", got.NodeIDs)
	}
}

func seedHistory(t *testing.T, s *Store) (testID, nodeA, nodeB int64, base time.Time) {
	t.Helper()
	ctx := context.Background()
	a := &domain.Node{Name: "alpha", Host: "10.0.0.1", Port: 80}
	b := &domain.Node{Name: "beta", Host: "10.0.0.2", Port: 80}
	_ = s.AddNode(ctx, a)
	_ = s.AddNode(ctx, b)
	g := &domain.NodeGroup{Name: "Frontends", NodeIDs: []int64{a.ID, b.ID}}
	_ = s.AddGroup(ctx, g)
	api := &domain.APIDefinition{Name: "status", Method: "GET", URI: "/status"}
	_ = s.AddAPI(ctx, api)
	tst := &domain.SyntheticTest{
		Name: "status-check", APIID: api.ID,
		Target:          domain.Target{Kind: domain.TargetGroup, ID: g.ID},
		IntervalSeconds: 30, AlertThresholdMs: 200, Tags: []string{"critical"},
	}
	_ = s.AddTest(ctx, tst)

	base = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		node := a.ID
		if i%2 == 1 {
			node = b.ID
		}
		o := &domain.ExecutionOutcome{
			ID:             string(rune('a' + i)),
			TestID:         tst.ID,
			NodeID:         node,
			StatusCode:     200,
			Success:        i != 5,
			ResponseTimeMs: int64(100 * i),
			ExecutedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Append(ctx, o); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return tst.ID, a.ID, b.ID, base
}

func TestMemoryStore_SearchFiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	testID, nodeA, _, base := seedHistory(t, s)

	rows, total, err := s.Search(ctx, domain.HistoryFilter{TestID: testID, Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total != 6 || len(rows) != 2 {
		t.Fatalf("want total=6 rows=2, got total=%d rows=%d", total, len(rows))
	}
	if !rows[0].ExecutedAt.After(rows[1].ExecutedAt) {
		t.Fatalf("rows not newest first")
	}
	if rows[0].TestName != "status-check" || rows[0].APIURI != "/status" || rows[0].AlertThresholdMs != 200 {
		t.Fatalf("display fields not joined: %+v", rows[0])
	}

	page2, _, _ := s.Search(ctx, domain.HistoryFilter{Limit: 2, Offset: 4})
	if len(page2) != 2 {
		t.Fatalf("want 2 rows on last page, got %d", len(page2))
	}

	rows, total, _ = s.Search(ctx, domain.HistoryFilter{NodeID: nodeA})
	if total != 3 {
		t.Fatalf("node filter: want 3, got %d", total)
	}
	for _, r := range rows {
		if r.NodeName != "alpha" {
			t.Fatalf("node filter leaked %+v", r)
		}
	}

	if _, total, _ = s.Search(ctx, domain.HistoryFilter{NodeName: "BET"}); total != 3 {
		t.Fatalf("node name filter: want 3, got %d", total)
	}
	if _, total, _ = s.Search(ctx, domain.HistoryFilter{GroupName: "front"}); total != 6 {
		t.Fatalf("group filter: want 6, got %d", total)
	}
	if _, total, _ = s.Search(ctx, domain.HistoryFilter{TagName: "crit"}); total != 6 {
		t.Fatalf("tag filter: want 6, got %d", total)
	}
	if _, total, _ = s.Search(ctx, domain.HistoryFilter{TagName: "nope"}); total != 0 {
		t.Fatalf("tag filter miss: want 0, got %d", total)
	}
	if _, total, _ = s.Search(ctx, domain.HistoryFilter{TestName: "STATUS"}); total != 6 {
		t.Fatalf("test name filter: want 6, got %d", total)
	}

	failed := false
	if _, total, _ = s.Search(ctx, domain.HistoryFilter{Success: &failed}); total != 1 {
		t.Fatalf("success filter: want 1, got %d", total)
	}

	rows, total, _ = s.Search(ctx, domain.HistoryFilter{From: base.Add(2 * time.Minute), To: base.Add(3 * time.Minute)})
	if total != 2 {
		t.Fatalf("time range: want 2, got %d (%v)", total, rows)
	}
}

func TestMemoryStore_AlertState(t *testing.T) {
	ctx := context.Background()
	s := New()
	if rec, err := s.GetAlert(ctx, "1:2"); err != nil || rec != nil {
		t.Fatalf("expected nil record, got %+v %v", rec, err)
	}
	if err := s.SetAlert(ctx, "1:2", true, time.Time{}); err != nil {
		t.Fatalf("SetAlert: %v", err)
	}
	rec, _ := s.GetAlert(ctx, "1:2")
	if rec == nil || !rec.LastState || rec.LastSentAt != nil {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -run AlertState -count=1

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

func open(t *testing.T, ctx context.Context, dsn string) *Store {
	t.Helper()
	s, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestAlertState_SurvivesReconnect(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL empty")
	}
	ctx := context.Background()
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	firing, quiet := "it:"+stamp+":1:1", "it:"+stamp+":1:2"
	sent := time.Now().UTC().Truncate(time.Microsecond)

	first := open(t, ctx, dsn)
	if rec, err := first.GetAlert(ctx, firing); err != nil || rec != nil {
		first.Close()
		t.Fatalf("fresh key: want nil, got %+v err=%v", rec, err)
	}
	if err := first.SetAlert(ctx, firing, true, sent); err != nil {
		t.Fatalf("set firing: %v", err)
	}
	if err := first.SetAlert(ctx, quiet, false, time.Time{}); err != nil {
		t.Fatalf("set quiet: %v", err)
	}
	first.Close()

	second := open(t, ctx, dsn)
	defer second.Close()

	rec, err := second.GetAlert(ctx, firing)
	if err != nil || rec == nil || !rec.LastState || rec.LastSentAt == nil || !rec.LastSentAt.Equal(sent) {
		t.Fatalf("firing key: %+v err=%v", rec, err)
	}
	rec, err = second.GetAlert(ctx, quiet)
	if err != nil || rec == nil || rec.LastState || rec.LastSentAt != nil {
		t.Fatalf("quiet key: %+v err=%v", rec, err)
	}

	// a suppressed flip clears the sent time
	if err := second.SetAlert(ctx, firing, false, time.Time{}); err != nil {
		t.Fatalf("flip: %v", err)
	}
	rec, _ = second.GetAlert(ctx, firing)
	if rec == nil || rec.LastState || rec.LastSentAt != nil {
		t.Fatalf("after flip: %+v", rec)
	}
}

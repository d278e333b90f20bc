package probe

import (
	"context"
	"strings"
	"testing"
	"time"
)

// fake prober you can control
type fakeProber struct {
	results []Result
	i       int
}

func (f *fakeProber) Probe(ctx context.Context, host string, port int) Result {
	if f.i >= len(f.results) {
		return Result{Success: false, Message: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryProber_SucceedsAfterRetry(t *testing.T) {
	f := &fakeProber{
		results: []Result{
			{Success: false, Message: "first fail"},
			{Success: true, Message: "200 OK"},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 3, Backoff: 10 * time.Millisecond}
	out := rp.Probe(context.Background(), "10.0.0.1", 80)
	if !out.Success {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("want 2 attempts, got %d", f.i)
	}
}

func TestRetryProber_AllFailAnnotates(t *testing.T) {
	f := &fakeProber{
		results: []Result{
			{Success: false, Message: "fail1"},
			{Success: false, Message: "fail2"},
		},
	}
	rp := &RetryProber{Inner: f, Attempts: 2}
	out := rp.Probe(context.Background(), "10.0.0.1", 80)
	if out.Success {
		t.Fatalf("expected failure, got success")
	}
	if !strings.HasSuffix(out.Message, "(after retries)") {
		t.Fatalf("expected retry annotation, got %q", out.Message)
	}
}

func TestRetryProber_SingleAttemptNoAnnotation(t *testing.T) {
	f := &fakeProber{results: []Result{{Success: false, Message: "down"}}}
	out := (&RetryProber{Inner: f}).Probe(context.Background(), "h", 1)
	if out.Message != "down" {
		t.Fatalf("single attempt should not annotate, got %q", out.Message)
	}
}

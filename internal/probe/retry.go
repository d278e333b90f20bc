package probe

import (
	"context"
	"time"
)

// RetryProber retries a failed probe up to Attempts times in total.
type RetryProber struct {
	Inner    Prober
	Attempts int
	Backoff  time.Duration
}

func (r *RetryProber) Probe(ctx context.Context, host string, port int) Result {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last Result
	for i := 0; i < attempts; i++ {
		last = r.Inner.Probe(ctx, host, port)
		if last.Success {
			return last
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(r.Backoff):
			}
		}
	}
	if attempts > 1 {
		// mark that the result came from a retry series
		last.Message = last.Message + " (after retries)"
	}
	return last
}

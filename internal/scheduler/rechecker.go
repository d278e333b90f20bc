package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

type NodeLister interface {
	ListNodes(ctx context.Context) ([]domain.Node, error)
}

// NodeChecker probes one node and records the result.
// *nodehealth.Service satisfies it.
type NodeChecker interface {
	CheckNode(ctx context.Context, n domain.Node) domain.NodeHealth
}

// Rechecker periodically refreshes the health status of every node.
type Rechecker struct {
	Logger      *zap.Logger
	Nodes       NodeLister
	Checker     NodeChecker
	Interval    time.Duration
	Timeout     time.Duration
	Concurrency int
}

func NewRechecker(
	logger *zap.Logger,
	nodes NodeLister,
	checker NodeChecker,
	interval time.Duration,
	timeout time.Duration,
	concurrency int,
) *Rechecker {
	if concurrency < 1 {
		concurrency = 1
	}
	if interval < 0 {
		interval = 0
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Rechecker{
		Logger:      logger,
		Nodes:       nodes,
		Checker:     checker,
		Interval:    interval,
		Timeout:     timeout,
		Concurrency: concurrency,
	}
}

// Run does an immediate pass, then one per tick, until ctx is cancelled.
func (r *Rechecker) Run(ctx context.Context) {
	if r.Interval == 0 {
		r.Logger.Info("rechecker_disabled")
		return
	}
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("rechecker_stopped")
			return
		case <-t.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce checks every node with at most Concurrency probes in flight and
// returns how many nodes ended in each status.
func (r *Rechecker) runOnce(ctx context.Context) map[domain.NodeStatus]int {
	nodes, err := r.Nodes.ListNodes(ctx)
	if err != nil {
		r.Logger.Warn("rechecker_list_error", zap.Error(err))
		return nil
	}
	counts := make(map[domain.NodeStatus]int, 3)
	if len(nodes) == 0 {
		return counts
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.Concurrency)
	)
	start := time.Now()
	for _, n := range nodes {
		n := n
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				cctx, cancel := context.WithTimeout(ctx, r.Timeout)
				h := r.Checker.CheckNode(cctx, n)
				cancel()

				mu.Lock()
				counts[h.Status]++
				mu.Unlock()
				if h.Status == domain.NodeError {
					r.Logger.Info("rechecker_node_down",
						zap.Int64("node_id", n.ID),
						zap.String("host", n.Host),
						zap.String("message", h.Message),
					)
				}
			}()
		}
	}
	wg.Wait()

	r.Logger.Debug("rechecker_pass",
		zap.Int("nodes", len(nodes)),
		zap.Int("healthy", counts[domain.NodeHealthy]),
		zap.Int("warning", counts[domain.NodeWarning]),
		zap.Int("error", counts[domain.NodeError]),
		zap.Duration("took", time.Since(start)),
	)
	return counts
}

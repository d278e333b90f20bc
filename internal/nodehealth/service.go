// Package nodehealth probes nodes and records the derived status.
package nodehealth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/probe"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

const DefaultWarnLatency = 1000 * time.Millisecond

type Service struct {
	Logger      *zap.Logger
	Nodes       repo.NodeStore
	Cache       repo.StatusCache
	Prober      probe.Prober
	WarnLatency time.Duration

	now func() time.Time
}

func New(logger *zap.Logger, nodes repo.NodeStore, cache repo.StatusCache, p probe.Prober, warn time.Duration) *Service {
	if warn <= 0 {
		warn = DefaultWarnLatency
	}
	return &Service{
		Logger:      logger,
		Nodes:       nodes,
		Cache:       cache,
		Prober:      p,
		WarnLatency: warn,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StatusFor maps a probe result to a node status.
func StatusFor(r probe.Result, warn time.Duration) domain.NodeStatus {
	switch {
	case !r.Success:
		return domain.NodeError
	case r.ResponseTimeMs > warn.Milliseconds():
		return domain.NodeWarning
	default:
		return domain.NodeHealthy
	}
}

// Check probes a node once and stores the result. Store failures are logged
// and do not change the returned health.
func (s *Service) Check(ctx context.Context, nodeID int64) (domain.NodeHealth, error) {
	n, err := s.Nodes.GetNode(ctx, nodeID)
	if err != nil {
		return domain.NodeHealth{}, fmt.Errorf("%w: get node: %w", domain.ErrPersistence, err)
	}
	if n == nil {
		return domain.NodeHealth{}, &domain.NotFoundError{Kind: "node", ID: nodeID}
	}
	return s.CheckNode(ctx, *n), nil
}

func (s *Service) CheckNode(ctx context.Context, n domain.Node) domain.NodeHealth {
	res := s.Prober.Probe(ctx, n.Host, n.Port)
	h := domain.NodeHealth{
		NodeID:         n.ID,
		Success:        res.Success,
		StatusCode:     res.StatusCode,
		ResponseTimeMs: res.ResponseTimeMs,
		CheckType:      string(res.CheckType),
		Status:         StatusFor(res, s.WarnLatency),
		Message:        res.Message,
		CheckedAt:      s.now(),
	}

	store := context.WithoutCancel(ctx)
	if err := s.Nodes.UpdateNodeStatus(store, n.ID, h.Status, h.CheckedAt); err != nil {
		s.Logger.Warn("node_status_update_error", zap.Int64("node_id", n.ID), zap.Error(err))
	}
	if s.Cache != nil {
		if err := s.Cache.PutHealth(store, h); err != nil {
			s.Logger.Warn("node_health_cache_error", zap.Int64("node_id", n.ID), zap.Error(err))
		}
	}
	s.Logger.Debug("node_checked",
		zap.Int64("node_id", n.ID),
		zap.String("host", n.Host),
		zap.Int("port", n.Port),
		zap.String("status", string(h.Status)),
		zap.Int64("response_time_ms", h.ResponseTimeMs),
		zap.String("message", h.Message),
	)
	return h
}

// Latest returns the cached result for a node, or nil when none is cached.
func (s *Service) Latest(ctx context.Context, nodeID int64) (*domain.NodeHealth, error) {
	n, err := s.Nodes.GetNode(ctx, nodeID)
	if err != nil {
		return nil, fmt.Errorf("%w: get node: %w", domain.ErrPersistence, err)
	}
	if n == nil {
		return nil, &domain.NotFoundError{Kind: "node", ID: nodeID}
	}
	if s.Cache == nil {
		return nil, nil
	}
	return s.Cache.GetHealth(ctx, nodeID)
}

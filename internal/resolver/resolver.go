// Package resolver expands a synthetic test target into concrete nodes.
package resolver

import (
	"context"
	"fmt"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

type Stores interface {
	repo.NodeStore
	repo.GroupStore
}

type Resolver struct {
	Stores Stores
}

func New(s Stores) *Resolver {
	return &Resolver{Stores: s}
}

// Resolve returns the live nodes for t. A missing node or group yields an
// empty slice, not an error; group members that no longer exist are skipped
// and the group's member order is kept. Store errors are returned as is.
func (r *Resolver) Resolve(ctx context.Context, t domain.SyntheticTest) ([]domain.Node, error) {
	switch t.Target.Kind {
	case domain.TargetNode:
		n, err := r.Stores.GetNode(ctx, t.Target.ID)
		if err != nil {
			return nil, fmt.Errorf("get node %d: %w", t.Target.ID, err)
		}
		if n == nil {
			return nil, nil
		}
		return []domain.Node{*n}, nil

	case domain.TargetGroup:
		g, err := r.Stores.GetGroup(ctx, t.Target.ID)
		if err != nil {
			return nil, fmt.Errorf("get group %d: %w", t.Target.ID, err)
		}
		if g == nil {
			return nil, nil
		}
		seen := make(map[int64]bool, len(g.NodeIDs))
		out := make([]domain.Node, 0, len(g.NodeIDs))
		for _, id := range g.NodeIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			n, err := r.Stores.GetNode(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get node %d: %w", id, err)
			}
			if n == nil {
				continue
			}
			out = append(out, *n)
		}
		return out, nil
	}
	return nil, &domain.ValidationError{Field: "target.kind", Reason: fmt.Sprintf("unknown kind %q", t.Target.Kind)}
}

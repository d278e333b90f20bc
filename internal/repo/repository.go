package repo

import (
	"context"
	"time"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

// Ports (interfaces) for the catalog and history. Reads return nil, nil when
// the record does not exist.
type NodeStore interface {
	AddNode(ctx context.Context, n *domain.Node) error
	GetNode(ctx context.Context, id int64) (*domain.Node, error)
	ListNodes(ctx context.Context) ([]domain.Node, error)
	UpdateNodeStatus(ctx context.Context, id int64, status domain.NodeStatus, checkedAt time.Time) error
}

type GroupStore interface {
	AddGroup(ctx context.Context, g *domain.NodeGroup) error
	GetGroup(ctx context.Context, id int64) (*domain.NodeGroup, error)
	ListGroups(ctx context.Context) ([]domain.NodeGroup, error)
}

type APIStore interface {
	AddAPI(ctx context.Context, a *domain.APIDefinition) error
	GetAPI(ctx context.Context, id int64) (*domain.APIDefinition, error)
	ListAPIs(ctx context.Context) ([]domain.APIDefinition, error)
}

type TestStore interface {
	AddTest(ctx context.Context, t *domain.SyntheticTest) error
	GetTest(ctx context.Context, id int64) (*domain.SyntheticTest, error)
	ListTests(ctx context.Context) ([]domain.SyntheticTest, error)
	SetLastParams(ctx context.Context, id int64, p domain.Parameters) error
}

// HistoryStore is append-only. Append must be safe for concurrent use.
// Search returns rows newest first along with the total match count.
type HistoryStore interface {
	Append(ctx context.Context, o *domain.ExecutionOutcome) error
	Search(ctx context.Context, f domain.HistoryFilter) ([]domain.HistoryRow, int, error)
}

// StatusCache keeps the latest health result per node.
type StatusCache interface {
	PutHealth(ctx context.Context, h domain.NodeHealth) error
	GetHealth(ctx context.Context, nodeID int64) (*domain.NodeHealth, error)
}

// Catalog bundles the read/write ports for nodes, groups, apis and tests.
type Catalog interface {
	NodeStore
	GroupStore
	APIStore
	TestStore
}

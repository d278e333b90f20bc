package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

// Store keeps every port in process memory. Records are copied on the way in
// and out so callers never share backing arrays with the store.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	nodes  map[int64]*domain.Node
	groups map[int64]*domain.NodeGroup
	apis   map[int64]*domain.APIDefinition
	tests  map[int64]*domain.SyntheticTest

	history []domain.ExecutionOutcome
	health  map[int64]domain.NodeHealth
	alerts  map[string]repo.AlertRecord
}

func New() *Store {
	return &Store{
		nodes:   make(map[int64]*domain.Node),
		groups:  make(map[int64]*domain.NodeGroup),
		apis:    make(map[int64]*domain.APIDefinition),
		tests:   make(map[int64]*domain.SyntheticTest),
		history: make([]domain.ExecutionOutcome, 0, 128),
		health:  make(map[int64]domain.NodeHealth),
		alerts:  make(map[string]repo.AlertRecord),
	}
}

func (m *Store) id() int64 {
	m.nextID++
	return m.nextID
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

// ---- NodeStore ----

func (m *Store) AddNode(ctx context.Context, n *domain.Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == 0 {
		n.ID = m.id()
	}
	stamp(&n.CreatedAt)
	cp := *n
	m.nodes[n.ID] = &cp
	return nil
}

func (m *Store) GetNode(ctx context.Context, id int64) (*domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (m *Store) ListNodes(ctx context.Context) ([]domain.Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) UpdateNodeStatus(ctx context.Context, id int64, status domain.NodeStatus, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return &domain.NotFoundError{Kind: "node", ID: id}
	}
	n.Status = status
	at := checkedAt
	n.LastChecked = &at
	return nil
}

// DeleteNode drops a node; groups keep referencing its id.
func (m *Store) DeleteNode(ctx context.Context, id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
}

// ---- GroupStore ----

func (m *Store) AddGroup(ctx context.Context, g *domain.NodeGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == 0 {
		g.ID = m.id()
	}
	stamp(&g.CreatedAt)
	cp := *g
	cp.NodeIDs = append([]int64(nil), g.NodeIDs...)
	m.groups[g.ID] = &cp
	return nil
}

func (m *Store) GetGroup(ctx context.Context, id int64) (*domain.NodeGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	cp.NodeIDs = append([]int64(nil), g.NodeIDs...)
	return &cp, nil
}

func (m *Store) ListGroups(ctx context.Context) ([]domain.NodeGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.NodeGroup, 0, len(m.groups))
	for _, g := range m.groups {
		cp := *g
		cp.NodeIDs = append([]int64(nil), g.NodeIDs...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- APIStore ----

func (m *Store) AddAPI(ctx context.Context, a *domain.APIDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	stamp(&a.CreatedAt)
	cp := *a
	cp.Params = append([]domain.ParamDef(nil), a.Params...)
	m.apis[a.ID] = &cp
	return nil
}

func (m *Store) GetAPI(ctx context.Context, id int64) (*domain.APIDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apis[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	cp.Params = append([]domain.ParamDef(nil), a.Params...)
	return &cp, nil
}

func (m *Store) ListAPIs(ctx context.Context) ([]domain.APIDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.APIDefinition, 0, len(m.apis))
	for _, a := range m.apis {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- TestStore ----

func copyTest(t *domain.SyntheticTest) domain.SyntheticTest {
	cp := *t
	cp.Tags = append([]string(nil), t.Tags...)
	if t.LastParams != nil {
		cp.LastParams = domain.Parameters{}.Merge(t.LastParams)
	}
	return cp
}

func (m *Store) AddTest(ctx context.Context, t *domain.SyntheticTest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == 0 {
		t.ID = m.id()
	}
	stamp(&t.CreatedAt)
	cp := copyTest(t)
	m.tests[t.ID] = &cp
	return nil
}

func (m *Store) GetTest(ctx context.Context, id int64) (*domain.SyntheticTest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tests[id]
	if !ok {
		return nil, nil
	}
	cp := copyTest(t)
	return &cp, nil
}

func (m *Store) ListTests(ctx context.Context) ([]domain.SyntheticTest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.SyntheticTest, 0, len(m.tests))
	for _, t := range m.tests {
		out = append(out, copyTest(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SetLastParams(ctx context.Context, id int64, p domain.Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return &domain.NotFoundError{Kind: "test", ID: id}
	}
	t.LastParams = domain.Parameters{}.Merge(p)
	return nil
}

// ---- StatusCache ----

func (m *Store) PutHealth(ctx context.Context, h domain.NodeHealth) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[h.NodeID] = h
	return nil
}

func (m *Store) GetHealth(ctx context.Context, nodeID int64) (*domain.NodeHealth, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[nodeID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

// ---- AlertStore ----

func (m *Store) GetAlert(ctx context.Context, key string) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[key]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SetAlert(ctx context.Context, key string, lastState bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	m.alerts[key] = repo.AlertRecord{Key: key, LastState: lastState, LastSentAt: ts}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

// ---- NodeStore ----

const nodeCols = `id, name, host, port, description, status, last_checked, created_at`

func scanNode(row pgx.Row) (*domain.Node, error) {
	var n domain.Node
	var status string
	if err := row.Scan(&n.ID, &n.Name, &n.Host, &n.Port, &n.Description, &status, &n.LastChecked, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Status = domain.NodeStatus(status)
	return &n, nil
}

func (s *Store) AddNode(ctx context.Context, n *domain.Node) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO nodes (name, host, port, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		n.Name, n.Host, n.Port, n.Description, string(n.Status), n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, id int64) (*domain.Node, error) {
	n, err := scanNode(s.pool.QueryRow(ctx, `SELECT `+nodeCols+` FROM nodes WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (s *Store) ListNodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+nodeCols+` FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()
	var out []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *Store) UpdateNodeStatus(ctx context.Context, id int64, status domain.NodeStatus, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE nodes SET status = $2, last_checked = $3 WHERE id = $1`,
		id, string(status), checkedAt)
	if err != nil {
		return fmt.Errorf("update node status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "node", ID: id}
	}
	return nil
}

// ---- GroupStore ----

const groupCols = `id, name, description, node_ids, created_at`

func scanGroup(row pgx.Row) (*domain.NodeGroup, error) {
	var g domain.NodeGroup
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.NodeIDs, &g.CreatedAt); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) AddGroup(ctx context.Context, g *domain.NodeGroup) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	ids := g.NodeIDs
	if ids == nil {
		ids = []int64{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO node_groups (name, description, node_ids, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		g.Name, g.Description, ids, g.CreatedAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id int64) (*domain.NodeGroup, error) {
	g, err := scanGroup(s.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM node_groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.NodeGroup, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+groupCols+` FROM node_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	var out []domain.NodeGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// ---- APIStore ----

const apiCols = `id, name, method, uri, params, description, created_at`

func scanAPI(row pgx.Row) (*domain.APIDefinition, error) {
	var a domain.APIDefinition
	var params []byte
	if err := row.Scan(&a.ID, &a.Name, &a.Method, &a.URI, &params, &a.Description, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &a.Params); err != nil {
		return nil, fmt.Errorf("decode params for api %d: %w", a.ID, err)
	}
	return &a, nil
}

func (s *Store) AddAPI(ctx context.Context, a *domain.APIDefinition) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	params := a.Params
	if params == nil {
		params = []domain.ParamDef{}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO api_definitions (name, method, uri, params, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		a.Name, a.Method, a.URI, b, a.Description, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert api: %w", err)
	}
	return nil
}

func (s *Store) GetAPI(ctx context.Context, id int64) (*domain.APIDefinition, error) {
	a, err := scanAPI(s.pool.QueryRow(ctx, `SELECT `+apiCols+` FROM api_definitions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api: %w", err)
	}
	return a, nil
}

func (s *Store) ListAPIs(ctx context.Context) ([]domain.APIDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+apiCols+` FROM api_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list apis: %w", err)
	}
	defer rows.Close()
	var out []domain.APIDefinition
	for rows.Next() {
		a, err := scanAPI(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ---- TestStore ----

const testCols = `id, name, api_id, target_kind, target_id, interval_seconds,
       alert_threshold_ms, tags, last_params, created_at`

func scanTest(row pgx.Row) (*domain.SyntheticTest, error) {
	var t domain.SyntheticTest
	var kind string
	var params []byte
	if err := row.Scan(&t.ID, &t.Name, &t.APIID, &kind, &t.Target.ID, &t.IntervalSeconds,
		&t.AlertThresholdMs, &t.Tags, &params, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Target.Kind = domain.TargetKind(kind)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.LastParams); err != nil {
			return nil, fmt.Errorf("decode last params for test %d: %w", t.ID, err)
		}
	}
	return &t, nil
}

func (s *Store) AddTest(ctx context.Context, t *domain.SyntheticTest) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO synthetic_tests
		   (name, api_id, target_kind, target_id, interval_seconds, alert_threshold_ms, tags, last_params, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		t.Name, t.APIID, string(t.Target.Kind), t.Target.ID, t.IntervalSeconds,
		t.AlertThresholdMs, tags, t.LastParams.Encode(), t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	return nil
}

func (s *Store) GetTest(ctx context.Context, id int64) (*domain.SyntheticTest, error) {
	t, err := scanTest(s.pool.QueryRow(ctx, `SELECT `+testCols+` FROM synthetic_tests WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test: %w", err)
	}
	return t, nil
}

func (s *Store) ListTests(ctx context.Context) ([]domain.SyntheticTest, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+testCols+` FROM synthetic_tests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()
	var out []domain.SyntheticTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) SetLastParams(ctx context.Context, id int64, p domain.Parameters) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE synthetic_tests SET last_params = $2 WHERE id = $1`, id, p.Encode())
	if err != nil {
		return fmt.Errorf("set last params: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "test", ID: id}
	}
	return nil
}

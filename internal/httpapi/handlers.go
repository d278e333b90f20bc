package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/alert"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

// ---- nodes ----

type nodePayload struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Description string `json:"description"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var p nodePayload
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	n := &domain.Node{Name: p.Name, Host: p.Host, Port: p.Port, Description: p.Description}
	if err := n.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Catalog.AddNode(r.Context(), n); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("added_node", zap.Int64("node_id", n.ID), zap.String("host", n.Host), zap.Int("port", n.Port))
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	ns, err := s.Catalog.ListNodes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.Catalog.GetNode(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if n == nil {
		s.writeError(w, r, &domain.NotFoundError{Kind: "node", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleCheckNode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.Health.Check(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleLatestHealth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h, err := s.Health.Latest(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if h == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no health result cached for node"})
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// ---- groups ----

type groupPayload struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	NodeIDs     []int64 `json:"node_ids"`
}

func (s *Server) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	var p groupPayload
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	g := &domain.NodeGroup{Name: p.Name, Description: p.Description, NodeIDs: p.NodeIDs}
	if err := g.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, id := range g.NodeIDs {
		n, err := s.Catalog.GetNode(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if n == nil {
			s.writeError(w, r, &domain.ValidationError{Field: "node_ids", Reason: fmt.Sprintf("node %d does not exist", id)})
			return
		}
	}
	if err := s.Catalog.AddGroup(r.Context(), g); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("added_group", zap.Int64("group_id", g.ID), zap.Int("members", len(g.NodeIDs)))
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	gs, err := s.Catalog.ListGroups(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

// ---- api definitions ----

type apiPayload struct {
	Name        string            `json:"name"`
	Method      string            `json:"method"`
	URI         string            `json:"uri"`
	Params      []domain.ParamDef `json:"params"`
	Description string            `json:"description"`
}

func (s *Server) handleAddAPI(w http.ResponseWriter, r *http.Request) {
	var p apiPayload
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	a := &domain.APIDefinition{Name: p.Name, Method: p.Method, URI: p.URI, Params: p.Params, Description: p.Description}
	if err := a.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Catalog.AddAPI(r.Context(), a); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("added_api", zap.Int64("api_id", a.ID), zap.String("method", a.Method), zap.String("uri", a.URI))
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAPIs(w http.ResponseWriter, r *http.Request) {
	as, err := s.Catalog.ListAPIs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, as)
}

// ---- synthetic tests ----

type testPayload struct {
	Name             string            `json:"name"`
	APIID            int64             `json:"api_id"`
	Target           domain.Target     `json:"target"`
	IntervalSeconds  int               `json:"interval_seconds"`
	AlertThresholdMs int64             `json:"alert_threshold_ms"`
	Tags             []string          `json:"tags"`
	Params           domain.Parameters `json:"params"`
}

func (s *Server) handleAddTest(w http.ResponseWriter, r *http.Request) {
	var p testPayload
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	t := &domain.SyntheticTest{
		Name:             p.Name,
		APIID:            p.APIID,
		Target:           p.Target,
		IntervalSeconds:  p.IntervalSeconds,
		AlertThresholdMs: p.AlertThresholdMs,
		Tags:             p.Tags,
		LastParams:       p.Params,
	}
	if err := t.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	api, err := s.Catalog.GetAPI(ctx, t.APIID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if api == nil {
		s.writeError(w, r, &domain.ValidationError{Field: "api_id", Reason: fmt.Sprintf("api %d does not exist", t.APIID)})
		return
	}
	if len(t.LastParams) > 0 {
		if err := api.ValidateParams(t.LastParams); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	if err := s.targetExists(r, t.Target); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Catalog.AddTest(ctx, t); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("added_test",
		zap.Int64("test_id", t.ID),
		zap.String("target_kind", string(t.Target.Kind)),
		zap.Int64("target_id", t.Target.ID),
		zap.Int("interval_s", t.IntervalSeconds),
	)
	if s.OnTestsChanged != nil {
		s.OnTestsChanged(ctx)
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) targetExists(r *http.Request, t domain.Target) error {
	var (
		found bool
		err   error
	)
	switch t.Kind {
	case domain.TargetNode:
		var n *domain.Node
		n, err = s.Catalog.GetNode(r.Context(), t.ID)
		found = n != nil
	case domain.TargetGroup:
		var g *domain.NodeGroup
		g, err = s.Catalog.GetGroup(r.Context(), t.ID)
		found = g != nil
	}
	if err != nil {
		return err
	}
	if !found {
		return &domain.ValidationError{Field: "target", Reason: fmt.Sprintf("%s %d does not exist", t.Kind, t.ID)}
	}
	return nil
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	ts, err := s.Catalog.ListTests(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

type executePayload struct {
	Params domain.Parameters `json:"params"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p executePayload
	if r.ContentLength != 0 {
		if err := decode(r, &p); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	rep, err := s.Executor.Execute(r.Context(), id, p.Params)
	if err != nil && rep != nil {
		// outcomes were produced but not all were recorded
		s.Logger.Error("execute_persist_failed", zap.Int64("test_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "history write failed", "report": rep})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ---- history and alerts ----

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func parseHistoryFilter(r *http.Request) (domain.HistoryFilter, error) {
	q := r.URL.Query()
	f := domain.HistoryFilter{
		TestName:  strings.TrimSpace(q.Get("test_name")),
		NodeName:  strings.TrimSpace(q.Get("node_name")),
		GroupName: strings.TrimSpace(q.Get("group")),
		TagName:   strings.TrimSpace(q.Get("tag")),
		Limit:     defaultHistoryLimit,
	}
	ints := []struct {
		key string
		dst *int64
	}{{"test_id", &f.TestID}, {"node_id", &f.NodeID}}
	for _, p := range ints {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return f, &domain.ValidationError{Field: p.key, Reason: "must be a non-negative integer"}
			}
			*p.dst = n
		}
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, &domain.ValidationError{Field: "success", Reason: "must be true or false"}
		}
		f.Success = &b
	}
	times := []struct {
		key string
		dst *time.Time
	}{{"from", &f.From}, {"to", &f.To}}
	for _, p := range times {
		if v := q.Get(p.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, &domain.ValidationError{Field: p.key, Reason: "must be RFC3339"}
			}
			*p.dst = t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		f.Limit = min(n, maxHistoryLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &domain.ValidationError{Field: "offset", Reason: "must be a non-negative integer"}
		}
		f.Offset = n
	}
	return f, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, err := parseHistoryFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, total, err := s.History.Search(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
		"items":  rows,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	window, _ := alert.ParseWindow(r.URL.Query().Get("window"))
	alerts, err := s.Alerts.Evaluate(r.Context(), window)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window": window,
		"count":  len(alerts),
		"alerts": alerts,
	})
}

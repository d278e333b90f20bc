package domain

import (
	"net/http"
	"strings"
)

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func (n *Node) Validate() error {
	n.Host = strings.TrimSpace(n.Host)
	if n.Host == "" {
		return invalid("host", "required")
	}
	if n.Port < 1 || n.Port > 65535 {
		return invalid("port", "must be 1-65535, got %d", n.Port)
	}
	if strings.TrimSpace(n.Name) == "" {
		n.Name = n.Host
	}
	if n.Status == "" {
		n.Status = NodeWarning
	}
	return nil
}

// Validate normalizes the member list (duplicates dropped, order kept).
// Member existence is checked by the caller against the node store.
func (g *NodeGroup) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return invalid("name", "required")
	}
	seen := make(map[int64]bool, len(g.NodeIDs))
	ids := make([]int64, 0, len(g.NodeIDs))
	for _, id := range g.NodeIDs {
		if id <= 0 {
			return invalid("node_ids", "bad node id %d", id)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	g.NodeIDs = ids
	return nil
}

func (a *APIDefinition) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name", "required")
	}
	a.Method = strings.ToUpper(strings.TrimSpace(a.Method))
	if !allowedMethods[a.Method] {
		return invalid("method", "unsupported %q", a.Method)
	}
	if !strings.HasPrefix(a.URI, "/") {
		return invalid("uri", "must start with /")
	}
	seen := map[string]bool{}
	for _, p := range a.Params {
		if p.Name == "" {
			return invalid("params", "empty name")
		}
		if seen[p.Name] {
			return invalid("params", "duplicate %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case ParamString, ParamNumber, ParamBoolean, ParamJSON:
		default:
			return invalid("params."+p.Name, "unknown type %q", p.Type)
		}
	}
	for _, name := range PathParams(a.URI) {
		if !seen[name] {
			return invalid("uri", "placeholder {%s} is not declared", name)
		}
	}
	return nil
}

func (t *SyntheticTest) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return invalid("name", "required")
	}
	if t.APIID <= 0 {
		return invalid("api_id", "required")
	}
	if t.Target.Kind != TargetNode && t.Target.Kind != TargetGroup {
		return invalid("target.kind", "must be node or group")
	}
	if t.Target.ID <= 0 {
		return invalid("target.id", "required")
	}
	if t.IntervalSeconds < MinIntervalSeconds {
		return invalid("interval_seconds", "must be >= %d", MinIntervalSeconds)
	}
	if t.AlertThresholdMs < 0 {
		return invalid("alert_threshold_ms", "must be >= 0")
	}
	return nil
}

// PathParams lists the "{name}" placeholders of a URI template in order.
func PathParams(uri string) []string {
	var out []string
	for {
		i := strings.IndexByte(uri, '{')
		if i < 0 {
			return out
		}
		j := strings.IndexByte(uri[i:], '}')
		if j < 0 {
			return out
		}
		out = append(out, uri[i+1:i+j])
		uri = uri[i+j+1:]
	}
}

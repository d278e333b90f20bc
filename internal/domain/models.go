package domain

import "time"

type NodeStatus string

const (
	NodeHealthy NodeStatus = "healthy"
	NodeWarning NodeStatus = "warning"
	NodeError   NodeStatus = "error"
)

// Node is a monitored host:port. Status is a cached classification from the
// last health check and may be stale between checks.
type Node struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Host        string     `json:"host"`
	Port        int        `json:"port"`
	Description string     `json:"description,omitempty"`
	Status      NodeStatus `json:"status"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type NodeGroup struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	NodeIDs     []int64   `json:"node_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamJSON    ParamType = "json"
)

type ParamDef struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
}

// APIDefinition describes an HTTP call that can be made against any node.
// URI is a path template; "{name}" segments are filled from parameters.
type APIDefinition struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Method      string     `json:"method"`
	URI         string     `json:"uri"`
	Params      []ParamDef `json:"params"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Param returns the declared parameter with the given name.
func (a APIDefinition) Param(name string) (ParamDef, bool) {
	for _, p := range a.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamDef{}, false
}

type TargetKind string

const (
	TargetNode  TargetKind = "node"
	TargetGroup TargetKind = "group"
)

type Target struct {
	Kind TargetKind `json:"kind"`
	ID   int64      `json:"id"`
}

const MinIntervalSeconds = 10

type SyntheticTest struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	APIID            int64      `json:"api_id"`
	Target           Target     `json:"target"`
	IntervalSeconds  int        `json:"interval_seconds"`
	AlertThresholdMs int64      `json:"alert_threshold_ms"`
	Tags             []string   `json:"tags,omitempty"`
	LastParams       Parameters `json:"last_params,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

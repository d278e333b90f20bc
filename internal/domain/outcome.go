package domain

import "time"

// ExecutionOutcome is one immutable record of a single API invocation
// against a single node. StatusCode is 0 when the call never completed.
type ExecutionOutcome struct {
	ID             string    `json:"id"`
	CycleID        string    `json:"cycle_id"`
	TestID         int64     `json:"test_id"`
	NodeID         int64     `json:"node_id"`
	StatusCode     int       `json:"status_code"`
	Success        bool      `json:"success"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Input          string    `json:"input"`
	Output         string    `json:"output"`
	ExecutedAt     time.Time `json:"executed_at"`
}

type NodeOutcome struct {
	NodeName string           `json:"node_name"`
	Outcome  ExecutionOutcome `json:"outcome"`
}

// ExecutionReport aggregates one execution cycle. Outcomes follow the
// resolver's node order.
type ExecutionReport struct {
	CycleID    string        `json:"cycle_id"`
	TestID     int64         `json:"test_id"`
	TestName   string        `json:"test_name"`
	ExecutedAt time.Time     `json:"executed_at"`
	State      CycleState    `json:"state"`
	Outcomes   []NodeOutcome `json:"outcomes"`
	Total      int           `json:"total"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Persisted  bool          `json:"persisted"`
	PersistErr string        `json:"persist_error,omitempty"`
}

type CycleState string

const (
	CycleResolving   CycleState = "resolving"
	CycleDispatching CycleState = "dispatching"
	CycleRecording   CycleState = "recording"
	CycleCompleted   CycleState = "completed"
	CycleFailed      CycleState = "failed"
)

// HistoryFilter narrows a history search. Substring filters match
// case-insensitively; zero values mean "no filter".
type HistoryFilter struct {
	TestID    int64
	TestName  string
	NodeID    int64
	NodeName  string
	GroupName string
	TagName   string
	Success   *bool
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// HistoryRow is an outcome joined with display fields of its test, node and
// API at read time. Fields are empty if the referenced record is gone.
type HistoryRow struct {
	ExecutionOutcome
	TestName         string `json:"test_name"`
	AlertThresholdMs int64  `json:"alert_threshold_ms"`
	NodeName         string `json:"node_name"`
	NodeHost         string `json:"node_host"`
	NodePort         int    `json:"node_port"`
	APIName          string `json:"api_name"`
	APIMethod        string `json:"api_method"`
	APIURI           string `json:"api_uri"`
}

type AlertReason string

const (
	AlertSlow   AlertReason = "threshold_exceeded"
	AlertFailed AlertReason = "failed"
)

// Alert is a view over a history row; it is never stored.
type Alert struct {
	OutcomeID        string         `json:"outcome_id"`
	TestID           int64          `json:"test_id"`
	TestName         string         `json:"test_name"`
	NodeID           int64          `json:"node_id"`
	NodeName         string         `json:"node_name"`
	APIName          string         `json:"api_name"`
	APIMethod        string         `json:"api_method"`
	APIURI           string         `json:"api_uri"`
	StatusCode       int            `json:"status_code"`
	Success          bool           `json:"success"`
	ResponseTimeMs   int64          `json:"response_time_ms"`
	AlertThresholdMs int64          `json:"alert_threshold_ms"`
	Reason           AlertReason    `json:"reason"`
	Params           map[string]any `json:"params"`
	ExecutedAt       time.Time      `json:"executed_at"`
}

// NodeHealth is the result of a single node health check.
type NodeHealth struct {
	NodeID         int64      `json:"node_id"`
	Success        bool       `json:"success"`
	StatusCode     int        `json:"status_code,omitempty"`
	ResponseTimeMs int64      `json:"response_time_ms"`
	CheckType      string     `json:"check_type"`
	Status         NodeStatus `json:"status"`
	Message        string     `json:"message,omitempty"`
	CheckedAt      time.Time  `json:"checked_at"`
}

package probe

import (
	"context"
	"regexp"
	"strings"
)

type CheckType string

const (
	CheckIP  CheckType = "ip"
	CheckURL CheckType = "url"
)

// Result is the outcome of a single probe.
//
// ResponseTimeMs is wall-clock time around the request and is set on
// failures too. StatusCode is 0 for transport errors and timeouts.
type Result struct {
	Success        bool      `json:"success"`
	StatusCode     int       `json:"status_code,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Message        string    `json:"message,omitempty"`
	CheckType      CheckType `json:"check_type"`
}

// Prober checks reachability of host:port.
type Prober interface {
	Probe(ctx context.Context, host string, port int) Result
}

var (
	ipv4Pattern = regexp.MustCompile(`^((25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])\.){3}(25[0-5]|2[0-4][0-9]|1[0-9]{2}|[1-9]?[0-9])$`)
	ipv6Pattern = regexp.MustCompile(`^[0-9a-fA-F:]*:[0-9a-fA-F:.]*$`)
)

// Classify reports CheckIP for a dotted-quad IPv4 literal or anything that
// looks like colon-hex IPv6, and CheckURL for everything else.
func Classify(host string) CheckType {
	h := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(host), "["), "]")
	if ipv4Pattern.MatchString(h) || ipv6Pattern.MatchString(h) {
		return CheckIP
	}
	return CheckURL
}

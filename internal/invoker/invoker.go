// Package invoker performs a configured API call against a node.
package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

const defaultMaxBody = 1 << 20

// Result of one invocation. Payload holds the response body on any HTTP
// response, or {"message": ...} when the call never completed.
type Result struct {
	Success        bool            `json:"success"`
	StatusCode     int             `json:"status_code"`
	ResponseTimeMs int64           `json:"response_time_ms"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type Invoker interface {
	Invoke(ctx context.Context, api domain.APIDefinition, node domain.Node, params domain.Parameters) Result
}

// HTTPInvoker issues requests over plain HTTP. Timeouts come from Client and
// the caller's context only.
type HTTPInvoker struct {
	Client  *http.Client
	Scheme  string
	MaxBody int64
}

func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		Client:  &http.Client{Timeout: timeout},
		Scheme:  "http",
		MaxBody: defaultMaxBody,
	}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, api domain.APIDefinition, node domain.Node, params domain.Parameters) Result {
	req, err := h.build(ctx, api, node, params)
	if err != nil {
		return failure(0, err)
	}

	start := time.Now()
	resp, err := h.Client.Do(req)
	if err != nil {
		return failure(time.Since(start).Milliseconds(), err)
	}
	defer resp.Body.Close()

	limit := h.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return failure(elapsed, fmt.Errorf("read body: %w", err))
	}

	res := Result{
		Success:        resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
		Payload:        asJSON(body),
	}
	if !res.Success {
		res.Error = resp.Status
	}
	return res
}

func failure(elapsed int64, err error) Result {
	msg, _ := json.Marshal(map[string]string{"message": err.Error()})
	return Result{ResponseTimeMs: elapsed, Payload: msg, Error: err.Error()}
}

// asJSON keeps a JSON body as is and wraps anything else as a JSON string.
func asJSON(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(string(body))
	return b
}

// build fills "{name}" placeholders, then sends the remaining parameters as
// the query string for GET, HEAD and DELETE, or as a JSON object body.
func (h *HTTPInvoker) build(ctx context.Context, api domain.APIDefinition, node domain.Node, params domain.Parameters) (*http.Request, error) {
	path := api.URI
	used := map[string]bool{}
	for _, name := range domain.PathParams(api.URI) {
		v, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("missing path parameter %q", name)
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(v.Text()))
		used[name] = true
	}

	scheme := h.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := strings.TrimSuffix(strings.TrimPrefix(node.Host, "["), "]")
	u, err := url.Parse(scheme + "://" + net.JoinHostPort(host, strconv.Itoa(node.Port)) + path)
	if err != nil {
		return nil, fmt.Errorf("build url: %w", err)
	}

	var body io.Reader
	switch api.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		q := u.Query()
		for _, name := range params.Names() {
			if !used[name] {
				q.Set(name, params[name].Text())
			}
		}
		u.RawQuery = q.Encode()
	default:
		rest := map[string]any{}
		for _, name := range params.Names() {
			if !used[name] {
				rest[name] = params[name].Any()
			}
		}
		if len(rest) > 0 {
			b, err := json.Marshal(rest)
			if err != nil {
				return nil, fmt.Errorf("encode body: %w", err)
			}
			body = bytes.NewReader(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, api.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

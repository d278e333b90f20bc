package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout    = 5000 * time.Millisecond
	DefaultHealthPath = "/health"
)

// HealthProbe sends HEAD to IP-classified hosts and GET to hostnames, both
// against Path on the node. 2xx is healthy; 404 also counts as healthy since
// it proves the server answered even if it has no health route. There are no
// retries here; wrap with RetryProber if the caller wants them.
type HealthProbe struct {
	Client  *http.Client
	Scheme  string
	Path    string
	Timeout time.Duration

	// Diagnose, when set, resolves hostname targets after a failed probe
	// and appends the DNS class to the message.
	Diagnose bool
}

func NewHealthProbe(timeout time.Duration, path string) *HealthProbe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if path == "" {
		path = DefaultHealthPath
	}
	return &HealthProbe{
		Client:  &http.Client{},
		Scheme:  "http",
		Path:    path,
		Timeout: timeout,
	}
}

func (p *HealthProbe) Probe(ctx context.Context, host string, port int) Result {
	kind := Classify(host)
	method := http.MethodGet
	if kind == CheckIP {
		method = http.MethodHead
	}

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	target := p.url(host, port)
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return Result{CheckType: kind, Message: err.Error()}
	}

	resp, err := p.Client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		res := Result{CheckType: kind, ResponseTimeMs: elapsed, Message: p.describe(err)}
		if p.Diagnose && kind == CheckURL {
			res.Message = strings.TrimSpace(fmt.Sprintf("%s dns=%s", res.Message, CheckDNS(host).Class))
		}
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	ok := (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotFound
	res := Result{
		Success:        ok,
		StatusCode:     resp.StatusCode,
		ResponseTimeMs: elapsed,
		Message:        resp.Status,
		CheckType:      kind,
	}
	if !ok {
		res.Message = "unexpected status " + resp.Status
	}
	return res
}

func (p *HealthProbe) url(host string, port int) string {
	scheme := p.Scheme
	if scheme == "" {
		scheme = "http"
	}
	h := strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + net.JoinHostPort(h, strconv.Itoa(port)) + path
}

func (p *HealthProbe) describe(err error) string {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Sprintf("timeout after %dms", p.Timeout.Milliseconds())
	}
	return err.Error()
}

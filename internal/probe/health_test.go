package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		host string
		want CheckType
	}{
		{"192.168.1.10", CheckIP},
		{"10.0.0.1", CheckIP},
		{"::1", CheckIP},
		{"[fe80::1]", CheckIP},
		{"2001:db8::8a2e:370:7334", CheckIP},
		{"api.example.com", CheckURL},
		{"localhost", CheckURL},
		{"256.1.1.1", CheckURL},
		{"01.2.3.4", CheckURL},
	}
	for _, c := range cases {
		if got := Classify(c.host); got != c.want {
			t.Fatalf("Classify(%q)=%q want %q", c.host, got, c.want)
		}
	}
}

// serve starts a test server and returns its host and port.
func serve(t *testing.T, h http.HandlerFunc) (string, int) {
	t.Helper()
	s := httptest.NewServer(h)
	t.Cleanup(s.Close)
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(s.URL, "http://"))
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func TestHealthProbe_IPUsesHEAD(t *testing.T) {
	var mu sync.Mutex
	var method, path string
	host, port := serve(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method, path = r.Method, r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	p := NewHealthProbe(2*time.Second, "/health")
	out := p.Probe(context.Background(), host, port)
	if !out.Success || out.StatusCode != 200 {
		t.Fatalf("want success, got %+v", out)
	}
	if out.CheckType != CheckIP {
		t.Fatalf("want ip check, got %q", out.CheckType)
	}
	if out.ResponseTimeMs < 0 {
		t.Fatalf("response time should be >= 0, got %d", out.ResponseTimeMs)
	}
	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodHead || path != "/health" {
		t.Fatalf("want HEAD /health, got %s %s", method, path)
	}
}

func TestHealthProbe_HostnameUsesGET(t *testing.T) {
	var mu sync.Mutex
	var method string
	_, port := serve(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		method = r.Method
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	p := NewHealthProbe(2*time.Second, "")
	out := p.Probe(context.Background(), "localhost", port)
	if !out.Success {
		t.Fatalf("want success, got %+v", out)
	}
	if out.CheckType != CheckURL {
		t.Fatalf("want url check, got %q", out.CheckType)
	}
	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodGet {
		t.Fatalf("want GET, got %s", method)
	}
}

func TestHealthProbe_404IsSuccess(t *testing.T) {
	host, port := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	out := NewHealthProbe(2*time.Second, "/health").Probe(context.Background(), host, port)
	if !out.Success || out.StatusCode != 404 {
		t.Fatalf("404 should count as success, got %+v", out)
	}
}

func TestHealthProbe_500IsFailure(t *testing.T) {
	host, port := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	out := NewHealthProbe(2*time.Second, "/health").Probe(context.Background(), host, port)
	if out.Success {
		t.Fatalf("500 should fail, got %+v", out)
	}
	if out.StatusCode != 500 || !strings.Contains(out.Message, "500") {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestHealthProbe_TimeoutIsFailure(t *testing.T) {
	host, port := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
		w.WriteHeader(http.StatusOK)
	})
	p := NewHealthProbe(50*time.Millisecond, "/health")
	out := p.Probe(context.Background(), host, port)
	if out.Success {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on timeout, got %d", out.StatusCode)
	}
	if !strings.Contains(out.Message, "timeout") {
		t.Fatalf("want timeout message, got %q", out.Message)
	}
	if out.ResponseTimeMs < 40 {
		t.Fatalf("elapsed time should still be reported, got %d", out.ResponseTimeMs)
	}
}

func TestHealthProbe_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	out := NewHealthProbe(time.Second, "/health").Probe(context.Background(), "127.0.0.1", port)
	if out.Success || out.StatusCode != 0 || out.Message == "" {
		t.Fatalf("want transport failure, got %+v", out)
	}
}

func TestHealthProbe_URLBracketsIPv6(t *testing.T) {
	p := NewHealthProbe(time.Second, "health")
	if got := p.url("::1", 8080); got != "http://[::1]:8080/health" {
		t.Fatalf("url: %s", got)
	}
}

func TestCheckDNS_ShortCircuits(t *testing.T) {
	if s := CheckDNS("http://x"); s.Class != DNSInvalidName {
		t.Fatalf("want INVALID_NAME, got %s", s.Class)
	}
	if s := CheckDNS("10.1.1.1"); s.Class != DNSNotHostname {
		t.Fatalf("want IP_LITERAL, got %s", s.Class)
	}
}

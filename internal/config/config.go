package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr        string // API bind address, e.g. "127.0.0.1:8080" or ":8080" in Docker
	LogDir      string
	LogLevel    string
	DatabaseURL string // empty means in-memory store
	RedisURL    string // empty means in-memory status cache
	StatusTTL   time.Duration

	// node health probe
	ProbeTimeout  time.Duration
	HealthPath    string
	WarnLatency   time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	DNSDiagnose   bool

	// test dispatch
	InvokeTimeout time.Duration
	MaxFanout     int
	CycleSlack    time.Duration

	// background loops
	CheckInterval       time.Duration // node rechecker, 0 disables
	MaxConcurrentChecks int
	SchedulerEnabled    bool
	AlertLimit          int
	AlertPoll           time.Duration
	AlertCooldown       time.Duration
	SlackWebhookURL     string

	// HTTP surface
	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	AllowedOrigins []string
}

// CycleTimeout bounds one synthetic test cycle.
func (c Config) CycleTimeout() time.Duration {
	return c.InvokeTimeout + c.CycleSlack
}

type lookup func(key string) string

// FromEnv returns defaults overlaid by environment variables.
func FromEnv() Config {
	return build(os.Getenv)
}

// Load reads a YAML file keyed by the same names as the environment
// variables. Environment variables win over file values.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	file := make(map[string]string, len(doc))
	for k, v := range doc {
		switch vv := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(vv))
			for _, p := range vv {
				parts = append(parts, fmt.Sprint(p))
			}
			file[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			file[strings.ToUpper(k)] = fmt.Sprint(vv)
		}
	}
	return build(func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return file[key]
	}), nil
}

func build(get lookup) Config {
	return Config{
		Addr:        str(get, "API_ADDR", "127.0.0.1:8080"),
		LogDir:      str(get, "LOG_DIR", "logs"),
		LogLevel:    str(get, "LOG_LEVEL", "info"),
		DatabaseURL: get("DATABASE_URL"),
		RedisURL:    get("REDIS_URL"),
		StatusTTL:   millis(get, "STATUS_TTL_MS", 10*time.Minute),

		ProbeTimeout:  millis(get, "PROBE_TIMEOUT_MS", 5000*time.Millisecond),
		HealthPath:    str(get, "HEALTH_PATH", "/health"),
		WarnLatency:   millis(get, "WARN_LATENCY_MS", 1000*time.Millisecond),
		RetryAttempts: positive(get, "RETRY_ATTEMPTS", 1),
		RetryBackoff:  millis(get, "RETRY_BACKOFF_MS", 300*time.Millisecond),
		DNSDiagnose:   boolean(get, "DNS_DIAGNOSE", false),

		InvokeTimeout: millis(get, "INVOKE_TIMEOUT_MS", 30*time.Second),
		MaxFanout:     positive(get, "MAX_FANOUT", 8),
		CycleSlack:    millis(get, "CYCLE_SLACK_MS", 5*time.Second),

		CheckInterval:       millis(get, "CHECK_INTERVAL_MS", 0),
		MaxConcurrentChecks: positive(get, "MAX_CONCURRENT_CHECKS", 4),
		SchedulerEnabled:    boolean(get, "SCHEDULER_ENABLED", true),
		AlertLimit:          positive(get, "ALERT_LIMIT", 100),
		AlertPoll:           millis(get, "ALERT_POLL_MS", time.Minute),
		AlertCooldown:       millis(get, "ALERT_COOLDOWN_MS", 15*time.Minute),
		SlackWebhookURL:     get("SLACK_WEBHOOK_URL"),

		PublicAPIKeys:  list(get, "PUBLIC_API_KEYS"),
		AdminAPIKeys:   list(get, "ADMIN_API_KEYS"),
		PublicRPM:      positive(get, "PUBLIC_RPM", 60),
		PublicBurst:    positive(get, "PUBLIC_BURST", 20),
		AdminRPM:       positive(get, "ADMIN_RPM", 120),
		AdminBurst:     positive(get, "ADMIN_BURST", 40),
		AllowedOrigins: list(get, "ALLOWED_ORIGINS"),
	}
}

func str(get lookup, key, def string) string {
	if v := strings.TrimSpace(get(key)); v != "" {
		return v
	}
	return def
}

func positive(get lookup, key string, def int) int {
	if v := get(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func millis(get lookup, key string, def time.Duration) time.Duration {
	if v := get(key); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func boolean(get lookup, key string, def bool) bool {
	if v := get(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func list(get lookup, key string) []string {
	var out []string
	for _, p := range strings.Split(get(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

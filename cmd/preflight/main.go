// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/config"
)

type report struct {
	failed bool
}

func (r *report) fail(msg string) { r.failed = true; fmt.Fprintln(os.Stderr, "✖", msg) }
func (r *report) warn(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
func (r *report) ok(msg string)   { fmt.Println("✔", msg) }

func main() {
	var (
		cfg config.Config
		err error
		r   report
	)
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if cfg, err = config.Load(path); err != nil {
			r.fail(err.Error())
			os.Exit(1)
		}
		r.ok("CONFIG_FILE=" + path)
	} else {
		cfg = config.FromEnv()
	}

	checkKeys(&r, cfg)
	checkEngine(&r, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	checkBackends(ctx, &r, cfg)

	if r.failed {
		os.Exit(1)
	}
	r.ok("preflight passed")
}

func checkKeys(r *report, cfg config.Config) {
	if len(cfg.AdminAPIKeys) == 0 {
		r.fail("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		r.warn("PUBLIC_API_KEYS is empty; read routes accept admin keys only.")
	}
	for _, k := range cfg.AdminAPIKeys {
		for _, p := range cfg.PublicAPIKeys {
			if k == p {
				r.fail("a key is listed in both ADMIN_API_KEYS and PUBLIC_API_KEYS.")
			}
		}
	}
	r.ok("API_ADDR=" + cfg.Addr)
	if len(cfg.AllowedOrigins) == 0 {
		r.warn("ALLOWED_ORIGINS empty; CORS allows every origin.")
	} else {
		r.ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
}

func checkEngine(r *report, cfg config.Config) {
	if cfg.MaxFanout > 64 {
		r.warn(fmt.Sprintf("MAX_FANOUT=%d is high; every cycle shares this pool.", cfg.MaxFanout))
	}
	if cfg.WarnLatency >= cfg.ProbeTimeout {
		r.warn("WARN_LATENCY_MS >= PROBE_TIMEOUT_MS; nodes will never be marked warning.")
	}
	if !strings.HasPrefix(cfg.HealthPath, "/") {
		r.fail("HEALTH_PATH must start with '/'.")
	}
	if cfg.SlackWebhookURL != "" {
		if u, err := url.Parse(cfg.SlackWebhookURL); err != nil || u.Scheme != "https" {
			r.fail("SLACK_WEBHOOK_URL must be an https URL.")
		} else {
			r.ok("Slack notifications enabled")
		}
	}
	r.ok(fmt.Sprintf("cycle timeout %s, fan-out %d", cfg.CycleTimeout(), cfg.MaxFanout))
}

func checkBackends(ctx context.Context, r *report, cfg config.Config) {
	if cfg.DatabaseURL == "" {
		r.warn("DATABASE_URL empty; API will use in-memory stores.")
	} else if pool, err := pgxpool.New(ctx, cfg.DatabaseURL); err != nil {
		r.fail("DATABASE_URL invalid: " + err.Error())
	} else {
		if err := pool.Ping(ctx); err != nil {
			r.fail("postgres unreachable: " + err.Error())
		} else {
			r.ok("postgres reachable")
		}
		pool.Close()
	}

	if cfg.RedisURL == "" {
		r.warn("REDIS_URL empty; node health cache is in memory.")
		return
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		r.fail("REDIS_URL invalid: " + err.Error())
		return
	}
	c := goredis.NewClient(opts)
	defer c.Close()
	if err := c.Ping(ctx).Err(); err != nil {
		r.fail("redis unreachable: " + err.Error())
		return
	}
	r.ok("redis reachable")
}

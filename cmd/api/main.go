package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/alert"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/config"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/dispatch"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/httpapi"
	apimw "github.com/nicec2o-sso/sh-dashboard-sub001/internal/httpapi/middleware"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/invoker"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/logging"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/nodehealth"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/notify"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/probe"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo/memory"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo/postgres"
	rc "github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo/redis"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/resolver"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/scheduler"
)

type stores interface {
	repo.Catalog
	repo.HistoryStore
	repo.AlertStore
}

func loadConfig() (config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.Load(path)
	}
	return config.FromEnv(), nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stores: postgres when configured, memory otherwise
	var st stores
	mem := memory.New()
	st = mem
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("db_connect_error", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("db_migrate_error", zap.Error(err))
		}
		st = pg
		logger.Info("store_postgres")
	} else {
		logger.Info("store_memory")
	}

	var cache repo.StatusCache = mem
	if cfg.RedisURL != "" {
		c, err := rc.Open(ctx, cfg.RedisURL, cfg.StatusTTL)
		if err != nil {
			logger.Fatal("redis_connect_error", zap.Error(err))
		}
		defer func() { _ = c.Close() }()
		cache = c
		logger.Info("status_cache_redis")
	}

	// node health
	hp := probe.NewHealthProbe(cfg.ProbeTimeout, cfg.HealthPath)
	hp.Diagnose = cfg.DNSDiagnose
	var prober probe.Prober = hp
	if cfg.RetryAttempts > 1 {
		prober = &probe.RetryProber{Inner: hp, Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}
	}
	health := nodehealth.New(logger, st, cache, prober, cfg.WarnLatency)

	// test execution
	disp := dispatch.New(logger, st, st, resolver.New(st), invoker.NewHTTPInvoker(cfg.InvokeTimeout), st,
		dispatch.Config{MaxFanout: cfg.MaxFanout, CycleTimeout: cfg.CycleTimeout()})
	defer disp.Close()

	evaluator := alert.NewEvaluator(st, logger, cfg.AlertLimit)

	api := httpapi.NewServer(logger, st, st, disp, health, evaluator)

	if cfg.SchedulerEnabled {
		runner := scheduler.NewRunner(logger, st, disp)
		api.OnTestsChanged = func(ctx context.Context) {
			if err := runner.Sync(ctx); err != nil {
				logger.Warn("runner_sync_error", zap.Error(err))
			}
		}
		go runner.Run(ctx, 5*time.Minute)
	}

	rech := scheduler.NewRechecker(logger, st, health, cfg.CheckInterval, cfg.ProbeTimeout*time.Duration(max(cfg.RetryAttempts, 1))+cfg.RetryBackoff, cfg.MaxConcurrentChecks)
	go rech.Run(ctx)

	notifier := notify.Multi{notify.Log{Logger: logger}}
	if slack := notify.NewSlack(cfg.SlackWebhookURL); slack != nil {
		notifier = append(notifier, slack)
		logger.Info("alerter_slack_enabled")
	}
	al := scheduler.NewAlerter(logger, st, st, notifier, scheduler.AlerterConfig{
		AlertOnRecovery: true,
		Cooldown:        cfg.AlertCooldown,
		PollInterval:    cfg.AlertPoll,
		Lookback:        time.Hour,
	})
	go func() { _ = al.Run(ctx) }()

	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), cfg.CycleTimeout())
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_error", zap.Error(err))
	}
	logger.Info("api_stopped")
}

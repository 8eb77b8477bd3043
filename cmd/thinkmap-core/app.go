package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lycosa9527/MindGraph-sub001/config"
	"github.com/lycosa9527/MindGraph-sub001/diagramcache"
	"github.com/lycosa9527/MindGraph-sub001/internal/cache"
	"github.com/lycosa9527/MindGraph-sub001/internal/database"
	"github.com/lycosa9527/MindGraph-sub001/llm"
	"github.com/lycosa9527/MindGraph-sub001/llm/balancer"
	"github.com/lycosa9527/MindGraph-sub001/llm/circuitbreaker"
	"github.com/lycosa9527/MindGraph-sub001/llm/providers/ark"
	"github.com/lycosa9527/MindGraph-sub001/llm/providers/deepseek"
	"github.com/lycosa9527/MindGraph-sub001/llm/providers/qwen"
	"github.com/lycosa9527/MindGraph-sub001/llm/ratelimit"
	"github.com/lycosa9527/MindGraph-sub001/llm/retry"
	"github.com/lycosa9527/MindGraph-sub001/llm/tokentracker"
)

// app owns every long-lived component assembled at startup: the LLM
// core, the diagram cache, and the HTTP listeners exposing health and
// metrics.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	redisCache *cache.Manager
	pm         *database.PoolManager
	core       *llm.Core
	diagrams   *diagramcache.Cache
	tracker    *tokentracker.Tracker

	httpServer    *http.Server
	metricsServer *http.Server
}

func newApp(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (*app, error) {
	if err := tokentracker.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate token_usage: %w", err)
	}
	if err := diagramcache.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate diagrams: %w", err)
	}

	redisCache, err := cache.NewManager(cache.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DefaultTTL:   5 * time.Minute,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	pm, err := database.NewPoolManager(db, database.PoolConfig{
		MaxOpenConns:    cfg.Database.PoolSize + cfg.Database.MaxOverflow,
		MaxIdleConns:    cfg.Database.PoolSize,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}

	pool := llm.NewClientPool(map[string]llm.ProviderClient{
		"qwen":         qwen.New(qwen.Config{APIKey: cfg.Providers.QwenAPIKey, Model: cfg.Providers.QwenModel}, logger),
		"deepseek":     deepseek.New(deepseek.Config{APIKey: cfg.Providers.DeepseekAPIKey, Model: cfg.Providers.DeepseekModel}, logger),
		"ark-deepseek": ark.NewDeepseek(ark.Config{APIKey: cfg.Providers.ArkAPIKey, Model: cfg.Providers.ArkDeepseekModel}, logger),
		"ark-kimi":     ark.NewKimi(ark.Config{APIKey: cfg.Providers.ArkAPIKey, Model: cfg.Providers.ArkKimiModel}, logger),
		"ark-doubao":   ark.NewDoubao(ark.Config{APIKey: cfg.Providers.ArkAPIKey, Model: cfg.Providers.ArkDoubaoModel}, logger),
	})

	limiters := ratelimit.NewRegistry(redisCache.Raw(), logger, rateLimitConfigFn(cfg.RateLimit))

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), logger)

	table := balancer.DefaultTable()
	if weights := cfg.LoadBalance.ParsedWeights(); weights != nil {
		applyWeightOverrides(table, weights)
	}
	bal := balancer.New(table, balancer.Policy(cfg.LoadBalance.Strategy), limiters, logger)
	bal.RateLimitAware = cfg.LoadBalance.RateLimitingEnabled

	var tracker *tokentracker.Tracker
	if cfg.TokenTracker.Enabled {
		tracker = tokentracker.New(pm, tokentracker.Config{
			BatchSize:     cfg.TokenTracker.BatchSize,
			BatchInterval: cfg.TokenTracker.BatchInterval,
			MaxQueueSize:  cfg.TokenTracker.MaxBufferSize,
		}, tokentracker.DefaultPricingTable(), logger)
	}

	core := llm.NewCore(llm.CoreConfig{
		Pool:        pool,
		Balancer:    bal,
		Breakers:    breakers,
		Limiters:    limiters,
		Tracker:     tracker,
		RetryPolicy: retry.DefaultPolicy(),
		Timeouts:    llm.DefaultTimeouts(),
		Logger:      logger,
	})

	diagrams := diagramcache.New(redisCache, db, diagramcache.Config{
		CacheTTL:      cfg.DiagramCache.CacheTTL,
		SyncInterval:  cfg.DiagramCache.SyncInterval,
		SyncBatchSize: cfg.DiagramCache.SyncBatchSize,
		MaxPerUser:    cfg.DiagramCache.MaxPerUser,
		MaxSpecSizeKB: cfg.DiagramCache.MaxSpecSizeKB,
	}, logger)

	a := &app{
		cfg: cfg, logger: logger,
		redisCache: redisCache, pm: pm,
		core: core, diagrams: diagrams, tracker: tracker,
	}
	a.buildServers()
	return a, nil
}

func rateLimitConfigFn(rl config.RateLimitConfig) func(scope string) ratelimit.Config {
	return func(scope string) ratelimit.Config {
		qpm, concurrent := rl.DashscopeQPMLimit, rl.DashscopeConcurrentLimit
		switch scope {
		case "ark-kimi":
			qpm, concurrent = rl.KimiQPMLimit, rl.KimiConcurrentLimit
		case "ark-doubao":
			qpm, concurrent = rl.DoubaoQPMLimit, rl.DoubaoConcurrentLimit
		case "ark-deepseek":
			qpm, concurrent = rl.DeepseekVolcengineQPMLimit, rl.DeepseekVolcengineConcurrentLimit
		}
		cfg := ratelimit.DefaultConfig()
		cfg.QPMLimit = qpm
		cfg.ConcurrentLimit = concurrent
		return cfg
	}
}

func applyWeightOverrides(table map[string][]balancer.Candidate, weights map[string]int) {
	for _, candidates := range table {
		for i := range candidates {
			if w, ok := weights[candidates[i].Physical]; ok {
				candidates[i].Weight = w
			}
		}
	}
}

func (a *app) buildServers() {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	a.httpServer = &http.Server{Addr: fmt.Sprintf(":%d", a.cfg.Server.HTTPPort), Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	a.metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", a.cfg.Server.MetricsPort), Handler: metricsMux}
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := a.redisCache.Ping(ctx); err != nil {
		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := a.pm.Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Run starts the HTTP and metrics listeners and blocks until a
// shutdown signal arrives.
func (a *app) Run() error {
	errCh := make(chan error, 2)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		a.logger.Info("metrics server listening", zap.String("addr", a.metricsServer.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.httpServer.Shutdown(ctx)
	a.metricsServer.Shutdown(ctx)
	return nil
}

// Close drains background workers (token tracker batches, diagram
// cache reconciliation) before the process exits.
func (a *app) Close() {
	a.diagrams.Flush(context.Background())
	a.diagrams.Close()
	if a.tracker != nil {
		a.tracker.Close()
	}
	a.redisCache.Close()
	a.pm.Close()
}

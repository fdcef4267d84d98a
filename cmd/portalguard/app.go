package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnykmshr/portalguard/internal/config"
	"github.com/vnykmshr/portalguard/pkg/metrics"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/transport"
	"github.com/vnykmshr/portalguard/pkg/scheduling/scheduler"
	"github.com/vnykmshr/portalguard/pkg/scheduling/workerpool"
)

// userHeader carries the authenticated portal user, set by the session layer
// in front of the upload endpoint.
const userHeader = "X-Portal-User"

const healthTaskID = "store-health"

// app holds every long-lived component of the process.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	redis    redis.UniversalClient
	promReg  *prometheus.Registry
	metrics  *metrics.Registry
	policies *policy.Registry
	limiter  *limiter.Limiter
	hookPool workerpool.Pool
	sched    scheduler.Scheduler
	health   *distributed.HealthProbe
}

func newApp(cfg *config.Config, logger *zap.Logger, rdb redis.UniversalClient, tp trace.TracerProvider) (*app, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.Config{Enabled: true, Registry: promReg})

	store := distributed.Config{
		Redis:   rdb,
		Prefix:  cfg.Store.Prefix,
		Timeout: cfg.Store.Timeout,
		Metrics: m,
	}
	counter, err := distributed.NewWindowCounter(store)
	if err != nil {
		return nil, fmt.Errorf("window counter: %w", err)
	}
	blocks, err := distributed.NewBlockList(store)
	if err != nil {
		return nil, fmt.Errorf("block list: %w", err)
	}
	health, err := distributed.NewHealthProbe(store, logger)
	if err != nil {
		return nil, fmt.Errorf("health probe: %w", err)
	}

	policies, err := policy.NewRegistry(portalPolicies(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("policies: %w", err)
	}

	hookPool := workerpool.NewWithConfig(workerpool.Config{
		Name:        "hooks",
		WorkerCount: cfg.Hooks.Workers,
		QueueSize:   cfg.Hooks.QueueSize,
		Metrics:     m,
	})
	hooks := limiter.NewHookDispatcher(limiter.HookConfig{
		Pool:    hookPool,
		Logger:  logger,
		Metrics: m,
		Timeout: cfg.Hooks.Timeout,
	})

	l, err := limiter.New(limiter.Config{
		Counter:        counter,
		Blocks:         blocks,
		Deriver:        cfg.Deriver(),
		Policies:       policies,
		Hooks:          hooks,
		Logger:         logger,
		Metrics:        m,
		TracerProvider: tp,
	})
	if err != nil {
		<-hookPool.Shutdown()
		return nil, fmt.Errorf("limiter: %w", err)
	}

	sched := scheduler.NewWithConfig(scheduler.Config{Logger: logger, TickInterval: 250 * time.Millisecond})
	if err := sched.ScheduleCron(healthTaskID, cfg.Health.Schedule, health); err != nil {
		<-hookPool.Shutdown()
		return nil, fmt.Errorf("schedule health probe: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		redis:    rdb,
		promReg:  promReg,
		metrics:  m,
		policies: policies,
		limiter:  l,
		hookPool: hookPool,
		sched:    sched,
		health:   health,
	}, nil
}

// portalPolicies attaches the portal's key functions and alert hooks to the
// configured policies.
func portalPolicies(cfg *config.Config, logger *zap.Logger) []policy.Config {
	alerts := logger.Named("alerts")
	configs := cfg.PolicyConfigs()
	for i := range configs {
		switch configs[i].Name {
		case policy.Auth, policy.PasswordReset:
			configs[i].OnExceeded = func(_ context.Context, ev policy.Event) {
				alerts.Warn("credential endpoint rate limit exceeded",
					zap.String("event_id", ev.ID),
					zap.String("policy", ev.Policy),
					zap.String("key", ev.Key),
					zap.Int64("count", ev.Count),
					zap.Bool("blocked", ev.Blocked),
					zap.Time("block_until", ev.BlockUntil),
				)
			}
		case policy.Upload:
			configs[i].KeyFunc = func(r keys.Request) string {
				if user := r.Header(userHeader); user != "" {
					return "user:" + user
				}
				return ""
			}
		}
	}
	return configs
}

// start runs the background scheduler and primes the health gauge.
func (a *app) start(ctx context.Context) error {
	_ = a.health.Execute(ctx)
	return a.sched.Start()
}

// close tears components down in reverse order of construction.
func (a *app) close(ctx context.Context) {
	select {
	case <-a.sched.Stop():
	case <-ctx.Done():
		a.logger.Warn("scheduler did not stop in time")
	}

	timeout := a.cfg.Hooks.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	<-a.hookPool.ShutdownWithTimeout(timeout)

	if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		a.logger.Warn("closing redis client", zap.Error(err))
	}
}

func (a *app) portalRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger))

	opts := transport.Options{
		InformationalHeaders: a.cfg.Server.InformationalHeaders,
		Logger:               a.logger,
	}
	guard := func(name string) gin.HandlerFunc {
		return transport.Gin(a.limiter, a.policies.MustGet(name), opts)
	}

	auth := r.Group("/auth")
	auth.POST("/login", guard(policy.Auth), accepted("login"))
	auth.POST("/password-reset", guard(policy.PasswordReset), accepted("password reset"))

	r.POST("/forms/:form", guard(policy.FormSubmit), accepted("form submission"))
	r.POST("/uploads", guard(policy.Upload), accepted("upload"))

	api := r.Group("/api", guard(policy.API))
	api.GET("/announcements", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"announcements": []string{}})
	})
	api.GET("/meetings", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"meetings": []string{}})
	})

	return r
}

func (a *app) adminRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	transport.NewAdminHandler(a.limiter, a.logger).Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{Registry: a.promReg})))
	r.GET("/healthz", func(c *gin.Context) {
		// The portal keeps serving while the store is down.
		store := "up"
		if !a.health.Healthy() {
			store = "down"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "store": store})
	})
	return r
}

// accepted stands in for the business handlers behind each guarded surface.
func accepted(what string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"accepted": what})
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

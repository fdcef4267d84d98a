package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	pgcontext "github.com/vnykmshr/portalguard/pkg/common/context"
	"github.com/vnykmshr/portalguard/pkg/metrics"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
	"github.com/vnykmshr/portalguard/pkg/scheduling/workerpool"
)

// DefaultHookTimeout bounds a single exceeded hook.
const DefaultHookTimeout = 5 * time.Second

// HookDispatcher runs exceeded hooks on a worker pool. Dispatch never blocks:
// when the pool's queue is full the event is dropped and counted.
type HookDispatcher struct {
	pool    workerpool.Pool
	logger  *zap.Logger
	metrics *metrics.Registry
	timeout time.Duration
}

// HookConfig configures a HookDispatcher.
type HookConfig struct {
	Pool    workerpool.Pool
	Logger  *zap.Logger
	Metrics *metrics.Registry
	Timeout time.Duration
}

// NewHookDispatcher creates a dispatcher over config.Pool.
func NewHookDispatcher(config HookConfig) *HookDispatcher {
	if config.Pool == nil {
		panic("limiter: hook dispatcher needs a worker pool")
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHookTimeout
	}
	return &HookDispatcher{
		pool:    config.Pool,
		logger:  config.Logger.Named("hooks"),
		metrics: config.Metrics,
		timeout: config.Timeout,
	}
}

// Dispatch queues hook(ev). The hook gets a context that keeps ctx's values
// but outlives the request. It reports whether the event was queued.
func (h *HookDispatcher) Dispatch(ctx context.Context, hook policy.ExceededFunc, ev policy.Event) bool {
	hctx, cancel := pgcontext.Detached(ctx, h.timeout)

	task := workerpool.TaskFunc(func(taskCtx context.Context) (err error) {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("exceeded hook panicked",
					zap.String("event_id", ev.ID),
					zap.String("policy", ev.Policy),
					zap.Any("panic", r),
				)
				err = fmt.Errorf("exceeded hook panicked: %v", r)
			}
		}()
		// Stop with either the hook timeout or the pool shutting down.
		stop := context.AfterFunc(taskCtx, cancel)
		defer stop()
		hook(hctx, ev)
		return nil
	})

	if err := h.pool.TrySubmit(context.Background(), task); err != nil {
		cancel()
		h.logger.Warn("exceeded hook dropped",
			zap.String("event_id", ev.ID),
			zap.String("policy", ev.Policy),
			zap.Error(err),
		)
		if h.metrics != nil {
			h.metrics.HooksDropped.WithLabelValues(ev.Policy).Inc()
		}
		return false
	}

	if h.metrics != nil {
		h.metrics.HooksDispatched.WithLabelValues(ev.Policy).Inc()
	}
	return true
}

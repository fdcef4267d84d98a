// Package limiter decides whether a request is admitted under a policy. It
// composes key derivation, the shared block list and the shared window counter
// into a single Decision and degrades to allowing requests when the shared
// store is unavailable.
package limiter

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnykmshr/portalguard/pkg/common/validation"
	"github.com/vnykmshr/portalguard/pkg/metrics"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

const (
	module     = "limiter"
	tracerName = "github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
)

// Counter is the fixed-window counter the limiter increments.
type Counter interface {
	Increment(ctx context.Context, policy, identity string, window time.Duration) (distributed.Count, error)
	Peek(ctx context.Context, policy, identity string, window time.Duration) (distributed.Count, error)
	Clear(ctx context.Context, policy, identity string, window time.Duration) error
}

// Blocker is the shared cooldown list.
type Blocker interface {
	IsBlocked(ctx context.Context, policy, identity string) (distributed.BlockState, error)
	Block(ctx context.Context, policy, identity string, d time.Duration) (time.Time, error)
	Clear(ctx context.Context, policy, identity string) error
}

// Config holds the limiter's collaborators. Counter and Blocks are required.
type Config struct {
	Counter Counter
	Blocks  Blocker

	// Deriver resolves identities; defaults to keys.NewDeriver().
	Deriver *keys.Deriver

	// Policies backs the admin operations, which address policies by name.
	Policies *policy.Registry

	// Hooks runs exceeded hooks off the request path. Without it each hook
	// runs in its own goroutine.
	Hooks *HookDispatcher

	Logger         *zap.Logger
	Metrics        *metrics.Registry
	TracerProvider trace.TracerProvider
	Clock          distributed.Clock
}

// Limiter evaluates admission checks. It is safe for concurrent use and holds
// no per-key state of its own.
type Limiter struct {
	counter  Counter
	blocks   Blocker
	deriver  *keys.Deriver
	policies *policy.Registry
	hooks    *HookDispatcher
	logger   *zap.Logger
	metrics  *metrics.Registry
	tracer   trace.Tracer
	clock    distributed.Clock
}

// New creates a Limiter.
func New(config Config) (*Limiter, error) {
	if config.Counter == nil {
		return nil, validation.ValidateNotNil(module, "counter", nil)
	}
	if config.Blocks == nil {
		return nil, validation.ValidateNotNil(module, "blocks", nil)
	}

	l := &Limiter{
		counter:  config.Counter,
		blocks:   config.Blocks,
		deriver:  config.Deriver,
		policies: config.Policies,
		hooks:    config.Hooks,
		logger:   config.Logger,
		metrics:  config.Metrics,
		clock:    config.Clock,
	}
	if l.deriver == nil {
		l.deriver = keys.NewDeriver()
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.Named("ratelimit")
	if l.clock == nil {
		l.clock = wallClock{}
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	l.tracer = tp.Tracer(tracerName)
	return l, nil
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Check decides whether req is admitted under p. It never returns an error:
// store failures resolve to an allowing decision with FailOpen set, or to a
// denial for policies marked FailClosed.
func (l *Limiter) Check(ctx context.Context, req keys.Request, p *policy.Policy) Decision {
	start := time.Now()
	ctx, span := l.tracer.Start(ctx, "ratelimit.Check",
		trace.WithAttributes(attribute.String("ratelimit.policy", p.Name())))
	defer span.End()

	d, outcome := l.check(ctx, span, req, p)

	span.SetAttributes(
		attribute.String("ratelimit.outcome", outcome),
		attribute.Bool("ratelimit.allowed", d.Allowed),
		attribute.Int("ratelimit.remaining", d.Remaining),
	)
	if m := l.metrics; m != nil {
		m.RateLimitChecks.WithLabelValues(p.Name(), outcome).Inc()
		m.RateLimitDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	}
	return d
}

func (l *Limiter) check(ctx context.Context, span trace.Span, req keys.Request, p *policy.Policy) (Decision, string) {
	now := l.clock.Now()
	_, _, windowEnd := distributed.Bounds(now, p.Window())

	d := Decision{
		Limit:     p.MaxRequests(),
		Remaining: p.MaxRequests(),
		ResetAt:   windowEnd,
		Policy:    p.Name(),
	}

	if p.ShouldSkip(req) {
		d.Allowed = true
		d.Skipped = true
		return d, OutcomeSkipped
	}

	d.Key = l.deriver.Derive(req, p.KeyFunc())

	// Only blocking policies ever write block records, so only they pay for
	// the lookup.
	if p.Blocks() {
		state, err := l.blocks.IsBlocked(ctx, p.Name(), d.Key)
		if err != nil {
			return l.storeFailure(span, d, p, "is_blocked", err)
		}
		if state.Blocked {
			d.Remaining = 0
			d.Blocked = true
			d.BlockUntil = state.Until
			return d, OutcomeBlocked
		}
	}

	count, err := l.counter.Increment(ctx, p.Name(), d.Key, p.Window())
	if err != nil {
		return l.storeFailure(span, d, p, "increment", err)
	}

	d.ResetAt = count.WindowEnd
	d.Remaining = count.Remaining(p.MaxRequests())
	d.Allowed = count.Value <= int64(p.MaxRequests())
	if d.Allowed {
		return d, OutcomeAllowed
	}

	outcome := OutcomeDenied
	if p.Blocks() {
		until, err := l.blocks.Block(ctx, p.Name(), d.Key, p.BlockDuration())
		if err != nil {
			// The count is known, so the denial stands; only the cooldown is lost.
			l.logger.Warn("rate limit block not recorded",
				zap.String("policy", p.Name()),
				zap.String("key", d.Key),
				zap.Error(err),
			)
			span.RecordError(err)
		} else {
			d.Blocked = true
			d.BlockUntil = until
			outcome = OutcomeBlocked
			if l.metrics != nil {
				l.metrics.RateLimitBlocks.WithLabelValues(p.Name()).Inc()
			}
		}
	}

	if hook := p.OnExceeded(); hook != nil {
		l.dispatch(ctx, hook, policy.Event{
			ID:         uuid.NewString(),
			Policy:     p.Name(),
			Key:        d.Key,
			Count:      count.Value,
			Limit:      p.MaxRequests(),
			Blocked:    d.Blocked,
			BlockUntil: d.BlockUntil,
			At:         now,
		})
	}
	return d, outcome
}

// storeFailure resolves a store error into a decision and makes it visible to
// operators with exactly one log entry and one metric increment.
func (l *Limiter) storeFailure(span trace.Span, d Decision, p *policy.Policy, operation string, err error) (Decision, string) {
	mode, outcome, msg := "open", OutcomeFailOpen, "rate limiter failing open"
	if p.FailClosed() {
		mode, outcome, msg = "closed", OutcomeFailClosed, "rate limiter failing closed"
		d.Allowed = false
		d.Remaining = 0
	} else {
		d.Allowed = true
		d.Remaining = p.MaxRequests()
		d.FailOpen = true
	}
	d.Blocked = false
	d.BlockUntil = time.Time{}

	l.logger.Warn(msg,
		zap.String("policy", p.Name()),
		zap.String("key", d.Key),
		zap.String("operation", operation),
		zap.Error(err),
	)
	if l.metrics != nil {
		l.metrics.RateLimitFailOpen.WithLabelValues(p.Name(), operation, mode).Inc()
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return d, outcome
}

func (l *Limiter) dispatch(ctx context.Context, hook policy.ExceededFunc, ev policy.Event) {
	if l.hooks != nil {
		l.hooks.Dispatch(ctx, hook, ev)
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("exceeded hook panicked",
					zap.String("policy", ev.Policy),
					zap.Any("panic", r),
				)
			}
		}()
		hook(context.WithoutCancel(ctx), ev)
	}()
}

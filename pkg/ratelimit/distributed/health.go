package distributed

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	healthUnknown int32 = iota
	healthUp
	healthDown
)

// HealthProbe pings the shared store. It is a workerpool.Task meant to be run
// on a schedule; it keeps the store_up gauge current and logs transitions
// only, so a long outage produces two log lines rather than one per probe.
type HealthProbe struct {
	store
	logger *zap.Logger
	state  atomic.Int32
}

// NewHealthProbe creates a probe for config.Redis.
func NewHealthProbe(config Config, logger *zap.Logger) (*HealthProbe, error) {
	s, err := newStore(config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthProbe{store: s, logger: logger.Named("store")}, nil
}

// Execute pings the store once.
func (h *HealthProbe) Execute(ctx context.Context) error {
	err := h.call(ctx, "ping", func(ctx context.Context) error {
		return h.config.Redis.Ping(ctx).Err()
	})

	next := healthUp
	if err != nil {
		next = healthDown
	}
	prev := h.state.Swap(next)

	if m := h.config.Metrics; m != nil {
		if next == healthUp {
			m.StoreUp.Set(1)
		} else {
			m.StoreUp.Set(0)
		}
	}

	switch {
	case prev == next:
	case next == healthDown:
		h.logger.Warn("shared store unreachable, rate limits fail open until it recovers", zap.Error(err))
	case prev == healthDown:
		h.logger.Info("shared store reachable again")
	}
	return err
}

// Healthy reports the result of the last probe. It is false before the
// first probe has run.
func (h *HealthProbe) Healthy() bool {
	return h.state.Load() == healthUp
}

package distributed

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	pgcontext "github.com/vnykmshr/portalguard/pkg/common/context"
	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/common/validation"
	"github.com/vnykmshr/portalguard/pkg/metrics"
)

const (
	module = "distributed"

	// DefaultPrefix namespaces every key written by portalguard.
	DefaultPrefix = "ratelimit"

	// DefaultTimeout bounds a single store round trip.
	DefaultTimeout = 250 * time.Millisecond
)

// Clock supplies the current time. Tests substitute a controllable clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration shared by the window counter and the block list.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Prefix is prepended to every key
	Prefix string

	// Timeout is applied to every store call; a timeout is reported like
	// any other store error
	Timeout time.Duration

	// Clock defaults to the system clock
	Clock Clock

	// Metrics, when set, records store latency per operation
	Metrics *metrics.Registry
}

// DefaultConfig returns a configuration with default prefix and timeout.
// The Redis client still has to be set.
func DefaultConfig() Config {
	return Config{
		Prefix:  DefaultPrefix,
		Timeout: DefaultTimeout,
		Clock:   systemClock{},
	}
}

func validateConfig(config Config) error {
	if config.Redis == nil {
		return validation.ValidateNotNil(module, "redis", nil)
	}
	return validation.ValidateNonNegativeDuration(module, "timeout", config.Timeout)
}

func applyConfigDefaults(config Config) Config {
	if config.Prefix == "" {
		config.Prefix = DefaultPrefix
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	return config
}

// Keys builds the store keys for one prefix.
type Keys struct {
	Prefix string
}

// Window returns the counter key for one fixed window.
func (k Keys) Window(policy, identity string, index int64) string {
	return k.Prefix + ":" + policy + ":" + identity + ":" + strconv.FormatInt(index, 10)
}

// Block returns the cooldown key for an identity.
func (k Keys) Block(policy, identity string) string {
	return k.Prefix + ":" + policy + ":block:" + identity
}

// store carries what every store-backed component needs.
type store struct {
	config Config
	keys   Keys
}

func newStore(config Config) (store, error) {
	if err := validateConfig(config); err != nil {
		return store{}, err
	}
	config = applyConfigDefaults(config)
	return store{config: config, keys: Keys{Prefix: config.Prefix}}, nil
}

func (s store) now() time.Time {
	return s.config.Clock.Now()
}

// call runs fn under the store timeout, records its latency and wraps any
// failure in a *errors.StoreError.
func (s store) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := pgcontext.WithTimeoutOrCancel(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)

	if m := s.config.Metrics; m != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.StoreLatency.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return &pgerrors.StoreError{Operation: operation, Err: err}
	}
	return nil
}

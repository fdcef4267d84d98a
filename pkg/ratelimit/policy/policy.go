// Package policy defines named, immutable admission policies and the registry
// that holds them for the lifetime of the process.
package policy

import (
	"context"
	"regexp"
	"time"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/common/validation"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
)

const module = "policy"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// SkipFunc reports whether a request bypasses the policy entirely.
type SkipFunc func(keys.Request) bool

// Event describes a single limit violation handed to an exceeded hook.
type Event struct {
	ID         string
	Policy     string
	Key        string
	Count      int64
	Limit      int
	Blocked    bool
	BlockUntil time.Time
	At         time.Time
}

// ExceededFunc is invoked asynchronously after a violation. Its outcome never
// affects the decision that triggered it.
type ExceededFunc func(ctx context.Context, ev Event)

// Config is the mutable description of a policy. It is validated and frozen
// by New.
type Config struct {
	// Name identifies the policy in keys, metrics and admin calls.
	Name string

	// Window is the fixed counting interval.
	Window time.Duration

	// MaxRequests is the number of requests allowed per key per window.
	MaxRequests int

	// BlockDuration, when positive, blocks a key for this long after a violation.
	BlockDuration time.Duration

	// KeyFunc replaces address-based key derivation.
	KeyFunc keys.Func

	// Skip bypasses the policy when it returns true.
	Skip SkipFunc

	// OnExceeded is fired after each violation.
	OnExceeded ExceededFunc

	// FailClosed denies instead of allowing when the shared store is unavailable.
	FailClosed bool
}

// Policy is an immutable admission policy. Use New to create one.
type Policy struct {
	name          string
	window        time.Duration
	maxRequests   int
	blockDuration time.Duration
	keyFunc       keys.Func
	skip          SkipFunc
	onExceeded    ExceededFunc
	failClosed    bool
}

// New validates config and returns the frozen policy. Misconfiguration is
// reported as a *errors.ValidationError.
func New(config Config) (*Policy, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return &Policy{
		name:          config.Name,
		window:        config.Window.Truncate(time.Millisecond),
		maxRequests:   config.MaxRequests,
		blockDuration: config.BlockDuration.Truncate(time.Millisecond),
		keyFunc:       config.KeyFunc,
		skip:          config.Skip,
		onExceeded:    config.OnExceeded,
		failClosed:    config.FailClosed,
	}, nil
}

// MustNew is like New but panics on misconfiguration. Intended for package-level
// policy declarations.
func MustNew(config Config) *Policy {
	p, err := New(config)
	if err != nil {
		panic(err)
	}
	return p
}

func validateConfig(config Config) error {
	if err := validation.ValidateNotEmpty(module, "name", config.Name); err != nil {
		return err
	}
	if !namePattern.MatchString(config.Name) {
		return pgerrors.NewValidationError(module, "name", config.Name, "must be lowercase alphanumeric").
			WithHint("use letters, digits, '-' or '_'")
	}
	if err := validation.ValidatePositiveDuration(module, "window", config.Window); err != nil {
		return err
	}
	if err := validation.ValidatePositive(module, "max_requests", config.MaxRequests); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration(module, "block_duration", config.BlockDuration); err != nil {
		return err
	}
	if config.BlockDuration > 0 && config.BlockDuration < time.Millisecond {
		return pgerrors.NewValidationError(module, "block_duration", config.BlockDuration, "must be at least 1ms")
	}
	return nil
}

// Name returns the policy name.
func (p *Policy) Name() string { return p.name }

// Window returns the counting interval.
func (p *Policy) Window() time.Duration { return p.window }

// MaxRequests returns the per-window limit.
func (p *Policy) MaxRequests() int { return p.maxRequests }

// BlockDuration returns the cooldown applied after a violation, or 0.
func (p *Policy) BlockDuration() time.Duration { return p.blockDuration }

// Blocks reports whether violations impose a cooldown.
func (p *Policy) Blocks() bool { return p.blockDuration > 0 }

// KeyFunc returns the custom key function, if any.
func (p *Policy) KeyFunc() keys.Func { return p.keyFunc }

// OnExceeded returns the violation hook, if any.
func (p *Policy) OnExceeded() ExceededFunc { return p.onExceeded }

// FailClosed reports whether store failures deny requests.
func (p *Policy) FailClosed() bool { return p.failClosed }

// ShouldSkip evaluates the skip predicate. A panicking predicate counts as
// "do not skip".
func (p *Policy) ShouldSkip(req keys.Request) (skip bool) {
	if p.skip == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			skip = false
		}
	}()
	return p.skip(req)
}

// Config returns a copy of the configuration the policy was built from.
// Handy for deriving a tuned variant.
func (p *Policy) Config() Config {
	return Config{
		Name:          p.name,
		Window:        p.window,
		MaxRequests:   p.maxRequests,
		BlockDuration: p.blockDuration,
		KeyFunc:       p.keyFunc,
		Skip:          p.skip,
		OnExceeded:    p.onExceeded,
		FailClosed:    p.failClosed,
	}
}

package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

// Status is a read-only snapshot of one identity under one policy.
type Status struct {
	Policy     string    `json:"policy"`
	Key        string    `json:"key"`
	Count      int64     `json:"count"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	Blocked    bool      `json:"blocked"`
	BlockUntil time.Time `json:"blockedUntil"`
}

var errNoPolicies = errors.New("no policy registry configured")

// Policies lists the registered policies.
func (l *Limiter) Policies() []*policy.Policy {
	if l.policies == nil {
		return nil
	}
	return l.policies.All()
}

func (l *Limiter) lookup(op, name string) (*policy.Policy, error) {
	if l.policies == nil {
		return nil, pgerrors.NewOperationError(module, op, errNoPolicies)
	}
	p, err := l.policies.Get(name)
	if err != nil {
		return nil, pgerrors.NewOperationError(module, op, err)
	}
	return p, nil
}

// Status reports key's current count and block without counting a request.
// Unlike Check it returns store errors; it serves support tooling.
func (l *Limiter) Status(ctx context.Context, policyName, key string) (Status, error) {
	p, err := l.lookup("Status", policyName)
	if err != nil {
		return Status{}, err
	}

	count, err := l.counter.Peek(ctx, p.Name(), key, p.Window())
	if err != nil {
		return Status{}, pgerrors.NewOperationError(module, "Status", err).
			WithContext(fmt.Sprintf("policy=%s", p.Name()))
	}

	st := Status{
		Policy:    p.Name(),
		Key:       key,
		Count:     count.Value,
		Limit:     p.MaxRequests(),
		Remaining: count.Remaining(p.MaxRequests()),
		ResetAt:   count.WindowEnd,
	}

	if p.Blocks() {
		state, err := l.blocks.IsBlocked(ctx, p.Name(), key)
		if err != nil {
			return Status{}, pgerrors.NewOperationError(module, "Status", err).
				WithContext(fmt.Sprintf("policy=%s", p.Name()))
		}
		if state.Blocked {
			st.Blocked = true
			st.BlockUntil = state.Until
			st.Remaining = 0
		}
	}
	return st, nil
}

// Reset clears key's current window and any block under the named policy.
func (l *Limiter) Reset(ctx context.Context, policyName, key string) error {
	p, err := l.lookup("Reset", policyName)
	if err != nil {
		return err
	}

	errs := []error{
		l.counter.Clear(ctx, p.Name(), key, p.Window()),
		l.blocks.Clear(ctx, p.Name(), key),
	}
	if err := errors.Join(errs...); err != nil {
		return pgerrors.NewOperationError(module, "Reset", err).
			WithContext(fmt.Sprintf("policy=%s", p.Name()))
	}

	l.logger.Info("rate limit reset",
		zap.String("policy", p.Name()),
		zap.String("key", key),
	)
	return nil
}

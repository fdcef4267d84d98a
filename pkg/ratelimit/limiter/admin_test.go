package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"

	"github.com/vnykmshr/portalguard/internal/testutil"
)

func withDefaults(t *testing.T) func(*Config, *distributed.Config) {
	reg, err := policy.NewRegistry(policy.Defaults()...)
	require.NoError(t, err)
	return func(c *Config, _ *distributed.Config) { c.Policies = reg }
}

func TestStatus_ReadOnly(t *testing.T) {
	e := newEnv(t, nil, withDefaults(t))
	ctx := context.Background()
	api := e.limiter.policies.MustGet(policy.API)

	for i := 0; i < 3; i++ {
		e.limiter.Check(ctx, from("1.2.3.4"), api)
	}

	for i := 0; i < 2; i++ {
		st, err := e.limiter.Status(ctx, policy.API, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, int64(3), st.Count)
		assert.Equal(t, 97, st.Remaining)
		assert.Equal(t, 100, st.Limit)
		assert.Equal(t, epoch.Add(time.Minute), st.ResetAt)
		assert.False(t, st.Blocked)
	}

	d := e.limiter.Check(ctx, from("1.2.3.4"), api)
	assert.Equal(t, 96, d.Remaining, "status did not consume quota")
}

func TestStatus_Blocked(t *testing.T) {
	e := newEnv(t, nil, withDefaults(t))
	ctx := context.Background()
	auth := e.limiter.policies.MustGet(policy.Auth)

	for i := 0; i < 6; i++ {
		e.limiter.Check(ctx, from("1.2.3.4"), auth)
	}

	st, err := e.limiter.Status(ctx, policy.Auth, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, st.Blocked)
	assert.Equal(t, epoch.Add(30*time.Minute), st.BlockUntil)
	assert.Equal(t, 0, st.Remaining)
}

func TestReset(t *testing.T) {
	e := newEnv(t, nil, withDefaults(t))
	ctx := context.Background()
	auth := e.limiter.policies.MustGet(policy.Auth)

	for i := 0; i < 6; i++ {
		e.limiter.Check(ctx, from("1.2.3.4"), auth)
	}
	require.True(t, e.limiter.Check(ctx, from("1.2.3.4"), auth).Blocked)

	require.NoError(t, e.limiter.Reset(ctx, policy.Auth, "1.2.3.4"))

	d := e.limiter.Check(ctx, from("1.2.3.4"), auth)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.Equal(t, 1, e.logs.FilterMessage("rate limit reset").Len())
}

func TestAdmin_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown policy", func(t *testing.T) {
		e := newEnv(t, nil, withDefaults(t))
		_, err := e.limiter.Status(ctx, "nope", "k")
		assert.ErrorIs(t, err, pgerrors.ErrUnknownPolicy)
		assert.ErrorIs(t, e.limiter.Reset(ctx, "nope", "k"), pgerrors.ErrUnknownPolicy)
	})

	t.Run("no registry", func(t *testing.T) {
		e := newEnv(t, nil)
		_, err := e.limiter.Status(ctx, policy.API, "k")
		assert.Error(t, err)
		assert.Nil(t, e.limiter.Policies())
	})

	t.Run("store down", func(t *testing.T) {
		e := newEnv(t, testutil.DownClient(t), withDefaults(t))
		_, err := e.limiter.Status(ctx, policy.API, "k")
		assert.True(t, pgerrors.IsStoreUnavailable(err), "admin calls surface store errors")

		err = e.limiter.Reset(ctx, policy.Auth, "k")
		assert.True(t, pgerrors.IsStoreUnavailable(err))

		var opErr *pgerrors.OperationError
		require.True(t, errors.As(err, &opErr))
		assert.Equal(t, "Reset", opErr.Operation)
		assert.Equal(t, 0, failOpenEvents(e.logs))
	})
}

func TestPolicies(t *testing.T) {
	e := newEnv(t, nil, withDefaults(t))
	assert.Len(t, e.limiter.Policies(), 5)
}

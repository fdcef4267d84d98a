package distributed

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/metrics"

	"github.com/vnykmshr/portalguard/internal/testutil"
)

// epoch is aligned to every window length used below.
var epoch = time.Unix(1699999200, 0)

func newCounter(t *testing.T) (*WindowCounter, *testutil.Redis, *testutil.MockClock) {
	t.Helper()
	r := testutil.NewRedis(t)
	clock := testutil.NewMockClock(epoch)
	wc, err := NewWindowCounter(Config{Redis: r.Client, Clock: clock})
	require.NoError(t, err)
	return wc, r, clock
}

func TestNewWindowCounter_Validation(t *testing.T) {
	_, err := NewWindowCounter(Config{})
	assert.True(t, pgerrors.IsValidationError(err))

	_, err = NewWindowCounter(Config{Redis: testutil.NewRedis(t).Client, Timeout: -time.Second})
	assert.True(t, pgerrors.IsValidationError(err))
}

func TestBounds(t *testing.T) {
	now := epoch.Add(90 * time.Second)
	index, start, end := Bounds(now, time.Minute)

	assert.Equal(t, epoch.UnixMilli()/60000+1, index)
	assert.Equal(t, epoch.Add(time.Minute), start)
	assert.Equal(t, epoch.Add(2*time.Minute), end)
	assert.True(t, end.After(now))
}

func TestIncrement_CountsAndExpires(t *testing.T) {
	wc, r, clock := newCounter(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		c, err := wc.Increment(ctx, "api", "1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, c.Value)
		assert.Equal(t, epoch.Add(time.Minute), c.WindowEnd)
		assert.Equal(t, epoch, c.WindowStart)
	}

	key := Keys{Prefix: DefaultPrefix}.Window("api", "1.2.3.4", epoch.UnixMilli()/60000)
	assert.True(t, r.Server.Exists(key))
	assert.Equal(t, time.Minute, r.Server.TTL(key), "TTL is set once, on the first hit")

	r.Advance(clock, time.Minute)
	assert.False(t, r.Server.Exists(key), "counter expires with its window")

	c, err := wc.Increment(ctx, "api", "1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Value)
	assert.Equal(t, epoch.Add(2*time.Minute), c.WindowEnd)
}

func TestIncrement_RestoresMissingTTL(t *testing.T) {
	wc, r, _ := newCounter(t)
	key := Keys{Prefix: DefaultPrefix}.Window("api", "k", epoch.UnixMilli()/60000)
	require.NoError(t, r.Server.Set(key, "7"))

	c, err := wc.Increment(context.Background(), "api", "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(8), c.Value)
	assert.Equal(t, time.Minute, r.Server.TTL(key))
}

func TestIncrement_KeysAreIndependent(t *testing.T) {
	wc, _, _ := newCounter(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := wc.Increment(ctx, "api", "a", time.Minute)
		require.NoError(t, err)
	}

	b, err := wc.Increment(ctx, "api", "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Value)

	other, err := wc.Increment(ctx, "upload", "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Value, "policies do not share counters")
}

func TestIncrement_Concurrent(t *testing.T) {
	wc, _, _ := newCounter(t)
	ctx := context.Background()

	const n = 50
	values := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := wc.Increment(ctx, "api", "shared", time.Minute)
			assert.NoError(t, err)
			values[i] = int(c.Value)
		}(i)
	}
	wg.Wait()

	sort.Ints(values)
	for i, v := range values {
		assert.Equal(t, i+1, v, "each caller sees its own post-increment value")
	}
}

func TestPeekAndClear(t *testing.T) {
	wc, _, _ := newCounter(t)
	ctx := context.Background()

	c, err := wc.Peek(ctx, "api", "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Value)

	for i := 0; i < 2; i++ {
		_, err = wc.Increment(ctx, "api", "k", time.Minute)
		require.NoError(t, err)
	}

	c, err = wc.Peek(ctx, "api", "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Value)

	c, err = wc.Peek(ctx, "api", "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Value, "peek never increments")

	require.NoError(t, wc.Clear(ctx, "api", "k", time.Minute))
	c, err = wc.Peek(ctx, "api", "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Value)
}

func TestCount_Remaining(t *testing.T) {
	assert.Equal(t, 4, Count{Value: 1}.Remaining(5))
	assert.Equal(t, 0, Count{Value: 5}.Remaining(5))
	assert.Equal(t, 0, Count{Value: 9}.Remaining(5))
}

func TestIncrement_InvalidWindow(t *testing.T) {
	wc, _, _ := newCounter(t)
	_, err := wc.Increment(context.Background(), "api", "k", 0)
	assert.True(t, pgerrors.IsValidationError(err))
}

func TestIncrement_StoreErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		wc, r, _ := newCounter(t)
		r.Server.SetError("LOADING dataset in memory")

		_, err := wc.Increment(context.Background(), "api", "k", time.Minute)
		require.Error(t, err)
		assert.ErrorIs(t, err, pgerrors.ErrStoreUnavailable)

		var serr *pgerrors.StoreError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "increment", serr.Operation)
	})

	t.Run("connection refused", func(t *testing.T) {
		wc, err := NewWindowCounter(Config{Redis: testutil.DownClient(t)})
		require.NoError(t, err)

		_, err = wc.Increment(context.Background(), "api", "k", time.Minute)
		assert.True(t, pgerrors.IsStoreUnavailable(err))

		_, err = wc.Peek(context.Background(), "api", "k", time.Minute)
		assert.True(t, pgerrors.IsStoreUnavailable(err))
	})

	t.Run("canceled context", func(t *testing.T) {
		wc, _, _ := newCounter(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := wc.Increment(ctx, "api", "k", time.Minute)
		assert.True(t, pgerrors.IsStoreUnavailable(err))
	})
}

func TestStoreLatencyMetric(t *testing.T) {
	r := testutil.NewRedis(t)
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	wc, err := NewWindowCounter(Config{Redis: r.Client, Metrics: reg})
	require.NoError(t, err)

	_, err = wc.Increment(context.Background(), "api", "k", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 1, promtest.CollectAndCount(reg.StoreLatency, "portalguard_store_operation_duration_seconds"))
}

package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventually(t *testing.T) {
	var counter int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&counter, 1)
	}()

	Eventually(t, func() bool {
		return atomic.LoadInt32(&counter) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestMockClock(t *testing.T) {
	start := time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(time.Minute)
	assert.True(t, start.Add(time.Minute).Equal(clock.Now()))

	clock.Set(start)
	assert.True(t, start.Equal(clock.Now()))

	clock.Advance(90 * time.Second)
	moved := clock.NextWindow(time.Minute)
	assert.Equal(t, 30*time.Second, moved)
	assert.True(t, start.Add(2*time.Minute).Equal(clock.Now()))
}

func TestRedisAdvanceExpiresKeys(t *testing.T) {
	r := NewRedis(t)
	clock := NewMockClock(time.Time{})
	ctx := context.Background()

	require.NoError(t, r.Client.Set(ctx, "k", "v", time.Second).Err())
	r.Advance(clock, 2*time.Second)

	assert.False(t, r.Server.Exists("k"))
}

func TestDownClientFails(t *testing.T) {
	client := DownClient(t)
	ctx, cancel := WithTimeout(t)
	defer cancel()

	assert.Error(t, client.Ping(ctx).Err())
}

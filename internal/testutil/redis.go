package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Redis bundles an in-process miniredis server with a client pointed at it.
type Redis struct {
	Server *miniredis.Miniredis
	Client *redis.Client
}

// NewRedis starts a miniredis server that is torn down with the test.
func NewRedis(t testing.TB) *Redis {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        server.Addr(),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return &Redis{Server: server, Client: client}
}

// Advance moves both the mock clock and the server's TTL clock forward, so
// keys expire exactly when the limiter's notion of time says they should.
func (r *Redis) Advance(clock *MockClock, d time.Duration) {
	clock.Advance(d)
	r.Server.FastForward(d)
}

// DownClient returns a client whose server has already been shut down, so every
// call fails with a connection error.
func DownClient(t testing.TB) *redis.Client {
	t.Helper()
	server := miniredis.NewMiniRedis()
	if err := server.Start(); err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	addr := server.Addr()
	server.Close()

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
)

// Count is the state of one key's counter in the current fixed window.
type Count struct {
	Value       int64
	WindowStart time.Time
	WindowEnd   time.Time
}

// Remaining returns how many requests are left under limit, never negative.
func (c Count) Remaining(limit int) int {
	left := int64(limit) - c.Value
	if left < 0 {
		return 0
	}
	return int(left)
}

// WindowCounter counts requests per key in fixed, self-expiring windows.
//
// Windows are aligned to the Unix epoch: index = floor(nowMs / windowMs). A
// caller can see up to twice the nominal rate across a window boundary; that
// is accepted in exchange for one O(1) round trip per request.
type WindowCounter struct {
	store

	incrementScript *redis.Script
}

// NewWindowCounter creates a counter backed by config.Redis.
func NewWindowCounter(config Config) (*WindowCounter, error) {
	s, err := newStore(config)
	if err != nil {
		return nil, err
	}
	return &WindowCounter{
		store:           s,
		incrementScript: redis.NewScript(luaIncrementWindow),
	}, nil
}

// Bounds returns the index and boundaries of the window containing t.
func Bounds(t time.Time, window time.Duration) (index int64, start, end time.Time) {
	windowMs := window.Milliseconds()
	index = t.UnixMilli() / windowMs
	start = time.UnixMilli(index * windowMs)
	end = time.UnixMilli((index + 1) * windowMs)
	return index, start, end
}

func checkWindow(window time.Duration) error {
	if window < time.Millisecond {
		return pgerrors.NewValidationError(module, "window", window, "must be at least 1ms")
	}
	return nil
}

// Increment atomically adds one to the key's counter for the current window
// and returns the post-increment value. The first increment in a window sets
// the key's TTL to the window length.
func (w *WindowCounter) Increment(ctx context.Context, policy, identity string, window time.Duration) (Count, error) {
	if err := checkWindow(window); err != nil {
		return Count{}, err
	}

	index, start, end := Bounds(w.now(), window)
	key := w.keys.Window(policy, identity, index)

	var value int64
	err := w.call(ctx, "increment", func(ctx context.Context) error {
		n, err := w.incrementScript.Run(ctx, w.config.Redis, []string{key}, window.Milliseconds()).Int64()
		value = n
		return err
	})
	if err != nil {
		return Count{}, err
	}

	return Count{Value: value, WindowStart: start, WindowEnd: end}, nil
}

// Peek returns the current window's count without incrementing it.
func (w *WindowCounter) Peek(ctx context.Context, policy, identity string, window time.Duration) (Count, error) {
	if err := checkWindow(window); err != nil {
		return Count{}, err
	}

	index, start, end := Bounds(w.now(), window)
	key := w.keys.Window(policy, identity, index)

	var value int64
	err := w.call(ctx, "peek", func(ctx context.Context) error {
		n, err := w.config.Redis.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		value = n
		return err
	})
	if err != nil {
		return Count{}, err
	}

	return Count{Value: value, WindowStart: start, WindowEnd: end}, nil
}

// Clear deletes the key's counter for the current window.
func (w *WindowCounter) Clear(ctx context.Context, policy, identity string, window time.Duration) error {
	if err := checkWindow(window); err != nil {
		return err
	}

	index, _, _ := Bounds(w.now(), window)
	key := w.keys.Window(policy, identity, index)

	return w.call(ctx, "clear_window", func(ctx context.Context) error {
		return w.config.Redis.Del(ctx, key).Err()
	})
}

// Lua script for the fixed window increment
const luaIncrementWindow = `
-- KEYS[1]: window key
-- ARGV[1]: window length (milliseconds)

local count = redis.call('INCR', KEYS[1])

if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
elseif redis.call('PTTL', KEYS[1]) == -1 then
    -- a counter without a TTL would never reset
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end

return count
`

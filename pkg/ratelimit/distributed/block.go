package distributed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
)

// BlockState reports whether an identity is in a cooldown.
type BlockState struct {
	Blocked bool
	Until   time.Time
}

// BlockList holds per-identity cooldowns. Each record stores its own expiry
// time and carries a matching TTL, so absence means "not blocked" and no
// cleanup is ever needed.
type BlockList struct {
	store
}

// NewBlockList creates a block list backed by config.Redis.
func NewBlockList(config Config) (*BlockList, error) {
	s, err := newStore(config)
	if err != nil {
		return nil, err
	}
	return &BlockList{store: s}, nil
}

// IsBlocked reports whether identity is blocked under policy right now.
func (b *BlockList) IsBlocked(ctx context.Context, policy, identity string) (BlockState, error) {
	key := b.keys.Block(policy, identity)

	var raw string
	err := b.call(ctx, "is_blocked", func(ctx context.Context) error {
		v, err := b.config.Redis.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		raw = v
		return err
	})
	if err != nil || raw == "" {
		return BlockState{}, err
	}

	untilMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return BlockState{}, &pgerrors.StoreError{
			Operation: "is_blocked",
			Err:       fmt.Errorf("malformed block record %q: %w", raw, err),
		}
	}

	until := time.UnixMilli(untilMs)
	if !until.After(b.now()) {
		// Expired by our clock but not yet by the store's.
		return BlockState{}, nil
	}
	return BlockState{Blocked: true, Until: until}, nil
}

// Block blocks identity for d, replacing any existing block, and returns the
// time the block ends.
func (b *BlockList) Block(ctx context.Context, policy, identity string, d time.Duration) (time.Time, error) {
	if d < time.Millisecond {
		return time.Time{}, pgerrors.NewValidationError(module, "block_duration", d, "must be at least 1ms")
	}

	until := b.now().Add(d)
	key := b.keys.Block(policy, identity)

	err := b.call(ctx, "block", func(ctx context.Context) error {
		return b.config.Redis.Set(ctx, key, until.UnixMilli(), d).Err()
	})
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

// Clear removes any block on identity.
func (b *BlockList) Clear(ctx context.Context, policy, identity string) error {
	key := b.keys.Block(policy, identity)
	return b.call(ctx, "clear_block", func(ctx context.Context) error {
		return b.config.Redis.Del(ctx, key).Err()
	})
}

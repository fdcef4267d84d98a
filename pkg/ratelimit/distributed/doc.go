// Package distributed holds the shared-store state behind admission checks:
// fixed-window request counters and per-identity cooldown blocks, both kept in
// Redis so that every application instance sees the same numbers.
//
// # Window counter
//
// WindowCounter.Increment runs one Lua script that increments the counter for
// the current window and, on the first hit, sets its TTL to the window length:
//
//	prefix:policy:identity:windowIndex   windowIndex = floor(nowMs / windowMs)
//
// Counters expire on their own; nothing needs to clean them up.
//
// # Block list
//
// BlockList.Block writes prefix:policy:block:identity with the block end time
// in epoch milliseconds and a TTL of the block duration. A present, unexpired
// record means blocked. A second block replaces the first.
//
// # Errors
//
// Every call is bounded by Config.Timeout. Failures, timeouts included, are
// returned as *errors.StoreError and match errors.ErrStoreUnavailable; these
// types never decide whether a request is allowed.
//
//	counter, err := distributed.NewWindowCounter(distributed.Config{
//		Redis:   rdb,
//		Timeout: 100 * time.Millisecond,
//	})
//	count, err := counter.Increment(ctx, "auth", "1.2.3.4", 15*time.Minute)
//	if errors.Is(err, pgerrors.ErrStoreUnavailable) {
//		// caller decides: fail open
//	}
package distributed

package limiter

import "time"

// Decision is the outcome of one admission check. It is computed per call and
// never stored.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time // next window boundary, always after the check time
	Blocked    bool
	BlockUntil time.Time // set when Blocked

	Key    string
	Policy string

	// Skipped is set when the policy's skip predicate bypassed the check.
	Skipped bool

	// FailOpen is set when the shared store failed and the request was
	// allowed without counting it.
	FailOpen bool
}

// RetryAfter returns how long a denied caller should wait before trying
// again: until the block ends, or until the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	until := d.ResetAt
	if d.Blocked && d.BlockUntil.After(until) {
		until = d.BlockUntil
	}
	if wait := until.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// Outcome labels used in metrics and traces.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeBlocked    = "blocked"
	OutcomeSkipped    = "skipped"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"
)

// Package transport translates limiter decisions into HTTP responses. It is
// the only part of portalguard that knows about a web framework.
package transport

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

// Response header names.
const (
	HeaderLimit        = "X-RateLimit-Limit"
	HeaderRemaining    = "X-RateLimit-Remaining"
	HeaderReset        = "X-RateLimit-Reset"
	HeaderBlockedUntil = "X-RateLimit-Blocked-Until"
	HeaderRetryAfter   = "Retry-After"
)

// Checker is the part of the limiter the adapters need.
type Checker interface {
	Check(ctx context.Context, req keys.Request, p *policy.Policy) limiter.Decision
}

// Options tunes an adapter.
type Options struct {
	// InformationalHeaders adds limit, remaining and reset headers to
	// admitted responses as well.
	InformationalHeaders bool

	// Message is the error text of the denial body.
	Message string

	// Logger receives one debug entry per denial.
	Logger *zap.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Message == "" {
		o.Message = "Too many requests, please try again later."
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// DenialBody is the JSON body of a 429 response.
type DenialBody struct {
	Error        string `json:"error"`
	Limit        int    `json:"limit"`
	Remaining    int    `json:"remaining"`
	Reset        int64  `json:"reset"`
	RetryAfter   int64  `json:"retryAfter"`
	Blocked      bool   `json:"blocked"`
	BlockedUntil string `json:"blockedUntil,omitempty"`
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func RetryAfterSeconds(d limiter.Decision, now time.Time) int64 {
	secs := int64(math.Ceil(d.RetryAfter(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func setQuotaHeaders(h http.Header, d limiter.Decision) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.UnixMilli(), 10))
}

// denial sets the rejection headers on h and returns the body to send.
func denial(h http.Header, d limiter.Decision, opts Options) DenialBody {
	now := opts.Now()
	retry := RetryAfterSeconds(d, now)

	d.Remaining = 0
	setQuotaHeaders(h, d)
	h.Set(HeaderRetryAfter, strconv.FormatInt(retry, 10))

	body := DenialBody{
		Error:      opts.Message,
		Limit:      d.Limit,
		Remaining:  0,
		Reset:      d.ResetAt.UnixMilli(),
		RetryAfter: retry,
		Blocked:    d.Blocked,
	}
	if d.Blocked {
		until := d.BlockUntil.UTC().Format(time.RFC3339)
		h.Set(HeaderBlockedUntil, until)
		body.BlockedUntil = until
	}

	opts.Logger.Debug("request rejected by rate limit",
		zap.String("policy", d.Policy),
		zap.String("key", d.Key),
		zap.Bool("blocked", d.Blocked),
		zap.Int64("retry_after", retry),
	)
	return body
}

// admitted applies the optional informational headers.
func admitted(h http.Header, d limiter.Decision, opts Options) {
	if opts.InformationalHeaders && !d.Skipped {
		setQuotaHeaders(h, d)
	}
}

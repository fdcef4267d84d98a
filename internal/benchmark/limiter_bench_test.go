// Package benchmark holds cross-package benchmarks for the request path.
package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vnykmshr/portalguard/internal/testutil"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

type request struct {
	addr    string
	headers map[string]string
}

func (r request) Header(name string) string { return r.headers[name] }
func (r request) PeerAddress() string       { return r.addr }

func newLimiter(b *testing.B, store distributed.Config) *limiter.Limiter {
	b.Helper()
	counter, err := distributed.NewWindowCounter(store)
	if err != nil {
		b.Fatal(err)
	}
	blocks, err := distributed.NewBlockList(store)
	if err != nil {
		b.Fatal(err)
	}
	l, err := limiter.New(limiter.Config{Counter: counter, Blocks: blocks})
	if err != nil {
		b.Fatal(err)
	}
	return l
}

// BenchmarkCheck measures a full check against an in-process store, for a
// policy with and without a block list lookup.
func BenchmarkCheck(b *testing.B) {
	for _, name := range []string{policy.API, policy.Auth} {
		b.Run(name, func(b *testing.B) {
			r := testutil.NewRedis(b)
			l := newLimiter(b, distributed.Config{Redis: r.Client})
			p := policy.MustNew(policy.Config{Name: name, Window: time.Minute, MaxRequests: 1 << 30, BlockDuration: blockFor(name)})
			ctx := context.Background()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				l.Check(ctx, request{addr: fmt.Sprintf("10.0.%d.%d:1", (i>>8)&255, i&255)}, p)
			}
		})
	}
}

func blockFor(name string) time.Duration {
	if name == policy.Auth {
		return 30 * time.Minute
	}
	return 0
}

// BenchmarkCheckFailOpen measures the degraded path when the store is down.
func BenchmarkCheckFailOpen(b *testing.B) {
	l := newLimiter(b, distributed.Config{Redis: testutil.DownClient(b), Timeout: 50 * time.Millisecond})
	p := policy.MustNew(policy.Config{Name: "api", Window: time.Minute, MaxRequests: 100})
	ctx := context.Background()
	req := request{addr: "10.0.0.1:1"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Check(ctx, req, p)
	}
}

// BenchmarkDerive measures key derivation with and without a fingerprint.
func BenchmarkDerive(b *testing.B) {
	req := request{
		addr: "[2001:db8::1]:443",
		headers: map[string]string{
			keys.DefaultForwardedHeader: "198.51.100.7, 10.0.0.1",
			keys.UserAgentHeader:        "Mozilla/5.0 (X11; Linux x86_64)",
		},
	}
	derivers := map[string]*keys.Deriver{
		"plain":       keys.NewDeriver(),
		"fingerprint": {ForwardedHeader: keys.DefaultForwardedHeader, FingerprintHeader: keys.UserAgentHeader},
	}
	for name, d := range derivers {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = d.Derive(req, nil)
			}
		})
	}
}

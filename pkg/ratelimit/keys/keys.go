// Package keys turns a request's identity signals into a stable rate-limit key.
package keys

import (
	"net"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Unknown is the shared key for callers whose address cannot be resolved.
const Unknown = "unknown"

// Default header names.
const (
	DefaultTrustedHeader   = "CF-Connecting-IP"
	DefaultForwardedHeader = "X-Forwarded-For"
	UserAgentHeader        = "User-Agent"
)

const fingerprintLen = 8

// Request is the narrow view of an inbound request the limiter needs.
// Transport adapters implement it; the limiter core never sees a framework type.
type Request interface {
	Header(name string) string
	PeerAddress() string
}

// Func derives a key from a request. Returning "" falls back to address-based
// derivation.
type Func func(Request) string

// Deriver resolves client identity. The zero value only uses the peer address.
type Deriver struct {
	// TrustedHeader is injected by the edge (CDN / load balancer) and wins
	// over everything else.
	TrustedHeader string

	// ForwardedHeader is a comma separated proxy chain; its first entry is used.
	ForwardedHeader string

	// FingerprintHeader, when set, adds a short hash of that header's value
	// to the key so clients sharing a NAT are partially separated.
	FingerprintHeader string
}

// NewDeriver returns a Deriver with the default edge and forwarded headers.
func NewDeriver() *Deriver {
	return &Deriver{
		TrustedHeader:   DefaultTrustedHeader,
		ForwardedHeader: DefaultForwardedHeader,
	}
}

// Derive returns the rate-limit key for req. When fn is non-nil its result is
// used verbatim. Derive never panics.
func (d *Deriver) Derive(req Request, fn Func) (key string) {
	if req == nil {
		return Unknown
	}
	if fn != nil {
		if k := safeCall(fn, req); k != "" {
			return k
		}
	}

	addr := d.address(req)
	if d.FingerprintHeader == "" {
		return addr
	}
	ua := strings.TrimSpace(req.Header(d.FingerprintHeader))
	if ua == "" {
		return addr
	}
	return addr + ":" + Fingerprint(ua)
}

func (d *Deriver) address(req Request) string {
	if d.TrustedHeader != "" {
		if v := strings.TrimSpace(req.Header(d.TrustedHeader)); v != "" {
			return v
		}
	}
	if d.ForwardedHeader != "" {
		if xff := req.Header(d.ForwardedHeader); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	return peerHost(req.PeerAddress())
}

func peerHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Unknown
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return strings.Trim(addr, "[]")
}

// Fingerprint returns a short, stable hex hash of s.
func Fingerprint(s string) string {
	h := strconv.FormatUint(xxhash.Sum64String(s), 16)
	for len(h) < fingerprintLen {
		h = "0" + h
	}
	return h[:fingerprintLen]
}

func safeCall(fn Func, req Request) (key string) {
	defer func() {
		if recover() != nil {
			key = ""
		}
	}()
	return strings.TrimSpace(fn(req))
}

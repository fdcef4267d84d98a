package transport

import (
	"encoding/json"
	"net/http"

	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

type httpRequest struct {
	r *http.Request
}

func (h httpRequest) Header(name string) string { return h.r.Header.Get(name) }
func (h httpRequest) PeerAddress() string       { return h.r.RemoteAddr }

// FromHTTP exposes r to the limiter.
func FromHTTP(r *http.Request) keys.Request {
	return httpRequest{r: r}
}

// Middleware guards next with p for plain net/http servers.
func Middleware(l Checker, p *policy.Policy, opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Check(r.Context(), FromHTTP(r), p)
			if d.Allowed {
				admitted(w.Header(), d, opts)
				next.ServeHTTP(w, r)
				return
			}

			body := denial(w.Header(), d, opts)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(body)
		})
	}
}

package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnykmshr/portalguard/pkg/ratelimit/keys"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

type ginRequest struct {
	c *gin.Context
}

func (g ginRequest) Header(name string) string { return g.c.GetHeader(name) }
func (g ginRequest) PeerAddress() string       { return g.c.Request.RemoteAddr }

// FromGin exposes c to the limiter.
func FromGin(c *gin.Context) keys.Request {
	return ginRequest{c: c}
}

// DecisionKey is the gin context key under which Gin stores the decision for
// downstream handlers.
const DecisionKey = "portalguard.decision"

// Gin guards the remaining handler chain with p.
func Gin(l Checker, p *policy.Policy, opts Options) gin.HandlerFunc {
	opts = opts.withDefaults()

	return func(c *gin.Context) {
		d := l.Check(c.Request.Context(), FromGin(c), p)
		c.Set(DecisionKey, d)

		if d.Allowed {
			admitted(c.Writer.Header(), d, opts)
			c.Next()
			return
		}

		body := denial(c.Writer.Header(), d, opts)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
	}
}

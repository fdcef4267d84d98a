package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnykmshr/portalguard/pkg/ratelimit/distributed"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"

	"github.com/vnykmshr/portalguard/internal/testutil"
)

type portal struct {
	router  *gin.Engine
	limiter *limiter.Limiter
	redis   *testutil.Redis
	clock   *testutil.MockClock
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := testutil.NewRedis(t)
	clock := testutil.NewMockClock(time.Unix(1699999200, 0))
	store := distributed.Config{Redis: r.Client, Clock: clock}

	counter, err := distributed.NewWindowCounter(store)
	require.NoError(t, err)
	blocks, err := distributed.NewBlockList(store)
	require.NoError(t, err)
	registry, err := policy.NewRegistry(policy.Defaults()...)
	require.NoError(t, err)

	l, err := limiter.New(limiter.Config{
		Counter:  counter,
		Blocks:   blocks,
		Policies: registry,
		Clock:    clock,
	})
	require.NoError(t, err)

	router := gin.New()
	opts := Options{Now: clock.Now}
	router.POST("/login", Gin(l, registry.MustGet(policy.Auth), opts), func(c *gin.Context) {
		c.Status(http.StatusUnauthorized)
	})
	NewAdminHandler(l, nil).Register(router)

	return &portal{router: router, limiter: l, redis: r, clock: clock}
}

func (p *portal) do(method, target, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)
	return rec
}

func TestPortal_LoginLockout(t *testing.T) {
	p := newPortal(t)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusUnauthorized, p.do(http.MethodPost, "/login", "1.2.3.4").Code)
	}

	rec := p.do(http.MethodPost, "/login", "1.2.3.4")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1800", rec.Header().Get(HeaderRetryAfter))
	assert.NotEmpty(t, rec.Header().Get(HeaderBlockedUntil))

	assert.Equal(t, http.StatusUnauthorized, p.do(http.MethodPost, "/login", "5.6.7.8").Code,
		"other callers are unaffected")
}

func TestAdmin_StatusAndReset(t *testing.T) {
	p := newPortal(t)

	for i := 0; i < 6; i++ {
		p.do(http.MethodPost, "/login", "1.2.3.4")
	}

	rec := p.do(http.MethodGet, "/admin/ratelimit/auth?key=1.2.3.4", "127.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)
	var st limiter.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, int64(6), st.Count)
	assert.True(t, st.Blocked)
	assert.Equal(t, "auth", st.Policy)

	rec = p.do(http.MethodDelete, "/admin/ratelimit/auth?key=1.2.3.4", "127.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reset":true`)

	assert.Equal(t, http.StatusUnauthorized, p.do(http.MethodPost, "/login", "1.2.3.4").Code)
}

func TestAdmin_ListPolicies(t *testing.T) {
	p := newPortal(t)

	rec := p.do(http.MethodGet, "/admin/ratelimit", "127.0.0.1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Policies []PolicyInfo `json:"policies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Policies, 5)

	byName := map[string]PolicyInfo{}
	for _, info := range body.Policies {
		byName[info.Name] = info
	}
	assert.Equal(t, int64(900000), byName["auth"].WindowMs)
	assert.Equal(t, int64(1800000), byName["auth"].BlockDuration)
	assert.Equal(t, 100, byName["api"].MaxRequests)
}

func TestAdmin_Errors(t *testing.T) {
	p := newPortal(t)

	assert.Equal(t, http.StatusBadRequest, p.do(http.MethodGet, "/admin/ratelimit/auth", "127.0.0.1").Code)
	assert.Equal(t, http.StatusNotFound, p.do(http.MethodGet, "/admin/ratelimit/nope?key=k", "127.0.0.1").Code)
	assert.Equal(t, http.StatusNotFound, p.do(http.MethodDelete, "/admin/ratelimit/nope?key=k", "127.0.0.1").Code)

	p.redis.Server.SetError("ERR down")
	assert.Equal(t, http.StatusServiceUnavailable, p.do(http.MethodGet, "/admin/ratelimit/api?key=k", "127.0.0.1").Code)

	// The request path keeps working while the store is down.
	assert.Equal(t, http.StatusUnauthorized, p.do(http.MethodPost, "/login", "1.2.3.4").Code)
}

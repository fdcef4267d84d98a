package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	pgerrors "github.com/vnykmshr/portalguard/pkg/common/errors"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/limiter"
	"github.com/vnykmshr/portalguard/pkg/ratelimit/policy"
)

// Admin is the support-tooling surface of the limiter.
type Admin interface {
	Status(ctx context.Context, policyName, key string) (limiter.Status, error)
	Reset(ctx context.Context, policyName, key string) error
	Policies() []*policy.Policy
}

// AdminHandler serves rate limit support operations over HTTP.
type AdminHandler struct {
	admin  Admin
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin Admin, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{admin: admin, logger: logger.Named("admin")}
}

// PolicyInfo describes a registered policy.
type PolicyInfo struct {
	Name          string `json:"name"`
	WindowMs      int64  `json:"windowMs"`
	MaxRequests   int    `json:"maxRequests"`
	BlockDuration int64  `json:"blockDurationMs,omitempty"`
	FailClosed    bool   `json:"failClosed"`
}

// Register mounts the admin routes on r:
//
//	GET    /admin/ratelimit              list policies
//	GET    /admin/ratelimit/:policy?key= status of one key
//	DELETE /admin/ratelimit/:policy?key= reset one key
func (h *AdminHandler) Register(r gin.IRouter) {
	g := r.Group("/admin/ratelimit")
	g.GET("", h.listPolicies)
	g.GET("/:policy", h.status)
	g.DELETE("/:policy", h.reset)
}

func (h *AdminHandler) listPolicies(c *gin.Context) {
	policies := h.admin.Policies()
	out := make([]PolicyInfo, 0, len(policies))
	for _, p := range policies {
		out = append(out, PolicyInfo{
			Name:          p.Name(),
			WindowMs:      p.Window().Milliseconds(),
			MaxRequests:   p.MaxRequests(),
			BlockDuration: p.BlockDuration().Milliseconds(),
			FailClosed:    p.FailClosed(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"policies": out})
}

func (h *AdminHandler) status(c *gin.Context) {
	name, key, ok := h.params(c)
	if !ok {
		return
	}

	st, err := h.admin.Status(c.Request.Context(), name, key)
	if err != nil {
		h.fail(c, "status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *AdminHandler) reset(c *gin.Context) {
	name, key, ok := h.params(c)
	if !ok {
		return
	}

	if err := h.admin.Reset(c.Request.Context(), name, key); err != nil {
		h.fail(c, "reset", err)
		return
	}
	h.logger.Info("rate limit reset via admin API",
		zap.String("policy", name),
		zap.String("key", key),
		zap.String("remote", c.ClientIP()),
	)
	c.JSON(http.StatusOK, gin.H{
		"policy":    name,
		"key":       key,
		"reset":     true,
		"timestamp": time.Now().UTC(),
	})
}

func (h *AdminHandler) params(c *gin.Context) (name, key string, ok bool) {
	name = c.Param("policy")
	key = c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key parameter is required"})
		return "", "", false
	}
	return name, key, true
}

func (h *AdminHandler) fail(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pgerrors.ErrUnknownPolicy):
		status = http.StatusNotFound
	case pgerrors.IsStoreUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	if status != http.StatusNotFound {
		h.logger.Error("admin "+op+" failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

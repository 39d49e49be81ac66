package tenants

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/masilo-dev/alphaclone-meetings/internal/middleware"
	"github.com/masilo-dev/alphaclone-meetings/pkg/response"
)

// Handler handles tenant HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a tenants handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// SetPlan handles PUT /tenants/me/plan (admin only). Switches the caller
// tenant onto a different plan; the new limits apply to the next quota check.
func (h *Handler) SetPlan(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	var body struct {
		Plan string `json:"plan" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "plan required")
		return
	}
	if _, err := h.repo.GetPlan(c.Request.Context(), body.Plan); err != nil {
		response.NotFound(c, "unknown plan")
		return
	}
	if err := h.repo.SetPlan(c.Request.Context(), tenantID, body.Plan); err != nil {
		response.Internal(c, "failed to update plan")
		return
	}
	response.OK(c, gin.H{"plan": body.Plan})
}

// GetPlan handles GET /tenants/me/plan. Returns the caller tenant's resolved
// quota snapshot (used by the client to render upgrade prompts).
func (h *Handler) GetPlan(c *gin.Context) {
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	snap, err := h.repo.TenantSnapshot(c.Request.Context(), tenantID)
	if err != nil {
		response.NotFound(c, "tenant not found")
		return
	}
	response.OK(c, snap)
}

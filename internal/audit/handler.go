package audit

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// Lister reads audit logs.
type Lister interface {
	List(ctx context.Context, f Filter) ([]models.AuditLog, error)
}

// Handler serves the moderator audit log view.
type Handler struct {
	repo   Lister
	logger *zap.Logger
}

// NewHandler creates an audit handler.
func NewHandler(repo Lister, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /admin/audit-logs?entityType&entityId&limit.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.repo.List(c.Request.Context(), Filter{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		Limit:      limit,
	})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

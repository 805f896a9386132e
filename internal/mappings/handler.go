package mappings

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// Handler serves the mapping registry under /admin.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a mappings handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the registry routes. g must be gated with RequireModerator.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/provider-mappings", h.List)
	g.GET("/provider-mappings/conflicts", h.CheckConflict)
	g.GET("/provider-mappings/:id", h.Get)
	g.POST("/provider-mappings", h.Create)
	g.PATCH("/provider-mappings/:id", h.Update)
	g.DELETE("/provider-mappings/:id", h.Delete)
	g.GET("/coverage", h.Coverage)
	g.GET("/unmapped", h.Unmapped)
}

func (h *Handler) fail(c *gin.Context, err error) {
	response.Error(c, h.logger, err)
}

func (h *Handler) mappingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.fail(c, apperr.Validation("invalid mapping id").WithField("id", "uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func actor(c *gin.Context) uuid.UUID {
	return middleware.Access(c).User.ID
}

// List handles GET /admin/provider-mappings?providerName&entityType&internalEntityId&active&limit&offset.
func (h *Handler) List(c *gin.Context) {
	f := models.MappingFilter{
		ProviderName:     c.Query("providerName"),
		EntityType:       models.MappingEntityType(c.Query("entityType")),
		InternalEntityID: c.Query("internalEntityId"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(c, apperr.Validation("active must be true or false").WithField("active", "boolean"))
			return
		}
		f.Active = &active
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	list, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// CheckConflict handles GET /admin/provider-mappings/conflicts. It reports a
// conflict without writing anything; data is null when the mapping is free.
func (h *Handler) CheckConflict(c *gin.Context) {
	q := ConflictQuery{
		ProviderName:     c.Query("providerName"),
		EntityType:       models.MappingEntityType(c.Query("entityType")),
		ProviderEntityID: c.Query("providerEntityId"),
		InternalEntityID: c.Query("internalEntityId"),
	}
	if !q.EntityType.Valid() {
		h.fail(c, apperr.Validation("unknown entity type").WithField("entityType", "oneof"))
		return
	}
	if raw := c.Query("excludeId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(c, apperr.Validation("invalid exclude id").WithField("excludeId", "uuid"))
			return
		}
		q.ExcludeID = &id
	}
	conflict, err := h.svc.CheckConflict(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, conflict)
}

// Get handles GET /admin/provider-mappings/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.mappingID(c)
	if !ok {
		return
	}
	m, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m)
}

// Create handles POST /admin/provider-mappings.
func (h *Handler) Create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	m, err := h.svc.Create(c.Request.Context(), actor(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, m)
}

// Update handles PATCH /admin/provider-mappings/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := h.mappingID(c)
	if !ok {
		return
	}
	var body UpdateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	m, err := h.svc.Update(c.Request.Context(), actor(c), id, body)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m)
}

// Delete handles DELETE /admin/provider-mappings/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := h.mappingID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor(c), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Coverage handles GET /admin/coverage?sport&source.
func (h *Handler) Coverage(c *gin.Context) {
	stats, err := h.svc.CoverageStats(c.Request.Context(), c.Query("sport"), c.Query("source"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, stats)
}

// Unmapped handles GET /admin/unmapped?entityType&sport&limit.
func (h *Handler) Unmapped(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.UnmappedEntities(c.Request.Context(), models.MappingEntityType(c.Query("entityType")),
		c.Query("sport"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

package apikeys

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/internal/organizations"
	"github.com/pitchside/backend/internal/sports"
	"github.com/pitchside/backend/pkg/response"
)

// Handler serves key management under /partner/organizations/:orgId/api-keys.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an API key handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CreateKeyRequest is the body for POST .../api-keys.
type CreateKeyRequest struct {
	Name               string               `json:"name" binding:"required"`
	Scopes             []models.APIKeyScope `json:"scopes"`
	RateLimitPerMinute int                  `json:"rateLimitPerMinute"`
	RateLimitPerDay    int                  `json:"rateLimitPerDay"`
}

// Create handles POST /partner/organizations/:orgId/api-keys. The raw key is in the response only.
func (h *Handler) Create(c *gin.Context) {
	var body CreateKeyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, h.logger, response.BindError(err))
		return
	}
	key, err := h.svc.Create(c.Request.Context(), organizations.ActorFrom(c), organizations.OrgIDFrom(c), CreateInput{
		Name: body.Name, Scopes: body.Scopes,
		RateLimitPerMinute: body.RateLimitPerMinute, RateLimitPerDay: body.RateLimitPerDay,
	})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, key)
}

// List handles GET /partner/organizations/:orgId/api-keys.
func (h *Handler) List(c *gin.Context) {
	keys, err := h.svc.List(c.Request.Context(), organizations.OrgIDFrom(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, keys)
}

// Revoke handles DELETE /partner/organizations/:orgId/api-keys/:keyId.
func (h *Handler) Revoke(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		response.Error(c, h.logger, apperr.Validation("invalid key id").WithField("keyId", "uuid"))
		return
	}
	key, err := h.svc.Revoke(c.Request.Context(), organizations.ActorFrom(c), organizations.OrgIDFrom(c), keyID)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, key)
}

// DataReader is the slice of the sports directory exposed to partners.
type DataReader interface {
	ListLeagues(ctx context.Context, f sports.LeagueFilter) ([]models.League, error)
	GetLeague(ctx context.Context, id string) (*models.League, error)
	ListTeams(ctx context.Context, leagueID string) ([]models.Team, error)
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListFixtures(ctx context.Context, teamID, seasonID string) ([]models.Fixture, error)
}

// DataHandler serves /api/v1 for API key holders.
type DataHandler struct {
	repo   DataReader
	logger *zap.Logger
}

// NewDataHandler creates the partner data API handler.
func NewDataHandler(repo DataReader, logger *zap.Logger) *DataHandler {
	return &DataHandler{repo: repo, logger: logger}
}

// Register mounts the data routes on g.
func (h *DataHandler) Register(g *gin.RouterGroup) {
	g.GET("/leagues", h.ListLeagues)
	g.GET("/leagues/:id/teams", h.ListTeams)
	g.GET("/teams/:id/fixtures", h.ListFixtures)
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func pageParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListLeagues handles GET /api/v1/leagues?countryId&sport&limit&offset.
func (h *DataHandler) ListLeagues(c *gin.Context) {
	limit, offset := pageParams(c)
	list, err := h.repo.ListLeagues(c.Request.Context(), sports.LeagueFilter{
		CountryID: c.Query("countryId"), Sport: c.Query("sport"), Limit: limit, Offset: offset,
	})
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// ListTeams handles GET /api/v1/leagues/:id/teams.
func (h *DataHandler) ListTeams(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.repo.GetLeague(ctx, c.Param("id")); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	list, err := h.repo.ListTeams(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// ListFixtures handles GET /api/v1/teams/:id/fixtures?seasonId.
func (h *DataHandler) ListFixtures(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := h.repo.GetTeam(ctx, c.Param("id")); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	list, err := h.repo.ListFixtures(ctx, c.Param("id"), c.Query("seasonId"))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

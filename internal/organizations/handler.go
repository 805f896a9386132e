package organizations

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an organizations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CreateOrganizationRequest is the body for POST /partner/organizations.
type CreateOrganizationRequest struct {
	Name        string         `json:"name" binding:"required"`
	Slug        string         `json:"slug"`
	Type        models.OrgType `json:"type" binding:"required"`
	City        string         `json:"city"`
	StateCode   string         `json:"stateCode"`
	CountryCode string         `json:"countryCode"`
	Website     string         `json:"website"`
}

// UpdateOrganizationRequest is the body for PATCH /partner/organizations/:orgId.
type UpdateOrganizationRequest struct {
	Name        *string         `json:"name"`
	Type        *models.OrgType `json:"type"`
	City        *string         `json:"city"`
	StateCode   *string         `json:"stateCode"`
	CountryCode *string         `json:"countryCode"`
	Website     *string         `json:"website"`
}

// AddMemberRequest is the body for POST /partner/organizations/:orgId/members.
type AddMemberRequest struct {
	UserID *uuid.UUID     `json:"userId"`
	Email  string         `json:"email"`
	Role   models.OrgRole `json:"role" binding:"required"`
}

// ChangeRoleRequest is the body for PATCH /partner/organizations/:orgId/members/:userId.
type ChangeRoleRequest struct {
	Role models.OrgRole `json:"role" binding:"required"`
}

// RejectRequest is the body for POST /admin/organizations/:orgId/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) fail(c *gin.Context, err error) {
	response.Error(c, h.logger, err)
}

// CreateOrganization handles POST /partner/organizations. The caller becomes owner.
func (h *Handler) CreateOrganization(c *gin.Context) {
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	org, err := h.svc.Create(c.Request.Context(), middleware.Access(c).User.ID, CreateInput{
		Name: body.Name, Slug: body.Slug, Type: body.Type,
		City: body.City, StateCode: body.StateCode, CountryCode: body.CountryCode, Website: body.Website,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, org)
}

// ListMyOrganizations handles GET /partner/organizations.
func (h *Handler) ListMyOrganizations(c *gin.Context) {
	orgs, err := h.svc.ListMine(c.Request.Context(), middleware.Access(c).User.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, orgs)
}

// GetOrganization handles GET /partner/organizations/:orgId.
func (h *Handler) GetOrganization(c *gin.Context) {
	org, err := h.svc.Get(c.Request.Context(), OrgIDFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, org)
}

// UpdateOrganization handles PATCH /partner/organizations/:orgId.
func (h *Handler) UpdateOrganization(c *gin.Context) {
	var body UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	org, err := h.svc.Update(c.Request.Context(), ActorFrom(c), OrgIDFrom(c), UpdateInput{
		Name: body.Name, Type: body.Type, City: body.City, StateCode: body.StateCode,
		CountryCode: body.CountryCode, Website: body.Website,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, org)
}

// DeleteOrganization handles DELETE /partner/organizations/:orgId.
func (h *Handler) DeleteOrganization(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), ActorFrom(c), OrgIDFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// RequestVerification handles POST /partner/organizations/:orgId/verification.
func (h *Handler) RequestVerification(c *gin.Context) {
	org, err := h.svc.RequestVerification(c.Request.Context(), ActorFrom(c), OrgIDFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, org)
}

// ListMembers handles GET /partner/organizations/:orgId/members.
func (h *Handler) ListMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context(), OrgIDFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, members)
}

// AddMember handles POST /partner/organizations/:orgId/members.
func (h *Handler) AddMember(c *gin.Context) {
	var body AddMemberRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	m, err := h.svc.AddMember(c.Request.Context(), ActorFrom(c), OrgIDFrom(c), AddMemberInput{
		UserID: body.UserID, Email: body.Email, Role: body.Role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, m)
}

// ChangeMemberRole handles PATCH /partner/organizations/:orgId/members/:userId.
func (h *Handler) ChangeMemberRole(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	var body ChangeRoleRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	m, err := h.svc.ChangeRole(c.Request.Context(), ActorFrom(c), OrgIDFrom(c), userID, body.Role)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, m)
}

// RemoveMember handles DELETE /partner/organizations/:orgId/members/:userId.
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, ok := h.userParam(c)
	if !ok {
		return
	}
	if err := h.svc.RemoveMember(c.Request.Context(), ActorFrom(c), OrgIDFrom(c), userID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) userParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		h.fail(c, apperr.Validation("invalid user id").WithField("userId", "uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// ListForModeration handles GET /admin/organizations?status.
func (h *Handler) ListForModeration(c *gin.Context) {
	orgs, err := h.svc.ListByStatus(c.Request.Context(), models.VerificationStatus(c.Query("status")))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, orgs)
}

// Verify handles POST /admin/organizations/:orgId/verify.
func (h *Handler) Verify(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		h.fail(c, apperr.Validation("invalid organization id"))
		return
	}
	org, err := h.svc.Verify(c.Request.Context(), middleware.Access(c).User.ID, orgID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, org)
}

// Reject handles POST /admin/organizations/:orgId/reject.
func (h *Handler) Reject(c *gin.Context) {
	orgID, err := uuid.Parse(c.Param("orgId"))
	if err != nil {
		h.fail(c, apperr.Validation("invalid organization id"))
		return
	}
	var body RejectRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, response.BindError(err))
		return
	}
	org, err := h.svc.RejectVerification(c.Request.Context(), middleware.Access(c).User.ID, orgID, body.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, org)
}

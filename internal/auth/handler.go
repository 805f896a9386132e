package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
	"github.com/pitchside/backend/pkg/utils"
)

// UserStore is the user persistence the handler needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, email, passwordHash, displayName string) (*models.User, error)
	ChangePlan(ctx context.Context, userID uuid.UUID, plan models.PlanTier) (*models.User, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"displayName" binding:"required,max=100"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChangePlanRequest is the body for POST /me/plan.
type ChangePlanRequest struct {
	Plan models.PlanTier `json:"plan" binding:"required"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Capabilities mirrors the request's access context for clients.
type Capabilities struct {
	CanAccessGrassroots bool `json:"canAccessGrassroots"`
	IsVerifiedPartner   bool `json:"isVerifiedPartner"`
	CanManageOrg        bool `json:"canManageOrg"`
	CanEditOrgData      bool `json:"canEditOrgData"`
	CanVerifyPartners   bool `json:"canVerifyPartners"`
}

// MeResponse is the body of GET /me.
type MeResponse struct {
	User                models.UserPublic    `json:"user"`
	Features            models.PlanFeatures  `json:"features"`
	PrimaryOrganization *models.Organization `json:"primaryOrganization,omitempty"`
	MembershipRole      models.OrgRole       `json:"membershipRole,omitempty"`
	Capabilities        Capabilities         `json:"capabilities"`
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	users  UserStore
	jwt    *JWTService
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(users UserStore, jwt *JWTService, logger *zap.Logger) *Handler {
	return &Handler{users: users, jwt: jwt, logger: logger}
}

// Register handles POST /auth/register. New users start on the free plan.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, response.BindError(err))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	user, err := h.users.Create(c.Request.Context(), email, hash, strings.TrimSpace(req.DisplayName))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Error(c, h.logger, apperr.Internal(err))
		return
	}
	h.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	response.Created(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, response.BindError(err))
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			response.Unauthorized(c, "invalid email or password")
			return
		}
		response.Error(c, h.logger, err)
		return
	}
	if !utils.CheckPassword(req.Password, user.Password) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(user.ID, user.Email)
	if err != nil {
		response.Error(c, h.logger, apperr.Internal(err))
		return
	}
	response.OK(c, TokenResponse{Token: token, User: user.ToPublic()})
}

// Me handles GET /me.
func (h *Handler) Me(c *gin.Context) {
	ac := middleware.Access(c)
	response.OK(c, meResponse(ac))
}

func meResponse(ac *middleware.AccessContext) MeResponse {
	return MeResponse{
		User:                ac.User.ToPublic(),
		Features:            ac.User.Plan.Features(),
		PrimaryOrganization: ac.PrimaryOrg,
		MembershipRole:      ac.MembershipRole,
		Capabilities: Capabilities{
			CanAccessGrassroots: ac.CanAccessGrassroots,
			IsVerifiedPartner:   ac.IsVerifiedPartner,
			CanManageOrg:        ac.CanManageOrg,
			CanEditOrgData:      ac.CanEditOrgData,
			CanVerifyPartners:   ac.CanVerifyPartners,
		},
	}
}

// ChangePlan handles POST /me/plan. Billing is out of scope; the plan is set directly.
func (h *Handler) ChangePlan(c *gin.Context) {
	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, response.BindError(err))
		return
	}
	if !req.Plan.Valid() {
		response.Error(c, h.logger, apperr.Validation("unknown plan").WithField("plan", "oneof"))
		return
	}
	ac := middleware.Access(c)
	user, err := h.users.ChangePlan(c.Request.Context(), ac.User.ID, req.Plan)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.logger.Info("plan changed", zap.String("user_id", user.ID.String()), zap.String("plan", string(user.Plan)))
	response.OK(c, meResponse(middleware.NewAccessContext(user, ac.PrimaryOrg, ac.MembershipRole)))
}

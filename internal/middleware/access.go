package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/models"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextAccess is the key for the resolved *AccessContext.
	ContextAccess = "access"
)

// AccessContext is the per-request view of who is calling and what they may do.
// An anonymous caller has a nil User and every capability false.
type AccessContext struct {
	User                *models.User
	PrimaryOrg          *models.Organization
	MembershipRole      models.OrgRole
	CanAccessGrassroots bool
	IsVerifiedPartner   bool
	CanManageOrg        bool
	CanEditOrgData      bool
	CanVerifyPartners   bool
}

// NewAccessContext computes capabilities for user, their primary organization
// (may be nil) and their role in it (empty when not a member).
func NewAccessContext(user *models.User, primary *models.Organization, role models.OrgRole) *AccessContext {
	if user == nil {
		return &AccessContext{}
	}
	if primary == nil {
		role = ""
	}
	return &AccessContext{
		User:                user,
		PrimaryOrg:          primary,
		MembershipRole:      role,
		CanAccessGrassroots: user.Plan.Features().Grassroots,
		IsVerifiedPartner:   primary.IsVerified(),
		CanManageOrg:        role.AtLeast(models.OrgRoleAdmin),
		CanEditOrgData:      role.AtLeast(models.OrgRoleEditor),
		CanVerifyPartners:   user.PlatformRole.CanVerifyPartners(),
	}
}

// Authenticated reports whether a user was resolved.
func (a *AccessContext) Authenticated() bool {
	return a != nil && a.User != nil
}

// IsPlatformAdmin reports whether the caller bypasses organization checks.
func (a *AccessContext) IsPlatformAdmin() bool {
	return a.Authenticated() && a.User.PlatformRole == models.PlatformRoleAdmin
}

// UserLoader loads users for the resolver.
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// OrgLoader loads organizations and memberships for the resolver and org gates.
type OrgLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	MemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error)
}

// TokenParser turns a bearer token into a user id.
type TokenParser interface {
	UserIDFromToken(token string) (uuid.UUID, error)
}

// ResolveAccess attaches an *AccessContext to every request. Missing, invalid
// or unknown identities resolve to the anonymous context instead of failing;
// RequireAuth is what rejects them.
func ResolveAccess(tokens TokenParser, users UserLoader, orgs OrgLoader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := resolve(c, tokens, users, orgs, logger)
		c.Set(ContextAccess, ac)
		if ac.Authenticated() {
			c.Set(ContextUserID, ac.User.ID)
		}
		c.Next()
	}
}

func resolve(c *gin.Context, tokens TokenParser, users UserLoader, orgs OrgLoader, logger *zap.Logger) *AccessContext {
	raw := bearerToken(c)
	if raw == "" {
		return &AccessContext{}
	}
	userID, err := tokens.UserIDFromToken(raw)
	if err != nil {
		return &AccessContext{}
	}
	ctx := c.Request.Context()
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			logger.Warn("resolve user failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return &AccessContext{}
	}
	if user.PrimaryOrganizationID == nil {
		return NewAccessContext(user, nil, "")
	}
	org, err := orgs.GetByID(ctx, *user.PrimaryOrganizationID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			logger.Warn("resolve primary organization failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
		return NewAccessContext(user, nil, "")
	}
	role, err := orgs.MemberRole(ctx, org.ID, user.ID)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		logger.Warn("resolve membership failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return NewAccessContext(user, org, role)
}

// bearerToken reads the Authorization header. WebSocket upgrades may pass the
// token as ?token= since browsers cannot set headers on them.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c.IsWebsocket() {
		return c.Query("token")
	}
	return ""
}

// Access returns the request's access context, anonymous if none was resolved.
func Access(c *gin.Context) *AccessContext {
	if v, ok := c.Get(ContextAccess); ok {
		if ac, ok := v.(*AccessContext); ok && ac != nil {
			return ac
		}
	}
	return &AccessContext{}
}

// WithAccess stores ac on the context. Used by tests and internal callers.
func WithAccess(c *gin.Context, ac *AccessContext) {
	c.Set(ContextAccess, ac)
	if ac.Authenticated() {
		c.Set(ContextUserID, ac.User.ID)
	}
}

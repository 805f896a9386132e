package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// Gates read the access context resolved by ResolveAccess and abort with the
// first failing check. They never write to the database.

// RequireAuth rejects anonymous callers with 401.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Access(c).Authenticated() {
			response.Abort(c, nil, apperr.AuthenticationRequired())
			return
		}
		c.Next()
	}
}

// RequirePlan admits callers whose plan is in plans. The rejection carries the
// lowest acceptable plan so clients can prompt the right upgrade.
func RequirePlan(plans ...models.PlanTier) gin.HandlerFunc {
	allowed := make(map[models.PlanTier]struct{}, len(plans))
	var minimal models.PlanTier
	for _, p := range plans {
		allowed[p] = struct{}{}
		if minimal == "" || p.Rank() < minimal.Rank() {
			minimal = p
		}
	}
	return func(c *gin.Context) {
		ac := Access(c)
		if !ac.Authenticated() {
			response.Abort(c, nil, apperr.AuthenticationRequired())
			return
		}
		if _, ok := allowed[ac.User.Plan]; !ok {
			response.Abort(c, nil, apperr.UpgradeRequired(string(minimal)))
			return
		}
		c.Next()
	}
}

// RequireGrassrootsAccess admits callers whose plan unlocks grassroots submissions.
func RequireGrassrootsAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := Access(c)
		if !ac.Authenticated() {
			response.Abort(c, nil, apperr.AuthenticationRequired())
			return
		}
		if !ac.CanAccessGrassroots {
			response.Abort(c, nil, apperr.PartnerSubscriptionRequired())
			return
		}
		c.Next()
	}
}

// RequireVerifiedPartner admits callers whose primary organization is verified.
func RequireVerifiedPartner() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := Access(c)
		if !ac.Authenticated() {
			response.Abort(c, nil, apperr.AuthenticationRequired())
			return
		}
		if !ac.IsVerifiedPartner {
			response.Abort(c, nil, apperr.VerifiedPartnerRequired())
			return
		}
		c.Next()
	}
}

// RequireModerator admits platform admins and moderators.
func RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		ac := Access(c)
		if !ac.Authenticated() {
			response.Abort(c, nil, apperr.AuthenticationRequired())
			return
		}
		if !ac.CanVerifyPartners {
			response.Abort(c, nil, apperr.Forbidden("platform moderator role required"))
			return
		}
		c.Next()
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanTier is the subscription tier of a user.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPro     PlanTier = "pro"
	PlanPartner PlanTier = "partner"
)

// AllPlans lists plan tiers from lowest to highest.
var AllPlans = []PlanTier{PlanFree, PlanPro, PlanPartner}

// Valid reports whether p is a known plan tier.
func (p PlanTier) Valid() bool {
	return p.Rank() > 0
}

// Rank orders plans: free 1, pro 2, partner 3. Unknown plans rank 0.
func (p PlanTier) Rank() int {
	switch p {
	case PlanFree:
		return 1
	case PlanPro:
		return 2
	case PlanPartner:
		return 3
	}
	return 0
}

// PlanFeatures are the feature flags unlocked by a plan tier.
type PlanFeatures struct {
	AdvancedStats bool `json:"advancedStats"`
	Grassroots    bool `json:"grassroots"`
	Organizations bool `json:"organizations"`
	APIKeys       bool `json:"apiKeys"`
}

// Features returns the feature flags for the plan.
func (p PlanTier) Features() PlanFeatures {
	switch p {
	case PlanPro:
		return PlanFeatures{AdvancedStats: true}
	case PlanPartner:
		return PlanFeatures{AdvancedStats: true, Grassroots: true, Organizations: true, APIKeys: true}
	}
	return PlanFeatures{}
}

// PlatformRole is the platform-wide role of a user, independent of organizations.
type PlatformRole string

const (
	PlatformRoleUser      PlatformRole = "user"
	PlatformRolePartner   PlatformRole = "partner_admin"
	PlatformRoleModerator PlatformRole = "platform_moderator"
	PlatformRoleAdmin     PlatformRole = "platform_admin"
)

// Valid reports whether r is a known platform role.
func (r PlatformRole) Valid() bool {
	switch r {
	case PlatformRoleUser, PlatformRolePartner, PlatformRoleModerator, PlatformRoleAdmin:
		return true
	}
	return false
}

// CanVerifyPartners grants organization verification and grassroots moderation.
func (r PlatformRole) CanVerifyPartners() bool {
	return r == PlatformRoleAdmin || r == PlatformRoleModerator
}

// User represents a platform user.
type User struct {
	ID                    uuid.UUID    `json:"id"`
	Email                 string       `json:"email"`
	Password              string       `json:"-"`
	DisplayName           string       `json:"displayName"`
	Plan                  PlanTier     `json:"plan"`
	PlatformRole          PlatformRole `json:"platformRole"`
	PrimaryOrganizationID *uuid.UUID   `json:"primaryOrganizationId,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// UserPublic is User without sensitive fields for API responses.
type UserPublic struct {
	ID                    uuid.UUID    `json:"id"`
	Email                 string       `json:"email"`
	DisplayName           string       `json:"displayName"`
	Plan                  PlanTier     `json:"plan"`
	PlatformRole          PlatformRole `json:"platformRole"`
	PrimaryOrganizationID *uuid.UUID   `json:"primaryOrganizationId,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
}

// ToPublic converts User to UserPublic.
func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:                    u.ID,
		Email:                 u.Email,
		DisplayName:           u.DisplayName,
		Plan:                  u.Plan,
		PlatformRole:          u.PlatformRole,
		PrimaryOrganizationID: u.PrimaryOrganizationID,
		CreatedAt:             u.CreatedAt,
	}
}

// Subscription records a plan change for a user.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Plan      PlanTier  `json:"plan"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

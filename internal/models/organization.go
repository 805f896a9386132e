package models

import (
	"time"

	"github.com/google/uuid"
)

// OrgType is the kind of partner organization.
type OrgType string

const (
	OrgTypeClub        OrgType = "club"
	OrgTypeLeague      OrgType = "league"
	OrgTypeTournament  OrgType = "tournament"
	OrgTypeFanClub     OrgType = "fan_club"
	OrgTypePickupGroup OrgType = "pickup_group"
)

// Valid reports whether t is a known organization type.
func (t OrgType) Valid() bool {
	switch t {
	case OrgTypeClub, OrgTypeLeague, OrgTypeTournament, OrgTypeFanClub, OrgTypePickupGroup:
		return true
	}
	return false
}

// VerificationStatus is the verification state of an organization.
type VerificationStatus string

const (
	VerificationDraft    VerificationStatus = "draft"
	VerificationReview   VerificationStatus = "review"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Valid reports whether s is a known verification status.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationDraft, VerificationReview, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// OrgRole is the role of a member within an organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleEditor OrgRole = "editor"
	OrgRoleViewer OrgRole = "viewer"
)

// Rank orders roles viewer(1) < editor(2) < admin(3) < owner(4). Unknown roles rank 0.
func (r OrgRole) Rank() int {
	switch r {
	case OrgRoleViewer:
		return 1
	case OrgRoleEditor:
		return 2
	case OrgRoleAdmin:
		return 3
	case OrgRoleOwner:
		return 4
	}
	return 0
}

// Valid reports whether r is a known organization role.
func (r OrgRole) Valid() bool {
	return r.Rank() > 0
}

// AtLeast reports whether r is min or higher in the role hierarchy.
func (r OrgRole) AtLeast(min OrgRole) bool {
	return r.Valid() && r.Rank() >= min.Rank()
}

// Organization represents a partner tenant (club, league, tournament, ...).
type Organization struct {
	ID                 uuid.UUID          `json:"id"`
	Name               string             `json:"name"`
	Slug               string             `json:"slug"`
	Type               OrgType            `json:"type"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	CreatedBy          uuid.UUID          `json:"createdBy"`
	City               string             `json:"city,omitempty"`
	StateCode          string             `json:"stateCode,omitempty"`
	CountryCode        string             `json:"countryCode,omitempty"`
	Website            string             `json:"website,omitempty"`
	RejectionReason    string             `json:"rejectionReason,omitempty"`
	VerifiedAt         *time.Time         `json:"verifiedAt,omitempty"`
	VerifiedBy         *uuid.UUID         `json:"verifiedBy,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// IsVerified reports whether the organization passed verification.
func (o *Organization) IsVerified() bool {
	return o != nil && o.VerificationStatus == VerificationVerified
}

// OrganizationMember links a user to an organization with a role.
type OrganizationMember struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	UserID         uuid.UUID  `json:"userId"`
	Role           OrgRole    `json:"role"`
	InvitedBy      *uuid.UUID `json:"invitedBy,omitempty"`
	Email          string     `json:"email,omitempty"`
	DisplayName    string     `json:"displayName,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

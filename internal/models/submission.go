package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GrassrootsType classifies the community a submission comes from.
type GrassrootsType string

const (
	GrassrootsCollege      GrassrootsType = "college"
	GrassrootsHighSchool   GrassrootsType = "high_school"
	GrassrootsYouth        GrassrootsType = "youth"
	GrassrootsAdultAmateur GrassrootsType = "adult_amateur"
	GrassrootsPickup       GrassrootsType = "pickup"
)

// Valid reports whether t is a known grassroots type.
func (t GrassrootsType) Valid() bool {
	switch t {
	case GrassrootsCollege, GrassrootsHighSchool, GrassrootsYouth, GrassrootsAdultAmateur, GrassrootsPickup:
		return true
	}
	return false
}

// SubmissionEntityType is the kind of authoritative entity a submission proposes.
type SubmissionEntityType string

const (
	SubmissionLeague   SubmissionEntityType = "league"
	SubmissionDivision SubmissionEntityType = "division"
	SubmissionTeam     SubmissionEntityType = "team"
	SubmissionVenue    SubmissionEntityType = "venue"
	SubmissionSeason   SubmissionEntityType = "season"
)

// Valid reports whether t is one of the five submittable entity types.
func (t SubmissionEntityType) Valid() bool {
	switch t {
	case SubmissionLeague, SubmissionDivision, SubmissionTeam, SubmissionVenue, SubmissionSeason:
		return true
	}
	return false
}

// SubmissionStatus is the moderation state of a grassroots submission.
type SubmissionStatus string

const (
	SubmissionStatusDraft    SubmissionStatus = "draft"
	SubmissionStatusPending  SubmissionStatus = "pending"
	SubmissionStatusReview   SubmissionStatus = "review"
	SubmissionStatusApproved SubmissionStatus = "approved"
	SubmissionStatusPromoted SubmissionStatus = "promoted"
	SubmissionStatusRejected SubmissionStatus = "rejected"
)

// Valid reports whether s is a known submission status.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusDraft, SubmissionStatusPending, SubmissionStatusReview,
		SubmissionStatusApproved, SubmissionStatusPromoted, SubmissionStatusRejected:
		return true
	}
	return false
}

// Rank orders the forward path draft < pending < review < approved < promoted.
// Rejected is terminal and ranks above everything so nothing leaves it.
func (s SubmissionStatus) Rank() int {
	switch s {
	case SubmissionStatusDraft:
		return 0
	case SubmissionStatusPending:
		return 1
	case SubmissionStatusReview:
		return 2
	case SubmissionStatusApproved:
		return 3
	case SubmissionStatusPromoted:
		return 4
	case SubmissionStatusRejected:
		return 5
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionStatusPromoted || s == SubmissionStatusRejected
}

// GrassrootsSubmission is a community-contributed candidate entity awaiting moderation.
type GrassrootsSubmission struct {
	ID               uuid.UUID            `json:"id"`
	SubmittedBy      uuid.UUID            `json:"submittedBy"`
	OrganizationID   *uuid.UUID           `json:"organizationId,omitempty"`
	Type             GrassrootsType       `json:"type"`
	EntityType       SubmissionEntityType `json:"entityType"`
	Status           SubmissionStatus     `json:"status"`
	EntityName       string               `json:"entityName"`
	Slug             string               `json:"slug"`
	ShortName        string               `json:"shortName,omitempty"`
	City             string               `json:"city,omitempty"`
	StateCode        string               `json:"stateCode,omitempty"`
	CountryCode      string               `json:"countryCode,omitempty"`
	Tier             *int                 `json:"tier,omitempty"`
	AgeGroup         string               `json:"ageGroup,omitempty"`
	Gender           string               `json:"gender,omitempty"`
	VenueName        string               `json:"venueName,omitempty"`
	LogoURL          string               `json:"logoUrl,omitempty"`
	Payload          json.RawMessage      `json:"payload,omitempty"`
	ParentLeagueID   string               `json:"parentLeagueId,omitempty"`
	ParentDivisionID string               `json:"parentDivisionId,omitempty"`
	ParentTeamID     string               `json:"parentTeamId,omitempty"`
	PromotedEntityID string               `json:"promotedEntityId,omitempty"`
	PromotedAt       *time.Time           `json:"promotedAt,omitempty"`
	ReviewedBy       *uuid.UUID           `json:"reviewedBy,omitempty"`
	ReviewedAt       *time.Time           `json:"reviewedAt,omitempty"`
	ReviewNotes      string               `json:"reviewNotes,omitempty"`
	RejectionReason  string               `json:"rejectionReason,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// IsPromoted reports whether the submission has been promoted or linked.
func (s *GrassrootsSubmission) IsPromoted() bool {
	return s.PromotedEntityID != ""
}

// SubmissionFilter narrows submission listings. Zero values match everything.
type SubmissionFilter struct {
	SubmittedBy *uuid.UUID
	Status      SubmissionStatus
	Type        GrassrootsType
	EntityType  SubmissionEntityType
	Limit       int
	Offset      int
}

// MatchType qualifies a duplicate candidate.
type MatchType string

const (
	MatchExact   MatchType = "exact"
	MatchPartial MatchType = "partial"
)

// DuplicateCandidate is an existing authoritative entity that may duplicate a submission.
type DuplicateCandidate struct {
	EntityID          string    `json:"entityId"`
	EntityType        string    `json:"entityType"`
	Name              string    `json:"name"`
	Slug              string    `json:"slug"`
	MatchType         MatchType `json:"matchType"`
	ConfidencePercent int       `json:"confidencePercent"`
	MatchedOn         []string  `json:"matchedOn"`
}

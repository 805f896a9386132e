// Package audit stores the append-only audit trail of privileged mutations.
// Entries are written with the same database handle as the mutation they
// describe so both commit or roll back together.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/backend/internal/models"
)

// Actions
const (
	ActionCreateOrganization   = "create_organization"
	ActionUpdateOrganization   = "update_organization"
	ActionDeleteOrganization   = "delete_organization"
	ActionRequestVerification  = "request_verification"
	ActionVerifyOrganization   = "verify_organization"
	ActionRejectOrganization   = "reject_organization"
	ActionAddMember            = "add_member"
	ActionChangeMemberRole     = "change_member_role"
	ActionRemoveMember         = "remove_member"
	ActionCreateAPIKey         = "create_api_key"
	ActionRevokeAPIKey         = "revoke_api_key"
	ActionCreateSubmission     = "create_submission"
	ActionSubmitForReview      = "submit_for_review"
	ActionStartReview          = "start_review"
	ActionApproveSubmission    = "approve"
	ActionRejectSubmission     = "reject"
	ActionPromoteSubmission    = "promote"
	ActionLinkExisting         = "link_existing"
	ActionCreateMapping        = "create_provider_mapping"
	ActionUpdateMapping        = "update_provider_mapping"
	ActionDeleteMapping        = "delete_provider_mapping"
	ActionChangePlan           = "change_plan"
)

// Entity types
const (
	EntityOrganization = "organization"
	EntityMember       = "organization_member"
	EntityAPIKey       = "api_key"
	EntitySubmission   = "grassroots_submission"
	EntityMapping      = "provider_mapping"
	EntityUser         = "user"
)

// Entry describes one audit record before it is persisted.
type Entry struct {
	ActorID    *uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	EntityName string
	Previous   interface{}
	Next       interface{}
}

// NewEntry builds an entry performed by actor.
func NewEntry(actor uuid.UUID, action, entityType, entityID, entityName string) Entry {
	a := actor
	return Entry{ActorID: &a, Action: action, EntityType: entityType, EntityID: entityID, EntityName: entityName}
}

// WithData sets the before and after snapshots. Either may be nil.
func (e Entry) WithData(previous, next interface{}) Entry {
	e.Previous = previous
	e.Next = next
	return e
}

// Log converts the entry to a persisted record, assigning id and timestamp.
func (e Entry) Log(now time.Time) (models.AuditLog, error) {
	prev, err := marshalOptional(e.Previous)
	if err != nil {
		return models.AuditLog{}, err
	}
	next, err := marshalOptional(e.Next)
	if err != nil {
		return models.AuditLog{}, err
	}
	return models.AuditLog{
		ID:           uuid.New(),
		ActorID:      e.ActorID,
		Action:       e.Action,
		EntityType:   e.EntityType,
		EntityID:     e.EntityID,
		EntityName:   e.EntityName,
		PreviousData: prev,
		NewData:      next,
		CreatedAt:    now.UTC(),
	}, nil
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// Filter narrows audit listings.
type Filter struct {
	EntityType string
	EntityID   string
	ActorID    *uuid.UUID
	Limit      int
}

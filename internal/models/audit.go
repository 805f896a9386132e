package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog is an append-only record of a privileged mutation.
type AuditLog struct {
	ID           uuid.UUID       `json:"id"`
	ActorID      *uuid.UUID      `json:"actorId,omitempty"`
	Action       string          `json:"action"`
	EntityType   string          `json:"entityType"`
	EntityID     string          `json:"entityId"`
	EntityName   string          `json:"entityName,omitempty"`
	PreviousData json.RawMessage `json:"previousData,omitempty"`
	NewData      json.RawMessage `json:"newData,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MappingEntityType is the kind of entity a provider mapping refers to.
type MappingEntityType string

const (
	MappingContinent MappingEntityType = "continent"
	MappingCountry   MappingEntityType = "country"
	MappingLeague    MappingEntityType = "league"
	MappingTeam      MappingEntityType = "team"
	MappingSeason    MappingEntityType = "season"
	MappingPlayer    MappingEntityType = "player"
	MappingFixture   MappingEntityType = "fixture"
)

// AllMappingEntityTypes lists every mappable entity type in report order.
var AllMappingEntityTypes = []MappingEntityType{
	MappingContinent, MappingCountry, MappingLeague, MappingTeam, MappingSeason, MappingPlayer, MappingFixture,
}

// Valid reports whether t is a known mapping entity type.
func (t MappingEntityType) Valid() bool {
	for _, v := range AllMappingEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ConflictType names which uniqueness rule a mapping would break.
type ConflictType string

const (
	ProviderConflict ConflictType = "provider_conflict"
	InternalConflict ConflictType = "internal_conflict"
)

// ProviderMapping links an external provider's entity id to an internal entity id.
type ProviderMapping struct {
	ID                 uuid.UUID         `json:"id"`
	ProviderName       string            `json:"providerName"`
	ProviderEntityType MappingEntityType `json:"providerEntityType"`
	ProviderEntityID   string            `json:"providerEntityId"`
	InternalEntityID   string            `json:"internalEntityId"`
	ProviderEntityName string            `json:"providerEntityName,omitempty"`
	Confidence         *int              `json:"confidence,omitempty"`
	IsActive           bool              `json:"isActive"`
	CreatedBy          *uuid.UUID        `json:"createdBy,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// MappingConflict describes an existing mapping that blocks a write.
type MappingConflict struct {
	Type     ConflictType     `json:"conflictType"`
	Existing *ProviderMapping `json:"existingMapping"`
}

// MappingFilter narrows mapping listings. Zero values match everything.
type MappingFilter struct {
	ProviderName     string
	EntityType       MappingEntityType
	InternalEntityID string
	Active           *bool
	Limit            int
	Offset           int
}

// CoverageStat reports how many internal entities of one type have an active mapping.
type CoverageStat struct {
	EntityType MappingEntityType `json:"entityType"`
	Total      int               `json:"total"`
	Mapped     int               `json:"mapped"`
	Percentage float64           `json:"percentage"`
}

// UnmappedEntity is an internal entity with no active provider mapping.
type UnmappedEntity struct {
	ID         string            `json:"id"`
	EntityType MappingEntityType `json:"entityType"`
	Name       string            `json:"name"`
	Slug       string            `json:"slug,omitempty"`
	Sport      string            `json:"sport,omitempty"`
}

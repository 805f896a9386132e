package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyScope is a capability granted to an API key.
type APIKeyScope string

const (
	ScopeRead  APIKeyScope = "read"
	ScopeWrite APIKeyScope = "write"
)

// Valid reports whether s is a known scope.
func (s APIKeyScope) Valid() bool {
	return s == ScopeRead || s == ScopeWrite
}

// APIKey belongs to a verified organization. The raw key is only returned once at creation.
type APIKey struct {
	ID                 uuid.UUID     `json:"id"`
	OrganizationID     uuid.UUID     `json:"organizationId"`
	Name               string        `json:"name"`
	KeyPrefix          string        `json:"keyPrefix"`
	KeyHash            string        `json:"-"`
	Scopes             []APIKeyScope `json:"scopes"`
	RateLimitPerMinute int           `json:"rateLimitPerMinute"`
	RateLimitPerDay    int           `json:"rateLimitPerDay"`
	IsActive           bool          `json:"isActive"`
	CreatedBy          uuid.UUID     `json:"createdBy"`
	LastUsedAt         *time.Time    `json:"lastUsedAt,omitempty"`
	RevokedAt          *time.Time    `json:"revokedAt,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
}

// HasScope reports whether the key was granted scope.
func (k *APIKey) HasScope(scope APIKeyScope) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

package apikeys

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/internal/organizations"
)

// Store is the persistence the service needs.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	OrganizationStatus(ctx context.Context, orgID uuid.UUID) (models.VerificationStatus, error)
	Create(ctx context.Context, key *models.APIKey) error
	List(ctx context.Context, orgID uuid.UUID) ([]models.APIKey, error)
	GetForUpdate(ctx context.Context, orgID, keyID uuid.UUID) (*models.APIKey, error)
	Revoke(ctx context.Context, keyID uuid.UUID, at time.Time) error
	GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, models.VerificationStatus, error)
	TouchLastUsed(ctx context.Context, keyID uuid.UUID, at time.Time) error

	RecordAudit(ctx context.Context, e audit.Entry) error
}

// Defaults are the limits given to keys created without explicit ones.
type Defaults struct {
	PerMinute int
	PerDay    int
}

// Service manages API keys.
type Service struct {
	store    Store
	defaults Defaults
	logger   *zap.Logger
	now      func() time.Time
	generate func() (GeneratedKey, error)
}

// NewService creates an API key service.
func NewService(store Store, defaults Defaults, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, defaults: defaults, logger: logger, now: time.Now, generate: Generate}
}

// CreateInput describes a key to issue.
type CreateInput struct {
	Name               string
	Scopes             []models.APIKeyScope
	RateLimitPerMinute int
	RateLimitPerDay    int
}

// CreatedKey is returned once on creation with the raw key.
type CreatedKey struct {
	models.APIKey
	Key string `json:"key"`
}

// Create issues a key for a verified organization. Owner only.
func (s *Service) Create(ctx context.Context, actor organizations.Actor, orgID uuid.UUID, in CreateInput) (*CreatedKey, error) {
	if !actor.Role.AtLeast(models.OrgRoleOwner) {
		return nil, apperr.InsufficientRole(string(models.OrgRoleOwner), string(actor.Role))
	}
	// Unverified organizations are refused before their input is looked at.
	if err := requireVerified(ctx, s.store, orgID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || len(in.Name) > 100 {
		return nil, apperr.Validation("name must be 1-100 characters").WithField("name", "required")
	}
	scopes, err := normalizeScopes(in.Scopes)
	if err != nil {
		return nil, err
	}
	if in.RateLimitPerMinute == 0 {
		in.RateLimitPerMinute = s.defaults.PerMinute
	}
	if in.RateLimitPerDay == 0 {
		in.RateLimitPerDay = s.defaults.PerDay
	}
	if in.RateLimitPerMinute < 0 || in.RateLimitPerDay < 0 {
		return nil, apperr.Validation("rate limits must be positive")
	}

	gen, err := s.generate()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	key := &models.APIKey{
		ID:                 uuid.New(),
		OrganizationID:     orgID,
		Name:               in.Name,
		KeyPrefix:          gen.Prefix,
		KeyHash:            gen.Hash,
		Scopes:             scopes,
		RateLimitPerMinute: in.RateLimitPerMinute,
		RateLimitPerDay:    in.RateLimitPerDay,
		IsActive:           true,
		CreatedBy:          actor.UserID,
		CreatedAt:          s.now().UTC(),
	}
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := requireVerified(ctx, tx, orgID); err != nil {
			return err
		}
		if err := tx.Create(ctx, key); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionCreateAPIKey, audit.EntityAPIKey,
			key.ID.String(), key.Name).WithData(nil, key))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("api key created", zap.String("org_id", orgID.String()), zap.String("key_prefix", key.KeyPrefix))
	return &CreatedKey{APIKey: *key, Key: gen.Raw}, nil
}

func requireVerified(ctx context.Context, store Store, orgID uuid.UUID) error {
	status, err := store.OrganizationStatus(ctx, orgID)
	if err != nil {
		return err
	}
	if status != models.VerificationVerified {
		return apperr.VerifiedPartnerRequired()
	}
	return nil
}

func normalizeScopes(in []models.APIKeyScope) ([]models.APIKeyScope, error) {
	if len(in) == 0 {
		return []models.APIKeyScope{models.ScopeRead}, nil
	}
	seen := make(map[models.APIKeyScope]bool, len(in))
	out := make([]models.APIKeyScope, 0, len(in))
	for _, sc := range in {
		if !sc.Valid() {
			return nil, apperr.New(apperr.KindValidation, "unknown scope %q", sc).WithField("scopes", "oneof")
		}
		if !seen[sc] {
			seen[sc] = true
			out = append(out, sc)
		}
	}
	return out, nil
}

// List returns an organization's keys without secrets.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.APIKey, error) {
	return s.store.List(ctx, orgID)
}

// Revoke deactivates a key. Revocation is permanent.
func (s *Service) Revoke(ctx context.Context, actor organizations.Actor, orgID, keyID uuid.UUID) (*models.APIKey, error) {
	if !actor.Role.AtLeast(models.OrgRoleAdmin) {
		return nil, apperr.InsufficientRole(string(models.OrgRoleAdmin), string(actor.Role))
	}
	var out *models.APIKey
	err := s.store.InTx(ctx, func(tx Store) error {
		key, err := tx.GetForUpdate(ctx, orgID, keyID)
		if err != nil {
			return err
		}
		if !key.IsActive {
			return apperr.InvalidTransition("revoked", "revoke api key")
		}
		now := s.now().UTC()
		if err := tx.Revoke(ctx, keyID, now); err != nil {
			return err
		}
		key.IsActive = false
		key.RevokedAt = &now
		out = key
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionRevokeAPIKey, audit.EntityAPIKey,
			key.ID.String(), key.Name).
			WithData(map[string]bool{"isActive": true}, map[string]bool{"isActive": false}))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("api key revoked", zap.String("org_id", orgID.String()), zap.String("key_prefix", out.KeyPrefix))
	return out, nil
}

// Authenticate resolves a raw key to an active key of a verified organization.
func (s *Service) Authenticate(ctx context.Context, raw string) (*models.APIKey, error) {
	if _, ok := PrefixOf(raw); !ok {
		return nil, apperr.AuthenticationRequired()
	}
	key, status, err := s.store.GetActiveByHash(ctx, HashKey(raw))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.AuthenticationRequired()
		}
		return nil, err
	}
	if status != models.VerificationVerified {
		return nil, apperr.VerifiedPartnerRequired()
	}
	if err := s.store.TouchLastUsed(ctx, key.ID, s.now().UTC()); err != nil {
		s.logger.Warn("api key last used update failed", zap.String("key_prefix", key.KeyPrefix), zap.Error(err))
	}
	return key, nil
}

// Package mappings maintains the registry linking external provider ids to
// internal entity ids.
package mappings

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
)

// ErrDuplicate is returned by a Store when an active-mapping unique index rejects a write.
var ErrDuplicate = errors.New("provider mapping unique violation")

// Key identifies the mapping side being looked up.
type Key struct {
	ProviderName string
	EntityType   models.MappingEntityType
	// Exclude skips one mapping, the row being updated.
	Exclude *uuid.UUID
}

// Store is the persistence the registry needs. Lookups return nil, nil when nothing matches.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	FindActiveByProviderID(ctx context.Context, k Key, providerEntityID string) (*models.ProviderMapping, error)
	FindActiveByInternalID(ctx context.Context, k Key, internalEntityID string) (*models.ProviderMapping, error)
	Create(ctx context.Context, m *models.ProviderMapping) error
	Get(ctx context.Context, id uuid.UUID) (*models.ProviderMapping, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.ProviderMapping, error)
	Update(ctx context.Context, m *models.ProviderMapping) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f models.MappingFilter) ([]models.ProviderMapping, error)

	Coverage(ctx context.Context, t models.MappingEntityType, sport, source string) (total, mapped int, err error)
	Unmapped(ctx context.Context, t models.MappingEntityType, sport string, limit int) ([]models.UnmappedEntity, error)

	RecordAudit(ctx context.Context, e audit.Entry) error
}

// Service implements the provider mapping registry.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a mapping service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// ConflictQuery describes a prospective mapping.
type ConflictQuery struct {
	ProviderName     string
	EntityType       models.MappingEntityType
	ProviderEntityID string
	InternalEntityID string
	ExcludeID        *uuid.UUID
}

// CheckConflict returns the first active mapping that the prospective mapping
// would collide with, or nil.
func (s *Service) CheckConflict(ctx context.Context, q ConflictQuery) (*models.MappingConflict, error) {
	q.ProviderName = strings.ToLower(strings.TrimSpace(q.ProviderName))
	q.ProviderEntityID = strings.TrimSpace(q.ProviderEntityID)
	q.InternalEntityID = strings.TrimSpace(q.InternalEntityID)
	return checkConflict(ctx, s.store, q)
}

func checkConflict(ctx context.Context, store Store, q ConflictQuery) (*models.MappingConflict, error) {
	k := Key{ProviderName: q.ProviderName, EntityType: q.EntityType, Exclude: q.ExcludeID}
	existing, err := store.FindActiveByProviderID(ctx, k, q.ProviderEntityID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.InternalEntityID != q.InternalEntityID {
		return &models.MappingConflict{Type: models.ProviderConflict, Existing: existing}, nil
	}
	existing, err = store.FindActiveByInternalID(ctx, k, q.InternalEntityID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ProviderEntityID != q.ProviderEntityID {
		return &models.MappingConflict{Type: models.InternalConflict, Existing: existing}, nil
	}
	return nil, nil
}

// ConflictDetails is the 409 payload.
type ConflictDetails struct {
	Error           string                  `json:"error"`
	ConflictType    models.ConflictType     `json:"conflictType"`
	ExistingMapping *models.ProviderMapping `json:"existingMapping"`
}

// ConflictInfo exposes the conflict type and existing mapping so the error
// envelope can carry them at the top level.
func (d ConflictDetails) ConflictInfo() (string, interface{}) {
	if d.ExistingMapping == nil {
		return string(d.ConflictType), nil
	}
	return string(d.ConflictType), d.ExistingMapping
}

func conflictError(c *models.MappingConflict) error {
	msg := "provider entity is already mapped to another internal entity"
	if c.Type == models.InternalConflict {
		msg = "internal entity is already mapped to another provider entity"
	}
	return apperr.New(apperr.KindConflict, "%s", msg).WithDetails(ConflictDetails{
		Error: msg, ConflictType: c.Type, ExistingMapping: c.Existing,
	})
}

// duplicateConflict explains a unique index violation after the failed
// transaction has rolled back.
func (s *Service) duplicateConflict(ctx context.Context, q ConflictQuery) error {
	c, err := checkConflict(ctx, s.store, q)
	if err != nil {
		return err
	}
	if c == nil {
		existing, err := s.store.FindActiveByProviderID(ctx,
			Key{ProviderName: q.ProviderName, EntityType: q.EntityType, Exclude: q.ExcludeID}, q.ProviderEntityID)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.Conflict("provider mapping was modified concurrently")
		}
		c = &models.MappingConflict{Type: models.ProviderConflict, Existing: existing}
	}
	return conflictError(c)
}

// CreateInput describes a new mapping.
type CreateInput struct {
	ProviderName       string                   `json:"providerName" binding:"required"`
	ProviderEntityType models.MappingEntityType `json:"providerEntityType" binding:"required"`
	ProviderEntityID   string                   `json:"providerEntityId" binding:"required"`
	InternalEntityID   string                   `json:"internalEntityId" binding:"required"`
	ProviderEntityName string                   `json:"providerEntityName"`
	Confidence         *int                     `json:"confidence"`
}

func validConfidence(c *int) error {
	if c != nil && (*c < 0 || *c > 100) {
		return apperr.Validation("confidence must be between 0 and 100").WithField("confidence", "range")
	}
	return nil
}

// Create registers an active mapping.
func (s *Service) Create(ctx context.Context, actor uuid.UUID, in CreateInput) (*models.ProviderMapping, error) {
	in.ProviderName = strings.ToLower(strings.TrimSpace(in.ProviderName))
	in.ProviderEntityID = strings.TrimSpace(in.ProviderEntityID)
	in.InternalEntityID = strings.TrimSpace(in.InternalEntityID)
	switch {
	case in.ProviderName == "":
		return nil, apperr.Validation("provider name is required").WithField("providerName", "required")
	case !in.ProviderEntityType.Valid():
		return nil, apperr.Validation("unknown provider entity type").WithField("providerEntityType", "oneof")
	case in.ProviderEntityID == "":
		return nil, apperr.Validation("provider entity id is required").WithField("providerEntityId", "required")
	case in.InternalEntityID == "":
		return nil, apperr.Validation("internal entity id is required").WithField("internalEntityId", "required")
	}
	if err := validConfidence(in.Confidence); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	m := &models.ProviderMapping{
		ID:                 uuid.New(),
		ProviderName:       in.ProviderName,
		ProviderEntityType: in.ProviderEntityType,
		ProviderEntityID:   in.ProviderEntityID,
		InternalEntityID:   in.InternalEntityID,
		ProviderEntityName: strings.TrimSpace(in.ProviderEntityName),
		Confidence:         in.Confidence,
		IsActive:           true,
		CreatedBy:          &actor,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	q := ConflictQuery{ProviderName: m.ProviderName, EntityType: m.ProviderEntityType,
		ProviderEntityID: m.ProviderEntityID, InternalEntityID: m.InternalEntityID}
	err := s.store.InTx(ctx, func(tx Store) error {
		c, err := checkConflict(ctx, tx, q)
		if err != nil {
			return err
		}
		if c != nil {
			return conflictError(c)
		}
		if err := tx.Create(ctx, m); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(actor, audit.ActionCreateMapping, audit.EntityMapping,
			m.ID.String(), m.ProviderName+":"+m.ProviderEntityID).WithData(nil, m))
	})
	if errors.Is(err, ErrDuplicate) {
		return nil, s.duplicateConflict(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("provider mapping created", zap.String("provider", m.ProviderName),
		zap.String("entity_type", string(m.ProviderEntityType)), zap.String("internal_id", m.InternalEntityID))
	return m, nil
}

// UpdateInput carries optional changes. Nil fields are left as is.
type UpdateInput struct {
	ProviderEntityID   *string `json:"providerEntityId"`
	InternalEntityID   *string `json:"internalEntityId"`
	ProviderEntityName *string `json:"providerEntityName"`
	Confidence         *int    `json:"confidence"`
	IsActive           *bool   `json:"isActive"`
}

// Update modifies a mapping. Conflicts are re-checked when the provider entity id changes.
func (s *Service) Update(ctx context.Context, actor, id uuid.UUID, in UpdateInput) (*models.ProviderMapping, error) {
	if err := validConfidence(in.Confidence); err != nil {
		return nil, err
	}
	var (
		out *models.ProviderMapping
		q   ConflictQuery
	)
	err := s.store.InTx(ctx, func(tx Store) error {
		m, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		before := *m
		providerChanged := false
		if in.ProviderEntityID != nil {
			v := strings.TrimSpace(*in.ProviderEntityID)
			if v == "" {
				return apperr.Validation("provider entity id is required").WithField("providerEntityId", "required")
			}
			providerChanged = v != m.ProviderEntityID
			m.ProviderEntityID = v
		}
		if in.InternalEntityID != nil {
			v := strings.TrimSpace(*in.InternalEntityID)
			if v == "" {
				return apperr.Validation("internal entity id is required").WithField("internalEntityId", "required")
			}
			m.InternalEntityID = v
		}
		if in.ProviderEntityName != nil {
			m.ProviderEntityName = strings.TrimSpace(*in.ProviderEntityName)
		}
		if in.Confidence != nil {
			m.Confidence = in.Confidence
		}
		if in.IsActive != nil {
			m.IsActive = *in.IsActive
		}
		q = ConflictQuery{ProviderName: m.ProviderName, EntityType: m.ProviderEntityType,
			ProviderEntityID: m.ProviderEntityID, InternalEntityID: m.InternalEntityID, ExcludeID: &m.ID}
		if providerChanged && m.IsActive {
			c, err := checkConflict(ctx, tx, q)
			if err != nil {
				return err
			}
			if c != nil {
				return conflictError(c)
			}
		}
		m.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, m); err != nil {
			return err
		}
		out = m
		return tx.RecordAudit(ctx, audit.NewEntry(actor, audit.ActionUpdateMapping, audit.EntityMapping,
			m.ID.String(), m.ProviderName+":"+m.ProviderEntityID).WithData(before, m))
	})
	if errors.Is(err, ErrDuplicate) {
		return nil, s.duplicateConflict(ctx, q)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a mapping permanently.
func (s *Service) Delete(ctx context.Context, actor, id uuid.UUID) error {
	return s.store.InTx(ctx, func(tx Store) error {
		m, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(actor, audit.ActionDeleteMapping, audit.EntityMapping,
			m.ID.String(), m.ProviderName+":"+m.ProviderEntityID).WithData(m, nil))
	})
}

// Get returns one mapping.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ProviderMapping, error) {
	return s.store.Get(ctx, id)
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}

// List returns mappings matching f.
func (s *Service) List(ctx context.Context, f models.MappingFilter) ([]models.ProviderMapping, error) {
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, apperr.Validation("unknown entity type").WithField("entityType", "oneof")
	}
	f.ProviderName = strings.ToLower(strings.TrimSpace(f.ProviderName))
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.List(ctx, f)
}

// CoverageStats reports, per entity type, how many internal entities have an
// active mapping. sport and source are optional filters.
func (s *Service) CoverageStats(ctx context.Context, sport, source string) ([]models.CoverageStat, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	stats := make([]models.CoverageStat, 0, len(models.AllMappingEntityTypes))
	for _, t := range models.AllMappingEntityTypes {
		total, mapped, err := s.store.Coverage(ctx, t, sport, source)
		if err != nil {
			return nil, err
		}
		stats = append(stats, models.CoverageStat{EntityType: t, Total: total, Mapped: mapped, Percentage: percentage(mapped, total)})
	}
	return stats, nil
}

func percentage(mapped, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(mapped)/float64(total)*1000) / 10
}

// UnmappedEntities lists entities of type t with no active mapping.
func (s *Service) UnmappedEntities(ctx context.Context, t models.MappingEntityType, sport string, limit int) ([]models.UnmappedEntity, error) {
	if !t.Valid() {
		return nil, apperr.Validation("unknown entity type").WithField("entityType", "oneof")
	}
	return s.store.Unmapped(ctx, t, sport, clampLimit(limit))
}

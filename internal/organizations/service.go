package organizations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/utils"
)

// Store is the persistence the service needs. InTx runs fn with a Store bound
// to one transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error)
	ListByStatus(ctx context.Context, status models.VerificationStatus) ([]models.Organization, error)

	AddMember(ctx context.Context, m *models.OrganizationMember) error
	GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error)
	UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role models.OrgRole) error
	RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error)
	CountOwners(ctx context.Context, orgID uuid.UUID) (int, error)

	UserIDByEmail(ctx context.Context, email string) (uuid.UUID, error)
	SetPrimaryOrgIfUnset(ctx context.Context, userID, orgID uuid.UUID) error
	ClearPrimaryOrg(ctx context.Context, userID, orgID uuid.UUID) error

	RecordAudit(ctx context.Context, e audit.Entry) error
}

// Actor is the caller of an organization-scoped operation. Role is the
// caller's membership role as established by RequireOrgAccess; platform
// admins act as owners.
type Actor struct {
	UserID uuid.UUID
	Role   models.OrgRole
}

// Service implements partner organizations, memberships and verification.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an organizations service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreateInput holds the fields of a new organization.
type CreateInput struct {
	Name        string
	Slug        string
	Type        models.OrgType
	City        string
	StateCode   string
	CountryCode string
	Website     string
}

// Create makes a draft organization owned by creator. It becomes the creator's
// primary organization when they have none.
func (s *Service) Create(ctx context.Context, creator uuid.UUID, in CreateInput) (*models.Organization, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Slug == "" {
		in.Slug = utils.Slugify(in.Name)
	}
	if err := validateOrg(in.Name, in.Slug, in.Type); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	org := &models.Organization{
		ID:                 uuid.New(),
		Name:               in.Name,
		Slug:               in.Slug,
		Type:               in.Type,
		VerificationStatus: models.VerificationDraft,
		CreatedBy:          creator,
		City:               strings.TrimSpace(in.City),
		StateCode:          strings.ToUpper(strings.TrimSpace(in.StateCode)),
		CountryCode:        strings.ToUpper(strings.TrimSpace(in.CountryCode)),
		Website:            strings.TrimSpace(in.Website),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	err := s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Create(ctx, org); err != nil {
			return err
		}
		owner := &models.OrganizationMember{
			ID: uuid.New(), OrganizationID: org.ID, UserID: creator, Role: models.OrgRoleOwner,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.AddMember(ctx, owner); err != nil {
			return err
		}
		if err := tx.SetPrimaryOrgIfUnset(ctx, creator, org.ID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(creator, audit.ActionCreateOrganization, audit.EntityOrganization,
			org.ID.String(), org.Name).WithData(nil, org))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("organization created", zap.String("org_id", org.ID.String()), zap.String("slug", org.Slug))
	return org, nil
}

func validateOrg(name, slug string, t models.OrgType) error {
	if name == "" || len(name) > 255 {
		return apperr.Validation("name must be 1-255 characters").WithField("name", "required")
	}
	if !utils.ValidSlug(slug) {
		return apperr.Validation("slug must be 2-64 chars, lowercase letters, numbers, hyphens only").WithField("slug", "invalid")
	}
	if !t.Valid() {
		return apperr.Validation("unknown organization type").WithField("type", "oneof")
	}
	return nil
}

// Get returns an organization.
func (s *Service) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	return s.store.GetByID(ctx, orgID)
}

// ListMine returns the organizations userID belongs to.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	return s.store.ListForUser(ctx, userID)
}

// UpdateInput holds optional organization changes. Nil fields are unchanged.
type UpdateInput struct {
	Name        *string
	Type        *models.OrgType
	City        *string
	StateCode   *string
	CountryCode *string
	Website     *string
}

// Update changes profile fields. Requires admin.
func (s *Service) Update(ctx context.Context, actor Actor, orgID uuid.UUID, in UpdateInput) (*models.Organization, error) {
	if err := requireRole(actor, models.OrgRoleAdmin); err != nil {
		return nil, err
	}
	var out *models.Organization
	err := s.store.InTx(ctx, func(tx Store) error {
		org, err := tx.GetForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		prev := *org
		if in.Name != nil {
			org.Name = strings.TrimSpace(*in.Name)
		}
		if in.Type != nil {
			org.Type = *in.Type
		}
		if in.City != nil {
			org.City = strings.TrimSpace(*in.City)
		}
		if in.StateCode != nil {
			org.StateCode = strings.ToUpper(strings.TrimSpace(*in.StateCode))
		}
		if in.CountryCode != nil {
			org.CountryCode = strings.ToUpper(strings.TrimSpace(*in.CountryCode))
		}
		if in.Website != nil {
			org.Website = strings.TrimSpace(*in.Website)
		}
		if err := validateOrg(org.Name, org.Slug, org.Type); err != nil {
			return err
		}
		org.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, org); err != nil {
			return err
		}
		out = org
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionUpdateOrganization, audit.EntityOrganization,
			org.ID.String(), org.Name).WithData(prev, org))
	})
	return out, err
}

// Delete removes an organization. Verified organizations cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor Actor, orgID uuid.UUID) error {
	if err := requireRole(actor, models.OrgRoleOwner); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx Store) error {
		org, err := tx.GetForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		if org.VerificationStatus == models.VerificationVerified {
			return apperr.InvalidTransition(string(org.VerificationStatus), "delete organization")
		}
		if err := tx.Delete(ctx, orgID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionDeleteOrganization, audit.EntityOrganization,
			org.ID.String(), org.Name).WithData(org, nil))
	})
}

// RequestVerification moves a draft or rejected organization into review. Requires owner.
func (s *Service) RequestVerification(ctx context.Context, actor Actor, orgID uuid.UUID) (*models.Organization, error) {
	if err := requireRole(actor, models.OrgRoleOwner); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor.UserID, orgID, audit.ActionRequestVerification, "request verification",
		[]models.VerificationStatus{models.VerificationDraft, models.VerificationRejected},
		func(org *models.Organization) {
			org.VerificationStatus = models.VerificationReview
			org.RejectionReason = ""
		})
}

// Verify approves an organization under review. Moderators only; the gate enforces it.
func (s *Service) Verify(ctx context.Context, moderator uuid.UUID, orgID uuid.UUID) (*models.Organization, error) {
	now := s.now().UTC()
	return s.transition(ctx, moderator, orgID, audit.ActionVerifyOrganization, "verify",
		[]models.VerificationStatus{models.VerificationReview},
		func(org *models.Organization) {
			org.VerificationStatus = models.VerificationVerified
			org.VerifiedAt = &now
			org.VerifiedBy = &moderator
		})
}

// RejectVerification rejects an organization under review with a reason.
func (s *Service) RejectVerification(ctx context.Context, moderator uuid.UUID, orgID uuid.UUID, reason string) (*models.Organization, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("rejection reason is required").WithField("reason", "required")
	}
	return s.transition(ctx, moderator, orgID, audit.ActionRejectOrganization, "reject",
		[]models.VerificationStatus{models.VerificationReview},
		func(org *models.Organization) {
			org.VerificationStatus = models.VerificationRejected
			org.RejectionReason = reason
		})
}

func (s *Service) transition(ctx context.Context, actor, orgID uuid.UUID, action, verb string,
	from []models.VerificationStatus, apply func(*models.Organization)) (*models.Organization, error) {
	var out *models.Organization
	err := s.store.InTx(ctx, func(tx Store) error {
		org, err := tx.GetForUpdate(ctx, orgID)
		if err != nil {
			return err
		}
		if !statusIn(org.VerificationStatus, from) {
			return apperr.InvalidTransition(string(org.VerificationStatus), verb)
		}
		prev := org.VerificationStatus
		apply(org)
		org.UpdatedAt = s.now().UTC()
		if err := tx.Update(ctx, org); err != nil {
			return err
		}
		out = org
		return tx.RecordAudit(ctx, audit.NewEntry(actor, action, audit.EntityOrganization, org.ID.String(), org.Name).
			WithData(map[string]interface{}{"verificationStatus": prev},
				map[string]interface{}{"verificationStatus": org.VerificationStatus, "rejectionReason": org.RejectionReason}))
	})
	if err == nil {
		s.logger.Info("organization verification changed", zap.String("org_id", orgID.String()),
			zap.String("status", string(out.VerificationStatus)))
	}
	return out, err
}

func statusIn(s models.VerificationStatus, set []models.VerificationStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ListByStatus returns organizations in a verification status for moderators.
func (s *Service) ListByStatus(ctx context.Context, status models.VerificationStatus) ([]models.Organization, error) {
	if status == "" {
		status = models.VerificationReview
	}
	if !status.Valid() {
		return nil, apperr.Validation("unknown verification status").WithField("status", "oneof")
	}
	return s.store.ListByStatus(ctx, status)
}

// ListMembers returns the members of an organization.
func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error) {
	return s.store.ListMembers(ctx, orgID)
}

// AddMemberInput identifies the user to add by id or email.
type AddMemberInput struct {
	UserID *uuid.UUID
	Email  string
	Role   models.OrgRole
}

// AddMember adds a user to the organization. Admins may grant editor or viewer;
// only owners may grant admin. Owner is never granted here.
func (s *Service) AddMember(ctx context.Context, actor Actor, orgID uuid.UUID, in AddMemberInput) (*models.OrganizationMember, error) {
	if err := requireRole(actor, models.OrgRoleAdmin); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("unknown role").WithField("role", "oneof")
	}
	if in.Role == models.OrgRoleOwner {
		return nil, apperr.Validation("owner role cannot be granted when adding a member").WithField("role", "owner")
	}
	if in.Role == models.OrgRoleAdmin && actor.Role != models.OrgRoleOwner {
		return nil, apperr.InsufficientRole(string(models.OrgRoleOwner), string(actor.Role))
	}
	if in.UserID == nil && strings.TrimSpace(in.Email) == "" {
		return nil, apperr.Validation("userId or email is required").WithField("userId", "required")
	}

	var out *models.OrganizationMember
	err := s.store.InTx(ctx, func(tx Store) error {
		org, err := tx.GetByID(ctx, orgID)
		if err != nil {
			return err
		}
		userID := uuid.Nil
		if in.UserID != nil {
			userID = *in.UserID
		} else if userID, err = tx.UserIDByEmail(ctx, strings.TrimSpace(in.Email)); err != nil {
			return err
		}
		if _, err := tx.GetMember(ctx, orgID, userID); err == nil {
			return apperr.Conflict("user is already a member")
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		now := s.now().UTC()
		inviter := actor.UserID
		m := &models.OrganizationMember{
			ID: uuid.New(), OrganizationID: orgID, UserID: userID, Role: in.Role, InvitedBy: &inviter,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := tx.AddMember(ctx, m); err != nil {
			return err
		}
		if err := tx.SetPrimaryOrgIfUnset(ctx, userID, orgID); err != nil {
			return err
		}
		out = m
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionAddMember, audit.EntityMember,
			m.ID.String(), org.Name).WithData(nil, m))
	})
	return out, err
}

// ChangeRole sets another member's role. Owners only; nobody changes their own role.
func (s *Service) ChangeRole(ctx context.Context, actor Actor, orgID, userID uuid.UUID, role models.OrgRole) (*models.OrganizationMember, error) {
	if err := requireRole(actor, models.OrgRoleOwner); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("unknown role").WithField("role", "oneof")
	}
	if userID == actor.UserID {
		return nil, apperr.Forbidden("you cannot change your own role")
	}
	var out *models.OrganizationMember
	err := s.store.InTx(ctx, func(tx Store) error {
		m, err := tx.GetMember(ctx, orgID, userID)
		if err != nil {
			return err
		}
		prev := m.Role
		if prev == role {
			out = m
			return nil
		}
		if prev == models.OrgRoleOwner {
			owners, err := tx.CountOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return apperr.Forbidden("the last owner cannot be demoted")
			}
		}
		if err := tx.UpdateMemberRole(ctx, orgID, userID, role); err != nil {
			return err
		}
		m.Role = role
		m.UpdatedAt = s.now().UTC()
		out = m
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionChangeMemberRole, audit.EntityMember,
			m.ID.String(), userID.String()).
			WithData(map[string]models.OrgRole{"role": prev}, map[string]models.OrgRole{"role": role}))
	})
	return out, err
}

// RemoveMember removes userID from the organization. Anyone may remove
// themselves; removing an admin or owner needs owner; removing an editor or
// viewer needs admin. The last owner can never be removed.
func (s *Service) RemoveMember(ctx context.Context, actor Actor, orgID, userID uuid.UUID) error {
	return s.store.InTx(ctx, func(tx Store) error {
		m, err := tx.GetMember(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if userID != actor.UserID {
			need := models.OrgRoleAdmin
			if m.Role.AtLeast(models.OrgRoleAdmin) {
				need = models.OrgRoleOwner
			}
			if err := requireRole(actor, need); err != nil {
				return err
			}
		}
		if m.Role == models.OrgRoleOwner {
			owners, err := tx.CountOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return apperr.Forbidden("the last owner cannot be removed")
			}
		}
		if err := tx.RemoveMember(ctx, orgID, userID); err != nil {
			return err
		}
		if err := tx.ClearPrimaryOrg(ctx, userID, orgID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(actor.UserID, audit.ActionRemoveMember, audit.EntityMember,
			m.ID.String(), userID.String()).WithData(m, nil))
	})
}

func requireRole(actor Actor, min models.OrgRole) error {
	if actor.Role == "" {
		return apperr.NotAMember()
	}
	if !actor.Role.AtLeast(min) {
		return apperr.InsufficientRole(string(min), string(actor.Role))
	}
	return nil
}

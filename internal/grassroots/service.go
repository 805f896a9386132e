package grassroots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/internal/sports"
	"github.com/pitchside/backend/pkg/storage"
	"github.com/pitchside/backend/pkg/utils"
)

// Store is the persistence the workflow needs. Sports entity writes share the
// submission's transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error

	CreateSubmission(ctx context.Context, s *models.GrassrootsSubmission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*models.GrassrootsSubmission, error)
	GetSubmissionForUpdate(ctx context.Context, id uuid.UUID) (*models.GrassrootsSubmission, error)
	UpdateSubmission(ctx context.Context, s *models.GrassrootsSubmission) error
	ListSubmissions(ctx context.Context, f models.SubmissionFilter) ([]models.GrassrootsSubmission, error)

	CreateEntity(ctx context.Context, e sports.NewEntity) (string, error)
	EntityExists(ctx context.Context, entityType, id string) (bool, error)
	DivisionLeague(ctx context.Context, divisionID string) (string, error)
	FindCandidates(ctx context.Context, entityType, slug string, tokens []string, limit int) ([]models.EntityRef, error)

	RecordAudit(ctx context.Context, e audit.Entry) error
}

// Notifier fans submission events out to connected moderators.
type Notifier interface {
	PublishEvent(ctx context.Context, event string, payload interface{})
}

// LogoSigner issues presigned logo uploads.
type LogoSigner interface {
	PresignLogoUpload(ctx context.Context, key, contentType string) (*storage.PresignedUpload, error)
}

// Caller identifies who is acting on a submission.
type Caller struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Moderator      bool
}

// Service runs the grassroots submission workflow.
type Service struct {
	store    Store
	notifier Notifier
	signer   LogoSigner
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the workflow service. notifier, signer and metrics may be nil.
func NewService(store Store, notifier Notifier, signer LogoSigner, metrics *Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, signer: signer, metrics: metrics, logger: logger, now: time.Now}
}

// CreateInput carries the attributes of a new submission.
type CreateInput struct {
	Type             models.GrassrootsType       `json:"type" binding:"required"`
	EntityType       models.SubmissionEntityType `json:"entityType" binding:"required"`
	Status           models.SubmissionStatus     `json:"status"`
	EntityName       string                      `json:"entityName" binding:"required"`
	Slug             string                      `json:"slug" binding:"required"`
	ShortName        string                      `json:"shortName"`
	City             string                      `json:"city"`
	StateCode        string                      `json:"stateCode"`
	CountryCode      string                      `json:"countryCode"`
	Tier             *int                        `json:"tier"`
	AgeGroup         string                      `json:"ageGroup"`
	Gender           string                      `json:"gender"`
	VenueName        string                      `json:"venueName"`
	Payload          json.RawMessage             `json:"payload"`
	ParentLeagueID   string                      `json:"parentLeagueId"`
	ParentDivisionID string                      `json:"parentDivisionId"`
	ParentTeamID     string                      `json:"parentTeamId"`
}

const maxNameLength = 200

func (in CreateInput) validate() error {
	if !in.Type.Valid() {
		return apperr.Validation("unknown grassroots type").WithField("type", "oneof")
	}
	if !in.EntityType.Valid() {
		return apperr.Validation("entity type must be league, division, team, venue or season").WithField("entityType", "oneof")
	}
	if in.Status != models.SubmissionStatusDraft && in.Status != models.SubmissionStatusPending {
		return apperr.Validation("a submission starts as draft or pending").WithField("status", "oneof")
	}
	if in.EntityName == "" || len(in.EntityName) > maxNameLength {
		return apperr.Validation("entity name must be 1-200 characters").WithField("entityName", "required")
	}
	if !utils.ValidSlug(in.Slug) {
		return apperr.Validation("slug must be lowercase letters, digits and hyphens").WithField("slug", "slug")
	}
	if in.Tier != nil && *in.Tier < 1 {
		return apperr.Validation("tier must be positive").WithField("tier", "min")
	}
	if (in.EntityType == models.SubmissionDivision || in.EntityType == models.SubmissionSeason) && in.ParentLeagueID == "" {
		return apperr.Validation("a " + string(in.EntityType) + " needs a parent league").WithField("parentLeagueId", "required")
	}
	if len(in.Payload) > 0 {
		trimmed := bytes.TrimSpace(in.Payload)
		if !json.Valid(trimmed) || (len(trimmed) > 0 && trimmed[0] != '{' && !bytes.Equal(trimmed, []byte("null"))) {
			return apperr.Validation("payload must be a JSON object").WithField("payload", "object")
		}
	}
	return nil
}

// Create stores a new submission as draft or pending (the default).
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (*models.GrassrootsSubmission, error) {
	if in.Status == "" {
		in.Status = models.SubmissionStatusPending
	}
	in.EntityName = cleanText(in.EntityName)
	in.Slug = strings.TrimSpace(in.Slug)
	if err := in.validate(); err != nil {
		return nil, err
	}
	in.ParentLeagueID = strings.TrimSpace(in.ParentLeagueID)
	in.ParentDivisionID = strings.TrimSpace(in.ParentDivisionID)
	err := checkParents(ctx, s.store, in.ParentLeagueID, in.ParentDivisionID, func(field, what string) error {
		return apperr.Validation(what+" does not exist").WithField(field, "exists")
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &models.GrassrootsSubmission{
		ID:               uuid.New(),
		SubmittedBy:      caller.UserID,
		OrganizationID:   caller.OrganizationID,
		Type:             in.Type,
		EntityType:       in.EntityType,
		Status:           in.Status,
		EntityName:       in.EntityName,
		Slug:             in.Slug,
		ShortName:        cleanText(in.ShortName),
		City:             cleanText(in.City),
		StateCode:        strings.ToUpper(cleanText(in.StateCode)),
		CountryCode:      strings.ToUpper(cleanText(in.CountryCode)),
		Tier:             in.Tier,
		AgeGroup:         cleanText(in.AgeGroup),
		Gender:           cleanText(in.Gender),
		VenueName:        cleanText(in.VenueName),
		Payload:          in.Payload,
		ParentLeagueID:   in.ParentLeagueID,
		ParentDivisionID: in.ParentDivisionID,
		ParentTeamID:     strings.TrimSpace(in.ParentTeamID),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, audit.NewEntry(caller.UserID, audit.ActionCreateSubmission, audit.EntitySubmission,
			sub.ID.String(), sub.EntityName).WithData(nil, sub))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission created", zap.String("submission_id", sub.ID.String()),
		zap.String("entity_type", string(sub.EntityType)), zap.String("status", string(sub.Status)))
	s.metrics.observe("", string(sub.Status))
	s.notify(ctx, sub)
	return sub, nil
}

// Get returns a submission visible to caller. Other users' submissions are
// reported as missing to non-moderators.
func (s *Service) Get(ctx context.Context, caller Caller, id uuid.UUID) (*models.GrassrootsSubmission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Moderator && sub.SubmittedBy != caller.UserID {
		return nil, apperr.NotFound("submission")
	}
	return sub, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ListMine returns the caller's own submissions, newest first.
func (s *Service) ListMine(ctx context.Context, caller Caller, f models.SubmissionFilter) ([]models.GrassrootsSubmission, error) {
	f.SubmittedBy = &caller.UserID
	return s.list(ctx, f)
}

// ListForModeration returns submissions across all users. Moderators only.
func (s *Service) ListForModeration(ctx context.Context, caller Caller, f models.SubmissionFilter) ([]models.GrassrootsSubmission, error) {
	if !caller.Moderator {
		return nil, apperr.Forbidden("moderator access required")
	}
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f models.SubmissionFilter) ([]models.GrassrootsSubmission, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status").WithField("status", "oneof")
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, apperr.Validation("unknown grassroots type").WithField("type", "oneof")
	}
	if f.EntityType != "" && !f.EntityType.Valid() {
		return nil, apperr.Validation("unknown entity type").WithField("entityType", "oneof")
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.store.ListSubmissions(ctx, f)
}

// transitionRecord is the audit payload of a status change.
type transitionRecord struct {
	Status           models.SubmissionStatus `json:"status"`
	ReviewNotes      string                  `json:"reviewNotes,omitempty"`
	RejectionReason  string                  `json:"rejectionReason,omitempty"`
	PromotedEntityID string                  `json:"promotedEntityId,omitempty"`
	EntityType       string                  `json:"entityType,omitempty"`
}

func recordOf(sub *models.GrassrootsSubmission) transitionRecord {
	r := transitionRecord{
		Status:           sub.Status,
		ReviewNotes:      sub.ReviewNotes,
		RejectionReason:  sub.RejectionReason,
		PromotedEntityID: sub.PromotedEntityID,
	}
	if sub.PromotedEntityID != "" {
		r.EntityType = string(sub.EntityType)
	}
	return r
}

// transition locks the submission, lets apply mutate it, and persists the
// result with its audit row. apply returns the error that aborts the move.
func (s *Service) transition(ctx context.Context, actor uuid.UUID, id uuid.UUID, action string,
	apply func(tx Store, sub *models.GrassrootsSubmission, now time.Time) error) (*models.GrassrootsSubmission, error) {
	var (
		out  *models.GrassrootsSubmission
		from models.SubmissionStatus
	)
	err := s.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = sub.Status
		before := recordOf(sub)
		now := s.now().UTC()
		if err := apply(tx, sub, now); err != nil {
			return err
		}
		if sub.Status.Rank() <= from.Rank() {
			return apperr.InvalidTransition(string(from), action)
		}
		sub.UpdatedAt = now
		if err := tx.UpdateSubmission(ctx, sub); err != nil {
			return err
		}
		out = sub
		return tx.RecordAudit(ctx, audit.NewEntry(actor, action, audit.EntitySubmission, sub.ID.String(), sub.EntityName).
			WithData(before, recordOf(sub)))
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission transition", zap.String("submission_id", id.String()), zap.String("action", action),
		zap.String("from", string(from)), zap.String("to", string(out.Status)))
	s.metrics.observe(string(from), string(out.Status))
	s.notify(ctx, out)
	return out, nil
}

func requireModerator(caller Caller) error {
	if !caller.Moderator {
		return apperr.Forbidden("moderator access required")
	}
	return nil
}

// SubmitForReview moves a draft to pending. The submitter or a moderator may do this.
func (s *Service) SubmitForReview(ctx context.Context, caller Caller, id uuid.UUID) (*models.GrassrootsSubmission, error) {
	return s.transition(ctx, caller.UserID, id, audit.ActionSubmitForReview,
		func(_ Store, sub *models.GrassrootsSubmission, _ time.Time) error {
			if !caller.Moderator && sub.SubmittedBy != caller.UserID {
				return apperr.NotFound("submission")
			}
			if sub.Status != models.SubmissionStatusDraft {
				return apperr.InvalidTransition(string(sub.Status), "submit for review")
			}
			sub.Status = models.SubmissionStatusPending
			return nil
		})
}

// StartReview marks a pending submission as under review by caller.
func (s *Service) StartReview(ctx context.Context, caller Caller, id uuid.UUID) (*models.GrassrootsSubmission, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller.UserID, id, audit.ActionStartReview,
		func(_ Store, sub *models.GrassrootsSubmission, now time.Time) error {
			if sub.Status != models.SubmissionStatusPending {
				return apperr.InvalidTransition(string(sub.Status), "start review")
			}
			sub.Status = models.SubmissionStatusReview
			sub.ReviewedBy = &caller.UserID
			sub.ReviewedAt = &now
			return nil
		})
}

func reviewable(status models.SubmissionStatus) bool {
	return status == models.SubmissionStatusPending || status == models.SubmissionStatusReview
}

// Approve accepts a pending or in-review submission.
func (s *Service) Approve(ctx context.Context, caller Caller, id uuid.UUID, notes string) (*models.GrassrootsSubmission, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	notes = cleanText(notes)
	return s.transition(ctx, caller.UserID, id, audit.ActionApproveSubmission,
		func(_ Store, sub *models.GrassrootsSubmission, now time.Time) error {
			if !reviewable(sub.Status) {
				return apperr.InvalidTransition(string(sub.Status), "approve")
			}
			sub.Status = models.SubmissionStatusApproved
			sub.ReviewedBy = &caller.UserID
			sub.ReviewedAt = &now
			sub.ReviewNotes = notes
			return nil
		})
}

// Reject declines a pending or in-review submission. reason is required.
func (s *Service) Reject(ctx context.Context, caller Caller, id uuid.UUID, reason string) (*models.GrassrootsSubmission, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	reason = cleanText(reason)
	if reason == "" {
		return nil, apperr.Validation("a rejection reason is required").WithField("reason", "required")
	}
	return s.transition(ctx, caller.UserID, id, audit.ActionRejectSubmission,
		func(_ Store, sub *models.GrassrootsSubmission, now time.Time) error {
			if !reviewable(sub.Status) {
				return apperr.InvalidTransition(string(sub.Status), "reject")
			}
			sub.Status = models.SubmissionStatusRejected
			sub.ReviewedBy = &caller.UserID
			sub.ReviewedAt = &now
			sub.RejectionReason = reason
			return nil
		})
}

func promotable(sub *models.GrassrootsSubmission, action string) error {
	if sub.Status != models.SubmissionStatusApproved || sub.IsPromoted() {
		return apperr.InvalidTransition(string(sub.Status), action)
	}
	return nil
}

// FindDuplicateCandidates ranks existing entities that may duplicate an
// approved, unpromoted submission.
func (s *Service) FindDuplicateCandidates(ctx context.Context, caller Caller, id uuid.UUID) ([]models.DuplicateCandidate, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := promotable(sub, "find duplicates"); err != nil {
		return nil, err
	}
	refs, err := s.store.FindCandidates(ctx, string(sub.EntityType), sub.Slug, utils.NameTokens(sub.EntityName), candidatePool)
	if err != nil {
		return nil, err
	}
	return scoreCandidates(sub, refs), nil
}

// checkParents verifies that the parent league and division exist and that
// the division belongs to the league. missing builds the error for an absent parent.
func checkParents(ctx context.Context, store Store, leagueID, divisionID string, missing func(field, what string) error) error {
	if leagueID != "" {
		ok, err := store.EntityExists(ctx, "league", leagueID)
		if err != nil {
			return err
		}
		if !ok {
			return missing("parentLeagueId", "parent league")
		}
	}
	if divisionID == "" {
		return nil
	}
	owner, err := store.DivisionLeague(ctx, divisionID)
	if apperr.Is(err, apperr.KindNotFound) {
		return missing("parentDivisionId", "parent division")
	}
	if err != nil {
		return err
	}
	if leagueID != "" && owner != leagueID {
		return apperr.Validation("parent division belongs to another league").WithField("parentDivisionId", "league")
	}
	return nil
}

// Promote creates a new authoritative entity from an approved submission.
func (s *Service) Promote(ctx context.Context, caller Caller, id uuid.UUID) (*models.GrassrootsSubmission, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	return s.transition(ctx, caller.UserID, id, audit.ActionPromoteSubmission,
		func(tx Store, sub *models.GrassrootsSubmission, now time.Time) error {
			if err := promotable(sub, "promote"); err != nil {
				return err
			}
			err := checkParents(ctx, tx, sub.ParentLeagueID, sub.ParentDivisionID, func(_, what string) error {
				return apperr.NotFound(what)
			})
			if err != nil {
				return err
			}
			entityID, err := tx.CreateEntity(ctx, sports.NewEntity{
				Type:           string(sub.EntityType),
				Name:           sub.EntityName,
				Slug:           sub.Slug,
				ShortName:      sub.ShortName,
				City:           sub.City,
				StateCode:      sub.StateCode,
				CountryCode:    sub.CountryCode,
				Tier:           sub.Tier,
				AgeGroup:       sub.AgeGroup,
				Gender:         sub.Gender,
				GrassrootsType: string(sub.Type),
				LeagueID:       sub.ParentLeagueID,
				DivisionID:     sub.ParentDivisionID,
				LogoURL:        sub.LogoURL,
			})
			if err != nil {
				return err
			}
			sub.Status = models.SubmissionStatusPromoted
			sub.PromotedEntityID = entityID
			sub.PromotedAt = &now
			return nil
		})
}

// LinkToExisting resolves an approved submission onto an entity that already exists.
func (s *Service) LinkToExisting(ctx context.Context, caller Caller, id uuid.UUID, existingID string) (*models.GrassrootsSubmission, error) {
	if err := requireModerator(caller); err != nil {
		return nil, err
	}
	existingID = strings.TrimSpace(existingID)
	if existingID == "" {
		return nil, apperr.Validation("existing entity id is required").WithField("existingEntityId", "required")
	}
	return s.transition(ctx, caller.UserID, id, audit.ActionLinkExisting,
		func(tx Store, sub *models.GrassrootsSubmission, now time.Time) error {
			if err := promotable(sub, "link"); err != nil {
				return err
			}
			ok, err := tx.EntityExists(ctx, string(sub.EntityType), existingID)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.NotFound(string(sub.EntityType))
			}
			sub.Status = models.SubmissionStatusPromoted
			sub.PromotedEntityID = existingID
			sub.PromotedAt = &now
			return nil
		})
}

var errNoLogoStorage = errors.New("logo storage is not configured")

// LogoUploadURL presigns an upload for the submission's logo and records the
// resulting public URL on the submission.
func (s *Service) LogoUploadURL(ctx context.Context, caller Caller, id uuid.UUID, contentType string) (*storage.PresignedUpload, error) {
	if s.signer == nil {
		return nil, apperr.Internal(errNoLogoStorage)
	}
	ext, ok := storage.LogoExtension(contentType)
	if !ok {
		return nil, apperr.Validation("logo must be a jpeg, png, webp or svg image").WithField("contentType", "oneof")
	}
	var up *storage.PresignedUpload
	err := s.store.InTx(ctx, func(tx Store) error {
		sub, err := tx.GetSubmissionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !caller.Moderator && sub.SubmittedBy != caller.UserID {
			return apperr.NotFound("submission")
		}
		if sub.Status.IsTerminal() {
			return apperr.InvalidTransition(string(sub.Status), "upload logo")
		}
		up, err = s.signer.PresignLogoUpload(ctx, storage.LogoKey(sub.ID.String(), uuid.NewString(), ext), contentType)
		if err != nil {
			return apperr.Internal(err)
		}
		sub.LogoURL = up.PublicURL
		sub.UpdatedAt = s.now().UTC()
		return tx.UpdateSubmission(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return up, nil
}

func (s *Service) notify(ctx context.Context, sub *models.GrassrootsSubmission) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishEvent(ctx, "submission."+string(sub.Status), sub)
}

package grassroots

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/internal/sports"
	"github.com/pitchside/backend/pkg/database"
)

// Repository persists grassroots_submissions and writes promoted entities
// through the sports repository on the same connection.
type Repository struct {
	db     database.DBTX
	pool   database.TxBeginner
	sports *sports.Repository
	audit  *audit.Repository
}

// NewRepository creates a submission repository.
func NewRepository(db database.DBTX, pool database.TxBeginner) *Repository {
	return &Repository{db: db, pool: pool, sports: sports.NewRepository(db), audit: audit.NewRepository(db)}
}

// InTx runs fn with a repository bound to a new transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx, sports: sports.NewRepository(tx), audit: audit.NewRepository(tx)})
	})
}

const submissionColumns = `id, submitted_by, organization_id, type, entity_type, status, entity_name, slug,
	short_name, city, state_code, country_code, tier, age_group, gender, venue_name, logo_url, payload,
	parent_league_id, parent_division_id, parent_team_id, promoted_entity_id, promoted_at,
	reviewed_by, reviewed_at, review_notes, rejection_reason, created_at, updated_at`

func scanSubmission(row pgx.Row) (*models.GrassrootsSubmission, error) {
	var s models.GrassrootsSubmission
	var promoted *string
	var payload []byte
	err := row.Scan(&s.ID, &s.SubmittedBy, &s.OrganizationID, &s.Type, &s.EntityType, &s.Status, &s.EntityName, &s.Slug,
		&s.ShortName, &s.City, &s.StateCode, &s.CountryCode, &s.Tier, &s.AgeGroup, &s.Gender, &s.VenueName, &s.LogoURL,
		&payload, &s.ParentLeagueID, &s.ParentDivisionID, &s.ParentTeamID, &promoted, &s.PromotedAt,
		&s.ReviewedBy, &s.ReviewedAt, &s.ReviewNotes, &s.RejectionReason, &s.CreatedAt, &s.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("submission")
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	if promoted != nil {
		s.PromotedEntityID = *promoted
	}
	if len(payload) > 0 {
		s.Payload = payload
	}
	return &s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func payloadArg(s *models.GrassrootsSubmission) interface{} {
	if len(s.Payload) == 0 {
		return nil
	}
	return string(s.Payload)
}

// CreateSubmission inserts a submission.
func (r *Repository) CreateSubmission(ctx context.Context, s *models.GrassrootsSubmission) error {
	const q = `INSERT INTO grassroots_submissions (id, submitted_by, organization_id, type, entity_type, status,
		entity_name, slug, short_name, city, state_code, country_code, tier, age_group, gender, venue_name, logo_url,
		payload, parent_league_id, parent_division_id, parent_team_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18::jsonb, $19, $20, $21, $22, $23)`
	_, err := r.db.Exec(ctx, q, s.ID, s.SubmittedBy, s.OrganizationID, s.Type, s.EntityType, s.Status,
		s.EntityName, s.Slug, s.ShortName, s.City, s.StateCode, s.CountryCode, s.Tier, s.AgeGroup, s.Gender, s.VenueName,
		s.LogoURL, payloadArg(s), s.ParentLeagueID, s.ParentDivisionID, s.ParentTeamID, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetSubmission loads a submission by id.
func (r *Repository) GetSubmission(ctx context.Context, id uuid.UUID) (*models.GrassrootsSubmission, error) {
	return scanSubmission(r.db.QueryRow(ctx, `SELECT `+submissionColumns+` FROM grassroots_submissions WHERE id = $1`, id))
}

// GetSubmissionForUpdate loads and row-locks a submission. Call inside InTx.
func (r *Repository) GetSubmissionForUpdate(ctx context.Context, id uuid.UUID) (*models.GrassrootsSubmission, error) {
	return scanSubmission(r.db.QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM grassroots_submissions WHERE id = $1 FOR UPDATE`, id))
}

// UpdateSubmission writes the mutable workflow columns of s.
func (r *Repository) UpdateSubmission(ctx context.Context, s *models.GrassrootsSubmission) error {
	const q = `UPDATE grassroots_submissions SET status = $2, logo_url = $3, promoted_entity_id = $4, promoted_at = $5,
		reviewed_by = $6, reviewed_at = $7, review_notes = $8, rejection_reason = $9, updated_at = $10
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, s.ID, s.Status, s.LogoURL, nullable(s.PromotedEntityID), s.PromotedAt,
		s.ReviewedBy, s.ReviewedAt, s.ReviewNotes, s.RejectionReason, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("submission")
	}
	return nil
}

// ListSubmissions returns submissions matching f, newest first.
func (r *Repository) ListSubmissions(ctx context.Context, f models.SubmissionFilter) ([]models.GrassrootsSubmission, error) {
	q := `SELECT ` + submissionColumns + ` FROM grassroots_submissions WHERE 1=1`
	args := []interface{}{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		q += " AND " + clause + " = $" + strconv.Itoa(len(args))
	}
	if f.SubmittedBy != nil {
		add("submitted_by", *f.SubmittedBy)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	if f.Type != "" {
		add("type", f.Type)
	}
	if f.EntityType != "" {
		add("entity_type", f.EntityType)
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	list := []models.GrassrootsSubmission{}
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// CreateEntity inserts the promoted entity.
func (r *Repository) CreateEntity(ctx context.Context, e sports.NewEntity) (string, error) {
	return r.sports.CreateEntity(ctx, e)
}

// EntityExists reports whether an authoritative entity exists.
func (r *Repository) EntityExists(ctx context.Context, entityType, id string) (bool, error) {
	return r.sports.EntityExists(ctx, entityType, id)
}

// DivisionLeague returns the league a division belongs to.
func (r *Repository) DivisionLeague(ctx context.Context, divisionID string) (string, error) {
	return r.sports.DivisionLeague(ctx, divisionID)
}

// FindCandidates returns possible duplicates for scoring.
func (r *Repository) FindCandidates(ctx context.Context, entityType, slug string, tokens []string, limit int) ([]models.EntityRef, error) {
	return r.sports.FindCandidates(ctx, entityType, slug, tokens, limit)
}

// RecordAudit appends an audit row on the repository's connection.
func (r *Repository) RecordAudit(ctx context.Context, e audit.Entry) error {
	return r.audit.Record(ctx, e)
}

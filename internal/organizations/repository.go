package organizations

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/database"
)

// Repository handles organization and organization_members persistence.
type Repository struct {
	db   database.DBTX
	pool database.TxBeginner
}

// NewRepository creates an organizations repository on the pool.
func NewRepository(db database.DBTX, pool database.TxBeginner) *Repository {
	return &Repository{db: db, pool: pool}
}

// InTx runs fn with a repository bound to a new transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

const orgColumns = `id, name, slug, type, verification_status, created_by, city, state_code, country_code,
	website, rejection_reason, verified_at, verified_by, created_at, updated_at`

func scanOrg(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Type, &o.VerificationStatus, &o.CreatedBy, &o.City, &o.StateCode,
		&o.CountryCode, &o.Website, &o.RejectionReason, &o.VerifiedAt, &o.VerifiedBy, &o.CreatedAt, &o.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("organization")
	}
	if err != nil {
		return nil, fmt.Errorf("scan organization: %w", err)
	}
	return &o, nil
}

func (r *Repository) listOrgs(ctx context.Context, q string, args ...interface{}) ([]models.Organization, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()
	list := []models.Organization{}
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// Create inserts an organization.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	const q = `INSERT INTO organizations (id, name, slug, type, verification_status, created_by, city, state_code,
		country_code, website, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.Exec(ctx, q, org.ID, org.Name, org.Slug, org.Type, org.VerificationStatus, org.CreatedBy,
		org.City, org.StateCode, org.CountryCode, org.Website, org.CreatedAt, org.UpdatedAt)
	if _, ok := database.IsUniqueViolation(err); ok {
		return apperr.Conflict("an organization with this slug already exists")
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return scanOrg(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id))
}

// GetForUpdate returns an organization and locks its row until the transaction ends.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return scanOrg(r.db.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = $1 FOR UPDATE`, id))
}

// Update writes every mutable column of org.
func (r *Repository) Update(ctx context.Context, org *models.Organization) error {
	const q = `UPDATE organizations SET name = $2, type = $3, verification_status = $4, city = $5, state_code = $6,
		country_code = $7, website = $8, rejection_reason = $9, verified_at = $10, verified_by = $11, updated_at = $12
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, org.ID, org.Name, org.Type, org.VerificationStatus, org.City, org.StateCode,
		org.CountryCode, org.Website, org.RejectionReason, org.VerifiedAt, org.VerifiedBy, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("organization")
	}
	return nil
}

// Delete removes an organization; members and API keys cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("organization")
	}
	return nil
}

// ListForUser returns organizations the user is a member of.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	return r.listOrgs(ctx, `SELECT o.id, o.name, o.slug, o.type, o.verification_status, o.created_by, o.city, o.state_code,
		o.country_code, o.website, o.rejection_reason, o.verified_at, o.verified_by, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1 ORDER BY o.name`, userID)
}

// ListByStatus returns organizations in a verification status, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, status models.VerificationStatus) ([]models.Organization, error) {
	return r.listOrgs(ctx, `SELECT `+orgColumns+` FROM organizations WHERE verification_status = $1 ORDER BY updated_at`, status)
}

// AddMember inserts a membership.
func (r *Repository) AddMember(ctx context.Context, m *models.OrganizationMember) error {
	const q = `INSERT INTO organization_members (id, organization_id, user_id, role, invited_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, q, m.ID, m.OrganizationID, m.UserID, m.Role, m.InvitedBy, m.CreatedAt, m.UpdatedAt)
	if _, ok := database.IsUniqueViolation(err); ok {
		return apperr.Conflict("user is already a member")
	}
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

const memberColumns = `m.id, m.organization_id, m.user_id, m.role, m.invited_by, u.email, u.display_name, m.created_at, m.updated_at`

func scanMember(row pgx.Row) (*models.OrganizationMember, error) {
	var m models.OrganizationMember
	err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.InvitedBy, &m.Email, &m.DisplayName, &m.CreatedAt, &m.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("member")
	}
	if err != nil {
		return nil, fmt.Errorf("scan member: %w", err)
	}
	return &m, nil
}

// GetMember returns one membership.
func (r *Repository) GetMember(ctx context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error) {
	return scanMember(r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2`, orgID, userID))
}

// MemberRole returns the user's role in the organization.
func (r *Repository) MemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error) {
	var role models.OrgRole
	err := r.db.QueryRow(ctx, `SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID).Scan(&role)
	if database.IsNoRows(err) {
		return "", apperr.NotFound("member")
	}
	if err != nil {
		return "", fmt.Errorf("get member role: %w", err)
	}
	return role, nil
}

// UpdateMemberRole sets a member's role.
func (r *Repository) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role models.OrgRole) error {
	tag, err := r.db.Exec(ctx, `UPDATE organization_members SET role = $3, updated_at = NOW()
		WHERE organization_id = $1 AND user_id = $2`, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("member")
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *Repository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("member")
	}
	return nil
}

// ListMembers returns members ordered by role rank then join date.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error) {
	rows, err := r.db.Query(ctx, `SELECT `+memberColumns+` FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY CASE m.role WHEN 'owner' THEN 1 WHEN 'admin' THEN 2 WHEN 'editor' THEN 3 ELSE 4 END, m.created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	list := []models.OrganizationMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// CountOwners returns the number of owners, locking their rows.
func (r *Repository) CountOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM organization_members
		WHERE organization_id = $1 AND role = 'owner' FOR UPDATE`, orgID)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// UserIDByEmail resolves a registered user's id.
func (r *Repository) UserIDByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = lower($1)`, email).Scan(&id)
	if database.IsNoRows(err) {
		return uuid.Nil, apperr.NotFound("user")
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get user by email: %w", err)
	}
	return id, nil
}

// SetPrimaryOrgIfUnset makes orgID the user's primary organization when they have none.
func (r *Repository) SetPrimaryOrgIfUnset(ctx context.Context, userID, orgID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET primary_organization_id = $2, updated_at = NOW()
		WHERE id = $1 AND primary_organization_id IS NULL`, userID, orgID)
	if err != nil {
		return fmt.Errorf("set primary organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !exists {
			return apperr.NotFound("user")
		}
	}
	return nil
}

// ClearPrimaryOrg unsets the user's primary organization if it is orgID.
func (r *Repository) ClearPrimaryOrg(ctx context.Context, userID, orgID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET primary_organization_id = NULL, updated_at = NOW()
		WHERE id = $1 AND primary_organization_id = $2`, userID, orgID)
	if err != nil {
		return fmt.Errorf("clear primary organization: %w", err)
	}
	return nil
}

// RecordAudit writes an audit row on the repository's handle.
func (r *Repository) RecordAudit(ctx context.Context, e audit.Entry) error {
	return audit.NewRepository(r.db).Record(ctx, e)
}

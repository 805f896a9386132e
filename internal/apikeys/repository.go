package apikeys

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/database"
)

// Repository persists api_keys.
type Repository struct {
	db   database.DBTX
	pool database.TxBeginner
}

// NewRepository creates an API key repository.
func NewRepository(db database.DBTX, pool database.TxBeginner) *Repository {
	return &Repository{db: db, pool: pool}
}

// InTx runs fn with a repository bound to a new transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

const keyColumns = `k.id, k.organization_id, k.name, k.key_prefix, k.key_hash, k.scopes, k.rate_limit_per_minute,
	k.rate_limit_per_day, k.is_active, k.created_by, k.last_used_at, k.revoked_at, k.created_at`

func scanKey(row pgx.Row, extra ...interface{}) (*models.APIKey, error) {
	var k models.APIKey
	var scopes []string
	dest := []interface{}{&k.ID, &k.OrganizationID, &k.Name, &k.KeyPrefix, &k.KeyHash, &scopes,
		&k.RateLimitPerMinute, &k.RateLimitPerDay, &k.IsActive, &k.CreatedBy, &k.LastUsedAt, &k.RevokedAt, &k.CreatedAt}
	err := row.Scan(append(dest, extra...)...)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("api key")
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	for _, s := range scopes {
		k.Scopes = append(k.Scopes, models.APIKeyScope(s))
	}
	return &k, nil
}

// OrganizationStatus returns the verification status of an organization.
func (r *Repository) OrganizationStatus(ctx context.Context, orgID uuid.UUID) (models.VerificationStatus, error) {
	var status models.VerificationStatus
	err := r.db.QueryRow(ctx, `SELECT verification_status FROM organizations WHERE id = $1`, orgID).Scan(&status)
	if database.IsNoRows(err) {
		return "", apperr.NotFound("organization")
	}
	if err != nil {
		return "", fmt.Errorf("organization status: %w", err)
	}
	return status, nil
}

// Create inserts a key.
func (r *Repository) Create(ctx context.Context, k *models.APIKey) error {
	scopes := make([]string, len(k.Scopes))
	for i, s := range k.Scopes {
		scopes[i] = string(s)
	}
	const q = `INSERT INTO api_keys (id, organization_id, name, key_prefix, key_hash, scopes, rate_limit_per_minute,
		rate_limit_per_day, is_active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, q, k.ID, k.OrganizationID, k.Name, k.KeyPrefix, k.KeyHash, scopes,
		k.RateLimitPerMinute, k.RateLimitPerDay, k.IsActive, k.CreatedBy, k.CreatedAt)
	if _, ok := database.IsUniqueViolation(err); ok {
		return apperr.Conflict("api key collision, retry")
	}
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// List returns an organization's keys newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]models.APIKey, error) {
	rows, err := r.db.Query(ctx, `SELECT `+keyColumns+` FROM api_keys k WHERE k.organization_id = $1 ORDER BY k.created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	list := []models.APIKey{}
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *k)
	}
	return list, rows.Err()
}

// GetForUpdate locks a key of orgID.
func (r *Repository) GetForUpdate(ctx context.Context, orgID, keyID uuid.UUID) (*models.APIKey, error) {
	return scanKey(r.db.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys k
		WHERE k.id = $1 AND k.organization_id = $2 FOR UPDATE`, keyID, orgID))
}

// Revoke deactivates a key.
func (r *Repository) Revoke(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET is_active = FALSE, revoked_at = $2 WHERE id = $1 AND is_active`, keyID, at)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

// GetActiveByHash returns an active key and its organization's verification status.
func (r *Repository) GetActiveByHash(ctx context.Context, hash string) (*models.APIKey, models.VerificationStatus, error) {
	var status models.VerificationStatus
	k, err := scanKey(r.db.QueryRow(ctx, `SELECT `+keyColumns+`, o.verification_status
		FROM api_keys k JOIN organizations o ON o.id = k.organization_id
		WHERE k.key_hash = $1 AND k.is_active`, hash), &status)
	if err != nil {
		return nil, "", err
	}
	return k, status, nil
}

// TouchLastUsed records key usage.
func (r *Repository) TouchLastUsed(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
	return err
}

// RecordAudit writes an audit row with the repository's handle.
func (r *Repository) RecordAudit(ctx context.Context, e audit.Entry) error {
	return audit.NewRepository(r.db).Record(ctx, e)
}

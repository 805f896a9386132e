package auth

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

// Repository handles user persistence.
type Repository struct {
	db   database.DBTX
	pool database.TxBeginner
}

// NewRepository creates an auth repository. pool may be nil for a repository
// already bound to a transaction.
func NewRepository(db database.DBTX, pool database.TxBeginner) *Repository {
	return &Repository{db: db, pool: pool}
}

const userColumns = `id, email, password, display_name, plan, platform_role, primary_organization_id, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.DisplayName, &u.Plan, &u.PlatformRole,
		&u.PrimaryOrganizationID, &u.CreatedAt, &u.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// Create inserts a new user on the free plan with the plain user role.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName string) (*models.User, error) {
	const q = `INSERT INTO users (id, email, password, display_name, plan, platform_role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, q, uuid.New(), email, passwordHash, displayName,
		models.PlanFree, models.PlatformRoleUser))
	if err != nil {
		if _, ok := database.IsUniqueViolation(err); ok {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, err
	}
	return u, nil
}

// ChangePlan sets the user's plan, records a subscription row and audits the
// change in one transaction.
func (r *Repository) ChangePlan(ctx context.Context, userID uuid.UUID, plan models.PlanTier) (*models.User, error) {
	var out *models.User
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		prev, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, userID))
		if err != nil {
			return err
		}
		out, err = scanUser(tx.QueryRow(ctx, `UPDATE users SET plan = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns,
			userID, plan))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE subscriptions SET status = 'replaced' WHERE user_id = $1 AND status = 'active'`, userID); err != nil {
			return fmt.Errorf("close subscription: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO subscriptions (id, user_id, plan, status, started_at) VALUES ($1, $2, $3, 'active', $4)`,
			uuid.New(), userID, plan, time.Now().UTC()); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		entry := audit.NewEntry(userID, audit.ActionChangePlan, audit.EntityUser, userID.String(), out.Email).
			WithData(map[string]models.PlanTier{"plan": prev.Plan}, map[string]models.PlanTier{"plan": plan})
		return audit.NewRepository(tx).Record(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

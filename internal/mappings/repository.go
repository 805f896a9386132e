package mappings

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/database"
)

// Repository persists provider_mappings.
type Repository struct {
	db    database.DBTX
	pool  database.TxBeginner
	audit *audit.Repository
}

// NewRepository creates a mapping repository.
func NewRepository(db database.DBTX, pool database.TxBeginner) *Repository {
	return &Repository{db: db, pool: pool, audit: audit.NewRepository(db)}
}

// InTx runs fn with a repository bound to a new transaction.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx, audit: audit.NewRepository(tx)})
	})
}

const mappingColumns = `id, provider_name, provider_entity_type, provider_entity_id, internal_entity_id,
	provider_entity_name, confidence, is_active, created_by, created_at, updated_at`

func scanMapping(row pgx.Row) (*models.ProviderMapping, error) {
	var m models.ProviderMapping
	err := row.Scan(&m.ID, &m.ProviderName, &m.ProviderEntityType, &m.ProviderEntityID, &m.InternalEntityID,
		&m.ProviderEntityName, &m.Confidence, &m.IsActive, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("provider mapping")
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider mapping: %w", err)
	}
	return &m, nil
}

func (r *Repository) findActive(ctx context.Context, column string, k Key, value string) (*models.ProviderMapping, error) {
	q := `SELECT ` + mappingColumns + ` FROM provider_mappings
		WHERE is_active AND provider_name = $1 AND provider_entity_type = $2 AND ` + column + ` = $3
		AND ($4::uuid IS NULL OR id <> $4) LIMIT 1`
	m, err := scanMapping(r.db.QueryRow(ctx, q, k.ProviderName, k.EntityType, value, k.Exclude))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	return m, err
}

// FindActiveByProviderID returns the active mapping for a provider entity, if any.
func (r *Repository) FindActiveByProviderID(ctx context.Context, k Key, providerEntityID string) (*models.ProviderMapping, error) {
	return r.findActive(ctx, "provider_entity_id", k, providerEntityID)
}

// FindActiveByInternalID returns the active mapping for an internal entity, if any.
func (r *Repository) FindActiveByInternalID(ctx context.Context, k Key, internalEntityID string) (*models.ProviderMapping, error) {
	return r.findActive(ctx, "internal_entity_id", k, internalEntityID)
}

func uniqueErr(err error, op string) error {
	if _, ok := database.IsUniqueViolation(err); ok {
		return ErrDuplicate
	}
	return fmt.Errorf("%s provider mapping: %w", op, err)
}

// Create inserts a mapping. Unique index violations surface as ErrDuplicate.
func (r *Repository) Create(ctx context.Context, m *models.ProviderMapping) error {
	const q = `INSERT INTO provider_mappings (id, provider_name, provider_entity_type, provider_entity_id,
		internal_entity_id, provider_entity_name, confidence, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Exec(ctx, q, m.ID, m.ProviderName, m.ProviderEntityType, m.ProviderEntityID, m.InternalEntityID,
		m.ProviderEntityName, m.Confidence, m.IsActive, m.CreatedBy, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return uniqueErr(err, "insert")
	}
	return nil
}

// Get loads a mapping by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.ProviderMapping, error) {
	return scanMapping(r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM provider_mappings WHERE id = $1`, id))
}

// GetForUpdate loads and row-locks a mapping. Call inside InTx.
func (r *Repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.ProviderMapping, error) {
	return scanMapping(r.db.QueryRow(ctx, `SELECT `+mappingColumns+` FROM provider_mappings WHERE id = $1 FOR UPDATE`, id))
}

// Update writes the mutable columns of m.
func (r *Repository) Update(ctx context.Context, m *models.ProviderMapping) error {
	const q = `UPDATE provider_mappings SET provider_entity_id = $2, internal_entity_id = $3, provider_entity_name = $4,
		confidence = $5, is_active = $6, updated_at = $7 WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, m.ID, m.ProviderEntityID, m.InternalEntityID, m.ProviderEntityName,
		m.Confidence, m.IsActive, m.UpdatedAt)
	if err != nil {
		return uniqueErr(err, "update")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider mapping")
	}
	return nil
}

// Delete removes a mapping.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM provider_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete provider mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider mapping")
	}
	return nil
}

// List returns mappings matching f, newest first.
func (r *Repository) List(ctx context.Context, f models.MappingFilter) ([]models.ProviderMapping, error) {
	q := `SELECT ` + mappingColumns + ` FROM provider_mappings WHERE 1=1`
	args := []interface{}{}
	add := func(column string, v interface{}) {
		args = append(args, v)
		q += " AND " + column + " = $" + strconv.Itoa(len(args))
	}
	if f.ProviderName != "" {
		add("provider_name", f.ProviderName)
	}
	if f.EntityType != "" {
		add("provider_entity_type", f.EntityType)
	}
	if f.InternalEntityID != "" {
		add("internal_entity_id", f.InternalEntityID)
	}
	if f.Active != nil {
		add("is_active", *f.Active)
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list provider mappings: %w", err)
	}
	defer rows.Close()
	list := []models.ProviderMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// scopes selects (id, name, slug, sport) for each mappable entity type. A NULL
// sport means the type is not sport specific.
var scopes = map[models.MappingEntityType]string{
	models.MappingContinent: `SELECT id, name, slug, NULL::text AS sport FROM continents`,
	models.MappingCountry:   `SELECT id, name, slug, NULL::text AS sport FROM countries`,
	models.MappingLeague:    `SELECT id, name, slug, sport FROM leagues`,
	models.MappingTeam: `SELECT t.id, t.name, t.slug, l.sport FROM teams t
		LEFT JOIN leagues l ON l.id = t.league_id`,
	models.MappingSeason: `SELECT s.id, s.name, s.slug, l.sport FROM seasons s
		JOIN leagues l ON l.id = s.league_id`,
	models.MappingPlayer: `SELECT p.id, p.name, p.slug, l.sport FROM players p
		LEFT JOIN teams t ON t.id = p.team_id LEFT JOIN leagues l ON l.id = t.league_id`,
	models.MappingFixture: `SELECT f.id, home.name || ' vs ' || away.name AS name, f.id AS slug, l.sport FROM fixtures f
		JOIN teams home ON home.id = f.home_team_id JOIN teams away ON away.id = f.away_team_id
		JOIN seasons s ON s.id = f.season_id JOIN leagues l ON l.id = s.league_id`,
}

func scopeFor(t models.MappingEntityType) (string, error) {
	q, ok := scopes[t]
	if !ok {
		return "", apperr.Validation("unknown entity type " + string(t))
	}
	return q, nil
}

// Coverage counts entities of type t and how many have an active mapping,
// optionally from one provider.
func (r *Repository) Coverage(ctx context.Context, t models.MappingEntityType, sport, source string) (total, mapped int, err error) {
	scope, err := scopeFor(t)
	if err != nil {
		return 0, 0, err
	}
	q := `WITH scope AS (` + scope + `)
		SELECT COUNT(*), COUNT(*) FILTER (WHERE EXISTS (
			SELECT 1 FROM provider_mappings m WHERE m.is_active AND m.provider_entity_type = $1
			AND m.internal_entity_id = scope.id AND ($2 = '' OR m.provider_name = $2)))
		FROM scope WHERE ($3 = '' OR scope.sport IS NULL OR scope.sport = $3)`
	if err := r.db.QueryRow(ctx, q, t, source, sport).Scan(&total, &mapped); err != nil {
		return 0, 0, fmt.Errorf("coverage %s: %w", t, err)
	}
	return total, mapped, nil
}

// Unmapped lists entities of type t without an active mapping, by name.
func (r *Repository) Unmapped(ctx context.Context, t models.MappingEntityType, sport string, limit int) ([]models.UnmappedEntity, error) {
	scope, err := scopeFor(t)
	if err != nil {
		return nil, err
	}
	q := `WITH scope AS (` + scope + `)
		SELECT id, name, slug, COALESCE(sport, '') FROM scope
		WHERE ($2 = '' OR scope.sport IS NULL OR scope.sport = $2)
		AND NOT EXISTS (SELECT 1 FROM provider_mappings m
			WHERE m.is_active AND m.provider_entity_type = $1 AND m.internal_entity_id = scope.id)
		ORDER BY name LIMIT $3`
	rows, err := r.db.Query(ctx, q, t, sport, limit)
	if err != nil {
		return nil, fmt.Errorf("unmapped %s: %w", t, err)
	}
	defer rows.Close()
	list := []models.UnmappedEntity{}
	for rows.Next() {
		e := models.UnmappedEntity{EntityType: t}
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &e.Sport); err != nil {
			return nil, fmt.Errorf("scan unmapped %s: %w", t, err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// RecordAudit appends an audit row on the repository's connection.
func (r *Repository) RecordAudit(ctx context.Context, e audit.Entry) error {
	return r.audit.Record(ctx, e)
}

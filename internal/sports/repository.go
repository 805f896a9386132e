package sports

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/database"
)

// tables maps entity types to their table. Only these names are ever
// interpolated into SQL.
var tables = map[string]string{
	"continent": "continents",
	"country":   "countries",
	"league":    "leagues",
	"division":  "divisions",
	"team":      "teams",
	"venue":     "venues",
	"season":    "seasons",
	"fixture":   "fixtures",
	"player":    "players",
}

// TableFor returns the table holding entityType.
func TableFor(entityType string) (string, bool) {
	t, ok := tables[entityType]
	return t, ok
}

// Repository reads and writes the sports hierarchy.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a sports repository on a pool or a transaction.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

// ListContinents returns all continents by name.
func (r *Repository) ListContinents(ctx context.Context) ([]models.Continent, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, slug, code FROM continents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list continents: %w", err)
	}
	defer rows.Close()
	list := []models.Continent{}
	for rows.Next() {
		var c models.Continent
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Code); err != nil {
			return nil, fmt.Errorf("scan continent: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// ListCountries returns the countries of a continent.
func (r *Repository) ListCountries(ctx context.Context, continentID string) ([]models.Country, error) {
	rows, err := r.db.Query(ctx, `SELECT id, continent_id, name, slug, code, flag_url
		FROM countries WHERE continent_id = $1 ORDER BY name`, continentID)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	defer rows.Close()
	list := []models.Country{}
	for rows.Next() {
		var c models.Country
		if err := rows.Scan(&c.ID, &c.ContinentID, &c.Name, &c.Slug, &c.Code, &c.FlagURL); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

const leagueColumns = `id, COALESCE(country_id, ''), sport, name, slug, short_name, tier, grassroots_type, city, state_code, logo_url, created_at`

func scanLeague(row interface{ Scan(...any) error }, l *models.League) error {
	return row.Scan(&l.ID, &l.CountryID, &l.Sport, &l.Name, &l.Slug, &l.ShortName, &l.Tier,
		&l.GrassrootsType, &l.City, &l.StateCode, &l.LogoURL, &l.CreatedAt)
}

// LeagueFilter narrows league listings.
type LeagueFilter struct {
	CountryID string
	Sport     string
	Limit     int
	Offset    int
}

// ListLeagues returns leagues matching f ordered by tier then name.
func (r *Repository) ListLeagues(ctx context.Context, f LeagueFilter) ([]models.League, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.CountryID != "" {
		args = append(args, f.CountryID)
		where = append(where, fmt.Sprintf("country_id = $%d", len(args)))
	}
	if f.Sport != "" {
		args = append(args, f.Sport)
		where = append(where, fmt.Sprintf("sport = $%d", len(args)))
	}
	q := `SELECT ` + leagueColumns + ` FROM leagues`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY tier NULLS LAST, name"
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		q += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list leagues: %w", err)
	}
	defer rows.Close()
	list := []models.League{}
	for rows.Next() {
		var l models.League
		if err := scanLeague(rows, &l); err != nil {
			return nil, fmt.Errorf("scan league: %w", err)
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// GetLeague returns a league by id.
func (r *Repository) GetLeague(ctx context.Context, id string) (*models.League, error) {
	var l models.League
	err := scanLeague(r.db.QueryRow(ctx, `SELECT `+leagueColumns+` FROM leagues WHERE id = $1`, id), &l)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("league")
	}
	if err != nil {
		return nil, fmt.Errorf("get league: %w", err)
	}
	return &l, nil
}

const teamColumns = `id, COALESCE(league_id, ''), COALESCE(division_id, ''), name, slug, short_name, city, state_code,
	age_group, gender, COALESCE(venue_id, ''), logo_url, created_at`

func scanTeam(row interface{ Scan(...any) error }, t *models.Team) error {
	return row.Scan(&t.ID, &t.LeagueID, &t.DivisionID, &t.Name, &t.Slug, &t.ShortName, &t.City, &t.StateCode,
		&t.AgeGroup, &t.Gender, &t.VenueID, &t.LogoURL, &t.CreatedAt)
}

// ListTeams returns the teams of a league.
func (r *Repository) ListTeams(ctx context.Context, leagueID string) ([]models.Team, error) {
	rows, err := r.db.Query(ctx, `SELECT `+teamColumns+` FROM teams WHERE league_id = $1 ORDER BY name`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()
	list := []models.Team{}
	for rows.Next() {
		var t models.Team
		if err := scanTeam(rows, &t); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// GetTeam returns a team by id.
func (r *Repository) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	var t models.Team
	err := scanTeam(r.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id), &t)
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("team")
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return &t, nil
}

// ListSeasons returns the seasons of a league, newest first.
func (r *Repository) ListSeasons(ctx context.Context, leagueID string) ([]models.Season, error) {
	rows, err := r.db.Query(ctx, `SELECT id, league_id, name, slug, start_date, end_date, is_current, created_at
		FROM seasons WHERE league_id = $1 ORDER BY start_date DESC NULLS LAST, name DESC`, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	defer rows.Close()
	list := []models.Season{}
	for rows.Next() {
		var s models.Season
		if err := rows.Scan(&s.ID, &s.LeagueID, &s.Name, &s.Slug, &s.StartDate, &s.EndDate, &s.IsCurrent, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ListFixtures returns a team's fixtures, optionally within one season.
func (r *Repository) ListFixtures(ctx context.Context, teamID, seasonID string) ([]models.Fixture, error) {
	q := `SELECT id, season_id, home_team_id, away_team_id, COALESCE(venue_id, ''), kickoff_at, status, home_score, away_score
		FROM fixtures WHERE (home_team_id = $1 OR away_team_id = $1)`
	args := []interface{}{teamID}
	if seasonID != "" {
		args = append(args, seasonID)
		q += " AND season_id = $2"
	}
	q += " ORDER BY kickoff_at NULLS LAST"
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list fixtures: %w", err)
	}
	defer rows.Close()
	list := []models.Fixture{}
	for rows.Next() {
		var f models.Fixture
		if err := rows.Scan(&f.ID, &f.SeasonID, &f.HomeTeamID, &f.AwayTeamID, &f.VenueID, &f.KickoffAt, &f.Status, &f.HomeScore, &f.AwayScore); err != nil {
			return nil, fmt.Errorf("scan fixture: %w", err)
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

// ListStandings returns the table of a season.
func (r *Repository) ListStandings(ctx context.Context, seasonID string) ([]models.Standing, error) {
	rows, err := r.db.Query(ctx, `SELECT id, season_id, team_id, position, played, won, drawn, lost, goals_for, goals_against, points
		FROM standings WHERE season_id = $1 ORDER BY position`, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}
	defer rows.Close()
	list := []models.Standing{}
	for rows.Next() {
		var s models.Standing
		if err := rows.Scan(&s.ID, &s.SeasonID, &s.TeamID, &s.Position, &s.Played, &s.Won, &s.Drawn, &s.Lost,
			&s.GoalsFor, &s.GoalsAgainst, &s.Points); err != nil {
			return nil, fmt.Errorf("scan standing: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// EntityExists reports whether an entity of entityType with id exists.
func (r *Repository) EntityExists(ctx context.Context, entityType, id string) (bool, error) {
	table, ok := TableFor(entityType)
	if !ok {
		return false, apperr.Validation("unknown entity type " + entityType)
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check %s exists: %w", entityType, err)
	}
	return exists, nil
}

// DivisionLeague returns the league a division belongs to.
func (r *Repository) DivisionLeague(ctx context.Context, divisionID string) (string, error) {
	var leagueID string
	err := r.db.QueryRow(ctx, `SELECT league_id FROM divisions WHERE id = $1`, divisionID).Scan(&leagueID)
	if database.IsNoRows(err) {
		return "", apperr.NotFound("division")
	}
	if err != nil {
		return "", fmt.Errorf("get division league: %w", err)
	}
	return leagueID, nil
}

// FindCandidates returns entities of entityType whose slug equals slug or whose
// name contains any of tokens. Scoring is left to the caller.
func (r *Repository) FindCandidates(ctx context.Context, entityType, slug string, tokens []string, limit int) ([]models.EntityRef, error) {
	var q string
	switch entityType {
	case "league":
		q = `SELECT id, name, slug, city, state_code, '' FROM leagues`
	case "team":
		q = `SELECT id, name, slug, city, state_code, COALESCE(league_id, '') FROM teams`
	case "venue":
		q = `SELECT id, name, slug, city, state_code, '' FROM venues`
	case "division":
		q = `SELECT id, name, slug, '', '', league_id FROM divisions`
	case "season":
		q = `SELECT id, name, slug, '', '', league_id FROM seasons`
	default:
		return nil, apperr.Validation("unknown entity type " + entityType)
	}
	patterns := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) >= 3 {
			patterns = append(patterns, "%"+t+"%")
		}
	}
	q += ` WHERE slug = $1 OR lower(name) LIKE ANY($2) LIMIT $3`
	rows, err := r.db.Query(ctx, q, slug, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("find %s candidates: %w", entityType, err)
	}
	defer rows.Close()
	list := []models.EntityRef{}
	for rows.Next() {
		e := models.EntityRef{Type: entityType}
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &e.City, &e.StateCode, &e.LeagueID); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// NewEntity holds the attributes of an entity created by promotion.
type NewEntity struct {
	Type           string
	Name           string
	Slug           string
	ShortName      string
	City           string
	StateCode      string
	CountryCode    string
	Tier           *int
	AgeGroup       string
	Gender         string
	GrassrootsType string
	LeagueID       string
	DivisionID     string
	LogoURL        string
}

const maxSlugAttempts = 50

// UniqueSlug returns base, or base suffixed with -2, -3, ... when taken.
func (r *Repository) UniqueSlug(ctx context.Context, entityType, base string) (string, error) {
	table, ok := TableFor(entityType)
	if !ok {
		return "", apperr.Validation("unknown entity type " + entityType)
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		var taken bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE slug = $1)`, candidate).Scan(&taken); err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", apperr.Conflict("no free slug for " + base)
}

// CreateEntity inserts e into its table and returns the new id.
func (r *Repository) CreateEntity(ctx context.Context, e NewEntity) (string, error) {
	slug, err := r.UniqueSlug(ctx, e.Type, e.Slug)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	switch e.Type {
	case "league":
		_, err = r.db.Exec(ctx, `INSERT INTO leagues (id, country_id, name, slug, short_name, tier, grassroots_type, city, state_code, logo_url)
			VALUES ($1, (SELECT id FROM countries WHERE upper(code) = upper($2) LIMIT 1), $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, e.CountryCode, e.Name, slug, e.ShortName, e.Tier, e.GrassrootsType, e.City, e.StateCode, e.LogoURL)
	case "division":
		_, err = r.db.Exec(ctx, `INSERT INTO divisions (id, league_id, name, slug, age_group, gender)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, e.LeagueID, e.Name, slug, e.AgeGroup, e.Gender)
	case "team":
		_, err = r.db.Exec(ctx, `INSERT INTO teams (id, league_id, division_id, name, slug, short_name, city, state_code, age_group, gender, logo_url)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11)`,
			id, e.LeagueID, e.DivisionID, e.Name, slug, e.ShortName, e.City, e.StateCode, e.AgeGroup, e.Gender, e.LogoURL)
	case "venue":
		_, err = r.db.Exec(ctx, `INSERT INTO venues (id, name, slug, city, state_code, country_code)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, e.Name, slug, e.City, e.StateCode, e.CountryCode)
	case "season":
		_, err = r.db.Exec(ctx, `INSERT INTO seasons (id, league_id, name, slug) VALUES ($1, $2, $3, $4)`,
			id, e.LeagueID, e.Name, slug)
	default:
		return "", apperr.Validation("cannot create entity of type " + e.Type)
	}
	if _, ok := database.IsForeignKeyViolation(err); ok {
		return "", apperr.Validation("a parent of the new " + e.Type + " does not exist")
	}
	if err != nil {
		return "", fmt.Errorf("create %s: %w", e.Type, err)
	}
	return id, nil
}

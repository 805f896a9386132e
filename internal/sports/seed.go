package sports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pitchside/backend/internal/models"
)

// Dataset is the reference data file consumed by cmd/seed.
type Dataset struct {
	Continents []models.Continent `json:"continents"`
	Countries  []models.Country   `json:"countries"`
	Leagues    []models.League    `json:"leagues"`
	Venues     []models.Venue     `json:"venues"`
	Teams      []models.Team      `json:"teams"`
	Seasons    []models.Season    `json:"seasons"`
	Fixtures   []models.Fixture   `json:"fixtures"`
	Standings  []models.Standing  `json:"standings"`
	Players    []models.Player    `json:"players"`
}

// DecodeDataset reads a JSON dataset.
func DecodeDataset(r io.Reader) (*Dataset, error) {
	var d Dataset
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &d, nil
}

// SeedCounts reports how many rows of each kind were upserted.
type SeedCounts map[string]int

// Seed upserts d by id, parents first. Run it inside a transaction.
func (r *Repository) Seed(ctx context.Context, d *Dataset) (SeedCounts, error) {
	counts := SeedCounts{}
	for _, c := range d.Continents {
		if _, err := r.db.Exec(ctx, `INSERT INTO continents (id, name, slug, code) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug, code = EXCLUDED.code`,
			c.ID, c.Name, c.Slug, c.Code); err != nil {
			return nil, fmt.Errorf("seed continent %s: %w", c.ID, err)
		}
		counts["continents"]++
	}
	for _, c := range d.Countries {
		if _, err := r.db.Exec(ctx, `INSERT INTO countries (id, continent_id, name, slug, code, flag_url) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET continent_id = EXCLUDED.continent_id, name = EXCLUDED.name, slug = EXCLUDED.slug,
			code = EXCLUDED.code, flag_url = EXCLUDED.flag_url`,
			c.ID, c.ContinentID, c.Name, c.Slug, c.Code, c.FlagURL); err != nil {
			return nil, fmt.Errorf("seed country %s: %w", c.ID, err)
		}
		counts["countries"]++
	}
	for _, l := range d.Leagues {
		sport := l.Sport
		if sport == "" {
			sport = "soccer"
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO leagues (id, country_id, sport, name, slug, short_name, tier, city, state_code, logo_url)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET country_id = EXCLUDED.country_id, sport = EXCLUDED.sport, name = EXCLUDED.name,
			slug = EXCLUDED.slug, short_name = EXCLUDED.short_name, tier = EXCLUDED.tier, city = EXCLUDED.city,
			state_code = EXCLUDED.state_code, logo_url = EXCLUDED.logo_url`,
			l.ID, l.CountryID, sport, l.Name, l.Slug, l.ShortName, l.Tier, l.City, l.StateCode, l.LogoURL); err != nil {
			return nil, fmt.Errorf("seed league %s: %w", l.ID, err)
		}
		counts["leagues"]++
	}
	for _, v := range d.Venues {
		if _, err := r.db.Exec(ctx, `INSERT INTO venues (id, name, slug, city, state_code, country_code) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug, city = EXCLUDED.city,
			state_code = EXCLUDED.state_code, country_code = EXCLUDED.country_code`,
			v.ID, v.Name, v.Slug, v.City, v.StateCode, v.CountryCode); err != nil {
			return nil, fmt.Errorf("seed venue %s: %w", v.ID, err)
		}
		counts["venues"]++
	}
	for _, t := range d.Teams {
		if _, err := r.db.Exec(ctx, `INSERT INTO teams (id, league_id, name, slug, short_name, city, state_code, venue_id, logo_url)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
			ON CONFLICT (id) DO UPDATE SET league_id = EXCLUDED.league_id, name = EXCLUDED.name, slug = EXCLUDED.slug,
			short_name = EXCLUDED.short_name, city = EXCLUDED.city, state_code = EXCLUDED.state_code,
			venue_id = EXCLUDED.venue_id, logo_url = EXCLUDED.logo_url`,
			t.ID, t.LeagueID, t.Name, t.Slug, t.ShortName, t.City, t.StateCode, t.VenueID, t.LogoURL); err != nil {
			return nil, fmt.Errorf("seed team %s: %w", t.ID, err)
		}
		counts["teams"]++
	}
	for _, s := range d.Seasons {
		if _, err := r.db.Exec(ctx, `INSERT INTO seasons (id, league_id, name, slug, start_date, end_date, is_current)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET league_id = EXCLUDED.league_id, name = EXCLUDED.name, slug = EXCLUDED.slug,
			start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date, is_current = EXCLUDED.is_current`,
			s.ID, s.LeagueID, s.Name, s.Slug, s.StartDate, s.EndDate, s.IsCurrent); err != nil {
			return nil, fmt.Errorf("seed season %s: %w", s.ID, err)
		}
		counts["seasons"]++
	}
	for _, f := range d.Fixtures {
		status := f.Status
		if status == "" {
			status = "scheduled"
		}
		if _, err := r.db.Exec(ctx, `INSERT INTO fixtures (id, season_id, home_team_id, away_team_id, venue_id, kickoff_at, status, home_score, away_score)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET season_id = EXCLUDED.season_id, home_team_id = EXCLUDED.home_team_id,
			away_team_id = EXCLUDED.away_team_id, venue_id = EXCLUDED.venue_id, kickoff_at = EXCLUDED.kickoff_at,
			status = EXCLUDED.status, home_score = EXCLUDED.home_score, away_score = EXCLUDED.away_score`,
			f.ID, f.SeasonID, f.HomeTeamID, f.AwayTeamID, f.VenueID, f.KickoffAt, status, f.HomeScore, f.AwayScore); err != nil {
			return nil, fmt.Errorf("seed fixture %s: %w", f.ID, err)
		}
		counts["fixtures"]++
	}
	for _, s := range d.Standings {
		if _, err := r.db.Exec(ctx, `INSERT INTO standings (id, season_id, team_id, position, played, won, drawn, lost, goals_for, goals_against, points)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position, played = EXCLUDED.played, won = EXCLUDED.won,
			drawn = EXCLUDED.drawn, lost = EXCLUDED.lost, goals_for = EXCLUDED.goals_for,
			goals_against = EXCLUDED.goals_against, points = EXCLUDED.points`,
			s.ID, s.SeasonID, s.TeamID, s.Position, s.Played, s.Won, s.Drawn, s.Lost, s.GoalsFor, s.GoalsAgainst, s.Points); err != nil {
			return nil, fmt.Errorf("seed standing %s: %w", s.ID, err)
		}
		counts["standings"]++
	}
	for _, p := range d.Players {
		if _, err := r.db.Exec(ctx, `INSERT INTO players (id, team_id, name, slug, position, number)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET team_id = EXCLUDED.team_id, name = EXCLUDED.name, slug = EXCLUDED.slug,
			position = EXCLUDED.position, number = EXCLUDED.number`,
			p.ID, p.TeamID, p.Name, p.Slug, p.Position, p.Number); err != nil {
			return nil, fmt.Errorf("seed player %s: %w", p.ID, err)
		}
		counts["players"]++
	}
	return counts, nil
}

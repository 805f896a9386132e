package models

import "time"

// Continent is the root of the sports hierarchy.
type Continent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Code string `json:"code,omitempty"`
}

// Country belongs to a continent.
type Country struct {
	ID          string `json:"id"`
	ContinentID string `json:"continentId"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Code        string `json:"code,omitempty"`
	FlagURL     string `json:"flagUrl,omitempty"`
}

// League is a competition within a country.
type League struct {
	ID             string    `json:"id"`
	CountryID      string    `json:"countryId,omitempty"`
	Sport          string    `json:"sport"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	ShortName      string    `json:"shortName,omitempty"`
	Tier           *int      `json:"tier,omitempty"`
	GrassrootsType string    `json:"grassrootsType,omitempty"`
	City           string    `json:"city,omitempty"`
	StateCode      string    `json:"stateCode,omitempty"`
	LogoURL        string    `json:"logoUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Division is a subgroup of a league.
type Division struct {
	ID        string    `json:"id"`
	LeagueID  string    `json:"leagueId"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	AgeGroup  string    `json:"ageGroup,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Team plays in a league and optionally a division.
type Team struct {
	ID         string    `json:"id"`
	LeagueID   string    `json:"leagueId,omitempty"`
	DivisionID string    `json:"divisionId,omitempty"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	ShortName  string    `json:"shortName,omitempty"`
	City       string    `json:"city,omitempty"`
	StateCode  string    `json:"stateCode,omitempty"`
	AgeGroup   string    `json:"ageGroup,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	VenueID    string    `json:"venueId,omitempty"`
	LogoURL    string    `json:"logoUrl,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Venue is a ground where fixtures are played.
type Venue struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	City        string    `json:"city,omitempty"`
	StateCode   string    `json:"stateCode,omitempty"`
	CountryCode string    `json:"countryCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Season is one edition of a league.
type Season struct {
	ID        string     `json:"id"`
	LeagueID  string     `json:"leagueId"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	IsCurrent bool       `json:"isCurrent"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Fixture is a match between two teams within a season.
type Fixture struct {
	ID         string     `json:"id"`
	SeasonID   string     `json:"seasonId"`
	HomeTeamID string     `json:"homeTeamId"`
	AwayTeamID string     `json:"awayTeamId"`
	VenueID    string     `json:"venueId,omitempty"`
	KickoffAt  *time.Time `json:"kickoffAt,omitempty"`
	Status     string     `json:"status"`
	HomeScore  *int       `json:"homeScore,omitempty"`
	AwayScore  *int       `json:"awayScore,omitempty"`
}

// Standing is a team's table position within a season.
type Standing struct {
	ID           string `json:"id"`
	SeasonID     string `json:"seasonId"`
	TeamID       string `json:"teamId"`
	Position     int    `json:"position"`
	Played       int    `json:"played"`
	Won          int    `json:"won"`
	Drawn        int    `json:"drawn"`
	Lost         int    `json:"lost"`
	GoalsFor     int    `json:"goalsFor"`
	GoalsAgainst int    `json:"goalsAgainst"`
	Points       int    `json:"points"`
}

// Player belongs to a team.
type Player struct {
	ID       string `json:"id"`
	TeamID   string `json:"teamId,omitempty"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Position string `json:"position,omitempty"`
	Number   *int   `json:"number,omitempty"`
}

// EntityRef is a lightweight view of any authoritative entity used for
// duplicate detection and existence checks.
type EntityRef struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	City      string `json:"city,omitempty"`
	StateCode string `json:"stateCode,omitempty"`
	LeagueID  string `json:"leagueId,omitempty"`
}

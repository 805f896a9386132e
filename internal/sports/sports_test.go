package sports

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/models"
)

type stubReader struct {
	leagues  []models.League
	teams    map[string][]models.Team
	fixtures []models.Fixture
	gotSport string
	gotSeasn string
}

func (s *stubReader) ListContinents(context.Context) ([]models.Continent, error) {
	return []models.Continent{{ID: "continent-na", Name: "North America", Slug: "north-america"}}, nil
}

func (s *stubReader) ListCountries(_ context.Context, continentID string) ([]models.Country, error) {
	return []models.Country{{ID: "country-us", ContinentID: continentID, Name: "United States", Slug: "united-states"}}, nil
}

func (s *stubReader) ListLeagues(_ context.Context, f LeagueFilter) ([]models.League, error) {
	s.gotSport = f.Sport
	return s.leagues, nil
}

func (s *stubReader) GetLeague(_ context.Context, id string) (*models.League, error) {
	for _, l := range s.leagues {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, apperr.NotFound("league")
}

func (s *stubReader) ListTeams(_ context.Context, leagueID string) ([]models.Team, error) {
	return s.teams[leagueID], nil
}

func (s *stubReader) GetTeam(context.Context, string) (*models.Team, error) {
	return nil, apperr.NotFound("team")
}

func (s *stubReader) ListSeasons(context.Context, string) ([]models.Season, error) {
	return []models.Season{}, nil
}

func (s *stubReader) ListFixtures(_ context.Context, _ string, seasonID string) ([]models.Fixture, error) {
	s.gotSeasn = seasonID
	return s.fixtures, nil
}

func (s *stubReader) ListStandings(context.Context, string) ([]models.Standing, error) {
	return []models.Standing{}, nil
}

func newRouter(repo Reader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(repo, zap.NewNop()).Register(r.Group("/sports"))
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestBrowseLeagues(t *testing.T) {
	repo := &stubReader{
		leagues: []models.League{{ID: "league-mls", Name: "Major League Soccer", Slug: "mls", Sport: "soccer"}},
		teams:   map[string][]models.Team{"league-mls": {{ID: "team-atx", Name: "Austin FC", Slug: "austin-fc"}}},
	}
	r := newRouter(repo)

	w := get(r, "/sports/countries/country-us/leagues?sport=soccer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "soccer", repo.gotSport)
	assert.Contains(t, w.Body.String(), `"league-mls"`)

	w = get(r, "/sports/leagues/league-mls/teams")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.Team `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "austin-fc", body.Data[0].Slug)
}

func TestBrowseNotFound(t *testing.T) {
	r := newRouter(&stubReader{})
	assert.Equal(t, http.StatusNotFound, get(r, "/sports/leagues/nope").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/sports/teams/nope").Code)
}

func TestFixturesSeasonFilter(t *testing.T) {
	repo := &stubReader{}
	r := newRouter(repo)
	w := get(r, "/sports/teams/team-atx/fixtures?seasonId=season-2026")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "season-2026", repo.gotSeasn)
}

func TestDecodeDataset(t *testing.T) {
	d, err := DecodeDataset(strings.NewReader(`{
		"continents": [{"id": "continent-na", "name": "North America", "slug": "north-america"}],
		"leagues": [{"id": "league-mls", "countryId": "country-us", "sport": "soccer", "name": "MLS", "slug": "mls"}]
	}`))
	require.NoError(t, err)
	assert.Len(t, d.Continents, 1)
	assert.Equal(t, "league-mls", d.Leagues[0].ID)

	_, err = DecodeDataset(strings.NewReader(`{"clubs": []}`))
	assert.Error(t, err)
}

func TestTableFor(t *testing.T) {
	table, ok := TableFor("team")
	assert.True(t, ok)
	assert.Equal(t, "teams", table)

	_, ok = TableFor("teams; DROP TABLE users")
	assert.False(t, ok)
}

package sports

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// Reader is the read side of the sports hierarchy used by browse endpoints.
type Reader interface {
	ListContinents(ctx context.Context) ([]models.Continent, error)
	ListCountries(ctx context.Context, continentID string) ([]models.Country, error)
	ListLeagues(ctx context.Context, f LeagueFilter) ([]models.League, error)
	GetLeague(ctx context.Context, id string) (*models.League, error)
	ListTeams(ctx context.Context, leagueID string) ([]models.Team, error)
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	ListSeasons(ctx context.Context, leagueID string) ([]models.Season, error)
	ListFixtures(ctx context.Context, teamID, seasonID string) ([]models.Fixture, error)
	ListStandings(ctx context.Context, seasonID string) ([]models.Standing, error)
}

// Handler serves the public sports directory.
type Handler struct {
	repo   Reader
	logger *zap.Logger
}

// NewHandler creates a sports handler.
func NewHandler(repo Reader, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Register mounts the browse routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.GET("/continents", h.ListContinents)
	g.GET("/continents/:id/countries", h.ListCountries)
	g.GET("/countries/:id/leagues", h.ListLeagues)
	g.GET("/leagues/:id", h.GetLeague)
	g.GET("/leagues/:id/teams", h.ListTeams)
	g.GET("/leagues/:id/seasons", h.ListSeasons)
	g.GET("/teams/:id", h.GetTeam)
	g.GET("/teams/:id/fixtures", h.ListFixtures)
	g.GET("/seasons/:id/standings", h.ListStandings)
}

func (h *Handler) reply(c *gin.Context, data interface{}, err error) {
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, data)
}

// ListContinents handles GET /sports/continents.
func (h *Handler) ListContinents(c *gin.Context) {
	list, err := h.repo.ListContinents(c.Request.Context())
	h.reply(c, list, err)
}

// ListCountries handles GET /sports/continents/:id/countries.
func (h *Handler) ListCountries(c *gin.Context) {
	list, err := h.repo.ListCountries(c.Request.Context(), c.Param("id"))
	h.reply(c, list, err)
}

// ListLeagues handles GET /sports/countries/:id/leagues?sport.
func (h *Handler) ListLeagues(c *gin.Context) {
	list, err := h.repo.ListLeagues(c.Request.Context(), LeagueFilter{CountryID: c.Param("id"), Sport: c.Query("sport")})
	h.reply(c, list, err)
}

// GetLeague handles GET /sports/leagues/:id.
func (h *Handler) GetLeague(c *gin.Context) {
	l, err := h.repo.GetLeague(c.Request.Context(), c.Param("id"))
	h.reply(c, l, err)
}

// ListTeams handles GET /sports/leagues/:id/teams.
func (h *Handler) ListTeams(c *gin.Context) {
	list, err := h.repo.ListTeams(c.Request.Context(), c.Param("id"))
	h.reply(c, list, err)
}

// ListSeasons handles GET /sports/leagues/:id/seasons.
func (h *Handler) ListSeasons(c *gin.Context) {
	list, err := h.repo.ListSeasons(c.Request.Context(), c.Param("id"))
	h.reply(c, list, err)
}

// GetTeam handles GET /sports/teams/:id.
func (h *Handler) GetTeam(c *gin.Context) {
	t, err := h.repo.GetTeam(c.Request.Context(), c.Param("id"))
	h.reply(c, t, err)
}

// ListFixtures handles GET /sports/teams/:id/fixtures?seasonId.
func (h *Handler) ListFixtures(c *gin.Context) {
	list, err := h.repo.ListFixtures(c.Request.Context(), c.Param("id"), c.Query("seasonId"))
	h.reply(c, list, err)
}

// ListStandings handles GET /sports/seasons/:id/standings.
func (h *Handler) ListStandings(c *gin.Context) {
	list, err := h.repo.ListStandings(c.Request.Context(), c.Param("id"))
	h.reply(c, list, err)
}

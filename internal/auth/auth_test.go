package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", 1)
	id := uuid.New()
	token, err := svc.Generate(id, "a@example.com")
	require.NoError(t, err)

	got, err := svc.UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "pitchside", claims.Issuer)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestJWTRejects(t *testing.T) {
	svc := NewJWTService("secret", 1)
	token, err := svc.Generate(uuid.New(), "a@example.com")
	require.NoError(t, err)

	_, err = NewJWTService("other", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	_, err = svc.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

type stubUsers struct {
	byEmail map[string]*models.User
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, apperr.NotFound("user")
}

func (s *stubUsers) Create(_ context.Context, email, hash, name string) (*models.User, error) {
	if _, ok := s.byEmail[email]; ok {
		return nil, apperr.Conflict("email already registered")
	}
	u := &models.User{ID: uuid.New(), Email: email, Password: hash, DisplayName: name,
		Plan: models.PlanFree, PlatformRole: models.PlatformRoleUser}
	s.byEmail[email] = u
	return u, nil
}

func (s *stubUsers) ChangePlan(_ context.Context, id uuid.UUID, plan models.PlanTier) (*models.User, error) {
	for _, u := range s.byEmail {
		if u.ID == id {
			u.Plan = plan
			return u, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func newTestRouter(users *stubUsers, jwt *JWTService) *gin.Engine {
	h := NewHandler(users, jwt, zap.NewNop())
	orgs := noOrgs{}
	r := gin.New()
	r.Use(middleware.ResolveAccess(jwt, userLookup{users}, orgs, zap.NewNop()))
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	me := r.Group("/me", middleware.RequireAuth())
	me.GET("", h.Me)
	me.POST("/plan", h.ChangePlan)
	return r
}

type userLookup struct{ s *stubUsers }

func (u userLookup) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, x := range u.s.byEmail {
		if x.ID == id {
			return x, nil
		}
	}
	return nil, apperr.NotFound("user")
}

type noOrgs struct{}

func (noOrgs) GetByID(context.Context, uuid.UUID) (*models.Organization, error) {
	return nil, apperr.NotFound("organization")
}

func (noOrgs) MemberRole(context.Context, uuid.UUID, uuid.UUID) (models.OrgRole, error) {
	return "", apperr.NotFound("membership")
}

func call(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
}

func TestRegisterLoginMePlan(t *testing.T) {
	users := &stubUsers{byEmail: map[string]*models.User{}}
	r := newTestRouter(users, NewJWTService("secret", 24))

	w := call(r, http.MethodPost, "/auth/register", "", `{"email":"Coach@Example.com","password":"longenough","displayName":"Coach"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var tok TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	assert.Equal(t, "coach@example.com", tok.User.Email)
	assert.Equal(t, models.PlanFree, tok.User.Plan)
	assert.NotContains(t, w.Body.String(), "password")

	w = call(r, http.MethodPost, "/auth/register", "", `{"email":"coach@example.com","password":"longenough","displayName":"Coach"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(r, http.MethodPost, "/auth/register", "", `{"email":"bad","password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"email"`)

	w = call(r, http.MethodPost, "/auth/register", "",
		`{"email":"long@example.com","password":"`+strings.Repeat("p", 73)+`","displayName":"Long"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"password":"max"`)

	w = call(r, http.MethodPost, "/auth/login", "", `{"email":"coach@example.com","password":"wrong-one"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = call(r, http.MethodPost, "/auth/login", "", `{"email":"coach@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusUnauthorized, call(r, http.MethodGet, "/me", "", "").Code)

	w = call(r, http.MethodGet, "/me", tok.Token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		Data MeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.False(t, me.Data.Capabilities.CanAccessGrassroots)
	assert.False(t, me.Data.Features.APIKeys)

	w = call(r, http.MethodPost, "/me/plan", tok.Token, `{"plan":"gold"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/me/plan", tok.Token, `{"plan":"partner"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, models.PlanPartner, me.Data.User.Plan)
	assert.True(t, me.Data.Capabilities.CanAccessGrassroots)
	assert.True(t, me.Data.Features.Grassroots)
}

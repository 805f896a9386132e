package apikeys

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/internal/organizations"
	"github.com/pitchside/backend/internal/sports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	orgs   map[uuid.UUID]models.VerificationStatus
	keys   map[uuid.UUID]*models.APIKey
	audits []audit.Entry
}

func newMemStore() *memStore {
	return &memStore{orgs: map[uuid.UUID]models.VerificationStatus{}, keys: map[uuid.UUID]*models.APIKey{}}
}

func (s *memStore) InTx(_ context.Context, fn func(Store) error) error { return fn(s) }

func (s *memStore) OrganizationStatus(_ context.Context, orgID uuid.UUID) (models.VerificationStatus, error) {
	st, ok := s.orgs[orgID]
	if !ok {
		return "", apperr.NotFound("organization")
	}
	return st, nil
}

func (s *memStore) Create(_ context.Context, k *models.APIKey) error {
	cp := *k
	s.keys[k.ID] = &cp
	return nil
}

func (s *memStore) List(_ context.Context, orgID uuid.UUID) ([]models.APIKey, error) {
	out := []models.APIKey{}
	for _, k := range s.keys {
		if k.OrganizationID == orgID {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (s *memStore) GetForUpdate(_ context.Context, orgID, keyID uuid.UUID) (*models.APIKey, error) {
	k, ok := s.keys[keyID]
	if !ok || k.OrganizationID != orgID {
		return nil, apperr.NotFound("api key")
	}
	cp := *k
	return &cp, nil
}

func (s *memStore) Revoke(_ context.Context, keyID uuid.UUID, at time.Time) error {
	s.keys[keyID].IsActive = false
	s.keys[keyID].RevokedAt = &at
	return nil
}

func (s *memStore) GetActiveByHash(_ context.Context, hash string) (*models.APIKey, models.VerificationStatus, error) {
	for _, k := range s.keys {
		if k.KeyHash == hash && k.IsActive {
			cp := *k
			return &cp, s.orgs[k.OrganizationID], nil
		}
	}
	return nil, "", apperr.NotFound("api key")
}

func (s *memStore) TouchLastUsed(_ context.Context, keyID uuid.UUID, at time.Time) error {
	s.keys[keyID].LastUsedAt = &at
	return nil
}

func (s *memStore) RecordAudit(_ context.Context, e audit.Entry) error {
	s.audits = append(s.audits, e)
	return nil
}

func TestGenerate(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(k.Raw, "pk_"))
	assert.Len(t, k.Raw, 3+43)
	assert.Equal(t, k.Raw[3:11], k.Prefix)
	assert.Equal(t, HashKey(k.Raw), k.Hash)
	assert.Len(t, k.Hash, 64)
	assert.NotContains(t, k.Raw, "=")

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, k.Raw, other.Raw)

	_, ok := PrefixOf("sk_abcdefghij")
	assert.False(t, ok)
	_, ok = PrefixOf("pk_abc")
	assert.False(t, ok)
}

func setup(status models.VerificationStatus) (*Service, *memStore, uuid.UUID, organizations.Actor) {
	store := newMemStore()
	orgID := uuid.New()
	store.orgs[orgID] = status
	svc := NewService(store, Defaults{PerMinute: 60, PerDay: 10000}, zap.NewNop())
	return svc, store, orgID, organizations.Actor{UserID: uuid.New(), Role: models.OrgRoleOwner}
}

func TestCreateRequiresVerifiedOrg(t *testing.T) {
	svc, _, orgID, owner := setup(models.VerificationReview)
	_, err := svc.Create(context.Background(), owner, orgID, CreateInput{Name: "feed"})
	assert.True(t, apperr.Is(err, apperr.KindVerifiedPartnerRequired))
}

func TestCreateChecksVerificationBeforeInput(t *testing.T) {
	ctx := context.Background()
	svc, store, orgID, owner := setup(models.VerificationDraft)

	_, err := svc.Create(ctx, owner, orgID, CreateInput{Name: "  "})
	assert.True(t, apperr.Is(err, apperr.KindVerifiedPartnerRequired))
	_, err = svc.Create(ctx, owner, orgID, CreateInput{Name: "feed", Scopes: []models.APIKeyScope{"admin"}})
	assert.True(t, apperr.Is(err, apperr.KindVerifiedPartnerRequired))

	store.orgs[orgID] = models.VerificationVerified
	_, err = svc.Create(ctx, owner, orgID, CreateInput{Name: "  "})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, store.keys)
}

func TestNewServiceWithoutLogger(t *testing.T) {
	store := newMemStore()
	orgID := uuid.New()
	store.orgs[orgID] = models.VerificationVerified
	svc := NewService(store, Defaults{PerMinute: 60, PerDay: 10000}, nil)

	created, err := svc.Create(context.Background(), organizations.Actor{UserID: uuid.New(), Role: models.OrgRoleOwner},
		orgID, CreateInput{Name: "feed"})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		_, err = svc.Revoke(context.Background(), organizations.Actor{UserID: uuid.New(), Role: models.OrgRoleOwner},
			orgID, created.ID)
	})
	assert.NoError(t, err)
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, store, orgID, owner := setup(models.VerificationVerified)

	_, err := svc.Create(ctx, organizations.Actor{UserID: uuid.New(), Role: models.OrgRoleAdmin}, orgID, CreateInput{Name: "feed"})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))
	_, err = svc.Create(ctx, owner, orgID, CreateInput{Name: "feed", Scopes: []models.APIKeyScope{"admin"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	created, err := svc.Create(ctx, owner, orgID, CreateInput{Name: " feed "})
	require.NoError(t, err)
	assert.Equal(t, "feed", created.Name)
	assert.Equal(t, []models.APIKeyScope{models.ScopeRead}, created.Scopes)
	assert.Equal(t, 60, created.RateLimitPerMinute)
	assert.Equal(t, 10000, created.RateLimitPerDay)
	assert.NotEqual(t, created.Key, store.keys[created.ID].KeyHash)
	require.Len(t, store.audits, 1)
	assert.Equal(t, audit.ActionCreateAPIKey, store.audits[0].Action)

	got, err := svc.Authenticate(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.NotNil(t, store.keys[created.ID].LastUsedAt)

	_, err = svc.Authenticate(ctx, "pk_wrongwrongwrong")
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationRequired))

	store.orgs[orgID] = models.VerificationRejected
	_, err = svc.Authenticate(ctx, created.Key)
	assert.True(t, apperr.Is(err, apperr.KindVerifiedPartnerRequired))
}

func TestRevokeIsOneWay(t *testing.T) {
	ctx := context.Background()
	svc, store, orgID, owner := setup(models.VerificationVerified)
	created, err := svc.Create(ctx, owner, orgID, CreateInput{Name: "feed"})
	require.NoError(t, err)

	_, err = svc.Revoke(ctx, organizations.Actor{UserID: uuid.New(), Role: models.OrgRoleEditor}, orgID, created.ID)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))
	_, err = svc.Revoke(ctx, owner, uuid.New(), created.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	revoked, err := svc.Revoke(ctx, organizations.Actor{UserID: uuid.New(), Role: models.OrgRoleAdmin}, orgID, created.ID)
	require.NoError(t, err)
	assert.False(t, revoked.IsActive)
	assert.NotNil(t, revoked.RevokedAt)

	_, err = svc.Revoke(ctx, owner, orgID, created.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidStateTransition))
	assert.False(t, store.keys[created.ID].IsActive)

	_, err = svc.Authenticate(ctx, created.Key)
	assert.True(t, apperr.Is(err, apperr.KindAuthenticationRequired))
}

func newQuota(t *testing.T) (*Quota, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewQuota(rdb), mr
}

func TestQuotaWindows(t *testing.T) {
	q, mr := newQuota(t)
	base := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	q.now = func() time.Time { return base }
	key := &models.APIKey{ID: uuid.New(), RateLimitPerMinute: 2, RateLimitPerDay: 3}
	ctx := context.Background()

	d, err := q.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = q.Allow(ctx, key)
	assert.True(t, d.Allowed)
	d, _ = q.Allow(ctx, key)
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	// next minute: the minute window resets but the day budget is spent
	q.now = func() time.Time { return base.Add(time.Minute) }
	d, _ = q.Allow(ctx, key)
	assert.False(t, d.Allowed)
	assert.Equal(t, 3, d.Limit)

	assert.True(t, mr.TTL("apikey:"+key.ID.String()+":m:202603011000") > 0)
}

type keyAuth struct{ key *models.APIKey }

func (a keyAuth) Authenticate(_ context.Context, raw string) (*models.APIKey, error) {
	if raw == "pk_good-key-value" {
		return a.key, nil
	}
	return nil, apperr.AuthenticationRequired()
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, *models.APIKey) (Decision, error) {
	return Decision{Allowed: true}, assert.AnError
}

type stubData struct{}

func (stubData) ListLeagues(_ context.Context, f sports.LeagueFilter) ([]models.League, error) {
	return []models.League{{ID: "league-mls", Name: "MLS", CountryID: f.CountryID}}, nil
}

func (stubData) GetLeague(_ context.Context, id string) (*models.League, error) {
	if id != "league-mls" {
		return nil, apperr.NotFound("league")
	}
	return &models.League{ID: id}, nil
}

func (stubData) ListTeams(context.Context, string) ([]models.Team, error) {
	return []models.Team{{ID: "team-dallas", Name: "FC Dallas"}}, nil
}

func (stubData) GetTeam(_ context.Context, id string) (*models.Team, error) {
	return &models.Team{ID: id}, nil
}

func (stubData) ListFixtures(context.Context, string, string) ([]models.Fixture, error) {
	return []models.Fixture{}, nil
}

func dataRouter(auth Authenticator, limiter Limiter) *gin.Engine {
	r := gin.New()
	g := r.Group("/api/v1", RequireAPIKey(auth, limiter, models.ScopeRead, zap.NewNop()))
	NewDataHandler(stubData{}, zap.NewNop()).Register(g)
	return r
}

func get(r http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set(HeaderAPIKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAPIKey(t *testing.T) {
	q, _ := newQuota(t)
	q.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	key := &models.APIKey{ID: uuid.New(), Scopes: []models.APIKeyScope{models.ScopeRead}, RateLimitPerMinute: 1, RateLimitPerDay: 100}
	r := dataRouter(keyAuth{key}, q)

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/leagues", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/leagues", "pk_bad").Code)

	w := get(r, "/api/v1/leagues?countryId=country-us", "pk_good-key-value")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "league-mls")
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "/api/v1/leagues", "pk_good-key-value")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RateLimited")
}

func TestRequireAPIKeyScopeAndFailOpen(t *testing.T) {
	writeOnly := &models.APIKey{ID: uuid.New(), Scopes: []models.APIKeyScope{models.ScopeWrite}, RateLimitPerMinute: 10, RateLimitPerDay: 10}
	assert.Equal(t, http.StatusForbidden, get(dataRouter(keyAuth{writeOnly}, brokenLimiter{}), "/api/v1/leagues", "pk_good-key-value").Code)

	reader := &models.APIKey{ID: uuid.New(), Scopes: []models.APIKeyScope{models.ScopeRead}}
	r := dataRouter(keyAuth{reader}, brokenLimiter{})
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/leagues/league-mls/teams", "pk_good-key-value").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/leagues/league-nope/teams", "pk_good-key-value").Code)
	assert.Equal(t, http.StatusOK, get(r, "/api/v1/teams/team-dallas/fixtures", "pk_good-key-value").Code)
}

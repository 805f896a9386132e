package organizations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/audit"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memberKey struct{ org, user uuid.UUID }

// memStore is an in-memory Store. InTx runs fn against the same store.
type memStore struct {
	mu      sync.Mutex
	orgs    map[uuid.UUID]*models.Organization
	members map[memberKey]*models.OrganizationMember
	emails  map[string]uuid.UUID
	primary map[uuid.UUID]uuid.UUID
	audits  []audit.Entry
}

func newMemStore() *memStore {
	return &memStore{
		orgs:    map[uuid.UUID]*models.Organization{},
		members: map[memberKey]*models.OrganizationMember{},
		emails:  map[string]uuid.UUID{},
		primary: map[uuid.UUID]uuid.UUID{},
	}
}

func (s *memStore) InTx(_ context.Context, fn func(Store) error) error { return fn(s) }

func (s *memStore) Create(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orgs {
		if o.Slug == org.Slug {
			return apperr.Conflict("slug taken")
		}
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, apperr.NotFound("organization")
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	return s.GetByID(ctx, id)
}

func (s *memStore) Update(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orgs, id)
	for k := range s.members {
		if k.org == id {
			delete(s.members, k)
		}
	}
	return nil
}

func (s *memStore) ListForUser(_ context.Context, userID uuid.UUID) ([]models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Organization
	for k := range s.members {
		if k.user == userID {
			out = append(out, *s.orgs[k.org])
		}
	}
	return out, nil
}

func (s *memStore) ListByStatus(_ context.Context, status models.VerificationStatus) ([]models.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Organization
	for _, o := range s.orgs {
		if o.VerificationStatus == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) AddMember(_ context.Context, m *models.OrganizationMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.members[memberKey{m.OrganizationID, m.UserID}] = &cp
	return nil
}

func (s *memStore) GetMember(_ context.Context, orgID, userID uuid.UUID) (*models.OrganizationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey{orgID, userID}]
	if !ok {
		return nil, apperr.NotFound("member")
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) MemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error) {
	m, err := s.GetMember(ctx, orgID, userID)
	if err != nil {
		return "", err
	}
	return m.Role, nil
}

func (s *memStore) UpdateMemberRole(_ context.Context, orgID, userID uuid.UUID, role models.OrgRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[memberKey{orgID, userID}]
	if !ok {
		return apperr.NotFound("member")
	}
	m.Role = role
	return nil
}

func (s *memStore) RemoveMember(_ context.Context, orgID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, memberKey{orgID, userID})
	return nil
}

func (s *memStore) ListMembers(_ context.Context, orgID uuid.UUID) ([]models.OrganizationMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OrganizationMember
	for k, m := range s.members {
		if k.org == orgID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memStore) CountOwners(_ context.Context, orgID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, m := range s.members {
		if k.org == orgID && m.Role == models.OrgRoleOwner {
			n++
		}
	}
	return n, nil
}

func (s *memStore) UserIDByEmail(_ context.Context, email string) (uuid.UUID, error) {
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return uuid.Nil, apperr.NotFound("user")
	}
	return id, nil
}

func (s *memStore) SetPrimaryOrgIfUnset(_ context.Context, userID, orgID uuid.UUID) error {
	if _, ok := s.primary[userID]; !ok {
		s.primary[userID] = orgID
	}
	return nil
}

func (s *memStore) ClearPrimaryOrg(_ context.Context, userID, orgID uuid.UUID) error {
	if s.primary[userID] == orgID {
		delete(s.primary, userID)
	}
	return nil
}

func (s *memStore) RecordAudit(_ context.Context, e audit.Entry) error {
	s.audits = append(s.audits, e)
	return nil
}

func (s *memStore) role(orgID, userID uuid.UUID) models.OrgRole {
	r, _ := s.MemberRole(context.Background(), orgID, userID)
	return r
}

func newOrg(t *testing.T, svc *Service, owner uuid.UUID) *models.Organization {
	t.Helper()
	org, err := svc.Create(context.Background(), owner, CreateInput{Name: "Riverside FC", Type: models.OrgTypeClub, StateCode: "tx"})
	require.NoError(t, err)
	return org
}

func TestCreateMakesOwnerAndPrimary(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner := uuid.New()

	org := newOrg(t, svc, owner)
	assert.Equal(t, "riverside-fc", org.Slug)
	assert.Equal(t, "TX", org.StateCode)
	assert.Equal(t, models.VerificationDraft, org.VerificationStatus)
	assert.Equal(t, models.OrgRoleOwner, store.role(org.ID, owner))
	assert.Equal(t, org.ID, store.primary[owner])
	require.Len(t, store.audits, 1)
	assert.Equal(t, audit.ActionCreateOrganization, store.audits[0].Action)

	_, err := svc.Create(context.Background(), owner, CreateInput{Name: "X", Slug: "Bad Slug!", Type: models.OrgTypeClub})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = svc.Create(context.Background(), owner, CreateInput{Name: "Valid", Type: "stadium"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestVerificationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner, mod := uuid.New(), uuid.New()
	org := newOrg(t, svc, owner)
	ownerActor := Actor{UserID: owner, Role: models.OrgRoleOwner}

	_, err := svc.Verify(ctx, mod, org.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidStateTransition))

	_, err = svc.RequestVerification(ctx, Actor{UserID: uuid.New(), Role: models.OrgRoleAdmin}, org.ID)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))

	got, err := svc.RequestVerification(ctx, ownerActor, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationReview, got.VerificationStatus)

	_, err = svc.RejectVerification(ctx, mod, org.ID, "  ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, err = svc.RejectVerification(ctx, mod, org.ID, "missing website")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, got.VerificationStatus)
	assert.Equal(t, "missing website", got.RejectionReason)

	got, err = svc.RequestVerification(ctx, ownerActor, org.ID)
	require.NoError(t, err)
	assert.Empty(t, got.RejectionReason)

	got, err = svc.Verify(ctx, mod, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerificationVerified, got.VerificationStatus)
	require.NotNil(t, got.VerifiedBy)
	assert.Equal(t, mod, *got.VerifiedBy)

	err = svc.Delete(ctx, ownerActor, org.ID)
	assert.True(t, apperr.Is(err, apperr.KindInvalidStateTransition))
}

func TestDeleteDraft(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner := uuid.New()
	org := newOrg(t, svc, owner)

	err := svc.Delete(ctx, Actor{UserID: owner, Role: models.OrgRoleAdmin}, org.ID)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))
	require.NoError(t, svc.Delete(ctx, Actor{UserID: owner, Role: models.OrgRoleOwner}, org.ID))
	_, err = svc.Get(ctx, org.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestAddMemberRules(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner, admin := uuid.New(), uuid.New()
	org := newOrg(t, svc, owner)
	ownerActor := Actor{UserID: owner, Role: models.OrgRoleOwner}
	adminActor := Actor{UserID: admin, Role: models.OrgRoleAdmin}

	_, err := svc.AddMember(ctx, ownerActor, org.ID, AddMemberInput{UserID: &admin, Role: models.OrgRoleAdmin})
	require.NoError(t, err)

	newcomer := uuid.New()
	_, err = svc.AddMember(ctx, adminActor, org.ID, AddMemberInput{UserID: &newcomer, Role: models.OrgRoleAdmin})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))

	_, err = svc.AddMember(ctx, ownerActor, org.ID, AddMemberInput{UserID: &newcomer, Role: models.OrgRoleOwner})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	store.emails["coach@example.com"] = newcomer
	m, err := svc.AddMember(ctx, adminActor, org.ID, AddMemberInput{Email: "Coach@example.com", Role: models.OrgRoleEditor})
	require.NoError(t, err)
	assert.Equal(t, newcomer, m.UserID)
	assert.Equal(t, org.ID, store.primary[newcomer])

	_, err = svc.AddMember(ctx, adminActor, org.ID, AddMemberInput{UserID: &newcomer, Role: models.OrgRoleViewer})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.AddMember(ctx, Actor{UserID: newcomer, Role: models.OrgRoleEditor}, org.ID,
		AddMemberInput{Email: "x@example.com", Role: models.OrgRoleViewer})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))

	_, err = svc.AddMember(ctx, Actor{UserID: uuid.New()}, org.ID, AddMemberInput{Email: "x@example.com", Role: models.OrgRoleViewer})
	assert.True(t, apperr.Is(err, apperr.KindNotAMember))
}

func TestChangeRole(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner, editor := uuid.New(), uuid.New()
	org := newOrg(t, svc, owner)
	ownerActor := Actor{UserID: owner, Role: models.OrgRoleOwner}
	_, err := svc.AddMember(ctx, ownerActor, org.ID, AddMemberInput{UserID: &editor, Role: models.OrgRoleEditor})
	require.NoError(t, err)

	_, err = svc.ChangeRole(ctx, ownerActor, org.ID, owner, models.OrgRoleAdmin)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = svc.ChangeRole(ctx, Actor{UserID: uuid.New(), Role: models.OrgRoleAdmin}, org.ID, editor, models.OrgRoleViewer)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))

	m, err := svc.ChangeRole(ctx, ownerActor, org.ID, editor, models.OrgRoleOwner)
	require.NoError(t, err)
	assert.Equal(t, models.OrgRoleOwner, m.Role)
	assert.Equal(t, models.OrgRoleOwner, store.role(org.ID, editor))
}

func TestChangeRoleKeepsAnOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner := uuid.New()
	org := newOrg(t, svc, owner)
	platformAdmin := Actor{UserID: uuid.New(), Role: models.OrgRoleOwner}

	_, err := svc.ChangeRole(ctx, platformAdmin, org.ID, owner, models.OrgRoleViewer)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	assert.Equal(t, models.OrgRoleOwner, store.role(org.ID, owner))

	second := uuid.New()
	_, err = svc.AddMember(ctx, Actor{UserID: owner, Role: models.OrgRoleOwner}, org.ID,
		AddMemberInput{UserID: &second, Role: models.OrgRoleAdmin})
	require.NoError(t, err)
	_, err = svc.ChangeRole(ctx, platformAdmin, org.ID, second, models.OrgRoleOwner)
	require.NoError(t, err)

	m, err := svc.ChangeRole(ctx, platformAdmin, org.ID, owner, models.OrgRoleViewer)
	require.NoError(t, err)
	assert.Equal(t, models.OrgRoleViewer, m.Role)
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner, admin, viewer := uuid.New(), uuid.New(), uuid.New()
	org := newOrg(t, svc, owner)
	ownerActor := Actor{UserID: owner, Role: models.OrgRoleOwner}
	adminActor := Actor{UserID: admin, Role: models.OrgRoleAdmin}
	for id, role := range map[uuid.UUID]models.OrgRole{admin: models.OrgRoleAdmin, viewer: models.OrgRoleViewer} {
		id := id
		_, err := svc.AddMember(ctx, ownerActor, org.ID, AddMemberInput{UserID: &id, Role: role})
		require.NoError(t, err)
	}

	err := svc.RemoveMember(ctx, adminActor, org.ID, owner)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))

	err = svc.RemoveMember(ctx, ownerActor, org.ID, owner)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "last owner")

	err = svc.RemoveMember(ctx, Actor{UserID: viewer, Role: models.OrgRoleViewer}, org.ID, admin)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientRole))

	require.NoError(t, svc.RemoveMember(ctx, Actor{UserID: viewer, Role: models.OrgRoleViewer}, org.ID, viewer))
	assert.Empty(t, store.role(org.ID, viewer))
	_, hasPrimary := store.primary[viewer]
	assert.False(t, hasPrimary)

	require.NoError(t, svc.RemoveMember(ctx, ownerActor, org.ID, admin))
	assert.Equal(t, models.OrgRoleOwner, store.role(org.ID, owner))
}

// withUser installs an AccessContext for user ahead of the org gate.
func withUser(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.WithAccess(c, middleware.NewAccessContext(user, nil, ""))
		c.Next()
	}
}

func TestAddMemberThroughGate(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	h := NewHandler(svc, zap.NewNop())
	owner := &models.User{ID: uuid.New(), Plan: models.PlanPartner}
	member := &models.User{ID: uuid.New(), Plan: models.PlanPartner}
	org := newOrg(t, svc, owner.ID)
	_, err := svc.AddMember(context.Background(), Actor{UserID: owner.ID, Role: models.OrgRoleOwner}, org.ID,
		AddMemberInput{UserID: &member.ID, Role: models.OrgRoleViewer})
	require.NoError(t, err)

	route := func(user *models.User) *gin.Engine {
		r := gin.New()
		r.POST("/partner/organizations/:orgId/members", withUser(user),
			RequireOrgAccess(store, models.OrgRoleAdmin, zap.NewNop()), h.AddMember)
		return r
	}
	post := func(user *models.User) *httptest.ResponseRecorder {
		body := `{"userId":"` + uuid.NewString() + `","role":"editor"}`
		req := httptest.NewRequest(http.MethodPost, "/partner/organizations/"+org.ID.String()+"/members", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		route(user).ServeHTTP(w, req)
		return w
	}

	w := post(member)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"InsufficientRole"`)
	assert.Contains(t, w.Body.String(), `"requiredRole":"admin"`)

	_, err = svc.ChangeRole(context.Background(), Actor{UserID: owner.ID, Role: models.OrgRoleOwner}, org.ID, member.ID, models.OrgRoleAdmin)
	require.NoError(t, err)
	w = post(member)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = post(&models.User{ID: uuid.New(), Plan: models.PlanPartner})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"NotAMember"`)

	admin := &models.User{ID: uuid.New(), PlatformRole: models.PlatformRoleAdmin}
	assert.Equal(t, http.StatusCreated, post(admin).Code)
}

func TestRequireOrgAccessBodyAndPrimary(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, zap.NewNop())
	owner := &models.User{ID: uuid.New(), Plan: models.PlanPartner}
	org := newOrg(t, svc, owner.ID)

	var seen uuid.UUID
	r := gin.New()
	r.POST("/submit", withUser(owner), RequireOrgAccess(store, models.OrgRoleEditor, zap.NewNop()), func(c *gin.Context) {
		seen = OrgIDFrom(c)
		var body map[string]interface{}
		require.NoError(t, c.ShouldBindJSON(&body))
		assert.Equal(t, "Hawks", body["entityName"])
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/submit",
		strings.NewReader(`{"organizationId":"`+org.ID.String()+`","entityName":"Hawks"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, org.ID, seen)

	// no id anywhere and no primary organization
	req = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"entityName":"Hawks"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	owner.PrimaryOrganizationID = &org.ID
	primaryRouter := gin.New()
	primaryRouter.POST("/submit", func(c *gin.Context) {
		middleware.WithAccess(c, middleware.NewAccessContext(owner, store.orgs[org.ID], models.OrgRoleOwner))
		c.Next()
	}, RequireOrgAccess(store, models.OrgRoleEditor, zap.NewNop()), func(c *gin.Context) {
		seen = OrgIDFrom(c)
		c.Status(http.StatusOK)
	})
	seen = uuid.Nil
	req = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	primaryRouter.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, org.ID, seen)
}

func TestRequireOrgAccessAdmitsAdminFirst(t *testing.T) {
	store := newMemStore()
	admin := &models.User{ID: uuid.New(), PlatformRole: models.PlatformRoleAdmin}

	seen := uuid.New()
	var role models.OrgRole
	r := gin.New()
	r.POST("/submit", withUser(admin), RequireOrgAccess(store, models.OrgRoleOwner, zap.NewNop()), func(c *gin.Context) {
		seen = OrgIDFrom(c)
		role = ActorFrom(c).Role
		c.Status(http.StatusOK)
	})

	// no organization id anywhere and no primary organization
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, uuid.Nil, seen)
	assert.Equal(t, models.OrgRoleOwner, role)

	orgID := uuid.New()
	req = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"organizationId":"`+orgID.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orgID, seen)
}

func TestRoleMonotonicity(t *testing.T) {
	roles := []models.OrgRole{models.OrgRoleViewer, models.OrgRoleEditor, models.OrgRoleAdmin, models.OrgRoleOwner}
	for i, have := range roles {
		for j, need := range roles {
			err := requireRole(Actor{UserID: uuid.New(), Role: have}, need)
			if i >= j {
				assert.NoError(t, err, "%s >= %s", have, need)
			} else {
				assert.True(t, apperr.Is(err, apperr.KindInsufficientRole), "%s < %s", have, need)
			}
		}
	}
}

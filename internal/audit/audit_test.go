package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/models"
)

func TestEntryLog(t *testing.T) {
	actor := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	log, err := NewEntry(actor, ActionPromoteSubmission, EntitySubmission, "sub-1", "Riverside U-12").
		WithData(map[string]string{"status": "approved"}, map[string]string{"status": "promoted"}).
		Log(now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, &actor, log.ActorID)
	assert.Equal(t, "promote", log.Action)
	assert.JSONEq(t, `{"status":"approved"}`, string(log.PreviousData))
	assert.JSONEq(t, `{"status":"promoted"}`, string(log.NewData))
	assert.Equal(t, now, log.CreatedAt)
}

func TestEntryLogWithoutData(t *testing.T) {
	log, err := NewEntry(uuid.New(), ActionDeleteMapping, EntityMapping, "m-1", "").Log(time.Now())
	require.NoError(t, err)
	assert.Nil(t, log.PreviousData)
	assert.Nil(t, log.NewData)
}

func TestEntryLogUnencodable(t *testing.T) {
	_, err := NewEntry(uuid.New(), "x", "y", "z", "").WithData(make(chan int), nil).Log(time.Now())
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, 20, clampLimit(20))
	assert.Equal(t, maxListLimit, clampLimit(10000))
}

type listerFunc func(ctx context.Context, f Filter) ([]models.AuditLog, error)

func (fn listerFunc) List(ctx context.Context, f Filter) ([]models.AuditLog, error) { return fn(ctx, f) }

func TestHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got Filter
	h := NewHandler(listerFunc(func(_ context.Context, f Filter) ([]models.AuditLog, error) {
		got = f
		return []models.AuditLog{{ID: uuid.New(), Action: ActionApproveSubmission}}, nil
	}), zap.NewNop())

	r := gin.New()
	r.GET("/admin/audit-logs", h.List)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit-logs?entityType=grassroots_submission&entityId=abc&limit=5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Filter{EntityType: "grassroots_submission", EntityID: "abc", Limit: 5}, got)

	var body struct {
		Success bool              `json:"success"`
		Data    []models.AuditLog `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Len(t, body.Data, 1)
}

func TestHandlerListFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(listerFunc(func(context.Context, Filter) ([]models.AuditLog, error) {
		return nil, errors.New("db down")
	}), zap.NewNop())

	r := gin.New()
	r.GET("/admin/audit-logs", h.List)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/audit-logs", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

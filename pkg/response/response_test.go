package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(err error) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Error(c, zap.NewNop(), err)
	return w
}

func TestErrorStatusMapping(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindAuthenticationRequired:      http.StatusUnauthorized,
		apperr.KindUpgradeRequired:             http.StatusForbidden,
		apperr.KindPartnerSubscriptionRequired: http.StatusForbidden,
		apperr.KindVerifiedPartnerRequired:     http.StatusForbidden,
		apperr.KindNotAMember:                  http.StatusForbidden,
		apperr.KindInsufficientRole:            http.StatusForbidden,
		apperr.KindValidation:                  http.StatusBadRequest,
		apperr.KindInvalidStateTransition:      http.StatusBadRequest,
		apperr.KindNotFound:                    http.StatusNotFound,
		apperr.KindConflict:                    http.StatusConflict,
		apperr.KindRateLimited:                 http.StatusTooManyRequests,
	}
	for kind, status := range cases {
		w := serve(apperr.New(kind, "x"))
		assert.Equal(t, status, w.Code, kind)

		var body Body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, string(kind), body.Code)
	}
}

func TestErrorHidesInternalMessage(t *testing.T) {
	w := serve(errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.Contains(t, w.Body.String(), `"code":"Internal"`)
}

func TestErrorCarriesDetails(t *testing.T) {
	w := serve(apperr.UpgradeRequired("pro"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"requiredPlan":"pro"`)
}

func TestBindErrorFields(t *testing.T) {
	type req struct {
		Reason string `json:"reason" binding:"required"`
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("Content-Type", "application/json")

	var r req
	err := c.ShouldBindJSON(&r)
	require.Error(t, err)
	ae := BindError(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
}

type clash struct {
	Kind  string `json:"kind"`
	Other string `json:"other"`
}

func (c clash) ConflictInfo() (string, interface{}) {
	return c.Kind, map[string]string{"id": c.Other}
}

func TestErrorLiftsConflictFields(t *testing.T) {
	w := serve(apperr.New(apperr.KindConflict, "taken").WithDetails(clash{Kind: "provider_conflict", Other: "m-1"}))
	assert.Equal(t, http.StatusConflict, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "taken", body["error"])
	assert.Equal(t, "provider_conflict", body["conflictType"])
	assert.Equal(t, map[string]interface{}{"id": "m-1"}, body["existingMapping"])

	w = serve(apperr.New(apperr.KindConflict, "taken"))
	assert.NotContains(t, w.Body.String(), "conflictType")
	assert.NotContains(t, w.Body.String(), "existingMapping")
}

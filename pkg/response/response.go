package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Code    string            `json:"code,omitempty"`
	Details interface{}       `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`

	ConflictType    string      `json:"conflictType,omitempty"`
	ExistingMapping interface{} `json:"existingMapping,omitempty"`
}

// Conflicting is implemented by error details that describe a clash with an
// existing record. Error lifts both values to the top of the envelope.
type Conflicting interface {
	ConflictInfo() (conflictType string, existing interface{})
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Code: string(apperr.KindValidation)})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err, Code: string(apperr.KindAuthenticationRequired)})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err, Code: string(apperr.KindInternal)})
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case apperr.KindUpgradeRequired, apperr.KindPartnerSubscriptionRequired, apperr.KindVerifiedPartnerRequired,
		apperr.KindNotAMember, apperr.KindInsufficientRole, apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation, apperr.KindInvalidStateTransition:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error writes err using the envelope. Errors outside the apperr taxonomy are
// logged and reported as a generic 500.
func Error(c *gin.Context, logger *zap.Logger, err error) {
	ae, ok := apperr.As(err)
	if !ok || ae.Kind == apperr.KindInternal {
		if logger != nil {
			logger.Error("request failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Error(err))
		}
		Internal(c, "internal server error")
		return
	}
	body := Body{
		Success: false,
		Error:   ae.Message,
		Code:    string(ae.Kind),
		Details: ae.Details,
		Fields:  ae.Fields,
	}
	if cd, ok := ae.Details.(Conflicting); ok {
		body.ConflictType, body.ExistingMapping = cd.ConflictInfo()
	}
	c.JSON(StatusOf(ae.Kind), body)
}

// Abort writes err like Error and stops the handler chain.
func Abort(c *gin.Context, logger *zap.Logger, err error) {
	Error(c, logger, err)
	c.Abort()
}

// BindError converts a gin binding failure into a ValidationError with
// field-level messages when the validator reports them.
func BindError(err error) *apperr.Error {
	out := apperr.Validation("invalid request body")
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			out.WithField(lowerFirst(fe.Field()), fe.Tag())
		}
		return out
	}
	out.Message = "invalid request body: " + err.Error()
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

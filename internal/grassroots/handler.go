package grassroots

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitchside/backend/internal/apperr"
	"github.com/pitchside/backend/internal/middleware"
	"github.com/pitchside/backend/internal/models"
	"github.com/pitchside/backend/pkg/response"
)

// Handler serves /grassroots for submitters and /admin/grassroots for moderators.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a grassroots handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the submitter routes. g must be gated with RequireGrassrootsAccess.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/submissions", h.Create)
	g.GET("/submissions", h.ListMine)
	g.GET("/submissions/:id", h.Get)
	g.POST("/submissions/:id/submit", h.Submit)
	g.POST("/submissions/:id/logo-upload-url", h.LogoUploadURL)
}

// RegisterModeration mounts the moderator routes. g must be gated with RequireModerator.
func (h *Handler) RegisterModeration(g *gin.RouterGroup) {
	g.GET("/submissions", h.ListForModeration)
	g.GET("/submissions/:id", h.Get)
	g.POST("/submissions/:id/submit", h.Submit)
	g.POST("/submissions/:id/review", h.StartReview)
	g.POST("/submissions/:id/approve", h.Approve)
	g.POST("/submissions/:id/reject", h.Reject)
	g.GET("/submissions/:id/duplicates", h.Duplicates)
	g.POST("/submissions/:id/promote", h.Promote)
	g.POST("/submissions/:id/link", h.Link)
}

// ApproveRequest is the body for POST .../approve.
type ApproveRequest struct {
	Notes string `json:"notes"`
}

// RejectRequest is the body for POST .../reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// LinkRequest is the body for POST .../link.
type LinkRequest struct {
	ExistingEntityID string `json:"existingEntityId"`
}

// LogoUploadRequest is the body for POST .../logo-upload-url.
type LogoUploadRequest struct {
	ContentType string `json:"contentType" binding:"required"`
}

func callerFrom(c *gin.Context) Caller {
	ac := middleware.Access(c)
	caller := Caller{}
	if !ac.Authenticated() {
		return caller
	}
	caller.UserID = ac.User.ID
	caller.Moderator = ac.CanVerifyPartners
	if ac.PrimaryOrg != nil {
		id := ac.PrimaryOrg.ID
		caller.OrganizationID = &id
	}
	return caller
}

func (h *Handler) submissionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, h.logger, apperr.Validation("invalid submission id").WithField("id", "uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil {
		return response.BindError(err)
	}
	return nil
}

func (h *Handler) reply(c *gin.Context, data interface{}, err error) {
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, data)
}

// Create handles POST /grassroots/submissions.
func (h *Handler) Create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, h.logger, response.BindError(err))
		return
	}
	sub, err := h.svc.Create(c.Request.Context(), callerFrom(c), body)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Created(c, sub)
}

func filterFrom(c *gin.Context) models.SubmissionFilter {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return models.SubmissionFilter{
		Status:     models.SubmissionStatus(c.Query("status")),
		Type:       models.GrassrootsType(c.Query("type")),
		EntityType: models.SubmissionEntityType(c.Query("entityType")),
		Limit:      limit,
		Offset:     offset,
	}
}

// ListMine handles GET /grassroots/submissions.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.svc.ListMine(c.Request.Context(), callerFrom(c), filterFrom(c))
	h.reply(c, list, err)
}

// ListForModeration handles GET /admin/grassroots/submissions?status&type&entityType.
func (h *Handler) ListForModeration(c *gin.Context) {
	list, err := h.svc.ListForModeration(c.Request.Context(), callerFrom(c), filterFrom(c))
	h.reply(c, list, err)
}

// Get handles GET /grassroots/submissions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	sub, err := h.svc.Get(c.Request.Context(), callerFrom(c), id)
	h.reply(c, sub, err)
}

// Submit handles POST .../submissions/:id/submit.
func (h *Handler) Submit(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	sub, err := h.svc.SubmitForReview(c.Request.Context(), callerFrom(c), id)
	h.reply(c, sub, err)
}

// StartReview handles POST /admin/grassroots/submissions/:id/review.
func (h *Handler) StartReview(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	sub, err := h.svc.StartReview(c.Request.Context(), callerFrom(c), id)
	h.reply(c, sub, err)
}

// Approve handles POST /admin/grassroots/submissions/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	var body ApproveRequest
	if err := bindOptional(c, &body); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	sub, err := h.svc.Approve(c.Request.Context(), callerFrom(c), id, body.Notes)
	h.reply(c, sub, err)
}

// Reject handles POST /admin/grassroots/submissions/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	var body RejectRequest
	if err := bindOptional(c, &body); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	sub, err := h.svc.Reject(c.Request.Context(), callerFrom(c), id, body.Reason)
	h.reply(c, sub, err)
}

// Duplicates handles GET /admin/grassroots/submissions/:id/duplicates.
func (h *Handler) Duplicates(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	list, err := h.svc.FindDuplicateCandidates(c.Request.Context(), callerFrom(c), id)
	h.reply(c, list, err)
}

// Promote handles POST /admin/grassroots/submissions/:id/promote.
func (h *Handler) Promote(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	sub, err := h.svc.Promote(c.Request.Context(), callerFrom(c), id)
	h.reply(c, sub, err)
}

// Link handles POST /admin/grassroots/submissions/:id/link.
func (h *Handler) Link(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	var body LinkRequest
	if err := bindOptional(c, &body); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	sub, err := h.svc.LinkToExisting(c.Request.Context(), callerFrom(c), id, body.ExistingEntityID)
	h.reply(c, sub, err)
}

// LogoUploadURL handles POST /grassroots/submissions/:id/logo-upload-url.
func (h *Handler) LogoUploadURL(c *gin.Context) {
	id, ok := h.submissionID(c)
	if !ok {
		return
	}
	var body LogoUploadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, h.logger, response.BindError(err))
		return
	}
	up, err := h.svc.LogoUploadURL(c.Request.Context(), callerFrom(c), id, body.ContentType)
	h.reply(c, up, err)
}

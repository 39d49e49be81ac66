package meetings

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/middleware"
	"github.com/masilo-dev/alphaclone-meetings/internal/models"
	"github.com/masilo-dev/alphaclone-meetings/internal/provider"
	"github.com/masilo-dev/alphaclone-meetings/internal/quota"
	"github.com/masilo-dev/alphaclone-meetings/pkg/response"
)

// Handler handles meeting HTTP endpoints.
type Handler struct {
	svc    *Service
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a meetings handler.
func NewHandler(svc *Service, repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, repo: repo, logger: logger}
}

// CreateMeetingRequest is the body for POST /meetings.
type CreateMeetingRequest struct {
	Title           string     `json:"title" binding:"required"`
	Participants    []string   `json:"participants"`
	MaxParticipants int        `json:"max_participants"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	DurationMinutes int        `json:"duration_minutes"`
	CalendarEventID *uuid.UUID `json:"calendar_event_id"`

	RecordingEnabled   bool `json:"recording_enabled"`
	ScreenShareEnabled bool `json:"screen_share_enabled"`
	ChatEnabled        bool `json:"chat_enabled"`

	CancellationPolicyHours int  `json:"cancellation_policy_hours"`
	AllowClientCancellation bool `json:"allow_client_cancellation"`
}

// Create handles POST /meetings. Returns the meeting and its branded join URL.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	userName, _ := c.MustGet(middleware.ContextUserName).(string)

	var body CreateMeetingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "title required")
		return
	}
	body.Title = strings.TrimSpace(body.Title)
	if body.Title == "" {
		response.BadRequest(c, "title required")
		return
	}
	if body.MaxParticipants <= 0 {
		body.MaxParticipants = 16
	}

	in := CreateMeetingInput{
		TenantID:                tenantID,
		HostID:                  userID,
		HostName:                userName,
		Title:                   body.Title,
		Participants:            body.Participants,
		MaxParticipants:         body.MaxParticipants,
		DurationMinutes:         body.DurationMinutes,
		CalendarEventID:         body.CalendarEventID,
		RecordingEnabled:        body.RecordingEnabled,
		ScreenShareEnabled:      body.ScreenShareEnabled,
		ChatEnabled:             body.ChatEnabled,
		CancellationPolicyHours: body.CancellationPolicyHours,
		AllowClientCancellation: body.AllowClientCancellation,
	}
	if body.ScheduledAt != nil {
		in.ScheduledAt = *body.ScheduledAt
	}

	result, err := h.svc.CreateMeeting(c.Request.Context(), in)
	if err != nil {
		var upgrade *quota.UpgradeRequiredError
		var roomErr *provider.RoomCreationError
		switch {
		case errors.As(err, &upgrade):
			response.PaymentRequired(c, upgrade.Error())
		case errors.As(err, &roomErr):
			response.BadGateway(c, roomErr.Error())
		default:
			h.logger.Error("create meeting failed", zap.Error(err))
			response.Internal(c, "failed to create meeting")
		}
		return
	}
	response.Created(c, gin.H{
		"meeting":  result.Meeting,
		"join_url": result.JoinURL,
	})
}

// List handles GET /meetings. Returns meetings hosted by the caller.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.repo.ListByHost(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list meetings failed", zap.Error(err))
		response.Internal(c, "failed to list meetings")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /meetings/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	m, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.NotFound(c, "meeting not found")
		return
	}
	response.OK(c, m)
}

// Validate handles GET /meet/:token. Pure read: safe to call repeatedly to
// render the join landing page; never consumes the link.
func (h *Handler) Validate(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		response.BadRequest(c, "token required")
		return
	}
	v, err := h.svc.ValidateLink(c.Request.Context(), token)
	if err != nil {
		h.logger.Error("validate link failed", zap.Error(err))
		response.Internal(c, "failed to validate link")
		return
	}
	response.OK(c, v)
}

// JoinRequest is the body for POST /meet/:token/join.
type JoinRequest struct {
	UserName string `json:"user_name" binding:"required"`
}

// Join handles POST /meet/:token/join. Redeems the single-use link and
// returns the one-time provider URL, credential and auto-end deadline.
func (h *Handler) Join(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	token := c.Param("token")
	var body JoinRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "user_name required")
		return
	}

	result, err := h.svc.Join(c.Request.Context(), token, userID, body.UserName)
	if err != nil {
		var invalid *LinkInvalidError
		var tokenErr *provider.TokenIssuanceError
		switch {
		case errors.As(err, &invalid):
			response.Gone(c, gin.H{"valid": false, "reason": invalid.Reason})
		case errors.As(err, &tokenErr):
			response.BadGateway(c, tokenErr.Error())
		default:
			h.logger.Error("join failed", zap.Error(err))
			response.Internal(c, "failed to join meeting")
		}
		return
	}
	response.OK(c, result)
}

// EndRequest is the body for POST /meetings/:id/end.
type EndRequest struct {
	Reason          models.EndReason `json:"reason"`
	DurationSeconds int              `json:"duration_seconds"`
}

// End handles POST /meetings/:id/end.
func (h *Handler) End(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	var body EndRequest
	_ = c.ShouldBindJSON(&body)
	switch body.Reason {
	case models.EndReasonManual, models.EndReasonTimeLimit, models.EndReasonAllLeft:
	case "":
		body.Reason = models.EndReasonManual
	default:
		response.BadRequest(c, "reason must be manual, time_limit or all_left")
		return
	}

	err = h.svc.End(c.Request.Context(), id, userID, body.Reason, body.DurationSeconds)
	switch {
	case err == nil:
		response.OK(c, gin.H{"status": models.MeetingStatusEnded})
	case errors.Is(err, ErrMeetingNotFound):
		response.NotFound(c, "meeting not found")
	case errors.Is(err, ErrMeetingFinished):
		response.Conflict(c, "meeting already ended or cancelled")
	case errors.Is(err, ErrNotStarted):
		response.Conflict(c, "meeting has not started")
	default:
		h.logger.Error("end meeting failed", zap.Error(err))
		response.Internal(c, "failed to end meeting")
	}
}

// CancelRequest is the body for POST /meetings/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /meetings/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	var body CancelRequest
	_ = c.ShouldBindJSON(&body)
	var reason *string
	if body.Reason != "" {
		reason = &body.Reason
	}

	err = h.svc.Cancel(c.Request.Context(), id, userID, reason)
	var cannot *CannotCancelError
	switch {
	case err == nil:
		response.OK(c, gin.H{"status": models.MeetingStatusCancelled})
	case errors.Is(err, ErrMeetingNotFound):
		response.NotFound(c, "meeting not found")
	case errors.Is(err, ErrMeetingFinished):
		response.Conflict(c, "meeting already ended or cancelled")
	case errors.As(err, &cannot):
		response.Forbidden(c, cannot.Message)
	default:
		h.logger.Error("cancel meeting failed", zap.Error(err))
		response.Internal(c, "failed to cancel meeting")
	}
}

// Status handles GET /meetings/:id/status.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	st, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			response.NotFound(c, "meeting not found")
			return
		}
		h.logger.Error("meeting status failed", zap.Error(err))
		response.Internal(c, "failed to read status")
		return
	}
	response.OK(c, st)
}

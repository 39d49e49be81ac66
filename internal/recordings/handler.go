package recordings

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/meetings"
	"github.com/masilo-dev/alphaclone-meetings/internal/middleware"
	"github.com/masilo-dev/alphaclone-meetings/internal/models"
	"github.com/masilo-dev/alphaclone-meetings/pkg/response"
	"github.com/masilo-dev/alphaclone-meetings/pkg/storage"
)

// Handler handles recording HTTP endpoints.
type Handler struct {
	repo        *Repository
	meetingRepo *meetings.Repository
	s3          *storage.S3
	logger      *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(repo *Repository, meetingRepo *meetings.Repository, s3 *storage.S3, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, meetingRepo: meetingRepo, s3: s3, logger: logger}
}

// canAccess reports whether the user may see recordings of the meeting.
// Hosts and admins of the meeting's tenant qualify.
func (h *Handler) canAccess(c *gin.Context, m *models.Meeting) bool {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if m.HostID == userID {
		return true
	}
	tenantID := c.MustGet(middleware.ContextTenantID).(uuid.UUID)
	role, _ := c.Get(middleware.ContextUserRole)
	return m.TenantID == tenantID && role == "admin"
}

// ListByMeeting handles GET /meetings/:id/recordings.
func (h *Handler) ListByMeeting(c *gin.Context) {
	meetingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return
	}
	m, err := h.meetingRepo.GetByID(c.Request.Context(), meetingID)
	if err != nil {
		response.NotFound(c, "meeting not found")
		return
	}
	if !h.canAccess(c, m) {
		response.Forbidden(c, "not authorized to list recordings")
		return
	}

	list, err := h.repo.ListByMeeting(c.Request.Context(), meetingID)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("meeting_id", meetingID.String()))
		response.Internal(c, "failed to list recordings")
		return
	}
	response.OK(c, list)
}

// GenerateDownloadURL handles GET /recordings/:id/download-url. Returns a presigned URL.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	recordingID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.repo.GetByID(c.Request.Context(), recordingID)
	if err != nil {
		response.NotFound(c, "recording not found")
		return
	}
	if rec.Status != models.RecordingStatusCompleted || rec.S3Key == "" {
		response.BadRequest(c, "recording not ready for download")
		return
	}
	m, err := h.meetingRepo.GetByID(c.Request.Context(), rec.MeetingID)
	if err != nil {
		response.NotFound(c, "meeting not found")
		return
	}
	if !h.canAccess(c, m) {
		response.Forbidden(c, "not authorized to download this recording")
		return
	}

	if h.s3 == nil {
		response.Internal(c, "S3 not configured")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.RecordingsBucket(), rec.S3Key, expire)
	if err != nil {
		h.logger.Error("presign recording download failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

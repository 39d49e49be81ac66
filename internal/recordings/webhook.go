package recordings

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
	"github.com/masilo-dev/alphaclone-meetings/pkg/queue"
	"github.com/masilo-dev/alphaclone-meetings/pkg/response"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// RecordingReadyPayload is the expected body from the provider's recording_ready webhook.
type RecordingReadyPayload struct {
	ProviderRecordingID string `json:"provider_recording_id"`
	MeetingID           string `json:"meeting_id"`
	RecordingID         string `json:"recording_id"`
	FileURL             string `json:"file_url"`
	Duration            int    `json:"duration"`
	FileSize            int64  `json:"file_size"`
}

// WebhookHandler handles recording webhooks from the video provider.
type WebhookHandler struct {
	repo   *Repository
	queue  *queue.Queue
	secret []byte
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature verification (local development only).
func NewWebhookHandler(repo *Repository, q *queue.Queue, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{repo: repo, queue: q, secret: []byte(secret), logger: logger}
}

func (h *WebhookHandler) verifySignature(signature string, body []byte) bool {
	if len(h.secret) == 0 {
		return true
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(want, mac.Sum(nil))
}

// RecordingReady handles POST /webhooks/recording-ready. Verifies the HMAC
// signature, upserts the recording row and enqueues the S3 upload job.
func (h *WebhookHandler) RecordingReady(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "unreadable body")
		return
	}
	if !h.verifySignature(c.GetHeader(SignatureHeader), raw) {
		h.logger.Warn("webhook signature mismatch", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid signature")
		return
	}
	var body RecordingReadyPayload
	if err := json.Unmarshal(raw, &body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.FileURL == "" {
		response.BadRequest(c, "file_url required")
		return
	}

	var recordingID uuid.UUID
	var meetingID uuid.UUID
	if body.RecordingID != "" {
		recordingID, err = uuid.Parse(body.RecordingID)
		if err != nil {
			response.BadRequest(c, "invalid recording_id")
			return
		}
	}
	if body.MeetingID != "" {
		meetingID, err = uuid.Parse(body.MeetingID)
		if err != nil {
			response.BadRequest(c, "invalid meeting_id")
			return
		}
	}

	// Find the recording by provider id first, then by our id; create a
	// fresh row when the provider never saw our recording_id.
	var rec *models.Recording
	if body.ProviderRecordingID != "" {
		rec, _ = h.repo.GetByProviderID(c.Request.Context(), body.ProviderRecordingID)
	}
	if rec == nil && body.RecordingID != "" {
		rec, _ = h.repo.GetByID(c.Request.Context(), recordingID)
	}
	if rec == nil && body.MeetingID != "" {
		rec = &models.Recording{
			MeetingID:           meetingID,
			ProviderRecordingID: body.ProviderRecordingID,
			OriginalURL:         body.FileURL,
			Duration:            body.Duration,
			FileSize:            body.FileSize,
			Status:              models.RecordingStatusProcessing,
		}
		if err := h.repo.Create(c.Request.Context(), rec); err != nil {
			h.logger.Error("create recording failed", zap.Error(err))
			response.Internal(c, "failed to create recording")
			return
		}
	}
	if rec == nil {
		response.BadRequest(c, "could not identify recording (provide recording_id or provider_recording_id + meeting_id)")
		return
	}

	if rec.OriginalURL != body.FileURL {
		if err := h.repo.UpdateOriginalURL(c.Request.Context(), rec.ID, body.FileURL); err != nil {
			h.logger.Error("update original_url failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
			response.Internal(c, "failed to update recording")
			return
		}
	}

	if err := h.queue.EnqueueRecordingUpload(c.Request.Context(), queue.RecordingUploadPayload{
		RecordingID: rec.ID,
		MeetingID:   rec.MeetingID,
		OriginalURL: body.FileURL,
	}); err != nil {
		h.logger.Error("enqueue recording upload failed", zap.Error(err), zap.String("recording_id", rec.ID.String()))
		response.Internal(c, "failed to enqueue upload")
		return
	}

	h.logger.Info("recording_ready webhook processed", zap.String("recording_id", rec.ID.String()), zap.String("original_url", body.FileURL))
	c.JSON(http.StatusOK, gin.H{"success": true, "recording_id": rec.ID, "status": "processing"})
}

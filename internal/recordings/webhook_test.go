package recordings

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhooks/recording-ready", bytes.NewReader(body))
	if signature != "" {
		c.Request.Header.Set(SignatureHeader, signature)
	}
	h.RecordingReady(c)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "topsecret", nil)
	body := []byte(`{"file_url":"https://cdn.example.com/rec.mp4"}`)

	w := postWebhook(h, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(h, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(h, body, sign("othersecret", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAcceptsValidSignature(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "topsecret", nil)

	// Valid signature but no file_url: passes verification, fails validation.
	body := []byte(`{"recording_id":"not-relevant"}`)
	w := postWebhook(h, body, sign("topsecret", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "topsecret", nil)
	body := []byte(`{"file_url":`)
	w := postWebhook(h, body, sign("topsecret", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookRejectsInvalidIDs(t *testing.T) {
	h := NewWebhookHandler(nil, nil, "", nil)
	body := []byte(`{"file_url":"https://cdn.example.com/rec.mp4","meeting_id":"not-a-uuid"}`)
	w := postWebhook(h, body, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

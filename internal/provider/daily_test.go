package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyCreateRoom(t *testing.T) {
	var got dailyCreateRoomBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(dailyRoomResponse{Name: "meet-x1", URL: "https://acme.daily.co/meet-x1"})
	}))
	defer srv.Close()

	d := NewDaily(DailyConfig{APIKey: "test-key", BaseURL: srv.URL}, nil)
	start := time.Date(2026, time.June, 1, 15, 0, 0, 0, time.UTC)
	room, err := d.CreateRoom(context.Background(), CreateRoomRequest{
		Title:           "standup",
		MaxParticipants: 8,
		Capabilities:    Capabilities{Recording: true, ScreenShare: true, Chat: false},
		StartTime:       &start,
		DurationMinutes: 30,
	})
	require.NoError(t, err)
	assert.Equal(t, "meet-x1", room.Name)
	assert.Equal(t, "https://acme.daily.co/meet-x1", room.URL)

	assert.Equal(t, "private", got.Privacy)
	assert.Equal(t, 8, got.Properties.MaxParticipants)
	assert.Equal(t, "cloud", got.Properties.EnableRecording)
	require.NotNil(t, got.Properties.EnableScreenshare)
	assert.True(t, *got.Properties.EnableScreenshare)
	require.NotNil(t, got.Properties.EnableChat)
	assert.False(t, *got.Properties.EnableChat)
	assert.Equal(t, start.Unix(), got.Properties.NBF)
	assert.Equal(t, start.Add(30*time.Minute).Unix(), got.Properties.Exp)
	assert.True(t, got.Properties.EjectAtRoomExp)
}

func TestDailyCreateRoomFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(dailyErrorResponse{Error: "invalid-api-key", Info: "api key is invalid"})
	}))
	defer srv.Close()

	d := NewDaily(DailyConfig{APIKey: "bad", BaseURL: srv.URL}, nil)
	_, err := d.CreateRoom(context.Background(), CreateRoomRequest{Title: "x"})
	var rce *RoomCreationError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, http.StatusForbidden, rce.Status)
	assert.Equal(t, "api key is invalid", rce.Message)
}

func TestDailyDeleteRoomTreatsMissingAsDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/rooms/meet-x1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDaily(DailyConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	assert.NoError(t, d.DeleteRoom(context.Background(), "meet-x1"))
}

func TestDailyDeleteRoomFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDaily(DailyConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	assert.Error(t, d.DeleteRoom(context.Background(), "meet-x1"))
}

func TestDailyIssueJoinToken(t *testing.T) {
	var got dailyCreateTokenBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meeting-tokens", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(dailyTokenResponse{Token: "mtok-1"})
	}))
	defer srv.Close()

	d := NewDaily(DailyConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	tok, err := d.IssueJoinToken(context.Background(), "meet-x1", "Ada", true)
	require.NoError(t, err)
	assert.Equal(t, "mtok-1", tok)
	assert.Equal(t, "meet-x1", got.Properties.RoomName)
	assert.Equal(t, "Ada", got.Properties.UserName)
	assert.True(t, got.Properties.IsOwner)
	// Tokens are short-lived: a fresh one is issued per redemption.
	assert.InDelta(t, time.Now().Add(joinTokenTTL).Unix(), got.Properties.Exp, 5)
}

func TestDailyIssueJoinTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDaily(DailyConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := d.IssueJoinToken(context.Background(), "meet-x1", "Ada", false)
	var tie *TokenIssuanceError
	require.ErrorAs(t, err, &tie)
	assert.Equal(t, http.StatusBadGateway, tie.Status)
}

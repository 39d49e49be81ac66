package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	defaultDailyBaseURL = "https://api.daily.co/v1"
	// joinTokenTTL is the lifetime of a meeting token; redemption issues a
	// fresh one per join, so tokens stay short-lived.
	joinTokenTTL = 15 * time.Minute
)

// DailyConfig holds Daily REST API settings.
type DailyConfig struct {
	APIKey  string
	BaseURL string // override for tests; defaults to the public API
}

// Daily implements RoomProvider against the Daily REST API.
type Daily struct {
	cfg    DailyConfig
	http   *http.Client
	logger *zap.Logger
}

// NewDaily creates a Daily room provider.
func NewDaily(cfg DailyConfig, logger *zap.Logger) *Daily {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultDailyBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Daily{
		cfg:    cfg,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// dailyRoomProperties maps capability flags onto Daily room properties.
type dailyRoomProperties struct {
	MaxParticipants   int    `json:"max_participants,omitempty"`
	EnableRecording   string `json:"enable_recording,omitempty"`
	EnableScreenshare *bool  `json:"enable_screenshare,omitempty"`
	EnableChat        *bool  `json:"enable_chat,omitempty"`
	NBF               int64  `json:"nbf,omitempty"`
	Exp               int64  `json:"exp,omitempty"`
	EjectAtRoomExp    bool   `json:"eject_at_room_exp,omitempty"`
}

type dailyCreateRoomBody struct {
	Privacy    string              `json:"privacy"`
	Properties dailyRoomProperties `json:"properties"`
}

type dailyRoomResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type dailyErrorResponse struct {
	Error string `json:"error"`
	Info  string `json:"info"`
}

// CreateRoom creates a private Daily room with the requested capabilities.
// nbf/exp are derived from StartTime and DurationMinutes; a duration without
// a fixed start is measured from now.
func (d *Daily) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	props := dailyRoomProperties{
		MaxParticipants:   req.MaxParticipants,
		EnableScreenshare: boolPtr(req.Capabilities.ScreenShare),
		EnableChat:        boolPtr(req.Capabilities.Chat),
	}
	if req.Capabilities.Recording {
		props.EnableRecording = "cloud"
	}
	if req.DurationMinutes > 0 {
		start := time.Now()
		if req.StartTime != nil {
			start = *req.StartTime
			props.NBF = start.Unix()
		}
		props.Exp = start.Add(time.Duration(req.DurationMinutes) * time.Minute).Unix()
		props.EjectAtRoomExp = true
	}

	var out dailyRoomResponse
	if err := d.post(ctx, "/rooms", dailyCreateRoomBody{Privacy: "private", Properties: props}, &out, roomCreation); err != nil {
		return nil, err
	}
	d.logger.Debug("daily room created", zap.String("room", out.Name))
	return &Room{Name: out.Name, URL: out.URL}, nil
}

// DeleteRoom removes a Daily room. Deleting an already-absent room is not an error.
func (d *Daily) DeleteRoom(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, d.cfg.BaseURL+"/rooms/"+name, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("delete room %s: status %d", name, resp.StatusCode)
}

type dailyTokenProperties struct {
	RoomName string `json:"room_name"`
	UserName string `json:"user_name,omitempty"`
	IsOwner  bool   `json:"is_owner,omitempty"`
	Exp      int64  `json:"exp"`
}

type dailyCreateTokenBody struct {
	Properties dailyTokenProperties `json:"properties"`
}

type dailyTokenResponse struct {
	Token string `json:"token"`
}

// IssueJoinToken creates a short-lived Daily meeting token scoped to one room.
func (d *Daily) IssueJoinToken(ctx context.Context, roomName, userName string, isOwner bool) (string, error) {
	body := dailyCreateTokenBody{Properties: dailyTokenProperties{
		RoomName: roomName,
		UserName: userName,
		IsOwner:  isOwner,
		Exp:      time.Now().Add(joinTokenTTL).Unix(),
	}}
	var out dailyTokenResponse
	if err := d.post(ctx, "/meeting-tokens", body, &out, tokenIssuance); err != nil {
		return "", err
	}
	return out.Token, nil
}

type failureKind int

const (
	roomCreation failureKind = iota
	tokenIssuance
)

func (d *Daily) post(ctx context.Context, path string, body, out interface{}, kind failureKind) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return apiError(kind, 0, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e dailyErrorResponse
		msg := string(data)
		if json.Unmarshal(data, &e) == nil && (e.Info != "" || e.Error != "") {
			msg = e.Info
			if msg == "" {
				msg = e.Error
			}
		}
		return apiError(kind, resp.StatusCode, msg)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(kind failureKind, status int, msg string) error {
	if kind == tokenIssuance {
		return &TokenIssuanceError{Status: status, Message: msg}
	}
	return &RoomCreationError{Status: status, Message: msg}
}

func boolPtr(b bool) *bool { return &b }

package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/livekit/protocol/auth"
	"go.uber.org/zap"
)

// LiveKitConfig holds LiveKit credentials and the server URL handed to clients.
type LiveKitConfig struct {
	APIKey    string
	APISecret string
	URL       string // e.g. wss://meet.example.livekit.cloud
}

// LiveKit implements RoomProvider for a LiveKit deployment. Rooms are
// created lazily by the server on first join, so CreateRoom only reserves
// a name and DeleteRoom is a no-op (LiveKit closes rooms on empty timeout).
type LiveKit struct {
	cfg    LiveKitConfig
	logger *zap.Logger
}

// NewLiveKit creates a LiveKit room provider.
func NewLiveKit(cfg LiveKitConfig, logger *zap.Logger) *LiveKit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveKit{cfg: cfg, logger: logger}
}

// CreateRoom reserves a unique room name. Capability flags are enforced
// per-participant through token grants at join time.
func (l *LiveKit) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	if l.cfg.APIKey == "" || l.cfg.APISecret == "" {
		return nil, &RoomCreationError{Message: "livekit api key and secret not configured"}
	}
	name := "meet-" + strings.ToLower(shortuuid.New())
	return &Room{Name: name, URL: l.cfg.URL}, nil
}

// DeleteRoom is a no-op; LiveKit tears rooms down when the last participant leaves.
func (l *LiveKit) DeleteRoom(ctx context.Context, name string) error {
	return nil
}

// IssueJoinToken signs a short-lived LiveKit access token for the room.
// Owners get admin rights on the room; everyone else can publish and subscribe.
func (l *LiveKit) IssueJoinToken(ctx context.Context, roomName, userName string, isOwner bool) (string, error) {
	if l.cfg.APIKey == "" || l.cfg.APISecret == "" {
		return "", &TokenIssuanceError{Message: "livekit api key and secret not configured"}
	}
	canPublish := true
	canSubscribe := true
	at := auth.NewAccessToken(l.cfg.APIKey, l.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin:     true,
		Room:         roomName,
		RoomAdmin:    isOwner,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}
	at.AddGrant(grant).
		SetIdentity(fmt.Sprintf("%s-%s", roomName, strings.ToLower(shortuuid.New()))).
		SetName(userName).
		SetValidFor(joinTokenTTL + time.Minute)
	token, err := at.ToJWT()
	if err != nil {
		return "", &TokenIssuanceError{Message: err.Error()}
	}
	return token, nil
}

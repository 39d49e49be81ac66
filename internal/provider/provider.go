// Package provider talks to the external video-room infrastructure.
// It is the only package that knows the provider's room URL format and
// token scheme; API secrets never leave the server.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Capabilities are the meeting feature flags encoded into provider room properties.
type Capabilities struct {
	Recording   bool
	ScreenShare bool
	Chat        bool
}

// CreateRoomRequest describes the room to create.
// When StartTime is nil, DurationMinutes is measured from room creation time.
type CreateRoomRequest struct {
	Title           string
	MaxParticipants int
	Capabilities    Capabilities
	StartTime       *time.Time
	DurationMinutes int
}

// Room is a created provider room.
type Room struct {
	Name string // provider room identifier
	URL  string // provider room URL; never exposed to clients before join
}

// RoomProvider creates and destroys video rooms and issues short-lived join tokens.
type RoomProvider interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error)
	DeleteRoom(ctx context.Context, name string) error
	IssueJoinToken(ctx context.Context, roomName, userName string, isOwner bool) (string, error)
}

// RoomCreationError is returned when the provider rejects room creation.
type RoomCreationError struct {
	Status  int
	Message string
}

func (e *RoomCreationError) Error() string {
	return fmt.Sprintf("room creation failed: %s (status %d)", e.Message, e.Status)
}

// TokenIssuanceError is returned when the provider rejects token issuance.
type TokenIssuanceError struct {
	Status  int
	Message string
}

func (e *TokenIssuanceError) Error() string {
	return fmt.Sprintf("token issuance failed: %s (status %d)", e.Message, e.Status)
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// MeetingLink is a single-use join token bound to one meeting.
// A link is redeemed at most once; redemption is a conditional update
// at the persistence layer, never check-then-act.
type MeetingLink struct {
	ID        uuid.UUID  `json:"id"`
	MeetingID uuid.UUID  `json:"meeting_id"`
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Expired reports whether the link's expiry has passed at the given time.
func (l *MeetingLink) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

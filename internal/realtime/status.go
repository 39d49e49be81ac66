package realtime

import (
	"github.com/google/uuid"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
)

// StatusPublisher pushes meeting status transitions to connected clients.
// It publishes through Redis so every instance, including one with no local
// subscribers, reaches the clients that hold the connection.
type StatusPublisher struct {
	hub *Hub
}

// NewStatusPublisher creates a publisher backed by the given hub.
func NewStatusPublisher(hub *Hub) *StatusPublisher {
	return &StatusPublisher{hub: hub}
}

// StatusChange is the payload of the "status_changed" event.
type StatusChange struct {
	MeetingID string `json:"meeting_id"`
	Status    string `json:"status"`
	EndReason string `json:"end_reason,omitempty"`
}

// PublishMeetingStatus broadcasts a status transition for a meeting.
func (p *StatusPublisher) PublishMeetingStatus(meetingID uuid.UUID, status models.MeetingStatus, endReason *models.EndReason) {
	change := StatusChange{
		MeetingID: meetingID.String(),
		Status:    string(status),
	}
	if endReason != nil {
		change.EndReason = string(*endReason)
	}
	p.hub.PublishToMeetingOnly(meetingID, "status_changed", change)
}

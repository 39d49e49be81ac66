package models

import (
	"time"

	"github.com/google/uuid"
)

// MeetingStatus is the lifecycle state of a meeting.
// scheduled -> active -> ended, or scheduled|active -> cancelled.
// ended and cancelled are terminal.
type MeetingStatus string

const (
	MeetingStatusScheduled MeetingStatus = "scheduled"
	MeetingStatusActive    MeetingStatus = "active"
	MeetingStatusEnded     MeetingStatus = "ended"
	MeetingStatusCancelled MeetingStatus = "cancelled"
)

// Terminal reports whether no further status transitions are allowed.
func (s MeetingStatus) Terminal() bool {
	return s == MeetingStatusEnded || s == MeetingStatusCancelled
}

// EndReason records why a meeting transitioned to ended.
type EndReason string

const (
	EndReasonManual    EndReason = "manual"     // explicit host/admin action
	EndReasonTimeLimit EndReason = "time_limit" // auto-end deadline reached
	EndReasonAllLeft   EndReason = "all_left"   // every participant disconnected
)

// Meeting represents one scheduled or in-progress video session.
// The provider room URL is stored here but never returned to clients
// before link redemption. Meetings are never hard-deleted.
type Meeting struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenant_id"`
	HostID          uuid.UUID  `json:"host_id"`
	HostName        string     `json:"host_name"`
	CalendarEventID *uuid.UUID `json:"calendar_event_id,omitempty"`

	Title           string   `json:"title"`
	Participants    []string `json:"participants,omitempty"`
	MaxParticipants int      `json:"max_participants"`

	RoomName string `json:"-"`
	RoomURL  string `json:"-"`

	ScheduledAt     time.Time  `json:"scheduled_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	AutoEndAt       *time.Time `json:"auto_end_at,omitempty"`

	RecordingEnabled   bool `json:"recording_enabled"`
	ScreenShareEnabled bool `json:"screen_share_enabled"`
	ChatEnabled        bool `json:"chat_enabled"`

	CancellationPolicyHours int        `json:"cancellation_policy_hours"`
	AllowClientCancellation bool       `json:"allow_client_cancellation"`
	CancelledBy             *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason      *string    `json:"cancellation_reason,omitempty"`

	Status    MeetingStatus `json:"status"`
	EndReason *EndReason    `json:"end_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

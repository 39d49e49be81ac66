// Package meetings is the public entry point for the meeting lifecycle:
// creation behind the plan quota gate, single-use link issuance and
// redemption, start/end/cancel transitions and realtime status fan-out.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
	"github.com/masilo-dev/alphaclone-meetings/internal/provider"
	"github.com/masilo-dev/alphaclone-meetings/internal/quota"
	"github.com/masilo-dev/alphaclone-meetings/pkg/utils"
)

// Link validation reasons. Returned as data, never thrown: validation is
// called speculatively to render landing pages.
const (
	ReasonNotFound = "not_found"
	ReasonExpired  = "expired"
	ReasonUsed     = "used"
	ReasonUnknown  = "unknown"
)

var (
	// ErrMeetingNotFound is returned when the meeting id matches nothing.
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrMeetingFinished is returned for transitions attempted on a
	// terminal (ended/cancelled) meeting.
	ErrMeetingFinished = errors.New("meeting already ended or cancelled")
	// ErrNotStarted is returned when ending a meeting that never became active.
	ErrNotStarted = errors.New("meeting has not started")
)

// CannotCancelError is an expected business outcome: the caller may not
// cancel this meeting at this time.
type CannotCancelError struct {
	Message string
}

func (e *CannotCancelError) Error() string { return e.Message }

// LinkInvalidError is returned by Join when the token cannot be redeemed.
type LinkInvalidError struct {
	Reason string
}

func (e *LinkInvalidError) Error() string {
	return "meeting link is not valid: " + e.Reason
}

// Store is the persistence surface the orchestrator mutates. Meeting and
// link rows are only ever written through these methods so the state-machine
// and redemption invariants hold.
type Store interface {
	Create(ctx context.Context, m *models.Meeting) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	Start(ctx context.Context, id uuid.UUID) (bool, error)
	End(ctx context.Context, id uuid.UUID, reason models.EndReason, durationSeconds int) (bool, error)
	Cancel(ctx context.Context, id, cancelledBy uuid.UUID, reason *string) (bool, error)
	ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Meeting, error)
	CreateLink(ctx context.Context, l *models.MeetingLink) error
	GetLinkByToken(ctx context.Context, token string) (*models.MeetingLink, error)
	RedeemLink(ctx context.Context, token string, userID uuid.UUID) (bool, error)
	ReopenLink(ctx context.Context, token string) error
}

// QuotaChecker gates meeting creation (see internal/quota).
type QuotaChecker interface {
	Check(ctx context.Context, hostID, tenantID uuid.UUID, requestedMinutes int) (*quota.Result, error)
}

// StatusPublisher fans a status change out to subscribed clients.
type StatusPublisher interface {
	PublishMeetingStatus(meetingID uuid.UUID, status models.MeetingStatus, endReason *models.EndReason)
}

// CleanupQueue schedules best-effort deletion of orphaned provider rooms.
type CleanupQueue interface {
	EnqueueRoomCleanup(ctx context.Context, roomName string) error
}

// Service orchestrates the meeting lifecycle.
type Service struct {
	store    Store
	rooms    provider.RoomProvider
	quota    QuotaChecker
	status   StatusPublisher
	cleanup  CleanupQueue
	logger   *zap.Logger
	now      func() time.Time
	newToken func() (string, error)
}

// NewService creates the meeting orchestrator. status and cleanup may be nil
// (status changes are then not fanned out, orphaned rooms are deleted inline).
func NewService(store Store, rooms provider.RoomProvider, q QuotaChecker, status StatusPublisher, cleanup CleanupQueue, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		rooms:    rooms,
		quota:    q,
		status:   status,
		cleanup:  cleanup,
		logger:   logger,
		now:      time.Now,
		newToken: utils.NewLinkToken,
	}
}

// CreateMeetingInput describes the meeting to schedule.
type CreateMeetingInput struct {
	TenantID        uuid.UUID
	HostID          uuid.UUID
	HostName        string
	Title           string
	Participants    []string
	MaxParticipants int
	ScheduledAt     time.Time
	DurationMinutes int // <= 0: no requested duration (all-day ceiling applies)
	CalendarEventID *uuid.UUID

	RecordingEnabled   bool
	ScreenShareEnabled bool
	ChatEnabled        bool

	CancellationPolicyHours int
	AllowClientCancellation bool
}

// CreateMeetingResult is returned to the caller. JoinURL is the branded
// link; the provider room URL is never part of this response.
type CreateMeetingResult struct {
	Meeting *models.Meeting
	JoinURL string
}

// CreateMeeting runs quota check -> room creation -> persistence -> link
// issuance, in that order. A failed quota check allocates nothing; a failed
// persist after room creation schedules best-effort deletion of the room.
func (s *Service) CreateMeeting(ctx context.Context, in CreateMeetingInput) (*CreateMeetingResult, error) {
	res, err := s.quota.Check(ctx, in.HostID, in.TenantID, in.DurationMinutes)
	if err != nil {
		return nil, err
	}

	scheduledAt := in.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = s.now()
	}
	room, err := s.rooms.CreateRoom(ctx, provider.CreateRoomRequest{
		Title:           in.Title,
		MaxParticipants: in.MaxParticipants,
		Capabilities: provider.Capabilities{
			Recording:   in.RecordingEnabled,
			ScreenShare: in.ScreenShareEnabled,
			Chat:        in.ChatEnabled,
		},
		StartTime:       &scheduledAt,
		DurationMinutes: res.EffectiveMinutes,
	})
	if err != nil {
		return nil, err
	}

	m := &models.Meeting{
		TenantID:                in.TenantID,
		HostID:                  in.HostID,
		HostName:                in.HostName,
		CalendarEventID:         in.CalendarEventID,
		Title:                   in.Title,
		Participants:            in.Participants,
		MaxParticipants:         in.MaxParticipants,
		RoomName:                room.Name,
		RoomURL:                 room.URL,
		ScheduledAt:             scheduledAt,
		DurationMinutes:         res.EffectiveMinutes,
		RecordingEnabled:        in.RecordingEnabled,
		ScreenShareEnabled:      in.ScreenShareEnabled,
		ChatEnabled:             in.ChatEnabled,
		CancellationPolicyHours: in.CancellationPolicyHours,
		AllowClientCancellation: in.AllowClientCancellation,
		Status:                  models.MeetingStatusScheduled,
	}
	if err := s.store.Create(ctx, m); err != nil {
		s.releaseRoom(ctx, room.Name)
		return nil, fmt.Errorf("persist meeting: %w", err)
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate link token: %w", err)
	}
	link := &models.MeetingLink{
		MeetingID: m.ID,
		Token:     token,
		ExpiresAt: scheduledAt.Add(time.Duration(res.EffectiveMinutes) * time.Minute),
	}
	if err := s.store.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("persist meeting link: %w", err)
	}

	s.logger.Info("meeting created",
		zap.String("meeting_id", m.ID.String()),
		zap.String("host_id", in.HostID.String()),
		zap.String("plan", res.Snapshot.Plan),
		zap.Int("duration_minutes", res.EffectiveMinutes))
	return &CreateMeetingResult{Meeting: m, JoinURL: "/meet/" + token}, nil
}

// releaseRoom deletes a provider room whose meeting row never materialized.
// Queued with retries when a cleanup queue is wired, deleted inline otherwise;
// either way the orphan is logged, never silently dangling.
func (s *Service) releaseRoom(ctx context.Context, roomName string) {
	s.logger.Warn("meeting persist failed after room creation, releasing room", zap.String("room", roomName))
	if s.cleanup != nil {
		if err := s.cleanup.EnqueueRoomCleanup(ctx, roomName); err == nil {
			return
		}
	}
	if err := s.rooms.DeleteRoom(ctx, roomName); err != nil {
		s.logger.Error("orphaned room cleanup failed", zap.String("room", roomName), zap.Error(err))
	}
}

// PublicMeetingInfo is the minimal metadata exposed by link validation.
type PublicMeetingInfo struct {
	Title     string    `json:"title"`
	HostName  string    `json:"host_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LinkValidation is the result of validating a join token.
type LinkValidation struct {
	Valid   bool               `json:"valid"`
	Reason  string             `json:"reason,omitempty"`
	Meeting *PublicMeetingInfo `json:"meeting,omitempty"`
}

// ValidateLink checks a join token without mutating it. Safe to call any
// number of times; only Join consumes a link.
func (s *Service) ValidateLink(ctx context.Context, token string) (*LinkValidation, error) {
	link, err := s.store.GetLinkByToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &LinkValidation{Reason: ReasonNotFound}, nil
		}
		s.logger.Error("link lookup failed", zap.Error(err))
		return &LinkValidation{Reason: ReasonUnknown}, nil
	}
	if link.UsedAt != nil {
		return &LinkValidation{Reason: ReasonUsed}, nil
	}
	if link.Expired(s.now()) {
		return &LinkValidation{Reason: ReasonExpired}, nil
	}
	m, err := s.store.GetByID(ctx, link.MeetingID)
	if err != nil {
		s.logger.Error("meeting lookup for link failed", zap.Error(err), zap.String("meeting_id", link.MeetingID.String()))
		return &LinkValidation{Reason: ReasonUnknown}, nil
	}
	return &LinkValidation{
		Valid: true,
		Meeting: &PublicMeetingInfo{
			Title:     m.Title,
			HostName:  m.HostName,
			ExpiresAt: link.ExpiresAt,
		},
	}, nil
}

// JoinResult carries the one-time provider credentials handed out on
// successful redemption.
type JoinResult struct {
	MeetingID uuid.UUID  `json:"meeting_id"`
	RoomURL   string     `json:"room_url"`
	Token     string     `json:"token"`
	AutoEndAt *time.Time `json:"auto_end_at,omitempty"`
}

// Join redeems a single-use token for provider credentials. Redemption and
// credential issuance form one atomic unit from the caller's view: the link
// is consumed first via a conditional update, and only the winning caller
// receives credentials. Losers get a LinkInvalidError (reason used).
func (s *Service) Join(ctx context.Context, token string, userID uuid.UUID, userName string) (*JoinResult, error) {
	v, err := s.ValidateLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, &LinkInvalidError{Reason: v.Reason}
	}

	ok, err := s.store.RedeemLink(ctx, token, userID)
	if err != nil {
		return nil, fmt.Errorf("redeem link: %w", err)
	}
	if !ok {
		// Lost the race (or expired between validation and redemption).
		// Fail closed with the precise reason when it is still readable.
		if v2, vErr := s.ValidateLink(ctx, token); vErr == nil && v2.Reason != "" {
			return nil, &LinkInvalidError{Reason: v2.Reason}
		}
		return nil, &LinkInvalidError{Reason: ReasonUsed}
	}

	link, err := s.store.GetLinkByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("reload link: %w", err)
	}
	m, err := s.store.GetByID(ctx, link.MeetingID)
	if err != nil {
		return nil, fmt.Errorf("load meeting: %w", err)
	}

	// First join activates a scheduled meeting.
	if m.Status == models.MeetingStatusScheduled {
		started, err := s.store.Start(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("start meeting: %w", err)
		}
		if started {
			s.publish(m.ID, models.MeetingStatusActive, nil)
		}
		if m, err = s.store.GetByID(ctx, m.ID); err != nil {
			return nil, fmt.Errorf("reload meeting: %w", err)
		}
	}

	cred, err := s.rooms.IssueJoinToken(ctx, m.RoomName, userName, userID == m.HostID)
	if err != nil {
		// The redemption produced no credential; give the link back so a
		// transient provider outage does not burn the invitation.
		if reErr := s.store.ReopenLink(ctx, token); reErr != nil {
			s.logger.Error("reopen link after token failure",
				zap.Error(reErr), zap.String("meeting_id", m.ID.String()))
		}
		return nil, err
	}
	return &JoinResult{
		MeetingID: m.ID,
		RoomURL:   m.RoomURL,
		Token:     cred,
		AutoEndAt: m.AutoEndAt,
	}, nil
}

// End transitions a meeting to ended. reason must be one of manual,
// time_limit or all_left. Terminal meetings are rejected with
// ErrMeetingFinished; a meeting that never started with ErrNotStarted.
func (s *Service) End(ctx context.Context, meetingID, userID uuid.UUID, reason models.EndReason, durationSeconds int) error {
	m, err := s.store.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMeetingNotFound
		}
		return err
	}
	if m.Status.Terminal() {
		return ErrMeetingFinished
	}
	if m.Status == models.MeetingStatusScheduled {
		return ErrNotStarted
	}

	ended, err := s.store.End(ctx, meetingID, reason, durationSeconds)
	if err != nil {
		return fmt.Errorf("end meeting: %w", err)
	}
	if !ended {
		// Raced with another terminator; the state machine stays closed.
		return ErrMeetingFinished
	}
	s.publish(meetingID, models.MeetingStatusEnded, &reason)
	s.logger.Info("meeting ended",
		zap.String("meeting_id", meetingID.String()),
		zap.String("reason", string(reason)),
		zap.String("by", userID.String()))
	return nil
}

// Cancel transitions a non-terminal meeting to cancelled. The host may
// always cancel; a non-host participant only when the meeting allows client
// cancellation and the start is not within the cancellation-policy window.
// At exactly the policy boundary cancellation is still allowed (inclusive).
func (s *Service) Cancel(ctx context.Context, meetingID, userID uuid.UUID, reason *string) error {
	m, err := s.store.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMeetingNotFound
		}
		return err
	}
	if m.Status.Terminal() {
		return ErrMeetingFinished
	}

	if userID != m.HostID {
		if !m.AllowClientCancellation {
			return &CannotCancelError{Message: "only the host can cancel this meeting"}
		}
		window := time.Duration(m.CancellationPolicyHours) * time.Hour
		if s.now().After(m.ScheduledAt.Add(-window)) {
			return &CannotCancelError{Message: fmt.Sprintf(
				"this meeting can no longer be cancelled within %d hours of its start", m.CancellationPolicyHours)}
		}
	}

	cancelled, err := s.store.Cancel(ctx, meetingID, userID, reason)
	if err != nil {
		return fmt.Errorf("cancel meeting: %w", err)
	}
	if !cancelled {
		return ErrMeetingFinished
	}
	s.publish(meetingID, models.MeetingStatusCancelled, nil)
	s.logger.Info("meeting cancelled",
		zap.String("meeting_id", meetingID.String()),
		zap.String("by", userID.String()))
	return nil
}

// StatusResult reports the current lifecycle position of a meeting.
type StatusResult struct {
	Status           models.MeetingStatus `json:"status"`
	TimeExceeded     bool                 `json:"time_exceeded"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	EndReason        *models.EndReason    `json:"end_reason,omitempty"`
}

// Status returns the meeting's status, whether the auto-end deadline has
// passed, and remaining seconds while active.
func (s *Service) Status(ctx context.Context, meetingID uuid.UUID) (*StatusResult, error) {
	m, err := s.store.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}
	out := &StatusResult{Status: m.Status, EndReason: m.EndReason}
	if m.Status == models.MeetingStatusActive && m.AutoEndAt != nil {
		remaining := int(m.AutoEndAt.Sub(s.now()).Seconds())
		if remaining <= 0 {
			out.TimeExceeded = true
		} else {
			out.RemainingSeconds = remaining
		}
	}
	return out, nil
}

// Get returns the meeting for API reads (room fields stay unexported via JSON tags).
func (s *Service) Get(ctx context.Context, meetingID uuid.UUID) (*models.Meeting, error) {
	m, err := s.store.GetByID(ctx, meetingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, err
	}
	return m, nil
}

// SweepExpired ends active meetings past their auto-end deadline with
// reason time_limit. Used by the background worker.
func (s *Service) SweepExpired(ctx context.Context, batch int) (int, error) {
	expired, err := s.store.ListExpiredActive(ctx, s.now(), batch)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, m := range expired {
		if err := s.End(ctx, m.ID, m.HostID, models.EndReasonTimeLimit, 0); err != nil {
			if errors.Is(err, ErrMeetingFinished) {
				continue
			}
			s.logger.Error("auto-end failed", zap.String("meeting_id", m.ID.String()), zap.Error(err))
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Service) publish(meetingID uuid.UUID, status models.MeetingStatus, endReason *models.EndReason) {
	if s.status != nil {
		s.status.PublishMeetingStatus(meetingID, status, endReason)
	}
}

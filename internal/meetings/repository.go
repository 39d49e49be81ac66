package meetings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
)

// Repository handles meeting and meeting-link persistence. Status
// transitions are conditional updates so terminal states are closed at the
// persistence layer, and link redemption is a single atomic conditional
// update rather than a check followed by a write.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a meetings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const meetingColumns = `id, tenant_id, host_id, host_name, calendar_event_id, title, participants, max_participants,
	room_name, room_url, scheduled_at, started_at, ended_at, duration_seconds, duration_minutes, auto_end_at,
	recording_enabled, screen_share_enabled, chat_enabled,
	cancellation_policy_hours, allow_client_cancellation, cancelled_by, cancelled_at, cancellation_reason,
	status, end_reason, created_at, updated_at`

func scanMeeting(row interface{ Scan(...interface{}) error }) (*models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(&m.ID, &m.TenantID, &m.HostID, &m.HostName, &m.CalendarEventID, &m.Title, &m.Participants, &m.MaxParticipants,
		&m.RoomName, &m.RoomURL, &m.ScheduledAt, &m.StartedAt, &m.EndedAt, &m.DurationSeconds, &m.DurationMinutes, &m.AutoEndAt,
		&m.RecordingEnabled, &m.ScreenShareEnabled, &m.ChatEnabled,
		&m.CancellationPolicyHours, &m.AllowClientCancellation, &m.CancelledBy, &m.CancelledAt, &m.CancellationReason,
		&m.Status, &m.EndReason, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Create inserts a new meeting in scheduled status.
func (r *Repository) Create(ctx context.Context, m *models.Meeting) error {
	const q = `INSERT INTO meetings (id, tenant_id, host_id, host_name, calendar_event_id, title, participants, max_participants,
			room_name, room_url, scheduled_at, duration_minutes,
			recording_enabled, screen_share_enabled, chat_enabled,
			cancellation_policy_hours, allow_client_cancellation, status)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 'scheduled')
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q,
		m.TenantID, m.HostID, m.HostName, m.CalendarEventID, m.Title, m.Participants, m.MaxParticipants,
		m.RoomName, m.RoomURL, m.ScheduledAt, m.DurationMinutes,
		m.RecordingEnabled, m.ScreenShareEnabled, m.ChatEnabled,
		m.CancellationPolicyHours, m.AllowClientCancellation).
		Scan(&m.ID, &m.Status, &m.CreatedAt, &m.UpdatedAt)
}

// GetByID returns a meeting by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error) {
	return scanMeeting(r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id))
}

// ListByHost returns meetings hosted by a user, newest first.
func (r *Repository) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Meeting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE host_id = $1 ORDER BY scheduled_at DESC`, hostID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// CountHostedSince counts meetings hosted by the user created at or after
// the given instant. Cancelled meetings do not count against the quota.
func (r *Repository) CountHostedSince(ctx context.Context, hostID uuid.UUID, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM meetings WHERE host_id = $1 AND created_at >= $2 AND status <> 'cancelled'`
	var count int
	err := r.pool.QueryRow(ctx, q, hostID, since).Scan(&count)
	return count, err
}

// Start transitions scheduled -> active, setting started_at and the auto-end
// deadline from the allotted duration. Returns false when the meeting was
// not in scheduled status.
func (r *Repository) Start(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE meetings
		SET status = 'active',
			started_at = NOW(),
			auto_end_at = NOW() + duration_minutes * INTERVAL '1 minute',
			updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'`
	tag, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// End transitions active -> ended, recording ended_at, duration and reason.
// durationSeconds <= 0 derives the duration from started_at. Returns false
// when the meeting was not active (terminal states stay closed).
func (r *Repository) End(ctx context.Context, id uuid.UUID, reason models.EndReason, durationSeconds int) (bool, error) {
	const q = `UPDATE meetings
		SET status = 'ended',
			ended_at = NOW(),
			duration_seconds = CASE WHEN $2 > 0 THEN $2
				ELSE GREATEST(0, EXTRACT(EPOCH FROM (NOW() - started_at)))::int END,
			end_reason = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'`
	tag, err := r.pool.Exec(ctx, q, id, durationSeconds, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel transitions scheduled|active -> cancelled, recording who cancelled,
// when and why. Returns false when the meeting was already terminal.
func (r *Repository) Cancel(ctx context.Context, id, cancelledBy uuid.UUID, reason *string) (bool, error) {
	const q = `UPDATE meetings
		SET status = 'cancelled',
			cancelled_by = $2,
			cancelled_at = NOW(),
			cancellation_reason = $3,
			updated_at = NOW()
		WHERE id = $1 AND status IN ('scheduled', 'active')`
	tag, err := r.pool.Exec(ctx, q, id, cancelledBy, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpiredActive returns active meetings whose auto-end deadline has
// passed (for the time-limit sweep).
func (r *Repository) ListExpiredActive(ctx context.Context, now time.Time, limit int) ([]models.Meeting, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+meetingColumns+` FROM meetings
		 WHERE status = 'active' AND auto_end_at IS NOT NULL AND auto_end_at <= $1
		 ORDER BY auto_end_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

// CreateLink inserts a single-use meeting link.
func (r *Repository) CreateLink(ctx context.Context, l *models.MeetingLink) error {
	const q = `INSERT INTO meeting_links (id, meeting_id, token, expires_at)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, used_at, created_at`
	return r.pool.QueryRow(ctx, q, l.MeetingID, l.Token, l.ExpiresAt).
		Scan(&l.ID, &l.UsedAt, &l.CreatedAt)
}

// GetLinkByToken returns a link by its token string (for validation; no side effects).
func (r *Repository) GetLinkByToken(ctx context.Context, token string) (*models.MeetingLink, error) {
	const q = `SELECT id, meeting_id, token, expires_at, used_at, used_by, created_at
		FROM meeting_links WHERE token = $1`
	var l models.MeetingLink
	err := r.pool.QueryRow(ctx, q, token).Scan(&l.ID, &l.MeetingID, &l.Token, &l.ExpiresAt, &l.UsedAt, &l.UsedBy, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// RedeemLink atomically marks a link as used by the given user. Succeeds for
// at most one caller: the conditional update only matches an unused,
// unexpired link, so concurrent redeemers race on rows-affected, not on a
// read-then-write.
func (r *Repository) RedeemLink(ctx context.Context, token string, userID uuid.UUID) (bool, error) {
	const q = `UPDATE meeting_links
		SET used_at = NOW(), used_by = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > NOW()`
	tag, err := r.pool.Exec(ctx, q, token, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReopenLink clears a redemption that never produced a join credential,
// making the link usable again.
func (r *Repository) ReopenLink(ctx context.Context, token string) error {
	const q = `UPDATE meeting_links
		SET used_at = NULL, used_by = NULL
		WHERE token = $1`
	_, err := r.pool.Exec(ctx, q, token)
	return err
}

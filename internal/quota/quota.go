// Package quota gates meeting creation against the host tenant's
// subscription plan. The check runs and fully resolves before any provider
// room is created.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
)

// AllDayMinutes is the effective duration when no duration is requested
// and the plan places no per-meeting limit.
const AllDayMinutes = 24 * 60

// UpgradeRequiredError is returned when the monthly meeting limit is reached.
// It carries the limiting number and plan name for the upgrade prompt.
type UpgradeRequiredError struct {
	Plan  string
	Limit int
}

func (e *UpgradeRequiredError) Error() string {
	return fmt.Sprintf("monthly meeting limit of %d reached on the %s plan", e.Limit, e.Plan)
}

// PlanSource resolves a tenant's current plan limits.
type PlanSource interface {
	TenantSnapshot(ctx context.Context, tenantID uuid.UUID) (*models.QuotaSnapshot, error)
}

// MeetingCounter counts meetings hosted by a user since a point in time.
type MeetingCounter interface {
	CountHostedSince(ctx context.Context, hostID uuid.UUID, since time.Time) (int, error)
}

// Result is the outcome of a passed quota check.
type Result struct {
	Snapshot models.QuotaSnapshot
	// EffectiveMinutes is the requested duration clamped to the plan's
	// per-meeting limit.
	EffectiveMinutes int
}

// Enforcer performs plan-quota checks.
type Enforcer struct {
	plans    PlanSource
	meetings MeetingCounter
	// unrestrictedTenant bypasses all limits regardless of nominal plan.
	unrestrictedTenant uuid.UUID
	now                func() time.Time
	logger             *zap.Logger
}

// New creates a quota enforcer.
func New(plans PlanSource, meetings MeetingCounter, unrestrictedTenant uuid.UUID, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enforcer{
		plans:              plans,
		meetings:           meetings,
		unrestrictedTenant: unrestrictedTenant,
		now:                time.Now,
		logger:             logger,
	}
}

// Check resolves the tenant's plan and verifies the host may create another
// meeting this month. requestedMinutes <= 0 means no duration was requested,
// which implies an all-day ceiling. Returns UpgradeRequiredError when the
// monthly count limit is already reached.
func (e *Enforcer) Check(ctx context.Context, hostID, tenantID uuid.UUID, requestedMinutes int) (*Result, error) {
	snap, err := e.plans.TenantSnapshot(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant plan: %w", err)
	}
	if tenantID == e.unrestrictedTenant {
		snap = &models.QuotaSnapshot{
			Plan:                 snap.Plan,
			MaxMeetingsPerMonth:  models.UnlimitedLimit,
			MaxMinutesPerMeeting: models.UnlimitedLimit,
		}
	}

	if snap.MaxMeetingsPerMonth != models.UnlimitedLimit {
		count, err := e.meetings.CountHostedSince(ctx, hostID, monthStart(e.now()))
		if err != nil {
			return nil, fmt.Errorf("count hosted meetings: %w", err)
		}
		if count >= snap.MaxMeetingsPerMonth {
			e.logger.Info("meeting creation blocked by plan quota",
				zap.String("host_id", hostID.String()),
				zap.String("plan", snap.Plan),
				zap.Int("limit", snap.MaxMeetingsPerMonth))
			return nil, &UpgradeRequiredError{Plan: snap.Plan, Limit: snap.MaxMeetingsPerMonth}
		}
	}

	effective := requestedMinutes
	if effective <= 0 {
		effective = AllDayMinutes
	}
	if snap.MaxMinutesPerMeeting != models.UnlimitedLimit && effective > snap.MaxMinutesPerMeeting {
		effective = snap.MaxMinutesPerMeeting
	}

	return &Result{Snapshot: *snap, EffectiveMinutes: effective}, nil
}

// monthStart returns the first instant of the current calendar month in UTC.
func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

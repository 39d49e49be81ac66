package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
)

type fakePlans struct {
	snap *models.QuotaSnapshot
	err  error
}

func (f *fakePlans) TenantSnapshot(ctx context.Context, tenantID uuid.UUID) (*models.QuotaSnapshot, error) {
	return f.snap, f.err
}

type fakeCounter struct {
	count int
	err   error
	calls int
	since time.Time
}

func (f *fakeCounter) CountHostedSince(ctx context.Context, hostID uuid.UUID, since time.Time) (int, error) {
	f.calls++
	f.since = since
	return f.count, f.err
}

func freePlan() *models.QuotaSnapshot {
	return &models.QuotaSnapshot{Plan: "free", MaxMeetingsPerMonth: 10, MaxMinutesPerMeeting: 40}
}

func TestCheckBlocksAtMonthlyLimit(t *testing.T) {
	e := New(&fakePlans{snap: freePlan()}, &fakeCounter{count: 10}, uuid.Nil, nil)

	_, err := e.Check(context.Background(), uuid.New(), uuid.New(), 30)
	var upgrade *UpgradeRequiredError
	require.ErrorAs(t, err, &upgrade)
	assert.Equal(t, "free", upgrade.Plan)
	assert.Equal(t, 10, upgrade.Limit)
}

func TestCheckAllowsUnderLimit(t *testing.T) {
	e := New(&fakePlans{snap: freePlan()}, &fakeCounter{count: 9}, uuid.Nil, nil)

	res, err := e.Check(context.Background(), uuid.New(), uuid.New(), 30)
	require.NoError(t, err)
	assert.Equal(t, 30, res.EffectiveMinutes)
}

func TestCheckClampsDurationToPlan(t *testing.T) {
	e := New(&fakePlans{snap: freePlan()}, &fakeCounter{}, uuid.Nil, nil)

	res, err := e.Check(context.Background(), uuid.New(), uuid.New(), 480)
	require.NoError(t, err)
	assert.Equal(t, 40, res.EffectiveMinutes)
}

func TestCheckNoDurationGetsAllDayCeiling(t *testing.T) {
	plans := &fakePlans{snap: &models.QuotaSnapshot{
		Plan:                 "pro",
		MaxMeetingsPerMonth:  100,
		MaxMinutesPerMeeting: models.UnlimitedLimit,
	}}
	e := New(plans, &fakeCounter{}, uuid.Nil, nil)

	res, err := e.Check(context.Background(), uuid.New(), uuid.New(), 0)
	require.NoError(t, err)
	assert.Equal(t, AllDayMinutes, res.EffectiveMinutes)
}

func TestCheckNoDurationStillClamped(t *testing.T) {
	e := New(&fakePlans{snap: freePlan()}, &fakeCounter{}, uuid.Nil, nil)

	res, err := e.Check(context.Background(), uuid.New(), uuid.New(), -1)
	require.NoError(t, err)
	assert.Equal(t, 40, res.EffectiveMinutes)
}

func TestCheckUnlimitedPlanSkipsCounting(t *testing.T) {
	plans := &fakePlans{snap: &models.QuotaSnapshot{
		Plan:                 "enterprise",
		MaxMeetingsPerMonth:  models.UnlimitedLimit,
		MaxMinutesPerMeeting: models.UnlimitedLimit,
	}}
	counter := &fakeCounter{err: errors.New("must not be called")}
	e := New(plans, counter, uuid.Nil, nil)

	res, err := e.Check(context.Background(), uuid.New(), uuid.New(), 600)
	require.NoError(t, err)
	assert.Equal(t, 600, res.EffectiveMinutes)
	assert.Zero(t, counter.calls)
}

func TestCheckUnrestrictedTenantBypassesLimits(t *testing.T) {
	tenantID := uuid.New()
	counter := &fakeCounter{count: 1000}
	e := New(&fakePlans{snap: freePlan()}, counter, tenantID, nil)

	res, err := e.Check(context.Background(), uuid.New(), tenantID, 480)
	require.NoError(t, err)
	assert.Equal(t, 480, res.EffectiveMinutes)
	assert.Equal(t, models.UnlimitedLimit, res.Snapshot.MaxMeetingsPerMonth)
	assert.Zero(t, counter.calls)
}

func TestCheckCountsFromCalendarMonthStart(t *testing.T) {
	counter := &fakeCounter{count: 0}
	e := New(&fakePlans{snap: freePlan()}, counter, uuid.Nil, nil)
	e.now = func() time.Time {
		return time.Date(2026, time.March, 17, 9, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	}

	_, err := e.Check(context.Background(), uuid.New(), uuid.New(), 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), counter.since)
}

func TestCheckPlanLookupFailure(t *testing.T) {
	e := New(&fakePlans{err: errors.New("db down")}, &fakeCounter{}, uuid.Nil, nil)

	_, err := e.Check(context.Background(), uuid.New(), uuid.New(), 30)
	require.Error(t, err)
	var upgrade *UpgradeRequiredError
	assert.False(t, errors.As(err, &upgrade))
}

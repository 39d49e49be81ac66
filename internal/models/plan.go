package models

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedLimit marks a plan limit as unbounded.
const UnlimitedLimit = -1

// Plan is a subscription plan with its meeting feature limits.
type Plan struct {
	Name                 string    `json:"name"`
	MaxMeetingsPerMonth  int       `json:"max_meetings_per_month"`  // -1 = unlimited
	MaxMinutesPerMeeting int       `json:"max_minutes_per_meeting"` // -1 = unlimited
	CreatedAt            time.Time `json:"created_at"`
}

// Tenant is a customer account holding a subscription plan.
// The unrestricted tenant bypasses all plan limits regardless of nominal plan.
type Tenant struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	PlanName     string    `json:"plan_name"`
	Unrestricted bool      `json:"unrestricted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QuotaSnapshot is the resolved limit set for one quota check.
// Derived per check from the tenant's plan, not persisted.
type QuotaSnapshot struct {
	Plan                 string `json:"plan"`
	MaxMeetingsPerMonth  int    `json:"max_meetings_per_month"`
	MaxMinutesPerMeeting int    `json:"max_minutes_per_meeting"`
}

// Unlimited reports whether both limits are unbounded.
func (s QuotaSnapshot) Unlimited() bool {
	return s.MaxMeetingsPerMonth == UnlimitedLimit && s.MaxMinutesPerMeeting == UnlimitedLimit
}

// Package tenants is the tenant/plan registry: per tenant it supplies the
// current subscription plan and its meeting feature limits.
package tenants

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/masilo-dev/alphaclone-meetings/internal/models"
)

// Repository handles tenant and plan persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns a tenant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	const q = `SELECT id, name, plan_name, unrestricted, created_at, updated_at FROM tenants WHERE id = $1`
	var t models.Tenant
	err := r.pool.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.PlanName, &t.Unrestricted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetPlan returns a plan by name.
func (r *Repository) GetPlan(ctx context.Context, name string) (*models.Plan, error) {
	const q = `SELECT name, max_meetings_per_month, max_minutes_per_meeting, created_at FROM plans WHERE name = $1`
	var p models.Plan
	err := r.pool.QueryRow(ctx, q, name).Scan(&p.Name, &p.MaxMeetingsPerMonth, &p.MaxMinutesPerMeeting, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// TenantSnapshot resolves the tenant's plan into a quota snapshot.
// An unrestricted tenant gets both limits forced to unlimited.
func (r *Repository) TenantSnapshot(ctx context.Context, tenantID uuid.UUID) (*models.QuotaSnapshot, error) {
	const q = `SELECT t.plan_name, t.unrestricted, p.max_meetings_per_month, p.max_minutes_per_meeting
		FROM tenants t
		INNER JOIN plans p ON p.name = t.plan_name
		WHERE t.id = $1`
	var (
		snap         models.QuotaSnapshot
		unrestricted bool
	)
	err := r.pool.QueryRow(ctx, q, tenantID).Scan(&snap.Plan, &unrestricted, &snap.MaxMeetingsPerMonth, &snap.MaxMinutesPerMeeting)
	if err != nil {
		return nil, err
	}
	if unrestricted {
		snap.MaxMeetingsPerMonth = models.UnlimitedLimit
		snap.MaxMinutesPerMeeting = models.UnlimitedLimit
	}
	return &snap, nil
}

// SetPlan updates a tenant's plan.
func (r *Repository) SetPlan(ctx context.Context, tenantID uuid.UUID, planName string) error {
	const q = `UPDATE tenants SET plan_name = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, planName, tenantID)
	return err
}

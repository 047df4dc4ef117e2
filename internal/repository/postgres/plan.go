package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

// PlanRepository implements repository.PlanRepository using PostgreSQL.
type PlanRepository struct {
	pool database.DBTX
}

// NewPlanRepository creates a new PostgreSQL-backed membership plan repository.
func NewPlanRepository(pool database.DBTX) *PlanRepository {
	return &PlanRepository{pool: pool}
}

const planColumns = `id, name, slug, description, price, billing_cycle, max_listings, features, is_active, display_order, created_at, updated_at`

// Create inserts a new plan. A slug collision surfaces as a duplicate-slug
// conflict.
func (r *PlanRepository) Create(ctx context.Context, plan *domain.MembershipPlan) error {
	query := `
		INSERT INTO membership_plans (id, name, slug, description, price, billing_cycle, max_listings, features, is_active, display_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err := r.pool.Exec(ctx, query,
		plan.ID,
		plan.Name,
		plan.Slug,
		plan.Description,
		plan.Price,
		plan.BillingCycle,
		plan.MaxListings,
		plan.Features,
		plan.IsActive,
		plan.DisplayOrder,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict(fmt.Sprintf("a plan with slug %q already exists", plan.Slug))
		}
		return fmt.Errorf("insert plan: %w", err)
	}

	return nil
}

// GetByID retrieves a plan by its ID.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*domain.MembershipPlan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans WHERE id = $1`
	return r.scanPlan(ctx, query, id)
}

// GetBySlug retrieves a plan by its URL slug.
func (r *PlanRepository) GetBySlug(ctx context.Context, slug string) (*domain.MembershipPlan, error) {
	query := `SELECT ` + planColumns + ` FROM membership_plans WHERE slug = $1`
	return r.scanPlan(ctx, query, slug)
}

// GetFreePlan retrieves the active zero-price plan used for auto-enrollment.
// When several free plans exist the lowest display order wins.
func (r *PlanRepository) GetFreePlan(ctx context.Context) (*domain.MembershipPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM membership_plans
		WHERE price = 0 AND is_active = TRUE
		ORDER BY display_order ASC
		LIMIT 1`
	return r.scanPlan(ctx, query)
}

// ListActive returns all active plans in display order.
func (r *PlanRepository) ListActive(ctx context.Context) ([]domain.MembershipPlan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM membership_plans
		WHERE is_active = TRUE
		ORDER BY display_order ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.MembershipPlan
	for rows.Next() {
		var p domain.MembershipPlan
		if err := scanPlanRow(rows, &p); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}

	return plans, nil
}

func (r *PlanRepository) scanPlan(ctx context.Context, query string, args ...any) (*domain.MembershipPlan, error) {
	var p domain.MembershipPlan
	err := scanPlanRow(r.pool.QueryRow(ctx, query, args...), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, err
	}
	return &p, nil
}

// scanPlanRow scans one plan row from either a pgx.Row or pgx.Rows.
func scanPlanRow(row pgx.Row, p *domain.MembershipPlan) error {
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Slug,
		&p.Description,
		&p.Price,
		&p.BillingCycle,
		&p.MaxListings,
		&p.Features,
		&p.IsActive,
		&p.DisplayOrder,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan plan: %w", err)
	}
	return nil
}

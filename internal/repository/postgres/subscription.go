package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
)

// SubscriptionRepository implements repository.SubscriptionRepository using PostgreSQL.
type SubscriptionRepository struct {
	pool database.DBTX
}

// NewSubscriptionRepository creates a new PostgreSQL-backed subscription repository.
func NewSubscriptionRepository(pool database.DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, status, start_date, end_date, listings_used, auto_renew, cancelled_at, created_at, updated_at`

// Subscribe atomically checks that the user holds no active subscription and
// inserts or revives the (user, plan) row. The active check and the write run
// in one transaction with the existing rows locked, and the partial unique
// index on (user_id) WHERE status = 'active' backstops the invariant against
// writers outside this method.
func (r *SubscriptionRepository) Subscribe(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockQuery := `
		SELECT id FROM user_subscriptions
		WHERE user_id = $1 AND status = 'active'
		FOR UPDATE`

	var activeID string
	err = tx.QueryRow(ctx, lockQuery, sub.UserID).Scan(&activeID)
	switch {
	case err == nil:
		return nil, domain.ErrSubscriptionAlreadyActive
	case errors.Is(err, pgx.ErrNoRows):
		// no active subscription, proceed
	default:
		return nil, fmt.Errorf("check active subscription: %w", err)
	}

	upsert := `
		INSERT INTO user_subscriptions (id, user_id, plan_id, status, start_date, end_date, listings_used, auto_renew, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $9)
		ON CONFLICT (user_id, plan_id) DO UPDATE
		SET status = EXCLUDED.status,
		    start_date = EXCLUDED.start_date,
		    end_date = EXCLUDED.end_date,
		    listings_used = 0,
		    auto_renew = EXCLUDED.auto_renew,
		    cancelled_at = NULL,
		    updated_at = EXCLUDED.updated_at
		RETURNING ` + subscriptionColumns

	now := time.Now().UTC()
	var result domain.Subscription
	err = scanSubscriptionRow(tx.QueryRow(ctx, upsert,
		sub.ID,
		sub.UserID,
		sub.PlanID,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.ListingsUsed,
		sub.AutoRenew,
		now,
	), &result)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrSubscriptionAlreadyActive
		}
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &result, nil
}

// GetByID retrieves a subscription by its ID.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE id = $1`

	var s domain.Subscription
	err := scanSubscriptionRow(r.pool.QueryRow(ctx, query, id), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}

	return &s, nil
}

// GetActiveByUserID retrieves the user's active subscription, if any.
func (r *SubscriptionRepository) GetActiveByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1 AND status = 'active'`

	var s domain.Subscription
	err := scanSubscriptionRow(r.pool.QueryRow(ctx, query, userID), &s)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, err
	}

	return &s, nil
}

// Update persists status, dates, usage counter, and renewal flag.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE user_subscriptions
		SET status = $1, start_date = $2, end_date = $3, listings_used = $4,
		    auto_renew = $5, cancelled_at = $6, updated_at = $7
		WHERE id = $8`

	ct, err := r.pool.Exec(ctx, query,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.ListingsUsed,
		sub.AutoRenew,
		sub.CancelledAt,
		sub.UpdatedAt,
		sub.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSubscriptionAlreadyActive
		}
		return fmt.Errorf("update subscription: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

// ActivatePending promotes a pending subscription to active after payment
// confirmation. A subscription that is no longer pending is left untouched.
func (r *SubscriptionRepository) ActivatePending(ctx context.Context, id string, endDate *time.Time) error {
	query := `
		UPDATE user_subscriptions
		SET status = 'active', start_date = $1, end_date = $2, updated_at = $1
		WHERE id = $3 AND status = 'pending'`

	ct, err := r.pool.Exec(ctx, query, time.Now().UTC(), endDate, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSubscriptionAlreadyActive
		}
		return fmt.Errorf("activate subscription: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}

	return nil
}

// ExpireLapsed marks active subscriptions past their end date as expired.
func (r *SubscriptionRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE user_subscriptions
		SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date < $1`

	ct, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed subscriptions: %w", err)
	}

	return ct.RowsAffected(), nil
}

// CountActiveByPlan returns the number of active subscribers per plan.
func (r *SubscriptionRepository) CountActiveByPlan(ctx context.Context) ([]domain.PlanSubscriberCount, error) {
	query := `
		SELECT p.id, p.name, COUNT(s.id), p.price
		FROM membership_plans p
		LEFT JOIN user_subscriptions s ON s.plan_id = p.id AND s.status = 'active'
		GROUP BY p.id, p.name, p.price
		ORDER BY COUNT(s.id) DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active subscribers: %w", err)
	}
	defer rows.Close()

	var counts []domain.PlanSubscriberCount
	for rows.Next() {
		var c domain.PlanSubscriberCount
		if err := rows.Scan(&c.PlanID, &c.PlanName, &c.Subscribers, &c.PlanPrice); err != nil {
			return nil, fmt.Errorf("scan subscriber count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriber counts: %w", err)
	}

	return counts, nil
}

// List returns subscriptions ordered newest first.
func (r *SubscriptionRepository) List(ctx context.Context, limit, offset int) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM user_subscriptions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := scanSubscriptionRow(rows, &s); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}

// scanSubscriptionRow scans one subscription row from either a pgx.Row or pgx.Rows.
func scanSubscriptionRow(row pgx.Row, s *domain.Subscription) error {
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.PlanID,
		&s.Status,
		&s.StartDate,
		&s.EndDate,
		&s.ListingsUsed,
		&s.AutoRenew,
		&s.CancelledAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan subscription: %w", err)
	}
	return nil
}

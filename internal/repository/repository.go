package repository

import (
	"context"
	"time"

	"github.com/addisbazaar/platform/internal/domain"
)

// ProfileRepository defines the interface for account persistence operations.
type ProfileRepository interface {
	// Create inserts a new profile into the store.
	Create(ctx context.Context, profile *domain.Profile) error

	// GetByID retrieves a profile by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Profile, error)

	// GetByIdentifier retrieves a profile by its canonical identity key.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Profile, error)

	// MarkVerified flips the profile's verified flag.
	MarkVerified(ctx context.Context, id string) error

	// UpdatePassword replaces the stored credential hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RefreshTokenRepository defines the interface for refresh token persistence operations.
type RefreshTokenRepository interface {
	// Create stores a new refresh token hash.
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// GetByHash retrieves a refresh token record by its hash.
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// RevokeByUserID revokes all refresh tokens for the given user.
	RevokeByUserID(ctx context.Context, userID string) error

	// Revoke revokes a specific refresh token by its hash.
	Revoke(ctx context.Context, tokenHash string) error
}

// OtpRepository defines the interface for one-time code challenge persistence.
type OtpRepository interface {
	// Create inserts a pending challenge and supersedes any prior pending
	// challenge for the same (identifier, purpose) pair.
	Create(ctx context.Context, challenge *domain.OtpChallenge) error

	// GetNewest retrieves the most recently issued challenge for the
	// (identifier, purpose) pair regardless of status.
	GetNewest(ctx context.Context, identifier string, purpose domain.OtpPurpose) (*domain.OtpChallenge, error)

	// ConsumePending transitions a challenge from pending to verified.
	// It reports false when the challenge was already consumed, so the
	// transition happens exactly once even under concurrent verify calls.
	ConsumePending(ctx context.Context, id string) (bool, error)

	// ExpireStale marks pending challenges past their expiry as expired and
	// returns the number of rows affected.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// PlanRepository defines the interface for membership plan reference data.
type PlanRepository interface {
	// Create inserts a new plan.
	Create(ctx context.Context, plan *domain.MembershipPlan) error

	// GetByID retrieves a plan by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.MembershipPlan, error)

	// GetBySlug retrieves a plan by its URL slug.
	GetBySlug(ctx context.Context, slug string) (*domain.MembershipPlan, error)

	// GetFreePlan retrieves the active zero-price plan used for auto-enrollment.
	GetFreePlan(ctx context.Context) (*domain.MembershipPlan, error)

	// ListActive returns all active plans in display order.
	ListActive(ctx context.Context) ([]domain.MembershipPlan, error)
}

// SubscriptionRepository defines the interface for subscription persistence.
type SubscriptionRepository interface {
	// Subscribe atomically checks that the user holds no active subscription
	// and inserts or revives the (user, plan) row. It fails with
	// ErrSubscriptionAlreadyActive when an active subscription exists.
	Subscribe(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)

	// GetByID retrieves a subscription by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)

	// GetActiveByUserID retrieves the user's active subscription, if any.
	GetActiveByUserID(ctx context.Context, userID string) (*domain.Subscription, error)

	// Update persists status, dates, usage counter, and renewal flag.
	Update(ctx context.Context, sub *domain.Subscription) error

	// ActivatePending promotes a pending subscription to active after
	// payment confirmation.
	ActivatePending(ctx context.Context, id string, endDate *time.Time) error

	// ExpireLapsed marks active subscriptions past their end date as expired
	// and returns the number of rows affected.
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)

	// CountActiveByPlan returns the number of active subscribers per plan.
	CountActiveByPlan(ctx context.Context) ([]domain.PlanSubscriberCount, error)

	// List returns subscriptions ordered newest first, for admin review.
	List(ctx context.Context, limit, offset int) ([]domain.Subscription, error)
}

// PaymentRepository defines the interface for payment transaction records.
type PaymentRepository interface {
	// Create inserts a payment transaction record.
	Create(ctx context.Context, tx *domain.PaymentTransaction) error

	// AggregateRevenue sums completed transaction amounts.
	AggregateRevenue(ctx context.Context) (*domain.RevenueSummary, error)
}

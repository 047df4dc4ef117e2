package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/internal/event"
	"github.com/addisbazaar/platform/internal/repository"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
	"github.com/addisbazaar/platform/pkg/pagination"
	"github.com/addisbazaar/platform/pkg/slug"
)

// SubscriptionService manages the membership plan state machine and the
// listing quota derived from it.
type SubscriptionService struct {
	subRepo     repository.SubscriptionRepository
	planRepo    repository.PlanRepository
	paymentRepo repository.PaymentRepository
	producer    *event.Producer
	logger      *slog.Logger
}

// NewSubscriptionService creates a new subscription service.
func NewSubscriptionService(
	subRepo repository.SubscriptionRepository,
	planRepo repository.PlanRepository,
	paymentRepo repository.PaymentRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		subRepo:     subRepo,
		planRepo:    planRepo,
		paymentRepo: paymentRepo,
		producer:    producer,
		logger:      logger,
	}
}

// Subscribe assigns the user to a plan. Free plans activate immediately;
// paid plans stay pending until a payment confirmation promotes them. A user
// holding any active subscription cannot subscribe again, and re-subscribing
// to a previously held plan revives that row instead of inserting a second
// one.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, planID string) (*domain.Subscription, error) {
	plan, err := s.planRepo.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.ErrPlanNotFound
	}

	now := time.Now().UTC()
	sub := &domain.Subscription{
		ID:           uuid.New().String(),
		UserID:       userID,
		PlanID:       plan.ID,
		ListingsUsed: 0,
		AutoRenew:    true,
	}

	if plan.IsFree() {
		sub.Status = domain.SubscriptionActive
		sub.StartDate = now
		sub.EndDate = plan.BillingCycle.NextTermEnd(now)
	} else {
		sub.Status = domain.SubscriptionPending
		sub.StartDate = now
	}

	created, err := s.subRepo.Subscribe(ctx, sub)
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishSubscriptionEvent(ctx, event.TopicSubscriptionCreated, created); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish subscription.created event",
			slog.String("subscription_id", created.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "subscription created",
		slog.String("subscription_id", created.ID),
		slog.String("user_id", userID),
		slog.String("plan_id", plan.ID),
		slog.String("status", string(created.Status)),
	)

	return created, nil
}

// EnrollFree subscribes the user to the free plan. Users already holding an
// active subscription are left alone.
func (s *SubscriptionService) EnrollFree(ctx context.Context, userID string) error {
	plan, err := s.planRepo.GetFreePlan(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) {
			s.logger.WarnContext(ctx, "no free plan configured, skipping enrollment",
				slog.String("user_id", userID),
			)
			return nil
		}
		return err
	}

	if _, err := s.Subscribe(ctx, userID, plan.ID); err != nil {
		if errors.Is(err, domain.ErrSubscriptionAlreadyActive) {
			return nil
		}
		return err
	}

	return nil
}

// Cancel sets the subscription to cancelled and stops auto-renewal.
// Cancelling an already-cancelled subscription is a no-op success. A
// non-empty userID restricts the operation to the owner.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, subscriptionID string) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(sub, userID); err != nil {
		return nil, err
	}

	if sub.Status == domain.SubscriptionCancelled {
		return sub, nil
	}

	now := time.Now().UTC()
	sub.Status = domain.SubscriptionCancelled
	sub.CancelledAt = &now
	sub.AutoRenew = false

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.producer.PublishSubscriptionEvent(ctx, event.TopicSubscriptionCancelled, sub); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish subscription.cancelled event",
			slog.String("subscription_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "subscription cancelled",
		slog.String("subscription_id", sub.ID),
	)

	return sub, nil
}

// Renew starts a fresh billing term: the end date advances one unit of the
// plan's billing cycle from now, usage resets to zero, and the subscription
// becomes active again.
func (s *SubscriptionService) Renew(ctx context.Context, userID, subscriptionID string) (*domain.Subscription, error) {
	sub, err := s.subRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(sub, userID); err != nil {
		return nil, err
	}

	plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub.Status = domain.SubscriptionActive
	sub.StartDate = now
	sub.EndDate = plan.BillingCycle.NextTermEnd(now)
	sub.ListingsUsed = 0
	sub.CancelledAt = nil

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.producer.PublishSubscriptionEvent(ctx, event.TopicSubscriptionRenewed, sub); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish subscription.renewed event",
			slog.String("subscription_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "subscription renewed",
		slog.String("subscription_id", sub.ID),
		slog.String("plan_id", plan.ID),
	)

	return sub, nil
}

// ConfirmPayment promotes a pending subscription to active after payment
// confirmation and records the transaction. Called by the payment event
// consumer.
func (s *SubscriptionService) ConfirmPayment(ctx context.Context, subscriptionID string, amount float64, reference string) error {
	sub, err := s.subRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.subRepo.ActivatePending(ctx, sub.ID, plan.BillingCycle.NextTermEnd(now)); err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			// Already promoted; a redelivered event is not an error.
			s.logger.InfoContext(ctx, "payment confirmation for non-pending subscription ignored",
				slog.String("subscription_id", sub.ID),
			)
			return nil
		}
		return err
	}

	payment := &domain.PaymentTransaction{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		Amount:         amount,
		Status:         domain.PaymentCompleted,
		Reference:      reference,
		CreatedAt:      now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		s.logger.ErrorContext(ctx, "failed to record payment transaction",
			slog.String("subscription_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	sub.Status = domain.SubscriptionActive
	if err := s.producer.PublishSubscriptionEvent(ctx, event.TopicSubscriptionActivated, sub); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish subscription.activated event",
			slog.String("subscription_id", sub.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// Current returns the user's active subscription.
func (s *SubscriptionService) Current(ctx context.Context, userID string) (*domain.Subscription, error) {
	return s.subRepo.GetActiveByUserID(ctx, userID)
}

// Remaining derives the user's listing quota from the active subscription.
// No active subscription means no allowance; a plan without a cap is
// unlimited; usage never drives the remainder below zero.
func (s *SubscriptionService) Remaining(ctx context.Context, userID string) (domain.Quota, error) {
	sub, err := s.subRepo.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return domain.NoQuota(), nil
		}
		return domain.Quota{}, err
	}

	plan, err := s.planRepo.GetByID(ctx, sub.PlanID)
	if err != nil {
		return domain.Quota{}, err
	}

	return domain.QuotaFor(plan, sub.ListingsUsed), nil
}

// ListPlans returns all active plans in display order.
func (s *SubscriptionService) ListPlans(ctx context.Context) ([]domain.MembershipPlan, error) {
	return s.planRepo.ListActive(ctx)
}

// GetPlan returns one plan by ID.
func (s *SubscriptionService) GetPlan(ctx context.Context, planID string) (*domain.MembershipPlan, error) {
	return s.planRepo.GetByID(ctx, planID)
}

// CreatePlan stores a new admin-defined membership plan. The slug is derived
// from the plan name when not supplied.
func (s *SubscriptionService) CreatePlan(ctx context.Context, plan *domain.MembershipPlan) (*domain.MembershipPlan, error) {
	if !domain.IsValidBillingCycle(plan.BillingCycle) {
		return nil, apperrors.InvalidInput("unknown billing cycle " + string(plan.BillingCycle))
	}

	plan.ID = uuid.New().String()
	if plan.Slug == "" {
		plan.Slug = slug.Generate(plan.Name)
	}
	plan.IsActive = true

	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "membership plan created",
		slog.String("plan_id", plan.ID),
		slog.String("slug", plan.Slug),
	)

	return plan, nil
}

// GetPlanBySlug returns one plan by its URL slug. The raw value is
// normalized so "Gold" and "gold" resolve to the same plan.
func (s *SubscriptionService) GetPlanBySlug(ctx context.Context, raw string) (*domain.MembershipPlan, error) {
	return s.planRepo.GetBySlug(ctx, slug.Generate(raw))
}

// ListSubscriptions returns a page of subscriptions, newest first, for the
// admin console.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, page pagination.Params) ([]domain.Subscription, error) {
	return s.subRepo.List(ctx, page.Limit(), page.Offset())
}

// ActiveByPlan reports the number of active subscribers per plan.
func (s *SubscriptionService) ActiveByPlan(ctx context.Context) ([]domain.PlanSubscriberCount, error) {
	return s.subRepo.CountActiveByPlan(ctx)
}

// Revenue aggregates completed payment transactions.
func (s *SubscriptionService) Revenue(ctx context.Context) (*domain.RevenueSummary, error) {
	return s.paymentRepo.AggregateRevenue(ctx)
}

// ExpireLapsed marks active subscriptions past their end date as expired.
// Called periodically by the background sweep.
func (s *SubscriptionService) ExpireLapsed(ctx context.Context) (int64, error) {
	return s.subRepo.ExpireLapsed(ctx, time.Now().UTC())
}

// ensure interface satisfaction at compile time
var _ event.SubscriptionActivator = (*SubscriptionService)(nil)

// checkOwner rejects operations on another user's subscription. An empty
// userID is a trusted internal caller (admin endpoints, background sweeps).
func checkOwner(sub *domain.Subscription, userID string) error {
	if userID != "" && sub.UserID != userID {
		return apperrors.Forbidden("subscription belongs to another user")
	}
	return nil
}

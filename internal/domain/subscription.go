package domain

import (
	"math"
	"time"
)

// SubscriptionStatus is the lifecycle state of a plan assignment.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// IsValidSubscriptionStatus reports whether s is a recognized status.
func IsValidSubscriptionStatus(s SubscriptionStatus) bool {
	switch s {
	case SubscriptionPending, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

// Subscription is a user's assignment to a membership plan. At most one
// subscription per user may be active at any time, and at most one row
// exists per (user, plan) pair across billing cycles.
type Subscription struct {
	ID           string             `json:"id"`
	UserID       string             `json:"user_id"`
	PlanID       string             `json:"plan_id"`
	Status       SubscriptionStatus `json:"status"`
	StartDate    time.Time          `json:"start_date"`
	EndDate      *time.Time         `json:"end_date"`
	ListingsUsed int                `json:"listings_used"`
	AutoRenew    bool               `json:"auto_renew"`
	CancelledAt  *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// IsActive reports whether the subscription is currently active.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// Quota is the remaining listing allowance derived from a subscription's
// plan limit and its consumption counter.
type Quota struct {
	Remaining int  `json:"remaining"`
	Limit     *int `json:"limit"`
	Unlimited bool `json:"unlimited"`
}

// NoQuota is the allowance of a user with no active subscription.
func NoQuota() Quota {
	zero := 0
	return Quota{Remaining: 0, Limit: &zero, Unlimited: false}
}

// QuotaFor derives the remaining allowance from a plan limit and usage.
// The result is never negative. A nil plan limit means unlimited, reported
// with a saturated Remaining so callers reading only that field never
// mistake an unlimited allowance for an exhausted one.
func QuotaFor(plan *MembershipPlan, listingsUsed int) Quota {
	if plan.IsUnlimited() {
		return Quota{Remaining: math.MaxInt, Limit: nil, Unlimited: true}
	}
	remaining := *plan.MaxListings - listingsUsed
	if remaining < 0 {
		remaining = 0
	}
	return Quota{Remaining: remaining, Limit: plan.MaxListings, Unlimited: false}
}

// PlanSubscriberCount is a reporting projection of active subscribers per plan.
type PlanSubscriberCount struct {
	PlanID      string  `json:"plan_id"`
	PlanName    string  `json:"plan_name"`
	Subscribers int     `json:"subscribers"`
	PlanPrice   float64 `json:"plan_price"`
}

// RevenueSummary is a reporting projection over completed payment transactions.
type RevenueSummary struct {
	TotalRevenue     float64 `json:"total_revenue"`
	TransactionCount int     `json:"transaction_count"`
}

// PaymentTransaction records a billing event tied to a subscription.
type PaymentTransaction struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Amount         float64   `json:"amount"`
	Status         string    `json:"status"`
	Reference      string    `json:"reference,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Payment transaction statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

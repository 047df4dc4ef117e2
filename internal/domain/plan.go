package domain

import (
	"time"
)

// BillingCycle is the unit of time a subscription term advances by on renewal.
type BillingCycle string

const (
	CycleDaily    BillingCycle = "daily"
	CycleWeekly   BillingCycle = "weekly"
	CycleMonthly  BillingCycle = "monthly"
	CycleYearly   BillingCycle = "yearly"
	CycleLifetime BillingCycle = "lifetime"
)

// IsValidBillingCycle reports whether c is a recognized billing cycle.
func IsValidBillingCycle(c BillingCycle) bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleYearly, CycleLifetime:
		return true
	}
	return false
}

// NextTermEnd returns the end of one billing term starting at from.
// Lifetime plans have no end date and return nil.
func (c BillingCycle) NextTermEnd(from time.Time) *time.Time {
	var end time.Time
	switch c {
	case CycleDaily:
		end = from.AddDate(0, 0, 1)
	case CycleWeekly:
		end = from.AddDate(0, 0, 7)
	case CycleMonthly:
		end = from.AddDate(0, 1, 0)
	case CycleYearly:
		end = from.AddDate(1, 0, 0)
	case CycleLifetime:
		return nil
	default:
		return nil
	}
	return &end
}

// MembershipPlan is admin-managed reference data describing a purchasable
// tier. MaxListings of nil means the plan is unlimited.
type MembershipPlan struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Slug         string       `json:"slug"`
	Description  string       `json:"description,omitempty"`
	Price        float64      `json:"price"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	MaxListings  *int         `json:"max_listings"`
	Features     []string     `json:"features"`
	IsActive     bool         `json:"is_active"`
	DisplayOrder int          `json:"display_order"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IsFree reports whether subscribing to the plan requires no payment.
func (p *MembershipPlan) IsFree() bool {
	return p.Price == 0
}

// IsUnlimited reports whether the plan has no listing cap.
func (p *MembershipPlan) IsUnlimited() bool {
	return p.MaxListings == nil
}

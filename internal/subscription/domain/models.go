// Package domain contains models and contracts for subscription plans and
// per-user plan assignments.
package domain

import (
	"time"
)

// BillingPeriod determines how often a plan's credit pool refreshes.
type BillingPeriod string

const (
	BillingPeriodDaily   BillingPeriod = "daily"
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// SubscriptionPlan defines a credit allowance shared across users. Plans are
// administered outside this service; the allocator only consumes them.
type SubscriptionPlan struct {
	ID            string        `mapstructure:"id" json:"id"`
	Name          string        `mapstructure:"name" json:"name"`
	Description   string        `mapstructure:"description" json:"description,omitempty"`
	CreditLimit   int64         `mapstructure:"credit_limit" json:"credit_limit"`
	Price         float64       `mapstructure:"price" json:"price"`
	BillingPeriod BillingPeriod `mapstructure:"billing_period" json:"billing_period"`
	ValidityDays  int           `mapstructure:"validity_days" json:"validity_days"`
	IsActive      bool          `mapstructure:"is_active" json:"is_active"`
}

// UserSubscription binds a user to a plan with allocation bookkeeping.
// LastAllocatedAt gates the allocator's deterministic idempotency keys.
type UserSubscription struct {
	UserID          string     `gorm:"primaryKey;type:text" json:"user_id"`
	PlanID          string     `gorm:"not null;type:text" json:"plan_id"`
	AssignedAt      time.Time  `gorm:"not null" json:"assigned_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	LastAllocatedAt *time.Time `json:"last_allocated_at,omitempty"`
	AutoRenew       bool       `gorm:"not null;default:true" json:"auto_renew"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (UserSubscription) TableName() string { return "credit_user_subscriptions" }

// PeriodStart returns the start of the billing period instance containing t.
func (p BillingPeriod) PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case BillingPeriodDaily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case BillingPeriodMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case BillingPeriodYearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Valid reports whether the period is one of the supported values.
func (p BillingPeriod) Valid() bool {
	switch p {
	case BillingPeriodDaily, BillingPeriodMonthly, BillingPeriodYearly:
		return true
	}
	return false
}

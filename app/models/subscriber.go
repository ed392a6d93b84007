// Package models defines subscriber tiers and usage tracking fields.
package models

import "time"

type Tier string

const (
	TierFree    Tier = "Free"
	TierBasic   Tier = "Basic"
	TierPremium Tier = "Premium"
)

type Subscriber struct {
	UserID             string     `db:"user_id"`
	Email              string     `db:"email"`
	StripeCustomerID   string     `db:"stripe_customer_id"`
	Subscribed         bool       `db:"subscribed"`
	SubscriptionTier   Tier       `db:"subscription_tier"`
	SubscriptionEnd    *time.Time `db:"subscription_end"`
	ScansUsedThisMonth int        `db:"scans_used_this_month"`
	UsagePeriodStart   time.Time  `db:"usage_period_start"`
}

// Package app provides subscriber persistence helpers for authenticated requests.
package app

import (
	"context"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/auth"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
)

// UpsertSubscriberFromClaims creates a subscriber row if it does not already exist.
func UpsertSubscriberFromClaims(ctx context.Context, claims *auth.Claims) error {
	if db == nil {
		return nil
	}
	if claims == nil || claims.Subject == "" {
		return nil
	}

	const q = `
		INSERT INTO subscribers (user_id, email, subscribed, subscription_tier, scans_used_this_month, usage_period_start, updated_at)
		VALUES ($1, $2, false, $3, 0, $4, now())
		ON CONFLICT (user_id) DO NOTHING;
	`

	_, err := db.ExecContext(
		ctx,
		q,
		claims.Subject,
		nullIfEmpty(claims.Email),
		models.TierFree,
		monthStartUTC(time.Now()),
	)
	return err
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/customer"
)

// InitStripe wires the Stripe API key from the environment.
func InitStripe() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config for stripe: %v", err)
	}
	stripe.Key = cfg.Stripe.SecretKey
}

// tierForAmount maps a monthly price in cents onto a subscription tier.
// Basic is $9.99/month, anything above is Premium.
func tierForAmount(amountCents int64) models.Tier {
	if amountCents <= 999 {
		return models.TierBasic
	}
	return models.TierPremium
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given
// user. It uses subscribers.stripe_customer_id when present, otherwise
// creates a new customer with metadata user_id = <userID>, then stores
// that in the subscribers table.
func ensureStripeCustomer(ctx context.Context, userID, email string) (string, error) {
	if db == nil {
		return "", errors.New("db not initialized")
	}
	if userID == "" {
		return "", errors.New("missing user id")
	}

	var stripeID sql.NullString
	err := db.QueryRowContext(
		ctx,
		`
			SELECT stripe_customer_id
			FROM subscribers
			WHERE user_id = $1;
		`,
		userID,
	).Scan(&stripeID)
	if err != nil {
		return "", err
	}

	if stripeID.Valid && stripeID.String != "" {
		return stripeID.String, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	cust, err := customer.New(params)
	if err != nil {
		return "", err
	}

	_, err = db.ExecContext(
		ctx,
		`
			UPDATE subscribers
			SET stripe_customer_id = $1, updated_at = now()
			WHERE user_id = $2;
		`,
		cust.ID,
		userID,
	)
	if err != nil {
		return "", err
	}

	return cust.ID, nil
}

// setSubscriptionState updates the subscribers row after reconciling
// with Stripe.
func setSubscriptionState(ctx context.Context, userID string, subscribed bool, tier models.Tier, end *time.Time) error {
	if db == nil {
		return errors.New("db not initialized")
	}
	_, err := db.ExecContext(
		ctx,
		`
			UPDATE subscribers
			SET subscribed = $1, subscription_tier = $2, subscription_end = $3, updated_at = now()
			WHERE user_id = $4;
		`,
		subscribed,
		tier,
		nullableTime(end),
		userID,
	)
	return err
}

func updateSubscriberByStripeCustomer(ctx context.Context, stripeCustomerID string, subscribed bool, tier models.Tier) error {
	if db == nil {
		return errors.New("db not initialized")
	}
	if stripeCustomerID == "" {
		return errors.New("missing stripe customer id")
	}
	_, err := db.ExecContext(
		ctx,
		`
			UPDATE subscribers
			SET subscribed = $1, subscription_tier = $2, updated_at = now()
			WHERE stripe_customer_id = $3;
		`,
		subscribed,
		tier,
		stripeCustomerID,
	)
	return err
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

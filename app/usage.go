// Package app enforces monthly scan limits for authenticated users.
package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
)

// unlimitedScans marks tiers with no monthly cap.
const unlimitedScans = -1

func monthStartUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// scanLimitForTier returns the monthly scan cap for a subscriber, or
// unlimitedScans when no cap applies.
func scanLimitForTier(cfg *config.Config, sub models.Subscriber) int {
	if !sub.Subscribed {
		return cfg.Scans.FreeMonthlyLimit
	}
	switch sub.SubscriptionTier {
	case models.TierBasic:
		return cfg.Scans.BasicMonthlyLimit
	default:
		return unlimitedScans
	}
}

// checkScanUsageDB reports how many scans the user has left this month
// without committing an increment. The counter lazily resets when the
// stored period start predates the current calendar month; there is no
// external reset job.
func checkScanUsageDB(ctx context.Context, userID string) (models.ScanUsage, error) {
	return scanUsageTx(ctx, userID, false)
}

// commitScanUsageDB increments the user's monthly counter. Called only
// after a product was positively identified.
func commitScanUsageDB(ctx context.Context, userID string) error {
	_, err := scanUsageTx(ctx, userID, true)
	return err
}

func scanUsageTx(ctx context.Context, userID string, commit bool) (models.ScanUsage, error) {
	if db == nil {
		return models.ScanUsage{}, errors.New("db not initialized")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return models.ScanUsage{}, err
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return models.ScanUsage{}, err
	}
	defer tx.Rollback()

	sub, err := getSubscriberForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := insertDefaultSubscriber(ctx, tx, userID); err != nil {
				return models.ScanUsage{}, err
			}
			sub, err = getSubscriberForUpdate(ctx, tx, userID)
		}
		if err != nil {
			return models.ScanUsage{}, err
		}
	}

	now := time.Now()
	currentMonthStart := monthStartUTC(now)
	resetUsage := sub.UsagePeriodStart.Before(currentMonthStart)
	if resetUsage {
		sub.ScansUsedThisMonth = 0
		sub.UsagePeriodStart = currentMonthStart
	}

	if commit {
		sub.ScansUsedThisMonth++
	}

	if resetUsage || commit {
		if err := updateSubscriberUsage(ctx, tx, userID, sub.ScansUsedThisMonth, sub.UsagePeriodStart); err != nil {
			return models.ScanUsage{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.ScanUsage{}, err
	}

	usage := models.ScanUsage{IsSubscribed: sub.Subscribed}
	limit := scanLimitForTier(cfg, sub)
	if limit == unlimitedScans {
		usage.ScansRemaining = unlimitedScans
		return usage, nil
	}
	usage.ScansRemaining = limit - sub.ScansUsedThisMonth
	if usage.ScansRemaining < 0 {
		usage.ScansRemaining = 0
	}
	return usage, nil
}

func getSubscriberForUpdate(ctx context.Context, tx *sql.Tx, userID string) (models.Subscriber, error) {
	var sub models.Subscriber
	var tier sql.NullString
	err := tx.QueryRowContext(ctx, `
		SELECT subscribed, subscription_tier, scans_used_this_month, usage_period_start
		FROM subscribers
		WHERE user_id = $1
		FOR UPDATE;
	`, userID).Scan(&sub.Subscribed, &tier, &sub.ScansUsedThisMonth, &sub.UsagePeriodStart)
	if err != nil {
		return models.Subscriber{}, err
	}
	sub.UserID = userID
	if tier.Valid {
		sub.SubscriptionTier = models.Tier(tier.String)
	} else {
		sub.SubscriptionTier = models.TierFree
	}
	return sub, nil
}

func insertDefaultSubscriber(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subscribers (user_id, subscribed, subscription_tier, scans_used_this_month, usage_period_start)
		VALUES ($1, false, $2, 0, $3)
		ON CONFLICT (user_id) DO NOTHING;
	`, userID, models.TierFree, monthStartUTC(time.Now()))
	return err
}

func updateSubscriberUsage(ctx context.Context, tx *sql.Tx, userID string, used int, periodStart time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE subscribers
		SET scans_used_this_month = $1, usage_period_start = $2, updated_at = now()
		WHERE user_id = $3;
	`, used, periodStart, userID)
	return err
}

package app

import (
	"net/http"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
	"github.com/ZakirShahzad/allergy-med-scan-guide/auth"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the subscriber snapshot the UI renders its progress bars
// from: subscription flags plus monthly scan usage.
func Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load config"})
		return
	}

	if db == nil {
		c.JSON(http.StatusOK, gin.H{
			"subscribed":            false,
			"subscription_tier":     models.TierFree,
			"subscription_end":      nil,
			"scans_used_this_month": 0,
			"monthly_limit":         cfg.Scans.FreeMonthlyLimit,
			"scans_remaining":       cfg.Scans.FreeMonthlyLimit,
		})
		return
	}

	sub, ok := subscriberOrDefault(c, claims.Subject)
	if !ok {
		return
	}

	// The stored counter may belong to a previous month; render it as
	// zero until the next analysis lazily resets the row.
	used := sub.ScansUsedThisMonth
	if sub.UsagePeriodStart.Before(monthStartUTC(time.Now())) {
		used = 0
	}

	limit := scanLimitForTier(cfg, sub)
	remaining := unlimitedScans
	if limit != unlimitedScans {
		remaining = limit - used
		if remaining < 0 {
			remaining = 0
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"subscribed":            sub.Subscribed,
		"subscription_tier":     sub.SubscriptionTier,
		"subscription_end":      sub.SubscriptionEnd,
		"scans_used_this_month": used,
		"monthly_limit":         limit,
		"scans_remaining":       remaining,
	})
}

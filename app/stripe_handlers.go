package app

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
	"github.com/ZakirShahzad/allergy-med-scan-guide/auth"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	sub "github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Seams for billing handler tests; production wiring stays on the
// Stripe-backed implementations.
var (
	ensureCustomer      = ensureStripeCustomer
	activeSubscriptions = listActiveSubscriptions
	cancelStripeSub     = cancelStripeSubscription
	saveSubscription    = setSubscriptionState
)

func listActiveSubscriptions(customerID string) ([]*stripe.Subscription, error) {
	var out []*stripe.Subscription
	iter := sub.List(&stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	})
	for iter.Next() {
		out = append(out, iter.Subscription())
	}
	return out, iter.Err()
}

func cancelStripeSubscription(id string) (*stripe.Subscription, error) {
	return sub.Cancel(id, nil)
}

type checkoutRequest struct {
	PlanID string `json:"planId"`
}

// CreateCheckoutSession starts a Stripe Checkout Session for the authenticated user.
func CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe checkout config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	var priceID string
	switch req.PlanID {
	case "basic":
		priceID = cfg.Stripe.PriceIDBasicMonthly
	case "premium":
		priceID = cfg.Stripe.PriceIDPremiumMonthly
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plan"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if priceID == "" || frontendURL == "" {
		log.Printf("missing Stripe config: price_id=%t frontend_url=%t", priceID != "", frontendURL != "")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("ensureStripeCustomer failed for user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(stripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(frontendURL + "/payment-success"),
		CancelURL:  stripe.String(frontendURL + "/payment-cancel"),
	}

	sess, err := session.New(params)
	if err != nil {
		log.Printf("stripe checkout session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("portal config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		log.Printf("missing Stripe config: frontend_url=false")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("portal lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(stripeCustomerID),
		ReturnURL: stripe.String(frontendURL + "/billing"),
	}

	sess, err := portal.New(params)
	if err != nil {
		log.Printf("stripe portal session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// CheckSubscription reconciles the subscribers row with Stripe and
// returns the refreshed snapshot. The client SDK calls this on a
// cooldown; a 429 from it trips the client-side circuit breaker.
func CheckSubscription(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	stripeCustomerID, err := ensureCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("check-subscription customer lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}

	subs, err := activeSubscriptions(stripeCustomerID)
	if err != nil {
		log.Printf("check-subscription stripe list failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check subscription"})
		return
	}

	subscribed := false
	tier := models.TierFree
	var periodEnd *time.Time

	for _, s := range subs {
		subscribed = true
		end := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		if periodEnd == nil || end.After(*periodEnd) {
			periodEnd = &end
		}
		if len(s.Items.Data) > 0 && s.Items.Data[0].Price != nil {
			tier = tierForAmount(s.Items.Data[0].Price.UnitAmount)
		}
	}

	if err := saveSubscription(c.Request.Context(), claims.Subject, subscribed, tier, periodEnd); err != nil {
		log.Printf("check-subscription update failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscriber"})
		return
	}

	snapshot, ok := subscriberOrDefault(c, claims.Subject)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"subscribed":            snapshot.Subscribed,
		"subscription_tier":     snapshot.SubscriptionTier,
		"subscription_end":      snapshot.SubscriptionEnd,
		"scans_used_this_month": snapshot.ScansUsedThisMonth,
	})
}

// CancelSubscription cancels every active subscription for the
// authenticated user. The subscriber keeps access until the paid
// period ends: subscribed stays true with the tier cleared and
// subscription_end recorded; the customer.subscription.deleted webhook
// performs the final downgrade.
func CancelSubscription(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	stripeCustomerID, err := ensureCustomer(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		log.Printf("cancel-subscription customer lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}

	subs, err := activeSubscriptions(stripeCustomerID)
	if err != nil {
		log.Printf("cancel-subscription stripe list failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel subscription"})
		return
	}
	if len(subs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no active subscription found to cancel"})
		return
	}

	var cancelled int
	var periodEnd *time.Time

	for _, s := range subs {
		log.Printf("cancelling subscription %s for user=%s", s.ID, claims.Subject)
		cancelledSub, err := cancelStripeSub(s.ID)
		if err != nil {
			log.Printf("cancel failed sub=%s err=%v", s.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel subscription"})
			return
		}
		cancelled++
		if cancelledSub.CurrentPeriodEnd > 0 {
			end := time.Unix(cancelledSub.CurrentPeriodEnd, 0).UTC()
			if periodEnd == nil || end.After(*periodEnd) {
				periodEnd = &end
			}
		}
	}

	if err := saveSubscription(c.Request.Context(), claims.Subject, true, models.TierFree, periodEnd); err != nil {
		log.Printf("cancel-subscription update failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscriber"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "cancelled",
		"cancelled_count":  cancelled,
		"subscription_end": periodEnd,
	})
}

// StripeWebhook handles Stripe subscription events and updates subscriber rows.
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("stripe webhook config load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe session unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}
		customerID := ""
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}
		if customerID == "" {
			log.Printf("stripe session missing customer id")
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}

		if err := updateSubscriberByStripeCustomer(c.Request.Context(), customerID, true, tierForAmount(sess.AmountTotal)); err != nil {
			log.Printf("stripe subscription upgrade failed customer=%s err=%v", customerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscriber"})
			return
		}
	case "customer.subscription.deleted":
		var s stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		customerID := ""
		if s.Customer != nil {
			customerID = s.Customer.ID
		}
		if customerID == "" {
			log.Printf("stripe subscription missing customer id")
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing customer id"})
			return
		}

		if err := updateSubscriberByStripeCustomer(c.Request.Context(), customerID, false, models.TierFree); err != nil {
			log.Printf("stripe subscription downgrade failed customer=%s err=%v", customerID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscriber"})
			return
		}
	default:
		// Intentionally ignore unhandled events.
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

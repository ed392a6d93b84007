package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// functionPaths maps remote function names to API routes.
var functionPaths = map[string]string{
	FnAnalyzeMedication:  "/analyze-medication",
	FnCheckSubscription:  "/api/billing/check-subscription",
	FnCreateCheckout:     "/api/billing/create-checkout-session",
	FnCancelSubscription: "/api/billing/cancel-subscription",
	FnCustomerPortal:     "/api/billing/portal-session",
}

// StatusError is a non-2xx response that was not a typed quota error.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string { return fmt.Sprintf("http %d: %s", e.Status, e.Body) }

// ScanLimitError is the decoded structured 429 the analysis endpoint
// returns when the monthly scan quota is exhausted. It is distinct
// from a generic failure so the UI can render an upgrade prompt.
type ScanLimitError struct {
	Message        string `json:"message"`
	ScansRemaining int    `json:"scans_remaining"`
	IsSubscribed   bool   `json:"is_subscribed"`
}

func (e *ScanLimitError) Error() string { return "scan_limit_reached: " + e.Message }

// Client invokes remote functions over HTTP, gating every call through
// the per-function rate limiter.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	limiter *RateLimiter
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 90 * time.Second},
		limiter: NewRateLimiter(),
	}
}

// Limiter exposes the rate limiter for UI call-budget displays.
func (c *Client) Limiter() *RateLimiter { return c.limiter }

// Invoke posts body to the named function and decodes the JSON
// response into out (which may be nil). A denied rate-limit check is
// returned as *RateLimitError without touching the network.
func (c *Client) Invoke(ctx context.Context, function string, body, out any) error {
	path, ok := functionPaths[function]
	if !ok {
		return fmt.Errorf("unknown function %q", function)
	}

	if !c.limiter.CanExecute(function) {
		return &RateLimitError{Function: function, ResetAt: c.limiter.ResetTime(function)}
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}

	if res.StatusCode == http.StatusTooManyRequests {
		var limited struct {
			Error string `json:"error"`
			ScanLimitError
		}
		if json.Unmarshal(raw, &limited) == nil && limited.Error == "scan_limit_reached" {
			return &limited.ScanLimitError
		}
		return &StatusError{Status: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &StatusError{Status: res.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out != nil {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// NewSubscriptionMonitorFor wires a monitor to this client's
// check-subscription function. The local fallback reads /me, which
// never round-trips to Stripe.
func (c *Client) NewSubscriptionMonitorFor() *SubscriptionMonitor {
	check := func(ctx context.Context) (SubscriptionRow, error) {
		var row SubscriptionRow
		if err := c.Invoke(ctx, FnCheckSubscription, nil, &row); err != nil {
			return SubscriptionRow{}, err
		}
		return row, nil
	}
	fetch := func(ctx context.Context) (SubscriptionRow, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
		if err != nil {
			return SubscriptionRow{}, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		res, err := c.httpc.Do(req)
		if err != nil {
			return SubscriptionRow{}, err
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
			return SubscriptionRow{}, &StatusError{Status: res.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		var row SubscriptionRow
		if err := json.NewDecoder(res.Body).Decode(&row); err != nil {
			return SubscriptionRow{}, err
		}
		return row, nil
	}
	return NewSubscriptionMonitor(check, fetch)
}

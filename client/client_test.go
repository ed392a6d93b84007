package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestInvokeUnknownFunction(t *testing.T) {
	c := New("http://localhost", "")
	if err := c.Invoke(context.Background(), "no-such-function", nil, nil); err == nil {
		t.Fatalf("expected error for unknown function")
	}
}

func TestInvokePostsJSONWithBearerToken(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"productName": "Apple"})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "tok-123")

	var out struct {
		ProductName string `json:"productName"`
	}
	err := c.Invoke(context.Background(), FnAnalyzeMedication, map[string]string{"productName": "apple"}, &out)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if gotPath != "/analyze-medication" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if gotBody["productName"] != "apple" {
		t.Fatalf("body = %v", gotBody)
	}
	if out.ProductName != "Apple" {
		t.Fatalf("out = %+v", out)
	}
}

func TestInvokeDeniedLocallySkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	for i := 0; i < 2; i++ {
		if err := c.Invoke(context.Background(), FnCustomerPortal, nil, nil); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}

	err := c.Invoke(context.Background(), FnCustomerPortal, nil, nil)
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected *RateLimitError, got %v", err)
	}
	if rateErr.Function != FnCustomerPortal {
		t.Fatalf("rateErr.Function = %q", rateErr.Function)
	}
	if hits.Load() != 2 {
		t.Fatalf("server hits = %d, want 2 (denied call must not reach network)", hits.Load())
	}
}

func TestInvokeDecodesScanLimit429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":           "scan_limit_reached",
			"message":         "You have reached your monthly scan limit. Please upgrade to continue scanning.",
			"scans_remaining": 0,
			"is_subscribed":   false,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.Invoke(context.Background(), FnAnalyzeMedication, map[string]string{"productName": "apple"}, nil)

	var limitErr *ScanLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected *ScanLimitError, got %v", err)
	}
	if limitErr.ScansRemaining != 0 || limitErr.IsSubscribed {
		t.Fatalf("unexpected limit error: %+v", limitErr)
	}
}

func TestInvokeGeneric429IsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.Invoke(context.Background(), FnAnalyzeMedication, nil, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusTooManyRequests {
		t.Fatalf("status = %d", statusErr.Status)
	}
}

func TestInvokeServerErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	err := c.Invoke(context.Background(), FnCheckSubscription, nil, nil)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusInternalServerError || statusErr.Body != "boom" {
		t.Fatalf("unexpected: %+v", statusErr)
	}
}

func TestMonitorFallsBackToMeEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/billing/check-subscription":
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte("slow down"))
		case "/me":
			json.NewEncoder(w).Encode(SubscriptionRow{Subscribed: true, SubscriptionTier: "basic"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	m := c.NewSubscriptionMonitorFor()

	row, err := m.Refresh(context.Background(), false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !row.Subscribed || row.SubscriptionTier != "basic" {
		t.Fatalf("expected /me row, got %+v", row)
	}
	if got := m.State(); got != StateDisabled {
		t.Fatalf("State = %v, want disabled after 429", got)
	}
}

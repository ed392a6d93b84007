// Package client is the Go SDK for the analysis API. It carries the
// app-side call budget and subscription caching logic so the mobile
// shell stays a thin rendering layer.
package client

import (
	"fmt"
	"sync"
	"time"
)

// Remote function names the SDK knows how to call.
const (
	FnAnalyzeMedication  = "analyze-medication"
	FnCheckSubscription  = "check-subscription"
	FnCreateCheckout     = "create-checkout"
	FnCancelSubscription = "cancel-subscription"
	FnCustomerPortal     = "customer-portal"
)

const (
	defaultCallLimit = 10
	rateLimitWindow  = 60 * time.Second
)

// rateLimitEntry tracks calls to one remote function inside the
// current window.
type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// RateLimiter gates outbound calls to named remote functions. It is
// advisory and per-process only: real quota enforcement lives in the
// server-side scan counter. Its job is to stop accidental call storms.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	limits  map[string]int
	entries map[string]*rateLimitEntry
}

// NewRateLimiter builds a limiter with the standard per-function call
// budget: subscription checks and billing actions are tight, analysis
// calls are looser.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		now: time.Now,
		limits: map[string]int{
			FnCheckSubscription:  5,
			FnAnalyzeMedication:  20,
			FnCreateCheckout:     3,
			FnCancelSubscription: 2,
			FnCustomerPortal:     2,
		},
		entries: make(map[string]*rateLimitEntry),
	}
}

func (r *RateLimiter) limitFor(name string) int {
	if limit, ok := r.limits[name]; ok {
		return limit
	}
	return defaultCallLimit
}

// CanExecute reports whether a call to the named function is within
// budget, consuming one slot when it is.
func (r *RateLimiter) CanExecute(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[name]
	if !ok || now.After(entry.resetTime) {
		entry = &rateLimitEntry{resetTime: now.Add(rateLimitWindow)}
		r.entries[name] = entry
	}

	if entry.count >= r.limitFor(name) {
		return false
	}
	entry.count++
	return true
}

// RemainingCalls reports how many calls are left in the current window.
func (r *RateLimiter) RemainingCalls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := r.limitFor(name)
	entry, ok := r.entries[name]
	if !ok || r.now().After(entry.resetTime) {
		return limit
	}
	remaining := limit - entry.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResetTime reports when the window for the named function ends.
func (r *RateLimiter) ResetTime(name string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[name]; ok {
		return entry.resetTime
	}
	return r.now()
}

// RateLimitError is returned when the local call budget is exhausted.
// No retry is scheduled automatically; ResetAt tells the caller when
// to try again.
type RateLimitError struct {
	Function string
	ResetAt  time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, try again after %s", e.Function, e.ResetAt.Format(time.Kitchen))
}

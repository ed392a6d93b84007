package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MonitorState is the subscription monitor's position in its
// check/cooldown/disable cycle.
type MonitorState int

const (
	StateIdle MonitorState = iota
	StateChecking
	StateCooldown
	StateDisabled
)

func (s MonitorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateCooldown:
		return "cooldown"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

const (
	// Remote checks are expensive (they round-trip to Stripe), so
	// redundant ones are suppressed for a while after each success.
	checkCooldown = 5 * time.Minute
	// A quota error from the check endpoint disables remote checking
	// entirely for this window. No half-open probing.
	disableWindow = 30 * time.Minute
)

// SubscriptionRow mirrors the subscribers table fields the UI consumes.
type SubscriptionRow struct {
	Subscribed         bool       `json:"subscribed"`
	SubscriptionTier   string     `json:"subscription_tier"`
	SubscriptionEnd    *time.Time `json:"subscription_end"`
	ScansUsedThisMonth int        `json:"scans_used_this_month"`
}

// CheckFunc performs the remote subscription check (Stripe reconcile).
type CheckFunc func(ctx context.Context) (SubscriptionRow, error)

// FetchFunc reads the last known local row without touching Stripe.
type FetchFunc func(ctx context.Context) (SubscriptionRow, error)

// SubscriptionMonitor caches the subscription row and decides when a
// remote check is worth making. The cache is never strongly consistent
// with server truth between refreshes; the UI degrades to "stale but
// available" instead of blocking.
type SubscriptionMonitor struct {
	mu            sync.Mutex
	now           func() time.Time
	check         CheckFunc
	fetch         FetchFunc
	lastCheck     time.Time
	disabledUntil time.Time
	cached        SubscriptionRow
	hasCached     bool
}

func NewSubscriptionMonitor(check CheckFunc, fetch FetchFunc) *SubscriptionMonitor {
	return &SubscriptionMonitor{
		now:   time.Now,
		check: check,
		fetch: fetch,
	}
}

// State reports where the monitor currently is in its cycle.
func (m *SubscriptionMonitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Before(m.disabledUntil) {
		return StateDisabled
	}
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < checkCooldown {
		return StateCooldown
	}
	return StateIdle
}

// Cached returns the last known row, if any.
func (m *SubscriptionMonitor) Cached() (SubscriptionRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cached, m.hasCached
}

// Refresh returns the freshest subscription row it can get. The remote
// check is skipped while disabled, and while inside the cooldown unless
// force is set (the manual "refresh" action). Any failure falls back to
// local data rather than an error, so callers always get something
// renderable; the error is non-nil only when no row exists at all.
func (m *SubscriptionMonitor) Refresh(ctx context.Context, force bool) (SubscriptionRow, error) {
	m.mu.Lock()
	now := m.now()

	if now.Before(m.disabledUntil) {
		m.mu.Unlock()
		return m.localOrCached(ctx)
	}
	if !force && !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < checkCooldown {
		if m.hasCached {
			row := m.cached
			m.mu.Unlock()
			return row, nil
		}
		m.mu.Unlock()
		return m.localOrCached(ctx)
	}
	m.mu.Unlock()

	row, err := m.check(ctx)
	if err != nil {
		m.mu.Lock()
		// A failed attempt still starts the cooldown; an outage must
		// not turn every Refresh into a remote call.
		m.lastCheck = m.now()
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) || isTooManyRequests(err) {
			m.disabledUntil = m.now().Add(disableWindow)
		}
		m.mu.Unlock()
		return m.localOrCached(ctx)
	}

	m.mu.Lock()
	m.cached = row
	m.hasCached = true
	m.lastCheck = m.now()
	m.mu.Unlock()
	return row, nil
}

func (m *SubscriptionMonitor) localOrCached(ctx context.Context) (SubscriptionRow, error) {
	if m.fetch != nil {
		if row, err := m.fetch(ctx); err == nil {
			m.mu.Lock()
			m.cached = row
			m.hasCached = true
			m.mu.Unlock()
			return row, nil
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasCached {
		return m.cached, nil
	}
	return SubscriptionRow{}, errors.New("no subscription data available")
}

func isTooManyRequests(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Status == 429
}

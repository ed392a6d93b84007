package app

import (
	"context"
	"testing"
	"time"

	"github.com/ZakirShahzad/allergy-med-scan-guide/app/config"
	"github.com/ZakirShahzad/allergy-med-scan-guide/app/models"
)

func TestMonthStartUTC(t *testing.T) {
	cases := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "mid month",
			in:   time.Date(2025, 6, 17, 15, 4, 5, 0, time.UTC),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first instant of month",
			in:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "non-utc zone normalized",
			in:   time.Date(2025, 7, 1, 3, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)),
			want: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := monthStartUTC(tc.in); !got.Equal(tc.want) {
				t.Fatalf("monthStartUTC(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestScanLimitForTier(t *testing.T) {
	cfg := &config.Config{Scans: config.ScanConfig{FreeMonthlyLimit: 5, BasicMonthlyLimit: 50}}

	cases := []struct {
		name string
		sub  models.Subscriber
		want int
	}{
		{"free user", models.Subscriber{Subscribed: false, SubscriptionTier: models.TierFree}, 5},
		{"unsubscribed with stale tier", models.Subscriber{Subscribed: false, SubscriptionTier: models.TierPremium}, 5},
		{"basic subscriber", models.Subscriber{Subscribed: true, SubscriptionTier: models.TierBasic}, 50},
		{"premium subscriber", models.Subscriber{Subscribed: true, SubscriptionTier: models.TierPremium}, unlimitedScans},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := scanLimitForTier(cfg, tc.sub); got != tc.want {
				t.Fatalf("scanLimitForTier = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScanUsageWithoutDB(t *testing.T) {
	if db != nil {
		t.Skip("database initialized")
	}
	if _, err := checkScanUsageDB(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error without a database")
	}
	if err := commitScanUsageDB(context.Background(), "u1"); err == nil {
		t.Fatalf("expected error without a database")
	}
}

package reminder

import (
	"testing"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

func TestFireTimes(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	fts := FireTimes(at)
	if len(fts) != 3 {
		t.Fatalf("expected 3 fire times, got %d", len(fts))
	}
	if !fts[0].At.Equal(at.Add(-24*time.Hour)) || fts[0].Recipient != model.RecipientCustomer {
		t.Fatalf("unexpected 24h entry: %+v", fts[0])
	}
	if !fts[1].At.Equal(at.Add(-1*time.Hour)) || fts[1].Recipient != model.RecipientCustomer {
		t.Fatalf("unexpected 1h entry: %+v", fts[1])
	}
	if !fts[2].At.Equal(at.Add(-15*time.Minute)) || fts[2].Recipient != model.RecipientMerchant {
		t.Fatalf("unexpected 15m entry: %+v", fts[2])
	}
}

func TestIsDueBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	window := 5 * time.Minute

	cases := []struct {
		name         string
		scheduledFor time.Time
		want         bool
	}{
		{"exactly now is due", now, true},
		{"inside window", now.Add(-2 * time.Minute), true},
		{"just inside lower bound", now.Add(-window).Add(time.Second), true},
		{"exactly at lower bound is not due", now.Add(-window), false},
		{"older than window", now.Add(-window - time.Second), false},
		{"in the future", now.Add(time.Second), false},
	}
	for _, tc := range cases {
		if got := IsDue(tc.scheduledFor, now, window); got != tc.want {
			t.Fatalf("%s: IsDue(%v) = %v, want %v", tc.name, tc.scheduledFor, got, tc.want)
		}
	}
}

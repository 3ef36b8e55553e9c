package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

type fakeStore struct {
	mu        sync.Mutex
	subs      map[string]model.Subscription
	merchants map[string]model.Merchant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:      make(map[string]model.Subscription),
		merchants: make(map[string]model.Merchant),
	}
}

func (s *fakeStore) ListActiveExpiringBefore(_ context.Context, cutoff time.Time) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Subscription
	for _, sub := range s.subs {
		if sub.Status == model.SubscriptionActive && !sub.ExpiryDate.After(cutoff) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) GetMerchant(_ context.Context, id string) (model.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.merchants[id]
	if !ok {
		return model.Merchant{}, errors.New("merchant not found")
	}
	return m, nil
}

func (s *fakeStore) Expire(_ context.Context, sub model.Subscription, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.subs[sub.ID]
	if !ok || cur.Status != model.SubscriptionActive {
		return false, nil
	}
	cur.Status = model.SubscriptionExpired
	expiredAt := at
	cur.ExpiredAt = &expiredAt
	s.subs[sub.ID] = cur

	m := s.merchants[sub.MerchantID]
	m.IsActive = false
	m.DeactivatedAt = &expiredAt
	s.merchants[sub.MerchantID] = m
	return true, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	emails  []string // subscription IDs emailed
	notices []string
}

func (n *fakeNotifier) SubscriptionExpiryEmail(_ context.Context, _ model.Merchant, sub model.Subscription) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, sub.ID)
	return nil
}

func (n *fakeNotifier) InAppNotice(_ context.Context, userID, _, _, _ string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, userID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func seed(s *fakeStore, id string, expiry time.Time) {
	s.subs[id] = model.Subscription{
		ID:         id,
		MerchantID: "m-" + id,
		Status:     model.SubscriptionActive,
		ExpiryDate: expiry,
	}
	s.merchants["m-"+id] = model.Merchant{
		ID:       "m-" + id,
		Email:    id + "@example.com",
		IsActive: true,
	}
}

func TestDaysUntilExpiryCeiling(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		expiry time.Time
		want   int
	}{
		{now.Add(24 * time.Hour), 1},
		{now.Add(25 * time.Hour), 2},
		{now.Add(30 * time.Minute), 1},
		{now, 0},
		{now.Add(-3 * time.Hour), 0},
		{now.Add(-50 * time.Hour), -2},
	}
	for _, c := range cases {
		if got := DaysUntilExpiry(c.expiry, now); got != c.want {
			t.Errorf("DaysUntilExpiry(%v) = %d, want %d", c.expiry, got, c.want)
		}
	}
}

func TestShouldNotifyTiers(t *testing.T) {
	want := map[int]bool{
		1: true, 3: true, 7: true, // daily inside the last week
		8: false, 9: true, 10: false, 12: true, 14: false, // every 3rd day
		15: false, 21: true, 28: true, 30: false, // weekly beyond two weeks
	}
	for days, expect := range want {
		if got := ShouldNotify(days); got != expect {
			t.Errorf("ShouldNotify(%d) = %v, want %v", days, got, expect)
		}
	}
}

func TestSweepWarnsOnCadenceOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seed(store, "sub-d9", now.Add(9*24*time.Hour))   // 9 % 3 == 0: warn
	seed(store, "sub-d10", now.Add(10*24*time.Hour)) // 10 % 3 != 0: silent
	notifier := &fakeNotifier{}

	eng := NewEngine(store, notifier, testLogger())
	if err := eng.Sweep(context.Background(), now); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(notifier.emails) != 1 || notifier.emails[0] != "sub-d9" {
		t.Fatalf("emails = %v, want exactly [sub-d9]", notifier.emails)
	}
	if len(notifier.notices) != 1 {
		t.Fatalf("notices = %v, want one in-app notice", notifier.notices)
	}
	if store.subs["sub-d9"].Status != model.SubscriptionActive {
		t.Fatalf("warning must not change subscription status")
	}
}

func TestSweepExpiresAndDeactivatesMerchant(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seed(store, "sub-past", now.Add(-2*time.Hour))
	notifier := &fakeNotifier{}

	eng := NewEngine(store, notifier, testLogger())
	if err := eng.Sweep(context.Background(), now); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	sub := store.subs["sub-past"]
	if sub.Status != model.SubscriptionExpired {
		t.Fatalf("status = %q, want expired", sub.Status)
	}
	if sub.ExpiredAt == nil || !sub.ExpiredAt.Equal(now) {
		t.Fatalf("ExpiredAt = %v, want %v", sub.ExpiredAt, now)
	}
	m := store.merchants["m-sub-past"]
	if m.IsActive {
		t.Fatalf("merchant must be deactivated with the expiry")
	}
	if len(notifier.emails) != 1 {
		t.Fatalf("emails = %v, want exactly one final notice", notifier.emails)
	}
}

func TestSecondSweepIsSilent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seed(store, "sub-past", now.Add(-time.Hour))
	notifier := &fakeNotifier{}
	eng := NewEngine(store, notifier, testLogger())

	if err := eng.Sweep(context.Background(), now); err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	if err := eng.Sweep(context.Background(), now.Add(24*time.Hour)); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}

	if len(notifier.emails) != 1 {
		t.Fatalf("emails = %v, want the final notice sent once", notifier.emails)
	}
}

func TestSweepIsolatesMissingMerchant(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	seed(store, "sub-ok", now.Add(3*24*time.Hour))
	store.subs["sub-orphan"] = model.Subscription{
		ID:         "sub-orphan",
		MerchantID: "m-gone",
		Status:     model.SubscriptionActive,
		ExpiryDate: now.Add(2 * 24 * time.Hour),
	}
	notifier := &fakeNotifier{}

	eng := NewEngine(store, notifier, testLogger())
	if err := eng.Sweep(context.Background(), now); err != nil {
		t.Fatalf("Sweep must not fail on a single bad record: %v", err)
	}
	if len(notifier.emails) != 1 || notifier.emails[0] != "sub-ok" {
		t.Fatalf("emails = %v, want [sub-ok]", notifier.emails)
	}
}

package notify

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

type fakeEmail struct {
	mu   sync.Mutex
	sent []string // recipients
	fail bool
}

func (f *fakeEmail) Send(to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakePush struct {
	mu      sync.Mutex
	sent    [][]string
	invalid []string
}

func (f *fakePush) SendToTokens(_ context.Context, tokens []string, _, _ string, _ map[string]string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tokens)
	return f.invalid, nil
}

type fakeDirectory struct {
	mu        sync.Mutex
	merchants map[string]model.Merchant
	pruned    map[string][]string
}

func (f *fakeDirectory) GetMerchant(_ context.Context, id string) (model.Merchant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.merchants[id]
	if !ok {
		return model.Merchant{}, errors.New("merchant not found")
	}
	return m, nil
}

func (f *fakeDirectory) RemoveFCMTokens(_ context.Context, merchantID string, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pruned == nil {
		f.pruned = make(map[string][]string)
	}
	f.pruned[merchantID] = append(f.pruned[merchantID], tokens...)
	return nil
}

type fakeNotificationStore struct {
	mu   sync.Mutex
	rows []model.Notification
}

func (f *fakeNotificationStore) CreateNotification(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, n)
	return nil
}

func newTestDispatcher(email *fakeEmail, push *fakePush, dir *fakeDirectory, store *fakeNotificationStore) *Dispatcher {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewDispatcher(email, NewNoopSMSSender(), push, store, dir, logger)
}

func customerReminder() model.Reminder {
	return model.Reminder{
		ID:            "rem-1",
		AppointmentID: "appt-1",
		RecipientType: model.RecipientCustomer,
		TimeUntil:     "24 hours",
		Snapshot: model.ReminderSnapshot{
			CustomerName:  "Amina",
			CustomerEmail: "amina@example.com",
			ServiceName:   "Haircut",
			DateTime:      time.Now().Add(24 * time.Hour).Format(time.RFC3339),
			MerchantName:  "Glow Studio",
			MerchantID:    "m-1",
		},
	}
}

func TestSendReminderRoutesCustomerToEmail(t *testing.T) {
	email := &fakeEmail{}
	push := &fakePush{}
	dir := &fakeDirectory{merchants: map[string]model.Merchant{}}
	d := newTestDispatcher(email, push, dir, &fakeNotificationStore{})

	if err := d.SendReminder(context.Background(), customerReminder()); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if len(email.sent) != 1 || email.sent[0] != "amina@example.com" {
		t.Fatalf("email.sent = %v, want [amina@example.com]", email.sent)
	}
	if len(push.sent) != 0 {
		t.Fatalf("customer reminder must not push, got %v", push.sent)
	}
}

func TestSendReminderRoutesMerchantToPush(t *testing.T) {
	email := &fakeEmail{}
	push := &fakePush{}
	dir := &fakeDirectory{merchants: map[string]model.Merchant{
		"m-1": {ID: "m-1", FCMTokens: []string{"tok-a", "tok-b"}},
	}}
	d := newTestDispatcher(email, push, dir, &fakeNotificationStore{})

	rem := customerReminder()
	rem.RecipientType = model.RecipientMerchant
	rem.TimeUntil = "15 minutes"
	if err := d.SendReminder(context.Background(), rem); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if len(push.sent) != 1 || len(push.sent[0]) != 2 {
		t.Fatalf("push.sent = %v, want one send to two tokens", push.sent)
	}
	if len(email.sent) != 0 {
		t.Fatalf("merchant reminder must not email, got %v", email.sent)
	}
}

func TestPushToMerchantPrunesDeadTokens(t *testing.T) {
	push := &fakePush{invalid: []string{"tok-dead"}}
	dir := &fakeDirectory{merchants: map[string]model.Merchant{}}
	d := newTestDispatcher(&fakeEmail{}, push, dir, &fakeNotificationStore{})

	m := model.Merchant{ID: "m-9", FCMTokens: []string{"tok-live", "tok-dead"}}
	res := d.PushToMerchant(context.Background(), m, "t", "b", nil)
	if !res.Success {
		t.Fatalf("PushToMerchant: %s", res.Error)
	}
	if got := dir.pruned["m-9"]; len(got) != 1 || got[0] != "tok-dead" {
		t.Fatalf("pruned = %v, want [tok-dead]", got)
	}
}

func TestPushToMerchantNoTokensIsQuietSuccess(t *testing.T) {
	push := &fakePush{}
	d := newTestDispatcher(&fakeEmail{}, push, &fakeDirectory{merchants: map[string]model.Merchant{}}, &fakeNotificationStore{})

	res := d.PushToMerchant(context.Background(), model.Merchant{ID: "m-0"}, "t", "b", nil)
	if !res.Success {
		t.Fatalf("want success for tokenless merchant, got %s", res.Error)
	}
	if len(push.sent) != 0 {
		t.Fatalf("no provider call expected, got %v", push.sent)
	}
}

func TestEmailFailureSurfacesInResult(t *testing.T) {
	email := &fakeEmail{fail: true}
	d := newTestDispatcher(email, &fakePush{}, &fakeDirectory{merchants: map[string]model.Merchant{}}, &fakeNotificationStore{})

	res := d.SendEmail(context.Background(), "x@example.com", "s", "<p>b</p>")
	if res.Success || res.Error == "" {
		t.Fatalf("want failure result, got %+v", res)
	}
	if err := d.SendReminder(context.Background(), customerReminder()); err == nil {
		t.Fatalf("SendReminder must propagate email failure")
	}
}

func TestInAppNoticePersists(t *testing.T) {
	store := &fakeNotificationStore{}
	d := newTestDispatcher(&fakeEmail{}, &fakePush{}, &fakeDirectory{merchants: map[string]model.Merchant{}}, store)

	err := d.InAppNotice(context.Background(), "m-1", "Subscription Expiry Notice", "renew soon", "warning", map[string]any{"days": 3})
	if err != nil {
		t.Fatalf("InAppNotice: %v", err)
	}
	if len(store.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.rows))
	}
	n := store.rows[0]
	if n.UserID != "m-1" || n.Severity != "warning" || n.ID == "" {
		t.Fatalf("unexpected notification row: %+v", n)
	}
}

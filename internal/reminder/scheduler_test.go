package reminder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

type fakeStore struct {
	mu        sync.Mutex
	reminders map[string]*model.Reminder
	nextID    int
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{reminders: map[string]*model.Reminder{}}
}

func (f *fakeStore) Create(_ context.Context, rem *model.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	rem.ID = fmt.Sprintf("rem-%d", f.nextID)
	cp := *rem
	f.reminders[rem.ID] = &cp
	return nil
}

func (f *fakeStore) QueryDue(_ context.Context, now time.Time, lookback time.Duration) ([]model.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Reminder
	for _, r := range f.reminders {
		if !r.Sent && !r.Failed && IsDue(r.ScheduledFor, now, lookback) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkSent(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return false, errors.New("not found")
	}
	if r.Sent || r.Failed {
		return false, nil
	}
	r.Sent = true
	t := at
	r.SentAt = &t
	return true, nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id string, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reminders[id]
	if !ok {
		return errors.New("not found")
	}
	if r.Failed {
		return nil
	}
	r.Failed = true
	r.Error = msg
	return nil
}

func (f *fakeStore) CancelPending(_ context.Context, appointmentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, r := range f.reminders {
		if r.AppointmentID == appointmentID && !r.Sent && !r.Failed {
			delete(f.reminders, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CountMissed(_ context.Context, now time.Time, lookback time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.reminders {
		if !r.Sent && !r.Failed && !r.ScheduledFor.After(now.Add(-lookback)) {
			n++
		}
	}
	return n, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	sent   []string
	failFn func(rem model.Reminder) error
}

func (f *fakeNotifier) SendReminder(_ context.Context, rem model.Reminder) error {
	if f.failFn != nil {
		if err := f.failFn(rem); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, rem.ID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScheduler(store Store, n Notifier) *Scheduler {
	return NewScheduler(store, n, testLogger(), Config{Lookback: 5 * time.Minute, Fanout: 4})
}

func testAppointment(at time.Time) (model.Appointment, model.Merchant) {
	appt := model.Appointment{
		ID:          "appt-1",
		MerchantID:  "m-1",
		Customer:    model.CustomerInfo{Name: "Dana", Email: "dana@example.com", Phone: "+15550100"},
		ServiceName: "Haircut",
		Price:       40,
		DateTime:    at,
		Status:      model.AppointmentConfirmed,
	}
	merchant := model.Merchant{ID: "m-1", BusinessName: "Shear Genius", Email: "owner@example.com"}
	return appt, merchant
}

func TestScheduleFarFutureCreatesAllThree(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	appt, merchant := testAppointment(now.Add(48 * time.Hour))
	store := newFakeStore()
	s := testScheduler(store, &fakeNotifier{})

	created, err := s.Schedule(context.Background(), appt, merchant, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 reminders, got %d", len(created))
	}
	for _, rem := range created {
		if !rem.ScheduledFor.After(now) {
			t.Fatalf("reminder scheduled in the past: %v", rem.ScheduledFor)
		}
		if rem.Snapshot.MerchantName != "Shear Genius" {
			t.Fatalf("snapshot not embedded: %+v", rem.Snapshot)
		}
	}
	// 24h/customer, 1h/customer, 15m/merchant against the appointment time.
	if !created[0].ScheduledFor.Equal(appt.DateTime.Add(-24 * time.Hour)) {
		t.Fatalf("wrong 24h fire time: %v", created[0].ScheduledFor)
	}
	if created[2].RecipientType != model.RecipientMerchant {
		t.Fatalf("expected merchant recipient for 15m reminder, got %s", created[2].RecipientType)
	}
}

func TestSchedulePartialWindowDropsPastOffsets(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	s := testScheduler(store, &fakeNotifier{})

	// 2h out: only the 1h and 15m offsets are still future.
	appt, merchant := testAppointment(now.Add(2 * time.Hour))
	created, err := s.Schedule(context.Background(), appt, merchant, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 reminders, got %d", len(created))
	}

	// Less than 15m out: nothing is scheduled, nothing fires immediately.
	appt2, _ := testAppointment(now.Add(10 * time.Minute))
	appt2.ID = "appt-2"
	created, err = s.Schedule(context.Background(), appt2, merchant, now)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected 0 reminders for near appointment, got %d", len(created))
	}
}

func TestRescheduleCancelsAndRecreates(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	s := testScheduler(store, &fakeNotifier{})
	appt, merchant := testAppointment(now.Add(48 * time.Hour))

	if _, err := s.Schedule(context.Background(), appt, merchant, now); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	appt.DateTime = now.Add(72 * time.Hour)
	created, err := s.Reschedule(context.Background(), appt, merchant, now)
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 fresh reminders, got %d", len(created))
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.reminders) != 3 {
		t.Fatalf("expected old reminders cancelled, have %d records", len(store.reminders))
	}
	for _, r := range store.reminders {
		if r.Snapshot.DateTime != appt.DateTime.UTC().Format(time.RFC3339) {
			t.Fatalf("snapshot still carries the old time: %s", r.Snapshot.DateTime)
		}
	}
}

func TestSweepSendsDueAndMarksSent(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	n := &fakeNotifier{}
	s := testScheduler(store, n)

	appt, merchant := testAppointment(now.Add(24 * time.Hour)) // 24h reminder due exactly now
	if _, err := s.Schedule(context.Background(), appt, merchant, now.Add(-time.Hour)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	if err := s.Sweep(context.Background(), now); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(n.sent) != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", len(n.sent))
	}

	store.mu.Lock()
	sentCount := 0
	for _, r := range store.reminders {
		if r.Sent {
			sentCount++
			if r.SentAt == nil || !r.SentAt.Equal(now) {
				t.Fatalf("sentAt not recorded: %+v", r)
			}
		}
	}
	store.mu.Unlock()
	if sentCount != 1 {
		t.Fatalf("expected 1 sent record, got %d", sentCount)
	}
}

func TestSweepIsolatesPerRecordFailures(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	n := &fakeNotifier{failFn: func(rem model.Reminder) error {
		if rem.RecipientType == model.RecipientMerchant {
			return errors.New("push channel down")
		}
		return nil
	}}
	s := testScheduler(store, n)

	// Two appointments with reminders due now: one customer, one merchant.
	for i, lead := range []time.Duration{24 * time.Hour, 15 * time.Minute} {
		appt, merchant := testAppointment(now.Add(lead))
		appt.ID = fmt.Sprintf("appt-%d", i)
		if _, err := s.Schedule(context.Background(), appt, merchant, now.Add(-30*time.Minute)); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}

	if err := s.Sweep(context.Background(), now); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	var okCount, failedCount int
	for _, r := range store.reminders {
		if !IsDue(r.ScheduledFor, now, 5*time.Minute) {
			continue
		}
		if r.Failed {
			failedCount++
			if !strings.Contains(r.Error, "push channel down") {
				t.Fatalf("error message not recorded: %+v", r)
			}
		} else if r.Sent {
			okCount++
		}
	}
	if okCount != 1 || failedCount != 1 {
		t.Fatalf("expected 1 sent and 1 failed, got %d/%d", okCount, failedCount)
	}
}

func TestConcurrentSweepsSendOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	store := newFakeStore()
	n := &fakeNotifier{}
	s := testScheduler(store, n)

	appt, merchant := testAppointment(now.Add(24 * time.Hour))
	if _, err := s.Schedule(context.Background(), appt, merchant, now.Add(-time.Hour)); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Sweep(context.Background(), now); err != nil {
				t.Errorf("Sweep failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(n.sent) != 1 {
		t.Fatalf("expected exactly one delivery across overlapping sweeps, got %d", len(n.sent))
	}
}

func TestMarkFailedPreservesFirstError(t *testing.T) {
	store := newFakeStore()
	rem := &model.Reminder{AppointmentID: "a", RecipientType: model.RecipientCustomer, ScheduledFor: time.Now()}
	if err := store.Create(context.Background(), rem); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := store.MarkFailed(context.Background(), rem.ID, "smtp timeout"); err != nil {
		t.Fatalf("first MarkFailed errored: %v", err)
	}
	if err := store.MarkFailed(context.Background(), rem.ID, "push channel down"); err != nil {
		t.Fatalf("second MarkFailed errored: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	r := store.reminders[rem.ID]
	if !r.Failed || r.Error != "smtp timeout" {
		t.Fatalf("first recorded error must stick: %+v", r)
	}
}

func TestMarkSentIdempotent(t *testing.T) {
	store := newFakeStore()
	rem := &model.Reminder{AppointmentID: "a", RecipientType: model.RecipientCustomer, ScheduledFor: time.Now()}
	if err := store.Create(context.Background(), rem); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	claimed, err := store.MarkSent(context.Background(), rem.ID, first)
	if err != nil || !claimed {
		t.Fatalf("first MarkSent: claimed=%v err=%v", claimed, err)
	}
	claimed, err = store.MarkSent(context.Background(), rem.ID, first.Add(time.Minute))
	if err != nil {
		t.Fatalf("second MarkSent errored: %v", err)
	}
	if claimed {
		t.Fatal("second MarkSent must be a no-op")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	r := store.reminders[rem.ID]
	if !r.Sent || r.SentAt == nil || !r.SentAt.Equal(first) {
		t.Fatalf("original sentAt must be preserved: %+v", r)
	}
}

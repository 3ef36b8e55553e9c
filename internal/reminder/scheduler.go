package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

// Store is the persistence surface the scheduler needs. MarkSent doubles as
// the claim primitive: it is a conditional write on sent = false and reports
// whether this caller won the transition, so overlapping sweeps cannot
// double-send. Calling either Mark on an already-terminal record is a no-op.
type Store interface {
	Create(ctx context.Context, rem *model.Reminder) error
	QueryDue(ctx context.Context, now time.Time, lookback time.Duration) ([]model.Reminder, error)
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, errMsg string) error
	CancelPending(ctx context.Context, appointmentID string) (int64, error)
	CountMissed(ctx context.Context, now time.Time, lookback time.Duration) (int64, error)
}

// Notifier delivers one reminder to its recipient. Implementations must not
// panic; a returned error marks the reminder failed, nothing more.
type Notifier interface {
	SendReminder(ctx context.Context, rem model.Reminder) error
}

// EventRecorder publishes delivery outcomes to the event stream. Optional;
// recording is best-effort and never affects the reminder's own state.
type EventRecorder interface {
	ReminderSent(ctx context.Context, rem model.Reminder)
	ReminderFailed(ctx context.Context, rem model.Reminder, errMsg string)
}

type Scheduler struct {
	store    Store
	notifier Notifier
	events   EventRecorder
	logger   *slog.Logger
	lookback time.Duration
	fanout   int
}

type Config struct {
	// Lookback bounds the due window; keep it equal to the sweep interval.
	Lookback time.Duration
	// Fanout caps concurrent deliveries within one sweep.
	Fanout int
	// Events, when set, receives delivery outcomes.
	Events EventRecorder
}

func NewScheduler(store Store, notifier Notifier, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 5 * time.Minute
	}
	if cfg.Fanout <= 0 {
		cfg.Fanout = 8
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		events:   cfg.Events,
		logger:   logger,
		lookback: cfg.Lookback,
		fanout:   cfg.Fanout,
	}
}

// Schedule creates one pending reminder per policy offset whose fire time is
// strictly after now. Offsets already in the past are dropped silently, never
// fired immediately. Returns the created reminders. A store failure aborts the
// whole operation; the caller treats reminders as best-effort and must not
// fail the booking on it.
func (s *Scheduler) Schedule(ctx context.Context, appt model.Appointment, merchant model.Merchant, now time.Time) ([]model.Reminder, error) {
	snapshot := model.ReminderSnapshot{
		CustomerName:  appt.Customer.Name,
		CustomerEmail: appt.Customer.Email,
		CustomerPhone: appt.Customer.Phone,
		ServiceName:   appt.ServiceName,
		Price:         appt.Price,
		DateTime:      appt.DateTime.UTC().Format(time.RFC3339),
		MerchantName:  merchant.BusinessName,
		MerchantID:    merchant.ID,
	}

	var created []model.Reminder
	for _, ft := range FireTimes(appt.DateTime) {
		if !ft.At.After(now) {
			continue
		}
		rem := model.Reminder{
			AppointmentID: appt.ID,
			RecipientType: ft.Recipient,
			ScheduledFor:  ft.At,
			TimeUntil:     ft.Label,
			Snapshot:      snapshot,
			CreatedAt:     now,
		}
		if err := s.store.Create(ctx, &rem); err != nil {
			return created, err
		}
		created = append(created, rem)
	}
	return created, nil
}

// Reschedule cancels the appointment's unsent reminders and schedules a fresh
// set against the new time. The source system left stale reminders behind on a
// time change; cancel-and-recreate is the corrected behavior.
func (s *Scheduler) Reschedule(ctx context.Context, appt model.Appointment, merchant model.Merchant, now time.Time) ([]model.Reminder, error) {
	cancelled, err := s.store.CancelPending(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	if cancelled > 0 {
		s.logger.Info("cancelled stale reminders", "appointment_id", appt.ID, "count", cancelled)
	}
	return s.Schedule(ctx, appt, merchant, now)
}

// Cancel drops the appointment's unsent reminders; used on cancellation and
// deletion. Already-sent records are untouched.
func (s *Scheduler) Cancel(ctx context.Context, appointmentID string) (int64, error) {
	cancelled, err := s.store.CancelPending(ctx, appointmentID)
	if err != nil {
		return 0, err
	}
	if cancelled > 0 {
		s.logger.Info("cancelled pending reminders", "appointment_id", appointmentID, "count", cancelled)
	}
	return cancelled, nil
}

// Sweep processes every pending reminder due in (now-lookback, now]. Each
// record is claimed with a conditional write before delivery; records another
// sweep already claimed are skipped quietly. One record's failure never aborts
// the sweep for the others. Only a store failure before iteration aborts the
// sweep, to be retried on the next tick.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) error {
	due, err := s.store.QueryDue(ctx, now, s.lookback)
	if err != nil {
		return err
	}

	if missed, err := s.store.CountMissed(ctx, now, s.lookback); err == nil && missed > 0 {
		// These fell outside the lookback window and will never fire.
		s.logger.Warn("reminders missed sweep window", "count", missed)
	}

	if len(due) == 0 {
		return nil
	}

	sem := make(chan struct{}, s.fanout)
	var wg sync.WaitGroup
	for _, rem := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(rem model.Reminder) {
			defer wg.Done()
			defer func() { <-sem }()
			s.fire(ctx, rem, now)
		}(rem)
	}
	wg.Wait()

	s.logger.Info("reminder sweep complete", "due", len(due))
	return nil
}

func (s *Scheduler) fire(ctx context.Context, rem model.Reminder, now time.Time) {
	claimed, err := s.store.MarkSent(ctx, rem.ID, now)
	if err != nil {
		s.logger.Error("reminder claim failed", "reminder_id", rem.ID, "err", err)
		return
	}
	if !claimed {
		// Another sweep got there first; expected under overlap, not an error.
		s.logger.Info("reminder already claimed", "reminder_id", rem.ID)
		return
	}

	if err := s.notifier.SendReminder(ctx, rem); err != nil {
		s.logger.Error("reminder delivery failed",
			"reminder_id", rem.ID,
			"appointment_id", rem.AppointmentID,
			"recipient_type", rem.RecipientType,
			"err", err,
		)
		if markErr := s.store.MarkFailed(ctx, rem.ID, err.Error()); markErr != nil {
			s.logger.Error("reminder markFailed failed", "reminder_id", rem.ID, "err", markErr)
		}
		if s.events != nil {
			s.events.ReminderFailed(ctx, rem, err.Error())
		}
		return
	}

	if s.events != nil {
		s.events.ReminderSent(ctx, rem)
	}

	s.logger.Info("reminder sent",
		"reminder_id", rem.ID,
		"appointment_id", rem.AppointmentID,
		"recipient_type", rem.RecipientType,
		"time_until", rem.TimeUntil,
	)
}

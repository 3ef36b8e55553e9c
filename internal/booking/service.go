package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/notify"
	"github.com/zarya-platform/zarya-backend/internal/outbox"
	"github.com/zarya-platform/zarya-backend/internal/reminder"
	"github.com/zarya-platform/zarya-backend/internal/storage"
)

var (
	ErrMerchantInactive  = errors.New("merchant is not active")
	ErrPastDateTime      = errors.New("appointment time must be in the future")
	ErrSlotUnavailable   = errors.New("time slot is no longer available")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// allowedTransitions is the appointment lifecycle. Rescheduling is handled by
// Reschedule, which sets the status itself.
var allowedTransitions = map[string][]string{
	model.AppointmentPending:     {model.AppointmentConfirmed, model.AppointmentCancelled},
	model.AppointmentConfirmed:   {model.AppointmentCompleted, model.AppointmentCancelled},
	model.AppointmentRescheduled: {model.AppointmentConfirmed, model.AppointmentCancelled},
}

func transitionAllowed(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Service orchestrates the appointment lifecycle: persistence, slot claims,
// customer and merchant notifications, reminder scheduling and outbox events.
// The state change and its event commit in one transaction; notifications and
// reminder scheduling run after commit and never roll a booking back.
type Service struct {
	appointments *storage.AppointmentsRepository
	slots        *storage.TimeSlotsRepository
	merchants    *storage.MerchantsRepository
	scheduler    *reminder.Scheduler
	dispatcher   *notify.Dispatcher
	outbox       *outbox.Repository
	logger       *slog.Logger
}

func NewService(
	appointments *storage.AppointmentsRepository,
	slots *storage.TimeSlotsRepository,
	merchants *storage.MerchantsRepository,
	scheduler *reminder.Scheduler,
	dispatcher *notify.Dispatcher,
	outboxRepo *outbox.Repository,
	logger *slog.Logger,
) *Service {
	return &Service{
		appointments: appointments,
		slots:        slots,
		merchants:    merchants,
		scheduler:    scheduler,
		dispatcher:   dispatcher,
		outbox:       outboxRepo,
		logger:       logger,
	}
}

type CreateInput struct {
	MerchantID  string
	Customer    model.CustomerInfo
	ServiceName string
	Price       float64
	DateTime    time.Time
	SlotID      string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (model.Appointment, error) {
	merchant, err := s.merchants.GetMerchant(ctx, in.MerchantID)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("merchant lookup: %w", err)
	}
	if !merchant.IsActive {
		return model.Appointment{}, ErrMerchantInactive
	}
	now := time.Now().UTC()
	if !in.DateTime.After(now) {
		return model.Appointment{}, ErrPastDateTime
	}

	appt := model.Appointment{
		ID:          uuid.NewString(),
		MerchantID:  in.MerchantID,
		Customer:    in.Customer,
		ServiceName: in.ServiceName,
		Price:       in.Price,
		DateTime:    in.DateTime,
		Status:      model.AppointmentPending,
	}

	tx, err := s.appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.appointments.Create(ctx, tx, &appt); err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	if in.SlotID != "" {
		claimed, err := s.slots.Claim(ctx, tx, in.SlotID, appt.ID)
		if err != nil {
			return model.Appointment{}, fmt.Errorf("claim slot: %w", err)
		}
		if !claimed {
			return model.Appointment{}, ErrSlotUnavailable
		}
	}
	if err := s.insertEvent(ctx, tx, appt.ID, outbox.EventAppointmentCreated, map[string]any{
		"appointment_id": appt.ID,
		"merchant_id":    appt.MerchantID,
		"service_name":   appt.ServiceName,
		"date_time":      appt.DateTime,
	}); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	s.afterCreate(ctx, appt, merchant, now)
	return appt, nil
}

// afterCreate sends the booking's notifications and schedules its reminders.
// Failures here are logged; the booking already committed.
func (s *Service) afterCreate(ctx context.Context, appt model.Appointment, merchant model.Merchant, now time.Time) {
	subject, html := notify.AppointmentConfirmationEmail(appt, merchant.BusinessName)
	if res := s.dispatcher.SendEmail(ctx, appt.Customer.Email, subject, html); !res.Success {
		s.logger.Error("confirmation email failed", "appointment_id", appt.ID, "err", res.Error)
	}

	body := fmt.Sprintf("%s booked %s on %s", appt.Customer.Name, appt.ServiceName,
		appt.DateTime.Format("Jan 2 at 3:04 PM"))
	if res := s.dispatcher.PushToMerchant(ctx, merchant, "New Appointment", body, map[string]string{
		"type":           "appointment_created",
		"appointment_id": appt.ID,
	}); !res.Success {
		s.logger.Error("merchant push failed", "appointment_id", appt.ID, "err", res.Error)
	}

	if _, err := s.scheduler.Schedule(ctx, appt, merchant, now); err != nil {
		s.logger.Error("reminder scheduling failed", "appointment_id", appt.ID, "err", err)
	}
}

// ChangeStatus moves the appointment through its lifecycle and notifies the
// customer about the outcome.
func (s *Service) ChangeStatus(ctx context.Context, id, newStatus, reason string) (model.Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !transitionAllowed(current.Status, newStatus) {
		return model.Appointment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, newStatus)
	}

	tx, err := s.appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.appointments.UpdateStatus(ctx, tx, id, newStatus)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("update status: %w", err)
	}
	if newStatus == model.AppointmentCancelled {
		if _, err := s.slots.ReleaseForAppointment(ctx, tx, id); err != nil {
			return model.Appointment{}, fmt.Errorf("release slot: %w", err)
		}
	}
	if err := s.insertEvent(ctx, tx, id, outbox.EventAppointmentStatus, map[string]any{
		"appointment_id": id,
		"merchant_id":    appt.MerchantID,
		"from":           current.Status,
		"to":             newStatus,
		"reason":         reason,
	}); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	s.afterStatusChange(ctx, appt, newStatus, reason)
	return appt, nil
}

func (s *Service) afterStatusChange(ctx context.Context, appt model.Appointment, newStatus, reason string) {
	merchantName := ""
	if merchant, err := s.merchants.GetMerchant(ctx, appt.MerchantID); err == nil {
		merchantName = merchant.BusinessName
	}

	switch newStatus {
	case model.AppointmentConfirmed:
		subject, html := notify.AppointmentConfirmedEmail(appt, merchantName)
		if res := s.dispatcher.SendEmail(ctx, appt.Customer.Email, subject, html); !res.Success {
			s.logger.Error("confirmed email failed", "appointment_id", appt.ID, "err", res.Error)
		}
	case model.AppointmentCancelled:
		if _, err := s.scheduler.Cancel(ctx, appt.ID); err != nil {
			s.logger.Error("reminder cancel failed", "appointment_id", appt.ID, "err", err)
		}
		subject, html := notify.AppointmentCancelledEmail(appt, reason)
		if res := s.dispatcher.SendEmail(ctx, appt.Customer.Email, subject, html); !res.Success {
			s.logger.Error("cancelled email failed", "appointment_id", appt.ID, "err", res.Error)
		}
		sms := fmt.Sprintf("Your %s appointment on %s has been cancelled.",
			appt.ServiceName, appt.DateTime.Format("Jan 2 at 3:04 PM"))
		if res := s.dispatcher.SendSMS(ctx, appt.Customer.Phone, sms); !res.Success {
			s.logger.Warn("cancelled sms failed", "appointment_id", appt.ID, "err", res.Error)
		}
	}
}

// Reschedule moves the appointment to a new time, then cancels and recreates
// its reminders so none fire against the stale time.
func (s *Service) Reschedule(ctx context.Context, id string, newTime time.Time) (model.Appointment, error) {
	now := time.Now().UTC()
	if !newTime.After(now) {
		return model.Appointment{}, ErrPastDateTime
	}

	tx, err := s.appointments.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, oldTime, err := s.appointments.UpdateDateTime(ctx, tx, id, newTime)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("update date_time: %w", err)
	}
	if err := s.insertEvent(ctx, tx, id, outbox.EventAppointmentRescheduled, map[string]any{
		"appointment_id": id,
		"merchant_id":    appt.MerchantID,
		"old_time":       oldTime,
		"new_time":       newTime,
	}); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}

	merchant, err := s.merchants.GetMerchant(ctx, appt.MerchantID)
	if err != nil {
		s.logger.Error("merchant lookup after reschedule failed", "appointment_id", id, "err", err)
		return appt, nil
	}
	subject, html := notify.AppointmentRescheduledEmail(appt, oldTime)
	if res := s.dispatcher.SendEmail(ctx, appt.Customer.Email, subject, html); !res.Success {
		s.logger.Error("rescheduled email failed", "appointment_id", id, "err", res.Error)
	}
	if _, err := s.scheduler.Reschedule(ctx, appt, merchant, now); err != nil {
		s.logger.Error("reminder reschedule failed", "appointment_id", id, "err", err)
	}
	return appt, nil
}

// Delete removes the appointment, frees at most one slot it held and drops
// its pending reminders.
func (s *Service) Delete(ctx context.Context, id string) error {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.appointments.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	released, err := s.slots.ReleaseForAppointment(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	if err := s.appointments.Delete(ctx, tx, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if err := s.insertEvent(ctx, tx, id, outbox.EventAppointmentDeleted, map[string]any{
		"appointment_id": id,
		"merchant_id":    appt.MerchantID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if released > 0 {
		s.logger.Info("released time slot", "appointment_id", id)
	}
	if _, err := s.scheduler.Cancel(ctx, id); err != nil {
		s.logger.Error("reminder cancel failed", "appointment_id", id, "err", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *Service) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]model.Appointment, error) {
	return s.appointments.ListByMerchant(ctx, merchantID, limit, offset)
}

// ListByMerchantAndRange returns the merchant's appointments scheduled within
// [from, to), for calendar views.
func (s *Service) ListByMerchantAndRange(ctx context.Context, merchantID string, from, to time.Time) ([]model.Appointment, error) {
	return s.appointments.ListByMerchantAndRange(ctx, merchantID, from, to)
}

// Stats returns per-status appointment counts for a merchant's dashboard.
func (s *Service) Stats(ctx context.Context, merchantID string, from, to time.Time) (map[string]int64, error) {
	return s.appointments.StatusCounts(ctx, merchantID, from, to)
}

func (s *Service) insertEvent(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload map[string]any) error {
	evt, err := outbox.NewEvent("appointment", aggregateID, eventType, payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, evt)
}

package outbox

import (
	"context"
	"log/slog"

	"github.com/zarya-platform/zarya-backend/internal/model"
)

// InsertOne writes a single event in its own transaction, for producers that
// have no surrounding state change to piggyback on.
func (r *Repository) InsertOne(ctx context.Context, evt Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReminderEvents publishes reminder delivery outcomes. Recording is
// best-effort: a failed insert is logged and the delivery stands.
type ReminderEvents struct {
	repo   *Repository
	logger *slog.Logger
}

func NewReminderEvents(repo *Repository, logger *slog.Logger) *ReminderEvents {
	return &ReminderEvents{repo: repo, logger: logger}
}

func (e *ReminderEvents) ReminderSent(ctx context.Context, rem model.Reminder) {
	e.record(ctx, EventNotificationSent, rem, "")
}

func (e *ReminderEvents) ReminderFailed(ctx context.Context, rem model.Reminder, errMsg string) {
	e.record(ctx, EventNotificationFailed, rem, errMsg)
}

func (e *ReminderEvents) record(ctx context.Context, eventType string, rem model.Reminder, errMsg string) {
	payload := map[string]any{
		"reminder_id":    rem.ID,
		"appointment_id": rem.AppointmentID,
		"recipient_type": rem.RecipientType,
		"time_until":     rem.TimeUntil,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	evt, err := NewEvent("reminder", rem.ID, eventType, payload)
	if err != nil {
		e.logger.Error("notification event marshal failed", "reminder_id", rem.ID, "err", err)
		return
	}
	if err := e.repo.InsertOne(ctx, evt); err != nil {
		e.logger.Error("notification event insert failed", "reminder_id", rem.ID, "err", err)
	}
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/libs/db"
)

// RemindersRepository persists scheduled reminders. MarkSent doubles as the
// send claim: the conditional UPDATE succeeds for exactly one caller per
// record, which is what keeps concurrent sweeps from double-sending.
type RemindersRepository struct {
	pool *db.Pool
}

func NewRemindersRepository(pool *db.Pool) *RemindersRepository {
	return &RemindersRepository{pool: pool}
}

func (r *RemindersRepository) Create(ctx context.Context, rem *model.Reminder) error {
	snapshot, err := json.Marshal(rem.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO reminders
			(id, appointment_id, recipient_type, scheduled_for, time_until, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, rem.ID, rem.AppointmentID, rem.RecipientType, rem.ScheduledFor, rem.TimeUntil, snapshot).
		Scan(&rem.CreatedAt)
}

// QueryDue returns unsent, unfailed reminders whose fire time falls in
// (now-lookback, now].
func (r *RemindersRepository) QueryDue(ctx context.Context, now time.Time, lookback time.Duration) ([]model.Reminder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, recipient_type, scheduled_for, time_until, snapshot,
			sent, failed, COALESCE(error, ''), created_at, sent_at
		FROM reminders
		WHERE sent = false
			AND failed = false
			AND scheduled_for > $1
			AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
	`, now.Add(-lookback), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		var snapshot []byte
		if err := rows.Scan(
			&rem.ID,
			&rem.AppointmentID,
			&rem.RecipientType,
			&rem.ScheduledFor,
			&rem.TimeUntil,
			&snapshot,
			&rem.Sent,
			&rem.Failed,
			&rem.Error,
			&rem.CreatedAt,
			&rem.SentAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snapshot, &rem.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot for %s: %w", rem.ID, err)
		}
		out = append(out, rem)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MarkSent claims the record. Returns false when another sweep got there
// first (or the record was already terminal).
func (r *RemindersRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET sent = true, sent_at = $2
		WHERE id = $1 AND sent = false AND failed = false
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed records a delivery failure after a successful claim. A no-op on
// records already marked failed, so the first recorded error sticks.
func (r *RemindersRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reminders
		SET failed = true, error = $2
		WHERE id = $1 AND failed = false
	`, id, errMsg)
	return err
}

// CancelPending removes the unsent reminders for an appointment; used on
// cancellation, deletion and reschedule.
func (r *RemindersRepository) CancelPending(ctx context.Context, appointmentID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM reminders
		WHERE appointment_id = $1 AND sent = false
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountMissed counts unsent reminders that fell out of the sweep window
// entirely, usually after prolonged downtime.
func (r *RemindersRepository) CountMissed(ctx context.Context, now time.Time, lookback time.Duration) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM reminders
		WHERE sent = false AND failed = false AND scheduled_for <= $1
	`, now.Add(-lookback)).Scan(&n)
	return n, err
}

// DeleteTerminalBefore trims sent and failed reminders older than the cutoff;
// run from the nightly cleanup job.
func (r *RemindersRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM reminders
		WHERE (sent = true OR failed = true) AND scheduled_for < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

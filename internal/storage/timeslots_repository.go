package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/libs/db"
)

type TimeSlotsRepository struct {
	pool *db.Pool
}

func NewTimeSlotsRepository(pool *db.Pool) *TimeSlotsRepository {
	return &TimeSlotsRepository{pool: pool}
}

// CreateBatch inserts generated slots in chunks so a multi-week generation
// stays within one statement's parameter limits. Duplicate slots (same
// merchant, date and start) are skipped, making regeneration idempotent.
func (r *TimeSlotsRepository) CreateBatch(ctx context.Context, slots []model.TimeSlot) (int64, error) {
	var inserted int64
	for _, part := range chunk(slots, BatchChunk) {
		batch := &pgx.Batch{}
		for _, s := range part {
			batch.Queue(`
				INSERT INTO time_slots (id, merchant_id, date, start_time, end_time, is_available)
				VALUES ($1, $2, $3, $4, $5, true)
				ON CONFLICT (merchant_id, date, start_time) DO NOTHING
			`, s.ID, s.MerchantID, s.Date, s.StartTime, s.EndTime)
		}
		results := r.pool.SendBatch(ctx, batch)
		for range part {
			tag, err := results.Exec()
			if err != nil {
				results.Close()
				return inserted, err
			}
			inserted += tag.RowsAffected()
		}
		if err := results.Close(); err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (r *TimeSlotsRepository) ListAvailable(ctx context.Context, merchantID string, date time.Time) ([]model.TimeSlot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, merchant_id, date, start_time, end_time, is_available, COALESCE(appointment_id::text, ''), created_at
		FROM time_slots
		WHERE merchant_id = $1 AND date = $2 AND is_available = true
		ORDER BY start_time ASC
	`, merchantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TimeSlot
	for rows.Next() {
		var s model.TimeSlot
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Date, &s.StartTime, &s.EndTime, &s.IsAvailable, &s.AppointmentID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Claim books an available slot for an appointment inside the booking
// transaction. The conditional UPDATE is the race guard: false means someone
// else took it first.
func (r *TimeSlotsRepository) Claim(ctx context.Context, tx pgx.Tx, slotID, appointmentID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET is_available = false, appointment_id = $2
		WHERE id = $1 AND is_available = true
	`, slotID, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseForAppointment frees at most one slot held by the appointment.
// Double bookings that slipped past validation keep their extra slot held
// for manual review instead of being silently freed.
func (r *TimeSlotsRepository) ReleaseForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE time_slots
		SET is_available = true, appointment_id = NULL
		WHERE id = (
			SELECT id FROM time_slots
			WHERE appointment_id = $1
			ORDER BY date, start_time
			LIMIT 1
		)
	`, appointmentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredBefore removes still-available slots whose date has passed.
func (r *TimeSlotsRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM time_slots
		WHERE is_available = true AND date < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

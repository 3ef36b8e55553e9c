package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/libs/db"
)

type AppointmentsRepository struct {
	pool *db.Pool
}

func NewAppointmentsRepository(pool *db.Pool) *AppointmentsRepository {
	return &AppointmentsRepository{pool: pool}
}

// Begin starts a transaction for multi-statement booking flows; the write
// methods below take the tx so the outbox event commits with the change.
func (r *AppointmentsRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id, merchant_id, customer_name, customer_email, customer_phone,
	service_name, price, date_time, status, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(
		&a.ID,
		&a.MerchantID,
		&a.Customer.Name,
		&a.Customer.Email,
		&a.Customer.Phone,
		&a.ServiceName,
		&a.Price,
		&a.DateTime,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentsRepository) Create(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, merchant_id, customer_name, customer_email, customer_phone, service_name, price, date_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, a.ID, a.MerchantID, a.Customer.Name, a.Customer.Email, a.Customer.Phone,
		a.ServiceName, a.Price, a.DateTime, a.Status).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AppointmentsRepository) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (r *AppointmentsRepository) ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE merchant_id = $1
		ORDER BY date_time DESC
		LIMIT $2 OFFSET $3
	`, merchantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *AppointmentsRepository) ListByMerchantAndRange(ctx context.Context, merchantID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE merchant_id = $1 AND date_time >= $2 AND date_time < $3
		ORDER BY date_time ASC
	`, merchantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpdateStatus transitions the lifecycle status and returns the updated row.
func (r *AppointmentsRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id, status string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status))
}

// UpdateDateTime moves the appointment and marks it rescheduled, returning
// the previous time so callers can mention it in notifications. The row is
// locked for the read so a concurrent reschedule cannot interleave.
func (r *AppointmentsRepository) UpdateDateTime(ctx context.Context, tx pgx.Tx, id string, newTime time.Time) (model.Appointment, time.Time, error) {
	var oldTime time.Time
	err := tx.QueryRow(ctx, `
		SELECT date_time FROM appointments WHERE id = $1 FOR UPDATE
	`, id).Scan(&oldTime)
	if err != nil {
		return model.Appointment{}, time.Time{}, err
	}
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET date_time = $2, status = 'rescheduled', updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, newTime))
	if err != nil {
		return model.Appointment{}, time.Time{}, err
	}
	return appt, oldTime, nil
}

func (r *AppointmentsRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// StatusCounts feeds the analytics report and the admin dashboard.
func (r *AppointmentsRepository) StatusCounts(ctx context.Context, merchantID string, from, to time.Time) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		WHERE merchant_id = $1 AND date_time >= $2 AND date_time < $3
		GROUP BY status
	`, merchantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

func (r *AppointmentsRepository) CountInRange(ctx context.Context, from, to time.Time) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE date_time >= $1 AND date_time < $2
	`, from, to).Scan(&n)
	return n, err
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zarya-platform/zarya-backend/libs/db"
)

// WeeklyReport is the analytics snapshot generated every Monday morning.
type WeeklyReport struct {
	ID               string
	StartDate        time.Time
	EndDate          time.Time
	NewMerchants     int64
	NewSubscriptions int64
	NewAppointments  int64
	Revenue          float64
	CreatedAt        time.Time
}

// BackupRecord is daily backup metadata plus the serialized snapshot.
type BackupRecord struct {
	ID                string
	TakenAt           time.Time
	MerchantCount     int64
	SubscriptionCount int64
	Snapshot          []byte
	CreatedAt         time.Time
}

type ReportsRepository struct {
	pool *db.Pool
}

func NewReportsRepository(pool *db.Pool) *ReportsRepository {
	return &ReportsRepository{pool: pool}
}

func (r *ReportsRepository) SaveWeeklyReport(ctx context.Context, rep *WeeklyReport) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO analytics_reports
			(id, start_date, end_date, new_merchants, new_subscriptions, new_appointments, revenue)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rep.ID, rep.StartDate, rep.EndDate, rep.NewMerchants, rep.NewSubscriptions, rep.NewAppointments, rep.Revenue).
		Scan(&rep.CreatedAt)
}

// CountsSince aggregates the week's growth numbers in one round trip.
func (r *ReportsRepository) CountsSince(ctx context.Context, since time.Time) (merchants, subscriptions, appointments int64, revenue float64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM merchants WHERE created_at >= $1),
			(SELECT count(*) FROM subscriptions WHERE created_at >= $1),
			(SELECT count(*) FROM appointments WHERE created_at >= $1),
			(SELECT COALESCE(sum(amount), 0) FROM subscriptions WHERE created_at >= $1)
	`, since).Scan(&merchants, &subscriptions, &appointments, &revenue)
	return merchants, subscriptions, appointments, revenue, err
}

// SaveBackup stores the nightly snapshot of merchants and subscriptions.
func (r *ReportsRepository) SaveBackup(ctx context.Context, rec *BackupRecord) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO backups (id, taken_at, merchant_count, subscription_count, snapshot)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, rec.ID, rec.TakenAt, rec.MerchantCount, rec.SubscriptionCount, rec.Snapshot).
		Scan(&rec.CreatedAt)
}

// SnapshotCoreTables serializes merchants and subscriptions for the backup
// record. Password hashes are excluded from the dump.
func (r *ReportsRepository) SnapshotCoreTables(ctx context.Context) ([]byte, int64, int64, error) {
	type merchantRow struct {
		ID           string    `json:"id"`
		BusinessName string    `json:"business_name"`
		OwnerName    string    `json:"owner_name"`
		Email        string    `json:"email"`
		Category     string    `json:"category"`
		IsActive     bool      `json:"is_active"`
		CreatedAt    time.Time `json:"created_at"`
	}
	type subscriptionRow struct {
		ID         string    `json:"id"`
		MerchantID string    `json:"merchant_id"`
		Plan       string    `json:"plan"`
		Amount     float64   `json:"amount"`
		Status     string    `json:"status"`
		ExpiryDate time.Time `json:"expiry_date"`
		CreatedAt  time.Time `json:"created_at"`
	}

	var merchants []merchantRow
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_name, owner_name, email, category, is_active, created_at
		FROM merchants ORDER BY created_at
	`)
	if err != nil {
		return nil, 0, 0, err
	}
	for rows.Next() {
		var m merchantRow
		if err := rows.Scan(&m.ID, &m.BusinessName, &m.OwnerName, &m.Email, &m.Category, &m.IsActive, &m.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, 0, err
		}
		merchants = append(merchants, m)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, 0, 0, rows.Err()
	}

	var subs []subscriptionRow
	rows, err = r.pool.Query(ctx, `
		SELECT id, merchant_id, plan, amount, status, expiry_date, created_at
		FROM subscriptions ORDER BY created_at
	`)
	if err != nil {
		return nil, 0, 0, err
	}
	for rows.Next() {
		var s subscriptionRow
		if err := rows.Scan(&s.ID, &s.MerchantID, &s.Plan, &s.Amount, &s.Status, &s.ExpiryDate, &s.CreatedAt); err != nil {
			rows.Close()
			return nil, 0, 0, err
		}
		subs = append(subs, s)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, 0, 0, rows.Err()
	}

	snapshot, err := json.Marshal(map[string]any{
		"merchants":     merchants,
		"subscriptions": subs,
	})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("marshal backup snapshot: %w", err)
	}
	return snapshot, int64(len(merchants)), int64(len(subs)), nil
}

// DeleteBackupsBefore keeps the backup table bounded.
func (r *ReportsRepository) DeleteBackupsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM backups WHERE taken_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

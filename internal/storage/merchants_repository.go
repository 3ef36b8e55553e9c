package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/internal/outbox"
	"github.com/zarya-platform/zarya-backend/libs/db"
)

type MerchantsRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewMerchantsRepository(pool *db.Pool, outboxRepo *outbox.Repository) *MerchantsRepository {
	return &MerchantsRepository{pool: pool, outbox: outboxRepo}
}

const merchantColumns = `
	id, business_name, owner_name, email, phone, category, password_hash,
	is_active, COALESCE(fcm_tokens, '{}'), COALESCE(image_urls, '{}'),
	deactivated_at, created_at, updated_at`

func scanMerchant(row pgx.Row) (model.Merchant, error) {
	var m model.Merchant
	err := row.Scan(
		&m.ID,
		&m.BusinessName,
		&m.OwnerName,
		&m.Email,
		&m.Phone,
		&m.Category,
		&m.PasswordHash,
		&m.IsActive,
		&m.FCMTokens,
		&m.ImageURLs,
		&m.DeactivatedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return model.Merchant{}, err
	}
	return m, nil
}

// Create inserts the merchant and emits the registration event in one
// transaction.
func (r *MerchantsRepository) Create(ctx context.Context, m *model.Merchant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `
		INSERT INTO merchants
			(id, business_name, owner_name, email, phone, category, password_hash, is_active)
		VALUES ($1, $2, $3, lower($4), $5, $6, $7, true)
		RETURNING created_at, updated_at
	`, m.ID, m.BusinessName, m.OwnerName, m.Email, m.Phone, m.Category, m.PasswordHash).
		Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return err
	}

	evt, err := outbox.NewEvent("merchant", m.ID, outbox.EventMerchantRegistered, map[string]any{
		"merchant_id":   m.ID,
		"business_name": m.BusinessName,
		"category":      m.Category,
	})
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *MerchantsRepository) GetMerchant(ctx context.Context, id string) (model.Merchant, error) {
	return scanMerchant(r.pool.QueryRow(ctx, `
		SELECT `+merchantColumns+`
		FROM merchants
		WHERE id = $1
	`, id))
}

func (r *MerchantsRepository) GetByEmail(ctx context.Context, email string) (model.Merchant, error) {
	return scanMerchant(r.pool.QueryRow(ctx, `
		SELECT `+merchantColumns+`
		FROM merchants
		WHERE email = lower($1)
	`, email))
}

func (r *MerchantsRepository) List(ctx context.Context, limit, offset int) ([]model.Merchant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+merchantColumns+`
		FROM merchants
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpdateProfile changes the mutable profile fields only; credentials and
// activation state have dedicated paths.
func (r *MerchantsRepository) UpdateProfile(ctx context.Context, m model.Merchant) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET business_name = $2,
			owner_name = $3,
			phone = $4,
			category = $5,
			updated_at = now()
		WHERE id = $1
	`, m.ID, m.BusinessName, m.OwnerName, m.Phone, m.Category)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MerchantsRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET password_hash = $2, updated_at = now()
		WHERE id = $1
	`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the activation flag; deactivation stamps the time,
// reactivation clears it.
func (r *MerchantsRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	var deactivatedAt *time.Time
	if !active {
		deactivatedAt = &at
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET is_active = $2, deactivated_at = $3, updated_at = now()
		WHERE id = $1
	`, id, active, deactivatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddFCMToken registers a device token, deduplicating in SQL so repeated app
// launches do not grow the array.
func (r *MerchantsRepository) AddFCMToken(ctx context.Context, id, token string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET fcm_tokens = array_append(COALESCE(fcm_tokens, '{}'), $2),
			updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(COALESCE(fcm_tokens, '{}')))
	`, id, token)
	return err
}

// RemoveFCMTokens prunes tokens the push provider reported dead.
func (r *MerchantsRepository) RemoveFCMTokens(ctx context.Context, merchantID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET fcm_tokens = (
			SELECT COALESCE(array_agg(t), '{}')
			FROM unnest(fcm_tokens) AS t
			WHERE NOT (t = ANY($2))
		),
		updated_at = now()
		WHERE id = $1
	`, merchantID, tokens)
	return err
}

func (r *MerchantsRepository) AddImageURL(ctx context.Context, id, url string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET image_urls = array_append(COALESCE(image_urls, '{}'), $2),
			updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(COALESCE(image_urls, '{}')))
	`, id, url)
	return err
}

func (r *MerchantsRepository) RemoveImageURL(ctx context.Context, id, url string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE merchants
		SET image_urls = array_remove(COALESCE(image_urls, '{}'), $2),
			updated_at = now()
		WHERE id = $1
	`, id, url)
	return err
}

func (r *MerchantsRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM merchants WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MerchantsRepository) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM merchants WHERE is_active = true
	`).Scan(&n)
	return n, err
}

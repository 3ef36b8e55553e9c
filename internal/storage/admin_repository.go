package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/zarya-platform/zarya-backend/internal/model"
	"github.com/zarya-platform/zarya-backend/libs/db"
)

type AdminUsersRepository struct {
	pool *db.Pool
}

func NewAdminUsersRepository(pool *db.Pool) *AdminUsersRepository {
	return &AdminUsersRepository{pool: pool}
}

func scanAdmin(row pgx.Row) (model.AdminUser, error) {
	var u model.AdminUser
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return model.AdminUser{}, err
	}
	return u, nil
}

func (r *AdminUsersRepository) Create(ctx context.Context, u *model.AdminUser) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO admin_users (id, email, name, password_hash, role)
		VALUES ($1, lower($2), $3, $4, $5)
		RETURNING created_at
	`, u.ID, u.Email, u.Name, u.PasswordHash, u.Role).Scan(&u.CreatedAt)
}

func (r *AdminUsersRepository) GetByEmail(ctx context.Context, email string) (model.AdminUser, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM admin_users
		WHERE email = lower($1)
	`, email))
}

func (r *AdminUsersRepository) GetByID(ctx context.Context, id string) (model.AdminUser, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM admin_users
		WHERE id = $1
	`, id))
}

func (r *AdminUsersRepository) List(ctx context.Context) ([]model.AdminUser, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM admin_users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AdminUser
	for rows.Next() {
		u, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

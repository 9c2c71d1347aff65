package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/visitor-management/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
	Update(ctx context.Context, u *domain.User) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userCols = `id, name, email, role, department, avatar, notifications_enabled, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Role, &u.Department, &u.Avatar,
		&u.NotificationsEnabled, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `
		INSERT INTO users (id, name, email, role, department, avatar, notifications_enabled, password_hash)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8)
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	created, err := scanUser(r.pool.QueryRow(ctx, q,
		uuid.NewString(), u.Name, u.Email, u.Role, u.Department, u.Avatar,
		u.NotificationsEnabled, u.PasswordHash,
	))
	if err != nil {
		return nil, translate("create user", err)
	}
	return created, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email) = lower($1)`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, email))
	if err != nil {
		return nil, translate("find user by email", err)
	}
	return u, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, translate("find user", err)
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY name`
	return r.list(ctx, q)
}

func (r *userRepository) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE role = $1 ORDER BY name`
	return r.list(ctx, q, role)
}

func (r *userRepository) list(ctx context.Context, q string, args ...any) ([]domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, translate("list users", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, translate("scan user", err)
		}
		users = append(users, *u)
	}
	return users, translate("list users", rows.Err())
}

func (r *userRepository) Update(ctx context.Context, u *domain.User) (*domain.User, error) {
	const q = `
		UPDATE users
		SET name = $2, email = lower($3), role = $4, department = $5, avatar = $6,
			notifications_enabled = $7, updated_at = now()
		WHERE id = $1
		RETURNING ` + userCols

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	updated, err := scanUser(r.pool.QueryRow(ctx, q,
		u.ID, u.Name, u.Email, u.Role, u.Department, u.Avatar, u.NotificationsEnabled,
	))
	if err != nil {
		return nil, translate("update user", err)
	}
	return updated, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return translate("update password", err)
	}
	if result.RowsAffected() == 0 {
		return translate("update password", pgx.ErrNoRows)
	}
	return nil
}

// Delete fails with ErrConflict while visits still reference the user.
func (r *userRepository) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM users WHERE id = $1`
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return translate("delete user", err)
	}
	if result.RowsAffected() == 0 {
		return translate("delete user", pgx.ErrNoRows)
	}
	return nil
}

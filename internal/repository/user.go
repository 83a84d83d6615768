package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/farm-market-api/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	LinkGoogleID(ctx context.Context, id int64, googleID string) error
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

const userColumns = `id, username, email, password_hash, full_name, role, location, phone, description, google_id, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	var role string
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.FullName,
		&role, &user.Location, &user.Phone, &user.Description, &user.GoogleID, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.Role = model.Role(role)
	return user, nil
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (username, email, password_hash, full_name, role, location, phone, description, google_id, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
			  RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.FullName, string(user.Role),
		user.Location, user.Phone, user.Description, user.GoogleID,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", translate(err))
	}
	return nil
}

func (r *pgUserRepo) getBy(ctx context.Context, column string, value any) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return user, nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *pgUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *pgUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *pgUserRepo) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.getBy(ctx, "google_id", googleID)
}

func (r *pgUserRepo) Update(ctx context.Context, user *model.User) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET full_name = $2, email = $3, location = $4, phone = $5, description = $6 WHERE id = $1`,
		user.ID, user.FullName, user.Email, user.Location, user.Phone, user.Description,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", translate(err))
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkGoogleID attaches an external identity to an account that has none yet.
func (r *pgUserRepo) LinkGoogleID(ctx context.Context, id int64, googleID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET google_id = $2 WHERE id = $1 AND google_id IS NULL`, id, googleID,
	)
	if err != nil {
		return fmt.Errorf("link google id: %w", translate(err))
	}
	return nil
}

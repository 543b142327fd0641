package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGUserStore implements UserStore backed by PostgreSQL.
type PGUserStore struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, password_hash, display_name, is_admin, active, created_at, updated_at`

func (s *PGUserStore) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := db(ctx, s.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, is_admin, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())
		RETURNING created_at, updated_at`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.IsAdmin, u.Active).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: email %s", ErrDuplicate, u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PGUserStore) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id), scanUser)
}

func (s *PGUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return one(db(ctx, s.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email), scanUser)
}

func (s *PGUserStore) Update(ctx context.Context, u *User) error {
	tag, err := db(ctx, s.pool).Exec(ctx, `
		UPDATE users SET email=$2, password_hash=$3, display_name=$4, is_admin=$5, active=$6, updated_at=NOW()
		WHERE id=$1`,
		u.ID, u.Email, u.PasswordHash, u.DisplayName, u.IsAdmin, u.Active)
	if err != nil {
		if isDuplicateError(err) {
			return fmt.Errorf("%w: email %s", ErrDuplicate, u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.IsAdmin, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nvoloshin/callmeter/internal/apperrors"
	"github.com/nvoloshin/callmeter/internal/models"
)

type UserRepo struct {
	DB DBTX
}

func (r *UserRepo) EnsureUser(ctx context.Context, id uuid.UUID, username string, role string) (models.User, error) {
	const ensureUser = `
	INSERT INTO users (id, username, role)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET username = users.username
	RETURNING id, created_at, username, role
	`

	rows, _ := r.DB.Query(ctx, ensureUser, id, username, role)
	user, err := pgx.CollectOneRow(rows, rowToUser)
	if err != nil {
		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *UserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	const getUserByID = `
	SELECT id, created_at, username, role FROM users
	WHERE id = $1
	`

	rows, _ := r.DB.Query(ctx, getUserByID, userID)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Role)
	return u, err
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database"
	"github.com/safar/cart-billing/internal/models"
)

// Users are owned by the account subsystem; these exist for bill joins,
// seeding and tests.

func CreateUser(ctx context.Context, q database.Querier, email, name, role string) (*models.User, error) {
	const op = "store.CreateUser"

	if role == "" {
		role = models.RoleUser
	}

	user := &models.User{}

	query := `
		INSERT INTO users (email, name, role, created_at, updated_at, version)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		RETURNING id, email, name, role, created_at, updated_at, version`

	err := q.QueryRowContext(ctx, query, email, name, role).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, apperr.Conflict(op, "email already registered")
		}
		return nil, apperr.Storage(op, fmt.Errorf("create user: %w", err))
	}

	return user, nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	const op = "store.GetUser"

	user := &models.User{}

	query := `
		SELECT id, email, name, role, created_at, updated_at, version
		FROM users
		WHERE id = $1`

	err := q.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(op, "user not found")
		}
		return nil, apperr.Storage(op, fmt.Errorf("get user: %w", err))
	}

	return user, nil
}

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database/dbtest"
	"github.com/safar/cart-billing/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()

	user, err := CreateUser(ctx, db, "seller@example.com", "Seller", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, user.Role)

	got, err := GetUser(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "seller@example.com", got.Email)

	_, err = CreateUser(ctx, db, "seller@example.com", "Again", models.RolePremium)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	_, err = GetUser(ctx, db, 777777)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

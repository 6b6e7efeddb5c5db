package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/cart-billing/internal/models"
	"github.com/shopspring/decimal"
)

var seq atomic.Int64

func mustUser(t *testing.T, db *sql.DB) *models.User {
	t.Helper()
	n := seq.Add(1)
	user, err := CreateUser(context.Background(), db, fmt.Sprintf("user%d@example.com", n), "Test User", models.RoleUser)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return user
}

func mustProduct(t *testing.T, db *sql.DB, price int64, stock int) *models.Product {
	t.Helper()
	n := seq.Add(1)
	product, err := CreateProduct(context.Background(), db, NewProduct{
		Code:  fmt.Sprintf("TEST-%03d", n),
		Title: fmt.Sprintf("Product %d", n),
		Price: decimal.NewFromInt(price),
		Stock: stock,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	return product
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database"
	"github.com/safar/cart-billing/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, code, title, description, price, thumbnail, stock, owner, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.Code,
		&product.Title,
		&product.Description,
		&product.Price,
		&product.Thumbnail,
		&product.Stock,
		&product.Owner,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

type NewProduct struct {
	Code        string
	Title       string
	Description string
	Price       decimal.Decimal
	Thumbnail   string
	Stock       int
	Owner       string
}

func CreateProduct(ctx context.Context, q database.Querier, p NewProduct) (*models.Product, error) {
	const op = "store.CreateProduct"

	if p.Code == "" || p.Title == "" {
		return nil, apperr.Validation(op, "code and title are required")
	}
	if p.Stock < 0 || p.Price.IsNegative() {
		return nil, apperr.Validation(op, "price and stock must not be negative")
	}
	if p.Owner == "" {
		p.Owner = models.DefaultProductOwner
	}

	product := &models.Product{}

	query := `
		INSERT INTO products (code, title, description, price, thumbnail, stock, owner, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	row := q.QueryRowContext(ctx, query, p.Code, p.Title, p.Description, p.Price, p.Thumbnail, p.Stock, p.Owner)
	if err := scanProduct(row, product); err != nil {
		if database.IsUniqueViolation(err, "") {
			return nil, apperr.Conflict(op, "product code already exists")
		}
		return nil, apperr.Storage(op, fmt.Errorf("create product: %w", err))
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.Querier, id int64) (*models.Product, error) {
	const op = "store.GetProduct"

	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	if err := scanProduct(q.QueryRowContext(ctx, query, id), product); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(op, "product not found")
		}
		return nil, apperr.Storage(op, fmt.Errorf("get product: %w", err))
	}

	return product, nil
}

// AdjustStock adds a signed delta to a product's stock in place. It is a raw
// increment; the products CHECK constraint is what refuses a negative result.
func AdjustStock(ctx context.Context, q database.Querier, productID int64, delta int) error {
	const op = "store.AdjustStock"

	if productID == 0 || delta == 0 {
		return apperr.Validation(op, "productId and quantity are required")
	}
	if delta > math.MaxInt32 || delta < math.MinInt32 {
		return apperr.Validation(op, "stock adjustment is out of range")
	}

	result, err := q.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock + $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2`,
		delta, productID)
	if err != nil {
		if database.IsCheckViolation(err) {
			return apperr.Validation(op, "insufficient stock")
		}
		if database.IsOutOfRange(err) {
			return apperr.Validation(op, "stock adjustment is out of range")
		}
		return apperr.Storage(op, fmt.Errorf("adjust stock: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("get rows affected: %w", err))
	}

	if rowsAffected == 0 {
		return apperr.NotFound(op, "product not found")
	}

	return nil
}

// DecrementStockIfAvailable takes quantity units of stock only if at least
// that many are available, in a single statement. It returns the product's
// current unit price and applied=false when stock was insufficient.
func DecrementStockIfAvailable(ctx context.Context, q database.Querier, productID int64, quantity int) (price decimal.Decimal, applied bool, err error) {
	const op = "store.DecrementStockIfAvailable"

	if productID == 0 || quantity <= 0 {
		return decimal.Zero, false, apperr.Validation(op, "productId and a positive quantity are required")
	}

	err = q.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1
		 RETURNING price`,
		quantity, productID).Scan(&price)
	if err == nil {
		return price, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, apperr.Storage(op, fmt.Errorf("decrement stock: %w", err))
	}

	var exists bool
	if err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)",
		productID).Scan(&exists); err != nil {
		return decimal.Zero, false, apperr.Storage(op, fmt.Errorf("check product exists: %w", err))
	}
	if !exists {
		return decimal.Zero, false, apperr.NotFound(op, "product not found")
	}

	return decimal.Zero, false, nil
}

// IsProductOwner reports whether the product was listed by the user with the
// given email. Admin-owned products have no user owner.
func IsProductOwner(product *models.Product, email string) bool {
	return product != nil && email != "" && product.Owner == email
}

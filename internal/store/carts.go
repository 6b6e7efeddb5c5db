package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database"
	"github.com/safar/cart-billing/internal/models"
)

func CreateCart(ctx context.Context, q database.Querier, userID int64) (*models.Cart, error) {
	const op = "store.CreateCart"

	if userID == 0 {
		return nil, apperr.Validation(op, "userId is required")
	}

	cart := &models.Cart{Lines: []models.CartLine{}}

	err := q.QueryRowContext(ctx,
		`INSERT INTO carts (user_id, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 RETURNING id, user_id, created_at, updated_at`,
		userID).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "carts_user_id_key"):
			return nil, apperr.Conflict(op, "user already has a cart")
		case database.IsForeignKeyViolation(err):
			return nil, apperr.NotFound(op, "user not found")
		}
		return nil, apperr.Storage(op, fmt.Errorf("create cart: %w", err))
	}

	return cart, nil
}

// GetCart returns the user's cart, or nil when the user has none.
func GetCart(ctx context.Context, q database.Querier, userID int64) (*models.Cart, error) {
	return getCart(ctx, q, "store.GetCart", "user_id", userID, false)
}

// GetCartByID returns nil, nil when the cart does not exist; callers decide
// whether that is an error.
func GetCartByID(ctx context.Context, q database.Querier, cartID int64) (*models.Cart, error) {
	return getCart(ctx, q, "store.GetCartByID", "id", cartID, false)
}

// GetCartForUpdate reads the cart and row-locks it until the surrounding
// transaction ends, so two checkouts of one cart run one after the other.
// Must be called with a *sql.Tx.
func GetCartForUpdate(ctx context.Context, tx database.Querier, cartID int64) (*models.Cart, error) {
	return getCart(ctx, tx, "store.GetCartForUpdate", "id", cartID, true)
}

func getCart(ctx context.Context, q database.Querier, op, column string, value int64, forUpdate bool) (*models.Cart, error) {
	cart := &models.Cart{}

	query := fmt.Sprintf(`
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE %s = $1`, column)
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	err := q.QueryRowContext(ctx, query, value).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage(op, fmt.Errorf("get cart: %w", err))
	}

	lines, err := listCartLines(ctx, q, cart.ID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	cart.Lines = lines

	return cart, nil
}

func listCartLines(ctx context.Context, q database.Querier, cartID int64) ([]models.CartLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT ci.product_id, p.title, p.price, p.stock, ci.quantity
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	lines := []models.CartLine{}
	for rows.Next() {
		var line models.CartLine
		if err := rows.Scan(&line.ProductID, &line.Title, &line.Price, &line.Stock, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// AddProductToCart increments the product's line by one, or appends a new
// line with quantity one. One statement, so two concurrent adds of the same
// product cannot create two lines.
func AddProductToCart(ctx context.Context, q database.Querier, cartID, productID int64) (*models.Cart, error) {
	const op = "store.AddProductToCart"

	if cartID == 0 || productID == 0 {
		return nil, apperr.Validation(op, "cartId and productId are required")
	}

	result, err := q.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity, created_at)
		 VALUES ($1, $2, 1, NOW())
		 ON CONFLICT ON CONSTRAINT cart_items_cart_product_key
		 DO UPDATE SET quantity = cart_items.quantity + 1`,
		cartID, productID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, apperr.NotFound(op, "cart or product not found")
		}
		if database.IsOutOfRange(err) {
			return nil, apperr.Validation(op, "quantity is too large")
		}
		return nil, apperr.Storage(op, fmt.Errorf("add product to cart: %w", err))
	}

	if err := expectRows(result, 1); err != nil {
		return nil, apperr.Storage(op, err)
	}

	return GetCartByID(ctx, q, cartID)
}

// AddMultipleProductsToCart adds each product in order and stops at the
// first failure. Run it inside a transaction to make the batch atomic.
func AddMultipleProductsToCart(ctx context.Context, q database.Querier, cartID int64, productIDs []int64) (*models.Cart, error) {
	const op = "store.AddMultipleProductsToCart"

	if productIDs == nil {
		return nil, apperr.Validation(op, "products is required and should be an array")
	}

	for _, productID := range productIDs {
		if _, err := AddProductToCart(ctx, q, cartID, productID); err != nil {
			return nil, err
		}
	}

	return GetCartByID(ctx, q, cartID)
}

// ParseQuantity accepts only positive integers that fit the INT quantity
// column.
func ParseQuantity(raw string) (int, error) {
	quantity, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil || quantity <= 0 {
		return 0, apperr.Validation("store.ParseQuantity", "quantity is required and needs to be a valid positive integer")
	}
	return int(quantity), nil
}

func SetProductQuantity(ctx context.Context, q database.Querier, cartID, productID int64, rawQuantity string) (*models.Cart, error) {
	const op = "store.SetProductQuantity"

	quantity, err := ParseQuantity(rawQuantity)
	if err != nil {
		return nil, err
	}
	if cartID == 0 || productID == 0 {
		return nil, apperr.Validation(op, "cartId and productId are required")
	}

	result, err := q.ExecContext(ctx,
		`UPDATE cart_items
		 SET quantity = $1
		 WHERE cart_id = $2 AND product_id = $3`,
		quantity, cartID, productID)
	if err != nil {
		return nil, apperr.Storage(op, fmt.Errorf("set product quantity: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Storage(op, fmt.Errorf("get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return nil, apperr.NotFound(op, "product was not in the cart")
	}

	return GetCartByID(ctx, q, cartID)
}

// RemoveCartLine deletes one product line from a cart.
func RemoveCartLine(ctx context.Context, q database.Querier, cartID, productID int64) error {
	const op = "store.RemoveCartLine"

	if cartID == 0 || productID == 0 {
		return apperr.Validation(op, "missing cartId or productId")
	}

	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID)
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("delete cart line: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return apperr.NotFound(op, "product was not in the cart")
	}

	return nil
}

func DeleteProduct(ctx context.Context, q database.Querier, cartID, productID int64) (*models.Cart, error) {
	if err := RemoveCartLine(ctx, q, cartID, productID); err != nil {
		return nil, err
	}
	return GetCartByID(ctx, q, cartID)
}

func DeleteAllProducts(ctx context.Context, q database.Querier, cartID int64) (*models.Cart, error) {
	const op = "store.DeleteAllProducts"

	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return nil, apperr.Storage(op, fmt.Errorf("clear cart: %w", err))
	}

	cart, err := GetCartByID(ctx, q, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.NotFound(op, "could not find the cart")
	}

	return cart, nil
}

func RemoveCart(ctx context.Context, q database.Querier, cartID int64) error {
	const op = "store.RemoveCart"

	result, err := q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("remove cart: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("get rows affected: %w", err))
	}
	if rowsAffected == 0 {
		return apperr.NotFound(op, "could not find the cart")
	}

	return nil
}

func expectRows(result sql.Result, want int64) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected != want {
		return fmt.Errorf("expected %d affected row(s), got %d", want, rowsAffected)
	}
	return nil
}

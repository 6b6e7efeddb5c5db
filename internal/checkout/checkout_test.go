package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database/dbtest"
	"github.com/safar/cart-billing/internal/events"
	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBillRejectsMissingCart(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.CreateBill(context.Background(), nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
	assert.Equal(t, "cart missing", apperr.PublicMessage(err))
}

func TestCreateBill(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("bills every line that has stock", func(t *testing.T) {
		f := newFixture(t, db)
		user, actor := mustUser(t, db, models.RoleUser)
		a := mustProduct(t, db, "10.00", 5, "")
		b := mustProduct(t, db, "3.50", 10, "")
		cart := mustCart(t, db, user.ID, cartLine{a, 2}, cartLine{b, 3})

		result, err := f.svc.CreateBill(ctx, cart)
		require.NoError(t, err)

		bill := result.Bill
		assert.True(t, strings.HasPrefix(bill.Code, "BILL-"))
		assert.Equal(t, models.BillStatusNotPaid, bill.Status)
		assert.Nil(t, bill.TransactionID)
		assert.Equal(t, user.ID, bill.UserID)
		require.Len(t, bill.Lines, 2)
		assert.True(t, bill.Total.Equal(decimal.RequireFromString("30.50")), "total %s", bill.Total)
		assert.Empty(t, result.Skipped())

		assert.Equal(t, 3, stockOf(t, db, a.ID))
		assert.Equal(t, 7, stockOf(t, db, b.ID))

		after, err := store.GetCartByID(ctx, db, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, after.Lines)

		stored, err := f.svc.GetBill(ctx, actor, bill.ID)
		require.NoError(t, err)
		assert.Equal(t, bill.Code, stored.Code)
		assert.True(t, stored.Total.Equal(models.SumLines(stored.Lines)))

		assert.Equal(t, []string{events.TypeBillCreated}, f.publisher.typesFor(bill.ID))
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.BillsCreated))
		assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Lines.WithLabelValues(string(OutcomePurchased))))
	})

	t.Run("short lines stay in the cart", func(t *testing.T) {
		f := newFixture(t, db)
		user, _ := mustUser(t, db, models.RoleUser)
		short := mustProduct(t, db, "20.00", 1, "")
		ok := mustProduct(t, db, "4.00", 5, "")
		cart := mustCart(t, db, user.ID, cartLine{short, 3}, cartLine{ok, 1})

		result, err := f.svc.CreateBill(ctx, cart)
		require.NoError(t, err)

		require.Len(t, result.Bill.Lines, 1)
		assert.Equal(t, ok.ID, result.Bill.Lines[0].ProductID)
		assert.True(t, result.Bill.Total.Equal(decimal.RequireFromString("4.00")))

		skipped := result.Skipped()
		require.Len(t, skipped, 1)
		assert.Equal(t, short.ID, skipped[0].ProductID)
		assert.Equal(t, OutcomeInsufficientStock, skipped[0].Outcome)

		assert.Equal(t, 1, stockOf(t, db, short.ID))
		assert.Equal(t, 4, stockOf(t, db, ok.ID))

		after, err := store.GetCartByID(ctx, db, cart.ID)
		require.NoError(t, err)
		require.Len(t, after.Lines, 1)
		assert.Equal(t, short.ID, after.Lines[0].ProductID)
		assert.Equal(t, 3, after.Lines[0].Quantity)
	})

	t.Run("empty cart produces an empty bill", func(t *testing.T) {
		f := newFixture(t, db)
		user, _ := mustUser(t, db, models.RoleUser)
		cart := mustCart(t, db, user.ID)

		result, err := f.svc.CreateBill(ctx, cart)
		require.NoError(t, err)

		assert.Empty(t, result.Bill.Lines)
		assert.True(t, result.Bill.Total.IsZero())
		assert.NotZero(t, result.Bill.ID)
	})

	t.Run("unknown cart", func(t *testing.T) {
		f := newFixture(t, db)

		_, err := f.svc.CreateBill(ctx, &models.Cart{ID: 987654})
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("bill keeps the price of the sale", func(t *testing.T) {
		f := newFixture(t, db)
		user, actor := mustUser(t, db, models.RoleUser)
		p := mustProduct(t, db, "9.99", 5, "")
		cart := mustCart(t, db, user.ID, cartLine{p, 2})

		result, err := f.svc.CreateBill(ctx, cart)
		require.NoError(t, err)

		_, err = db.ExecContext(ctx, `UPDATE products SET price = 100 WHERE id = $1`, p.ID)
		require.NoError(t, err)

		stored, err := f.svc.GetBill(ctx, actor, result.Bill.ID)
		require.NoError(t, err)
		require.Len(t, stored.Lines, 1)
		assert.True(t, stored.Lines[0].Price.Equal(decimal.RequireFromString("9.99")))
		assert.True(t, stored.Total.Equal(decimal.RequireFromString("19.98")))
	})

	t.Run("bill code collision is retried", func(t *testing.T) {
		codes := []string{"BILL-fixed-code", "BILL-fixed-code", "BILL-second-code"}
		var mu sync.Mutex
		gen := func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}
		f := newFixture(t, db, WithBillCodeGenerator(gen))
		p := mustProduct(t, db, "1.00", 10, "")

		first, _ := mustUser(t, db, models.RoleUser)
		second, _ := mustUser(t, db, models.RoleUser)

		r1, err := f.svc.CreateBill(ctx, mustCart(t, db, first.ID, cartLine{p, 1}))
		require.NoError(t, err)
		r2, err := f.svc.CreateBill(ctx, mustCart(t, db, second.ID, cartLine{p, 2}))
		require.NoError(t, err)

		assert.Equal(t, "BILL-fixed-code", r1.Bill.Code)
		assert.Equal(t, "BILL-second-code", r2.Bill.Code)
		// The rolled back attempt must not have taken stock.
		assert.Equal(t, 7, stockOf(t, db, p.ID))
	})

	t.Run("concurrent checkouts never oversell", func(t *testing.T) {
		f := newFixture(t, db)
		p := mustProduct(t, db, "5.00", 5, "")

		const buyers = 4
		carts := make([]*models.Cart, buyers)
		for i := range carts {
			user, _ := mustUser(t, db, models.RoleUser)
			carts[i] = mustCart(t, db, user.ID, cartLine{p, 2})
		}

		var wg sync.WaitGroup
		results := make([]*Result, buyers)
		errs := make([]error, buyers)
		for i := range carts {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = f.svc.CreateBill(ctx, carts[i])
			}(i)
		}
		wg.Wait()

		sold := 0
		for i := range results {
			require.NoError(t, errs[i])
			for _, line := range results[i].Bill.Lines {
				sold += line.Quantity
			}
		}

		assert.Equal(t, 4, sold)
		assert.Equal(t, 1, stockOf(t, db, p.ID))
	})
}

func TestPurchaseCart(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("owner can purchase", func(t *testing.T) {
		f := newFixture(t, db)
		user, actor := mustUser(t, db, models.RoleUser)
		p := mustProduct(t, db, "2.00", 3, "")
		cart := mustCart(t, db, user.ID, cartLine{p, 1})

		result, err := f.svc.PurchaseCart(ctx, actor, cart.ID, "")
		require.NoError(t, err)
		assert.False(t, result.Replayed)
		assert.Len(t, result.Bill.Lines, 1)
	})

	t.Run("another user's cart is forbidden", func(t *testing.T) {
		f := newFixture(t, db)
		owner, _ := mustUser(t, db, models.RoleUser)
		_, stranger := mustUser(t, db, models.RoleUser)
		cart := mustCart(t, db, owner.ID)

		_, err := f.svc.PurchaseCart(ctx, stranger, cart.ID, "")
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	})

	t.Run("missing cart", func(t *testing.T) {
		f := newFixture(t, db)
		_, actor := mustUser(t, db, models.RoleUser)

		_, err := f.svc.PurchaseCart(ctx, actor, 123456, "")
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("repeated idempotency key replays the first bill", func(t *testing.T) {
		f := newFixture(t, db, WithIdempotencyStore(newMemoryIdempotency()))
		user, actor := mustUser(t, db, models.RoleUser)
		p := mustProduct(t, db, "7.00", 10, "")
		cart := mustCart(t, db, user.ID, cartLine{p, 2})

		first, err := f.svc.PurchaseCart(ctx, actor, cart.ID, "key-1")
		require.NoError(t, err)

		_, err = store.AddProductToCart(ctx, db, cart.ID, p.ID)
		require.NoError(t, err)

		second, err := f.svc.PurchaseCart(ctx, actor, cart.ID, "key-1")
		require.NoError(t, err)

		assert.True(t, second.Replayed)
		assert.Equal(t, first.Bill.ID, second.Bill.ID)
		assert.Equal(t, 8, stockOf(t, db, p.ID))

		third, err := f.svc.PurchaseCart(ctx, actor, cart.ID, "key-2")
		require.NoError(t, err)
		assert.NotEqual(t, first.Bill.ID, third.Bill.ID)
		assert.Equal(t, 7, stockOf(t, db, p.ID))
	})
}

func TestCartOperations(t *testing.T) {
	db, cleanup := dbtest.Setup(t)
	defer cleanup()

	ctx := context.Background()
	f := newFixture(t, db)

	t.Run("users cannot buy their own product", func(t *testing.T) {
		user, actor := mustUser(t, db, models.RoleUser)
		own := mustProduct(t, db, "1.00", 5, user.Email)
		cart := mustCart(t, db, user.ID)

		_, err := f.svc.AddProduct(ctx, actor, cart.ID, own.ID)
		assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	})

	t.Run("ownership falls back to the stored email", func(t *testing.T) {
		user, actor := mustUser(t, db, models.RolePremium)
		own := mustProduct(t, db, "1.00", 5, user.Email)
		cart := mustCart(t, db, user.ID)

		actor.Email = ""
		_, err := f.svc.AddProduct(ctx, actor, cart.ID, own.ID)
		assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
	})

	t.Run("admins may add any product", func(t *testing.T) {
		admin, actor := mustUser(t, db, models.RoleAdmin)
		p := mustProduct(t, db, "1.00", 5, admin.Email)
		cart := mustCart(t, db, admin.ID)

		updated, err := f.svc.AddProduct(ctx, actor, cart.ID, p.ID)
		require.NoError(t, err)
		line, ok := updated.Line(p.ID)
		require.True(t, ok)
		assert.Equal(t, 1, line.Quantity)
	})

	t.Run("adding several products is all or nothing", func(t *testing.T) {
		admin, actor := mustUser(t, db, models.RoleAdmin)
		p := mustProduct(t, db, "1.00", 5, "")
		cart := mustCart(t, db, admin.ID)

		_, err := f.svc.AddProducts(ctx, actor, cart.ID, []int64{p.ID, 99999999})
		require.Error(t, err)

		after, err := f.svc.GetCartByID(ctx, actor, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, after.Lines)
	})

	t.Run("cart of another user is forbidden", func(t *testing.T) {
		owner, _ := mustUser(t, db, models.RoleUser)
		_, stranger := mustUser(t, db, models.RoleUser)
		cart := mustCart(t, db, owner.ID)

		_, err := f.svc.GetCartByID(ctx, stranger, cart.ID)
		assert.True(t, errors.Is(err, apperr.ErrForbidden))

		err = f.svc.RemoveCart(ctx, stranger, cart.ID)
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
	})

	t.Run("quantity, removal and clearing", func(t *testing.T) {
		user, actor := mustUser(t, db, models.RoleUser)
		a := mustProduct(t, db, "1.00", 5, "")
		b := mustProduct(t, db, "1.00", 5, "")
		cart := mustCart(t, db, user.ID, cartLine{a, 1}, cartLine{b, 1})

		updated, err := f.svc.SetQuantity(ctx, actor, cart.ID, a.ID, "4")
		require.NoError(t, err)
		line, _ := updated.Line(a.ID)
		assert.Equal(t, 4, line.Quantity)

		_, err = f.svc.SetQuantity(ctx, actor, cart.ID, a.ID, "-1")
		assert.True(t, errors.Is(err, apperr.ErrValidation))

		updated, err = f.svc.RemoveProduct(ctx, actor, cart.ID, b.ID)
		require.NoError(t, err)
		assert.Len(t, updated.Lines, 1)

		_, err = f.svc.RemoveProduct(ctx, actor, cart.ID, b.ID)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))

		updated, err = f.svc.ClearCart(ctx, actor, cart.ID)
		require.NoError(t, err)
		assert.Empty(t, updated.Lines)

		require.NoError(t, f.svc.RemoveCart(ctx, actor, cart.ID))
		_, err = f.svc.GetCart(ctx, actor)
		assert.True(t, errors.Is(err, apperr.ErrNotFound))
	})

	t.Run("stock adjustments", func(t *testing.T) {
		p := mustProduct(t, db, "1.00", 2, "")

		updated, err := f.svc.AdjustStock(ctx, p.ID, 5)
		require.NoError(t, err)
		assert.Equal(t, 7, updated.Stock)

		_, err = f.svc.AdjustStock(ctx, p.ID, -100)
		assert.True(t, errors.Is(err, apperr.ErrValidation))
		assert.Equal(t, 7, stockOf(t, db, p.ID))
	})
}

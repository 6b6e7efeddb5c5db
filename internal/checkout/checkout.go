package checkout

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/database"
	"github.com/safar/cart-billing/internal/events"
	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/sirupsen/logrus"
)

type LineOutcome string

const (
	OutcomePurchased         LineOutcome = "purchased"
	OutcomeInsufficientStock LineOutcome = "insufficient_stock"
	OutcomeProductMissing    LineOutcome = "product_missing"
)

type LineResult struct {
	ProductID int64       `json:"product"`
	Quantity  int         `json:"quantity"`
	Outcome   LineOutcome `json:"outcome"`
}

// Result is a created bill plus what happened to every cart line. Replayed
// is set when an idempotent purchase returned an earlier bill; Lines is then
// empty.
type Result struct {
	Bill     *models.Bill `json:"bill"`
	Lines    []LineResult `json:"lines"`
	Replayed bool         `json:"replayed,omitempty"`
}

// Skipped lists the lines that stayed in the cart.
func (r *Result) Skipped() []LineResult {
	var out []LineResult
	for _, line := range r.Lines {
		if line.Outcome != OutcomePurchased {
			out = append(out, line)
		}
	}
	return out
}

const maxBillCodeAttempts = 3

// CreateBill checks out the cart in one database transaction. The cart row
// is locked and its lines re-read, so the cart argument only identifies the
// cart. Each line whose stock covers the requested quantity is decremented,
// removed from the cart and billed at the current price; the rest stay in
// the cart. A bill is created even when no line could be fulfilled.
func (s *Service) CreateBill(ctx context.Context, cart *models.Cart) (*Result, error) {
	const op = "checkout.CreateBill"

	if cart == nil {
		return nil, apperr.Validation(op, "cart missing")
	}

	start := time.Now()
	log := s.logger.WithFields(logrus.Fields{"cart_id": cart.ID, "user_id": cart.UserID})

	var result *Result
	var err error
	for attempt := 1; attempt <= maxBillCodeAttempts; attempt++ {
		err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			r, err := s.billCart(ctx, tx, cart.ID)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if !errors.Is(err, apperr.ErrConflict) {
			break
		}
		log.WithField("attempt", attempt).Warn("bill code collision, retrying checkout")
	}
	if err != nil {
		log.WithError(err).Error("checkout failed")
		if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.Storage(op, err)
		}
		return nil, err
	}

	elapsed := time.Since(start)
	s.observe(result, elapsed)

	bill := result.Bill
	s.publish(ctx, events.NewEvent(events.TypeBillCreated, bill.ID, bill.UserID, map[string]any{
		"code":  bill.Code,
		"total": bill.Total.String(),
		"lines": len(bill.Lines),
	}))

	log.WithFields(logrus.Fields{
		"bill_id":     bill.ID,
		"code":        bill.Code,
		"total":       bill.Total.String(),
		"skipped":     len(result.Skipped()),
		"duration_ms": elapsed.Milliseconds(),
	}).Info("bill created")

	return result, nil
}

func (s *Service) billCart(ctx context.Context, tx *sql.Tx, cartID int64) (*Result, error) {
	const op = "checkout.CreateBill"

	cart, err := store.GetCartForUpdate(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, apperr.NotFound(op, "could not find the cart")
	}

	bill := &models.Bill{
		UserID: cart.UserID,
		Date:   s.now().UTC(),
		Status: models.BillStatusNotPaid,
		Lines:  []models.BillLine{},
	}
	result := &Result{Bill: bill, Lines: make([]LineResult, 0, len(cart.Lines))}

	for _, line := range cart.Lines {
		outcome := LineResult{ProductID: line.ProductID, Quantity: line.Quantity}

		price, applied, err := store.DecrementStockIfAvailable(ctx, tx, line.ProductID, line.Quantity)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			outcome.Outcome = OutcomeProductMissing
		case err != nil:
			return nil, err
		case !applied:
			outcome.Outcome = OutcomeInsufficientStock
		default:
			if err := store.RemoveCartLine(ctx, tx, cart.ID, line.ProductID); err != nil {
				return nil, err
			}
			bill.Lines = append(bill.Lines, models.BillLine{
				ProductID: line.ProductID,
				Title:     line.Title,
				Price:     price,
				Quantity:  line.Quantity,
			})
			outcome.Outcome = OutcomePurchased
		}

		result.Lines = append(result.Lines, outcome)
	}

	bill.Total = models.SumLines(bill.Lines)

	code, err := s.newBillCode()
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	bill.Code = code

	if err := store.InsertBill(ctx, tx, bill); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) observe(result *Result, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.BillsCreated.Inc()
	s.metrics.DurationMS.Observe(float64(elapsed.Milliseconds()))
	total, _ := result.Bill.Total.Float64()
	s.metrics.BillTotal.Observe(total)
	for _, line := range result.Lines {
		s.metrics.Lines.WithLabelValues(string(line.Outcome)).Inc()
	}
}

// PurchaseCart is the caller-facing checkout. A repeated idempotency key
// returns the bill the first request produced instead of checking out
// again.
func (s *Service) PurchaseCart(ctx context.Context, actor Actor, cartID int64, idempotencyKey string) (*Result, error) {
	const op = "checkout.PurchaseCart"

	cart, err := s.authorizeCart(ctx, op, actor, cartID)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(idempotencyKey)
	scope := strconv.FormatInt(actor.UserID, 10)

	if key != "" {
		billID, reserved, err := s.idem.Reserve(ctx, scope, key)
		if err != nil {
			return nil, err
		}
		if !reserved {
			bill, err := s.GetBill(ctx, actor, billID)
			if err != nil {
				return nil, err
			}
			return &Result{Bill: bill, Lines: []LineResult{}, Replayed: true}, nil
		}
	}

	result, err := s.CreateBill(ctx, cart)
	if err != nil {
		if key != "" {
			if relErr := s.idem.Release(ctx, scope, key); relErr != nil {
				s.logger.WithError(relErr).Warn("failed to release idempotency key")
			}
		}
		return nil, err
	}

	if key != "" {
		if err := s.idem.Complete(ctx, scope, key, result.Bill.ID); err != nil {
			s.logger.WithError(err).WithField("bill_id", result.Bill.ID).Warn("failed to record idempotency key")
		}
	}

	return result, nil
}

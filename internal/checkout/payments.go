package checkout

import (
	"context"

	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/events"
	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	transitionStart    = "start"
	transitionComplete = "complete"
	transitionCancel   = "cancel"
)

// GetBill returns the bill if actor owns it or is an administrator.
func (s *Service) GetBill(ctx context.Context, actor Actor, billID int64) (*models.Bill, error) {
	const op = "checkout.GetBill"

	bill, err := s.loadBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperr.Forbidden(op, "the bill belongs to another user")
	}
	return bill, nil
}

func (s *Service) loadBill(ctx context.Context, billID int64) (*models.Bill, error) {
	return s.bills.Get(ctx, billID, s.billLoader(billID))
}

func (s *Service) billLoader(billID int64) func(context.Context) (*models.Bill, error) {
	return func(ctx context.Context) (*models.Bill, error) {
		return store.GetBillByID(ctx, s.db, billID)
	}
}

// rejectPaid refuses a transition on a bill already known to be paid. Paid
// never changes, so even a cached read is authoritative here; any other
// state is left to the conditional update.
func (s *Service) rejectPaid(ctx context.Context, op string, billID int64) error {
	bill, err := s.loadBill(ctx, billID)
	if err != nil || !bill.Status.IsTerminal() {
		return nil
	}
	return apperr.Validation(op, store.PaymentRejectedMessage)
}

// refreshBill writes the changed bill through the cache and returns its
// owner for the event. Owner 0 means the bill could not be re-read.
func (s *Service) refreshBill(ctx context.Context, billID int64) int64 {
	bill, err := s.bills.Refresh(ctx, billID, s.billLoader(billID))
	if err != nil {
		s.logger.WithError(err).WithField("bill_id", billID).Warn("could not re-read bill after update")
		return 0
	}
	return bill.UserID
}

func (s *Service) ListBills(ctx context.Context, actor Actor, cursor string, limit int) (*store.CursorPage[models.Bill], error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return store.ListBillsCursor(ctx, s.db, actor.UserID, cursor, limit)
}

// GenerateTransactionID opens a payment attempt on an unpaid bill. A new
// attempt replaces the pending one, so only the latest token can complete
// the payment.
func (s *Service) GenerateTransactionID(ctx context.Context, billID int64) (string, error) {
	const op = "checkout.GenerateTransactionID"

	if err := s.rejectPaid(ctx, op, billID); err != nil {
		s.countTransition(transitionStart, err)
		return "", err
	}

	token, err := s.newTransactionID()
	if err != nil {
		return "", apperr.Storage(op, err)
	}

	err = store.SetTransactionID(ctx, s.db, billID, token)
	s.countTransition(transitionStart, err)
	if err != nil {
		s.logger.WithError(err).WithField("bill_id", billID).Warn("could not start payment")
		return "", err
	}
	owner := s.refreshBill(ctx, billID)

	s.publish(ctx, events.NewEvent(events.TypeBillCheckoutStarted, billID, owner, nil))
	s.logger.WithField("bill_id", billID).Info("payment started")

	return token, nil
}

// CompletePayment moves the bill to Paid when transactionID is the pending
// token. Any mismatch fails with the same generic validation error.
func (s *Service) CompletePayment(ctx context.Context, billID int64, transactionID string) error {
	err := s.rejectPaid(ctx, "checkout.CompletePayment", billID)
	if err == nil {
		err = store.CompletePayment(ctx, s.db, billID, transactionID)
	}
	s.countTransition(transitionComplete, err)
	if err != nil {
		s.logger.WithError(err).WithField("bill_id", billID).Warn("payment rejected")
		return err
	}
	owner := s.refreshBill(ctx, billID)

	s.publish(ctx, events.NewEvent(events.TypeBillPaid, billID, owner, nil))
	s.logger.WithField("bill_id", billID).Info("bill paid")

	return nil
}

// CancelCheckout drops the pending payment attempt of an unpaid bill. It
// fails once the bill is paid.
func (s *Service) CancelCheckout(ctx context.Context, billID int64) error {
	err := s.rejectPaid(ctx, "checkout.CancelCheckout", billID)
	if err == nil {
		err = store.CancelCheckout(ctx, s.db, billID)
	}
	s.countTransition(transitionCancel, err)
	if err != nil {
		s.logger.WithError(err).WithField("bill_id", billID).Warn("could not cancel checkout")
		return err
	}
	owner := s.refreshBill(ctx, billID)

	s.publish(ctx, events.NewEvent(events.TypeBillCheckoutCancelled, billID, owner, nil))
	s.logger.WithFields(logrus.Fields{"bill_id": billID}).Info("checkout cancelled")

	return nil
}

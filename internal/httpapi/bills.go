package httpapi

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/cart-billing/internal/models"
)

// paymentLinks builds the URLs the payment provider redirects back to.
type paymentLinks struct {
	publicURL  string
	apiVersion string
}

func (l paymentLinks) success(billID int64, transactionID string) string {
	return fmt.Sprintf("%s/api/%s/bill/%d/payment/success?transactionId=%s",
		l.publicURL, l.apiVersion, billID, url.QueryEscape(transactionID))
}

func (l paymentLinks) cancel(billID int64) string {
	return fmt.Sprintf("%s/api/%s/bill/%d/payment/cancel", l.publicURL, l.apiVersion, billID)
}

type checkoutSession struct {
	BillID        int64  `json:"billId"`
	TransactionID string `json:"transactionId"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl"`
}

func handleListBills(bills BillService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := bills.ListBills(c.UserContext(), actorFrom(c), c.Query("cursor"), c.QueryInt("limit", 20))
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, page)
	}
}

func handleGetBill(bills BillService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bill, err := authorizedBill(c, bills)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, bill)
	}
}

// authorizedBill loads the bill named by :bid, failing unless the caller
// may see it.
func authorizedBill(c *fiber.Ctx, bills BillService) (*models.Bill, error) {
	billID, err := idParam(c, "bid")
	if err != nil {
		return nil, err
	}
	return bills.GetBill(c.UserContext(), actorFrom(c), billID)
}

func handleStartCheckout(bills BillService, links paymentLinks) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bill, err := authorizedBill(c, bills)
		if err != nil {
			return err
		}

		token, err := bills.GenerateTransactionID(c.UserContext(), bill.ID)
		if err != nil {
			return err
		}

		return respondJSON(c, fiber.StatusOK, checkoutSession{
			BillID:        bill.ID,
			TransactionID: token,
			SuccessURL:    links.success(bill.ID, token),
			CancelURL:     links.cancel(bill.ID),
		})
	}
}

func handlePaymentSuccess(bills BillService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bill, err := authorizedBill(c, bills)
		if err != nil {
			return err
		}

		if err := bills.CompletePayment(c.UserContext(), bill.ID, c.Query("transactionId")); err != nil {
			return err
		}

		return respondPaymentState(c, bills, bill.ID)
	}
}

func handlePaymentCancel(bills BillService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		bill, err := authorizedBill(c, bills)
		if err != nil {
			return err
		}

		if err := bills.CancelCheckout(c.UserContext(), bill.ID); err != nil {
			return err
		}

		return respondPaymentState(c, bills, bill.ID)
	}
}

func respondPaymentState(c *fiber.Ctx, bills BillService, billID int64) error {
	bill, err := bills.GetBill(c.UserContext(), actorFrom(c), billID)
	if err != nil {
		return err
	}
	return respondJSON(c, fiber.StatusOK, bill)
}

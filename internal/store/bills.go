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

// PaymentRejectedMessage is deliberately vague: a failed conditional update
// must not reveal whether the token, the status or the bill id was wrong.
const PaymentRejectedMessage = "something went wrong"

func paymentRejected(op string) error {
	return apperr.Validation(op, PaymentRejectedMessage)
}

// InsertBill writes the bill header and its lines, filling in ID and
// timestamps on bill.
func InsertBill(ctx context.Context, q database.Querier, bill *models.Bill) error {
	const op = "store.InsertBill"

	if bill.UserID == 0 || bill.Code == "" {
		return apperr.Validation(op, "user and code are required")
	}
	if bill.Status == "" {
		bill.Status = models.BillStatusNotPaid
	}
	if !bill.Status.Valid() {
		return apperr.Validation(op, "unknown bill status")
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO bills (user_id, code, issued_at, total, status, transaction_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		bill.UserID, bill.Code, bill.Date, bill.Total, bill.Status, bill.TransactionID,
	).Scan(&bill.ID, &bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "bills_code_key") {
			return apperr.Conflict(op, "bill code already exists")
		}
		return apperr.Storage(op, fmt.Errorf("create bill: %w", err))
	}

	for _, line := range bill.Lines {
		_, err := q.ExecContext(ctx,
			`INSERT INTO bill_items (bill_id, product_id, price, quantity)
			 VALUES ($1, $2, $3, $4)`,
			bill.ID, line.ProductID, line.Price, line.Quantity)
		if err != nil {
			return apperr.Storage(op, fmt.Errorf("create bill item: %w", err))
		}
	}

	return nil
}

// GetBillByID loads a bill with its lines, resolving product titles and the
// owner's email at read time.
func GetBillByID(ctx context.Context, q database.Querier, id int64) (*models.Bill, error) {
	const op = "store.GetBillByID"

	bill := &models.Bill{}
	var transactionID sql.NullString

	err := q.QueryRowContext(ctx,
		`SELECT b.id, b.user_id, u.email, b.code, b.issued_at, b.total, b.status,
		        b.transaction_id, b.created_at, b.updated_at
		 FROM bills b
		 JOIN users u ON u.id = b.user_id
		 WHERE b.id = $1`,
		id).Scan(
		&bill.ID,
		&bill.UserID,
		&bill.UserEmail,
		&bill.Code,
		&bill.Date,
		&bill.Total,
		&bill.Status,
		&transactionID,
		&bill.CreatedAt,
		&bill.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound(op, "could not find the bill")
		}
		return nil, apperr.Storage(op, fmt.Errorf("get bill: %w", err))
	}
	if transactionID.Valid {
		bill.TransactionID = &transactionID.String
	}

	lines, err := listBillLines(ctx, q, bill.ID)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	bill.Lines = lines

	return bill, nil
}

func listBillLines(ctx context.Context, q database.Querier, billID int64) ([]models.BillLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT bi.product_id, COALESCE(p.title, ''), bi.price, bi.quantity
		 FROM bill_items bi
		 LEFT JOIN products p ON p.id = bi.product_id
		 WHERE bi.bill_id = $1
		 ORDER BY bi.id`,
		billID)
	if err != nil {
		return nil, fmt.Errorf("get bill items: %w", err)
	}
	defer rows.Close()

	lines := []models.BillLine{}
	for rows.Next() {
		var line models.BillLine
		if err := rows.Scan(&line.ProductID, &line.Title, &line.Price, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan bill item: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

// SetTransactionID stores a pending payment token on an unpaid bill,
// replacing any token already pending.
func SetTransactionID(ctx context.Context, q database.Querier, billID int64, transactionID string) error {
	const op = "store.SetTransactionID"

	if transactionID == "" {
		return apperr.Validation(op, "transactionId is required")
	}

	result, err := q.ExecContext(ctx,
		`UPDATE bills
		 SET transaction_id = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		transactionID, billID, models.BillStatusNotPaid)

	return conditionalUpdate(op, result, err)
}

// CompletePayment marks the bill paid only if it is still unpaid and the
// supplied token is the pending one.
func CompletePayment(ctx context.Context, q database.Querier, billID int64, transactionID string) error {
	const op = "store.CompletePayment"

	if transactionID == "" {
		return paymentRejected(op)
	}

	result, err := q.ExecContext(ctx,
		`UPDATE bills
		 SET status = $1, transaction_id = NULL, updated_at = NOW()
		 WHERE id = $2 AND transaction_id = $3 AND status = $4`,
		models.BillStatusPaid, billID, transactionID, models.BillStatusNotPaid)

	return conditionalUpdate(op, result, err)
}

// CancelCheckout clears the pending token of an unpaid bill.
func CancelCheckout(ctx context.Context, q database.Querier, billID int64) error {
	const op = "store.CancelCheckout"

	result, err := q.ExecContext(ctx,
		`UPDATE bills
		 SET transaction_id = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		billID, models.BillStatusNotPaid)

	return conditionalUpdate(op, result, err)
}

func conditionalUpdate(op string, result sql.Result, err error) error {
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("update bill: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("get rows affected: %w", err))
	}
	if rowsAffected != 1 {
		return paymentRejected(op)
	}

	return nil
}

// ListBillsCursor pages through a user's bills, newest first.
func ListBillsCursor(ctx context.Context, q database.Querier, userID int64, cursor string, limit int) (*CursorPage[models.Bill], error) {
	const op = "store.ListBillsCursor"

	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, apperr.Validation(op, "invalid cursor")
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, code, issued_at, total, status, transaction_id, created_at, updated_at
		 FROM bills
		 WHERE user_id = $1
		   AND (issued_at, id) < ($2, $3)
		 ORDER BY issued_at DESC, id DESC
		 LIMIT $4`,
		userID, cursorData.Date, cursorData.ID, limit+1)
	if err != nil {
		return nil, apperr.Storage(op, fmt.Errorf("list bills: %w", err))
	}
	defer rows.Close()

	bills := []models.Bill{}
	for rows.Next() {
		var bill models.Bill
		var transactionID sql.NullString
		err := rows.Scan(
			&bill.ID,
			&bill.UserID,
			&bill.Code,
			&bill.Date,
			&bill.Total,
			&bill.Status,
			&transactionID,
			&bill.CreatedAt,
			&bill.UpdatedAt,
		)
		if err != nil {
			return nil, apperr.Storage(op, fmt.Errorf("scan bill: %w", err))
		}
		if transactionID.Valid {
			bill.TransactionID = &transactionID.String
		}
		bills = append(bills, bill)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, fmt.Errorf("rows error: %w", err))
	}

	hasMore := len(bills) > limit
	if hasMore {
		bills = bills[:limit]
	}

	var nextCursor string
	if hasMore && len(bills) > 0 {
		last := bills[len(bills)-1]
		nextCursor = EncodeCursor(BillCursor{Date: last.Date, ID: last.ID})
	}

	return &CursorPage[models.Bill]{
		Items:      bills,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

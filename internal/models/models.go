package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money goes over the wire as a JSON number, e.g. "total": 30.5.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	RoleAdmin   = "ADMIN"
	RoleUser    = "USER"
	RolePremium = "PREMIUM"

	// DefaultProductOwner owns products created by administrators.
	DefaultProductOwner = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Product struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Stock       int             `json:"stock"`
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int             `json:"version"`
}

// Cart is the single active cart of a user.
type Cart struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Lines     []CartLine `json:"products"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartLine carries the product as read when the cart was loaded; Title,
// Price and Stock are a read-time join, not owned by the cart.
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity"`
}

func (c *Cart) Line(productID int64) (CartLine, bool) {
	for _, line := range c.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return CartLine{}, false
}

type BillStatus string

const (
	BillStatusNotPaid BillStatus = "NotPaid"
	BillStatusPaid    BillStatus = "Paid"
)

func (s BillStatus) Valid() bool {
	return s == BillStatusNotPaid || s == BillStatusPaid
}

func (s BillStatus) IsTerminal() bool {
	return s == BillStatusPaid
}

type Bill struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user"`
	UserEmail     string          `json:"user_email,omitempty"`
	Code          string          `json:"code"`
	Date          time.Time       `json:"date"`
	Total         decimal.Decimal `json:"total"`
	TransactionID *string         `json:"transactionId"`
	Status        BillStatus      `json:"status"`
	Lines         []BillLine      `json:"products"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BillLine is a snapshot of one purchased cart line. Price is the unit price
// at the moment of sale.
type BillLine struct {
	ProductID int64           `json:"product"`
	Title     string          `json:"title,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (l BillLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SumLines is the bill total for a set of lines.
func SumLines(lines []BillLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

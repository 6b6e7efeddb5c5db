// Package httpapi exposes carts, bills and stock over HTTP with fiber.
package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/safar/cart-billing/internal/checkout"
	"github.com/safar/cart-billing/internal/metrics"
	"github.com/safar/cart-billing/internal/models"
	"github.com/safar/cart-billing/internal/store"
	"github.com/sirupsen/logrus"
)

type CartService interface {
	GetCart(ctx context.Context, actor checkout.Actor) (*models.Cart, error)
	CreateCart(ctx context.Context, actor checkout.Actor) (*models.Cart, error)
	GetCartByID(ctx context.Context, actor checkout.Actor, cartID int64) (*models.Cart, error)
	AddProduct(ctx context.Context, actor checkout.Actor, cartID, productID int64) (*models.Cart, error)
	AddProducts(ctx context.Context, actor checkout.Actor, cartID int64, productIDs []int64) (*models.Cart, error)
	SetQuantity(ctx context.Context, actor checkout.Actor, cartID, productID int64, rawQuantity string) (*models.Cart, error)
	RemoveProduct(ctx context.Context, actor checkout.Actor, cartID, productID int64) (*models.Cart, error)
	ClearCart(ctx context.Context, actor checkout.Actor, cartID int64) (*models.Cart, error)
	RemoveCart(ctx context.Context, actor checkout.Actor, cartID int64) error
	PurchaseCart(ctx context.Context, actor checkout.Actor, cartID int64, idempotencyKey string) (*checkout.Result, error)
}

type BillService interface {
	GetBill(ctx context.Context, actor checkout.Actor, billID int64) (*models.Bill, error)
	ListBills(ctx context.Context, actor checkout.Actor, cursor string, limit int) (*store.CursorPage[models.Bill], error)
	GenerateTransactionID(ctx context.Context, billID int64) (string, error)
	CompletePayment(ctx context.Context, billID int64, transactionID string) error
	CancelCheckout(ctx context.Context, billID int64) error
}

type InventoryService interface {
	GetProduct(ctx context.Context, productID int64) (*models.Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (*models.Product, error)
}

type Options struct {
	APIVersion    string
	PublicURL     string
	SigningSecret string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration

	Logger   *logrus.Logger
	Metrics  *metrics.ServerMetrics
	Gatherer prometheus.Gatherer
	// Health reports whether dependencies are reachable; nil means always
	// healthy.
	Health func(ctx context.Context) error
}

// NewApp wires middleware and routes. Everything under /api/<version>
// requires a signed token.
func NewApp(opts Options, carts CartService, bills BillService, inventory InventoryService) *fiber.App {
	log := logrus.FieldLogger(opts.Logger)

	app := fiber.New(fiber.Config{
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		ErrorHandler:          errorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} ${latency} ${method} ${path}\n",
		Output: opts.Logger.Writer(),
	}))
	if opts.Metrics != nil {
		app.Use(requestMetrics(opts.Metrics))
	}

	app.Get("/healthz", handleHealth(opts.Health))
	if opts.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(opts.Gatherer)))
	}

	api := app.Group("/api/"+opts.APIVersion, AuthRequired(opts.SigningSecret))

	cart := api.Group("/cart", RoleRequired(models.RoleAdmin, models.RoleUser, models.RolePremium))
	cart.Get("/", handleGetCart(carts))
	cart.Post("/", handleCreateCart(carts))
	cart.Get("/:cid", handleGetCartByID(carts))
	cart.Put("/:cid", handleAddProducts(carts))
	cart.Delete("/:cid", handleClearCart(carts))
	cart.Post("/:cid/purchase", handlePurchaseCart(carts))
	cart.Post("/:cid/product/:pid", handleAddProduct(carts))
	cart.Put("/:cid/product/:pid", handleSetQuantity(carts))
	cart.Delete("/:cid/product/:pid", handleRemoveProduct(carts))
	cart.Delete("/:cid/removeCart", handleRemoveCart(carts))

	links := paymentLinks{publicURL: opts.PublicURL, apiVersion: opts.APIVersion}
	bill := api.Group("/bill")
	bill.Get("/", handleListBills(bills))
	bill.Get("/:bid", handleGetBill(bills))
	bill.Post("/:bid/checkout", handleStartCheckout(bills, links))
	bill.Get("/:bid/payment/success", handlePaymentSuccess(bills))
	bill.Get("/:bid/payment/cancel", handlePaymentCancel(bills))

	products := api.Group("/products")
	products.Get("/:pid", handleGetProduct(inventory))
	products.Patch("/:pid/stock", RoleRequired(models.RoleAdmin), handleAdjustStock(inventory))

	return app
}

func handleHealth(check func(ctx context.Context) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if check != nil {
			if err := check(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}

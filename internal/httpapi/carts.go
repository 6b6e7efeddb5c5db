package httpapi

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/checkout"
	"github.com/safar/cart-billing/internal/models"
)

const (
	// IdempotencyHeader lets a client retry a purchase without buying twice.
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
)

func handleGetCart(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cart, err := carts.GetCart(c.UserContext(), actorFrom(c))
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

func handleCreateCart(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cart, err := carts.CreateCart(c.UserContext(), actorFrom(c))
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusCreated, cart)
	}
}

func handleGetCartByID(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cartID, err := idParam(c, "cid")
		if err != nil {
			return err
		}
		cart, err := carts.GetCartByID(c.UserContext(), actorFrom(c), cartID)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

func handleAddProducts(carts CartService) fiber.Handler {
	const op = "httpapi.AddProducts"

	return func(c *fiber.Ctx) error {
		cartID, err := idParam(c, "cid")
		if err != nil {
			return err
		}

		var req struct {
			Products []int64 `json:"products"`
		}
		if err := c.BodyParser(&req); err != nil || req.Products == nil {
			return apperr.Validation(op, "products is required and should be an array")
		}

		cart, err := carts.AddProducts(c.UserContext(), actorFrom(c), cartID, req.Products)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

func handleClearCart(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cartID, err := idParam(c, "cid")
		if err != nil {
			return err
		}
		cart, err := carts.ClearCart(c.UserContext(), actorFrom(c), cartID)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

// purchaseResponse keeps payload a plain Bill. What happened to each cart
// line travels next to it.
type purchaseResponse struct {
	Status  string                `json:"status"`
	Payload *models.Bill          `json:"payload"`
	Lines   []checkout.LineResult `json:"lines"`
}

// handlePurchaseCart answers 200 with the bill, partial or not. A replayed
// idempotency key is flagged by ReplayedHeader and carries no lines.
func handlePurchaseCart(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cartID, err := idParam(c, "cid")
		if err != nil {
			return err
		}

		result, err := carts.PurchaseCart(c.UserContext(), actorFrom(c), cartID, c.Get(IdempotencyHeader))
		if err != nil {
			return err
		}

		if result.Replayed {
			c.Set(ReplayedHeader, "true")
		}
		lines := result.Lines
		if lines == nil {
			lines = []checkout.LineResult{}
		}
		return c.Status(fiber.StatusOK).JSON(purchaseResponse{
			Status:  statusSuccess,
			Payload: result.Bill,
			Lines:   lines,
		})
	}
}

func handleAddProduct(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cartID, productID, err := idParams(c, "cid", "pid")
		if err != nil {
			return err
		}
		cart, err := carts.AddProduct(c.UserContext(), actorFrom(c), cartID, productID)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

func handleSetQuantity(carts CartService) fiber.Handler {
	const op = "httpapi.SetQuantity"

	return func(c *fiber.Ctx) error {
		cartID, productID, err := idParams(c, "cid", "pid")
		if err != nil {
			return err
		}

		var req struct {
			Quantity json.Number `json:"quantity"`
		}
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation(op, "quantity is required and needs to be a valid positive integer")
		}

		cart, err := carts.SetQuantity(c.UserContext(), actorFrom(c), cartID, productID, req.Quantity.String())
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

func handleRemoveProduct(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cartID, productID, err := idParams(c, "cid", "pid")
		if err != nil {
			return err
		}
		cart, err := carts.RemoveProduct(c.UserContext(), actorFrom(c), cartID, productID)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, cart)
	}
}

func handleRemoveCart(carts CartService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cartID, err := idParam(c, "cid")
		if err != nil {
			return err
		}
		if err := carts.RemoveCart(c.UserContext(), actorFrom(c), cartID); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

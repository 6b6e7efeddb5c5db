package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/safar/cart-billing/internal/apperr"
)

func handleGetProduct(inventory InventoryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		productID, err := idParam(c, "pid")
		if err != nil {
			return err
		}
		product, err := inventory.GetProduct(c.UserContext(), productID)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, product)
	}
}

// handleAdjustStock applies a signed restock or write-off.
func handleAdjustStock(inventory InventoryService) fiber.Handler {
	const op = "httpapi.AdjustStock"

	return func(c *fiber.Ctx) error {
		productID, err := idParam(c, "pid")
		if err != nil {
			return err
		}

		var req struct {
			Delta int `json:"delta"`
		}
		if err := c.BodyParser(&req); err != nil || req.Delta == 0 {
			return apperr.Validation(op, "delta is required and must be a non-zero integer")
		}

		product, err := inventory.AdjustStock(c.UserContext(), productID, req.Delta)
		if err != nil {
			return err
		}
		return respondJSON(c, fiber.StatusOK, product)
	}
}

package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/safar/cart-billing/internal/apperr"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func respondJSON(c *fiber.Ctx, status int, payload any) error {
	return c.Status(status).JSON(fiber.Map{"status": statusSuccess, "payload": payload})
}

func errorBody(message string) fiber.Map {
	return fiber.Map{"status": statusError, "message": message}
}

func idParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("httpapi.idParam", "invalid "+name)
	}
	return id, nil
}

func idParams(c *fiber.Ctx, first, second string) (int64, int64, error) {
	a, err := idParam(c, first)
	if err != nil {
		return 0, 0, err
	}
	b, err := idParam(c, second)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

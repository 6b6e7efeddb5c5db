package httpapi

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/cart-billing/internal/apperr"
	"github.com/safar/cart-billing/internal/checkout"
	"github.com/safar/cart-billing/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	actorKey = "actor"
	// TokenCookie is the cookie browsers carry the access token in.
	TokenCookie = "jwt"
)

// AuthRequired accepts an HS256 token from the Authorization header or the
// jwt cookie and stores the caller as a checkout.Actor.
func AuthRequired(secret string) fiber.Handler {
	const op = "httpapi.AuthRequired"

	return func(c *fiber.Ctx) error {
		tokenStr := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenStr == "" {
			tokenStr = c.Cookies(TokenCookie)
		}
		if tokenStr == "" {
			return apperr.Unauthorized(op, "missing auth")
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return apperr.Unauthorized(op, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.Unauthorized(op, "invalid token")
		}

		actor, ok := actorFromClaims(claims)
		if !ok {
			return apperr.Unauthorized(op, "invalid token")
		}

		c.Locals(actorKey, actor)
		return c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// actorFromClaims reads sub as a JSON number or a numeric string.
func actorFromClaims(claims jwt.MapClaims) (checkout.Actor, bool) {
	var userID int64
	switch sub := claims["sub"].(type) {
	case float64:
		userID = int64(sub)
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return checkout.Actor{}, false
		}
		userID = id
	default:
		return checkout.Actor{}, false
	}
	if userID <= 0 {
		return checkout.Actor{}, false
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return checkout.Actor{UserID: userID, Email: email, Role: role}, true
}

func RoleRequired(roles ...string) fiber.Handler {
	const op = "httpapi.RoleRequired"

	return func(c *fiber.Ctx) error {
		actor, ok := c.Locals(actorKey).(checkout.Actor)
		if !ok {
			return apperr.Forbidden(op, "no role")
		}
		for _, r := range roles {
			if actor.Role == r {
				return c.Next()
			}
		}
		return apperr.Forbidden(op, "forbidden")
	}
}

func actorFrom(c *fiber.Ctx) checkout.Actor {
	actor, _ := c.Locals(actorKey).(checkout.Actor)
	return actor
}

// requestMetrics renders errors itself so the recorded status is the one
// the client sees.
func requestMetrics(m *metrics.ServerMetrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		if err := c.Next(); err != nil {
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := c.Route().Path
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Response().StatusCode())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		return nil
	}
}

func errorHandler(logger logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(errorBody(fe.Message))
		}

		status := apperr.HTTPStatus(apperr.KindOf(err))
		if status >= fiber.StatusInternalServerError {
			logger.WithError(err).WithFields(logrus.Fields{
				"method": c.Method(),
				"path":   c.Path(),
			}).Error("request failed")
		}

		return c.Status(status).JSON(errorBody(apperr.PublicMessage(err)))
	}
}

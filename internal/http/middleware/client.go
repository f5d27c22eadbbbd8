package middleware

import (
	"github.com/gofiber/fiber/v2"

	"shareapi/internal/lifecycle"
)

// ClientContext copies the caller's address and user agent into the request
// context so access log entries written further down can attribute them.
func ClientContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := lifecycle.WithClient(c.UserContext(), lifecycle.Client{
			IP:        c.IP(),
			UserAgent: string(c.Request().Header.UserAgent()),
		})
		c.SetUserContext(ctx)
		return c.Next()
	}
}

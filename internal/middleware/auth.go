package middleware

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/trustedcoder/typira-home/pkg/auth"
)

// AuthMiddleware verifies JWT tokens from the Authorization header or, for
// WebSocket upgrades, the `token` query parameter.
func AuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	return func(c *fiber.Ctx) error {
		environment := os.Getenv("ENVIRONMENT")

		if jwtAuth == nil {
			// Never allow auth bypass in production.
			if environment == "production" {
				log.Fatal("❌ CRITICAL: JWT auth not configured in production environment")
			}
			if environment != "development" && environment != "testing" && environment != "" {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Authentication service unavailable",
				})
			}
			c.Locals("user_id", "dev-user")
			c.Locals("user_email", "dev@localhost")
			return c.Next()
		}

		var token string
		if authHeader := c.Get("Authorization"); authHeader != "" {
			if extracted, err := auth.ExtractToken(authHeader); err == nil {
				token = extracted
			}
		}
		// WebSocket clients can't set headers during the upgrade.
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		user, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("user_id", user.ID)
		c.Locals("user_email", user.Email)
		return c.Next()
	}
}

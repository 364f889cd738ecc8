package middleware

import (
	"crypto/subtle"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"fundpilot/internal/config"
)

// AdminMiddleware guards operational routes with a shared admin key sent
// in the X-Admin-Key header. With no key configured the routes stay open
// in development and are refused in production.
func AdminMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.AdminAPIKey == "" {
			if os.Getenv("ENVIRONMENT") == "production" {
				log.Println("❌ [ADMIN] ADMIN_API_KEY not configured, refusing admin route in production")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Admin routes unavailable",
				})
			}
			return c.Next()
		}

		provided := c.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.AdminAPIKey)) != 1 {
			log.Printf("🚫 [ADMIN] Rejected admin request from %s", c.IP())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}

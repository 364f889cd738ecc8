package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Global limits (per IP)
	GlobalAPIMax        int
	GlobalAPIExpiration time.Duration

	// Authentication endpoint limits (per IP)
	AuthMax        int
	AuthExpiration time.Duration

	// Ask endpoint limits (per session)
	AskMax        int
	AskExpiration time.Duration

	// WebSocket connection limits (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns production-safe defaults
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		GlobalAPIMax:        200,
		GlobalAPIExpiration: 1 * time.Minute,

		// Auth creates sessions and DB rows, keep it tight
		AuthMax:        20,
		AuthExpiration: 1 * time.Minute,

		// Each ask is an upstream model call
		AskMax:        30,
		AskExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	if v := os.Getenv("RATE_LIMIT_GLOBAL_API"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.GlobalAPIMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_AUTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.AuthMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_ASK"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.AskMax = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WEBSOCKET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WebSocketMax = n
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.GlobalAPIMax = 1000
		config.AskMax = 300
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

// GlobalAPIRateLimiter creates a rate limiter for all API requests
func GlobalAPIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.GlobalAPIMax,
		Expiration: config.GlobalAPIExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "global:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] Global limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many requests. Please slow down.",
				"retry_after": int(config.GlobalAPIExpiration.Seconds()),
			})
		},
	})
}

// AuthRateLimiter limits session-creation attempts per IP
func AuthRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AuthMax,
		Expiration: config.AuthExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Auth limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many authentication attempts. Please wait before trying again.",
				"retry_after": int(config.AuthExpiration.Seconds()),
			})
		},
	})
}

// AskRateLimiter limits question turns per session, falling back to IP
// when no session is on the request yet
func AskRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.AskMax,
		Expiration: config.AskExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if sessionID, ok := c.Locals("session_id").(string); ok && sessionID != "" {
				return "ask:" + sessionID
			}
			return "ask-ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("⚠️  [RATE-LIMIT] Ask limit reached for %v on %s", c.Locals("session_id"), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many questions. Please wait before asking again.",
				"retry_after": int(config.AskExpiration.Seconds()),
			})
		},
	})
}

// WebSocketRateLimiter limits WebSocket connection attempts per IP
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        config.WebSocketMax,
		Expiration: config.WebSocketExpiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ws:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] WebSocket connection limit reached for IP: %s", c.IP())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Too many connection attempts. Please wait before reconnecting.",
				"retry_after": int(config.WebSocketExpiration.Seconds()),
			})
		},
	})
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"fundpilot/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	pool         *services.KeyPool
	mongoEnabled bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(pool *services.KeyPool, mongoEnabled bool) *HealthHandler {
	return &HealthHandler{pool: pool, mongoEnabled: mongoEnabled}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	active := 0
	for _, count := range h.pool.UsageSnapshot() {
		active += count
	}

	return c.JSON(fiber.Map{
		"status":          "healthy",
		"active_sessions": active,
		"mongodb":         h.mongoEnabled,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

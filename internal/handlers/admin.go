package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"fundpilot/internal/jobs"
	"fundpilot/internal/services"
)

// AdminHandler exposes the manual cleanup trigger and debug views over
// the in-memory state
type AdminHandler struct {
	cleanup *jobs.SessionCleanupJob
	pool    *services.KeyPool
	buffers *services.BufferService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cleanup *jobs.SessionCleanupJob, pool *services.KeyPool, buffers *services.BufferService) *AdminHandler {
	return &AdminHandler{
		cleanup: cleanup,
		pool:    pool,
		buffers: buffers,
	}
}

// HandleCleanupExpired runs one sweep pass on demand, outside the schedule
func (h *AdminHandler) HandleCleanupExpired(c *fiber.Ctx) error {
	log.Printf("🧹 [ADMIN] Manual cleanup requested")

	result := h.cleanup.Sweep(c.Context())
	if result.Fatal != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"cleared_sessions": result.Cleared,
			"failed_sessions":  result.Failed,
			"error":            result.Fatal.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"cleared_sessions": result.Cleared,
		"failed_sessions":  result.Failed,
		"error":            nil,
	})
}

// HandleKeyUsage reports active session counts per credential
func (h *AdminHandler) HandleKeyUsage(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"usage": h.pool.UsageSnapshot(),
	})
}

// HandleKeyAssignments reports which credential each session holds
func (h *AdminHandler) HandleKeyAssignments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"assignments": h.pool.AssignmentSnapshot(),
	})
}

// HandleBuffers reports all live conversation buffers
func (h *AdminHandler) HandleBuffers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"buffers": h.buffers.Snapshot(),
	})
}

// HandleBuffer reports one session's conversation buffer
func (h *AdminHandler) HandleBuffer(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"history":    h.buffers.AsHistory(sessionID),
	})
}

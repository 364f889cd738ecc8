package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"fundpilot/internal/models"
	"fundpilot/internal/services"
)

// ChatHandler handles question turns and conversation lifecycle requests
type ChatHandler struct {
	orchestrator *services.Orchestrator
	sessions     *services.SessionService
	buffers      *services.BufferService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(orchestrator *services.Orchestrator, sessions *services.SessionService, buffers *services.BufferService) *ChatHandler {
	return &ChatHandler{
		orchestrator: orchestrator,
		sessions:     sessions,
		buffers:      buffers,
	}
}

// HandleAsk runs one conversation turn for the authenticated session
func (h *ChatHandler) HandleAsk(c *fiber.Ctx) error {
	sessionID, _ := c.Locals("session_id").(string)
	if sessionID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing session",
		})
	}

	var req models.AskRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question is required",
		})
	}

	userInfo := h.userInfo(c, sessionID)

	result, err := h.orchestrator.RunTurn(c.Context(), sessionID, req.Question, userInfo)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownSession):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found. Please authenticate again.",
			})
		case errors.Is(err, services.ErrNoCredential):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Service at capacity. Please try again later.",
			})
		case errors.Is(err, services.ErrToolRoundsExceeded):
			log.Printf("❌ [CHAT] Turn failed for session %s: %v", sessionID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Unable to complete the request. Please rephrase your question.",
			})
		default:
			log.Printf("❌ [CHAT] Turn failed for session %s: %v", sessionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to process question",
			})
		}
	}

	return c.JSON(fiber.Map{
		"answer":     result.Answer,
		"message_id": result.MessageID,
		"tool_usage": result.ToolUsage,
		"auth":       result.AuthGate,
	})
}

// HandleReset clears the session's conversation buffer. The session and
// its credential stay live.
func (h *ChatHandler) HandleReset(c *fiber.Ctx) error {
	sessionID, _ := c.Locals("session_id").(string)
	if sessionID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing session",
		})
	}

	h.buffers.Reset(sessionID)
	log.Printf("🔄 [CHAT] Conversation reset for session %s", sessionID)

	return c.JSON(fiber.Map{
		"status":     "reset",
		"session_id": sessionID,
	})
}

// HandleDisconnect releases the session's credential and buffer. The
// ledger row remains for possible reuse until it expires.
func (h *ChatHandler) HandleDisconnect(c *fiber.Ctx) error {
	sessionID, _ := c.Locals("session_id").(string)
	if sessionID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing session",
		})
	}

	h.sessions.Disconnect(sessionID)
	log.Printf("👋 [CHAT] Session %s disconnected", sessionID)

	return c.JSON(fiber.Map{
		"status":     "disconnected",
		"session_id": sessionID,
	})
}

// userInfo pulls the caller's profile off the ledger so prompts can be
// personalized without resending the profile on every question
func (h *ChatHandler) userInfo(c *fiber.Ctx, sessionID string) map[string]string {
	session, err := h.sessions.Get(c.Context(), sessionID)
	if err != nil {
		return nil
	}
	return session.UserInfo
}

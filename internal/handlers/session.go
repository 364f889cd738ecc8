package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"fundpilot/internal/models"
	"fundpilot/internal/services"
	"fundpilot/pkg/auth"
)

// SessionHandler handles session authentication requests
type SessionHandler struct {
	sessions *services.SessionService
	tokens   *auth.SessionTokenAuth // nil in development mode
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *services.SessionService, tokens *auth.SessionTokenAuth) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens}
}

// HandleAuth resolves the caller's organization from its API key and
// returns a session, reusing a live one for the same browser session
// unless a fresh chat was requested.
func (h *SessionHandler) HandleAuth(c *fiber.Ctx) error {
	var req models.AuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.APIKey == "" || req.UserID == "" || req.WebSessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "api_key, user_id and web_session_id are required",
		})
	}

	session, err := h.sessions.Authenticate(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAPIKey):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid API key",
			})
		case errors.Is(err, services.ErrNoCredential):
			log.Printf("❌ [AUTH] No upstream credential available for user %s", req.UserID)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Service at capacity. Please try again later.",
			})
		default:
			log.Printf("❌ [AUTH] Authentication failed for user %s: %v", req.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Authentication failed",
			})
		}
	}

	resp := models.AuthResponse{SessionID: session.SessionID}
	if h.tokens != nil {
		token, err := h.tokens.GenerateToken(session.SessionID, session.UserID, session.OrgID)
		if err != nil {
			log.Printf("❌ [AUTH] Token generation failed for session %s: %v", session.SessionID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Authentication failed",
			})
		}
		resp.Token = token
	}

	return c.JSON(resp)
}

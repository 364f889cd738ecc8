package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"fundpilot/internal/services"
)

// StreamHandler streams model answers over a WebSocket connection
type StreamHandler struct {
	orchestrator *services.Orchestrator
	sessions     *services.SessionService
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(orchestrator *services.Orchestrator, sessions *services.SessionService) *StreamHandler {
	return &StreamHandler{orchestrator: orchestrator, sessions: sessions}
}

// StreamClientMessage represents a message from the client
type StreamClientMessage struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
}

// StreamServerMessage represents a message to the client
type StreamServerMessage struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handle runs the per-connection read loop. Questions arrive as JSON
// messages and answers stream back as chunk messages followed by a
// complete message carrying the message id.
func (h *StreamHandler) Handle(c *websocket.Conn) {
	sessionID, ok := c.Locals("session_id").(string)
	if !ok || sessionID == "" {
		log.Printf("[STREAM-WS] Connection rejected: missing session_id")
		c.WriteJSON(StreamServerMessage{Type: "error", Error: "unauthorized"})
		return
	}

	log.Printf("[STREAM-WS] Connection opened for session %s", sessionID)
	defer log.Printf("[STREAM-WS] Connection closed for session %s", sessionID)

	// Serializes answer chunks against protocol pings
	var writeMu sync.Mutex
	writeJSON := func(msg StreamServerMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteJSON(msg)
	}

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeMu.Lock()
				err := c.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	var userInfo map[string]string
	if session, err := h.sessions.Get(context.Background(), sessionID); err == nil {
		userInfo = session.UserInfo
	}

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[STREAM-WS] Read error for session %s: %v", sessionID, err)
			}
			return
		}

		var clientMsg StreamClientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			writeJSON(StreamServerMessage{Type: "error", Error: "invalid message format"})
			continue
		}

		switch clientMsg.Type {
		case "ping":
			writeJSON(StreamServerMessage{Type: "pong"})

		case "ask":
			if clientMsg.Question == "" {
				writeJSON(StreamServerMessage{Type: "error", Error: "question is required"})
				continue
			}

			result, err := h.orchestrator.RunTurnStream(context.Background(), sessionID, clientMsg.Question, userInfo, func(delta string) {
				writeJSON(StreamServerMessage{Type: "chunk", Content: delta})
			})
			if err != nil {
				log.Printf("[STREAM-WS] Turn failed for session %s: %v", sessionID, err)
				writeJSON(StreamServerMessage{Type: "error", Error: "failed to process question"})
				continue
			}

			writeJSON(StreamServerMessage{
				Type:      "complete",
				MessageID: result.MessageID,
			})

		default:
			writeJSON(StreamServerMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Session represents one logical conversation between a user and an organization.
// WebSessionID is the client-side correlation token used to reuse a live session
// on reconnect instead of creating a new one.
type Session struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID    string             `bson:"session_id" json:"session_id"`
	UserID       string             `bson:"user_id" json:"user_id"`
	OrgID        string             `bson:"org_id" json:"org_id"`
	UserInfo     map[string]string  `bson:"user_info,omitempty" json:"user_info,omitempty"`
	WebSessionID string             `bson:"web_session_id" json:"web_session_id"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expires_at"`
	Reclaimed    bool               `bson:"reclaimed" json:"reclaimed"` // buffer + credential released by the sweeper
	LastAuthAt   *time.Time         `bson:"last_auth_at,omitempty" json:"last_auth_at,omitempty"`
}

// Expired reports whether the session's validity window has passed.
// An expired session can still answer until the sweeper reclaims it;
// expiry only blocks reuse and triggers cleanup.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// AuthRequest is the request body for session authentication
type AuthRequest struct {
	APIKey       string            `json:"api_key"`
	UserID       string            `json:"user_id"`
	WebSessionID string            `json:"web_session_id"`
	UserInfo     map[string]string `json:"user_info,omitempty"`
	NewChat      bool              `json:"new_chat,omitempty"`
}

// AuthResponse is returned after a successful authentication
type AuthResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

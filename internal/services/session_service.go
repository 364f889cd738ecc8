package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"fundpilot/internal/models"
)

// ErrNoCredential is surfaced when a session cannot get an upstream key.
// Retryable: the caller should back off and re-authenticate.
var ErrNoCredential = errors.New("no upstream credential available")

// SessionService owns session identity: authentication, reuse within the
// validity window, credential assignment, and teardown.
type SessionService struct {
	ledger  SessionLedger
	pool    *KeyPool
	buffers *BufferService
	orgs    *OrgService // nil in development mode without MongoDB
	ttl     time.Duration
}

// NewSessionService creates a session service
func NewSessionService(ledger SessionLedger, pool *KeyPool, buffers *BufferService, orgs *OrgService, ttl time.Duration) *SessionService {
	return &SessionService{
		ledger:  ledger,
		pool:    pool,
		buffers: buffers,
		orgs:    orgs,
		ttl:     ttl,
	}
}

// Authenticate validates the org API key, refreshes the user record, and
// returns a live session: an existing one when the same web session
// reconnects inside the validity window, otherwise a new one. newChat
// forces a fresh session regardless of reuse candidates.
func (s *SessionService) Authenticate(ctx context.Context, req *models.AuthRequest) (*models.Session, error) {
	orgID, err := s.resolveOrg(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	if s.orgs != nil {
		if err := s.orgs.UpsertUser(ctx, req.UserID, orgID, req.UserInfo); err != nil {
			// Profile refresh failing should not block the conversation
			log.Printf("⚠️  [SESSION] Failed to upsert user %s: %v", req.UserID, err)
		}
	}

	now := time.Now().UTC()

	if !req.NewChat {
		existing, err := s.ledger.FindReusable(ctx, req.UserID, orgID, req.WebSessionID, now)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := s.ledger.Touch(ctx, existing.SessionID, req.UserInfo, now); err != nil {
				return nil, err
			}
			if _, err := s.pool.Assign(existing.SessionID); err != nil {
				return nil, ErrNoCredential
			}
			log.Printf("🔁 [SESSION] Reusing session %s for user %s", existing.SessionID, req.UserID)
			return existing, nil
		}
	}

	session := &models.Session{
		SessionID:    uuid.NewString(),
		UserID:       req.UserID,
		OrgID:        orgID,
		UserInfo:     req.UserInfo,
		WebSessionID: req.WebSessionID,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		Reclaimed:    false,
	}

	if _, err := s.pool.Assign(session.SessionID); err != nil {
		return nil, ErrNoCredential
	}

	if err := s.ledger.CreateSession(ctx, session); err != nil {
		s.pool.Release(session.SessionID)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Printf("✨ [SESSION] Created session %s for user %s (org %s, expires %s)",
		session.SessionID, req.UserID, orgID, session.ExpiresAt.Format(time.RFC3339))
	return session, nil
}

func (s *SessionService) resolveOrg(ctx context.Context, apiKey string) (string, error) {
	if s.orgs == nil {
		// Development mode without MongoDB: single implicit tenant
		return "dev-org", nil
	}
	org, err := s.orgs.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return "", err
	}
	return org.ID.Hex(), nil
}

// IsValid reports whether the session id exists. Expired sessions remain
// valid for answering until the sweeper reclaims them.
func (s *SessionService) IsValid(ctx context.Context, sessionID string) bool {
	ok, err := s.ledger.IsValid(ctx, sessionID)
	if err != nil {
		log.Printf("❌ [SESSION] Validity check failed for %s: %v", sessionID, err)
		return false
	}
	return ok
}

// Get loads the session row
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return s.ledger.Get(ctx, sessionID)
}

// Disconnect releases the session's credential and drops its buffer.
// The ledger row stays for the sweeper to mark once expiry passes.
func (s *SessionService) Disconnect(sessionID string) {
	s.pool.Release(sessionID)
	s.buffers.Remove(sessionID)
	log.Printf("👋 [SESSION] Disconnected session %s", sessionID)
}

// LastAuthAt returns the session's last auth-gate grant time, if any
func (s *SessionService) LastAuthAt(ctx context.Context, sessionID string) (*time.Time, error) {
	session, err := s.ledger.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.LastAuthAt, nil
}

// RecordAuthGrant stamps now as the session's last auth-gate grant
func (s *SessionService) RecordAuthGrant(ctx context.Context, sessionID string, now time.Time) error {
	return s.ledger.SetLastAuth(ctx, sessionID, now)
}

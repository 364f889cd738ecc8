package services

import (
	"context"
	"sync"
	"time"

	"fundpilot/internal/models"
)

// MemorySessionLedger keeps sessions in process memory. It backs development
// mode when MongoDB is not configured; session rows are lost on restart.
type MemorySessionLedger struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex
}

// NewMemorySessionLedger creates an empty in-memory ledger
func NewMemorySessionLedger() *MemorySessionLedger {
	return &MemorySessionLedger{sessions: make(map[string]*models.Session)}
}

func (l *MemorySessionLedger) CreateSession(_ context.Context, session *models.Session) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	copied := *session
	l.sessions[session.SessionID] = &copied
	return nil
}

func (l *MemorySessionLedger) Get(_ context.Context, sessionID string) (*models.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	session, ok := l.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (l *MemorySessionLedger) FindReusable(_ context.Context, userID, orgID, webSessionID string, now time.Time) (*models.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var newest *models.Session
	for _, s := range l.sessions {
		if s.UserID != userID || s.OrgID != orgID || s.WebSessionID != webSessionID {
			continue
		}
		if s.Expired(now) {
			continue
		}
		if newest == nil || s.CreatedAt.After(newest.CreatedAt) {
			newest = s
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

func (l *MemorySessionLedger) Touch(_ context.Context, sessionID string, userInfo map[string]string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	session, ok := l.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.UserInfo = userInfo
	session.UpdatedAt = now
	return nil
}

func (l *MemorySessionLedger) IsValid(_ context.Context, sessionID string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.sessions[sessionID]
	return ok, nil
}

func (l *MemorySessionLedger) ExpiredUnreclaimed(_ context.Context, now time.Time) ([]models.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var expired []models.Session
	for _, s := range l.sessions {
		if s.Expired(now) && !s.Reclaimed {
			expired = append(expired, *s)
		}
	}
	return expired, nil
}

func (l *MemorySessionLedger) MarkReclaimed(_ context.Context, sessionID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	session, ok := l.sessions[sessionID]
	if !ok || session.Reclaimed {
		return false, nil
	}
	session.Reclaimed = true
	return true, nil
}

func (l *MemorySessionLedger) SetLastAuth(_ context.Context, sessionID string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	session, ok := l.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	t := at
	session.LastAuthAt = &t
	return nil
}

package services

import (
	"context"
	"testing"
	"time"

	"fundpilot/internal/models"
)

func newSessionFixture() (*SessionService, *KeyPool, *BufferService) {
	ledger := NewMemorySessionLedger()
	pool := NewKeyPool([]string{"key-a", "key-b"})
	buffers := NewBufferService(10)
	return NewSessionService(ledger, pool, buffers, nil, 3*time.Hour), pool, buffers
}

func TestSessionService_AuthenticateCreatesSession(t *testing.T) {
	svc, pool, _ := newSessionFixture()

	session, err := svc.Authenticate(context.Background(), &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
		UserInfo:     map[string]string{"name": "Asha"},
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if session.SessionID == "" {
		t.Fatal("Expected a session id")
	}
	if !svc.IsValid(context.Background(), session.SessionID) {
		t.Error("New session should be valid")
	}
	if _, ok := pool.KeyFor(session.SessionID); !ok {
		t.Error("New session should hold a credential")
	}
}

func TestSessionService_AuthenticateReusesWebSession(t *testing.T) {
	svc, _, _ := newSessionFixture()
	ctx := context.Background()

	first, err := svc.Authenticate(ctx, &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	second, err := svc.Authenticate(ctx, &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if first.SessionID != second.SessionID {
		t.Errorf("Same web session should reuse, got %s then %s", first.SessionID, second.SessionID)
	}
}

func TestSessionService_NewChatForcesFreshSession(t *testing.T) {
	svc, _, _ := newSessionFixture()
	ctx := context.Background()

	first, err := svc.Authenticate(ctx, &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	second, err := svc.Authenticate(ctx, &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
		NewChat:      true,
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if first.SessionID == second.SessionID {
		t.Error("NewChat should mint a fresh session")
	}
}

func TestSessionService_DisconnectReleasesResources(t *testing.T) {
	svc, pool, buffers := newSessionFixture()
	ctx := context.Background()

	session, err := svc.Authenticate(ctx, &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	buffers.Append(session.SessionID, "q", "a")

	svc.Disconnect(session.SessionID)

	if _, ok := pool.KeyFor(session.SessionID); ok {
		t.Error("Disconnect should release the credential")
	}
	if len(buffers.AsHistory(session.SessionID)) != 0 {
		t.Error("Disconnect should drop the buffer")
	}

	// The ledger row survives for possible reuse until it expires
	if !svc.IsValid(ctx, session.SessionID) {
		t.Error("Disconnect should not delete the ledger row")
	}
}

func TestSessionService_AuthGrantRoundTrip(t *testing.T) {
	svc, _, _ := newSessionFixture()
	ctx := context.Background()

	session, err := svc.Authenticate(ctx, &models.AuthRequest{
		APIKey:       "org-key",
		UserID:       "u1",
		WebSessionID: "web-1",
	})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	before, err := svc.LastAuthAt(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("LastAuthAt failed: %v", err)
	}
	if before != nil {
		t.Errorf("Fresh session should have no auth grant, got %v", before)
	}

	now := time.Now().UTC()
	if err := svc.RecordAuthGrant(ctx, session.SessionID, now); err != nil {
		t.Fatalf("RecordAuthGrant failed: %v", err)
	}

	after, err := svc.LastAuthAt(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("LastAuthAt failed: %v", err)
	}
	if after == nil || !after.Equal(now) {
		t.Errorf("Expected grant time %v, got %v", now, after)
	}
}

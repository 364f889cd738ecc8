package services

import (
	"context"
	"testing"
	"time"

	"fundpilot/internal/models"
)

func makeSession(id, userID, webSessionID string, createdAt time.Time, ttl time.Duration) *models.Session {
	return &models.Session{
		SessionID:    id,
		UserID:       userID,
		OrgID:        "org-1",
		WebSessionID: webSessionID,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(ttl),
	}
}

func TestMemoryLedger_FindReusableWithinTTL(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	session := makeSession("s1", "u1", "web-1", now.Add(-time.Hour), 3*time.Hour)
	if err := ledger.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	found, err := ledger.FindReusable(ctx, "u1", "org-1", "web-1", now)
	if err != nil {
		t.Fatalf("FindReusable failed: %v", err)
	}
	if found == nil || found.SessionID != "s1" {
		t.Fatalf("Expected to reuse s1, got %+v", found)
	}
}

func TestMemoryLedger_FindReusableSkipsExpired(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	// Created four hours ago with a three hour TTL
	session := makeSession("s1", "u1", "web-1", now.Add(-4*time.Hour), 3*time.Hour)
	if err := ledger.CreateSession(ctx, session); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	found, err := ledger.FindReusable(ctx, "u1", "org-1", "web-1", now)
	if err != nil {
		t.Fatalf("FindReusable failed: %v", err)
	}
	if found != nil {
		t.Errorf("Expired session should not be reusable, got %+v", found)
	}
}

func TestMemoryLedger_FindReusableMatchesWebSession(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := ledger.CreateSession(ctx, makeSession("s1", "u1", "web-1", now, 3*time.Hour)); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	found, err := ledger.FindReusable(ctx, "u1", "org-1", "web-2", now)
	if err != nil {
		t.Fatalf("FindReusable failed: %v", err)
	}
	if found != nil {
		t.Errorf("Different web session should not reuse, got %+v", found)
	}
}

func TestMemoryLedger_FindReusablePrefersNewest(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	older := makeSession("s-old", "u1", "web-1", now.Add(-2*time.Hour), 3*time.Hour)
	newer := makeSession("s-new", "u1", "web-1", now.Add(-time.Hour), 3*time.Hour)
	if err := ledger.CreateSession(ctx, older); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := ledger.CreateSession(ctx, newer); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	found, err := ledger.FindReusable(ctx, "u1", "org-1", "web-1", now)
	if err != nil {
		t.Fatalf("FindReusable failed: %v", err)
	}
	if found == nil || found.SessionID != "s-new" {
		t.Errorf("Expected newest session s-new, got %+v", found)
	}
}

func TestMemoryLedger_ExpiredSessionStaysUsable(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	expired := makeSession("s1", "u1", "web-1", now.Add(-4*time.Hour), 3*time.Hour)
	if err := ledger.CreateSession(ctx, expired); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	// Expiry gates reuse and drives cleanup; it does not invalidate the id
	valid, err := ledger.IsValid(ctx, "s1")
	if err != nil {
		t.Fatalf("IsValid failed: %v", err)
	}
	if !valid {
		t.Error("Expired session should remain valid until reclaimed")
	}
}

func TestMemoryLedger_MarkReclaimedWinsOnce(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := ledger.CreateSession(ctx, makeSession("s1", "u1", "web-1", now.Add(-4*time.Hour), 3*time.Hour)); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	first, err := ledger.MarkReclaimed(ctx, "s1")
	if err != nil {
		t.Fatalf("MarkReclaimed failed: %v", err)
	}
	if !first {
		t.Fatal("First reclaim should win")
	}

	second, err := ledger.MarkReclaimed(ctx, "s1")
	if err != nil {
		t.Fatalf("MarkReclaimed failed: %v", err)
	}
	if second {
		t.Error("Second reclaim should lose")
	}

	// Reclaimed sessions drop out of the sweep query
	expired, err := ledger.ExpiredUnreclaimed(ctx, now)
	if err != nil {
		t.Fatalf("ExpiredUnreclaimed failed: %v", err)
	}
	if len(expired) != 0 {
		t.Errorf("Reclaimed session should not be swept again, got %d", len(expired))
	}
}

func TestMemoryLedger_SetLastAuth(t *testing.T) {
	ledger := NewMemorySessionLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := ledger.CreateSession(ctx, makeSession("s1", "u1", "web-1", now, 3*time.Hour)); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	at := now.Add(5 * time.Minute)
	if err := ledger.SetLastAuth(ctx, "s1", at); err != nil {
		t.Fatalf("SetLastAuth failed: %v", err)
	}

	session, err := ledger.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if session.LastAuthAt == nil || !session.LastAuthAt.Equal(at) {
		t.Errorf("Expected last auth %v, got %v", at, session.LastAuthAt)
	}
}

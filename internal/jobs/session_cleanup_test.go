package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"fundpilot/internal/models"
	"fundpilot/internal/services"
)

func seedExpiredSession(t *testing.T, ledger services.SessionLedger, pool *services.KeyPool, buffers *services.BufferService, id string) {
	t.Helper()

	now := time.Now().UTC()
	err := ledger.CreateSession(context.Background(), &models.Session{
		SessionID:    id,
		UserID:       "u1",
		OrgID:        "org-1",
		WebSessionID: "web-1",
		CreatedAt:    now.Add(-4 * time.Hour),
		UpdatedAt:    now.Add(-4 * time.Hour),
		ExpiresAt:    now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}
	if _, err := pool.Assign(id); err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}
	buffers.Append(id, "question", "answer")
}

func TestSessionCleanup_SweepClearsExpired(t *testing.T) {
	ledger := services.NewMemorySessionLedger()
	pool := services.NewKeyPool([]string{"key-a", "key-b"})
	buffers := services.NewBufferService(10)

	seedExpiredSession(t, ledger, pool, buffers, "s1")
	seedExpiredSession(t, ledger, pool, buffers, "s2")

	job := NewSessionCleanupJob(ledger, pool, buffers, nil, 10*time.Minute, 10*time.Second)
	result := job.Sweep(context.Background())

	if result.Fatal != nil {
		t.Fatalf("Unexpected fatal error: %v", result.Fatal)
	}
	if len(result.Cleared) != 2 {
		t.Fatalf("Expected 2 cleared sessions, got %d", len(result.Cleared))
	}
	if len(result.Failed) != 0 {
		t.Errorf("Expected no failures, got %v", result.Failed)
	}

	// All credentials released, buffers gone
	for key, count := range pool.UsageSnapshot() {
		if count != 0 {
			t.Errorf("Expected key %s released, count %d", key, count)
		}
	}
	if len(buffers.Snapshot()) != 0 {
		t.Errorf("Expected buffers removed, got %d", len(buffers.Snapshot()))
	}
}

func TestSessionCleanup_SweepIsIdempotent(t *testing.T) {
	ledger := services.NewMemorySessionLedger()
	pool := services.NewKeyPool([]string{"key-a"})
	buffers := services.NewBufferService(10)

	seedExpiredSession(t, ledger, pool, buffers, "s1")

	job := NewSessionCleanupJob(ledger, pool, buffers, nil, 10*time.Minute, 10*time.Second)

	first := job.Sweep(context.Background())
	if len(first.Cleared) != 1 {
		t.Fatalf("Expected 1 cleared session, got %d", len(first.Cleared))
	}

	second := job.Sweep(context.Background())
	if len(second.Cleared) != 0 || len(second.Failed) != 0 {
		t.Errorf("Second sweep should find nothing, got cleared=%d failed=%d",
			len(second.Cleared), len(second.Failed))
	}

	if pool.UsageSnapshot()["key-a"] != 0 {
		t.Errorf("Repeated sweeps must not double-release, count %d", pool.UsageSnapshot()["key-a"])
	}
}

func TestSessionCleanup_LiveSessionsSurvive(t *testing.T) {
	ledger := services.NewMemorySessionLedger()
	pool := services.NewKeyPool([]string{"key-a"})
	buffers := services.NewBufferService(10)

	now := time.Now().UTC()
	err := ledger.CreateSession(context.Background(), &models.Session{
		SessionID:    "live",
		UserID:       "u1",
		OrgID:        "org-1",
		WebSessionID: "web-1",
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to seed session: %v", err)
	}
	if _, err := pool.Assign("live"); err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}

	job := NewSessionCleanupJob(ledger, pool, buffers, nil, 10*time.Minute, 10*time.Second)
	result := job.Sweep(context.Background())

	if len(result.Cleared) != 0 {
		t.Errorf("Live session must not be swept, cleared %v", result.Cleared)
	}
	if pool.UsageSnapshot()["key-a"] != 1 {
		t.Errorf("Live session's key must stay assigned, count %d", pool.UsageSnapshot()["key-a"])
	}
}

// reclaimFailLedger fails MarkReclaimed for one session id
type reclaimFailLedger struct {
	*services.MemorySessionLedger
	failID string
}

func (l *reclaimFailLedger) MarkReclaimed(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == l.failID {
		return false, errors.New("write conflict")
	}
	return l.MemorySessionLedger.MarkReclaimed(ctx, sessionID)
}

func TestSessionCleanup_PartialFailureContinues(t *testing.T) {
	memory := services.NewMemorySessionLedger()
	ledger := &reclaimFailLedger{MemorySessionLedger: memory, failID: "s-bad"}
	pool := services.NewKeyPool([]string{"key-a", "key-b"})
	buffers := services.NewBufferService(10)

	seedExpiredSession(t, ledger, pool, buffers, "s-bad")
	seedExpiredSession(t, ledger, pool, buffers, "s-good")

	job := NewSessionCleanupJob(ledger, pool, buffers, nil, 10*time.Minute, 10*time.Second)
	result := job.Sweep(context.Background())

	if result.Fatal != nil {
		t.Fatalf("Per-session failure must not be fatal: %v", result.Fatal)
	}
	if len(result.Cleared) != 1 || result.Cleared[0] != "s-good" {
		t.Errorf("Expected s-good cleared, got %v", result.Cleared)
	}
	if len(result.Failed) != 1 || result.Failed[0].SessionID != "s-bad" {
		t.Errorf("Expected s-bad failed, got %v", result.Failed)
	}

	// The failed session stays eligible for the next sweep
	expired, err := memory.ExpiredUnreclaimed(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("ExpiredUnreclaimed failed: %v", err)
	}
	if len(expired) != 1 || expired[0].SessionID != "s-bad" {
		t.Errorf("Expected s-bad to remain sweepable, got %v", expired)
	}
}

// fatalLedger fails the expired-session query itself
type fatalLedger struct {
	*services.MemorySessionLedger
}

func (l *fatalLedger) ExpiredUnreclaimed(ctx context.Context, now time.Time) ([]models.Session, error) {
	return nil, errors.New("connection lost")
}

func TestSessionCleanup_QueryFailureIsFatal(t *testing.T) {
	ledger := &fatalLedger{MemorySessionLedger: services.NewMemorySessionLedger()}
	pool := services.NewKeyPool([]string{"key-a"})
	buffers := services.NewBufferService(10)

	job := NewSessionCleanupJob(ledger, pool, buffers, nil, 10*time.Minute, 10*time.Second)
	result := job.Sweep(context.Background())

	if result.Fatal == nil {
		t.Fatal("Query failure should surface as fatal")
	}
	if len(result.Cleared) != 0 {
		t.Errorf("Nothing should be cleared on a fatal sweep, got %v", result.Cleared)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Error("Run should report the fatal error")
	}
}

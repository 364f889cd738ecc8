package services

import (
	"errors"
	"testing"
)

func TestKeyPool_LeastLoadedAssignment(t *testing.T) {
	pool := NewKeyPool([]string{"key-a", "key-b"})

	k1, err := pool.Assign("s1")
	if err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}
	if k1 != "key-a" {
		t.Errorf("Expected first assignment to take key-a (config order tie-break), got %q", k1)
	}

	k2, err := pool.Assign("s2")
	if err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}
	if k2 != "key-b" {
		t.Errorf("Expected second assignment to take key-b, got %q", k2)
	}

	// Both keys hold one session each, the tie goes back to key-a
	k3, err := pool.Assign("s3")
	if err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}
	if k3 != "key-a" {
		t.Errorf("Expected third assignment to take key-a, got %q", k3)
	}

	usage := pool.UsageSnapshot()
	if usage["key-a"] != 2 || usage["key-b"] != 1 {
		t.Errorf("Expected usage a=2 b=1, got %v", usage)
	}
}

func TestKeyPool_AssignIsIdempotentPerSession(t *testing.T) {
	pool := NewKeyPool([]string{"key-a", "key-b"})

	k1, err := pool.Assign("s1")
	if err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}
	k2, err := pool.Assign("s1")
	if err != nil {
		t.Fatalf("Failed to re-assign key: %v", err)
	}
	if k1 != k2 {
		t.Errorf("Re-assigning the same session should return the held key, got %q then %q", k1, k2)
	}

	usage := pool.UsageSnapshot()
	if usage[k1] != 1 {
		t.Errorf("Re-assignment should not inflate the count, got %d", usage[k1])
	}
}

func TestKeyPool_ReleaseIsIdempotent(t *testing.T) {
	pool := NewKeyPool([]string{"key-a"})

	if _, err := pool.Assign("s1"); err != nil {
		t.Fatalf("Failed to assign key: %v", err)
	}

	pool.Release("s1")
	pool.Release("s1")
	pool.Release("never-assigned")

	usage := pool.UsageSnapshot()
	if usage["key-a"] != 0 {
		t.Errorf("Expected count 0 after release, got %d", usage["key-a"])
	}

	if _, ok := pool.KeyFor("s1"); ok {
		t.Error("Released session should no longer hold a key")
	}
}

func TestKeyPool_CountsMatchSessions(t *testing.T) {
	pool := NewKeyPool([]string{"key-a", "key-b", "key-c"})

	sessions := []string{"s1", "s2", "s3", "s4", "s5"}
	for _, id := range sessions {
		if _, err := pool.Assign(id); err != nil {
			t.Fatalf("Failed to assign key for %s: %v", id, err)
		}
	}

	pool.Release("s2")
	pool.Release("s4")

	total := 0
	for _, count := range pool.UsageSnapshot() {
		if count < 0 {
			t.Fatalf("Count went negative: %d", count)
		}
		total += count
	}
	if total != 3 {
		t.Errorf("Expected 3 active sessions across counts, got %d", total)
	}
	if len(pool.AssignmentSnapshot()) != 3 {
		t.Errorf("Expected 3 assignments, got %d", len(pool.AssignmentSnapshot()))
	}
}

func TestKeyPool_EmptyPool(t *testing.T) {
	pool := NewKeyPool(nil)

	_, err := pool.Assign("s1")
	if !errors.Is(err, ErrNoKeysConfigured) {
		t.Errorf("Expected ErrNoKeysConfigured, got %v", err)
	}
}

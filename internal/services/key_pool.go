package services

import (
	"errors"
	"log"
	"sync"
)

// ErrNoKeysConfigured is returned by Assign when the pool has no keys at all.
// Callers surface it as a retryable "no credential available" condition.
var ErrNoKeysConfigured = errors.New("no upstream API keys configured")

// KeyPool balances a fixed set of upstream API keys across live sessions.
// Each key carries an in-use counter; Assign picks the least-loaded key
// (ties broken by configuration order) and Release gives it back.
type KeyPool struct {
	keys       []string       // configuration order, fixed for process lifetime
	usage      map[string]int // key -> number of sessions currently mapped to it
	sessionKey map[string]string
	mu         sync.Mutex
}

// NewKeyPool creates a pool over the configured keys
func NewKeyPool(keys []string) *KeyPool {
	pool := &KeyPool{
		keys:       append([]string(nil), keys...),
		usage:      make(map[string]int, len(keys)),
		sessionKey: make(map[string]string),
	}
	for _, k := range pool.keys {
		pool.usage[k] = 0
	}

	if len(pool.keys) == 0 {
		log.Println("⚠️  [KEY-POOL] No upstream API keys configured - turns will fail until keys are added")
	} else {
		log.Printf("✅ [KEY-POOL] Initialized with %d upstream API keys", len(pool.keys))
	}
	return pool
}

// Assign maps a session to the least-loaded key and increments its counter.
// Assigning an already-mapped session returns its existing key unchanged.
func (p *KeyPool) Assign(sessionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.keys) == 0 {
		return "", ErrNoKeysConfigured
	}

	if key, ok := p.sessionKey[sessionID]; ok {
		return key, nil
	}

	best := p.keys[0]
	for _, k := range p.keys[1:] {
		if p.usage[k] < p.usage[best] {
			best = k
		}
	}

	p.usage[best]++
	p.sessionKey[sessionID] = best
	return best, nil
}

// Release decrements the counter for the session's key and drops the mapping.
// Releasing an unmapped session is a no-op, so double release is safe.
func (p *KeyPool) Release(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key, ok := p.sessionKey[sessionID]
	if !ok {
		return
	}
	delete(p.sessionKey, sessionID)
	if p.usage[key] > 0 {
		p.usage[key]--
	}
}

// KeyFor returns the key mapped to a session, if any. Pure lookup.
func (p *KeyPool) KeyFor(sessionID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key, ok := p.sessionKey[sessionID]
	return key, ok
}

// UsageSnapshot returns a copy of the per-key session counts
func (p *KeyPool) UsageSnapshot() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[string]int, len(p.usage))
	for k, n := range p.usage {
		snapshot[k] = n
	}
	return snapshot
}

// AssignmentSnapshot returns a copy of the session -> key map
func (p *KeyPool) AssignmentSnapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[string]string, len(p.sessionKey))
	for s, k := range p.sessionKey {
		snapshot[s] = k
	}
	return snapshot
}

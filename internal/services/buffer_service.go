package services

import (
	"log"
	"sync"

	"fundpilot/internal/models"
)

// sessionBuffer holds the short-term chat memory for one session.
// Entries alternate user/assistant; a turn is always two entries.
type sessionBuffer struct {
	entries []models.BufferEntry
	mu      sync.Mutex
}

// BufferService keeps bounded, in-memory conversation buffers keyed by
// session id. Buffers are best-effort: they vanish on restart and are
// rebuilt from the durable conversation log on the next turn.
type BufferService struct {
	buffers  map[string]*sessionBuffer
	maxTurns int
	mu       sync.RWMutex
}

// NewBufferService creates a buffer service capped at maxTurns turns per session
func NewBufferService(maxTurns int) *BufferService {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &BufferService{
		buffers:  make(map[string]*sessionBuffer),
		maxTurns: maxTurns,
	}
}

func (s *BufferService) get(sessionID string) *sessionBuffer {
	s.mu.RLock()
	buf, ok := s.buffers[sessionID]
	s.mu.RUnlock()
	if ok {
		return buf
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok = s.buffers[sessionID]; ok {
		return buf
	}
	buf = &sessionBuffer{entries: make([]models.BufferEntry, 0, s.maxTurns*2)}
	s.buffers[sessionID] = buf
	return buf
}

// Append pushes one question/answer turn, evicting the oldest turns once
// the buffer exceeds the cap.
func (s *BufferService) Append(sessionID, question, answer string) {
	buf := s.get(sessionID)

	buf.mu.Lock()
	defer buf.mu.Unlock()

	buf.entries = append(buf.entries,
		models.BufferEntry{Role: "user", Content: question},
		models.BufferEntry{Role: "assistant", Content: answer},
	)
	if max := s.maxTurns * 2; len(buf.entries) > max {
		buf.entries = append([]models.BufferEntry(nil), buf.entries[len(buf.entries)-max:]...)
	}
}

// AsHistory returns the buffer contents oldest first. Empty slice when the
// session has no buffer yet.
func (s *BufferService) AsHistory(sessionID string) []models.BufferEntry {
	s.mu.RLock()
	buf, ok := s.buffers[sessionID]
	s.mu.RUnlock()
	if !ok {
		return []models.BufferEntry{}
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	return append([]models.BufferEntry(nil), buf.entries...)
}

// Reset replaces the session's buffer with an empty one
func (s *BufferService) Reset(sessionID string) {
	buf := s.get(sessionID)
	buf.mu.Lock()
	buf.entries = buf.entries[:0]
	buf.mu.Unlock()
	log.Printf("🧠 [BUFFER] Reset buffer for session %s", sessionID)
}

// Remove deletes the session's buffer entirely (disconnect or reclamation)
func (s *BufferService) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.buffers, sessionID)
	s.mu.Unlock()
}

// Snapshot returns a copy of every live buffer, for the debug surface
func (s *BufferService) Snapshot() map[string][]models.BufferEntry {
	s.mu.RLock()
	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	out := make(map[string][]models.BufferEntry, len(ids))
	for _, id := range ids {
		out[id] = s.AsHistory(id)
	}
	return out
}

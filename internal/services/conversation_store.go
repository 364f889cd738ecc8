package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fundpilot/internal/database"
	"fundpilot/internal/models"
)

// ConversationStore is the append-only per-organization log of turns.
// It is the durable side of chat history; the in-memory buffer rebuilds
// from it after a restart.
type ConversationStore struct {
	db *database.MongoDB
}

// NewConversationStore creates a conversation store
func NewConversationStore(db *database.MongoDB) *ConversationStore {
	return &ConversationStore{db: db}
}

// SaveTurn appends one turn to the org's conversation log
func (s *ConversationStore) SaveTurn(ctx context.Context, orgID string, record *models.TurnRecord) error {
	collection := s.db.ConversationCollection(orgID)
	if _, err := collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to save turn for session %s: %w", record.SessionID, err)
	}
	return nil
}

// SaveTurnAsync writes the turn in the background with its own timeout.
// Persistence is best-effort from the turn's point of view: a write failure
// is logged and never fails the turn.
func (s *ConversationStore) SaveTurnAsync(orgID string, record *models.TurnRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.SaveTurn(ctx, orgID, record); err != nil {
			log.Printf("❌ [CONV-STORE] Async save failed for session %s: %v", record.SessionID, err)
		}
	}()
}

// RecentHistory returns the session's last maxTurns turns, oldest first.
// Used to warm a cold conversation buffer after a restart.
func (s *ConversationStore) RecentHistory(ctx context.Context, orgID, sessionID string, maxTurns int) ([]models.TurnRecord, error) {
	collection := s.db.ConversationCollection(orgID)

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(maxTurns))

	cursor, err := collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for session %s: %w", sessionID, err)
	}
	defer cursor.Close(ctx)

	var records []models.TurnRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode history for session %s: %w", sessionID, err)
	}

	// Newest-first from the query; flip to natural chat order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

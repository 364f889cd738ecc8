package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fundpilot/internal/database"
	"fundpilot/internal/models"
)

// ErrSessionNotFound is returned for lookups of unknown session ids
var ErrSessionNotFound = errors.New("session not found")

// SessionLedger is the durable record of sessions: identity, reuse, expiry
// and reclamation state. Expiry gates reuse and cleanup; an expired but
// not-yet-reclaimed session still answers turns.
type SessionLedger interface {
	// CreateSession always inserts a new session row
	CreateSession(ctx context.Context, session *models.Session) error

	// Get returns the session row or ErrSessionNotFound
	Get(ctx context.Context, sessionID string) (*models.Session, error)

	// FindReusable returns the most recently created session for
	// (user, org, webSessionID) whose expiry is still ahead of now,
	// or nil when none qualifies.
	FindReusable(ctx context.Context, userID, orgID, webSessionID string, now time.Time) (*models.Session, error)

	// Touch refreshes the session's user info without changing expiry
	Touch(ctx context.Context, sessionID string, userInfo map[string]string, now time.Time) error

	// IsValid reports whether the session id exists, regardless of expiry
	IsValid(ctx context.Context, sessionID string) (bool, error)

	// ExpiredUnreclaimed lists sessions past expiry that still hold resources
	ExpiredUnreclaimed(ctx context.Context, now time.Time) ([]models.Session, error)

	// MarkReclaimed flips the reclaimed flag false->true. The boolean result
	// reports whether this call performed the transition, so racing sweeps
	// serialize on it.
	MarkReclaimed(ctx context.Context, sessionID string) (bool, error)

	// SetLastAuth records the auth-gate grant time for a session
	SetLastAuth(ctx context.Context, sessionID string, at time.Time) error
}

// MongoSessionLedger stores sessions in the sessions collection
type MongoSessionLedger struct {
	collection *mongo.Collection
}

// NewMongoSessionLedger creates a ledger backed by MongoDB
func NewMongoSessionLedger(db *database.MongoDB) *MongoSessionLedger {
	return &MongoSessionLedger{
		collection: db.Collection(database.CollectionSessions),
	}
}

func (l *MongoSessionLedger) CreateSession(ctx context.Context, session *models.Session) error {
	if _, err := l.collection.InsertOne(ctx, session); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (l *MongoSessionLedger) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := l.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}

func (l *MongoSessionLedger) FindReusable(ctx context.Context, userID, orgID, webSessionID string, now time.Time) (*models.Session, error) {
	filter := bson.M{
		"user_id":        userID,
		"org_id":         orgID,
		"web_session_id": webSessionID,
		"expires_at":     bson.M{"$gt": now},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var session models.Session
	err := l.collection.FindOne(ctx, filter, opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find reusable session: %w", err)
	}
	return &session, nil
}

func (l *MongoSessionLedger) Touch(ctx context.Context, sessionID string, userInfo map[string]string, now time.Time) error {
	update := bson.M{"$set": bson.M{"user_info": userInfo, "updated_at": now}}
	result, err := l.collection.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (l *MongoSessionLedger) IsValid(ctx context.Context, sessionID string) (bool, error) {
	count, err := l.collection.CountDocuments(ctx, bson.M{"session_id": sessionID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return count > 0, nil
}

func (l *MongoSessionLedger) ExpiredUnreclaimed(ctx context.Context, now time.Time) ([]models.Session, error) {
	filter := bson.M{
		"expires_at": bson.M{"$lte": now},
		"reclaimed":  false,
	}
	cursor, err := l.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []models.Session
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("failed to decode expired sessions: %w", err)
	}
	return sessions, nil
}

func (l *MongoSessionLedger) MarkReclaimed(ctx context.Context, sessionID string) (bool, error) {
	// Compare-and-set on the reclaimed flag: only one caller wins the transition
	filter := bson.M{"session_id": sessionID, "reclaimed": false}
	update := bson.M{"$set": bson.M{"reclaimed": true}}

	result, err := l.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark session reclaimed: %w", err)
	}
	return result.ModifiedCount > 0, nil
}

func (l *MongoSessionLedger) SetLastAuth(ctx context.Context, sessionID string, at time.Time) error {
	update := bson.M{"$set": bson.M{"last_auth_at": at}}
	result, err := l.collection.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to set last auth time: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrSessionNotFound
	}
	return nil
}

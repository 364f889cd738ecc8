package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionSessions      = "sessions"
	CollectionUsers         = "users"
	CollectionOrganizations = "organizations"

	// Per-org conversation logs use this prefix followed by the org id
	ConversationCollectionPrefix = "conversations_"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "fundpilot"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// Database returns the underlying mongo database handle
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Collection returns a named collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// ConversationCollection returns the per-org conversation log collection
func (m *MongoDB) ConversationCollection(orgID string) *mongo.Collection {
	return m.database.Collection(ConversationCollectionPrefix + orgID)
}

// Close disconnects the MongoDB client
func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	log.Println("✅ MongoDB connection closed")
	return nil
}

// extractDBName extracts the database name from MongoDB URI
// mongodb://localhost:27017/fundpilot?authSource=admin -> fundpilot
func extractDBName(uri string) string {
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash == -1 {
		return ""
	}

	start := lastSlash + 1
	end := len(uri)
	if questionMark > lastSlash {
		end = questionMark
	}
	if start >= end {
		return ""
	}
	return uri[start:end]
}

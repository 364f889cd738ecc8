package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fundpilot/internal/database"
	"fundpilot/internal/models"
)

// ErrInvalidAPIKey is returned when no organization matches the presented key
var ErrInvalidAPIKey = errors.New("invalid organization API key")

const orgCacheTTL = 5 * time.Minute

// OrgService resolves organizations and their users. Org rows change rarely,
// so lookups are cached; the auth-gate toggle is read through the same cache.
type OrgService struct {
	orgs  *mongo.Collection
	users *mongo.Collection
	cache *gocache.Cache
}

// NewOrgService creates an org service over the organizations and users collections
func NewOrgService(db *database.MongoDB) *OrgService {
	return &OrgService{
		orgs:  db.Collection(database.CollectionOrganizations),
		users: db.Collection(database.CollectionUsers),
		cache: gocache.New(orgCacheTTL, 10*time.Minute),
	}
}

// GetByAPIKey resolves an organization from its API key
func (s *OrgService) GetByAPIKey(ctx context.Context, apiKey string) (*models.Organization, error) {
	if cached, found := s.cache.Get("apikey:" + apiKey); found {
		org := cached.(models.Organization)
		return &org, nil
	}

	var org models.Organization
	err := s.orgs.FindOne(ctx, bson.M{"api_key": apiKey}).Decode(&org)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}

	s.cache.Set("apikey:"+apiKey, org, gocache.DefaultExpiration)
	s.cache.Set("org:"+org.ID.Hex(), org, gocache.DefaultExpiration)
	return &org, nil
}

// Get resolves an organization by id
func (s *OrgService) Get(ctx context.Context, orgID string) (*models.Organization, error) {
	if cached, found := s.cache.Get("org:" + orgID); found {
		org := cached.(models.Organization)
		return &org, nil
	}

	oid, err := primitive.ObjectIDFromHex(orgID)
	if err != nil {
		return nil, fmt.Errorf("invalid org id %q: %w", orgID, err)
	}

	var org models.Organization
	if err := s.orgs.FindOne(ctx, bson.M{"_id": oid}).Decode(&org); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("organization %s not found", orgID)
		}
		return nil, fmt.Errorf("failed to look up organization: %w", err)
	}

	s.cache.Set("org:"+orgID, org, gocache.DefaultExpiration)
	return &org, nil
}

// AuthGateEnabled reports the organization's transactional auth toggle
func (s *OrgService) AuthGateEnabled(ctx context.Context, orgID string) (bool, error) {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.AuthGateEnabled, nil
}

// UpsertUser refreshes a user's profile on authentication, creating the row
// on first contact with this organization.
func (s *OrgService) UpsertUser(ctx context.Context, userID, orgID string, userInfo map[string]string) error {
	now := time.Now().UTC()

	filter := bson.M{"user_id": userID, "org_id": orgID}
	update := bson.M{
		"$set": bson.M{
			"user_info":  userInfo,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"user_id":    userID,
			"org_id":     orgID,
			"created_at": now,
		},
	}

	_, err := s.users.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", userID, err)
	}
	return nil
}

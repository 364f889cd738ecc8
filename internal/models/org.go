package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Organization is a tenant: it owns a retrieval index, its users, and the
// toggle that gates transactional tool flows behind re-authentication.
type Organization struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	APIKey          string             `bson:"api_key" json:"-"`
	AuthGateEnabled bool               `bson:"auth_gate_enabled" json:"auth_gate_enabled"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
}

// User is an end user scoped to one organization
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	OrgID     string             `bson:"org_id" json:"org_id"`
	UserInfo  map[string]string  `bson:"user_info,omitempty" json:"user_info,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is one append-only memory record for a user
type Memory struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"user_id"`
	Content   string             `bson:"content" json:"content"`
	SourceTag string             `bson:"sourceTag" json:"source_tag"` // e.g. "scheduled_insight"
	Tags      []string           `bson:"tags,omitempty" json:"tags,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// Memory source tags
const (
	MemorySourceScheduledInsight = "scheduled_insight"
	MemorySourceManual           = "manual"
)

// FCMToken maps a push-capable device to a user. Tokens are globally unique;
// a token seen under a new user is reassigned (device changed hands).
type FCMToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"user_id"`
	Token     string             `bson:"token" json:"token"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// UserAction records an approve/decline decision on a suggested action
type UserAction struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	ActionID  string    `json:"actionId"`
	Decision  string    `json:"decision"` // "approved" or "declined"
	Context   string    `json:"context,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAction decisions
const (
	DecisionApproved = "approved"
	DecisionDeclined = "declined"
)

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GeneratedInsight is the Oracle's output for one scheduled firing. It is not
// independently durable: FullResult is persisted as a memory record and the
// title/description ride on the notification payload.
type GeneratedInsight struct {
	Title            string `json:"title"`
	ShortDescription string `json:"short_description"`
	FullResult       string `json:"full_formatted_result"`
}

// UserInsightStats aggregates per-user usage counters maintained by the
// insight accumulator.
type UserInsightStats struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            string             `bson:"userId" json:"user_id"`
	AtomsIngested     int64              `bson:"atomsIngested" json:"atoms_ingested"`
	FragmentsAbsorbed int64              `bson:"fragmentsAbsorbed" json:"fragments_absorbed"`
	InsightsDelivered int64              `bson:"insightsDelivered" json:"insights_delivered"`
	LastUpdated       time.Time          `bson:"lastUpdated" json:"last_updated"`
}

// NotificationPayload is the message enqueued for the external push delivery
// worker. Data values must be strings (FCM data-map contract).
type NotificationPayload struct {
	UserID string            `json:"userId"`
	Tokens []string          `json:"tokens,omitempty"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

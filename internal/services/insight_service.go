package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/models"
)

// InsightAccumulator maintains per-user usage counters in MongoDB. All
// recorders are best-effort: a failed counter update is logged and the
// caller never sees it.
type InsightAccumulator struct {
	mongo *database.MongoDB
}

func NewInsightAccumulator(mongo *database.MongoDB) *InsightAccumulator {
	return &InsightAccumulator{mongo: mongo}
}

func (a *InsightAccumulator) RecordAtoms(userID string, count int) {
	a.increment(userID, bson.M{"atomsIngested": int64(count)})
}

func (a *InsightAccumulator) RecordAbsorption(userID string) {
	a.increment(userID, bson.M{"fragmentsAbsorbed": int64(1)})
}

func (a *InsightAccumulator) RecordInsight(userID string) {
	a.increment(userID, bson.M{"insightsDelivered": int64(1)})
}

// Stats returns the current counters for a user, zeroed if none exist yet.
func (a *InsightAccumulator) Stats(ctx context.Context, userID string) (*models.UserInsightStats, error) {
	var stats models.UserInsightStats
	err := a.mongo.Collection(database.CollectionUserInsights).
		FindOne(ctx, bson.M{"userId": userID}).
		Decode(&stats)
	if err != nil {
		return &models.UserInsightStats{UserID: userID}, nil
	}
	return &stats, nil
}

func (a *InsightAccumulator) increment(userID string, counters bson.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$inc": counters,
		"$set": bson.M{"lastUpdated": time.Now().UTC()},
		"$setOnInsert": bson.M{
			"userId": userID,
		},
	}

	_, err := a.mongo.Collection(database.CollectionUserInsights).
		UpdateOne(ctx, bson.M{"userId": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		log.Printf("⚠️ [INSIGHT] Failed to update usage counters for user %s: %v", userID, err)
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/models"
)

// NotificationService resolves a user's device tokens and publishes
// notification payloads for the external push delivery worker. Delivery is
// fire-and-forget: a failed publish is logged, never propagated.
type NotificationService struct {
	mongo *database.MongoDB
	redis *RedisService
}

func NewNotificationService(mongo *database.MongoDB, redis *RedisService) *NotificationService {
	return &NotificationService{mongo: mongo, redis: redis}
}

// SaveToken registers a device token for a user. Tokens are globally unique;
// a token that reappears under a different user follows the device.
func (s *NotificationService) SaveToken(ctx context.Context, userID, token string) error {
	if token == "" {
		return fmt.Errorf("token is required")
	}

	filter := bson.M{"token": token}
	update := bson.M{
		"$set": bson.M{
			"userId": userID,
			"token":  token,
		},
		"$setOnInsert": bson.M{
			"createdAt": time.Now().UTC(),
		},
	}

	_, err := s.mongo.Collection(database.CollectionFCMTokens).
		UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save FCM token: %w", err)
	}

	log.Printf("📱 [NOTIFY] Registered device token for user %s", userID)
	return nil
}

// TokensForUser returns all device tokens registered for a user.
func (s *NotificationService) TokensForUser(ctx context.Context, userID string) ([]string, error) {
	cursor, err := s.mongo.Collection(database.CollectionFCMTokens).Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query FCM tokens: %w", err)
	}
	defer cursor.Close(ctx)

	var records []models.FCMToken
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode FCM tokens: %w", err)
	}

	tokens := make([]string, 0, len(records))
	for _, record := range records {
		tokens = append(tokens, record.Token)
	}
	return tokens, nil
}

// Notify publishes a notification payload on the user's Redis channel.
// A user with no registered tokens still gets the publish so in-app
// listeners see it.
func (s *NotificationService) Notify(ctx context.Context, userID, title, body string, data map[string]string) {
	payload := models.NotificationPayload{
		UserID: userID,
		Title:  title,
		Body:   body,
		Data:   data,
	}

	if s.mongo != nil {
		tokens, err := s.TokensForUser(ctx, userID)
		if err != nil {
			log.Printf("⚠️ [NOTIFY] Failed to resolve tokens for user %s: %v", userID, err)
		} else {
			payload.Tokens = tokens
		}
	}

	if s.redis == nil {
		log.Printf("⚠️ [NOTIFY] Redis unavailable, dropping notification for user %s", userID)
		return
	}

	message, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ [NOTIFY] Failed to marshal notification for user %s: %v", userID, err)
		return
	}

	channel := fmt.Sprintf("user:%s:notifications", userID)
	if err := s.redis.Publish(ctx, channel, message); err != nil {
		log.Printf("❌ [NOTIFY] Failed to publish notification for user %s: %v", userID, err)
		return
	}

	log.Printf("🔔 [NOTIFY] Published notification for user %s: %s", userID, title)
}

package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/models"
)

// MemoryStorageService is the append-only memory sink backed by MongoDB.
// Memories are never updated in place; every insight firing adds a record.
type MemoryStorageService struct {
	mongo *database.MongoDB
}

func NewMemoryStorageService(mongo *database.MongoDB) *MemoryStorageService {
	return &MemoryStorageService{mongo: mongo}
}

// StoreMemory appends one memory record and returns it with its assigned ID.
func (s *MemoryStorageService) StoreMemory(ctx context.Context, userID, content, sourceTag string, tags []string) (*models.Memory, error) {
	memory := &models.Memory{
		UserID:    userID,
		Content:   content,
		SourceTag: sourceTag,
		Tags:      tags,
		CreatedAt: time.Now().UTC(),
	}

	result, err := s.mongo.Collection(database.CollectionMemories).InsertOne(ctx, memory)
	if err != nil {
		return nil, fmt.Errorf("failed to store memory: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		memory.ID = oid
	}

	log.Printf("💾 [MEMORY] Stored memory for user %s (source: %s)", userID, sourceTag)
	return memory, nil
}

// RecentMemories returns the newest memories for a user, newest first.
func (s *MemoryStorageService) RecentMemories(ctx context.Context, userID string, limit int) ([]*models.Memory, error) {
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.mongo.Collection(database.CollectionMemories).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []*models.Memory
	if err := cursor.All(ctx, &memories); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}
	return memories, nil
}

// ListMemories returns one page of a user's memories plus the total count.
func (s *MemoryStorageService) ListMemories(ctx context.Context, userID string, page, pageSize int) ([]*models.Memory, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter := bson.M{"userId": userID}
	collection := s.mongo.Collection(database.CollectionMemories)

	total, err := collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count memories: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []*models.Memory
	if err := cursor.All(ctx, &memories); err != nil {
		return nil, 0, fmt.Errorf("failed to decode memories: %w", err)
	}
	return memories, total, nil
}

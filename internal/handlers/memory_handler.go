package handlers

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trustedcoder/typira-home/internal/models"
	"github.com/trustedcoder/typira-home/internal/services"
)

// MemoryHandler serves the read side of a user's accumulated context:
// memories, typing history, action decisions and usage stats.
type MemoryHandler struct {
	memories      *services.MemoryStorageService
	fragments     *services.FragmentStore
	actions       *services.ActionStore
	notifications *services.NotificationService
	insights      *services.InsightAccumulator
}

func NewMemoryHandler(memories *services.MemoryStorageService, fragments *services.FragmentStore,
	actions *services.ActionStore, notifications *services.NotificationService,
	insights *services.InsightAccumulator) *MemoryHandler {
	return &MemoryHandler{
		memories:      memories,
		fragments:     fragments,
		actions:       actions,
		notifications: notifications,
		insights:      insights,
	}
}

// ListMemories returns one page of the user's memories
// GET /api/v1/memories
func (h *MemoryHandler) ListMemories(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return unauthorized(c)
	}
	if h.memories == nil {
		return serviceUnavailable(c, "Memory storage not configured")
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	memories, total, err := h.memories.ListMemories(c.Context(), userID, page, pageSize)
	if err != nil {
		log.Printf("❌ [MEMORY] Failed to list memories: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list memories",
		})
	}

	items := make([]fiber.Map, 0, len(memories))
	for _, memory := range memories {
		items = append(items, fiber.Map{
			"id":         memory.ID.Hex(),
			"content":    memory.Content,
			"source_tag": memory.SourceTag,
			"tags":       memory.Tags,
			"time_ago":   timeAgo(memory.CreatedAt),
			"created_at": memory.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"memories": items,
		"total":    total,
		"page":     page,
	})
}

// TypingHistory returns one page of deduplicated typing fragments
// GET /api/v1/typing-history
func (h *MemoryHandler) TypingHistory(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return unauthorized(c)
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	total, err := h.fragments.CountByUser(c.Context(), userID)
	if err != nil {
		log.Printf("❌ [MEMORY] Failed to count fragments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load typing history",
		})
	}

	fragments, err := h.fragments.PageByUser(c.Context(), userID, (page-1)*pageSize, pageSize)
	if err != nil {
		log.Printf("❌ [MEMORY] Failed to page fragments: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load typing history",
		})
	}

	items := make([]fiber.Map, 0, len(fragments))
	for _, fragment := range fragments {
		items = append(items, fiber.Map{
			"id":          fragment.ID,
			"content":     fragment.Content,
			"app_context": fragment.AppContext,
			"frequency":   fragment.Frequency,
			"time_ago":    timeAgo(fragment.UpdatedAt),
			"updated_at":  fragment.UpdatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"history": items,
		"total":   total,
		"page":    page,
	})
}

// ListActions returns one page of the user's approve/decline decisions
// GET /api/v1/actions
func (h *MemoryHandler) ListActions(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return unauthorized(c)
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	actions, total, err := h.actions.PageByUser(c.Context(), userID, page, pageSize)
	if err != nil {
		log.Printf("❌ [MEMORY] Failed to list actions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list actions",
		})
	}

	items := make([]fiber.Map, 0, len(actions))
	for _, action := range actions {
		items = append(items, fiber.Map{
			"id":        action.ID,
			"action_id": action.ActionID,
			"decision":  action.Decision,
			"context":   action.Context,
			"time_ago":  timeAgo(action.CreatedAt),
		})
	}

	return c.JSON(fiber.Map{
		"actions": items,
		"total":   total,
		"page":    page,
	})
}

// RecordAction stores one approve/decline decision
// POST /api/v1/actions
func (h *MemoryHandler) RecordAction(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return unauthorized(c)
	}

	var action models.UserAction
	if err := c.BodyParser(&action); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if action.ActionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "actionId is required",
		})
	}

	if err := h.actions.Record(c.Context(), userID, &action); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(action)
}

// SaveNotificationToken registers a device push token
// POST /api/v1/notifications/token
func (h *MemoryHandler) SaveNotificationToken(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return unauthorized(c)
	}
	if h.notifications == nil {
		return serviceUnavailable(c, "Notifications not configured")
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "token is required",
		})
	}

	if err := h.notifications.SaveToken(c.Context(), userID, req.Token); err != nil {
		log.Printf("❌ [NOTIFY] Failed to save token: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save token",
		})
	}

	return c.JSON(fiber.Map{"status": "saved"})
}

// Stats returns the user's usage counters
// GET /api/v1/stats
func (h *MemoryHandler) Stats(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return unauthorized(c)
	}
	if h.insights == nil {
		return serviceUnavailable(c, "Usage stats not configured")
	}

	stats, err := h.insights.Stats(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}
	return c.JSON(stats)
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "Authentication required",
	})
}

func serviceUnavailable(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": message,
	})
}

// timeAgo renders a timestamp as a rough human-readable age
func timeAgo(t time.Time) string {
	elapsed := time.Since(t)
	switch {
	case elapsed < time.Minute:
		return "Just now"
	case elapsed < time.Hour:
		minutes := int(elapsed.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case elapsed < 24*time.Hour:
		hours := int(elapsed.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case elapsed < 7*24*time.Hour:
		days := int(elapsed.Hours() / 24)
		if days == 1 {
			return "Yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}

package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/trustedcoder/typira-home/internal/models"
	"github.com/trustedcoder/typira-home/internal/services"
)

// IngestHandler accepts typing events over REST for clients that can't hold
// a WebSocket open.
type IngestHandler struct {
	ingestion *services.IngestionService
}

func NewIngestHandler(ingestion *services.IngestionService) *IngestHandler {
	return &IngestHandler{ingestion: ingestion}
}

// Ingest enqueues one typing event
// POST /api/v1/ingest
func (h *IngestHandler) Ingest(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var event models.TypingEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(event.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	event.UserID = userID
	h.ingestion.Enqueue(event)

	// Fire-and-forget: accepted means queued, not stored.
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
	})
}

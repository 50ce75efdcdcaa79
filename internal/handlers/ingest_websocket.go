package handlers

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/trustedcoder/typira-home/internal/models"
	"github.com/trustedcoder/typira-home/internal/services"
)

// IngestWebSocketHandler handles the live typing stream. Desktop clients
// hold one connection open and push deltas as the user types.
type IngestWebSocketHandler struct {
	ingestion *services.IngestionService
}

func NewIngestWebSocketHandler(ingestion *services.IngestionService) *IngestWebSocketHandler {
	return &IngestWebSocketHandler{ingestion: ingestion}
}

// ingestClientMessage is one frame from the typing client
type ingestClientMessage struct {
	Type           string `json:"type"`
	AppContext     string `json:"app_context"`
	Text           string `json:"text"`
	IsFullSnapshot bool   `json:"is_full_context"`
}

// ingestServerMessage is one frame back to the client
type ingestServerMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleConnection runs the read loop for one typing client
func (h *IngestWebSocketHandler) HandleConnection(c *websocket.Conn) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		c.WriteJSON(ingestServerMessage{Type: "error", Message: "Authentication required"})
		c.Close()
		return
	}

	log.Printf("🔌 [INGEST-WS] Connected: user=%s", userID)

	// Hung connections are detected via the read deadline, reset on every
	// frame and on pongs.
	const readTimeout = 90 * time.Second
	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg ingestClientMessage
		if err := c.ReadJSON(&msg); err != nil {
			log.Printf("🔌 [INGEST-WS] Disconnected: user=%s err=%v", userID, err)
			break
		}
		c.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case "analyze":
			if strings.TrimSpace(msg.Text) == "" {
				continue
			}
			h.ingestion.Enqueue(models.TypingEvent{
				UserID:         userID,
				AppContext:     msg.AppContext,
				Text:           msg.Text,
				IsFullSnapshot: msg.IsFullSnapshot,
			})
			c.WriteJSON(ingestServerMessage{Type: "thought_update", Status: "queued"})

		case "ping":
			c.WriteJSON(ingestServerMessage{Type: "pong"})

		default:
			log.Printf("⚠️ [INGEST-WS] Unknown message type %q from user %s", msg.Type, userID)
		}
	}
}

// UpgradeGuard rejects non-WebSocket requests on the ws route
func UpgradeGuard(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

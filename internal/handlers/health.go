package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trustedcoder/typira-home/internal/database"
	"github.com/trustedcoder/typira-home/internal/jobs"
	"github.com/trustedcoder/typira-home/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	db    *database.DB
	mongo *database.MongoDB
	redis *services.RedisService
	jobs  *jobs.JobScheduler
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, mongo *database.MongoDB, redis *services.RedisService, scheduler *jobs.JobScheduler) *HealthHandler {
	return &HealthHandler{db: db, mongo: mongo, redis: redis, jobs: scheduler}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	status := "healthy"
	checks := fiber.Map{}

	if h.db != nil {
		if err := h.db.PingContext(c.Context()); err != nil {
			status = "degraded"
			checks["mysql"] = "down"
		} else {
			checks["mysql"] = "up"
		}
	}
	if h.mongo != nil {
		if err := h.mongo.Ping(c.Context()); err != nil {
			status = "degraded"
			checks["mongodb"] = "down"
		} else {
			checks["mongodb"] = "up"
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(c.Context()); err != nil {
			status = "degraded"
			checks["redis"] = "down"
		} else {
			checks["redis"] = "up"
		}
	}

	response := fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.jobs != nil {
		response["jobs"] = h.jobs.Status()
	}
	return c.JSON(response)
}

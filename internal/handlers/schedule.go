package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trustedcoder/typira-home/internal/models"
	"github.com/trustedcoder/typira-home/internal/services"
)

// ScheduleHandler handles schedule-related HTTP requests
type ScheduleHandler struct {
	schedules  *services.ScheduleService
	dispatcher *services.DispatcherService
}

// NewScheduleHandler creates a new schedule handler
func NewScheduleHandler(schedules *services.ScheduleService, dispatcher *services.DispatcherService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, dispatcher: dispatcher}
}

// Create creates a new schedule
// POST /api/v1/schedules
func (h *ScheduleHandler) Create(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	var req models.CreateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	schedule, err := h.schedules.Create(c.Context(), userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidSchedule) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Printf("❌ [SCHEDULE] Failed to create schedule: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create schedule",
		})
	}

	log.Printf("📅 [SCHEDULE] Created schedule %d for user %s", schedule.ID, userID)
	return c.Status(fiber.StatusCreated).JSON(schedule)
}

// List returns all schedules for the authenticated user
// GET /api/v1/schedules
func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authentication required",
		})
	}

	schedules, err := h.schedules.List(c.Context(), userID)
	if err != nil {
		log.Printf("❌ [SCHEDULE] Failed to list schedules: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list schedules",
		})
	}
	return c.JSON(fiber.Map{"schedules": schedules})
}

// Get returns one schedule
// GET /api/v1/schedules/:id
func (h *ScheduleHandler) Get(c *fiber.Ctx) error {
	userID, scheduleID, errResp := h.scheduleScope(c)
	if errResp != nil {
		return errResp(c)
	}

	schedule, err := h.schedules.Get(c.Context(), scheduleID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Schedule not found",
			})
		}
		log.Printf("❌ [SCHEDULE] Failed to get schedule %d: %v", scheduleID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get schedule",
		})
	}
	return c.JSON(schedule)
}

// Update modifies one schedule
// PUT /api/v1/schedules/:id
func (h *ScheduleHandler) Update(c *fiber.Ctx) error {
	userID, scheduleID, errResp := h.scheduleScope(c)
	if errResp != nil {
		return errResp(c)
	}

	var req models.UpdateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	schedule, err := h.schedules.Update(c.Context(), scheduleID, userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Schedule not found",
			})
		case errors.Is(err, services.ErrInvalidSchedule):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		log.Printf("❌ [SCHEDULE] Failed to update schedule %d: %v", scheduleID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update schedule",
		})
	}
	return c.JSON(schedule)
}

// Delete removes one schedule
// DELETE /api/v1/schedules/:id
func (h *ScheduleHandler) Delete(c *fiber.Ctx) error {
	userID, scheduleID, errResp := h.scheduleScope(c)
	if errResp != nil {
		return errResp(c)
	}

	if err := h.schedules.Delete(c.Context(), scheduleID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Schedule not found",
			})
		}
		log.Printf("❌ [SCHEDULE] Failed to delete schedule %d: %v", scheduleID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete schedule",
		})
	}

	log.Printf("🗑️ [SCHEDULE] Deleted schedule %d for user %s", scheduleID, userID)
	return c.JSON(fiber.Map{"status": "deleted"})
}

// Trigger fires one schedule immediately, outside the minute scan
// POST /api/v1/schedules/:id/trigger
func (h *ScheduleHandler) Trigger(c *fiber.Ctx) error {
	userID, scheduleID, errResp := h.scheduleScope(c)
	if errResp != nil {
		return errResp(c)
	}

	schedule, err := h.schedules.GetSchedule(c.Context(), scheduleID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Schedule not found",
			})
		}
		log.Printf("❌ [SCHEDULE] Failed to load schedule %d: %v", scheduleID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load schedule",
		})
	}

	// Generation can take a while; run it off the request path. The fiber
	// context is recycled after the response, so the firing gets its own.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		h.dispatcher.Trigger(ctx, schedule)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "triggered",
	})
}

// scheduleScope extracts the authenticated user and the :id path param.
func (h *ScheduleHandler) scheduleScope(c *fiber.Ctx) (string, int64, func(*fiber.Ctx) error) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return "", 0, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}
	}

	scheduleID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || scheduleID <= 0 {
		return "", 0, func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid schedule ID",
			})
		}
	}

	return userID, scheduleID, nil
}

package handlers

import (
	"context"
	"time"

	"roomwatch/internal/services"

	"github.com/gofiber/fiber/v2"
)

// Pinger is anything that can report whether its backend answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	connManager *services.ConnectionManager
	store       Pinger
	archive     Pinger // nil when no archive is configured
	rooms       *RoomDirectory
}

// NewHealthHandler creates a new health handler. archive may be nil.
func NewHealthHandler(connManager *services.ConnectionManager, store Pinger, archive Pinger, rooms *RoomDirectory) *HealthHandler {
	return &HealthHandler{connManager: connManager, store: store, archive: archive, rooms: rooms}
}

// Handle responds with dashboard health; 503 while the frame store is unreachable
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK
	checks := fiber.Map{"store": "ok"}

	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
		checks["store"] = err.Error()
	}

	if h.archive == nil {
		checks["archive"] = "disabled"
	} else if err := h.archive.Ping(ctx); err != nil {
		status = "degraded"
		checks["archive"] = err.Error()
	} else {
		checks["archive"] = "ok"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"checks":      checks,
		"rooms":       h.rooms.Names(),
		"connections": h.connManager.Count(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

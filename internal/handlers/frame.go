package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"roomwatch/internal/models"
	"roomwatch/internal/services"

	"github.com/gofiber/fiber/v2"
)

// FrameReader returns a room's newest realtime frame
type FrameReader interface {
	LatestFrame(ctx context.Context, room string) (*models.Frame, error)
}

// FrameHandler serves the latest camera frame of a room
type FrameHandler struct {
	rooms  *RoomDirectory
	frames FrameReader
}

// NewFrameHandler creates a new frame handler
func NewFrameHandler(rooms *RoomDirectory, frames FrameReader) *FrameHandler {
	return &FrameHandler{rooms: rooms, frames: frames}
}

// Latest returns the newest JPEG, or 204 when the room has no frame yet
// GET /api/rooms/:room/frame
func (h *FrameHandler) Latest(c *fiber.Ctx) error {
	room, err := h.rooms.room(c)
	if room == nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	frame, err := h.frames.LatestFrame(ctx, room.Name)
	if errors.Is(err, services.ErrNoFrame) || (err == nil && frame == nil) {
		return c.SendStatus(fiber.StatusNoContent)
	}
	if err != nil {
		log.Printf("⚠️  [DASHBOARD] Failed to read frame for %s: %v", room.Name, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Frame store unavailable",
		})
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Frame-Timestamp", frame.Timestamp.UTC().Format(time.RFC3339Nano))
	c.Set("X-Frame-Index", strconv.FormatInt(frame.Index, 10))
	return c.Send(frame.Data)
}

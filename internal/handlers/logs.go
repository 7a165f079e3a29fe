package handlers

import (
	"context"
	"log"
	"time"

	"roomwatch/internal/models"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultLogCount = 20
	maxLogCount     = 500
)

// LogReader returns a room's newest log entries, newest first
type LogReader interface {
	LatestLogs(ctx context.Context, room string, n int) ([]models.LogEntry, error)
}

// LogHandler serves the live verdict log from the frame store
type LogHandler struct {
	rooms *RoomDirectory
	logs  LogReader
}

// NewLogHandler creates a new log handler
func NewLogHandler(rooms *RoomDirectory, logs LogReader) *LogHandler {
	return &LogHandler{rooms: rooms, logs: logs}
}

// Latest returns up to ?count= entries, newest first
// GET /api/rooms/:room/logs
func (h *LogHandler) Latest(c *fiber.Ctx) error {
	room, err := h.rooms.room(c)
	if room == nil {
		return err
	}

	count := clamp(c.QueryInt("count", defaultLogCount), 1, maxLogCount)

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	entries, err := h.logs.LatestLogs(ctx, room.Name, count)
	if err != nil {
		log.Printf("⚠️  [DASHBOARD] Failed to read logs for %s: %v", room.Name, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Frame store unavailable",
		})
	}
	if entries == nil {
		entries = []models.LogEntry{}
	}

	return c.JSON(fiber.Map{
		"room":    room.Name,
		"entries": entries,
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

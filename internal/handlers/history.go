package handlers

import (
	"context"
	"fmt"
	"log"
	"time"

	"roomwatch/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
	maxExportRows       = 50000
	defaultExportWindow = 24 * time.Hour
)

// HistoryReader queries the verdict archive
type HistoryReader interface {
	Recent(ctx context.Context, room string, limit int) ([]models.LogEntry, error)
	Since(ctx context.Context, room string, since time.Time, limit int) ([]models.LogEntry, error)
}

// HistoryHandler serves the durable verdict archive
type HistoryHandler struct {
	rooms   *RoomDirectory
	archive HistoryReader // nil when ARCHIVE_DSN is unset
}

// NewHistoryHandler creates a new history handler. archive may be nil.
func NewHistoryHandler(rooms *RoomDirectory, archive HistoryReader) *HistoryHandler {
	return &HistoryHandler{rooms: rooms, archive: archive}
}

func (h *HistoryHandler) unavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "Verdict archive is not configured",
	})
}

// parseSince reads ?since= as RFC3339 or as a duration back from now ("6h")
func parseSince(raw string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("since must be an RFC3339 time or a positive duration, got %q", raw)
	}
	return now.Add(-d), nil
}

// List returns archived entries: newest first, or oldest first from ?since=
// GET /api/rooms/:room/history
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	if h.archive == nil {
		return h.unavailable(c)
	}
	room, err := h.rooms.room(c)
	if room == nil {
		return err
	}

	limit := clamp(c.QueryInt("limit", defaultHistoryLimit), 1, maxHistoryLimit)
	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	var entries []models.LogEntry
	if raw := c.Query("since"); raw != "" {
		since, perr := parseSince(raw, time.Now())
		if perr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": perr.Error()})
		}
		entries, err = h.archive.Since(ctx, room.Name, since, limit)
	} else {
		entries, err = h.archive.Recent(ctx, room.Name, limit)
	}
	if err != nil {
		log.Printf("⚠️  [DASHBOARD] Archive query failed for %s: %v", room.Name, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Verdict archive unavailable",
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

// Export streams the archive as a spreadsheet, oldest first, default last 24h
// GET /api/rooms/:room/history.xlsx
func (h *HistoryHandler) Export(c *fiber.Ctx) error {
	if h.archive == nil {
		return h.unavailable(c)
	}
	room, err := h.rooms.room(c)
	if room == nil {
		return err
	}

	now := time.Now()
	since := now.Add(-defaultExportWindow)
	if raw := c.Query("since"); raw != "" {
		if since, err = parseSince(raw, now); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	entries, err := h.archive.Since(ctx, room.Name, since, maxExportRows)
	if err != nil {
		log.Printf("⚠️  [DASHBOARD] Archive export failed for %s: %v", room.Name, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Verdict archive unavailable",
		})
	}

	f, err := buildWorkbook(room.Name, entries)
	if err != nil {
		log.Printf("❌ [DASHBOARD] Failed to build workbook for %s: %v", room.Name, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build export",
		})
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build export",
		})
	}

	filename := fmt.Sprintf("%s-%s.xlsx", room.Name, now.UTC().Format("20060102-150405"))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(buf.Bytes())
}

var exportColumns = []string{
	"Timestamp (UTC)", "Kind", "Should alert", "Alert fired", "Awareness", "Reasoning", "Error", "Frames", "Latency (ms)",
}

// buildWorkbook lays out one row per entry on a sheet named after the room
func buildWorkbook(room string, entries []models.LogEntry) (*excelize.File, error) {
	f := excelize.NewFile()

	sheet := room
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(exportColumns))
	for i, col := range exportColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		f.SetRowStyle(sheet, 1, 1, bold)
	}

	for i, e := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			string(e.Kind),
			e.ShouldAlert,
			e.AlertFired,
			string(e.AwarenessLevel),
			e.Reasoning,
			e.Error,
			e.FrameCount,
			e.LatencyMs,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	f.SetColWidth(sheet, "A", "A", 20)
	f.SetColWidth(sheet, "F", "G", 60)
	return f, nil
}

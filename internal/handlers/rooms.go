package handlers

import (
	"sort"
	"time"

	"roomwatch/internal/config"
	"roomwatch/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// RoomDirectory is the fixed set of rooms the dashboard serves
type RoomDirectory struct {
	rooms  []*config.RoomConfig
	byName map[string]*config.RoomConfig
}

// NewRoomDirectory indexes rooms by name, sorted for stable listings
func NewRoomDirectory(rooms []*config.RoomConfig) *RoomDirectory {
	d := &RoomDirectory{
		rooms:  append([]*config.RoomConfig(nil), rooms...),
		byName: make(map[string]*config.RoomConfig, len(rooms)),
	}
	sort.Slice(d.rooms, func(i, j int) bool { return d.rooms[i].Name < d.rooms[j].Name })
	for _, r := range d.rooms {
		d.byName[r.Name] = r
	}
	return d
}

// Lookup finds a room by name
func (d *RoomDirectory) Lookup(name string) (*config.RoomConfig, bool) {
	r, ok := d.byName[name]
	return r, ok
}

// Names returns every room name in order
func (d *RoomDirectory) Names() []string {
	names := make([]string, len(d.rooms))
	for i, r := range d.rooms {
		names[i] = r.Name
	}
	return names
}

// room resolves the :room parameter or writes a 404
func (d *RoomDirectory) room(c *fiber.Ctx) (*config.RoomConfig, error) {
	r, ok := d.Lookup(c.Params("room"))
	if !ok {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown room",
		})
	}
	return r, nil
}

// RoomSummary is the public view of a room's configuration
type RoomSummary struct {
	Name              string   `json:"name"`
	CameraURI         string   `json:"camera_uri"`
	FrameWidth        int      `json:"frame_width"`
	FrameHeight       int      `json:"frame_height"`
	Model             string   `json:"model"`
	IntervalMs        int64    `json:"interval_ms"`
	CooldownMs        int64    `json:"cooldown_ms"`
	RealtimeFrames    int      `json:"realtime_frames"`
	SubsampleInterval string   `json:"subsample_interval"`
	Instructions      []string `json:"instructions"`
}

func summarize(r *config.RoomConfig) RoomSummary {
	return RoomSummary{
		Name:              r.Name,
		CameraURI:         r.DisplayURI(),
		FrameWidth:        r.Camera.FrameWidth,
		FrameHeight:       r.Camera.FrameHeight,
		Model:             r.LLM.ModelName,
		IntervalMs:        r.Watch.Interval.Milliseconds(),
		CooldownMs:        r.Watch.Cooldown.Milliseconds(),
		RealtimeFrames:    r.FrameWindow(),
		SubsampleInterval: r.Camera.SubsampleInterval.String(),
		Instructions:      r.RuleList(),
	}
}

// RoomHandler lists configured rooms
type RoomHandler struct {
	rooms        *RoomDirectory
	pollInterval time.Duration
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms *RoomDirectory, pollInterval time.Duration) *RoomHandler {
	return &RoomHandler{rooms: rooms, pollInterval: pollInterval}
}

// List returns the rooms the caller's token covers
// GET /api/rooms
func (h *RoomHandler) List(c *fiber.Ctx) error {
	viewer := middleware.ViewerFrom(c)

	rooms := make([]RoomSummary, 0, len(h.rooms.rooms))
	for _, r := range h.rooms.rooms {
		if viewer != nil && !viewer.CanView(r.Name) {
			continue
		}
		rooms = append(rooms, summarize(r))
	}

	return c.JSON(fiber.Map{
		"rooms":            rooms,
		"poll_interval_ms": h.pollInterval.Milliseconds(),
	})
}

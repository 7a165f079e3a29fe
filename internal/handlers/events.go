package handlers

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"roomwatch/internal/middleware"
	"roomwatch/internal/models"
	"roomwatch/internal/services"
	"roomwatch/pkg/auth"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	wsReadTimeout  = 90 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
	viewerQueue    = 64
)

// EventsHandler streams room events to dashboard viewers over websockets
type EventsHandler struct {
	connManager *services.ConnectionManager
	rooms       *RoomDirectory
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(connManager *services.ConnectionManager, rooms *RoomDirectory) *EventsHandler {
	return &EventsHandler{connManager: connManager, rooms: rooms}
}

// Upgrade admits websocket upgrades and records what the viewer may watch.
// Must run after the auth middleware.
func (h *EventsHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	rooms := h.viewerRooms(middleware.ViewerFrom(c), c.Query("rooms"))
	if rooms == nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Token does not cover any requested room",
		})
	}

	c.Locals("rooms", rooms)
	c.Locals("client_ip", c.IP())
	return c.Next()
}

// viewerRooms intersects the requested rooms with the token scope.
// An empty map means every room; nil means nothing is visible.
func (h *EventsHandler) viewerRooms(viewer *auth.Viewer, requested string) map[string]bool {
	var names []string
	for _, name := range strings.Split(requested, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	scoped := viewer != nil && len(viewer.Rooms) > 0
	if len(names) == 0 {
		if !scoped {
			return map[string]bool{}
		}
		names = viewer.Rooms
	}

	rooms := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := h.rooms.Lookup(name); !ok {
			continue
		}
		if viewer != nil && !viewer.CanView(name) {
			continue
		}
		rooms[name] = true
	}
	if len(rooms) == 0 {
		return nil
	}
	return rooms
}

// Handle runs one viewer connection until it closes
func (h *EventsHandler) Handle(c *websocket.Conn) {
	rooms, _ := c.Locals("rooms").(map[string]bool)
	clientIP, _ := c.Locals("client_ip").(string)

	viewer := &models.Viewer{
		ConnID:    uuid.New().String(),
		ClientIP:  clientIP,
		Rooms:     rooms,
		Conn:      c,
		CreatedAt: time.Now(),
		WriteChan: make(chan models.Event, viewerQueue),
		StopChan:  make(chan bool, 1),
	}

	h.connManager.Add(viewer)
	defer h.connManager.Remove(viewer.ConnID)

	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go h.pingLoop(viewer)
	go h.writeLoop(viewer)

	viewer.SafeSend(models.Event{Type: "connected", Timestamp: time.Now().UTC()})

	h.readLoop(viewer)
}

// pingLoop keeps idle connections alive through proxies until the viewer is removed
func (h *EventsHandler) pingLoop(viewer *models.Viewer) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-viewer.StopChan:
			return
		case <-ticker.C:
			viewer.Mutex.Lock()
			err := viewer.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout))
			viewer.Mutex.Unlock()
			if err != nil {
				log.Printf("⚠️ Ping failed for viewer %s: %v", viewer.ConnID, err)
				return
			}
		}
	}
}

// readLoop only watches for client pings and the close frame; the stream is one-way
func (h *EventsHandler) readLoop(viewer *models.Viewer) {
	for {
		_, msg, err := viewer.Conn.ReadMessage()
		if err != nil {
			return
		}
		viewer.Conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var clientMsg struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &clientMsg) == nil && clientMsg.Type == "ping" {
			viewer.SafeSend(models.Event{Type: "pong", Timestamp: time.Now().UTC()})
		}
	}
}

func (h *EventsHandler) writeLoop(viewer *models.Viewer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panic in writeLoop: %v", r)
		}
	}()

	for evt := range viewer.WriteChan {
		viewer.Mutex.Lock()
		viewer.Conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		err := viewer.Conn.WriteJSON(evt)
		viewer.Mutex.Unlock()
		if err != nil {
			log.Printf("❌ WebSocket write error for viewer %s: %v", viewer.ConnID, err)
			return
		}
	}
}

// Broadcast is the pub/sub handler that fans a room event out to its viewers
func (h *EventsHandler) Broadcast(channel string, event *models.Event) {
	if _, ok := h.rooms.Lookup(event.Room); !ok {
		return
	}
	h.connManager.Broadcast(*event)
}

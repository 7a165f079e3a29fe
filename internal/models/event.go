package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Event types published on a room's event channel
const (
	EventVerdict    = "verdict"     // a verdict was logged
	EventAlert      = "alert"       // an alert fired
	EventTickFailed = "tick_failed" // inference or parsing failed for a tick
)

// Event is the pub/sub envelope fanned out to dashboard viewers
type Event struct {
	Type       string    `json:"type"`
	Room       string    `json:"room"`
	InstanceID string    `json:"instanceId"` // Source process, used to skip our own messages
	Timestamp  time.Time `json:"timestamp"`
	Entry      *LogEntry `json:"entry,omitempty"`
	AlertID    string    `json:"alertId,omitempty"`
}

// Viewer is a single dashboard websocket connection
type Viewer struct {
	ConnID    string
	ClientIP  string
	Rooms     map[string]bool // Empty means all rooms
	Conn      *websocket.Conn
	CreatedAt time.Time
	WriteChan chan Event
	StopChan  chan bool
	Mutex     sync.Mutex
	closed    bool
}

// Wants reports whether the viewer subscribed to the room
func (v *Viewer) Wants(room string) bool {
	if len(v.Rooms) == 0 {
		return true
	}
	return v.Rooms[room]
}

// SafeSend queues an event without blocking, returning false if the viewer is gone or slow
func (v *Viewer) SafeSend(evt Event) bool {
	v.Mutex.Lock()
	if v.closed {
		v.Mutex.Unlock()
		return false
	}
	v.Mutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			v.Mutex.Lock()
			v.closed = true
			v.Mutex.Unlock()
		}
	}()

	select {
	case v.WriteChan <- evt:
		return true
	default:
		return false
	}
}

// MarkClosed marks the viewer as closed so later sends are dropped
func (v *Viewer) MarkClosed() {
	v.Mutex.Lock()
	v.closed = true
	v.Mutex.Unlock()
}

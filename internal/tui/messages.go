package tui

import (
	"time"

	"roomwatch/internal/handlers"
	"roomwatch/internal/models"
)

// ConnectionStatus represents the event stream state
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

// String returns a human-readable status
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return "Live"
	case StatusReconnecting:
		return "Reconnecting..."
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Custom messages for Bubble Tea

// StatusUpdateMsg is sent when the event stream connects or drops
type StatusUpdateMsg struct {
	Status ConnectionStatus
	Error  error
}

// RoomsLoadedMsg carries the initial REST snapshot
type RoomsLoadedMsg struct {
	Rooms []handlers.RoomSummary
	Logs  map[string][]models.LogEntry
	Error error
}

// EventMsg is one event off the websocket
type EventMsg struct {
	Event models.Event
}

// TickMsg is sent every second to refresh relative times
type TickMsg struct {
	Time time.Time
}

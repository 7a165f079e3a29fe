package tui

import (
	"time"

	"roomwatch/internal/handlers"
	"roomwatch/internal/models"
)

const maxEntriesPerRoom = 20

// RoomView is what the terminal knows about one room
type RoomView struct {
	Summary     handlers.RoomSummary
	Entries     []models.LogEntry // newest first
	LastAlertAt time.Time
	Failures    int // consecutive failed ticks seen
}

// Alerting reports whether the room's cooldown is still running at now
func (r *RoomView) Alerting(now time.Time) bool {
	if r.LastAlertAt.IsZero() {
		return false
	}
	return now.Sub(r.LastAlertAt) < time.Duration(r.Summary.CooldownMs)*time.Millisecond
}

// Latest returns the newest entry, if any
func (r *RoomView) Latest() (models.LogEntry, bool) {
	if len(r.Entries) == 0 {
		return models.LogEntry{}, false
	}
	return r.Entries[0], true
}

func (r *RoomView) add(entry models.LogEntry) {
	r.Entries = append([]models.LogEntry{entry}, r.Entries...)
	if len(r.Entries) > maxEntriesPerRoom {
		r.Entries = r.Entries[:maxEntriesPerRoom]
	}
	if entry.Kind == models.LogKindError {
		r.Failures++
	} else {
		r.Failures = 0
	}
	if entry.AlertFired && entry.Timestamp.After(r.LastAlertAt) {
		r.LastAlertAt = entry.Timestamp
	}
}

// AppState holds everything the view renders. Only the Bubble Tea loop touches it.
type AppState struct {
	Rooms     map[string]*RoomView
	Order     []string
	Status    ConnectionStatus
	LastError error
	LoadError error
	Loaded    bool
	Width     int
	Height    int
}

// NewAppState creates empty state
func NewAppState() *AppState {
	return &AppState{
		Rooms:  make(map[string]*RoomView),
		Status: StatusConnecting,
	}
}

// SetSize updates terminal dimensions
func (s *AppState) SetSize(w, h int) {
	s.Width = w
	s.Height = h
}

// SetStatus updates the connection status
func (s *AppState) SetStatus(status ConnectionStatus, err error) {
	s.Status = status
	s.LastError = err
}

// Load replaces the room list with a REST snapshot. Logs are newest first.
func (s *AppState) Load(rooms []handlers.RoomSummary, logs map[string][]models.LogEntry) {
	s.Rooms = make(map[string]*RoomView, len(rooms))
	s.Order = s.Order[:0]
	for _, summary := range rooms {
		view := &RoomView{Summary: summary}
		entries := logs[summary.Name]
		for i := len(entries) - 1; i >= 0; i-- {
			view.add(entries[i])
		}
		s.Rooms[summary.Name] = view
		s.Order = append(s.Order, summary.Name)
	}
	s.Loaded = true
	s.LoadError = nil
}

// Apply folds a live event into the room it belongs to
func (s *AppState) Apply(evt models.Event) {
	view, ok := s.Rooms[evt.Room]
	if !ok {
		return
	}

	switch evt.Type {
	case models.EventVerdict, models.EventTickFailed:
		if evt.Entry != nil {
			view.add(*evt.Entry)
		}
	case models.EventAlert:
		if evt.Timestamp.After(view.LastAlertAt) {
			view.LastAlertAt = evt.Timestamp
		}
	}
}

package alert

import (
	"context"

	"roomwatch/internal/models"
)

// Publisher is the part of the pub/sub service the event sink needs
type Publisher interface {
	Publish(ctx context.Context, event *models.Event) error
}

// EventAlerter announces the alert to every dashboard instance
type EventAlerter struct {
	publisher Publisher
}

func NewEventAlerter(p Publisher) *EventAlerter {
	return &EventAlerter{publisher: p}
}

func (e *EventAlerter) Fire(ctx context.Context, a Alert) error {
	return e.publisher.Publish(ctx, &models.Event{
		Type:    models.EventAlert,
		Room:    a.Room,
		AlertID: a.ID,
		Entry: &models.LogEntry{
			Room:           a.Room,
			Timestamp:      a.Timestamp,
			Kind:           models.LogKindVerdict,
			ShouldAlert:    true,
			AlertFired:     true,
			AwarenessLevel: a.AwarenessLevel,
			Reasoning:      a.Reasoning,
		},
	})
}

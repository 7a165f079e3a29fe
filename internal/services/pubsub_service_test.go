package services

import (
	"context"
	"testing"
	"time"

	"roomwatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		channel string
		want    bool
	}{
		{RoomEventsPattern, "room:nursery:events", true},
		{RoomEventsPattern, "room:den:other", false},
		{"room:den:events", "room:den:events", true},
		{"room:den:events", "room:nursery:events", false},
	}

	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.channel); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.channel, got, tt.want)
		}
	}
}

func TestRoomFromChannel(t *testing.T) {
	if got := RoomFromChannel(RoomChannel("nursery")); got != "nursery" {
		t.Errorf("expected nursery, got %q", got)
	}
}

func TestPubSubService_DeliversToOtherInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	rs := NewRedisServiceFromClient(client)

	watcher := NewPubSubService(rs, "watcher-1")
	dashboard := NewPubSubService(rs, "dashboard-1")

	received := make(chan *models.Event, 4)
	dashboard.Subscribe(RoomEventsPattern, func(channel string, event *models.Event) {
		received <- event
	})
	if err := dashboard.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer dashboard.Stop()

	entry := models.LogEntry{Room: "nursery", Kind: models.LogKindVerdict, ShouldAlert: true, Reasoning: "phone visible"}
	if err := watcher.Publish(context.Background(), &models.Event{Type: models.EventVerdict, Room: "nursery", Entry: &entry}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.Type != models.EventVerdict || evt.Room != "nursery" {
			t.Errorf("unexpected event %+v", evt)
		}
		if evt.InstanceID != "watcher-1" {
			t.Errorf("expected source instance watcher-1, got %q", evt.InstanceID)
		}
		if evt.Entry == nil || evt.Entry.Reasoning != "phone visible" {
			t.Errorf("entry not carried: %+v", evt.Entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPubSubService_SkipsOwnMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	svc := NewPubSubService(NewRedisServiceFromClient(client), "solo")
	received := make(chan *models.Event, 1)
	svc.Subscribe(RoomEventsPattern, func(channel string, event *models.Event) {
		received <- event
	})
	if err := svc.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer svc.Stop()

	if err := svc.Publish(context.Background(), &models.Event{Type: models.EventAlert, Room: "den"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case evt := <-received:
		t.Fatalf("own event should be skipped, got %+v", evt)
	case <-time.After(200 * time.Millisecond):
	}
}

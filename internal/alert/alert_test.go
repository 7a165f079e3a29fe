package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roomwatch/internal/config"
	"roomwatch/internal/models"
)

type recordingAlerter struct {
	fired []Alert
	err   error
}

func (r *recordingAlerter) Fire(ctx context.Context, a Alert) error {
	r.fired = append(r.fired, a)
	return r.err
}

func TestNew(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := New("nursery", models.Verdict{ShouldAlert: true, Reasoning: "phone visible", AwarenessLevel: models.AwarenessHigh}, ts)
	if a.ID == "" {
		t.Error("expected an alert ID")
	}
	if a.Room != "nursery" || a.Reasoning != "phone visible" || a.AwarenessLevel != models.AwarenessHigh {
		t.Errorf("unexpected alert %+v", a)
	}
	if b := New("nursery", models.Verdict{}, ts); b.ID == a.ID {
		t.Error("alert IDs must be unique")
	}
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	failing := &recordingAlerter{err: errors.New("speaker unplugged")}
	ok := &recordingAlerter{}

	err := Multi{failing, nil, ok}.Fire(context.Background(), Alert{Room: "nursery"})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(failing.fired) != 1 || len(ok.fired) != 1 {
		t.Errorf("expected every sink to be called once, got %d and %d", len(failing.fired), len(ok.fired))
	}
}

func TestWebhookAlerter(t *testing.T) {
	var got Alert
	var requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get("X-Request-ID")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	a := New("kitchen", models.Verdict{Reasoning: "stove unattended"}, time.Now())
	if err := NewWebhookAlerter(server.URL).Fire(context.Background(), a); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if got.ID != a.ID || got.Reasoning != "stove unattended" {
		t.Errorf("unexpected payload %+v", got)
	}
	if requestID == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestWebhookAlerter_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	if err := NewWebhookAlerter(server.URL).Fire(context.Background(), Alert{}); err == nil {
		t.Error("expected error for 502")
	}
}

type capturePublisher struct {
	events []*models.Event
}

func (c *capturePublisher) Publish(ctx context.Context, e *models.Event) error {
	c.events = append(c.events, e)
	return nil
}

func TestEventAlerter(t *testing.T) {
	pub := &capturePublisher{}
	a := New("nursery", models.Verdict{ShouldAlert: true, Reasoning: "phone visible"}, time.Now())

	if err := NewEventAlerter(pub).Fire(context.Background(), a); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	e := pub.events[0]
	if e.Type != models.EventAlert || e.AlertID != a.ID || e.Entry == nil || !e.Entry.AlertFired {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestSoundAlerter_DoesNotStack(t *testing.T) {
	release := make(chan struct{})
	starts := 0
	s := NewSoundAlerter("aplay", "/tmp/alarm.wav")
	s.start = func(name string, args ...string) (func() error, error) {
		starts++
		if name != "aplay" || len(args) != 1 || args[0] != "/tmp/alarm.wav" {
			t.Errorf("unexpected command %s %v", name, args)
		}
		return func() error { <-release; return nil }, nil
	}

	s.Fire(context.Background(), Alert{})
	s.Fire(context.Background(), Alert{})
	if starts != 1 {
		t.Errorf("expected a single player while the first is running, got %d", starts)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for s.playing.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Fire(context.Background(), Alert{})
	if starts != 2 {
		t.Errorf("expected the player to start again after playback ended, got %d", starts)
	}
}

func TestSoundAlerter_StartFailure(t *testing.T) {
	s := NewSoundAlerter("missing-player", "x.wav")
	s.start = func(name string, args ...string) (func() error, error) {
		return nil, errors.New("executable file not found")
	}
	if err := s.Fire(context.Background(), Alert{}); err == nil {
		t.Error("expected start error")
	}
	if s.playing.Load() {
		t.Error("failed start must not leave the player marked busy")
	}
}

func TestFromConfig(t *testing.T) {
	sinks := FromConfig(config.AlertConfig{}, nil)
	if len(sinks) != 1 {
		t.Errorf("expected only the log sink, got %d", len(sinks))
	}

	sinks = FromConfig(config.AlertConfig{Player: "aplay", SoundFile: "a.wav", WebhookURL: "http://hooks.local"}, &capturePublisher{})
	if len(sinks) != 4 {
		t.Errorf("expected 4 sinks, got %d", len(sinks))
	}
}

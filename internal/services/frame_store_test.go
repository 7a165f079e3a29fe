package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"roomwatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*FrameStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewFrameStore(NewRedisServiceFromClient(client), ""), mr
}

func testFrame(room string, idx int64, ts time.Time) *models.Frame {
	return &models.Frame{
		Room:      room,
		Index:     idx,
		Timestamp: ts,
		Width:     640,
		Height:    360,
		Data:      []byte(fmt.Sprintf("\xff\xd8jpeg-%d\xff\xd9", idx)),
	}
}

func TestFrameStore_RealtimeKeepsExactlyK(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	const k = 3
	for i := int64(0); i < 10; i++ {
		if err := store.PushFrame(ctx, models.QueueRealtime, testFrame("nursery", i, base.Add(time.Duration(i)*time.Second)), k); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	n, err := store.QueueLength(ctx, "nursery", models.QueueRealtime)
	if err != nil {
		t.Fatalf("QueueLength failed: %v", err)
	}
	if n != k {
		t.Fatalf("expected %d frames, got %d", k, n)
	}

	frames, err := store.LatestFrames(ctx, "nursery", models.QueueRealtime, 10)
	if err != nil {
		t.Fatalf("LatestFrames failed: %v", err)
	}
	if len(frames) != k {
		t.Fatalf("expected %d frames, got %d", k, len(frames))
	}
	for i, f := range frames {
		if want := int64(7 + i); f.Index != want {
			t.Errorf("frame %d: expected index %d, got %d", i, want, f.Index)
		}
	}
}

func TestFrameStore_SubsampledKeepsExactlyM(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	const m = 5
	for i := int64(0); i < 12; i++ {
		if err := store.PushFrame(ctx, models.QueueSubsampled, testFrame("den", i, base.Add(time.Duration(i)*2*time.Second)), m); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	frames, err := store.LatestFrames(ctx, "den", models.QueueSubsampled, 100)
	if err != nil {
		t.Fatalf("LatestFrames failed: %v", err)
	}
	if len(frames) != m {
		t.Fatalf("expected %d frames, got %d", m, len(frames))
	}
	if frames[0].Index != 7 || frames[m-1].Index != 11 {
		t.Errorf("expected indices 7..11, got %d..%d", frames[0].Index, frames[m-1].Index)
	}
}

func TestFrameStore_LatestFramesOldestFirstAndRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 123456789, time.UTC)

	for i := int64(0); i < 3; i++ {
		if err := store.PushFrame(ctx, models.QueueRealtime, testFrame("nursery", i, base.Add(time.Duration(i)*time.Second)), 3); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	frames, err := store.LatestFrames(ctx, "nursery", models.QueueRealtime, 2)
	if err != nil {
		t.Fatalf("LatestFrames failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if !frames[0].Timestamp.Before(frames[1].Timestamp) {
		t.Errorf("expected oldest first, got %v then %v", frames[0].Timestamp, frames[1].Timestamp)
	}
	if !frames[1].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Errorf("timestamp not preserved: %v", frames[1].Timestamp)
	}
	if string(frames[1].Data) != "\xff\xd8jpeg-2\xff\xd9" {
		t.Errorf("frame bytes not preserved: %q", frames[1].Data)
	}
	if frames[1].Width != 640 || frames[1].Height != 360 {
		t.Errorf("frame size not preserved: %dx%d", frames[1].Width, frames[1].Height)
	}
}

func TestFrameStore_RoomsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := store.PushFrame(ctx, models.QueueRealtime, testFrame("nursery", 1, now), 3); err != nil {
		t.Fatalf("push: %v", err)
	}

	frames, err := store.LatestFrames(ctx, "kitchen", models.QueueRealtime, 3)
	if err != nil {
		t.Fatalf("LatestFrames failed: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("expected kitchen to be empty, got %d frames", len(frames))
	}
}

func TestFrameStore_LatestFrameEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.LatestFrame(context.Background(), "attic")
	if !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
}

func TestFrameStore_InvalidQueue(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.PushFrame(context.Background(), models.Queue("archive"), testFrame("den", 1, time.Now()), 3)
	if !errors.Is(err, ErrInvalidQueue) {
		t.Errorf("expected ErrInvalidQueue, got %v", err)
	}
}

func TestFrameStore_KeyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewFrameStore(NewRedisServiceFromClient(client), "home:")

	if err := store.PushFrame(context.Background(), models.QueueRealtime, testFrame("den", 1, time.Now()), 3); err != nil {
		t.Fatalf("push: %v", err)
	}
	if !mr.Exists("home:den:realtime") {
		t.Errorf("expected key home:den:realtime, have %v", mr.Keys())
	}
}

func TestFrameStore_Logs(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	verdict := models.NewVerdictEntry("nursery", base, models.Verdict{
		ShouldAlert:    true,
		Reasoning:      "phone visible",
		AwarenessLevel: models.AwarenessHigh,
	}, true, 1, 850*time.Millisecond)
	if err := store.AppendLog(ctx, &verdict, 100); err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}
	if verdict.ID == "" {
		t.Error("expected stream ID to be assigned")
	}

	failed := models.NewErrorEntry("nursery", base.Add(time.Second), errors.New("inference timeout"), 3, 30*time.Second)
	if err := store.AppendLog(ctx, &failed, 100); err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}

	entries, err := store.LatestLogs(ctx, "nursery", 10)
	if err != nil {
		t.Fatalf("LatestLogs failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	// newest first
	if entries[0].Kind != models.LogKindError || entries[0].Error != "inference timeout" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	got := entries[1]
	if got.Kind != models.LogKindVerdict || !got.ShouldAlert || !got.AlertFired {
		t.Errorf("unexpected verdict entry: %+v", got)
	}
	if got.Reasoning != "phone visible" || got.AwarenessLevel != models.AwarenessHigh {
		t.Errorf("verdict fields not preserved: %+v", got)
	}
	if got.LatencyMs != 850 || got.FrameCount != 1 {
		t.Errorf("metrics fields not preserved: %+v", got)
	}
	if !got.Timestamp.Equal(base) {
		t.Errorf("timestamp not preserved: %v", got.Timestamp)
	}
}

func TestFrameStore_NoLogsIsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	entries, err := store.LatestLogs(context.Background(), "nursery", 10)
	if err != nil {
		t.Fatalf("LatestLogs failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

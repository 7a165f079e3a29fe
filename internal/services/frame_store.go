package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"roomwatch/internal/models"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoFrame is returned when a room's queue holds no frames yet
	ErrNoFrame = errors.New("no frame available")
	// ErrInvalidQueue is returned for a queue name other than realtime or subsampled
	ErrInvalidQueue = errors.New("invalid queue")
)

// Stream field names
const (
	fieldFrameBytes = "frame_bytes"
	fieldTimestamp  = "timestamp"
	fieldFrameIdx   = "frame_idx"
	fieldWidth      = "width"
	fieldHeight     = "height"

	fieldKind        = "kind"
	fieldShouldAlert = "should_alert"
	fieldAlertFired  = "alert_fired"
	fieldAwareness   = "awareness_level"
	fieldReasoning   = "reasoning"
	fieldError       = "error"
	fieldFrameCount  = "frame_count"
	fieldLatencyMs   = "latency_ms"
)

// FrameStore keeps each room's bounded frame queues and its verdict log in Redis streams.
//
// Keys:
//
//	{prefix}{room}:realtime    every captured frame, trimmed to exactly K entries
//	{prefix}{room}:subsampled  frames at least T apart, trimmed to exactly M entries
//	{prefix}{room}:logs        append-only verdict and error records
type FrameStore struct {
	redis  *RedisService
	prefix string
}

// NewFrameStore creates a frame store on top of an established Redis connection
func NewFrameStore(redisService *RedisService, keyPrefix string) *FrameStore {
	return &FrameStore{
		redis:  redisService,
		prefix: keyPrefix,
	}
}

// QueueKey returns the stream key for a room's frame queue
func (s *FrameStore) QueueKey(room string, queue models.Queue) string {
	return s.prefix + room + ":" + string(queue)
}

// LogKey returns the stream key for a room's log
func (s *FrameStore) LogKey(room string) string {
	return s.prefix + room + ":logs"
}

// Ping checks that the store answers
func (s *FrameStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx)
}

// PushFrame appends a frame to a queue and trims it to exactly maxLen entries, oldest first.
// The assigned stream ID is written back to frame.ID.
func (s *FrameStore) PushFrame(ctx context.Context, queue models.Queue, frame *models.Frame, maxLen int64) error {
	if !queue.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidQueue, queue)
	}
	if maxLen < 1 {
		return fmt.Errorf("maxlen must be positive, got %d", maxLen)
	}

	id, err := s.redis.Client().XAdd(ctx, &redis.XAddArgs{
		Stream: s.QueueKey(frame.Room, queue),
		MaxLen: maxLen,
		Approx: false,
		Values: map[string]interface{}{
			fieldFrameBytes: frame.Data,
			fieldTimestamp:  frame.Timestamp.UTC().Format(time.RFC3339Nano),
			fieldFrameIdx:   frame.Index,
			fieldWidth:      frame.Width,
			fieldHeight:     frame.Height,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to push frame to %s: %w", s.QueueKey(frame.Room, queue), err)
	}

	frame.ID = id
	return nil
}

// LatestFrames returns up to n of the newest frames in a queue, ordered oldest to newest.
// Entries that cannot be decoded are skipped.
func (s *FrameStore) LatestFrames(ctx context.Context, room string, queue models.Queue, n int) ([]models.Frame, error) {
	if !queue.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQueue, queue)
	}
	if n <= 0 {
		return nil, nil
	}

	key := s.QueueKey(room, queue)
	msgs, err := s.redis.Client().XRevRangeN(ctx, key, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	frames := make([]models.Frame, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		frame, err := decodeFrame(room, msgs[i])
		if err != nil {
			log.Printf("⚠️ [STORE] Skipping undecodable frame %s in %s: %v", msgs[i].ID, key, err)
			continue
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// LatestFrame returns the newest realtime frame, or ErrNoFrame
func (s *FrameStore) LatestFrame(ctx context.Context, room string) (*models.Frame, error) {
	frames, err := s.LatestFrames(ctx, room, models.QueueRealtime, 1)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrame
	}
	return &frames[0], nil
}

// QueueLength returns the number of frames currently held in a queue
func (s *FrameStore) QueueLength(ctx context.Context, room string, queue models.Queue) (int64, error) {
	return s.redis.Client().XLen(ctx, s.QueueKey(room, queue)).Result()
}

// AppendLog appends an entry to the room's log, trimming approximately to maxLen
func (s *FrameStore) AppendLog(ctx context.Context, entry *models.LogEntry, maxLen int64) error {
	values := map[string]interface{}{
		fieldKind:        string(entry.Kind),
		fieldTimestamp:   entry.Timestamp.UTC().Format(time.RFC3339Nano),
		fieldShouldAlert: boolField(entry.ShouldAlert),
		fieldAlertFired:  boolField(entry.AlertFired),
		fieldFrameCount:  entry.FrameCount,
		fieldLatencyMs:   entry.LatencyMs,
	}
	if entry.AwarenessLevel != "" {
		values[fieldAwareness] = string(entry.AwarenessLevel)
	}
	if entry.Reasoning != "" {
		values[fieldReasoning] = entry.Reasoning
	}
	if entry.Error != "" {
		values[fieldError] = entry.Error
	}

	id, err := s.redis.Client().XAdd(ctx, &redis.XAddArgs{
		Stream: s.LogKey(entry.Room),
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to append log for %s: %w", entry.Room, err)
	}

	entry.ID = id
	return nil
}

// LatestLogs returns up to n of the newest log entries, newest first
func (s *FrameStore) LatestLogs(ctx context.Context, room string, n int) ([]models.LogEntry, error) {
	if n <= 0 {
		return nil, nil
	}

	key := s.LogKey(room)
	msgs, err := s.redis.Client().XRevRangeN(ctx, key, "+", "-", int64(n)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	entries := make([]models.LogEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, decodeLogEntry(room, msg))
	}
	return entries, nil
}

func decodeFrame(room string, msg redis.XMessage) (models.Frame, error) {
	data := stringField(msg.Values, fieldFrameBytes)
	if data == "" {
		return models.Frame{}, errors.New("missing frame bytes")
	}

	ts, err := time.Parse(time.RFC3339Nano, stringField(msg.Values, fieldTimestamp))
	if err != nil {
		return models.Frame{}, fmt.Errorf("bad timestamp: %w", err)
	}

	idx, _ := strconv.ParseInt(stringField(msg.Values, fieldFrameIdx), 10, 64)
	width, _ := strconv.Atoi(stringField(msg.Values, fieldWidth))
	height, _ := strconv.Atoi(stringField(msg.Values, fieldHeight))

	return models.Frame{
		ID:        msg.ID,
		Room:      room,
		Index:     idx,
		Timestamp: ts,
		Width:     width,
		Height:    height,
		Data:      []byte(data),
	}, nil
}

func decodeLogEntry(room string, msg redis.XMessage) models.LogEntry {
	entry := models.LogEntry{
		ID:             msg.ID,
		Room:           room,
		Kind:           models.LogEntryKind(stringField(msg.Values, fieldKind)),
		ShouldAlert:    stringField(msg.Values, fieldShouldAlert) == "1",
		AlertFired:     stringField(msg.Values, fieldAlertFired) == "1",
		AwarenessLevel: models.AwarenessLevel(stringField(msg.Values, fieldAwareness)),
		Reasoning:      stringField(msg.Values, fieldReasoning),
		Error:          stringField(msg.Values, fieldError),
	}
	entry.Timestamp, _ = time.Parse(time.RFC3339Nano, stringField(msg.Values, fieldTimestamp))
	entry.FrameCount, _ = strconv.Atoi(stringField(msg.Values, fieldFrameCount))
	entry.LatencyMs, _ = strconv.ParseInt(stringField(msg.Values, fieldLatencyMs), 10, 64)

	if entry.Kind == "" {
		if entry.Error != "" {
			entry.Kind = models.LogKindError
		} else {
			entry.Kind = models.LogKindVerdict
		}
	}
	return entry
}

func stringField(values map[string]interface{}, key string) string {
	switch v := values[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

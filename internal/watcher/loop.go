package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"roomwatch/internal/alert"
	"roomwatch/internal/config"
	"roomwatch/internal/logging"
	"roomwatch/internal/models"
	"roomwatch/internal/services"
	"roomwatch/internal/utils"
	"roomwatch/internal/vision"
)

// Outcome classifies how a tick ended
type Outcome string

const (
	OutcomeSkipped         Outcome = "skipped"          // no frames yet, or shutting down
	OutcomeStoreWait       Outcome = "store_wait"       // backing off after a store failure
	OutcomeStoreFailed     Outcome = "store_failed"     // frames could not be read
	OutcomeInferenceFailed Outcome = "inference_failed" // endpoint unreachable or erroring
	OutcomeParseFailed     Outcome = "parse_failed"     // response carried no usable verdict
	OutcomeEvaluated       Outcome = "evaluated"
)

// FrameSource is the part of the frame store the loop reads from and logs to
type FrameSource interface {
	LatestFrames(ctx context.Context, room string, queue models.Queue, n int) ([]models.Frame, error)
	AppendLog(ctx context.Context, entry *models.LogEntry, maxLen int64) error
}

// Analyzer sends a frame window to the inference endpoint
type Analyzer interface {
	Analyze(ctx context.Context, req *vision.AnalyzeRequest) (*vision.AnalyzeResponse, error)
}

// Archiver keeps a durable copy of log entries
type Archiver interface {
	Insert(ctx context.Context, entry *models.LogEntry) error
}

// RoomState is everything the loop remembers about a room between ticks.
// It is passed into and returned from Tick; nothing else mutates it.
type RoomState struct {
	Alert               AlertState
	Ticks               int64
	LastTickAt          time.Time
	LastVerdictAt       time.Time
	LastOutcome         Outcome
	ConsecutiveFailures int // inference or parse failures since the last verdict
	StoreFailures       int
	RetryAt             time.Time // store reads are skipped until this time
}

// NewRoomState returns the Idle state for a room
func NewRoomState(room *config.RoomConfig) RoomState {
	return RoomState{Alert: AlertState{Cooldown: room.Watch.Cooldown}}
}

// TickResult reports what one tick did
type TickResult struct {
	Outcome    Outcome
	Frames     int
	Verdict    *models.Verdict
	Entry      *models.LogEntry // the appended entry, nil when nothing was logged
	AlertFired bool
	AlertID    string
	Latency    time.Duration
	Err        error
}

// Deps are the collaborators a Loop talks to. Publisher and Archive are optional.
type Deps struct {
	Store        FrameSource
	Analyzer     Analyzer
	Alerter      alert.Alerter
	Publisher    alert.Publisher
	Archive      Archiver
	Metrics      *services.Metrics
	LogRetention int64
}

// Store failure backoff bounds
const (
	storeRetryBase = time.Second
	storeRetryMax  = 30 * time.Second
)

// Loop makes decisions for one room
type Loop struct {
	room   *config.RoomConfig
	prompt string
	schema map[string]interface{}
	deps   Deps
	logger *slog.Logger
	storeB *utils.Backoff
	now    func() time.Time
}

// NewLoop prepares a room's decision loop. A room without instructions is a config error.
func NewLoop(room *config.RoomConfig, deps Deps) (*Loop, error) {
	prompt, err := BuildPrompt(room.Instructions)
	if err != nil {
		return nil, fmt.Errorf("%w: room %q: %v", config.ErrInvalidRoom, room.Name, err)
	}
	if deps.Store == nil || deps.Analyzer == nil {
		return nil, fmt.Errorf("room %q: store and analyzer are required", room.Name)
	}
	if deps.Alerter == nil {
		deps.Alerter = alert.NewLogAlerter()
	}

	return &Loop{
		room:   room,
		prompt: prompt,
		schema: VerdictSchema(),
		deps:   deps,
		logger: logging.WithRoom(logging.WithComponent("watcher"), room.Name),
		storeB: utils.NewBackoff(storeRetryBase, storeRetryMax),
		now:    time.Now,
	}, nil
}

// Room returns the room this loop watches
func (l *Loop) Room() *config.RoomConfig {
	return l.room
}

// Tick runs one decision cycle. It never returns an error; failures are reported in the
// result, logged, and folded into the returned state.
func (l *Loop) Tick(ctx context.Context, state RoomState) (RoomState, TickResult) {
	now := l.now()
	state.Ticks++
	state.LastTickAt = now

	result := l.tick(ctx, &state, now)
	state.LastOutcome = result.Outcome
	l.deps.Metrics.RecordTick(l.room.Name, string(result.Outcome))
	return state, result
}

func (l *Loop) tick(ctx context.Context, state *RoomState, now time.Time) TickResult {
	if !state.RetryAt.IsZero() && now.Before(state.RetryAt) {
		return TickResult{Outcome: OutcomeStoreWait}
	}

	frames, err := l.readWindow(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return TickResult{Outcome: OutcomeSkipped, Err: ctx.Err()}
		}
		l.storeFailed(state, now, err)
		return TickResult{Outcome: OutcomeStoreFailed, Err: err}
	}
	state.StoreFailures = 0
	state.RetryAt = time.Time{}

	if len(frames) == 0 {
		l.logger.Debug("no frames yet, skipping tick")
		return TickResult{Outcome: OutcomeSkipped}
	}

	started := l.now()
	resp, err := l.deps.Analyzer.Analyze(ctx, &vision.AnalyzeRequest{
		Room:      l.room.Name,
		Model:     l.room.LLM.ModelName,
		Prompt:    l.prompt,
		Frames:    frames,
		FrameMode: l.room.Watch.FrameMode,
		FPS:       l.room.Watch.FPS,
		Schema:    l.schema,
	})
	latency := l.now().Sub(started)

	if err != nil {
		if ctx.Err() != nil {
			return TickResult{Outcome: OutcomeSkipped, Frames: len(frames), Err: ctx.Err()}
		}
		l.deps.Metrics.RecordInference(l.room.Name, latency, inferenceErrorKind(err))
		state.ConsecutiveFailures++
		l.logger.Warn("inference failed, skipping tick",
			"error", err, "frames", len(frames), "consecutive_failures", state.ConsecutiveFailures)
		return l.failed(ctx, state, OutcomeInferenceFailed, err, len(frames), latency)
	}
	l.deps.Metrics.RecordInference(l.room.Name, latency, "")

	verdict, err := ParseVerdict(resp.Content)
	if err != nil {
		state.ConsecutiveFailures++
		l.logger.Warn("unparseable verdict, skipping tick",
			"error", err, "response", truncate(resp.Content, 200))
		return l.failed(ctx, state, OutcomeParseFailed, err, len(frames), latency)
	}
	state.ConsecutiveFailures = 0

	decidedAt := l.now()
	var fired bool
	state.Alert, fired = state.Alert.Evaluate(verdict.ShouldAlert, decidedAt)
	state.LastVerdictAt = decidedAt

	result := TickResult{
		Outcome:    OutcomeEvaluated,
		Frames:     len(frames),
		Verdict:    &verdict,
		AlertFired: fired,
		Latency:    latency,
	}

	if verdict.ShouldAlert {
		l.deps.Metrics.RecordAlert(l.room.Name, fired)
	}
	if fired {
		a := alert.New(l.room.Name, verdict, decidedAt)
		result.AlertID = a.ID
		// A sink failure still counts as fired; the cooldown has started.
		if err := l.deps.Alerter.Fire(ctx, a); err != nil {
			l.logger.Error("alert delivery failed", "alert_id", a.ID, "error", err)
		}
		l.logger.Warn("alert fired",
			"alert_id", a.ID, "reasoning", verdict.Reasoning, "awareness_level", verdict.AwarenessLevel)
	} else if verdict.ShouldAlert {
		l.logger.Info("alert suppressed by cooldown",
			"remaining", state.Alert.CooldownRemaining(decidedAt), "reasoning", verdict.Reasoning)
	} else {
		l.logger.Debug("verdict", "reasoning", verdict.Reasoning, "awareness_level", verdict.AwarenessLevel)
	}

	entry := models.NewVerdictEntry(l.room.Name, decidedAt, verdict, fired, len(frames), latency)
	result.Entry = l.record(ctx, state, &entry, models.EventVerdict)
	return result
}

// readWindow returns up to min(N, K) realtime frames plus the configured subsampled
// history, deduplicated and ordered oldest to newest.
func (l *Loop) readWindow(ctx context.Context) ([]models.Frame, error) {
	frames, err := l.deps.Store.LatestFrames(ctx, l.room.Name, models.QueueRealtime, l.room.FrameWindow())
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 || l.room.Watch.HistoryFrames <= 0 {
		return frames, nil
	}

	history, err := l.deps.Store.LatestFrames(ctx, l.room.Name, models.QueueSubsampled, l.room.Watch.HistoryFrames)
	if err != nil {
		return nil, err
	}
	return mergeFrames(history, frames), nil
}

type frameKey struct {
	index int64
	ts    int64
}

func mergeFrames(history, realtime []models.Frame) []models.Frame {
	seen := make(map[frameKey]bool, len(history)+len(realtime))
	merged := make([]models.Frame, 0, len(history)+len(realtime))
	for _, set := range [][]models.Frame{history, realtime} {
		for _, f := range set {
			k := frameKey{index: f.Index, ts: f.Timestamp.UnixNano()}
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, f)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// failed logs an error entry for a tick that produced no verdict
func (l *Loop) failed(ctx context.Context, state *RoomState, outcome Outcome, err error, frames int, latency time.Duration) TickResult {
	entry := models.NewErrorEntry(l.room.Name, l.now(), err, frames, latency)
	return TickResult{
		Outcome: outcome,
		Frames:  frames,
		Latency: latency,
		Err:     err,
		Entry:   l.record(ctx, state, &entry, models.EventTickFailed),
	}
}

// record appends the entry to the room log, then fans it out to dashboards and the archive.
// It returns nil when the log write failed.
func (l *Loop) record(ctx context.Context, state *RoomState, entry *models.LogEntry, eventType string) *models.LogEntry {
	if err := l.deps.Store.AppendLog(ctx, entry, l.deps.LogRetention); err != nil {
		l.storeFailed(state, l.now(), err)
		return nil
	}

	if l.deps.Publisher != nil {
		if err := l.deps.Publisher.Publish(ctx, &models.Event{Type: eventType, Room: l.room.Name, Entry: entry}); err != nil {
			l.logger.Warn("failed to publish event", "type", eventType, "error", err)
		}
	}
	if l.deps.Archive != nil {
		if err := l.deps.Archive.Insert(ctx, entry); err != nil {
			l.logger.Warn("failed to archive log entry", "error", err)
		}
	}
	return entry
}

func (l *Loop) storeFailed(state *RoomState, now time.Time, err error) {
	state.StoreFailures++
	delay := l.storeB.Delay(state.StoreFailures)
	state.RetryAt = now.Add(delay)
	l.deps.Metrics.RecordStoreError("watcher")
	l.logger.Error("frame store unavailable", "error", err, "failures", state.StoreFailures, "retry_in", delay)
}

func inferenceErrorKind(err error) string {
	var apiErr *vision.APIError
	var netErr net.Error
	switch {
	case errors.Is(err, vision.ErrCooldown):
		return "cooldown"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "network"
	}
}

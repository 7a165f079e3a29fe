// Package producer moves camera frames into a room's realtime and subsampled queues.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"roomwatch/internal/capture"
	"roomwatch/internal/config"
	"roomwatch/internal/logging"
	"roomwatch/internal/models"
	"roomwatch/internal/services"
	"roomwatch/internal/utils"
)

// ErrStore wraps frame store failures surfaced by HandleCapture
var ErrStore = errors.New("frame store unavailable")

// FrameSink is the part of the frame store the producer writes to
type FrameSink interface {
	PushFrame(ctx context.Context, queue models.Queue, frame *models.Frame, maxLen int64) error
	Ping(ctx context.Context) error
}

// SubsampleGate admits a frame to the subsampled queue when at least Interval has
// passed since the last admitted frame. The first frame is always admitted.
type SubsampleGate struct {
	Interval time.Duration
	last     time.Time
	primed   bool
}

// Due reports whether a frame captured at ts should go to the subsampled queue
func (g *SubsampleGate) Due(ts time.Time) bool {
	return !g.primed || ts.Sub(g.last) >= g.Interval
}

// Mark records a successful subsampled push at ts
func (g *SubsampleGate) Mark(ts time.Time) {
	g.last = ts
	g.primed = true
}

// Backoff bounds for reopening the camera and waiting out the store
const (
	sourceRetryBase = time.Second
	sourceRetryMax  = 30 * time.Second
	storeRetryBase  = 500 * time.Millisecond
	storeRetryMax   = 15 * time.Second
)

// Producer runs one room's capture loop
type Producer struct {
	room    *config.RoomConfig
	source  capture.Source
	store   FrameSink
	metrics *services.Metrics
	logger  *slog.Logger

	gate          SubsampleGate
	index         int64
	openBackoff   *utils.Backoff
	sourceBackoff *utils.Backoff
	storeBackoff  *utils.Backoff
}

// New creates a producer for room reading from source
func New(room *config.RoomConfig, source capture.Source, store FrameSink, metrics *services.Metrics) *Producer {
	return &Producer{
		room:          room,
		source:        source,
		store:         store,
		metrics:       metrics,
		logger:        logging.WithRoom(logging.WithComponent("producer"), room.Name),
		gate:          SubsampleGate{Interval: room.Camera.SubsampleInterval},
		openBackoff:   utils.NewBackoff(sourceRetryBase, sourceRetryMax),
		sourceBackoff: utils.NewBackoff(sourceRetryBase, sourceRetryMax),
		storeBackoff:  utils.NewBackoff(storeRetryBase, storeRetryMax),
	}
}

// Run captures until ctx is done. Source and store failures are retried with backoff
// and never end the loop; the returned error is always ctx.Err().
func (p *Producer) Run(ctx context.Context) error {
	p.logger.Info("producer starting",
		"source", p.source.String(),
		"realtime_maxlen", p.room.Camera.RealtimeMaxLen,
		"subsampled_maxlen", p.room.Camera.SubsampledMaxLen,
		"subsample_interval", p.room.Camera.SubsampleInterval)

	for {
		if err := p.openSource(ctx); err != nil {
			return err
		}

		storeDown := p.pump(ctx)
		p.closeSource()

		if err := ctx.Err(); err != nil {
			p.logger.Info("producer stopped")
			return err
		}

		if storeDown {
			if err := p.waitForStore(ctx); err != nil {
				return err
			}
			continue
		}

		p.metrics.RecordReconnect(p.room.Name)
		delay := p.sourceBackoff.Next()
		p.logger.Warn("camera source ended, reopening", "attempt", p.sourceBackoff.Attempt(), "delay", delay)
		if err := utils.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p *Producer) openSource(ctx context.Context) error {
	return utils.RetryUntil(ctx, p.openBackoff, p.source.Open, func(err error, delay time.Duration) {
		p.metrics.RecordReconnect(p.room.Name)
		p.logger.Error("failed to open camera source", "error", err, "retry_in", delay)
	})
}

func (p *Producer) closeSource() {
	if err := p.source.Close(); err != nil {
		p.logger.Debug("closing camera source", "error", err)
	}
}

// pump reads frames until the source fails or the store does.
// It reports whether it stopped because of the store.
func (p *Producer) pump(ctx context.Context) bool {
	healthy := false
	for {
		c, err := p.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			if errors.Is(err, capture.ErrBadFrame) {
				p.metrics.RecordDrop(p.room.Name, "decode")
				p.logger.Warn("skipping unreadable frame", "error", err)
				continue
			}
			p.logger.Error("camera read failed", "error", err)
			return false
		}

		if err := p.HandleCapture(ctx, c); err != nil {
			if errors.Is(err, ErrStore) {
				p.logger.Error("frame store write failed", "error", err)
				return true
			}
			p.logger.Warn("dropping frame", "error", err)
			continue
		}

		if !healthy {
			// A frame made it through; the source is good again.
			p.sourceBackoff.Reset()
			healthy = true
		}
	}
}

// waitForStore pings the store with backoff until it answers
func (p *Producer) waitForStore(ctx context.Context) error {
	return utils.RetryUntil(ctx, p.storeBackoff, p.store.Ping, func(err error, delay time.Duration) {
		p.metrics.RecordStoreError("producer")
		p.logger.Warn("waiting for frame store", "error", err, "retry_in", delay)
	})
}

// HandleCapture normalizes one capture and pushes it to the realtime queue, and to the
// subsampled queue when the gate is due. Undecodable captures return capture.ErrBadFrame;
// store failures are wrapped in ErrStore.
func (p *Producer) HandleCapture(ctx context.Context, c capture.Capture) error {
	cam := p.room.Camera
	normalized, err := capture.Normalize(c.Data, cam.FrameWidth, cam.FrameHeight, cam.JPEGQuality)
	if err != nil {
		p.metrics.RecordDrop(p.room.Name, "decode")
		return err
	}

	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	frame := &models.Frame{
		Room:      p.room.Name,
		Index:     p.index,
		Timestamp: ts,
		Width:     normalized.Width,
		Height:    normalized.Height,
		Data:      normalized.Data,
	}

	if err := p.store.PushFrame(ctx, models.QueueRealtime, frame, cam.RealtimeMaxLen); err != nil {
		p.metrics.RecordDrop(p.room.Name, "store")
		p.metrics.RecordStoreError("producer")
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	p.index++

	subsampled := false
	if p.gate.Due(ts) {
		sub := *frame
		if err := p.store.PushFrame(ctx, models.QueueSubsampled, &sub, cam.SubsampledMaxLen); err != nil {
			p.metrics.RecordStoreError("producer")
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		p.gate.Mark(ts)
		subsampled = true
	}

	p.metrics.RecordCapture(p.room.Name, subsampled)
	if frame.Index%100 == 0 {
		p.logger.Debug("frames captured", "count", frame.Index+1, "bytes", frame.Size())
	}
	return nil
}

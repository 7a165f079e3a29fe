// Package alert delivers fired alerts to the household: a sound, a webhook and the dashboards.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"roomwatch/internal/config"
	"roomwatch/internal/logging"
	"roomwatch/internal/models"
)

// Alert is one fired alert signal
type Alert struct {
	ID             string                `json:"id"`
	Room           string                `json:"room"`
	Reasoning      string                `json:"reasoning"`
	AwarenessLevel models.AwarenessLevel `json:"awareness_level,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
}

// New creates an alert with a fresh ID
func New(room string, v models.Verdict, ts time.Time) Alert {
	return Alert{
		ID:             uuid.New().String(),
		Room:           room,
		Reasoning:      v.Reasoning,
		AwarenessLevel: v.AwarenessLevel,
		Timestamp:      ts,
	}
}

// Alerter delivers an alert to one sink
type Alerter interface {
	Fire(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every sink. A failing sink never stops the others.
type Multi []Alerter

func (m Multi) Fire(ctx context.Context, a Alert) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Fire(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", sink, err))
		}
	}
	return errors.Join(errs...)
}

// LogAlerter writes the alert to the structured log
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates the always-on log sink
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: logging.WithComponent("alert")}
}

func (l *LogAlerter) Fire(ctx context.Context, a Alert) error {
	l.logger.Warn("ALERT",
		"room", a.Room,
		"alert_id", a.ID,
		"awareness_level", a.AwarenessLevel,
		"reasoning", a.Reasoning)
	return nil
}

// FromConfig assembles the configured sinks. The log sink is always present;
// publisher may be nil when no dashboards are running.
func FromConfig(cfg config.AlertConfig, publisher Publisher) Multi {
	sinks := Multi{NewLogAlerter()}
	if cfg.Player != "" && cfg.SoundFile != "" {
		sinks = append(sinks, NewSoundAlerter(cfg.Player, cfg.SoundFile))
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhookAlerter(cfg.WebhookURL))
	}
	if publisher != nil {
		sinks = append(sinks, NewEventAlerter(publisher))
	}
	return sinks
}

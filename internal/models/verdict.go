package models

import (
	"strings"
	"time"
)

// AwarenessLevel is the model's recommendation for how closely to watch the room
type AwarenessLevel string

const (
	AwarenessLow    AwarenessLevel = "LOW"
	AwarenessMedium AwarenessLevel = "MEDIUM"
	AwarenessHigh   AwarenessLevel = "HIGH"
)

// ParseAwarenessLevel normalizes a level case-insensitively.
// Unknown values map to the empty level.
func ParseAwarenessLevel(s string) AwarenessLevel {
	switch AwarenessLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case AwarenessLow:
		return AwarenessLow
	case AwarenessMedium:
		return AwarenessMedium
	case AwarenessHigh:
		return AwarenessHigh
	default:
		return ""
	}
}

// Verdict is the typed result of one inference call
type Verdict struct {
	ShouldAlert    bool           `json:"should_alert"`
	Reasoning      string         `json:"reasoning"`
	AwarenessLevel AwarenessLevel `json:"recommended_awareness_level,omitempty"`
}

// LogEntryKind distinguishes verdict records from failed ticks
type LogEntryKind string

const (
	LogKindVerdict LogEntryKind = "verdict"
	LogKindError   LogEntryKind = "error"
)

// LogEntry is an append-only record in a room's log stream. Entries are never mutated.
type LogEntry struct {
	ID             string         `json:"id,omitempty"` // Stream entry ID, empty until stored
	Room           string         `json:"room"`
	Timestamp      time.Time      `json:"timestamp"`
	Kind           LogEntryKind   `json:"kind"`
	ShouldAlert    bool           `json:"should_alert"`
	AlertFired     bool           `json:"alert_fired"` // False when suppressed by the cooldown
	AwarenessLevel AwarenessLevel `json:"awareness_level,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Error          string         `json:"error,omitempty"`
	FrameCount     int            `json:"frame_count"`
	LatencyMs      int64          `json:"latency_ms"`
}

// NewVerdictEntry builds the log record for a parsed verdict
func NewVerdictEntry(room string, ts time.Time, v Verdict, fired bool, frames int, latency time.Duration) LogEntry {
	return LogEntry{
		Room:           room,
		Timestamp:      ts,
		Kind:           LogKindVerdict,
		ShouldAlert:    v.ShouldAlert,
		AlertFired:     fired,
		AwarenessLevel: v.AwarenessLevel,
		Reasoning:      v.Reasoning,
		FrameCount:     frames,
		LatencyMs:      latency.Milliseconds(),
	}
}

// NewErrorEntry builds the log record for a tick that produced no verdict
func NewErrorEntry(room string, ts time.Time, err error, frames int, latency time.Duration) LogEntry {
	return LogEntry{
		Room:       room,
		Timestamp:  ts,
		Kind:       LogKindError,
		Error:      err.Error(),
		FrameCount: frames,
		LatencyMs:  latency.Milliseconds(),
	}
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"roomwatch/internal/models"
)

const entryColumns = `stream_id, room, ts_ms, kind, should_alert, alert_fired, awareness_level, reasoning, error, frame_count, latency_ms`

// Insert archives one log entry
func (db *DB) Insert(ctx context.Context, e *models.LogEntry) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO verdicts (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Room, e.Timestamp.UnixMilli(), string(e.Kind), e.ShouldAlert, e.AlertFired,
		string(e.AwarenessLevel), e.Reasoning, e.Error, e.FrameCount, e.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("failed to archive entry: %w", err)
	}
	return nil
}

// Recent returns a room's newest entries, newest first
func (db *DB) Recent(ctx context.Context, room string, limit int) ([]models.LogEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM verdicts WHERE room = ? ORDER BY ts_ms DESC, id DESC LIMIT ?`,
		room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEntries(rows)
}

// Since returns a room's entries at or after since, oldest first
func (db *DB) Since(ctx context.Context, room string, since time.Time, limit int) ([]models.LogEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM verdicts WHERE room = ? AND ts_ms >= ? ORDER BY ts_ms ASC, id ASC LIMIT ?`,
		room, since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return scanEntries(rows)
}

// DeleteOlderThan removes entries logged before cutoff and returns how many went
func (db *DB) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM verdicts WHERE ts_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}
	return res.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]models.LogEntry, error) {
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var (
			e                 models.LogEntry
			tsMs              int64
			kind, level       string
			reasoning, errStr sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Room, &tsMs, &kind, &e.ShouldAlert, &e.AlertFired,
			&level, &reasoning, &errStr, &e.FrameCount, &e.LatencyMs); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(tsMs).UTC()
		e.Kind = models.LogEntryKind(kind)
		e.AwarenessLevel = models.AwarenessLevel(level)
		e.Reasoning = reasoning.String
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

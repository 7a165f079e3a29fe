package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"roomwatch/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	return db
}

func TestNew(t *testing.T) {
	db := newTestDB(t)
	if db.Dialect() != DialectSQLite {
		t.Errorf("expected sqlite dialect, got %s", db.Dialect())
	}

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", "verdicts").Scan(&name)
	if err != nil {
		t.Errorf("Table verdicts was not created: %v", err)
	}

	// Initialize is idempotent
	if err := db.Initialize(); err != nil {
		t.Errorf("second Initialize failed: %v", err)
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/invalid/path/that/does/not/exist/test.db")
	if err == nil {
		t.Fatal("Expected error for invalid path, got nil")
	}
}

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mysql://user:pass@db:3306/roomwatch", "user:pass@tcp(db:3306)/roomwatch?parseTime=true"},
		{"mysql://user:pass@db:3306/roomwatch?charset=utf8mb4", "user:pass@tcp(db:3306)/roomwatch?charset=utf8mb4&parseTime=true"},
		{"mysql://u:p@h:1/d?parseTime=false", "u:p@tcp(h:1)/d?parseTime=false"},
	}
	for _, tt := range tests {
		if got := mysqlDSN(tt.in); got != tt.want {
			t.Errorf("mysqlDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func entry(room string, ts time.Time, reasoning string, fired bool) *models.LogEntry {
	return &models.LogEntry{
		ID:             "1-0",
		Room:           room,
		Timestamp:      ts,
		Kind:           models.LogKindVerdict,
		ShouldAlert:    fired,
		AlertFired:     fired,
		AwarenessLevel: models.AwarenessMedium,
		Reasoning:      reasoning,
		FrameCount:     3,
		LatencyMs:      850,
	}
}

func TestArchive_InsertAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := db.Insert(ctx, entry("nursery", base.Add(time.Duration(i)*time.Minute), "tick", i == 2)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := db.Insert(ctx, entry("kitchen", base, "other room", false)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	errEntry := &models.LogEntry{Room: "nursery", Timestamp: base.Add(10 * time.Minute), Kind: models.LogKindError, Error: "API error 503"}
	if err := db.Insert(ctx, errEntry); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	recent, err := db.Recent(ctx, "nursery", 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(recent))
	}
	if recent[0].Kind != models.LogKindError || recent[0].Error != "API error 503" {
		t.Errorf("expected newest entry to be the error, got %+v", recent[0])
	}
	if !recent[1].Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("expected newest-first order, got %v", recent[1].Timestamp)
	}

	since, err := db.Since(ctx, "nursery", base.Add(2*time.Minute), 100)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if len(since) != 4 {
		t.Fatalf("expected 4 entries since +2m, got %d", len(since))
	}
	if !since[0].AlertFired || since[0].AwarenessLevel != models.AwarenessMedium || since[0].FrameCount != 3 {
		t.Errorf("unexpected round-tripped entry %+v", since[0])
	}
}

func TestArchive_DeleteOlderThan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		db.Insert(ctx, entry("nursery", base.Add(time.Duration(i)*24*time.Hour), "day", false))
	}

	deleted, err := db.DeleteOlderThan(ctx, base.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	left, _ := db.Recent(ctx, "nursery", 10)
	if len(left) != 2 {
		t.Errorf("expected 2 entries left, got %d", len(left))
	}
}

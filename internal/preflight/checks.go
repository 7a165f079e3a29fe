// Package preflight verifies a deployment before any loop starts.
package preflight

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"roomwatch/internal/capture"
	"roomwatch/internal/config"
	"roomwatch/internal/health"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Pinger is a backend that answers liveness checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker performs pre-flight checks before the pipeline starts
type Checker struct {
	cfg      *config.Config
	rooms    []*config.RoomConfig
	roomsErr error
	store    Pinger
	archive  Pinger       // nil when no archive is configured
	probe    health.Probe // nil skips the inference check
	lookPath func(file string) (string, error)
	timeout  time.Duration
}

// NewChecker creates a new preflight checker. roomsErr is the error from loading
// the room files, if any; store, archive and probe may be nil when unavailable.
func NewChecker(cfg *config.Config, rooms []*config.RoomConfig, roomsErr error, store, archive Pinger, probe health.Probe) *Checker {
	return &Checker{
		cfg:      cfg,
		rooms:    rooms,
		roomsErr: roomsErr,
		store:    store,
		archive:  archive,
		probe:    probe,
		lookPath: exec.LookPath,
		timeout:  5 * time.Second,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkRooms(),
		c.checkStore(),
	}
	results = append(results, c.checkModels()...)
	results = append(results,
		c.checkFFmpeg(),
		c.checkAlertPlayer(),
		c.checkArchive(),
		c.checkDashboardAuth(),
	)

	// Print summary
	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("\n📊 Pre-flight summary: %d passed, %d failed, %d warnings\n", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkRooms() CheckResult {
	if c.roomsErr != nil {
		return CheckResult{
			Name:    "Room Configs",
			Status:  "fail",
			Message: "Room configuration is invalid",
			Error:   c.roomsErr,
		}
	}
	if len(c.rooms) == 0 {
		return CheckResult{
			Name:    "Room Configs",
			Status:  "fail",
			Message: "No rooms configured (pass --rooms)",
		}
	}

	names := make([]string, len(c.rooms))
	for i, r := range c.rooms {
		names[i] = r.Name
	}
	return CheckResult{
		Name:    "Room Configs",
		Status:  "pass",
		Message: fmt.Sprintf("%d room(s): %s", len(names), strings.Join(names, ", ")),
	}
}

func (c *Checker) checkStore() CheckResult {
	if c.store == nil {
		return CheckResult{
			Name:    "Frame Store",
			Status:  "fail",
			Message: "Cannot connect to Redis at " + c.cfg.RedisURL,
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Frame Store",
			Status:  "fail",
			Message: "Redis did not answer PING",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Frame Store",
		Status:  "pass",
		Message: "Redis connection successful",
	}
}

// modelNames returns the distinct models the rooms use
func (c *Checker) modelNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range c.rooms {
		if !seen[r.LLM.ModelName] {
			seen[r.LLM.ModelName] = true
			names = append(names, r.LLM.ModelName)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Checker) checkModels() []CheckResult {
	if c.probe == nil {
		return []CheckResult{{
			Name:    "Inference Endpoint",
			Status:  "warning",
			Message: "Skipped",
		}}
	}

	var results []CheckResult
	for _, model := range c.modelNames() {
		name := "Model " + model
		latency, err := c.probe.Check(model)
		if err != nil {
			results = append(results, CheckResult{
				Name:    name,
				Status:  "fail",
				Message: "Not available at " + c.cfg.Inference.BaseURL,
				Error:   err,
			})
			continue
		}
		results = append(results, CheckResult{
			Name:    name,
			Status:  "pass",
			Message: fmt.Sprintf("Served (%dms)", latency),
		})
	}
	return results
}

func (c *Checker) checkFFmpeg() CheckResult {
	needed := false
	for _, r := range c.rooms {
		if capture.IsFFmpegURI(r.Camera.URI) {
			needed = true
			break
		}
	}
	if !needed {
		return CheckResult{
			Name:    "FFmpeg",
			Status:  "pass",
			Message: "Not needed (snapshot directories only)",
		}
	}

	path, err := c.lookPath("ffmpeg")
	if err != nil {
		return CheckResult{
			Name:    "FFmpeg",
			Status:  "fail",
			Message: "ffmpeg not found on PATH",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "FFmpeg",
		Status:  "pass",
		Message: path,
	}
}

func (c *Checker) checkAlertPlayer() CheckResult {
	alert := c.cfg.Alert
	if alert.SoundFile == "" {
		return CheckResult{
			Name:    "Alert Sound",
			Status:  "warning",
			Message: "ALERT_SOUND_FILE not set, alerts are logged only",
		}
	}

	if _, err := os.Stat(alert.SoundFile); err != nil {
		return CheckResult{
			Name:    "Alert Sound",
			Status:  "fail",
			Message: "Sound file not readable",
			Error:   err,
		}
	}
	if _, err := c.lookPath(alert.Player); err != nil {
		return CheckResult{
			Name:    "Alert Sound",
			Status:  "fail",
			Message: fmt.Sprintf("Player %q not found on PATH", alert.Player),
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Alert Sound",
		Status:  "pass",
		Message: fmt.Sprintf("%s %s", alert.Player, alert.SoundFile),
	}
}

func (c *Checker) checkArchive() CheckResult {
	if !c.cfg.Archive.Enabled() {
		return CheckResult{
			Name:    "Verdict Archive",
			Status:  "pass",
			Message: "Disabled",
		}
	}
	if c.archive == nil {
		return CheckResult{
			Name:    "Verdict Archive",
			Status:  "fail",
			Message: "Cannot open ARCHIVE_DSN",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.archive.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "Verdict Archive",
			Status:  "fail",
			Message: "Archive did not answer",
			Error:   err,
		}
	}
	return CheckResult{
		Name:    "Verdict Archive",
		Status:  "pass",
		Message: "Archive connection successful",
	}
}

func (c *Checker) checkDashboardAuth() CheckResult {
	if c.cfg.Dashboard.JWTSecret == "" {
		return CheckResult{
			Name:    "Dashboard Auth",
			Status:  "warning",
			Message: "DASHBOARD_JWT_SECRET not set, dashboard is unauthenticated",
		}
	}
	return CheckResult{
		Name:    "Dashboard Auth",
		Status:  "pass",
		Message: "Token authentication enabled",
	}
}

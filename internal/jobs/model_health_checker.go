package jobs

import (
	"context"
	"log"
	"time"
)

// ModelChecker runs an active health check for one model
type ModelChecker interface {
	CheckNow(modelName string) error
}

// ModelHealthChecker periodically probes every model the rooms use
type ModelHealthChecker struct {
	checker  ModelChecker
	models   []string
	interval time.Duration
	lastRun  time.Time
}

// NewModelHealthChecker creates a new model health checker job
func NewModelHealthChecker(checker ModelChecker, models []string, interval time.Duration) *ModelHealthChecker {
	return &ModelHealthChecker{
		checker:  checker,
		models:   models,
		interval: interval,
	}
}

// Run checks each model once
func (m *ModelHealthChecker) Run(ctx context.Context) error {
	m.lastRun = time.Now()

	healthy, failed := 0, 0
	for _, model := range m.models {
		if err := ctx.Err(); err != nil {
			log.Println("[HEALTH-JOB] Cancelled")
			return err
		}

		if err := m.checker.CheckNow(model); err != nil {
			failed++
			log.Printf("[HEALTH-JOB] %s: FAILED (%v)", model, err)
			continue
		}
		healthy++
	}

	log.Printf("[HEALTH-JOB] Health checks complete: %d checked, %d healthy, %d failed",
		len(m.models), healthy, failed)
	return nil
}

// GetNextRunTime returns when the next health check should run
func (m *ModelHealthChecker) GetNextRunTime() time.Time {
	if m.lastRun.IsZero() {
		// First run shortly after startup; the preflight already probed once
		return time.Now().Add(m.interval / 10)
	}
	return m.lastRun.Add(m.interval)
}

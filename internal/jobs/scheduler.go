// Package jobs runs the watcher's housekeeping on timers.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered
var ErrUnknownJob = errors.New("job not registered")

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
	GetNextRunTime() time.Time
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	NextRunTime time.Time `json:"next_run_time"`
	LastRunTime time.Time `json:"last_run_time,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
}

type jobEntry struct {
	job    Job
	timer  *time.Timer
	status JobStatus
}

// JobScheduler runs each registered job at the time it asks for, then asks again
type JobScheduler struct {
	jobs    map[string]*jobEntry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler() *JobScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		jobs:   make(map[string]*jobEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a job to the scheduler. Jobs registered after Start are scheduled at once.
func (s *JobScheduler) Register(name string, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &jobEntry{job: job, status: JobStatus{Name: name}}
	s.jobs[name] = entry
	log.Printf("✅ [SCHEDULER] Registered job: %s", name)

	if s.running {
		s.schedule(entry)
	}
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))

	for _, entry := range s.jobs {
		s.schedule(entry)
	}
}

// schedule arms the entry's timer. Caller holds s.mu.
func (s *JobScheduler) schedule(entry *jobEntry) {
	nextRun := entry.job.GetNextRunTime()
	entry.status.NextRunTime = nextRun
	delay := time.Until(nextRun)
	if delay < 0 {
		delay = 0
	}

	log.Printf("⏰ [SCHEDULER] Job '%s' scheduled to run at %s (in %v)",
		entry.status.Name, nextRun.Format(time.RFC3339), delay.Round(time.Second))

	entry.timer = time.AfterFunc(delay, func() { s.run(entry) })
}

func (s *JobScheduler) run(entry *jobEntry) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	name := entry.status.Name
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()
	err := entry.job.Run(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.status.Runs++
	entry.status.LastRunTime = startTime
	entry.status.LastError = ""
	if err != nil {
		entry.status.LastError = err.Error()
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
	} else {
		log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
	}

	if s.running {
		s.schedule(entry)
	}
}

// Stop cancels pending timers and waits for running jobs to return
func (s *JobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.running = false
	for _, entry := range s.jobs {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
}

// RunNow immediately runs a specific job
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	entry, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return entry.job.Run(s.ctx)
}

// GetStatus returns the status of all jobs, sorted by name
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make([]JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status = append(status, entry.status)
	}
	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

package watcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// TickObserver is told about every finished tick
type TickObserver func(room string, state RoomState, result TickResult)

// Runner schedules every room's loop at its own period. A room's ticks never overlap:
// a tick still running when the next is due pushes that run back.
// Ticks run detached from the caller's cancellation; an inference call in flight at
// shutdown finishes or times out on its own and its verdict is still logged.
type Runner struct {
	scheduler gocron.Scheduler
	loops     []*Loop
	observer  TickObserver

	mu     sync.RWMutex
	states map[string]RoomState

	ctx      context.Context
	stopping atomic.Bool
}

// NewRunner creates a runner for the given loops. observer may be nil.
func NewRunner(loops []*Loop, observer TickObserver) (*Runner, error) {
	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithStopTimeout(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	states := make(map[string]RoomState, len(loops))
	for _, l := range loops {
		states[l.room.Name] = NewRoomState(l.room)
	}

	return &Runner{
		scheduler: scheduler,
		loops:     loops,
		observer:  observer,
		states:    states,
	}, nil
}

// Start registers one job per room and starts ticking immediately
func (r *Runner) Start(ctx context.Context) error {
	r.ctx = context.WithoutCancel(ctx)

	for _, l := range r.loops {
		_, err := r.scheduler.NewJob(
			gocron.DurationJob(l.room.Watch.Interval),
			gocron.NewTask(r.runTick, l),
			gocron.WithName("watch_"+l.room.Name),
			gocron.WithTags(l.room.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("failed to schedule room %s: %w", l.room.Name, err)
		}
		log.Printf("✅ [WATCHER] Room %s scheduled every %v (cooldown %v)",
			l.room.Name, l.room.Watch.Interval, l.room.Watch.Cooldown)
	}

	r.scheduler.Start()
	return nil
}

func (r *Runner) runTick(l *Loop) {
	if r.stopping.Load() {
		return
	}

	room := l.room.Name
	r.mu.RLock()
	state := r.states[room]
	r.mu.RUnlock()

	next, result := l.Tick(r.ctx, state)

	r.mu.Lock()
	r.states[room] = next
	r.mu.Unlock()

	if r.observer != nil {
		r.observer(room, next, result)
	}
}

// State returns a snapshot of a room's state
func (r *Runner) State(room string) (RoomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[room]
	return s, ok
}

// Stop schedules no further ticks and waits for running ones to finish
func (r *Runner) Stop() error {
	log.Println("⏹️ [WATCHER] Stopping decision loops...")
	r.stopping.Store(true)
	return r.scheduler.Shutdown()
}

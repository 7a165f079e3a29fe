package commands

import (
	"fmt"
	"log"
	"sort"

	"roomwatch/internal/alert"
	"roomwatch/internal/config"
	"roomwatch/internal/database"
	"roomwatch/internal/health"
	"roomwatch/internal/jobs"
	"roomwatch/internal/services"
	"roomwatch/internal/vision"
	"roomwatch/internal/watcher"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// WatchCmd runs the decision loops
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the decision loop for every room",
	Long: `Every room's interval, reads the newest frames, asks the vision model
whether its instructions are broken, and fires an alert unless the room is
still cooling down from the previous one. Every verdict is appended to the
room's log.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	env, err := loadRuntime(cmd, nil)
	if err != nil {
		return err
	}
	cfg := env.cfg

	ctx, stop := signalContext()
	defer stop()

	redisService, err := services.NewRedisService(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisService.Close()

	store := services.NewFrameStore(redisService, cfg.KeyPrefix)
	pubsub := services.NewPubSubService(redisService, uuid.New().String())
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	probe := &health.ModelsProbe{Endpoint: health.Endpoint{
		BaseURL: cfg.Inference.BaseURL,
		APIKey:  cfg.Inference.APIKey,
		Timeout: cfg.Inference.Timeout,
	}}
	healthSvc := health.NewService(probe, cfg.Inference.FailureLimit)
	models := roomModels(env.rooms)
	for _, m := range models {
		healthSvc.Register(m)
	}
	client := vision.NewClient(cfg.Inference, healthSvc)

	deps := watcher.Deps{
		Store:        store,
		Analyzer:     client,
		Alerter:      alert.FromConfig(cfg.Alert, pubsub),
		Publisher:    pubsub,
		Metrics:      metrics,
		LogRetention: cfg.LogRetention,
	}

	jobScheduler := jobs.NewJobScheduler()
	jobScheduler.Register("model_health", jobs.NewModelHealthChecker(healthSvc, models, cfg.Inference.HealthInterval))

	if cfg.Archive.Enabled() {
		db, err := openArchive(cfg.Archive)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.Archive = db

		retention, err := jobs.NewArchiveRetentionJob(db, cfg.Archive.Retention, cfg.Archive.CleanupCron)
		if err != nil {
			return err
		}
		jobScheduler.Register("archive_retention", retention)
	}

	loops := make([]*watcher.Loop, 0, len(env.rooms))
	for _, room := range env.rooms {
		loop, err := watcher.NewLoop(room, deps)
		if err != nil {
			return err
		}
		loops = append(loops, loop)
	}

	serveOps(ctx, cfg.MetricsAddr, newOpsApp(prometheus.DefaultRegisterer, "watch", map[string]statusSection{
		"store":  storeSection(store),
		"models": modelSection(healthSvc),
		"jobs":   jobSection(jobScheduler),
	}, jobScheduler))

	runner, err := watcher.NewRunner(loops, nil)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start decision loops: %w", err)
	}
	jobScheduler.Start()

	log.Printf("👀 Watching %d room(s), press Ctrl+C to stop", len(loops))
	<-ctx.Done()

	log.Println("🛑 Shutting down decision loops...")
	jobScheduler.Stop()
	if err := runner.Stop(); err != nil {
		log.Printf("⚠️  Decision loops did not stop cleanly: %v", err)
	}
	log.Println("👋 Watcher stopped")
	return nil
}

// openArchive connects to the verdict archive and creates its schema
func openArchive(cfg config.ArchiveConfig) (*database.DB, error) {
	db, err := database.New(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	return db, nil
}

// roomModels returns the distinct models the rooms use
func roomModels(rooms []*config.RoomConfig) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range rooms {
		if !seen[r.LLM.ModelName] {
			seen[r.LLM.ModelName] = true
			names = append(names, r.LLM.ModelName)
		}
	}
	sort.Strings(names)
	return names
}

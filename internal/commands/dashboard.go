package commands

import (
	"fmt"
	"log"
	"time"

	"roomwatch/internal/database"
	"roomwatch/internal/handlers"
	"roomwatch/internal/middleware"
	"roomwatch/internal/services"
	"roomwatch/pkg/auth"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// frameCacheTTL is how long a latest frame is served without asking Redis again
const frameCacheTTL = 250 * time.Millisecond

// DashboardCmd serves the read-only viewer
var DashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the read-only room dashboard",
	Long: `Serves the latest frame, recent verdicts and archived history of every
room over HTTP, plus live verdict and alert events over a websocket.

Nothing is written: rooms without frames or logs show empty panels.`,
	RunE: runDashboard,
}

func init() {
	DashboardCmd.Flags().Int("port", 8501, "HTTP port (overrides DASHBOARD_PORT)")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	bind := map[string]string{}
	if cmd.Flags().Changed("port") {
		bind["dashboard_port"] = "port"
	}
	env, err := loadRuntime(cmd, bind)
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
	connManager := services.NewConnectionManager()
	pubsub := services.NewPubSubService(redisService, uuid.New().String())

	var jwtAuth *auth.LocalJWTAuth
	if cfg.Dashboard.JWTSecret != "" {
		jwtAuth, err = auth.NewLocalJWTAuth(cfg.Dashboard.JWTSecret, cfg.Dashboard.TokenTTL)
		if err != nil {
			return err
		}
		log.Println("🔐 [AUTH] Dashboard token authentication enabled")
	}

	deps := handlers.DashboardDeps{
		Rooms:        handlers.NewRoomDirectory(env.rooms),
		Frames:       services.NewFrameCache(store, frameCacheTTL),
		Logs:         store,
		Store:        store,
		ConnManager:  connManager,
		Auth:         jwtAuth,
		RateLimits:   middleware.LoadRateLimitConfig(),
		PollInterval: cfg.Dashboard.PollInterval,
	}

	var db *database.DB
	if cfg.Archive.Enabled() {
		db, err = openArchive(cfg.Archive)
		if err != nil {
			return err
		}
		defer db.Close()
		deps.Archive = db
		deps.ArchivePing = db
	}

	app := fiber.New(fiber.Config{
		AppName:      "roomwatch dashboard",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	prom := fiberprometheus.New("roomwatch_dashboard")
	prom.RegisterAt(app, "/metrics")
	app.Use(prom.Middleware)
	services.RegisterViewerGauge(prometheus.DefaultRegisterer, connManager)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	events := handlers.RegisterRoutes(app, deps)

	pubsub.Subscribe(services.RoomEventsPattern, events.Broadcast)
	if err := pubsub.Start(); err != nil {
		return fmt.Errorf("failed to start pub/sub: %w", err)
	}

	go func() {
		<-ctx.Done()
		log.Println("🛑 Shutting down dashboard...")
		pubsub.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️  Dashboard shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Dashboard.Port)
	log.Printf("🖥️  Dashboard listening on http://localhost%s (%d rooms)", addr, len(env.rooms))
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("dashboard server failed: %w", err)
	}
	log.Println("👋 Dashboard stopped")
	return nil
}

package commands

import (
	"context"
	"errors"
	"log"
	"time"

	"roomwatch/internal/health"
	"roomwatch/internal/jobs"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
)

// statusSection reports one part of the /health document. ok=false marks the process degraded.
type statusSection func() (status interface{}, ok bool)

// jobRunner triggers a registered job out of schedule
type jobRunner interface {
	RunNow(name string) error
}

// newOpsApp builds the per-process operations server: /metrics, /health and,
// when runner is set, POST /jobs/:name/run.
func newOpsApp(reg prometheus.Registerer, service string, sections map[string]statusSection, runner jobRunner) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "roomwatch " + service,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
	})
	app.Use(recover.New())

	prom := fiberprometheus.NewWithRegistry(reg, "roomwatch_"+service, "http", "", nil)
	prom.RegisterAt(app, "/metrics")

	app.Get("/health", func(c *fiber.Ctx) error {
		doc := fiber.Map{
			"status":    "healthy",
			"service":   service,
			"timestamp": time.Now().UTC(),
		}
		code := fiber.StatusOK
		for name, section := range sections {
			status, ok := section()
			doc[name] = status
			if !ok {
				doc["status"] = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}
		return c.Status(code).JSON(doc)
	})

	if runner != nil {
		app.Post("/jobs/:name/run", func(c *fiber.Ctx) error {
			name := c.Params("name")
			err := runner.RunNow(name)
			switch {
			case errors.Is(err, jobs.ErrUnknownJob):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			case err != nil:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"job": name, "error": err.Error()})
			}
			return c.JSON(fiber.Map{"job": name, "status": "completed"})
		})
	}
	return app
}

// pinger is a backend that answers liveness checks
type pinger interface {
	Ping(ctx context.Context) error
}

// storeSection pings the frame store on every request
func storeSection(p pinger) statusSection {
	return func() (interface{}, bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			return fiber.Map{"status": "down", "error": err.Error()}, false
		}
		return fiber.Map{"status": "ok"}, true
	}
}

// modelSection reports every tracked model. Any unavailable model degrades the process.
func modelSection(svc *health.Service) statusSection {
	return func() (interface{}, bool) {
		summary := svc.GetStatus()
		counts, _ := summary["counts"].(map[string]int)
		summary["details"] = svc.GetAll()
		return summary, counts[string(health.StatusUnavailable)] == 0
	}
}

// jobSection reports the housekeeping jobs. A failed last run does not degrade the process.
func jobSection(s *jobs.JobScheduler) statusSection {
	return func() (interface{}, bool) {
		return s.GetStatus(), true
	}
}

// serveOps runs the operations server on addr until ctx is done. An empty addr disables it.
func serveOps(ctx context.Context, addr string, app *fiber.App) {
	if addr == "" {
		return
	}

	go func() {
		log.Printf("📊 Metrics and health available at http://%s/metrics and /health", addr)
		if err := app.Listen(addr); err != nil {
			log.Printf("⚠️  Ops server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("⚠️  Ops server shutdown error: %v", err)
		}
	}()
}

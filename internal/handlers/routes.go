package handlers

import (
	"time"

	"roomwatch/internal/middleware"
	"roomwatch/internal/services"
	"roomwatch/pkg/auth"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// DashboardDeps is everything the dashboard routes read from
type DashboardDeps struct {
	Rooms        *RoomDirectory
	Frames       FrameReader
	Logs         LogReader
	Store        Pinger
	Archive      HistoryReader // nil disables /history
	ArchivePing  Pinger
	ConnManager  *services.ConnectionManager
	Auth         *auth.LocalJWTAuth // nil disables authentication
	RateLimits   *middleware.RateLimitConfig
	PollInterval time.Duration
}

// RegisterRoutes mounts the read-only dashboard on app and returns the events
// handler so the caller can feed it from pub/sub.
func RegisterRoutes(app *fiber.App, deps DashboardDeps) *EventsHandler {
	limits := deps.RateLimits
	if limits == nil {
		limits = middleware.DefaultRateLimitConfig()
	}

	healthHandler := NewHealthHandler(deps.ConnManager, deps.Store, deps.ArchivePing, deps.Rooms)
	roomHandler := NewRoomHandler(deps.Rooms, deps.PollInterval)
	frameHandler := NewFrameHandler(deps.Rooms, deps.Frames)
	logHandler := NewLogHandler(deps.Rooms, deps.Logs)
	historyHandler := NewHistoryHandler(deps.Rooms, deps.Archive)
	eventsHandler := NewEventsHandler(deps.ConnManager, deps.Rooms)

	app.Get("/", Index)
	app.Get("/health", healthHandler.Handle)

	authMiddleware := middleware.LocalAuthMiddleware(deps.Auth)

	api := app.Group("/api", authMiddleware)
	api.Get("/rooms", middleware.APIRateLimiter(limits), roomHandler.List)

	access := middleware.RoomAccess()
	api.Get("/rooms/:room/frame", middleware.FrameRateLimiter(limits), access, frameHandler.Latest)
	api.Get("/rooms/:room/logs", middleware.APIRateLimiter(limits), access, logHandler.Latest)
	api.Get("/rooms/:room/history.xlsx", middleware.ExportRateLimiter(limits), access, historyHandler.Export)
	api.Get("/rooms/:room/history", middleware.APIRateLimiter(limits), access, historyHandler.List)

	app.Get("/ws/events",
		middleware.WebSocketRateLimiter(limits),
		authMiddleware,
		eventsHandler.Upgrade,
		websocket.New(eventsHandler.Handle, websocket.Config{
			HandshakeTimeout: 10 * time.Second,
		}),
	)

	return eventsHandler
}

package middleware

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimitConfig holds rate limiting settings for the dashboard
type RateLimitConfig struct {
	// API limits (per IP) for logs, rooms and history
	APIMax        int
	APIExpiration time.Duration

	// Frame polling (per IP); each open room tile polls once per interval
	FrameMax        int
	FrameExpiration time.Duration

	// Exports are expensive archive scans
	ExportMax        int
	ExportExpiration time.Duration

	// WebSocket connection attempts (per IP)
	WebSocketMax        int
	WebSocketExpiration time.Duration
}

// DefaultRateLimitConfig returns defaults sized for a household of viewers
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		// 240/min = 4 req/sec
		APIMax:        240,
		APIExpiration: 1 * time.Minute,

		// Enough for a dozen rooms polled at 1s
		FrameMax:        900,
		FrameExpiration: 1 * time.Minute,

		ExportMax:        6,
		ExportExpiration: 1 * time.Minute,

		WebSocketMax:        20,
		WebSocketExpiration: 1 * time.Minute,
	}
}

// LoadRateLimitConfig loads config from environment variables with defaults
func LoadRateLimitConfig() *RateLimitConfig {
	config := DefaultRateLimitConfig()

	overrides := map[string]*int{
		"RATE_LIMIT_API":       &config.APIMax,
		"RATE_LIMIT_FRAMES":    &config.FrameMax,
		"RATE_LIMIT_EXPORT":    &config.ExportMax,
		"RATE_LIMIT_WEBSOCKET": &config.WebSocketMax,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*target = n
			}
		}
	}

	if os.Getenv("ENVIRONMENT") == "development" {
		config.APIMax = 1000
		config.WebSocketMax = 100
		log.Println("⚠️  [RATE-LIMIT] Development mode: using relaxed rate limits")
	}

	return config
}

func newLimiter(prefix string, max int, expiration time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return prefix + ":" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			log.Printf("🚫 [RATE-LIMIT] %s limit reached for IP: %s on %s", prefix, c.IP(), c.Path())
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       message,
				"retry_after": int(expiration.Seconds()),
			})
		},
	})
}

// APIRateLimiter limits the JSON endpoints
func APIRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("api", config.APIMax, config.APIExpiration, "Too many requests. Please slow down.")
}

// FrameRateLimiter limits latest-frame polling
func FrameRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("frame", config.FrameMax, config.FrameExpiration, "Too many frame requests. Please slow down.")
}

// ExportRateLimiter limits spreadsheet exports
func ExportRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("export", config.ExportMax, config.ExportExpiration, "Too many exports. Please wait.")
}

// WebSocketRateLimiter for WebSocket connection attempts
func WebSocketRateLimiter(config *RateLimitConfig) fiber.Handler {
	return newLimiter("ws", config.WebSocketMax, config.WebSocketExpiration, "Too many connection attempts. Please wait before reconnecting.")
}

package middleware

import (
	"log"

	"roomwatch/pkg/auth"

	"github.com/gofiber/fiber/v2"
)

// ViewerKey is the fiber Locals key holding the authenticated *auth.Viewer
const ViewerKey = "viewer"

// LocalAuthMiddleware verifies dashboard JWT tokens.
// Supports both Authorization header and query parameter (for WebSocket connections).
// A nil jwtAuth disables authentication and every request sees every room.
func LocalAuthMiddleware(jwtAuth *auth.LocalJWTAuth) fiber.Handler {
	if jwtAuth == nil {
		log.Println("⚠️  [AUTH] DASHBOARD_JWT_SECRET not set, dashboard is open to the network")
		return func(c *fiber.Ctx) error {
			c.Locals(ViewerKey, &auth.Viewer{Subject: "anonymous"})
			return c.Next()
		}
	}

	return func(c *fiber.Ctx) error {
		var token string

		// 1. Try Authorization header first
		if authHeader := c.Get("Authorization"); authHeader != "" {
			if extracted, err := auth.ExtractToken(authHeader); err == nil {
				token = extracted
			}
		}

		// 2. Try query parameter (for WebSocket connections and <img> polling)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing or invalid authorization token",
			})
		}

		viewer, err := jwtAuth.VerifyAccessToken(token)
		if err != nil {
			log.Printf("❌ [AUTH] Token rejected from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(ViewerKey, viewer)
		return c.Next()
	}
}

// RoomAccess rejects requests for a :room the viewer's token does not cover
func RoomAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer, ok := c.Locals(ViewerKey).(*auth.Viewer)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if room := c.Params("room"); room != "" && !viewer.CanView(room) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Token does not cover room " + room,
			})
		}
		return c.Next()
	}
}

// ViewerFrom returns the authenticated viewer, or nil outside the auth middleware
func ViewerFrom(c *fiber.Ctx) *auth.Viewer {
	viewer, _ := c.Locals(ViewerKey).(*auth.Viewer)
	return viewer
}

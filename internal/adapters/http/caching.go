package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets Cache-Control headers on GET responses based on endpoint.
// Adds sensible defaults if not already set by the handler.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		// Only set on GET requests
		if c.Method() != "GET" {
			return err
		}

		// Don't override if already set by the handler (imagery, preview)
		if existing := c.GetRespHeader("Cache-Control"); existing != "" {
			return err
		}

		path := c.Path()
		var ttl string

		// Default cache times by endpoint pattern
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10" // Very short for system checks

		case path == "/metrics":
			ttl = "no-cache" // Metrics are real-time

		case path == "/graphql":
			ttl = "private, max-age=0" // GraphQL varies wildly

		case strings.HasSuffix(path, "/grid") ||
			strings.HasSuffix(path, "/mesh") ||
			strings.HasSuffix(path, "/contours"):
			// Snapshot artifacts change on rebuild; version headers +
			// ETags carry the real freshness signal.
			ttl = "public, max-age=30"

		case strings.HasSuffix(path, "/elevation") || strings.HasSuffix(path, "/locate"):
			ttl = "public, max-age=60" // Point queries over a stable grid

		case path == "/v1/dioramas":
			ttl = "private, max-age=5" // Registry churns with creates/deletes

		case strings.HasPrefix(path, "/v1/dioramas/"):
			ttl = "private, max-age=10" // Single diorama metadata

		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60" // Default for API endpoints
		}

		if ttl != "" {
			c.Set("Cache-Control", ttl)
		}

		return err
	}
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/conductor-sh/conductor/internal/logger"
)

// RequestLogger emits one structured line per completed request. The SSE
// stream is exempt; it stays open for the client's lifetime and logs its own
// connect and disconnect.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/api/events" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		event := logger.Logger.Info()
		if err != nil || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			event = logger.Logger.Error().Err(err)
		}
		event.
			Int("status", c.Response().StatusCode()).
			Dur("latency", time.Since(start)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request")
		return err
	}
}

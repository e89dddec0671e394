package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Pinger is an interface for health check ping operations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck is a named dependency probed by the health endpoint.
type HealthCheck struct {
	Name   string
	Pinger Pinger
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a new HealthHandler. With no checks the service
// only depends on in-memory state and always reports healthy.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Check pings every configured dependency in order.
// Returns 200 OK with {"status": "healthy"} when all of them respond.
// Returns 503 Service Unavailable with {"status": "unhealthy", "error": "..."} on the first failure.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	for _, check := range h.checks {
		if err := check.Pinger.Ping(c.Context()); err != nil {
			log.Error().Err(err).Str("dependency", check.Name).Msg("health check failed: dependency unreachable")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"error":  check.Name + " connection failed",
			})
		}
	}
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}

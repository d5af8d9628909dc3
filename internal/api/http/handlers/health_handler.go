package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/persistence"
)

const (
	dependencyOK       = "ok"
	dependencyDisabled = "disabled"
	readyCheckTimeout  = 2 * time.Second
)

// backend is an optional dependency. A disabled one never blocks readiness.
type backend interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	backends    map[string]backend
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		backends:    map[string]backend{"postgres": postgres, "redis": redis},
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready pings every configured backend. Unconfigured backends report "disabled".
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readyCheckTimeout)
	defer cancel()

	deps := fiber.Map{}
	ready := true
	for name, b := range h.backends {
		if !b.Enabled() {
			deps[name] = dependencyDisabled
			continue
		}
		if err := b.Ping(ctx); err != nil {
			deps[name] = err.Error()
			ready = false
			continue
		}
		deps[name] = dependencyOK
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": deps,
			},
		})
	}
	return c.JSON(fiber.Map{
		"status":       "ready",
		"service":      h.serviceName,
		"dependencies": deps,
	})
}
